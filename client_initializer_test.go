package business

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigureHTTPClientInitializer(t *testing.T) {
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor != 2 {
			t.Errorf("Expected HTTP/2, got %d", r.ProtoMajor)
		}
		if r.Header.Get("Authorization") != "Bearer MOCK_TOKEN" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	server.EnableHTTP2 = true
	server.StartTLS()
	defer server.Close()

	// Reuse the test server's TLS config so its self-signed certificate is trusted.
	serverTransport := server.Client().Transport.(*http.Transport)

	ts := MockTokenSource{token: "MOCK_TOKEN"}
	conf := DefaultHTTPConfig()
	conf.TLSConfig = serverTransport.TLSClientConfig

	init := ConfigureHTTPClientInitializer(&conf)
	client, err := NewClient(init, server.URL, &ts)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	request, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Do(request)
	if err != nil {
		t.Fatalf("Client.Do failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestDefaultHTTPConfig_Independent(t *testing.T) {
	a := DefaultHTTPConfig()
	a.MaxConnsPerHost = 99
	a.TLSConfig.ServerName = "changed"

	b := DefaultHTTPConfig()
	if b.MaxConnsPerHost == 99 || b.TLSConfig.ServerName == "changed" {
		t.Error("DefaultHTTPConfig returned shared state")
	}
	if b.Timeout != 0 {
		t.Errorf("Timeout = %v, want none", b.Timeout)
	}
}
