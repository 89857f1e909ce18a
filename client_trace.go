package business

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http/httptrace"
)

// DefaultClientTrace returns a ClientTrace that logs the connection
// lifecycle of each API request at level. A nil logger uses slog.Default().
//
// Header fields are never traced: the Authorization header carries the
// bearer token.
func DefaultClientTrace(logger *slog.Logger, level slog.Level) *httptrace.ClientTrace {
	if logger == nil {
		logger = slog.Default()
	}
	emit := func(msg string, attrs ...slog.Attr) {
		logger.LogAttrs(context.Background(), level, msg, attrs...)
	}

	return &httptrace.ClientTrace{
		GetConn: func(hostPort string) {
			emit("Connection requested", slog.String("host", hostPort))
		},
		GotConn: func(info httptrace.GotConnInfo) {
			var remote string
			if info.Conn != nil {
				remote = info.Conn.RemoteAddr().String()
			}
			emit("Connection obtained",
				slog.String("remote", remote),
				slog.Bool("reused", info.Reused),
				slog.Duration("idle", info.IdleTime),
			)
		},
		DNSStart: func(info httptrace.DNSStartInfo) {
			emit("DNS lookup started", slog.String("host", info.Host))
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			addrs := make([]string, 0, len(info.Addrs))
			for _, a := range info.Addrs {
				addrs = append(addrs, a.String())
			}
			emit("DNS lookup done", slog.Any("addrs", addrs), slog.Any("error", info.Err))
		},
		ConnectDone: func(network, addr string, err error) {
			emit("Dial done", slog.String("network", network), slog.String("addr", addr), slog.Any("error", err))
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			emit("TLS handshake done",
				slog.String("server_name", state.ServerName),
				slog.String("protocol", state.NegotiatedProtocol),
				slog.Any("error", err),
			)
		},
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			emit("Request written", slog.Any("error", info.Err))
		},
		GotFirstResponseByte: func() {
			emit("Response started")
		},
	}
}
