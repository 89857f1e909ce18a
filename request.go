package business

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

const (
	maxErrorBody  = 1 << 20
	maxLoggedBody = 512
)

// Links holds the pagination links of a list response.
type Links struct {
	Self string `json:"self,omitempty"`
	Next string `json:"next,omitempty"`
}

// listResponse is a page of a JSON:API collection.
type listResponse[T any] struct {
	Data  []T    `json:"data"`
	Links *Links `json:"links,omitempty"`
}

// singleResponse is a JSON:API document holding one resource.
type singleResponse[T any] struct {
	Data T `json:"data"`
}

// endpoint joins escaped path segments onto the host.
func (c *Client) endpoint(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.Host)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// getJSON fetches rawURL and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, op, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(op, req, out, http.StatusOK)
}

// postJSON sends body as JSON and decodes an accepted response into out.
func (c *Client) postJSON(ctx context.Context, op, rawURL string, body, out any, accept ...int) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.doJSON(op, req, out, accept...)
}

func (c *Client) doJSON(op string, req *http.Request, out any, accept ...int) error {
	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	c.Logger.Debug("API request", "op", op, "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode)

	if !slices.Contains(accept, resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logged := body
		if len(logged) > maxLoggedBody {
			logged = logged[:maxLoggedBody]
		}
		c.Logger.Warn("API request failed", "op", op, "status", resp.StatusCode, "body", string(logged))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// listAll follows links.next from first until a page has no next link and
// returns the concatenated data. Any failed page aborts the listing.
func listAll[T any](ctx context.Context, c *Client, op, first string) ([]T, error) {
	var all []T
	pages := 0
	for next := first; next != ""; {
		var page listResponse[T]
		if err := c.getJSON(ctx, op, next, &page); err != nil {
			return nil, err
		}
		pages++
		all = append(all, page.Data...)

		if page.Links == nil || page.Links.Next == "" {
			break
		}
		resolved, err := resolveLink(next, page.Links.Next)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid next link %q: %w", op, page.Links.Next, err)
		}
		next = resolved
	}
	c.Logger.Debug("Listing complete", "op", op, "pages", pages, "items", len(all))
	if all == nil {
		all = []T{}
	}
	return all, nil
}

// resolveLink resolves a possibly relative next link against the page URL.
func resolveLink(base, link string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	l, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(l).String(), nil
}
