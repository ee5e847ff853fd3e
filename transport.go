package twitter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	stealth "github.com/anatolykoptev/go-stealth"
)

// Request is one outgoing HTTP request description. Header keys are lower-case.
type Request struct {
	Method string
	URL    string
	Header map[string]string
	Body   []byte
}

// Response is the raw result of a sent request.
type Response struct {
	Status     int
	Body       []byte
	SetCookies []string
}

// Transport sends requests. It owns connection-level concerns such as
// proxying, TLS fingerprinting and redirects; it never interprets bodies.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// stealthTransport sends requests through a browser-fingerprinted client.
type stealthTransport struct {
	bc *stealth.BrowserClient
}

func newStealthTransport(proxy string) (*stealthTransport, error) {
	opts := []stealth.ClientOption{
		stealth.WithHeaderOrder(twitterHeaderOrder),
	}
	if proxy != "" {
		opts = append(opts, stealth.WithProxy(proxy))
	}
	bc, err := stealth.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("stealth client: %w", err)
	}
	return &stealthTransport{bc: bc}, nil
}

func (t *stealthTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	data, headers, status, err := t.bc.DoWithHeaderOrder(req.Method, req.URL, req.Header, body, twitterHeaderOrder)
	if err != nil {
		return nil, err
	}
	return &Response{
		Status:     status,
		Body:       data,
		SetCookies: splitSetCookie(headers["set-cookie"]),
	}, nil
}

// splitSetCookie splits a folded set-cookie header value into cookie lines.
func splitSetCookie(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(v, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
