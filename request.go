package twitter

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// doGET sends an authenticated-or-guest GET and returns the body of a
// successful response.
func (c *Client) doGET(ctx context.Context, op, rawURL string) ([]byte, error) {
	return c.do(ctx, op, &Request{Method: "GET", URL: rawURL})
}

// doJSON POSTs a JSON body.
func (c *Client) doJSON(ctx context.Context, op, rawURL string, body []byte) ([]byte, error) {
	return c.do(ctx, op, &Request{Method: "POST", URL: rawURL, Body: body})
}

// doForm POSTs url-encoded form values.
func (c *Client) doForm(ctx context.Context, op, rawURL string, form url.Values) ([]byte, error) {
	req := &Request{Method: "POST", URL: rawURL, Body: []byte(form.Encode())}
	req.Header = map[string]string{"content-type": "application/x-www-form-urlencoded"}
	return c.do(ctx, op, req)
}

// do installs auth, sends req once, absorbs response cookies and classifies
// the result. Failures are returned as typed errors; nothing is retried.
func (c *Client) do(ctx context.Context, op string, req *Request) ([]byte, error) {
	h := baseHeaders(c.cfg.UserAgent)
	if req.Body != nil {
		h["content-type"] = "application/json"
	}
	for k, v := range req.Header {
		h[k] = v
	}
	h["x-client-uuid"] = uuid.NewString()
	req.Header = h

	if err := c.session.InstallAuth(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	c.session.absorb(req.URL, resp)

	class, apiErr := classifyError(resp.Body)
	switch {
	case resp.Status == 429:
		slog.Warn("rate limited", slog.String("op", op))
		return nil, &TransportError{Op: op, Status: resp.Status, Body: truncateBytes(resp.Body, 200)}
	case resp.Status < 200 || resp.Status >= 300:
		slog.Warn("request failed", slog.String("op", op), slog.Int("status", resp.Status), slog.String("body", truncateBytes(resp.Body, 300)))
		if apiErr != nil {
			return nil, &TransportError{Op: op, Status: resp.Status, Body: apiErr.Message, Err: apiErr}
		}
		return nil, &TransportError{Op: op, Status: resp.Status, Body: truncateBytes(resp.Body, 200)}
	}

	switch class {
	case errNone:
		return resp.Body, nil
	case errInternal:
		// Partial results arrive with code 131 alongside data.
		if hasData(resp.Body) {
			slog.Debug("partial response", slog.String("op", op), slog.String("message", apiErr.Message))
			return resp.Body, nil
		}
	case errOther:
		if hasData(resp.Body) {
			return resp.Body, nil
		}
	}
	slog.Warn("api error", slog.String("op", op), slog.Int("code", apiErr.Code), slog.String("message", apiErr.Message))
	return nil, apiErr
}

// hasData reports whether a GraphQL body carries a non-empty data object.
func hasData(body []byte) bool {
	data := gjson.GetBytes(body, "data")
	return data.IsObject() && len(data.Map()) > 0
}
