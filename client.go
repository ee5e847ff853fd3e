package twitter

import (
	"context"
	"log/slog"
)

// Client is the top-level X web-API client. It is safe for concurrent reads;
// Login, Logout and SetCookies must not race with other calls.
type Client struct {
	session   *Session
	transport Transport
	cfg       ClientConfig
}

// NewClient creates a guest client. Without cfg.Transport it sends through a
// browser-fingerprinted stealth transport.
func NewClient(cfg ClientConfig) (*Client, error) {
	cfg.defaults()

	t := cfg.Transport
	if t == nil {
		st, err := newStealthTransport(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		t = st
	}
	return &Client{
		session:   NewSession(t, cfg),
		transport: t,
		cfg:       cfg,
	}, nil
}

// Session returns the client's auth session.
func (c *Client) Session() *Session {
	return c.session
}

// Login authenticates with the server-directed login flow.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	return c.session.Login(ctx, creds)
}

// Logout ends the authenticated session and returns the client to guest mode.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// IsLoggedIn reports whether the session holds an authenticated identity.
func (c *Client) IsLoggedIn() bool {
	return c.session.IsAuthenticated()
}

// Cookies exports the session cookies for persistence.
func (c *Client) Cookies() []Cookie {
	return c.session.Cookies()
}

// SetCookies restores an authenticated session from previously exported cookies.
func (c *Client) SetCookies(cookies []Cookie) error {
	return c.session.SetCookies(cookies)
}

// requireAuth guards operations that need a logged-in identity.
func (c *Client) requireAuth(op string) error {
	if !c.session.IsAuthenticated() {
		slog.Debug("auth required", slog.String("op", op))
		return ErrNotAuthenticated
	}
	return nil
}
