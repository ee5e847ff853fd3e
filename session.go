package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Session owns the authentication state of one client: a bearer credential,
// either a guest token or an authenticated user identity, and the cookie store.
//
// Login, Logout, SetCookies and ClearCookies are serialized against each other.
// Callers must not run them concurrently with other requests on the same Session.
type Session struct {
	transport Transport
	bearer    string
	userAgent string
	guestTTL  time.Duration
	captcha   CaptchaSolver
	now       func() time.Time

	opMu sync.Mutex // serializes state-mutating operations
	sf   singleflight.Group

	mu            sync.RWMutex
	cookies       *CookieStore
	authenticated bool
	userID        string
	guestToken    string
	guestIssuedAt time.Time
}

// NewSession creates a guest session sending through t.
func NewSession(t Transport, cfg ClientConfig) *Session {
	cfg.defaults()
	return &Session{
		transport: t,
		bearer:    cfg.BearerToken,
		userAgent: cfg.UserAgent,
		guestTTL:  cfg.GuestTokenTTL,
		captcha:   cfg.CaptchaSolver,
		now:       time.Now,
		cookies:   NewCookieStore(),
	}
}

// IsAuthenticated reports whether the session holds a logged-in identity.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// UserID returns the authenticated user's id, if the server disclosed it.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// GuestToken returns the current guest token, possibly empty.
func (s *Session) GuestToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guestToken
}

func (s *Session) guestTokenFresh() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.guestToken == "" || s.now().Sub(s.guestIssuedAt) >= s.guestTTL {
		return "", false
	}
	return s.guestToken, true
}

// EnsureGuestToken acquires a guest token when none is held or the held one
// is stale. Concurrent callers share one activation request.
func (s *Session) EnsureGuestToken(ctx context.Context) error {
	if _, ok := s.guestTokenFresh(); ok {
		return nil
	}
	_, err, _ := s.sf.Do("guest", func() (any, error) {
		if tok, ok := s.guestTokenFresh(); ok {
			return tok, nil
		}
		tok, err := s.activateGuest(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.guestToken = tok
		s.guestIssuedAt = s.now()
		s.mu.Unlock()
		slog.Debug("guest token acquired")
		return tok, nil
	})
	if err != nil {
		return &AuthBootstrapError{Err: err}
	}
	return nil
}

// activateGuest requests a fresh guest token without touching session state.
func (s *Session) activateGuest(ctx context.Context) (string, error) {
	req := s.newRequest("POST", guestActivateURL, nil)
	resp, err := s.transport.Do(ctx, req)
	if err != nil {
		return "", &TransportError{Op: "guest activate", Err: err}
	}
	if resp.Status != 200 {
		return "", &TransportError{Op: "guest activate", Status: resp.Status, Body: truncateBytes(resp.Body, 200)}
	}
	var body struct {
		GuestToken string `json:"guest_token"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", fmt.Errorf("parse guest token: %w", err)
	}
	if body.GuestToken == "" {
		return "", errors.New("empty guest token in response")
	}
	return body.GuestToken, nil
}

// newRequest builds a request carrying the bearer and browser headers.
func (s *Session) newRequest(method, rawURL string, body []byte) *Request {
	h := baseHeaders(s.userAgent)
	h["authorization"] = "Bearer " + s.bearer
	if body != nil {
		h["content-type"] = "application/json"
	}
	return &Request{Method: method, URL: rawURL, Header: h, Body: body}
}

// InstallAuth attaches credentials to req: cookies and the anti-forgery header
// when authenticated, otherwise a guest token. Call it right before each send.
func (s *Session) InstallAuth(ctx context.Context, req *Request) error {
	if req.Header == nil {
		req.Header = make(map[string]string)
	}
	req.Header["authorization"] = "Bearer " + s.bearer

	if s.IsAuthenticated() {
		tok, ok := liveAuthToken(s.cookies)
		if !ok {
			s.demote("auth_token missing or expired")
			return fmt.Errorf("%w: %s cookie missing or expired", ErrNotAuthenticated, authTokenCookie)
		}
		csrf := ct0FromStore(s.cookies)
		cookie := s.cookies.Header(req.URL)
		if !strings.Contains(cookie, authTokenCookie+"=") {
			cookie = joinCookies(cookie, authTokenCookie+"="+tok)
		}
		if !strings.Contains(cookie, ct0Cookie+"=") {
			cookie = joinCookies(cookie, ct0Cookie+"="+csrf)
		}
		req.Header["cookie"] = cookie
		req.Header["x-csrf-token"] = csrf
		req.Header["x-twitter-auth-type"] = "OAuth2Session"
		delete(req.Header, "x-guest-token")
		return nil
	}

	if err := s.EnsureGuestToken(ctx); err != nil {
		return err
	}
	tok, ok := s.guestTokenFresh()
	if !ok {
		return &AuthBootstrapError{Err: errors.New("no usable guest token")}
	}
	req.Header["x-guest-token"] = tok
	if cookie := s.cookies.Header(req.URL); cookie != "" {
		req.Header["cookie"] = cookie
	}
	if csrf, ok := s.cookies.Get(ct0Cookie); ok {
		req.Header["x-csrf-token"] = csrf
	}
	return nil
}

// absorb stores cookies set by a response to rawURL.
func (s *Session) absorb(rawURL string, resp *Response) {
	if resp == nil || len(resp.SetCookies) == 0 {
		return
	}
	s.cookies.Absorb(hostOf(rawURL), resp.SetCookies)
	if s.IsAuthenticated() {
		if _, ok := liveAuthToken(s.cookies); !ok {
			s.demote("auth_token cleared by response")
		}
	}
}

// demote drops the authenticated identity after its auth_token disappeared.
// Remaining cookies are kept; the next request bootstraps a guest token.
func (s *Session) demote(reason string) {
	s.mu.Lock()
	was := s.authenticated
	s.authenticated = false
	s.userID = ""
	s.mu.Unlock()
	if was {
		slog.Warn("session no longer authenticated", slog.String("reason", reason))
	}
}

// liveAuthToken returns the auth_token value when a live, non-empty one is stored.
func liveAuthToken(c *CookieStore) (string, bool) {
	v, ok := c.Get(authTokenCookie)
	return v, ok && v != ""
}

func joinCookies(header, pair string) string {
	if header == "" {
		return pair
	}
	return header + "; " + pair
}

// Cookies exports the session cookies in a stable order.
func (s *Session) Cookies() []Cookie {
	return s.cookies.Export()
}

// SetCookies replaces the cookie store and promotes the session to
// authenticated without running the login flow. The set must carry a live
// auth_token; otherwise the session is left untouched.
func (s *Session) SetCookies(cookies []Cookie) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	scratch := NewCookieStore()
	scratch.now = s.cookies.now
	scratch.Import(cookies)
	if _, ok := liveAuthToken(scratch); !ok {
		return fmt.Errorf("set cookies: no live %s cookie", authTokenCookie)
	}
	s.install(cookies)
	slog.Info("session cookies imported", slog.Int("count", len(cookies)), slog.String("user_id", s.UserID()))
	return nil
}

// install swaps in an authenticated cookie set. Caller holds opMu.
func (s *Session) install(cookies []Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies.Import(cookies)
	s.authenticated = true
	s.userID = userIDFromCookies(s.cookies)
	s.guestToken = ""
	s.guestIssuedAt = time.Time{}
}

// ClearCookies drops every cookie and resets the session to a fresh guest.
func (s *Session) ClearCookies() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.reset()
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies.Clear()
	s.authenticated = false
	s.userID = ""
	s.guestToken = ""
	s.guestIssuedAt = time.Time{}
}

// Logout invalidates the identity server-side (best effort), clears cookies,
// and leaves the session as a fresh guest.
func (s *Session) Logout(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.IsAuthenticated() {
		req := s.newRequest("POST", logoutURL, nil)
		req.Header["content-type"] = "application/x-www-form-urlencoded"
		if err := s.InstallAuth(ctx, req); err == nil {
			resp, err := s.transport.Do(ctx, req)
			switch {
			case err != nil:
				slog.Warn("logout request failed", slog.Any("error", err))
			case resp.Status != 200:
				slog.Warn("logout rejected", slog.Int("status", resp.Status))
			}
		}
	}
	s.reset()
	slog.Info("logged out")
	return nil
}

// userIDFromCookies reads the numeric id from the twid cookie ("u=123" or "u%3D123").
func userIDFromCookies(s *CookieStore) string {
	v, ok := s.Get("twid")
	if !ok {
		return ""
	}
	if dec, err := url.QueryUnescape(strings.Trim(v, `"`)); err == nil {
		v = dec
	}
	return strings.TrimPrefix(v, "u=")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func truncateBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
