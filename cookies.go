package twitter

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Cookie is one exported session cookie.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"httpOnly"`
	SameSite string    `json:"sameSite,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
}

type cookieKey struct {
	domain, path, name string
}

func (c Cookie) key() cookieKey {
	return cookieKey{domain: normalizeDomain(c.Domain), path: c.Path, name: c.Name}
}

func (c Cookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// String renders the cookie as a `key=value; Domain=...; Path=...` line.
func (c Cookie) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)
	if c.Domain != "" {
		b.WriteString("; Domain=" + c.Domain)
	}
	if c.Path != "" {
		b.WriteString("; Path=" + c.Path)
	}
	if !c.Expires.IsZero() {
		b.WriteString("; Expires=" + c.Expires.UTC().Format(http.TimeFormat))
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	if c.SameSite != "" {
		b.WriteString("; SameSite=" + c.SameSite)
	}
	return b.String()
}

// ParseCookieLine parses a set-cookie style line. Missing Path defaults to "/".
func ParseCookieLine(line string) (Cookie, error) {
	hc, err := http.ParseSetCookie(strings.TrimSpace(line))
	if err != nil {
		return Cookie{}, fmt.Errorf("parse cookie %q: %w", truncate(line, 40), err)
	}
	c := Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Domain:   hc.Domain,
		Path:     hc.Path,
		Secure:   hc.Secure,
		HTTPOnly: hc.HttpOnly,
		SameSite: sameSiteString(hc.SameSite),
	}
	if c.Path == "" {
		c.Path = "/"
	}
	switch {
	case hc.MaxAge < 0:
		c.Expires = time.Unix(0, 0)
	case hc.MaxAge > 0:
		c.Expires = time.Now().Add(time.Duration(hc.MaxAge) * time.Second)
	case !hc.Expires.IsZero():
		c.Expires = hc.Expires
	}
	return c, nil
}

func sameSiteString(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	}
	return ""
}

func normalizeDomain(d string) string {
	return strings.TrimPrefix(strings.ToLower(d), ".")
}

// CookieStore holds session cookies keyed by (domain, path, name).
// Export order is insertion order; replacing a cookie keeps its position.
type CookieStore struct {
	mu    sync.RWMutex
	order []cookieKey
	jar   map[cookieKey]Cookie
	now   func() time.Time
}

// NewCookieStore returns an empty store.
func NewCookieStore() *CookieStore {
	return &CookieStore{jar: make(map[cookieKey]Cookie), now: time.Now}
}

// Set stores or replaces a cookie. An already-expired cookie deletes the entry.
func (s *CookieStore) Set(c Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(c)
}

func (s *CookieStore) setLocked(c Cookie) {
	if c.Path == "" {
		c.Path = "/"
	}
	k := c.key()
	if c.expired(s.now()) {
		s.deleteLocked(k)
		return
	}
	if _, ok := s.jar[k]; !ok {
		s.order = append(s.order, k)
	}
	s.jar[k] = c
}

func (s *CookieStore) deleteLocked(k cookieKey) {
	if _, ok := s.jar[k]; !ok {
		return
	}
	delete(s.jar, k)
	for i, ok := range s.order {
		if ok == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Get returns the value of the first live cookie with the given name.
func (s *CookieStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	for _, k := range s.order {
		if c := s.jar[k]; c.Name == name && !c.expired(now) {
			return c.Value, true
		}
	}
	return "", false
}

// Delete removes every cookie with the given name.
func (s *CookieStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range append([]cookieKey(nil), s.order...) {
		if k.name == name {
			s.deleteLocked(k)
		}
	}
}

// Clear drops all cookies.
func (s *CookieStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.jar = make(map[cookieKey]Cookie)
}

// Len returns the number of stored cookies.
func (s *CookieStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Export returns the live cookies in insertion order.
func (s *CookieStore) Export() []Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]Cookie, 0, len(s.order))
	for _, k := range s.order {
		if c := s.jar[k]; !c.expired(now) {
			out = append(out, c)
		}
	}
	return out
}

// Import replaces the store contents with the given cookies.
func (s *CookieStore) Import(cookies []Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.jar = make(map[cookieKey]Cookie, len(cookies))
	for _, c := range cookies {
		s.setLocked(c)
	}
}

// Absorb stores set-cookie lines received from host. Lines that fail to parse
// are ignored.
func (s *CookieStore) Absorb(host string, lines []string) {
	if len(lines) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range lines {
		c, err := ParseCookieLine(line)
		if err != nil {
			continue
		}
		if c.Domain == "" {
			c.Domain = host
		}
		s.setLocked(c)
	}
}

// Header builds the cookie request header for rawURL.
func (s *CookieStore) Header(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	path := u.Path
	if path == "" {
		path = "/"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	var parts []string
	for _, k := range s.order {
		c := s.jar[k]
		if c.expired(now) || !domainMatch(host, k.domain) || !strings.HasPrefix(path, c.Path) {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

func domainMatch(host, domain string) bool {
	if domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
