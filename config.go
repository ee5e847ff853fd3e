package twitter

import (
	"context"
	"time"
)

// CaptchaSolver solves the Arkose challenge some login flows demand.
type CaptchaSolver interface {
	// Solve returns a solution token for the challenge on pageURL.
	Solve(ctx context.Context, siteKey, pageURL string) (token string, err error)
}

// ClientConfig holds all configuration for the Twitter client.
type ClientConfig struct {
	// BearerToken is the web-app bearer credential. Default: the first known token.
	BearerToken string

	// UserAgent overrides the browser User-Agent.
	UserAgent string

	// Proxy is the proxy URL for the default transport.
	Proxy string

	// Transport overrides the default stealth transport.
	Transport Transport

	// GuestTokenTTL controls when a guest token is considered stale.
	GuestTokenTTL time.Duration

	// PageSize is the largest page requested from timeline endpoints.
	PageSize int

	// CaptchaSolver is the optional solver for Arkose login challenges.
	CaptchaSolver CaptchaSolver

	// UploadChunkSize is the APPEND segment size for chunked media.
	UploadChunkSize int

	// UploadMaxPolls bounds the STATUS polls after FINALIZE.
	UploadMaxPolls int

	// UploadDefaultWait is used when the server gives no check_after_secs.
	UploadDefaultWait time.Duration

	// Sleep waits between media status polls. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// defaults fills in unset config fields. Non-positive sizes and durations
// count as unset.
func (cfg *ClientConfig) defaults() {
	if cfg.BearerToken == "" {
		cfg.BearerToken = BearerToken
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.GuestTokenTTL <= 0 {
		cfg.GuestTokenTTL = 3 * time.Hour
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.UploadChunkSize <= 0 {
		cfg.UploadChunkSize = 5 << 20
	}
	if cfg.UploadMaxPolls <= 0 {
		cfg.UploadMaxPolls = 10
	}
	if cfg.UploadDefaultWait <= 0 {
		cfg.UploadDefaultWait = 5 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
