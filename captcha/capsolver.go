// Package captcha solves the Arkose challenges X login flows may demand.
package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const defaultBaseURL = "https://api.capsolver.com"

// Capsolver solves FunCaptcha challenges through the Capsolver task API.
// It satisfies the CaptchaSolver interface of the client config.
type Capsolver struct {
	apiKey   string
	baseURL  string
	interval time.Duration
	client   *http.Client
}

// Option configures a Capsolver.
type Option func(*Capsolver)

// WithBaseURL points the solver at another API host.
func WithBaseURL(u string) Option { return func(c *Capsolver) { c.baseURL = u } }

// WithPollInterval sets the wait between task result checks.
func WithPollInterval(d time.Duration) Option { return func(c *Capsolver) { c.interval = d } }

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Capsolver) { c.client = hc } }

// NewCapsolver creates a solver for apiKey.
func NewCapsolver(apiKey string, opts ...Option) *Capsolver {
	c := &Capsolver{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		interval: 3 * time.Second,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TaskError is an error reported by the solving service.
type TaskError struct {
	Code        string
	Description string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("capsolver %s: %s", e.Code, e.Description)
}

// Solve creates a task for the challenge on pageURL and waits for its token.
// The wait is bounded only by ctx.
func (c *Capsolver) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	created, err := c.call(ctx, "/createTask", map[string]any{
		"clientKey": c.apiKey,
		"task": map[string]any{
			"type":             "FunCaptchaTaskProxyLess",
			"websiteURL":       pageURL,
			"websitePublicKey": siteKey,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	taskID := created.Get("taskId").String()
	if taskID == "" {
		return "", errors.New("capsolver: empty taskId")
	}
	slog.Debug("captcha task created", slog.String("task", taskID))

	for {
		res, err := c.call(ctx, "/getTaskResult", map[string]any{"clientKey": c.apiKey, "taskId": taskID})
		if err != nil {
			return "", fmt.Errorf("task result: %w", err)
		}
		switch status := res.Get("status").String(); status {
		case "ready":
			token := res.Get("solution.token").String()
			if token == "" {
				return "", errors.New("capsolver: ready without token")
			}
			slog.Debug("captcha solved", slog.String("task", taskID))
			return token, nil
		case "idle", "processing":
		default:
			return "", fmt.Errorf("capsolver: unexpected status %q", status)
		}

		t := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
}

// Balance returns the account balance in USD.
func (c *Capsolver) Balance(ctx context.Context) (float64, error) {
	res, err := c.call(ctx, "/getBalance", map[string]any{"clientKey": c.apiKey})
	if err != nil {
		return 0, err
	}
	return res.Get("balance").Float(), nil
}

// call posts payload to path and returns the decoded body, turning a
// non-zero errorId into a TaskError.
func (c *Capsolver) call(ctx context.Context, path string, payload any) (gjson.Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("capsolver HTTP %d: %s", resp.StatusCode, data[:min(200, len(data))])
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, errors.New("capsolver: invalid JSON")
	}
	res := gjson.ParseBytes(data)
	if res.Get("errorId").Int() != 0 {
		return gjson.Result{}, &TaskError{Code: res.Get("errorCode").String(), Description: res.Get("errorDescription").String()}
	}
	return res, nil
}
