package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapsolverSolve(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "key", body["clientKey"])
		switch r.URL.Path {
		case "/createTask":
			task := body["task"].(map[string]any)
			assert.Equal(t, "SITE", task["websitePublicKey"])
			w.Write([]byte(`{"errorId":0,"taskId":"t1"}`))
		case "/getTaskResult":
			if polls.Add(1) < 3 {
				w.Write([]byte(`{"errorId":0,"status":"processing"}`))
				return
			}
			w.Write([]byte(`{"errorId":0,"status":"ready","solution":{"token":"tok"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewCapsolver("key", WithBaseURL(srv.URL), WithPollInterval(time.Millisecond))
	token, err := c.Solve(context.Background(), "SITE", "https://x.com")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Equal(t, int32(3), polls.Load())
}

func TestCapsolverTaskError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errorId":1,"errorCode":"ERROR_KEY_DENIED_ACCESS","errorDescription":"bad key"}`))
	}))
	defer srv.Close()

	_, err := NewCapsolver("key", WithBaseURL(srv.URL)).Solve(context.Background(), "SITE", "https://x.com")
	var te *TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "ERROR_KEY_DENIED_ACCESS", te.Code)
}

func TestCapsolverContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/createTask" {
			w.Write([]byte(`{"errorId":0,"taskId":"t1"}`))
			return
		}
		w.Write([]byte(`{"errorId":0,"status":"processing"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewCapsolver("key", WithBaseURL(srv.URL), WithPollInterval(10*time.Millisecond)).Solve(ctx, "SITE", "https://x.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCapsolverBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getBalance", r.URL.Path)
		w.Write([]byte(`{"errorId":0,"balance":12.5}`))
	}))
	defer srv.Close()

	bal, err := NewCapsolver("key", WithBaseURL(srv.URL)).Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 12.5, bal, 0.001)
}
