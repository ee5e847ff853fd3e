package twitter

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uploadServer fakes the chunked upload endpoint.
type uploadServer struct {
	mu        sync.Mutex
	inits     []url.Values
	segments  []int
	received  int
	finalized bool
	statuses  int

	appendStatus func(index int) int
	finalizeBody string
	statusBody   func(n int) string
}

func (u *uploadServer) transport() *fakeTransport {
	return &fakeTransport{handler: func(req *Request) (*Response, error) {
		if !strings.HasPrefix(req.URL, uploadURL) {
			return jsonResponse(404, `{}`), nil
		}
		u.mu.Lock()
		defer u.mu.Unlock()
		if req.Method == "GET" {
			q, _ := url.ParseQuery(req.URL[strings.Index(req.URL, "?")+1:])
			if q.Get("command") != "STATUS" {
				return jsonResponse(400, `{}`), nil
			}
			u.statuses++
			return jsonResponse(200, u.statusBody(u.statuses)), nil
		}
		form, err := url.ParseQuery(string(req.Body))
		if err != nil {
			return nil, err
		}
		switch form.Get("command") {
		case "INIT":
			u.inits = append(u.inits, form)
			return jsonResponse(202, `{"media_id":1,"media_id_string":"m1","expires_after_secs":86400}`), nil
		case "APPEND":
			idx, _ := strconv.Atoi(form.Get("segment_index"))
			if u.appendStatus != nil {
				if st := u.appendStatus(idx); st != 204 {
					return jsonResponse(st, `{"errors":[{"code":324,"message":"segment rejected"}]}`), nil
				}
			}
			chunk, err := base64.StdEncoding.DecodeString(form.Get("media_data"))
			if err != nil {
				return nil, err
			}
			u.segments = append(u.segments, idx)
			u.received += len(chunk)
			return jsonResponse(204, ``), nil
		case "FINALIZE":
			u.finalized = true
			if u.finalizeBody != "" {
				return jsonResponse(201, u.finalizeBody), nil
			}
			return jsonResponse(201, `{"media_id_string":"m1","size":10}`), nil
		}
		return jsonResponse(400, `{}`), nil
	}}
}

// uploadCommands lists the upload commands ft saw, in send order.
func uploadCommands(ft *fakeTransport) []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var out []string
	for _, r := range ft.requests {
		raw := string(r.Body)
		if r.Method == "GET" {
			raw = r.URL[strings.Index(r.URL, "?")+1:]
		}
		q, _ := url.ParseQuery(raw)
		out = append(out, q.Get("command"))
	}
	return out
}

func TestUploadVideoChunksAndPolls(t *testing.T) {
	srv := &uploadServer{
		finalizeBody: `{"media_id_string":"m1","processing_info":{"state":"pending","check_after_secs":1}}`,
		statusBody: func(n int) string {
			if n == 1 {
				return `{"media_id_string":"m1","processing_info":{"state":"in_progress","check_after_secs":3,"progress_percent":40}}`
			}
			return `{"media_id_string":"m1","processing_info":{"state":"succeeded","progress_percent":100}}`
		},
	}
	ft := srv.transport()
	c, slept := newTestClient(t, ft)
	authenticate(t, c)

	data := make([]byte, 12<<20)
	id, err := c.UploadMedia(context.Background(), data, MediaVideo)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)

	require.Len(t, srv.inits, 1)
	assert.Equal(t, strconv.Itoa(12<<20), srv.inits[0].Get("total_bytes"))
	assert.Equal(t, "tweet_video", srv.inits[0].Get("media_category"))
	assert.Equal(t, "video/mp4", srv.inits[0].Get("media_type"))

	assert.Equal(t, []int{0, 1, 2}, srv.segments)
	assert.Equal(t, 12<<20, srv.received)
	assert.True(t, srv.finalized)
	assert.Equal(t, 2, srv.statuses)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, *slept)
	assert.Equal(t, []string{"INIT", "APPEND", "APPEND", "APPEND", "FINALIZE", "STATUS", "STATUS"}, uploadCommands(ft))
}

func TestUploadImageSingleSegment(t *testing.T) {
	srv := &uploadServer{}
	c, slept := newTestClient(t, srv.transport(), func(cfg *ClientConfig) { cfg.UploadChunkSize = 4 })
	authenticate(t, c)

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	id, err := c.UploadMedia(context.Background(), png, MediaImage)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)

	assert.Equal(t, "image/png", srv.inits[0].Get("media_type"))
	assert.Equal(t, "tweet_image", srv.inits[0].Get("media_category"))
	assert.Equal(t, []int{0}, srv.segments)
	assert.Zero(t, srv.statuses, "no processing_info means no polling")
	assert.Empty(t, *slept)
}

func TestUploadGIFUsesChunkSize(t *testing.T) {
	srv := &uploadServer{}
	c, _ := newTestClient(t, srv.transport(), func(cfg *ClientConfig) { cfg.UploadChunkSize = 10 })
	authenticate(t, c)

	gif := append([]byte("GIF89a"), make([]byte, 19)...)
	_, err := c.UploadMedia(context.Background(), gif, MediaGIF)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", srv.inits[0].Get("media_type"))
	assert.Equal(t, "tweet_gif", srv.inits[0].Get("media_category"))
	assert.Equal(t, []int{0, 1, 2}, srv.segments)
	assert.Equal(t, 25, srv.received)
}

func TestUploadNegativeLimitsUseDefaults(t *testing.T) {
	srv := &uploadServer{
		finalizeBody: `{"media_id_string":"m1","processing_info":{"state":"pending"}}`,
		statusBody: func(int) string {
			return `{"media_id_string":"m1","processing_info":{"state":"succeeded"}}`
		},
	}
	ft := srv.transport()
	c, slept := newTestClient(t, ft, func(cfg *ClientConfig) {
		cfg.UploadChunkSize = -1
		cfg.UploadMaxPolls = -3
		cfg.UploadDefaultWait = -time.Second
	})
	authenticate(t, c)

	id, err := c.UploadMedia(context.Background(), make([]byte, 6<<20), MediaVideo)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
	assert.Equal(t, []int{0, 1}, srv.segments)
	assert.Equal(t, 6<<20, srv.received)
	assert.Equal(t, []time.Duration{5 * time.Second}, *slept)
	assert.Equal(t, []string{"INIT", "APPEND", "APPEND", "FINALIZE", "STATUS"}, uploadCommands(ft))
}

func TestUploadProcessingFailed(t *testing.T) {
	srv := &uploadServer{
		finalizeBody: `{"media_id_string":"m1","processing_info":{"state":"pending"}}`,
		statusBody: func(int) string {
			return `{"processing_info":{"state":"failed","error":{"code":1,"name":"InvalidMedia","message":"Unsupported video format"}}}`
		},
	}
	c, slept := newTestClient(t, srv.transport())
	authenticate(t, c)

	_, err := c.UploadMedia(context.Background(), make([]byte, 100), MediaVideo)
	var pf *ProcessingFailedError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "m1", pf.MediaID)
	assert.Equal(t, "InvalidMedia", pf.Name)
	assert.Equal(t, "Unsupported video format", pf.Message)
	assert.Equal(t, []time.Duration{5 * time.Second}, *slept, "default wait without check_after_secs")
}

func TestUploadProcessingTimeout(t *testing.T) {
	srv := &uploadServer{
		finalizeBody: `{"media_id_string":"m1","processing_info":{"state":"pending"}}`,
		statusBody:   func(int) string { return `{"processing_info":{"state":"in_progress"}}` },
	}
	c, slept := newTestClient(t, srv.transport())
	authenticate(t, c)

	_, err := c.UploadMedia(context.Background(), make([]byte, 100), MediaVideo)
	var pt *ProcessingTimeoutError
	require.ErrorAs(t, err, &pt)
	assert.Equal(t, 10, pt.Attempts)
	assert.Equal(t, 10, srv.statuses)
	assert.Len(t, *slept, 10)
}

func TestUploadAppendFailureStops(t *testing.T) {
	srv := &uploadServer{appendStatus: func(i int) int {
		if i == 1 {
			return 400
		}
		return 204
	}}
	c, _ := newTestClient(t, srv.transport(), func(cfg *ClientConfig) { cfg.UploadChunkSize = 10 })
	authenticate(t, c)

	_, err := c.UploadMedia(context.Background(), make([]byte, 35), MediaVideo)
	var ae *UploadAppendError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.ChunkIndex)
	assert.Equal(t, "m1", ae.MediaID)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 400, te.Status)

	assert.Equal(t, []int{0}, srv.segments)
	assert.False(t, srv.finalized)
}

func TestUploadInitFailure(t *testing.T) {
	ft := &fakeTransport{handler: func(*Request) (*Response, error) {
		return nil, errors.New("connection reset")
	}}
	c, _ := newTestClient(t, ft)
	authenticate(t, c)

	_, err := c.UploadMedia(context.Background(), []byte("data"), MediaImage)
	var ie *UploadInitError
	require.ErrorAs(t, err, &ie)
	assert.Len(t, ft.requests, 1, "nothing is retried")
}

func TestUploadRequiresAuth(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestClient(t, ft)
	_, err := c.UploadMedia(context.Background(), []byte("data"), MediaImage)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, ft.requests)
}

func TestUploadState(t *testing.T) {
	assert.Equal(t, "processing", UploadProcessing.String())
	assert.Equal(t, "unknown", UploadState(99).String())
}
