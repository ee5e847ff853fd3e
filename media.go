package twitter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// UploadState is the phase an upload has reached.
type UploadState int

const (
	UploadInitialized UploadState = iota
	UploadAppending
	UploadFinalized
	UploadProcessing
	UploadSucceeded
	UploadFailed
)

func (s UploadState) String() string {
	switch s {
	case UploadInitialized:
		return "initialized"
	case UploadAppending:
		return "appending"
	case UploadFinalized:
		return "finalized"
	case UploadProcessing:
		return "processing"
	case UploadSucceeded:
		return "succeeded"
	case UploadFailed:
		return "failed"
	}
	return "unknown"
}

// uploadSession tracks one chunked upload from INIT to a terminal state.
type uploadSession struct {
	c        *Client
	kind     MediaKind
	data     []byte
	mimeType string
	mediaID  string
	state    UploadState
}

// UploadMedia uploads data and returns a media id usable in PostOptions.MediaIDs.
// Videos and GIFs are sent in UploadChunkSize segments and then polled until
// server-side processing finishes.
func (c *Client) UploadMedia(ctx context.Context, data []byte, kind MediaKind) (string, error) {
	if err := c.requireAuth("upload"); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", &UploadInitError{Err: errors.New("empty media")}
	}
	u := &uploadSession{c: c, kind: kind, data: data, mimeType: detectMediaType(data, kind)}
	if err := u.run(ctx); err != nil {
		u.transition(UploadFailed)
		return "", err
	}
	slog.Info("media uploaded", slog.String("media_id", u.mediaID), slog.String("kind", kind.String()), slog.Int("bytes", len(data)))
	return u.mediaID, nil
}

func detectMediaType(data []byte, kind MediaKind) string {
	mt := http.DetectContentType(data)
	if mt == "application/octet-stream" {
		switch kind {
		case MediaVideo:
			return "video/mp4"
		case MediaGIF:
			return "image/gif"
		}
		return "image/jpeg"
	}
	return mt
}

func (u *uploadSession) transition(s UploadState) {
	slog.Debug("upload state", slog.String("media_id", u.mediaID), slog.String("from", u.state.String()), slog.String("to", s.String()))
	u.state = s
}

func (u *uploadSession) run(ctx context.Context) error {
	if err := u.init(ctx); err != nil {
		return err
	}
	if err := u.append(ctx); err != nil {
		return err
	}
	info, err := u.finalize(ctx)
	if err != nil {
		return err
	}
	return u.await(ctx, info)
}

func (u *uploadSession) init(ctx context.Context) error {
	form := url.Values{}
	form.Set("command", "INIT")
	form.Set("total_bytes", strconv.Itoa(len(u.data)))
	form.Set("media_type", u.mimeType)
	form.Set("media_category", u.kind.category())

	body, err := u.c.doForm(ctx, "upload INIT", uploadURL, form)
	if err != nil {
		return &UploadInitError{Err: err}
	}
	id := gjson.GetBytes(body, "media_id_string").String()
	if id == "" {
		return &UploadInitError{Err: &MalformedResponseError{Op: "upload INIT", Detail: "no media_id_string"}}
	}
	u.mediaID = id
	u.transition(UploadInitialized)
	return nil
}

// append sends the segments strictly in order; the first failure stops the upload.
func (u *uploadSession) append(ctx context.Context) error {
	u.transition(UploadAppending)
	chunk := len(u.data)
	if u.kind != MediaImage {
		chunk = u.c.cfg.UploadChunkSize
	}
	for index, off := 0, 0; off < len(u.data); index, off = index+1, off+chunk {
		end := min(off+chunk, len(u.data))
		form := url.Values{}
		form.Set("command", "APPEND")
		form.Set("media_id", u.mediaID)
		form.Set("segment_index", strconv.Itoa(index))
		form.Set("media_data", base64.StdEncoding.EncodeToString(u.data[off:end]))

		if _, err := u.c.doForm(ctx, "upload APPEND", uploadURL, form); err != nil {
			return &UploadAppendError{MediaID: u.mediaID, ChunkIndex: index, Err: err}
		}
		slog.Debug("segment uploaded", slog.String("media_id", u.mediaID), slog.Int("segment", index), slog.Int("bytes", end-off))
	}
	return nil
}

func (u *uploadSession) finalize(ctx context.Context) (gjson.Result, error) {
	form := url.Values{}
	form.Set("command", "FINALIZE")
	form.Set("media_id", u.mediaID)
	body, err := u.c.doForm(ctx, "upload FINALIZE", uploadURL, form)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("media %s: %w", u.mediaID, err)
	}
	u.transition(UploadFinalized)
	return gjson.GetBytes(body, "processing_info"), nil
}

// await polls STATUS until processing ends, waiting check_after_secs between
// polls and giving up after UploadMaxPolls checks.
func (u *uploadSession) await(ctx context.Context, info gjson.Result) error {
	for attempt := 0; ; attempt++ {
		done, err := u.evaluate(info)
		if done || err != nil {
			return err
		}
		if attempt >= u.c.cfg.UploadMaxPolls {
			return &ProcessingTimeoutError{MediaID: u.mediaID, Attempts: attempt}
		}
		wait := u.c.cfg.UploadDefaultWait
		if secs := info.Get("check_after_secs").Int(); secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
		if err := u.c.cfg.Sleep(ctx, wait); err != nil {
			return err
		}

		q := url.Values{}
		q.Set("command", "STATUS")
		q.Set("media_id", u.mediaID)
		body, err := u.c.doGET(ctx, "upload STATUS", uploadURL+"?"+q.Encode())
		if err != nil {
			return fmt.Errorf("media %s: %w", u.mediaID, err)
		}
		info = gjson.GetBytes(body, "processing_info")
	}
}

// evaluate reports whether processing has ended according to info.
func (u *uploadSession) evaluate(info gjson.Result) (bool, error) {
	if !info.Exists() {
		u.transition(UploadSucceeded)
		return true, nil
	}
	switch state := info.Get("state").String(); state {
	case "succeeded":
		u.transition(UploadSucceeded)
		return true, nil
	case "failed":
		return true, &ProcessingFailedError{
			MediaID: u.mediaID,
			Name:    info.Get("error.name").String(),
			Message: info.Get("error.message").String(),
		}
	default:
		if u.state != UploadProcessing {
			u.transition(UploadProcessing)
		}
		slog.Debug("media processing", slog.String("media_id", u.mediaID), slog.String("state", state), slog.Int64("progress", info.Get("progress_percent").Int()))
		return false, nil
	}
}
