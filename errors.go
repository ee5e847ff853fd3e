package twitter

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned by operations that need a logged-in session.
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthBootstrapError reports a failed guest token acquisition.
type AuthBootstrapError struct {
	Err error
}

func (e *AuthBootstrapError) Error() string {
	return fmt.Sprintf("guest token bootstrap: %v", e.Err)
}

func (e *AuthBootstrapError) Unwrap() error { return e.Err }

// LoginError reports a failed login negotiation. Reason is the server-reported
// cause when the server gave one.
type LoginError struct {
	Subtask string
	Reason  string
	Err     error
}

func (e *LoginError) Error() string {
	msg := "login failed"
	if e.Subtask != "" {
		msg += " at " + e.Subtask
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoginError) Unwrap() error { return e.Err }

// TransportError is a network or HTTP-layer failure. Status is zero when no
// response was received.
type TransportError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError carries an error code returned inside a response body.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitter API error %d: %s", e.Code, e.Message)
}

// MalformedResponseError means the top-level shape of a response was not recognized.
type MalformedResponseError struct {
	Op     string
	Detail string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Detail)
}

// NotFoundError means the requested item is absent from the response.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// UploadInitError reports a failed INIT phase.
type UploadInitError struct {
	Err error
}

func (e *UploadInitError) Error() string { return fmt.Sprintf("upload init: %v", e.Err) }

func (e *UploadInitError) Unwrap() error { return e.Err }

// UploadAppendError reports which segment failed during APPEND.
type UploadAppendError struct {
	MediaID    string
	ChunkIndex int
	Err        error
}

func (e *UploadAppendError) Error() string {
	return fmt.Sprintf("upload append media %s segment %d: %v", e.MediaID, e.ChunkIndex, e.Err)
}

func (e *UploadAppendError) Unwrap() error { return e.Err }

// ProcessingFailedError means the server reported asynchronous processing failure.
type ProcessingFailedError struct {
	MediaID string
	Name    string
	Message string
}

func (e *ProcessingFailedError) Error() string {
	return fmt.Sprintf("media %s processing failed: %s %s", e.MediaID, e.Name, e.Message)
}

// ProcessingTimeoutError means the status poll exhausted its attempts.
type ProcessingTimeoutError struct {
	MediaID  string
	Attempts int
}

func (e *ProcessingTimeoutError) Error() string {
	return fmt.Sprintf("media %s still processing after %d status checks", e.MediaID, e.Attempts)
}

// errorClass categorizes Twitter API error responses for targeted handling.
type errorClass int

const (
	errNone          errorClass = iota
	errBanned                   // 88: rate limit abuse
	errSuspended                // 64: account suspended
	errLocked                   // 326: account locked, captcha needed
	errCSRF                     // 353: csrf token mismatch
	errAuthExpired              // 32: could not authenticate
	errBlocked                  // 161: blocked from performing action
	errNotAuthorized            // 179, 219
	errInternal                 // 131: partial failure, data may still be present
	errOther
)

type apiErrors struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// classifyError inspects a response body for known Twitter error codes.
// The first error in the body is returned alongside its class.
func classifyError(body []byte) (errorClass, *APIError) {
	var errResp apiErrors
	if json.Unmarshal(body, &errResp) != nil || len(errResp.Errors) == 0 {
		return errNone, nil
	}

	first := &APIError{Code: errResp.Errors[0].Code, Message: errResp.Errors[0].Message}
	for _, e := range errResp.Errors {
		apiErr := &APIError{Code: e.Code, Message: e.Message}
		switch e.Code {
		case 88:
			return errBanned, apiErr
		case 64:
			return errSuspended, apiErr
		case 326:
			return errLocked, apiErr
		case 353:
			return errCSRF, apiErr
		case 32:
			return errAuthExpired, apiErr
		case 161:
			return errBlocked, apiErr
		case 179, 219:
			return errNotAuthorized, apiErr
		case 131:
			return errInternal, apiErr
		}
	}
	return errOther, first
}
