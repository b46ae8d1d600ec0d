package remote

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v82/github"
)

// NotFoundError is returned when a remote path does not exist or has the wrong shape
// (a directory where a file was expected, or the reverse). Callers use it to drive
// fallback logic.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("remote path not found: %s", e.Path)
}

// RateLimitOrAuthError is returned for 4xx responses other than 404.
type RateLimitOrAuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *RateLimitOrAuthError) Error() string {
	return fmt.Sprintf("remote rejected request (%d): %s", e.Status, e.Message)
}

func (e *RateLimitOrAuthError) Unwrap() error { return e.Err }

// TransportError is returned when the remote could not be reached or answered with a
// server error.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: remote error (%d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError is returned when a response body cannot be decoded into the
// expected shape.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// classifyError maps go-github and transport failures onto the remote error taxonomy.
func classifyError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var (
		rateErr   *github.RateLimitError
		abuseErr  *github.AbuseRateLimitError
		respErr   *github.ErrorResponse
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		b64Err    base64.CorruptInputError
	)

	switch {
	case errors.As(err, &rateErr):
		return &RateLimitOrAuthError{Status: statusOf(rateErr.Response), Message: rateErr.Message, Err: err}
	case errors.As(err, &abuseErr):
		return &RateLimitOrAuthError{Status: statusOf(abuseErr.Response), Message: abuseErr.Message, Err: err}
	case errors.As(err, &respErr):
		status := statusOf(respErr.Response)
		switch {
		case status == http.StatusNotFound:
			return &NotFoundError{Path: path}
		case status >= 400 && status < 500:
			return &RateLimitOrAuthError{Status: status, Message: respErr.Message, Err: err}
		default:
			return &TransportError{Op: op, Status: status, Err: err}
		}
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.As(err, &b64Err):
		return &MalformedResponseError{Op: op, Err: err}
	}

	return &TransportError{Op: op, Err: err}
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
