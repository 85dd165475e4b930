// Package transport sends rendered requests and returns parsed responses.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Response is what a transport hands back for one request.
type Response struct {
	StatusCode int           `json:"status_code"`
	Status     string        `json:"status"`
	Header     http.Header   `json:"headers"`
	Body       []byte        `json:"-"`
	Duration   time.Duration `json:"duration"`
}

// Error wraps failures to deliver a request or read its response.
type Error struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transport %s: timeout: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap converts err into an *Error unless it already is one.
func Wrap(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Op: op, Timeout: isTimeout(err), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	if errors.As(err, &t) && t.Timeout() {
		return true
	}
	return false
}
