package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func target(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestRaw_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Method", r.Method)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"path": %q, "body": %q}`, r.URL.Path, string(body))
	}))
	defer srv.Close()

	tr, err := NewRaw(Config{Target: target(srv)})
	require.NoError(t, err)
	defer tr.Close()

	raw := "POST /pokemon HTTP/1.1\r\nHost: test\r\nContent-Length: 7\r\n\r\npikachu"
	resp, err := tr.Send(context.Background(), []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "POST", resp.Header.Get("X-Method"))
	assert.JSONEq(t, `{"path": "/pokemon", "body": "pikachu"}`, string(resp.Body))
	assert.Greater(t, resp.Duration, time.Duration(0))
}

func TestRaw_KeepAliveAndReconnect(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/close" {
			w.Header().Set("Connection", "close")
		}
		fmt.Fprint(w, "ok")
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			conns.Add(1)
		}
	}
	srv.Start()
	defer srv.Close()

	tr, err := NewRaw(Config{Target: target(srv)})
	require.NoError(t, err)
	defer tr.Close()

	send := func(path string) {
		t.Helper()
		resp, err := tr.Send(context.Background(), []byte("GET "+path+" HTTP/1.1\r\nHost: test\r\n\r\n"))
		require.NoError(t, err)
		assert.Equal(t, "ok", string(resp.Body))
	}

	send("/a")
	send("/b")
	assert.Equal(t, int32(1), conns.Load())

	send("/close")
	send("/c")
	assert.Equal(t, int32(2), conns.Load())
}

func TestRaw_RedialAfterReset(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var accepted atomic.Int32
	reset := make(chan struct{})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			n := accepted.Add(1)
			go func(conn net.Conn) {
				defer conn.Close()
				br := bufio.NewReader(conn)
				for {
					req, err := http.ReadRequest(br)
					if err != nil {
						return
					}
					_, _ = io.Copy(io.Discard, req.Body)
					if _, err := io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"); err != nil {
						return
					}
					if n == 1 {
						// Drop the idle keep-alive with an RST instead of a FIN.
						_ = conn.(*net.TCPConn).SetLinger(0)
						_ = conn.Close()
						close(reset)
						return
					}
				}
			}(conn)
		}
	}()

	tr, err := NewRaw(Config{Target: ln.Addr().String()})
	require.NoError(t, err)
	defer tr.Close()

	for i := 0; i < 2; i++ {
		resp, err := tr.Send(context.Background(), []byte("GET /pokemon HTTP/1.1\r\nHost: test\r\n\r\n"))
		require.NoError(t, err)
		assert.Equal(t, "ok", string(resp.Body))
		if i == 0 {
			<-reset
		}
	}
	assert.Equal(t, int32(2), accepted.Load())
}

func TestIsStale(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "eof", err: Wrap("read", io.EOF), want: true},
		{name: "unexpected eof", err: Wrap("read", io.ErrUnexpectedEOF), want: true},
		{name: "closed", err: Wrap("write", net.ErrClosed), want: true},
		{name: "reset on read", err: Wrap("read", &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}), want: true},
		{name: "broken pipe on write", err: Wrap("write", &net.OpError{Op: "write", Net: "tcp", Err: os.NewSyscallError("write", syscall.EPIPE)}), want: true},
		{name: "refused", err: Wrap("dial", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)})},
		{name: "deadline", err: Wrap("read", context.DeadlineExceeded)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isStale(tt.err))
		})
	}
}

func TestRaw_HeadHasNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "42")
	}))
	defer srv.Close()

	tr, err := NewRaw(Config{Target: target(srv)})
	require.NoError(t, err)
	defer tr.Close()

	resp, err := tr.Send(context.Background(), []byte("HEAD / HTTP/1.1\r\nHost: test\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Body)
}

func TestRaw_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tr, err := NewRaw(Config{Target: target(srv)})
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = tr.Send(ctx, []byte("GET /slow HTTP/1.1\r\nHost: test\r\n\r\n"))
	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.True(t, terr.Timeout)
}

func TestRaw_RateLimitHonorsContext(t *testing.T) {
	tr, err := NewRaw(Config{Target: "127.0.0.1:1", RateLimit: 0.001})
	require.NoError(t, err)

	// The first token of the burst is free; the second would wait far longer
	// than the deadline.
	tr.limiter.Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = tr.Send(ctx, []byte("GET / HTTP/1.1\r\n\r\n"))
	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "wait", terr.Op)
}

func TestNewRaw_Validation(t *testing.T) {
	_, err := NewRaw(Config{})
	assert.Error(t, err)

	_, err = NewRaw(Config{Target: "no-port"})
	assert.Error(t, err)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap("send", nil))

	err := Wrap("send", context.DeadlineExceeded)
	assert.True(t, err.Timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	inner := &Error{Op: "read", Err: io.EOF}
	assert.Same(t, inner, Wrap("send", fmt.Errorf("wrapped: %w", inner)))

	assert.False(t, Wrap("dial", errors.New("refused")).Timeout)
}
