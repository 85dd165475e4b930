package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

// Config describes where and how a Raw transport connects.
type Config struct {
	// Target is the host:port every request is written to.
	Target             string
	TLS                bool
	InsecureSkipVerify bool
	// ServerName overrides the TLS SNI name; defaults to the Target host.
	ServerName  string
	DialTimeout time.Duration
	// RateLimit caps sends per second; zero disables pacing.
	RateLimit float64
	Burst     int
}

// Raw writes rendered request bytes verbatim to a single connection and parses
// the HTTP/1.1 reply. It adds no headers of its own. A Raw is safe for
// concurrent use but serializes sends on its connection.
type Raw struct {
	cfg     Config
	limiter *rate.Limiter
	dialer  *net.Dialer

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	reused bool
}

// NewRaw creates a transport for cfg. No connection is opened until the first Send.
func NewRaw(cfg Config) (*Raw, error) {
	if cfg.Target == "" {
		return nil, fmt.Errorf("transport target is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Target); err != nil {
		return nil, fmt.Errorf("invalid transport target %q: %w", cfg.Target, err)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	t := &Raw{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: cfg.DialTimeout},
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return t, nil
}

// Send writes raw to the connection and reads one response. The context
// deadline bounds the whole exchange.
func (t *Raw) Send(ctx context.Context, raw []byte) (*Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, Wrap("wait", err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	startTime := time.Now()
	resp, err := t.exchange(ctx, raw)
	if err != nil && t.reused && isStale(err) {
		// The server closed an idle keep-alive connection; one fresh dial.
		t.closeLocked()
		resp, err = t.exchange(ctx, raw)
	}
	if err != nil {
		t.closeLocked()
		return nil, err
	}
	resp.Duration = time.Since(startTime)
	return resp, nil
}

func (t *Raw) exchange(ctx context.Context, raw []byte) (*Response, error) {
	if err := t.connectLocked(ctx); err != nil {
		return nil, err
	}

	deadline, _ := ctx.Deadline()
	if err := t.conn.SetDeadline(deadline); err != nil {
		return nil, Wrap("deadline", err)
	}

	if _, err := t.conn.Write(raw); err != nil {
		return nil, Wrap("write", err)
	}

	httpResp, err := http.ReadResponse(t.reader, &http.Request{Method: requestMethod(raw)})
	if err != nil {
		return nil, Wrap("read", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, Wrap("read body", err)
	}

	if httpResp.Close {
		t.closeLocked()
	} else {
		t.reused = true
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		Body:       bodyBytes,
	}, nil
}

func (t *Raw) connectLocked(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}

	conn, err := t.dialer.DialContext(ctx, "tcp", t.cfg.Target)
	if err != nil {
		return Wrap("dial", err)
	}

	if t.cfg.TLS {
		serverName := t.cfg.ServerName
		if serverName == "" {
			serverName, _, _ = net.SplitHostPort(t.cfg.Target)
		}
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: t.cfg.InsecureSkipVerify,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return Wrap("tls handshake", err)
		}
		conn = tlsConn
	}

	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.reused = false
	return nil
}

func (t *Raw) closeLocked() {
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = nil
	t.reader = nil
	t.reused = false
}

// Close releases the connection.
func (t *Raw) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	return nil
}

// requestMethod reads the method token of the request line so HEAD responses
// are parsed without a body.
func requestMethod(raw []byte) string {
	if i := bytes.IndexByte(raw, ' '); i > 0 {
		return string(raw[:i])
	}
	return http.MethodGet
}

// isStale reports whether err means the peer dropped an idle keep-alive
// connection, either by closing it or by resetting it.
func isStale(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// Func adapts a function to the transport contract.
type Func func(ctx context.Context, raw []byte) (*Response, error)

// Send calls f.
func (f Func) Send(ctx context.Context, raw []byte) (*Response, error) {
	return f(ctx, raw)
}
