// Package auth supplies the header lines that AuthToken primitives render to.
// Providers report expiry with ErrTokenExpired so the resolver can refresh and
// retry once.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrTokenExpired is returned by CurrentToken when the token must be refreshed.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrUnknownTag is returned when no provider serves the requested tag.
	ErrUnknownTag = errors.New("auth: unknown token tag")
)

// TokenProvider hands out the current token for a tag and can refresh it.
type TokenProvider interface {
	// CurrentToken returns the rendered token, or ErrTokenExpired.
	CurrentToken(ctx context.Context, tag string) (string, error)
	// Refresh obtains a new token; an error means the refresh was rejected.
	Refresh(ctx context.Context, tag string) (string, error)
}

// HeaderLine formats a token as a single CRLF-terminated header line,
// e.g. "Authorization: Bearer abc\r\n".
func HeaderLine(header, scheme, token string) string {
	if header == "" {
		header = "Authorization"
	}
	value := token
	if scheme != "" {
		value = scheme + " " + token
	}
	return header + ": " + value + "\r\n"
}

// normalizeLines turns provider output into CRLF-terminated header lines.
func normalizeLines(out string) string {
	var sb strings.Builder
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\r\n")
	}
	return sb.String()
}

// StaticProvider serves fixed tokens that never expire.
type StaticProvider struct {
	tokens map[string]string
}

// NewStaticProvider creates a provider from tag -> rendered header lines.
func NewStaticProvider(tokens map[string]string) *StaticProvider {
	copied := make(map[string]string, len(tokens))
	for tag, v := range tokens {
		copied[tag] = v
	}
	return &StaticProvider{tokens: copied}
}

// CurrentToken returns the configured value for tag. It never expires.
func (p *StaticProvider) CurrentToken(_ context.Context, tag string) (string, error) {
	v, ok := p.tokens[tag]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	return v, nil
}

// Refresh returns the configured value unchanged.
func (p *StaticProvider) Refresh(ctx context.Context, tag string) (string, error) {
	return p.CurrentToken(ctx, tag)
}

// Mux routes each tag to its own provider.
type Mux struct {
	mu        sync.RWMutex
	providers map[string]TokenProvider
}

// NewMux creates an empty router.
func NewMux() *Mux {
	return &Mux{providers: make(map[string]TokenProvider)}
}

// Handle registers p for tag, replacing any previous provider.
func (m *Mux) Handle(tag string, p TokenProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[tag] = p
}

// Tags lists the registered tags.
func (m *Mux) Tags() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tags := make([]string, 0, len(m.providers))
	for tag := range m.providers {
		tags = append(tags, tag)
	}
	return tags
}

func (m *Mux) lookup(tag string) (TokenProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	return p, nil
}

// CurrentToken delegates to the provider registered for tag.
func (m *Mux) CurrentToken(ctx context.Context, tag string) (string, error) {
	p, err := m.lookup(tag)
	if err != nil {
		return "", err
	}
	return p.CurrentToken(ctx, tag)
}

// Refresh delegates to the provider registered for tag.
func (m *Mux) Refresh(ctx context.Context, tag string) (string, error) {
	p, err := m.lookup(tag)
	if err != nil {
		return "", err
	}
	return p.Refresh(ctx, tag)
}
