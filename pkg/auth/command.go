package auth

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// CommandProvider runs an external command whose standard output is the
// header block to inject, one header per line. The output is cached for
// Interval and reported expired afterwards.
type CommandProvider struct {
	command  []string
	interval time.Duration

	// run and now are replaceable in tests.
	run func(ctx context.Context, command []string) ([]byte, error)
	now func() time.Time

	mu        sync.Mutex
	value     string
	fetchedAt time.Time
}

// NewCommandProvider creates a provider for command. A zero interval means the
// output never expires once fetched.
func NewCommandProvider(command []string, interval time.Duration) (*CommandProvider, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("token refresh command is required")
	}
	return &CommandProvider{
		command:  append([]string(nil), command...),
		interval: interval,
		run:      runCommand,
		now:      time.Now,
	}, nil
}

// CurrentToken returns the cached header lines until the refresh interval elapses.
func (p *CommandProvider) CurrentToken(_ context.Context, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.value == "" {
		return "", ErrTokenExpired
	}
	if p.interval > 0 && p.now().Sub(p.fetchedAt) >= p.interval {
		return "", ErrTokenExpired
	}
	return p.value, nil
}

// Refresh runs the command and caches its normalized output.
func (p *CommandProvider) Refresh(ctx context.Context, _ string) (string, error) {
	out, err := p.run(ctx, p.command)
	if err != nil {
		return "", fmt.Errorf("token refresh command failed: %w", err)
	}
	value := normalizeLines(string(out))
	if value == "" {
		return "", fmt.Errorf("token refresh command produced no header lines")
	}

	p.mu.Lock()
	p.value = value
	p.fetchedAt = p.now()
	p.mu.Unlock()

	return value, nil
}

func runCommand(ctx context.Context, command []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
