// Package report summarizes a run: one outcome per request with the error
// kind and the tag or producer that caused any failure.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blackcoderx/restseq/pkg/deps"
	"github.com/blackcoderx/restseq/pkg/extract"
	"github.com/blackcoderx/restseq/pkg/grammar"
	"github.com/blackcoderx/restseq/pkg/resolver"
	"github.com/blackcoderx/restseq/pkg/sequencer"
	"github.com/blackcoderx/restseq/pkg/transport"
	"github.com/charmbracelet/lipgloss"
)

// Error kinds as they appear in summaries.
const (
	KindUnresolvedTag    = "unresolved_tag"
	KindAuthRefresh      = "auth_refresh"
	KindCyclicDependency = "cyclic_dependency"
	KindExtractionMiss   = "extraction_miss"
	KindTransport        = "transport"
	KindTimeout          = "timeout"
	KindDependency       = "dependency_failed"
	KindCancelled        = "cancelled"
	KindOther            = "error"
)

// Outcome is the final status of one request.
type Outcome struct {
	RequestID  string           `json:"request_id"`
	Status     sequencer.Status `json:"status"`
	Kind       string           `json:"kind,omitempty"`
	Cause      string           `json:"cause,omitempty"`
	Error      string           `json:"error,omitempty"`
	StatusCode int              `json:"status_code,omitempty"`
	Duration   time.Duration    `json:"duration"`
	Misses     []extract.Miss   `json:"misses,omitempty"`
}

// Summary is the result of an entire run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Grammar   string        `json:"grammar"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Outcomes  []Outcome     `json:"outcomes"`
}

// Summarize converts the steps of a run into a Summary.
func Summarize(runID, grammarName string, start, end time.Time, steps []sequencer.Step) *Summary {
	s := &Summary{
		RunID:     runID,
		Grammar:   grammarName,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Total:     len(steps),
		Outcomes:  make([]Outcome, 0, len(steps)),
	}

	for _, step := range steps {
		o := Outcome{
			RequestID: step.RequestID,
			Status:    step.Status,
			Duration:  step.Duration,
			Misses:    step.Misses,
		}
		if step.Response != nil {
			o.StatusCode = step.Response.StatusCode
		}
		if step.Err != nil {
			o.Kind, o.Cause = Classify(step.Err)
			o.Error = step.Err.Error()
		} else if len(step.Misses) > 0 {
			o.Kind = KindExtractionMiss
			tags := make([]string, 0, len(step.Misses))
			for _, m := range step.Misses {
				tags = append(tags, m.Tag)
			}
			o.Cause = strings.Join(tags, ", ")
		}

		switch step.Status {
		case sequencer.StatusSucceeded:
			s.Succeeded++
		case sequencer.StatusFailed:
			s.Failed++
		case sequencer.StatusSkipped:
			s.Skipped++
		}
		s.Outcomes = append(s.Outcomes, o)
	}
	return s
}

// Classify returns the error kind of err and the tag or request that caused it.
func Classify(err error) (kind, cause string) {
	var (
		depErr   *sequencer.DependencyFailedError
		unresErr *grammar.UnresolvedTagError
		authErr  *resolver.AuthRefreshError
		cycleErr *deps.CyclicDependencyError
		transErr *transport.Error
		missErr  extract.Miss
	)

	// Dependency first: it wraps the producer's own error.
	switch {
	case errors.As(err, &depErr):
		return KindDependency, fmt.Sprintf("%s (tag %s)", depErr.Producer, depErr.Tag)
	case errors.Is(err, sequencer.ErrCancelled):
		return KindCancelled, ""
	case errors.As(err, &unresErr):
		return KindUnresolvedTag, unresErr.Tag
	case errors.As(err, &authErr):
		return KindAuthRefresh, authErr.Tag
	case errors.As(err, &cycleErr):
		return KindCyclicDependency, strings.Join(cycleErr.Requests, ", ")
	case errors.As(err, &transErr):
		if transErr.Timeout {
			return KindTimeout, transErr.Op
		}
		return KindTransport, transErr.Op
	case errors.As(err, &missErr):
		return KindExtractionMiss, missErr.Tag
	default:
		return KindOther, ""
	}
}

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func badge(status sequencer.Status, color bool) string {
	var label string
	var style lipgloss.Style
	switch status {
	case sequencer.StatusSucceeded:
		label, style = "✓", passStyle
	case sequencer.StatusFailed:
		label, style = "✗", failStyle
	default:
		label, style = "-", skipStyle
	}
	if !color {
		return label
	}
	return style.Render(label)
}

// Format renders the summary as plain text; color adds ANSI styling.
func Format(s *Summary, color bool) string {
	var sb strings.Builder

	// Header
	if s.Succeeded == s.Total {
		sb.WriteString(fmt.Sprintf("%s Run %s: %s - ALL SUCCEEDED\n", badge(sequencer.StatusSucceeded, color), s.RunID, s.Grammar))
	} else {
		sb.WriteString(fmt.Sprintf("%s Run %s: %s - FAILURES DETECTED\n", badge(sequencer.StatusFailed, color), s.RunID, s.Grammar))
	}
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")

	// Summary
	sb.WriteString(fmt.Sprintf("Total: %d requests\n", s.Total))
	sb.WriteString(fmt.Sprintf("Succeeded: %d\n", s.Succeeded))
	sb.WriteString(fmt.Sprintf("Failed: %d\n", s.Failed))
	sb.WriteString(fmt.Sprintf("Skipped: %d\n", s.Skipped))
	sb.WriteString(fmt.Sprintf("Duration: %v\n\n", s.Duration))

	sb.WriteString("Requests:\n")
	sb.WriteString(strings.Repeat("-", 60) + "\n")
	for i, o := range s.Outcomes {
		sb.WriteString(fmt.Sprintf("%d. %s %s [%s]", i+1, badge(o.Status, color), o.RequestID, o.Status))
		if o.StatusCode != 0 {
			sb.WriteString(fmt.Sprintf(" HTTP %d", o.StatusCode))
		}
		sb.WriteString(fmt.Sprintf(" (%v)\n", o.Duration))
		if o.Kind != "" {
			sb.WriteString(fmt.Sprintf("   %s", o.Kind))
			if o.Cause != "" {
				sb.WriteString(": " + o.Cause)
			}
			sb.WriteString("\n")
		}
		if o.Error != "" {
			sb.WriteString("   Error: " + o.Error + "\n")
		}
	}
	return sb.String()
}

// Markdown renders the summary as a markdown document for terminal rendering.
func Markdown(s *Summary) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Run `%s`\n\n", s.RunID))
	sb.WriteString(fmt.Sprintf("Grammar **%s**: %d requests, %d succeeded, %d failed, %d skipped in %v.\n\n",
		s.Grammar, s.Total, s.Succeeded, s.Failed, s.Skipped, s.Duration.Round(time.Millisecond)))

	sb.WriteString("| # | Request | Status | HTTP | Kind | Cause |\n")
	sb.WriteString("|---|---------|--------|------|------|-------|\n")
	for i, o := range s.Outcomes {
		code := ""
		if o.StatusCode != 0 {
			code = fmt.Sprintf("%d", o.StatusCode)
		}
		sb.WriteString(fmt.Sprintf("| %d | `%s` | %s | %s | %s | %s |\n",
			i+1, o.RequestID, o.Status, code, o.Kind, escapeCell(o.Cause)))
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
