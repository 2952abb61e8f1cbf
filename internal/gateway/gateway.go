// Package gateway delivers run reports to chat channels and accepts tasks from
// them.
package gateway

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rahul/conductor/internal/report"
)

// Notifier delivers a text message to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Messenger is a gateway with its own receive loop (Telegram, Discord, etc.)
type Messenger interface {
	Notifier
	// Start blocks until ctx is cancelled or the gateway fails.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Runner executes a task description and returns its report.
type Runner interface {
	Run(ctx context.Context, description, sourceLabel string) (*report.Report, error)
}

// Multi fans a notification out to every notifier. All notifiers are tried;
// their errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// chunk splits text into pieces of at most limit bytes, preferring line
// boundaries. Lines longer than limit are cut on rune boundaries.
func chunk(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			out = append(out, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > limit {
			flush()
		}
		cur.WriteString(line)
	}
	flush()
	return out
}
