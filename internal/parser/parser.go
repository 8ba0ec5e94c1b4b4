// Package parser applies a per-rule line-trimming transform to an
// envelope's text before formatting (spec.md §4.7). It never mutates its
// input; other destinations routing the same envelope see the original.
package parser

import (
	"fmt"
	"strings"

	"github.com/ctirelay/relay/internal/config"
	"github.com/ctirelay/relay/internal/envelope"
)

const emptyResultPlaceholder = "[content removed by parser]"

// Apply returns a copy of env with its Text transformed per spec. A nil
// spec (or ParserNone) returns env unchanged.
func Apply(env *envelope.Envelope, spec *config.ParserSpec) *envelope.Envelope {
	if spec == nil || spec.Kind == config.ParserNone {
		return env
	}

	out := env.Clone()
	switch spec.Kind {
	case config.ParserTrim:
		out.Text = trimLines(env.Text, spec.TrimFront, spec.TrimBack)
	case config.ParserKeepFirst:
		out.Text = keepFirstLines(env.Text, spec.KeepFirst)
	}
	return out
}

func trimLines(text string, front, back int) string {
	lines := strings.Split(text, "\n")

	start := front
	if start > len(lines) {
		start = len(lines)
	}
	end := len(lines) - back
	if end < start {
		end = start
	}

	kept := lines[start:end]
	if len(kept) == 0 {
		return emptyResultPlaceholder
	}
	return strings.Join(kept, "\n")
}

func keepFirstLines(text string, k int) string {
	lines := strings.Split(text, "\n")
	if k >= len(lines) {
		return text
	}

	omitted := len(lines) - k
	kept := lines[:k]
	trailer := fmt.Sprintf("… %d more line(s) omitted", omitted)
	return strings.Join(kept, "\n") + "\n" + trailer
}
