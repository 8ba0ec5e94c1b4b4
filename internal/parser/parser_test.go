package parser

import (
	"strings"
	"testing"

	"github.com/ctirelay/relay/internal/config"
	"github.com/ctirelay/relay/internal/envelope"
)

func TestApply_NilSpecReturnsUnchanged(t *testing.T) {
	env := &envelope.Envelope{Text: "line one\nline two"}
	out := Apply(env, nil)
	if out != env {
		t.Fatal("Apply(nil) should return the same envelope pointer")
	}
}

func TestApply_TrimFrontAndBack(t *testing.T) {
	env := &envelope.Envelope{Text: "header\nbody one\nbody two\nfooter"}
	spec := &config.ParserSpec{Kind: config.ParserTrim, TrimFront: 1, TrimBack: 1}

	out := Apply(env, spec)
	if out.Text != "body one\nbody two" {
		t.Fatalf("Text = %q", out.Text)
	}
	if env.Text != "header\nbody one\nbody two\nfooter" {
		t.Fatal("original envelope must not be mutated")
	}
}

func TestApply_TrimToEmptyUsesPlaceholder(t *testing.T) {
	env := &envelope.Envelope{Text: "only line"}
	spec := &config.ParserSpec{Kind: config.ParserTrim, TrimFront: 1, TrimBack: 0}

	out := Apply(env, spec)
	if out.Text != emptyResultPlaceholder {
		t.Fatalf("Text = %q, want placeholder", out.Text)
	}
}

func TestApply_KeepFirstTruncatesWithTrailer(t *testing.T) {
	env := &envelope.Envelope{Text: "a\nb\nc\nd\ne"}
	spec := &config.ParserSpec{Kind: config.ParserKeepFirst, KeepFirst: 2}

	out := Apply(env, spec)
	if !strings.HasPrefix(out.Text, "a\nb\n") {
		t.Fatalf("Text = %q, want to start with kept lines", out.Text)
	}
	if !strings.Contains(out.Text, "3 more line") {
		t.Fatalf("Text = %q, want trailer naming omitted count", out.Text)
	}
}

func TestApply_KeepFirstNoTruncationNoTrailer(t *testing.T) {
	env := &envelope.Envelope{Text: "a\nb"}
	spec := &config.ParserSpec{Kind: config.ParserKeepFirst, KeepFirst: 5}

	out := Apply(env, spec)
	if out.Text != "a\nb" {
		t.Fatalf("Text = %q, want unchanged when k >= line count", out.Text)
	}
}
