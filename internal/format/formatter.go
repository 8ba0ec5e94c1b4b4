// Package format renders a (possibly parser-transformed) envelope into a
// destination-ready string, in markdown or HTML-subset variants (spec.md
// §4.8). Both variants include the same fields; they differ only in markup.
package format

import (
	"fmt"
	"html"
	"strings"

	"github.com/ctirelay/relay/internal/envelope"
)

// Variant selects the markup dialect a Formatter emits.
type Variant int

const (
	Markdown Variant = iota
	HTML
)

// Formatter renders envelopes for one destination kind/variant.
type Formatter struct {
	variant Variant
}

// NewFormatter returns a Formatter for the given markup variant.
func NewFormatter(variant Variant) *Formatter {
	return &Formatter{variant: variant}
}

// Render produces the wire-ready string for env, including matchedKeywords
// (already resolved by the caller) as inline-code annotations.
func (f *Formatter) Render(env *envelope.Envelope, matchedKeywords []string) string {
	var b strings.Builder

	f.writeHeader(&b, env)
	f.writeKeywords(&b, matchedKeywords)
	f.writeReplyContext(&b, env.ReplyContext)
	f.writeBody(&b, env.Text)
	f.writeOCR(&b, env.OCRText)
	f.writeMediaNote(&b, env)

	return strings.TrimRight(b.String(), "\n")
}

func (f *Formatter) writeHeader(b *strings.Builder, env *envelope.Envelope) {
	channel := env.ChannelName
	if channel == "" {
		channel = env.ChannelID
	}

	switch f.variant {
	case HTML:
		fmt.Fprintf(b, "<b>%s</b>", html.EscapeString(channel))
		if env.Author != "" {
			fmt.Fprintf(b, " — %s", html.EscapeString(env.Author))
		}
		b.WriteString("\n")
		fmt.Fprintf(b, "<i>%s</i>\n", env.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	default:
		fmt.Fprintf(b, "**%s**", escapeMarkdown(channel))
		if env.Author != "" {
			fmt.Fprintf(b, " — %s", escapeMarkdown(env.Author))
		}
		b.WriteString("\n")
		fmt.Fprintf(b, "_%s_\n", env.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	if url := env.MetadataValue("defanged_source_url"); url != "" {
		switch f.variant {
		case HTML:
			fmt.Fprintf(b, "%s\n", html.EscapeString(url))
		default:
			fmt.Fprintf(b, "%s\n", escapeMarkdown(url))
		}
	}

	if label := mediaKindLabel(env.MediaKind, env.HasMedia); label != "" {
		switch f.variant {
		case HTML:
			fmt.Fprintf(b, "<i>%s</i>\n", html.EscapeString(label))
		default:
			fmt.Fprintf(b, "_%s_\n", escapeMarkdown(label))
		}
	}
}

func (f *Formatter) writeKeywords(b *strings.Builder, keywords []string) {
	if len(keywords) == 0 {
		return
	}
	b.WriteString("matched: ")
	for i, kw := range keywords {
		if i > 0 {
			b.WriteString(" ")
		}
		switch f.variant {
		case HTML:
			fmt.Fprintf(b, "<code>%s</code>", html.EscapeString(kw))
		default:
			fmt.Fprintf(b, "`%s`", strings.ReplaceAll(kw, "`", "'"))
		}
	}
	b.WriteString("\n")
}

func (f *Formatter) writeReplyContext(b *strings.Builder, rc *envelope.ReplyContext) {
	if rc == nil {
		return
	}

	label := mediaKindLabel(rc.MediaKind, rc.HasMedia)
	switch f.variant {
	case HTML:
		fmt.Fprintf(b, "<blockquote>in reply to <b>%s</b> (%s)", html.EscapeString(rc.Author),
			rc.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
		if label != "" {
			fmt.Fprintf(b, " %s", html.EscapeString(label))
		}
		if rc.Text != "" {
			fmt.Fprintf(b, ": %s", html.EscapeString(rc.Text))
		}
		b.WriteString("</blockquote>\n")
	default:
		fmt.Fprintf(b, "> in reply to **%s** (%s)", escapeMarkdown(rc.Author),
			rc.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
		if label != "" {
			fmt.Fprintf(b, " %s", label)
		}
		if rc.Text != "" {
			fmt.Fprintf(b, ": %s", escapeMarkdown(rc.Text))
		}
		b.WriteString("\n")
	}
}

func (f *Formatter) writeBody(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	switch f.variant {
	case HTML:
		fmt.Fprintf(b, "%s\n", html.EscapeString(text))
	default:
		fmt.Fprintf(b, "%s\n", escapeMarkdown(text))
	}
}

func (f *Formatter) writeOCR(b *strings.Builder, ocrText string) {
	if ocrText == "" {
		return
	}
	switch f.variant {
	case HTML:
		fmt.Fprintf(b, "<blockquote>%s</blockquote>\n", html.EscapeString(ocrText))
	default:
		for _, line := range strings.Split(ocrText, "\n") {
			fmt.Fprintf(b, "> %s\n", escapeMarkdown(line))
		}
	}
}

func (f *Formatter) writeMediaNote(b *strings.Builder, env *envelope.Envelope) {
	if env.MetadataValue("media_filtered") != "true" {
		return
	}
	switch f.variant {
	case HTML:
		b.WriteString("<i>[Media filtered]</i>\n")
	default:
		b.WriteString("_[Media filtered]_\n")
	}
}

func mediaKindLabel(kind envelope.MediaKind, hasMedia bool) string {
	if !hasMedia {
		return ""
	}
	switch kind {
	case envelope.MediaImage:
		return "[image]"
	case envelope.MediaDocument:
		return "[document]"
	case envelope.MediaOther:
		return "[media]"
	default:
		return ""
	}
}

// escapeMarkdown neutralizes characters that would otherwise let untrusted
// text alter Telegram-style markdown structure.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"*", "\\*",
		"_", "\\_",
		"`", "\\`",
		"[", "\\[",
		"]", "\\]",
	)
	return replacer.Replace(s)
}
