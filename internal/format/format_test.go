package format

import (
	"strings"
	"testing"
	"time"

	"github.com/ctirelay/relay/internal/envelope"
)

func TestDefangURL_SchemeAndDomain(t *testing.T) {
	got := DefangURL("https://t.me/somechannel/123")
	want := "hxxps://t[.]me/somechannel/123"
	if got != want {
		t.Fatalf("DefangURL() = %q, want %q", got, want)
	}
}

func TestDefangURL_Idempotent(t *testing.T) {
	once := DefangURL("https://telegram.me/foo")
	twice := DefangURL(once)
	if once != twice {
		t.Fatalf("DefangURL is not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestDefangURL_HTTPScheme(t *testing.T) {
	got := DefangURL("http://t.me/x/1")
	if !strings.HasPrefix(got, "hxxp://") {
		t.Fatalf("DefangURL() = %q, want hxxp:// prefix", got)
	}
}

func TestChatMessageURL_PublicHandle(t *testing.T) {
	got := ChatMessageURL("@secnews", "42")
	if got != "https://t.me/secnews/42" {
		t.Fatalf("ChatMessageURL() = %q", got)
	}
}

func TestChatMessageURL_PrivateSupergroup(t *testing.T) {
	got := ChatMessageURL("-1001234567890", "99")
	if got != "https://t.me/c/1234567890/99" {
		t.Fatalf("ChatMessageURL() = %q", got)
	}
}

func TestFormatter_MarkdownIncludesAllFields(t *testing.T) {
	env := &envelope.Envelope{
		ChannelName: "SecNews",
		Author:      "analyst1",
		Timestamp:   time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
		Text:        "a *critical* vuln",
		HasMedia:    true,
		MediaKind:   envelope.MediaImage,
		OCRText:     "extracted text",
		Metadata:    map[string]string{"defanged_source_url": "hxxps://t[.]me/secnews/1"},
	}

	out := NewFormatter(Markdown).Render(env, []string{"CVE"})

	for _, want := range []string{"SecNews", "analyst1", "2026-07-01", `\[image\]`, "`CVE`", "extracted text", `hxxps://t\[.\]me`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "a *critical*") {
		t.Error("unescaped markdown control character leaked into output")
	}
}

func TestFormatter_HTMLEscapesUserText(t *testing.T) {
	env := &envelope.Envelope{
		ChannelName: "Feed",
		Text:        "<script>alert(1)</script>",
	}

	out := NewFormatter(HTML).Render(env, nil)
	if strings.Contains(out, "<script>") {
		t.Fatalf("HTML formatter must escape user text, got: %s", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Fatalf("expected escaped script tag, got: %s", out)
	}
}

func TestFormatter_MediaFilteredNote(t *testing.T) {
	env := &envelope.Envelope{
		Text:     "body",
		Metadata: map[string]string{"media_filtered": "true"},
	}
	out := NewFormatter(Markdown).Render(env, nil)
	if !strings.Contains(out, "[Media filtered]") {
		t.Fatalf("output missing media-filtered note:\n%s", out)
	}
}

func TestFormatter_ReplyContextRendered(t *testing.T) {
	env := &envelope.Envelope{
		Text: "reply body",
		ReplyContext: &envelope.ReplyContext{
			Author:    "original_author",
			Timestamp: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			Text:      "original text",
		},
	}
	out := NewFormatter(Markdown).Render(env, nil)
	if !strings.Contains(out, "in reply to") || !strings.Contains(out, `original\_author`) {
		t.Fatalf("reply context not rendered:\n%s", out)
	}
}
