package router

import (
	"testing"

	"github.com/ctirelay/relay/internal/attachment"
	"github.com/ctirelay/relay/internal/config"
	"github.com/ctirelay/relay/internal/envelope"
)

func testConfig() *config.Config {
	return &config.Config{
		Destinations: []config.Destination{
			{
				Name: "secops",
				Kind: config.KindWebhook,
				Channels: []config.ChannelRule{
					{ChannelID: "-1001234", Keywords: []string{"CVE"}, CheckAttachments: true},
					{ChannelID: "@publicchan", Keywords: nil},
				},
				Feeds: []config.FeedRule{
					{URL: "https://feeds.test/a.xml", Keywords: []string{"breach"}},
				},
			},
		},
	}
}

func TestChannelMatch_ExactString(t *testing.T) {
	if !channelMatch("@publicchan", "@publicchan", false) {
		t.Fatal("want exact string match")
	}
}

func TestChannelMatch_NumericWithSupergroupPrefix(t *testing.T) {
	if !channelMatch("-1001234", "1234", false) {
		t.Fatal("want match after stripping -100 prefix from rule side")
	}
	if !channelMatch("1234", "-1001234", false) {
		t.Fatal("want match after stripping -100 prefix from envelope side")
	}
}

func TestChannelMatch_FeedRequiresExactURL(t *testing.T) {
	if !channelMatch("https://feeds.test/a.xml", "https://feeds.test/a.xml", true) {
		t.Fatal("want exact feed URL match")
	}
	if channelMatch("https://feeds.test/a.xml", "https://feeds.test/b.xml", true) {
		t.Fatal("want no match for differing feed URLs")
	}
}

func TestMatches_KeywordFilter(t *testing.T) {
	table := Build(testConfig())
	env := &envelope.Envelope{SourceKind: envelope.SourceChat, ChannelID: "-1001234", Text: "no match here"}

	matches := table.Matches(env, attachment.NewTextReader(attachment.NewClassifier()), "", "", "")
	if len(matches) != 0 {
		t.Fatalf("matches = %d, want 0 (keyword absent)", len(matches))
	}

	env.Text = "new CVE disclosed today"
	matches = table.Matches(env, attachment.NewTextReader(attachment.NewClassifier()), "", "", "")
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
}

func TestMatches_EmptyKeywordsMatchesAll(t *testing.T) {
	table := Build(testConfig())
	env := &envelope.Envelope{SourceKind: envelope.SourceChat, ChannelID: "@publicchan", Text: "anything at all"}

	matches := table.Matches(env, attachment.NewTextReader(attachment.NewClassifier()), "", "", "")
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
}

func TestMatches_FeedChannel(t *testing.T) {
	table := Build(testConfig())
	env := &envelope.Envelope{SourceKind: envelope.SourceFeed, ChannelID: "https://feeds.test/a.xml", Text: "major breach reported"}

	matches := table.Matches(env, attachment.NewTextReader(attachment.NewClassifier()), "", "", "")
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
}

func TestKeywordMatch_CaseInsensitive(t *testing.T) {
	if !keywordMatch([]string{"cve"}, "Found a CVE today") {
		t.Fatal("want case-insensitive substring match")
	}
}

func TestNeedsOCR_NeedsAttachmentScan_IsRestricted(t *testing.T) {
	table := Build(testConfig())
	if table.NeedsOCR("-1001234") {
		t.Fatal("NeedsOCR() = true, want false (not configured)")
	}
	if !table.NeedsAttachmentScan("-1001234") {
		t.Fatal("NeedsAttachmentScan() = false, want true")
	}
	if table.IsRestricted("-1001234") {
		t.Fatal("IsRestricted() = true, want false")
	}
}

func TestMatches_DedupesRepeatMatchesWithinSameDestination(t *testing.T) {
	cfg := &config.Config{
		Destinations: []config.Destination{
			{
				Name: "dup",
				Kind: config.KindWebhook,
				Channels: []config.ChannelRule{
					{ChannelID: "-1001234"},
					{ChannelID: "1234"},
				},
			},
		},
	}
	table := Build(cfg)
	env := &envelope.Envelope{SourceKind: envelope.SourceChat, ChannelID: "-1001234", Text: "hello"}

	matches := table.Matches(env, attachment.NewTextReader(attachment.NewClassifier()), "", "", "")
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1 (deduplicated by destination identity)", len(matches))
	}
}
