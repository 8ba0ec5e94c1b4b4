// Package router resolves an inbound envelope against the loaded
// configuration's route table, building per-destination search text and
// deciding keyword matches (spec.md §4.6).
package router

import (
	"strconv"
	"strings"
	"sync"

	"github.com/ctirelay/relay/internal/attachment"
	"github.com/ctirelay/relay/internal/config"
	"github.com/ctirelay/relay/internal/envelope"
)

// Rule is one destination's view of a single channel or feed.
type Rule struct {
	DestinationName string
	ChannelID       string // chat channel id, or feed URL
	Keywords        []string
	Parser          *config.ParserSpec
	RestrictedMode  bool
	OCREnabled      bool
	CheckAttachments bool
}

// Match pairs a matched Rule with the destination it belongs to.
type Match struct {
	Destination config.Destination
	Rule        Rule
}

// Table is the immutable, load-time-derived RouteTable of spec.md §3.
type Table struct {
	chatRules []Rule
	feedRules []Rule
	destByName map[string]config.Destination
}

// Build derives a Table from a loaded Config. Feeds with identical URLs are
// deduplicated by Config.UniqueFeedURLs before the feed source starts its
// pollers; the table
// itself keeps one route entry per (destination, rule) pair as spec.md §3
// requires.
func Build(cfg *config.Config) *Table {
	t := &Table{destByName: make(map[string]config.Destination)}

	for _, dest := range cfg.Destinations {
		t.destByName[dest.Name] = dest

		for _, ch := range dest.Channels {
			t.chatRules = append(t.chatRules, Rule{
				DestinationName:  dest.Name,
				ChannelID:        ch.ChannelID,
				Keywords:         ch.Keywords,
				Parser:           ch.Parser,
				RestrictedMode:   ch.RestrictedMode,
				OCREnabled:       ch.OCREnabled,
				CheckAttachments: ch.CheckAttachments,
			})
		}
		for _, f := range dest.Feeds {
			t.feedRules = append(t.feedRules, Rule{
				DestinationName: dest.Name,
				ChannelID:       f.URL,
				Keywords:        f.Keywords,
				Parser:          f.Parser,
			})
		}
	}

	return t
}

// rulesFor returns the rule list appropriate to the envelope's source.
func (t *Table) rulesFor(kind envelope.SourceKind) []Rule {
	if kind == envelope.SourceFeed {
		return t.feedRules
	}
	return t.chatRules
}

// channelMatch implements spec.md §4.6 step 1.
func channelMatch(ruleKey, envelopeChannelID string, feed bool) bool {
	if feed {
		return ruleKey == envelopeChannelID
	}
	if ruleKey == envelopeChannelID {
		return true
	}

	a, aok := parseChatID(ruleKey)
	b, bok := parseChatID(envelopeChannelID)
	return aok && bok && a == b
}

// parseChatID parses a chat channel id as an integer, stripping an optional
// leading "-100" supergroup prefix before comparison.
func parseChatID(id string) (int64, bool) {
	trimmed := strings.TrimPrefix(id, "-100")
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// searchTextCache lazily reads and caches attachment text per envelope, so
// repeated rule evaluation against the same envelope never re-reads the
// file from disk.
type searchTextCache struct {
	mu            sync.Mutex
	attachmentText string
	attachmentRead bool
}

// Matches evaluates env against every rule matching its channel and returns
// the destinations whose keyword filter passes, along with the matched
// rule. attachmentPath/attachmentName/attachmentMIME may be empty when the
// envelope has no (safe) attachment to read.
func (t *Table) Matches(env *envelope.Envelope, reader *attachment.TextReader, attachmentPath, attachmentName, attachmentMIME string) []Match {
	feed := env.SourceKind == envelope.SourceFeed
	cache := &searchTextCache{}

	var matches []Match
	seen := make(map[string]bool)

	for _, rule := range t.rulesFor(env.SourceKind) {
		if !channelMatch(rule.ChannelID, env.ChannelID, feed) {
			continue
		}

		text := buildSearchText(env, rule, reader, attachmentPath, attachmentName, attachmentMIME, cache)
		if !keywordMatch(rule.Keywords, text) {
			continue
		}

		// spec.md §4.6 step 4: duplicates suppressed by destination
		// identity, not by which rule matched; tie-breaks are irrelevant.
		if seen[rule.DestinationName] {
			continue
		}
		seen[rule.DestinationName] = true

		dest, ok := t.destByName[rule.DestinationName]
		if !ok {
			continue
		}
		matches = append(matches, Match{Destination: dest, Rule: rule})
	}

	return matches
}

func buildSearchText(env *envelope.Envelope, rule Rule, reader *attachment.TextReader, path, name, mime string, cache *searchTextCache) string {
	var b strings.Builder
	b.WriteString(env.Text)

	if rule.OCREnabled && env.OCRText != "" {
		b.WriteByte('\n')
		b.WriteString(env.OCRText)
	}

	if rule.CheckAttachments && path != "" {
		cache.mu.Lock()
		if !cache.attachmentRead {
			if text, ok := reader.ReadForSearch(path, name, mime); ok {
				cache.attachmentText = text
			}
			cache.attachmentRead = true
		}
		text := cache.attachmentText
		cache.mu.Unlock()

		if text != "" {
			b.WriteByte('\n')
			b.WriteString(text)
		}
	}

	return b.String()
}

// keywordMatch implements spec.md §4.6 step 3: empty keyword list passes
// everything; otherwise any case-insensitive substring match passes.
func keywordMatch(keywords []string, searchText string) bool {
	if len(keywords) == 0 {
		return true
	}
	lowered := strings.ToLower(searchText)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// NeedsOCR reports whether any rule for channelID (chat source only) has
// OCR enabled.
func (t *Table) NeedsOCR(channelID string) bool {
	for _, r := range t.chatRules {
		if channelMatch(r.ChannelID, channelID, false) && r.OCREnabled {
			return true
		}
	}
	return false
}

// NeedsAttachmentScan reports whether any rule for channelID wants
// attachment text included in search text.
func (t *Table) NeedsAttachmentScan(channelID string) bool {
	for _, r := range t.chatRules {
		if channelMatch(r.ChannelID, channelID, false) && r.CheckAttachments {
			return true
		}
	}
	return false
}

// IsRestricted reports whether any rule for channelID runs in
// restricted_mode (attachments filtered unless classifier-safe).
func (t *Table) IsRestricted(channelID string) bool {
	for _, r := range t.chatRules {
		if channelMatch(r.ChannelID, channelID, false) && r.RestrictedMode {
			return true
		}
	}
	return false
}
