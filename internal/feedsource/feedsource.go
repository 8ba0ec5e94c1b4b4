// Package feedsource implements the RSS/Atom/JSON feed source of spec.md
// §4.12: one poller per distinct feed URL, a 2-day freshness cutoff, and a
// persistent cursor so a restart never replays the whole feed.
package feedsource

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/ctirelay/relay/internal/cursor"
	"github.com/ctirelay/relay/internal/envelope"
	"github.com/ctirelay/relay/internal/logger"
)

// pollInterval is the feed poll cadence named in spec.md §4.12.
const pollInterval = 5 * time.Minute

// maxEntryAge bounds how far back a first-seen entry may date and still be
// considered for emission, per spec.md §4.12's 2-day freshness cutoff.
const maxEntryAge = 48 * time.Hour

// summaryTextLimit is the spec.md §4.12 cap on the envelope text built from
// an entry's title/link/summary.
const summaryTextLimit = 1000

// Source polls a fixed set of feed URLs, emitting one Envelope per
// newly-seen, non-stale entry.
type Source struct {
	parser *gofeed.Parser
	store  *cursor.FeedStore
	urls   []string

	names sync.Map // url -> feed title, learned from the first successful parse

	Envelopes chan *envelope.Envelope
}

// New builds a Source over the distinct feed URLs pulled from
// config.Config.UniqueFeedURLs.
func New(store *cursor.FeedStore, urls []string) *Source {
	return &Source{
		parser:    gofeed.NewParser(),
		store:     store,
		urls:      urls,
		Envelopes: make(chan *envelope.Envelope, 64),
	}
}

// Start launches one poll loop per feed URL. Each loop polls immediately
// and then every pollInterval until ctx is canceled.
func (s *Source) Start(ctx context.Context) {
	for _, url := range s.urls {
		go s.pollLoop(ctx, url)
	}
}

func (s *Source) pollLoop(ctx context.Context, url string) {
	s.poll(ctx, url)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, url)
		}
	}
}

// poll fetches url once and emits any entry newer than the persisted
// cursor and within the freshness cutoff. A feed seen for the first time
// anchors its cursor to now and emits nothing, per spec.md §4.12: a brand
// new feed subscription must not flood destinations with its entire
// back-catalog.
func (s *Source) poll(ctx context.Context, url string) {
	feed, err := s.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		logger.WarnCF("feedsource", "fetching feed", map[string]any{"url": url, "error": err.Error()})
		return
	}
	if feed.Title != "" {
		s.names.Store(url, feed.Title)
	}

	lastSeen, ok := s.store.Read(url)
	if !ok {
		if err := s.store.Write(url, time.Now().UTC()); err != nil {
			logger.WarnCF("feedsource", "seeding cursor", map[string]any{"url": url, "error": err.Error()})
		}
		return
	}

	cutoff := time.Now().Add(-maxEntryAge)

	type dated struct {
		item *gofeed.Item
		ts   time.Time
	}
	var fresh []dated
	for _, item := range feed.Items {
		ts := entryTimestamp(item)
		if ts == nil {
			continue
		}
		if ts.Before(cutoff) || !ts.After(lastSeen) {
			continue
		}
		fresh = append(fresh, dated{item: item, ts: *ts})
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ts.Before(fresh[j].ts) })

	name := s.feedName(url)
	newCursor := lastSeen
	for _, d := range fresh {
		env := buildEnvelope(d.item, d.ts, url, name)
		s.Envelopes <- env
		if d.ts.After(newCursor) {
			newCursor = d.ts
		}
	}

	if newCursor.After(lastSeen) {
		if err := s.store.Write(url, newCursor); err != nil {
			logger.WarnCF("feedsource", "advancing cursor", map[string]any{"url": url, "error": err.Error()})
		}
	}
}

func (s *Source) feedName(url string) string {
	if v, ok := s.names.Load(url); ok {
		return v.(string)
	}
	return url
}

// entryTimestamp picks updated-or-published, per spec.md §4.12's ordering;
// an entry with neither is skipped rather than treated as always-fresh.
func entryTimestamp(item *gofeed.Item) *time.Time {
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed
	}
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return nil
}

func buildEnvelope(item *gofeed.Item, ts time.Time, url, feedName string) *envelope.Envelope {
	return &envelope.Envelope{
		SourceKind:  envelope.SourceFeed,
		ChannelID:   url,
		ChannelName: feedName,
		Author:      feedName,
		Timestamp:   ts,
		Text:        buildEntryText(item),
	}
}

// buildEntryText assembles "Title\nLink\nSummary", HTML-stripped and
// truncated to summaryTextLimit runes.
func buildEntryText(item *gofeed.Item) string {
	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	var b strings.Builder
	b.WriteString(item.Title)
	b.WriteByte('\n')
	b.WriteString(item.Link)
	if text := stripHTML(summary); text != "" {
		b.WriteByte('\n')
		b.WriteString(text)
	}

	return truncateRunes(b.String(), summaryTextLimit)
}

// stripHTML reduces an entry's HTML summary to plain text via goquery, the
// same HTML-parsing library gofeed itself depends on for content sanitizing.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.TrimSpace(doc.Text())
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
