// Package envelope defines the source-agnostic message record that flows
// through the relay pipeline from a source to zero or more destinations.
package envelope

import "time"

// SourceKind identifies which family of source produced an Envelope.
type SourceKind string

const (
	SourceChat SourceKind = "chat"
	SourceFeed SourceKind = "feed"
)

// MediaKind classifies the attached media, if any.
type MediaKind string

const (
	MediaNone     MediaKind = "none"
	MediaImage    MediaKind = "image"
	MediaDocument MediaKind = "document"
	MediaOther    MediaKind = "other"
)

// replyContextTextLimit is the number of runes kept from a quoted reply.
const replyContextTextLimit = 200

// ReplyContext captures the message an Envelope is replying to, truncated
// per spec so formatters never have to re-truncate it themselves.
type ReplyContext struct {
	Author    string
	Timestamp time.Time
	Text      string
	MediaKind MediaKind
	HasMedia  bool
}

// NewReplyContext truncates text to the spec's 200-rune limit before storing it.
func NewReplyContext(author string, ts time.Time, text string, kind MediaKind, hasMedia bool) ReplyContext {
	return ReplyContext{
		Author:    author,
		Timestamp: ts,
		Text:      truncateRunes(text, replyContextTextLimit),
		MediaKind: kind,
		HasMedia:  hasMedia,
	}
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// Envelope is the unit of work passed from a source, through preprocessing
// and routing, to a destination's parser/formatter/sender chain.
//
// An Envelope is logically immutable once built by its source, except for
// the preprocessing-populated fields MediaPath, OCRText and Metadata.
// Parsers must build new Envelope values rather than mutate one in place —
// see Clone.
type Envelope struct {
	SourceKind SourceKind

	ChannelID   string
	ChannelName string
	Author      string
	Timestamp   time.Time
	Text        string

	HasMedia  bool
	MediaKind MediaKind
	MediaPath string // filesystem path once downloaded; owned by the orchestrator

	OCREnabled bool
	OCRText    string

	ReplyContext *ReplyContext

	// Original is an opaque handle to the source-native object, used only
	// to trigger a lazy media download. It carries no routing meaning.
	Original any

	Metadata map[string]string
}

// MetadataValue safely reads a metadata key, tolerating a nil map.
func (e *Envelope) MetadataValue(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// SetMetadata lazily allocates Metadata and sets key.
func (e *Envelope) SetMetadata(key, value string) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string, 1)
	}
	e.Metadata[key] = value
}

// Clone returns a shallow copy with its own Metadata map, so a parser can
// change Text without affecting the envelope seen by other destinations.
func (e *Envelope) Clone() *Envelope {
	clone := *e
	if e.Metadata != nil {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	if e.ReplyContext != nil {
		rc := *e.ReplyContext
		clone.ReplyContext = &rc
	}
	return &clone
}
