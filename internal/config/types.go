package config

// DestinationKind distinguishes the two delivery transports spec.md §3 names.
type DestinationKind string

const (
	KindWebhook DestinationKind = "webhook"
	KindChat    DestinationKind = "chat"
)

// ParserKind distinguishes the two mutually exclusive parser shapes of
// spec.md §4.7.
type ParserKind string

const (
	ParserNone      ParserKind = ""
	ParserTrim      ParserKind = "trim"
	ParserKeepFirst ParserKind = "keep_first"
)

// ParserSpec is the resolved, validated form of a per-rule parser option.
// Exactly one of (TrimFront/TrimBack) or KeepFirst applies, selected by Kind.
type ParserSpec struct {
	Kind      ParserKind
	TrimFront int
	TrimBack  int
	KeepFirst int
}

// ChannelRule is the per-(chat channel, destination) filtering contract.
type ChannelRule struct {
	ChannelID        string
	Keywords         []string
	Parser           *ParserSpec
	RestrictedMode   bool
	OCREnabled       bool
	CheckAttachments bool
}

// FeedRule is the per-(feed URL, destination) filtering contract.
type FeedRule struct {
	URL      string
	Name     string
	Keywords []string
	Parser   *ParserSpec
}

// Destination is a fully resolved destination: its wire endpoint, and the
// channel/feed rules that route envelopes to it.
type Destination struct {
	Name     string
	Kind     DestinationKind
	Endpoint string // webhook URL or chat id, resolved from the environment
	Channels []ChannelRule
	Feeds    []FeedRule
}

// Config is the immutable, fully-resolved configuration document.
type Config struct {
	Destinations []Destination

	// ChatAPIID/ChatAPIHash are the chat-platform client credentials,
	// required whenever any destination or source touches the chat source.
	ChatAPIID   int
	ChatAPIHash string
}

// UniqueFeedURLs returns the distinct feed URLs across all destinations,
// per spec.md §3's "feeds with identical URL are deduplicated globally".
func (c *Config) UniqueFeedURLs() []string {
	seen := make(map[string]bool)
	var urls []string
	for _, d := range c.Destinations {
		for _, f := range d.Feeds {
			if !seen[f.URL] {
				seen[f.URL] = true
				urls = append(urls, f.URL)
			}
		}
	}
	return urls
}

// ChatChannelIDs returns the distinct chat channel ids referenced across all
// destinations, used by the chat source to know what to subscribe to.
func (c *Config) ChatChannelIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, d := range c.Destinations {
		for _, ch := range d.Channels {
			if !seen[ch.ChannelID] {
				seen[ch.ChannelID] = true
				ids = append(ids, ch.ChannelID)
			}
		}
	}
	return ids
}
