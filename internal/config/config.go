// Package config loads the relay's on-disk JSON configuration document,
// resolves destination endpoints and chat credentials from the environment,
// and produces the immutable Config value the rest of the relay builds on.
package config

import (
	"encoding/json"
	"os"

	"github.com/caarlos0/env/v11"

	"github.com/ctirelay/relay/internal/logger"
)

// chatCredentials are the two environment variables spec.md §6 requires
// whenever the chat source is in play. Bound with caarlos0/env, the same
// library the teacher uses for env-sourced config structs.
type chatCredentials struct {
	APIID   int    `env:"RELAY_CHAT_API_ID"`
	APIHash string `env:"RELAY_CHAT_API_HASH"`
}

// Load reads and resolves the configuration document at path. Any
// structural problem (malformed JSON, conflicting parser spec, missing
// required chat credentials) is returned as a *Error and is fatal to
// startup. A destination with a missing optional env var is warned about
// and skipped, not fatal.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errf("load", "reading %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errf("load", "parsing %s: %w", path, err)
	}

	cfg := &Config{}
	needsChat := false

	for _, dd := range doc.Destinations {
		dest, ok, err := resolveDestination(dd)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if len(dest.Channels) > 0 || dest.Kind == KindChat {
			needsChat = true
		}
		cfg.Destinations = append(cfg.Destinations, dest)
	}

	warnDuplicateNames(cfg.Destinations)

	if needsChat {
		var creds chatCredentials
		if err := env.Parse(&creds); err != nil {
			return nil, errf("load", "parsing chat credentials from environment: %w", err)
		}
		if creds.APIID == 0 || creds.APIHash == "" {
			return nil, errf("load", "RELAY_CHAT_API_ID and RELAY_CHAT_API_HASH are required when any destination has channels or is of kind chat")
		}
		cfg.ChatAPIID = creds.APIID
		cfg.ChatAPIHash = creds.APIHash
	}

	return cfg, nil
}

func resolveDestination(dd destinationDoc) (Destination, bool, error) {
	var kind DestinationKind
	switch dd.Type {
	case string(KindWebhook):
		kind = KindWebhook
	case string(KindChat):
		kind = KindChat
	default:
		return Destination{}, false, errf("destination", "%q: unknown type %q", dd.Name, dd.Type)
	}

	endpoint := os.Getenv(dd.EnvKey)
	if endpoint == "" {
		logger.WarnCF("config", "destination env var unset, skipping destination", map[string]any{
			"destination": dd.Name, "env_key": dd.EnvKey,
		})
		return Destination{}, false, nil
	}

	dest := Destination{Name: dd.Name, Kind: kind, Endpoint: endpoint}

	for _, cd := range dd.Channels {
		rule, err := resolveChannelRule(dd.Name, cd)
		if err != nil {
			return Destination{}, false, err
		}
		dest.Channels = append(dest.Channels, rule)
	}

	for _, fd := range dd.RSS {
		rule, err := resolveFeedRule(dd.Name, fd)
		if err != nil {
			return Destination{}, false, err
		}
		dest.Feeds = append(dest.Feeds, rule)
	}

	return dest, true, nil
}

func resolveChannelRule(destName string, cd channelDoc) (ChannelRule, error) {
	where := destName + "/channel:" + cd.ID

	keywords, err := resolveKeywords(cd.Keywords)
	if err != nil {
		return ChannelRule{}, err
	}

	parser, err := resolveParser(where, cd.Parser)
	if err != nil {
		return ChannelRule{}, err
	}

	checkAttachments := true
	if cd.CheckAttachments != nil {
		checkAttachments = *cd.CheckAttachments
	}

	return ChannelRule{
		ChannelID:        cd.ID,
		Keywords:         keywords,
		Parser:           parser,
		RestrictedMode:   cd.RestrictedMode,
		OCREnabled:       cd.OCR,
		CheckAttachments: checkAttachments,
	}, nil
}

func resolveFeedRule(destName string, fd feedDoc) (FeedRule, error) {
	where := destName + "/feed:" + fd.URL

	keywords, err := resolveKeywords(fd.Keywords)
	if err != nil {
		return FeedRule{}, err
	}

	parser, err := resolveParser(where, fd.Parser)
	if err != nil {
		return FeedRule{}, err
	}

	return FeedRule{
		URL:      fd.URL,
		Name:     fd.Name,
		Keywords: keywords,
		Parser:   parser,
	}, nil
}

func warnDuplicateNames(destinations []Destination) {
	seen := make(map[string]bool)
	for _, d := range destinations {
		if seen[d.Name] {
			logger.WarnCF("config", "duplicate destination name", map[string]any{"name": d.Name})
		}
		seen[d.Name] = true
	}
}
