// Package discover enumerates the chat channels reachable from a connected
// session, for the "relay discover" CLI command of spec.md §6: a read-only
// companion to monitor that shares the same ConfigLoader and the same
// gotd/td session, but never subscribes to anything or submits envelopes.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gotd/td/tg"

	"github.com/ctirelay/relay/internal/config"
)

// maxDialogPages bounds the dialog walk, mirroring chatsource's own
// warm-up cap so a very large account can't stall discovery indefinitely.
const maxDialogPages = 20

// Entity is one accessible channel or supergroup, trimmed to what a human
// needs to decide whether to add it to the configuration document.
type Entity struct {
	ChannelID string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Username  string `json:"username,omitempty" yaml:"username,omitempty"`
}

// List walks the account's dialog list, at most maxDialogPages pages of 100,
// and returns every channel or supergroup seen, sorted by title. The walk
// also ends at a page whose last dialog is not a channel, so entities past
// that point are not listed. Basic (non-super) groups
// are skipped: chatsource only ever subscribes to PeerChannel, so a plain
// tg.Chat could never be named in a config document's channel_id.
func List(ctx context.Context, api *tg.Client) ([]Entity, error) {
	seen := make(map[int64]Entity)

	offsetDate, offsetID := 0, 0
	var offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}

	for page := 0; page < maxDialogPages; page++ {
		result, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      100,
		})
		if err != nil {
			return nil, fmt.Errorf("fetching dialogs page %d: %w", page, err)
		}

		dialogs, messages, entities := dialogsPage(result)
		for id, ch := range entities.Channels {
			seen[id] = Entity{
				ChannelID: fmt.Sprintf("-100%d", id),
				Title:     ch.Title,
				Username:  ch.Username,
			}
		}

		if len(dialogs) == 0 || len(messages) == 0 {
			break
		}

		last, ok := messages[len(messages)-1].(*tg.Message)
		if !ok {
			break
		}
		offsetID = last.ID
		offsetDate = int(last.Date)

		next, ok := lastDialogPeer(dialogs[len(dialogs)-1], entities)
		if !ok {
			break
		}
		offsetPeer = next
	}

	entities := make([]Entity, 0, len(seen))
	for _, e := range seen {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Title < entities[j].Title })
	return entities, nil
}

func dialogsPage(result tg.MessagesDialogsClass) ([]tg.DialogClass, []tg.MessageClass, tg.Entities) {
	switch d := result.(type) {
	case *tg.MessagesDialogs:
		return d.Dialogs, d.Messages, tg.EntitiesFromResult(result)
	case *tg.MessagesDialogsSlice:
		return d.Dialogs, d.Messages, tg.EntitiesFromResult(result)
	default:
		return nil, nil, tg.Entities{}
	}
}

func lastDialogPeer(dialog tg.DialogClass, entities tg.Entities) (tg.InputPeerClass, bool) {
	d, ok := dialog.(*tg.Dialog)
	if !ok {
		return nil, false
	}
	p, ok := d.Peer.(*tg.PeerChannel)
	if !ok {
		return nil, false
	}
	ch, ok := entities.Channels[p.ChannelID]
	if !ok {
		return nil, false
	}
	return &tg.InputPeerChannel{ChannelID: p.ChannelID, AccessHash: ch.AccessHash}, true
}

// Diff compares discovered entities against a loaded configuration,
// reporting channels reachable but unconfigured and channels configured
// but no longer reachable (left a channel, lost access, wrong id typed).
type Diff struct {
	Unconfigured []Entity
	Unreachable  []string
}

// Compare builds a Diff from entities and cfg.
func Compare(entities []Entity, cfg *config.Config) Diff {
	configured := make(map[string]bool)
	for _, id := range cfg.ChatChannelIDs() {
		configured[id] = true
	}

	reachable := make(map[string]bool, len(entities))
	var d Diff
	for _, e := range entities {
		reachable[e.ChannelID] = true
		if !configured[e.ChannelID] {
			d.Unconfigured = append(d.Unconfigured, e)
		}
	}
	for id := range configured {
		if !reachable[id] {
			d.Unreachable = append(d.Unreachable, id)
		}
	}
	sort.Strings(d.Unreachable)
	return d
}

// Skeleton is a generated config document, JSON-compatible with
// config.Load's schema, with a single stub destination listing every
// discovered entity so a human can split, rename, or delete before
// committing it to disk.
type Skeleton struct {
	Destinations []SkeletonDestination `json:"destinations" yaml:"destinations"`
}

type SkeletonDestination struct {
	Name     string            `json:"name" yaml:"name"`
	Type     string            `json:"type" yaml:"type"`
	EnvKey   string            `json:"env_key" yaml:"env_key"`
	Channels []SkeletonChannel `json:"channels" yaml:"channels"`
}

type SkeletonChannel struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

// GenerateSkeleton produces a single "webhook" stub destination listing
// every discovered entity, leaving keyword/parser/restricted_mode fields
// at their zero value for the human to fill in.
func GenerateSkeleton(entities []Entity) Skeleton {
	channels := make([]SkeletonChannel, 0, len(entities))
	for _, e := range entities {
		channels = append(channels, SkeletonChannel{ID: e.ChannelID, Title: e.Title})
	}
	return Skeleton{
		Destinations: []SkeletonDestination{
			{
				Name:     "example",
				Type:     "webhook",
				EnvKey:   "RELAY_EXAMPLE_WEBHOOK_URL",
				Channels: channels,
			},
		},
	}
}

// ToJSON renders the skeleton in the format config.Load expects on disk.
func (s Skeleton) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
