package chatsource

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"

	"github.com/ctirelay/relay/internal/logger"
)

// maxDialogPages bounds the startup dialog warm-up, so an account with an
// unusually large dialog list cannot stall startup indefinitely.
const maxDialogPages = 20

// warmDialogs paginates the account's dialog list once at startup so the
// peer cache has an access hash for every channel this relay will poll or
// send to, without needing to wait for a live update to observe it first.
func (s *Source) warmDialogs(ctx context.Context) error {
	offsetDate, offsetID := 0, 0
	var offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}

	for page := 0; page < maxDialogPages; page++ {
		result, err := s.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      100,
		})
		if err != nil {
			return fmt.Errorf("fetching dialogs page %d: %w", page, err)
		}

		dialogs, messages, entities := dialogsPage(result)
		s.peers.observe(entities)

		if len(dialogs) == 0 || len(messages) == 0 {
			return nil
		}

		last := messages[len(messages)-1]
		msg, ok := last.(*tg.Message)
		if !ok {
			return nil
		}
		offsetID = msg.ID
		offsetDate = int(msg.Date)
		offsetPeer, ok = peerFromDialog(dialogs[len(dialogs)-1], entities)
		if !ok {
			return nil
		}
	}
	return nil
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

func peerFromDialog(dialog tg.DialogClass, entities tg.Entities) (tg.InputPeerClass, bool) {
	d, ok := dialog.(*tg.Dialog)
	if !ok {
		return nil, false
	}
	switch p := d.Peer.(type) {
	case *tg.PeerChannel:
		if ch, ok := entities.Channels[p.ChannelID]; ok {
			return &tg.InputPeerChannel{ChannelID: p.ChannelID, AccessHash: ch.AccessHash}, true
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}, true
	case *tg.PeerUser:
		if u, ok := entities.Users[p.UserID]; ok {
			return &tg.InputPeerUser{UserID: p.UserID, AccessHash: u.AccessHash}, true
		}
	}
	return nil, false
}

// startupProof implements spec.md §4.11's per-channel startup step: fetch
// the latest message, log connection-established, and seed the cursor so a
// cold start never replays history as if it were a gap.
func (s *Source) startupProof(ctx context.Context, channelID string) error {
	peer, err := s.peers.resolve(ctx, channelID)
	if err != nil {
		return fmt.Errorf("resolving channel %s: %w", channelID, err)
	}

	result, err := s.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  peer,
		Limit: 1,
	})
	if err != nil {
		return fmt.Errorf("fetching latest message for %s: %w", channelID, err)
	}

	messages, entities := messagesAndEntitiesFrom(result)
	name := channelDisplayName(entities, channelID)

	var lastID int64
	if len(messages) > 0 {
		if msg, ok := messages[0].(*tg.Message); ok {
			lastID = int64(msg.ID)
		}
	}

	if err := s.chatStore.Write(channelID, name, lastID); err != nil {
		return fmt.Errorf("seeding cursor for %s: %w", channelID, err)
	}

	logger.InfoCF("chatsource", "connection established", map[string]any{
		"channel_id": channelID, "display_name": name, "last_message_id": lastID,
	})
	return nil
}

// pollLoop runs the spec.md §4.11 gap-recovery path: every pollInterval,
// fetch messages newer than the persisted cursor, ascending, and submit
// each as if it had arrived live. Any message recovered this way increments
// the "missed messages caught" counter.
func (s *Source) pollLoop(ctx context.Context, channelID string) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.recoverGap(ctx, channelID)
		}
	}
}

func (s *Source) recoverGap(ctx context.Context, channelID string) {
	cursorID, ok := s.chatStore.Read(channelID)
	if !ok {
		return
	}

	peer, err := s.peers.resolve(ctx, channelID)
	if err != nil {
		logger.WarnCF("chatsource", "gap recovery: resolving peer", map[string]any{
			"channel_id": channelID, "error": err.Error(),
		})
		return
	}

	result, err := s.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     peer,
		OffsetID: 0,
		Limit:    100,
	})
	if err != nil {
		logger.WarnCF("chatsource", "gap recovery: fetching history", map[string]any{
			"channel_id": channelID, "error": err.Error(),
		})
		return
	}

	messages, entities := messagesAndEntitiesFrom(result)
	s.peers.observe(entities)

	var missed []*tg.Message
	for _, mc := range messages {
		msg, ok := mc.(*tg.Message)
		if !ok || int64(msg.ID) <= cursorID {
			continue
		}
		missed = append(missed, msg)
	}

	for i := len(missed) - 1; i >= 0; i-- {
		msg := missed[i]
		env := s.buildEnvelope(ctx, entities, msg, channelID)
		s.submit(env, int64(msg.ID))
		s.missedCaught.Add(1)
	}
}
