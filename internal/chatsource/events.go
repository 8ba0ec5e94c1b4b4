package chatsource

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/tg"

	"github.com/ctirelay/relay/internal/envelope"
)

// RegisterHandlers wires a Source's live-update reactions into a gotd/td
// UpdateDispatcher, following the reference userbot's per-update-kind
// handler shape (one method per UpdateNewMessage/UpdateNewChannelMessage/
// UpdateEditMessage/UpdateEditChannelMessage).
func (s *Source) RegisterHandlers(d *tg.UpdateDispatcher) {
	d.OnNewChannelMessage(s.onNewChannelMessage)
	d.OnNewMessage(s.onNewMessage)
	d.OnEditChannelMessage(s.onEditChannelMessage)
	d.OnEditMessage(s.onEditMessage)
}

func (s *Source) onNewChannelMessage(ctx context.Context, entities tg.Entities, u *tg.UpdateNewChannelMessage) error {
	return s.handleMessage(ctx, entities, u.Message)
}

func (s *Source) onNewMessage(ctx context.Context, entities tg.Entities, u *tg.UpdateNewMessage) error {
	return s.handleMessage(ctx, entities, u.Message)
}

func (s *Source) onEditChannelMessage(ctx context.Context, entities tg.Entities, u *tg.UpdateEditChannelMessage) error {
	return s.handleMessage(ctx, entities, u.Message)
}

func (s *Source) onEditMessage(ctx context.Context, entities tg.Entities, u *tg.UpdateEditMessage) error {
	return s.handleMessage(ctx, entities, u.Message)
}

func (s *Source) handleMessage(ctx context.Context, entities tg.Entities, mc tg.MessageClass) error {
	msg, ok := mc.(*tg.Message)
	if !ok || msg.Out {
		return nil
	}

	s.peers.observe(entities)

	channelID, ok := peerChannelID(msg.PeerID)
	if !ok {
		return nil // only channel-sourced messages are in scope for this relay
	}
	if !s.watching(channelID) {
		return nil
	}

	env := s.buildEnvelope(ctx, entities, msg, channelID)
	s.submit(env, int64(msg.ID))
	return nil
}

func (s *Source) watching(channelID string) bool {
	for _, id := range s.channelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

// peerChannelID extracts a numeric channel_id string from a message's
// PeerID, or ok=false when the message came from a user/basic group (out
// of scope: spec.md's sources are channel-only).
func peerChannelID(peer tg.PeerClass) (string, bool) {
	ch, ok := peer.(*tg.PeerChannel)
	if !ok {
		return "", false
	}
	return strconv.FormatInt(ch.ChannelID, 10), true
}

func (s *Source) buildEnvelope(ctx context.Context, entities tg.Entities, msg *tg.Message, channelID string) *envelope.Envelope {
	mediaKind, hasMedia := classifyMessageMedia(msg.Media)

	env := &envelope.Envelope{
		SourceKind:  envelope.SourceChat,
		ChannelID:   channelID,
		ChannelName: channelDisplayName(entities, channelID),
		Author:      senderName(entities, msg),
		Timestamp:   time.Unix(int64(msg.Date), 0).UTC(),
		Text:        msg.Message,
		HasMedia:    hasMedia,
		MediaKind:   mediaKind,
		Original:    msg,
	}

	if replyTo, ok := msg.ReplyTo.(*tg.MessageReplyHeader); ok && replyTo.ReplyToMsgID != 0 {
		if rc := s.fetchReplyContext(ctx, channelID, replyTo.ReplyToMsgID); rc != nil {
			env.ReplyContext = rc
		}
	}

	return env
}

// fetchReplyContext best-effort fetches the replied-to message so the
// formatter can quote it; a lookup failure yields no reply context rather
// than blocking ingestion of the message itself.
func (s *Source) fetchReplyContext(ctx context.Context, channelID string, replyToMsgID int) *envelope.ReplyContext {
	peer, err := s.peers.resolve(ctx, channelID)
	if err != nil {
		return nil
	}
	channelPeer, ok := peer.(*tg.InputPeerChannel)
	if !ok {
		return nil
	}

	result, err := s.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: &tg.InputChannel{ChannelID: channelPeer.ChannelID, AccessHash: channelPeer.AccessHash},
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: replyToMsgID}},
	})
	if err != nil {
		return nil
	}

	messages, entities := messagesAndEntitiesFrom(result)
	for _, mc := range messages {
		msg, ok := mc.(*tg.Message)
		if !ok || msg.ID != replyToMsgID {
			continue
		}
		kind, hasMedia := classifyMessageMedia(msg.Media)
		rc := envelope.NewReplyContext(
			senderName(entities, msg),
			time.Unix(int64(msg.Date), 0).UTC(),
			msg.Message,
			kind,
			hasMedia,
		)
		return &rc
	}
	return nil
}

func messagesAndEntitiesFrom(result tg.MessagesMessagesClass) ([]tg.MessageClass, tg.Entities) {
	switch m := result.(type) {
	case *tg.MessagesChannelMessages:
		return m.Messages, tg.EntitiesFromResult(result)
	case *tg.MessagesMessages:
		return m.Messages, tg.EntitiesFromResult(result)
	case *tg.MessagesMessagesSlice:
		return m.Messages, tg.EntitiesFromResult(result)
	default:
		return nil, tg.Entities{}
	}
}

// MessageID returns the source message id backing env, for building the
// orchestrator's defanged permalink. Only chat envelopes carry one.
func MessageID(env *envelope.Envelope) (string, bool) {
	msg, ok := env.Original.(*tg.Message)
	if !ok {
		return "", false
	}
	return strconv.Itoa(msg.ID), true
}

func channelDisplayName(entities tg.Entities, channelID string) string {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return channelID
	}
	if ch, ok := entities.Channels[id]; ok {
		return ch.Title
	}
	return channelID
}

func senderName(entities tg.Entities, msg *tg.Message) string {
	fromID, ok := msg.GetFromID()
	if !ok {
		return channelDisplayName(entities, "") // anonymous channel post
	}
	user, ok := fromID.(*tg.PeerUser)
	if !ok {
		return ""
	}
	if u, ok := entities.Users[user.UserID]; ok {
		return displayUserName(u)
	}
	return ""
}

func displayUserName(u *tg.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	return name
}

// classifyMessageMedia maps gotd/td's media union into the envelope's
// coarse kind, mirroring the reference userbot's extractMediaType switch.
func classifyMessageMedia(media tg.MessageMediaClass) (envelope.MediaKind, bool) {
	if media == nil {
		return envelope.MediaNone, false
	}
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		return envelope.MediaImage, true
	case *tg.MessageMediaDocument:
		doc, ok := m.GetDocument()
		if !ok {
			return envelope.MediaDocument, true
		}
		d, ok := doc.(*tg.Document)
		if ok && strings.HasPrefix(d.MimeType, "image/") {
			return envelope.MediaImage, true
		}
		return envelope.MediaDocument, true
	default:
		return envelope.MediaOther, true
	}
}
