// Package chatsource implements the chat-platform source of spec.md §4.11:
// per-channel startup proof, live update dispatch, gap-recovery polling,
// and the non-persistent cursor log that is cleared on clean shutdown.
package chatsource

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotd/td/tg"

	"github.com/ctirelay/relay/internal/attachment"
	"github.com/ctirelay/relay/internal/cursor"
	"github.com/ctirelay/relay/internal/envelope"
	"github.com/ctirelay/relay/internal/logger"
)

// pollInterval is the gap-recovery cadence named in spec.md §4.11.
const pollInterval = 5 * time.Minute

// replyTextLimit mirrors envelope.NewReplyContext's own truncation, kept
// here only so callers building a ReplyContext know the figure without
// reaching into the envelope package's unexported constant.
const replyTextLimit = 200

// dedupeCleanThreshold and dedupeExpiry mirror the teacher's BaseChannel
// dedup window, generalized from a per-channel to a per-source cache since
// message ids are only unique within a channel.
const (
	dedupeCleanThreshold = 500
	dedupeExpiry         = 10 * time.Minute
)

// Source subscribes to a fixed set of chat channels, emitting one Envelope
// per new (non-duplicate) message on Envelopes and persisting read
// progress through a cursor.ChatStore.
type Source struct {
	api        *tg.Client
	chatStore  *cursor.ChatStore
	classifier *attachment.Classifier
	channelIDs []string

	peers *peerCache

	Envelopes chan *envelope.Envelope

	recentMsgIDs sync.Map // "<channelID>:<messageID>" -> time.Time
	dedupeCount  atomic.Int64

	missedCaught atomic.Int64
}

// New builds a Source. api is a connected gotd/td client; channelIDs are
// the distinct channel identifiers pulled from config.Config.ChatChannelIDs.
func New(api *tg.Client, chatStore *cursor.ChatStore, channelIDs []string) *Source {
	return &Source{
		api:        api,
		chatStore:  chatStore,
		classifier: attachment.NewClassifier(),
		channelIDs: channelIDs,
		peers:      newPeerCache(api),
		Envelopes:  make(chan *envelope.Envelope, 64),
	}
}

// ResolveSendPeer implements destination.PeerResolver, letting the chat
// sender reuse this source's entity cache instead of keeping its own.
func (s *Source) ResolveSendPeer(ctx context.Context, channelID string) (tg.InputPeerClass, error) {
	return s.peers.resolve(ctx, channelID)
}

// MissedMessagesCaught returns the running count of gap-recovery hits, for
// the orchestrator to fold into the session metrics snapshot.
func (s *Source) MissedMessagesCaught() int64 {
	return s.missedCaught.Load()
}

// Start performs the startup proof for every configured channel (fetch the
// latest message, log connection-established, seed the cursor) and then
// launches one gap-recovery poll loop per channel. It returns once all
// startup proofs have completed; ctx governs the background poll loops.
func (s *Source) Start(ctx context.Context) error {
	if err := s.warmDialogs(ctx); err != nil {
		logger.WarnCF("chatsource", "warming dialog peer cache", map[string]any{"error": err.Error()})
	}

	for _, channelID := range s.channelIDs {
		if err := s.startupProof(ctx, channelID); err != nil {
			logger.ErrorCF("chatsource", "startup proof failed", map[string]any{
				"channel_id": channelID, "error": err.Error(),
			})
			continue
		}
		go s.pollLoop(ctx, channelID)
	}
	return nil
}

// Shutdown deletes every chat cursor file, per spec.md §4.11's clean-
// shutdown contract: the chat cursor never survives a restart.
func (s *Source) Shutdown() {
	s.chatStore.Clear()
}

// submit pushes env onto Envelopes, skipping and logging a prior-seen
// (channel, message id) pair. Safe for concurrent use by the live handler
// path and the poll loop.
func (s *Source) submit(env *envelope.Envelope, messageID int64) {
	key := dedupeKey(env.ChannelID, messageID)
	if _, loaded := s.recentMsgIDs.LoadOrStore(key, time.Now()); loaded {
		logger.DebugCF("chatsource", "duplicate message skipped", map[string]any{
			"channel_id": env.ChannelID, "message_id": messageID,
		})
		return
	}
	if s.dedupeCount.Add(1) >= dedupeCleanThreshold {
		s.cleanExpiredDedupeEntries()
	}

	s.Envelopes <- env

	if current, ok := s.chatStore.Read(env.ChannelID); !ok || messageID > current {
		if err := s.chatStore.Write(env.ChannelID, env.ChannelName, messageID); err != nil {
			logger.WarnCF("chatsource", "writing cursor", map[string]any{
				"channel_id": env.ChannelID, "error": err.Error(),
			})
		}
	}
}

func (s *Source) cleanExpiredDedupeEntries() {
	cutoff := time.Now().Add(-dedupeExpiry)
	s.recentMsgIDs.Range(func(key, value any) bool {
		if ts, ok := value.(time.Time); ok && ts.Before(cutoff) {
			s.recentMsgIDs.Delete(key)
		}
		return true
	})
	s.dedupeCount.Store(0)
}

func dedupeKey(channelID string, messageID int64) string {
	var b strings.Builder
	b.WriteString(channelID)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(messageID, 10))
	return b.String()
}
