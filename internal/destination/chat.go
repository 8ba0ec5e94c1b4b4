package destination

import (
	"context"
	cryptoRand "crypto/rand"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/ctirelay/relay/internal/chunk"
	"github.com/ctirelay/relay/internal/ratelimit"
)

const (
	chatBodyMax    = 4096
	chatCaptionMax = 1024
)

// PeerResolver turns a configured channel_id (handle or numeric id) into a
// gotd input peer. The chatsource package supplies the concrete
// implementation so both sides share one entity cache.
type PeerResolver interface {
	ResolveSendPeer(ctx context.Context, channelID string) (tg.InputPeerClass, error)
}

// ChatSender implements Sender over a live gotd/td client, per spec.md
// §4.9's chat branch: no-media chunking, in-caption media, and the
// captionless-then-chunked overflow branch.
type ChatSender struct {
	api      *tg.Client
	upload   *uploader.Uploader
	resolver PeerResolver
	limiter  *ratelimit.Limiter
}

// NewChatSender builds a ChatSender sharing limiter across destinations.
func NewChatSender(api *tg.Client, resolver PeerResolver, limiter *ratelimit.Limiter) *ChatSender {
	return &ChatSender{api: api, upload: uploader.NewUploader(api), resolver: resolver, limiter: limiter}
}

// Send implements Sender. endpoint is the destination's configured chat id.
func (s *ChatSender) Send(endpoint, body, mediaPath string) Result {
	ctx := context.Background()

	if err := s.limiter.Reserve(ctx, "chat:"+endpoint); err != nil {
		return Result{Outcome: OutcomeError, Err: err}
	}

	peer, err := s.resolver.ResolveSendPeer(ctx, endpoint)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("resolving chat peer %s: %w", endpoint, err)}
	}

	var result Result
	switch {
	case mediaPath == "":
		result = s.sendChunkedText(ctx, peer, body)
	case len([]rune(body)) <= chatCaptionMax:
		result = s.sendMediaWithCaption(ctx, peer, mediaPath, body)
	default:
		result = s.sendMediaCaptionless(ctx, peer, mediaPath)
		if result.Outcome == OutcomeOK {
			result = s.sendChunkedText(ctx, peer, body)
		}
	}

	if result.Outcome == OutcomeRateLimited {
		s.limiter.Register("chat:"+endpoint, result.RetryAfter)
	}
	return result
}

func (s *ChatSender) sendChunkedText(ctx context.Context, peer tg.InputPeerClass, body string) Result {
	for _, part := range chunk.Split(body, chatBodyMax) {
		if _, err := s.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:     peer,
			Message:  part,
			RandomID: randomID(),
		}); err != nil {
			return classifyChatError(err)
		}
	}
	return Result{Outcome: OutcomeOK}
}

func (s *ChatSender) sendMediaWithCaption(ctx context.Context, peer tg.InputPeerClass, mediaPath, caption string) Result {
	media, err := s.uploadMedia(ctx, mediaPath)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: err}
	}

	if _, err := s.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
		Peer:     peer,
		Media:    media,
		Message:  caption,
		RandomID: randomID(),
	}); err != nil {
		return classifyChatError(err)
	}
	return Result{Outcome: OutcomeOK}
}

func (s *ChatSender) sendMediaCaptionless(ctx context.Context, peer tg.InputPeerClass, mediaPath string) Result {
	return s.sendMediaWithCaption(ctx, peer, mediaPath, "")
}

func (s *ChatSender) uploadMedia(ctx context.Context, path string) (tg.InputMediaClass, error) {
	file, err := s.upload.FromPath(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("uploading media %s: %w", path, err)
	}

	if strings.HasPrefix(classifyExtMedia(path), "image") {
		return &tg.InputMediaUploadedPhoto{File: file}, nil
	}
	return &tg.InputMediaUploadedDocument{
		File:     file,
		MimeType: "application/octet-stream",
		Attributes: []tg.DocumentAttributeClass{
			&tg.DocumentAttributeFilename{FileName: filepath.Base(path)},
		},
	}, nil
}

func classifyExtMedia(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return "image"
	default:
		return "document"
	}
}

// classifyChatError inspects a gotd error for a typed flood-wait duration,
// per spec.md §4.9's "typed flood wait error carrying a duration".
func classifyChatError(err error) Result {
	if d, ok := tgerr.FloodWait(err); ok {
		return Result{Outcome: OutcomeRateLimited, RetryAfter: d}
	}
	return Result{Outcome: OutcomeError, Err: err}
}

func randomID() int64 {
	var b [8]byte
	_, _ = randRead(b[:])
	n := int64(0)
	for _, c := range b {
		n = n<<8 | int64(c)
	}
	if n < 0 {
		n = -n
	}
	return n
}

// randRead supplies randomID's bytes from crypto/rand.
var randRead = cryptoRandRead

func cryptoRandRead(b []byte) (int, error) {
	return cryptoRand.Read(b)
}
