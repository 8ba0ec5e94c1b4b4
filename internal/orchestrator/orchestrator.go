// Package orchestrator wires every other package into the per-envelope
// pipeline state machine of spec.md §4.13: preprocessing, routing, media
// policy, per-destination delivery, retry enqueue, and cleanup. It owns the
// shared resources spec.md §5 requires race-free access to: the
// MetricsCollector, the RetryQueue, and the downloaded media file for the
// duration of one envelope's handling.
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ctirelay/relay/internal/attachment"
	"github.com/ctirelay/relay/internal/config"
	"github.com/ctirelay/relay/internal/destination"
	"github.com/ctirelay/relay/internal/envelope"
	"github.com/ctirelay/relay/internal/logger"
	"github.com/ctirelay/relay/internal/metrics"
	"github.com/ctirelay/relay/internal/ocr"
	"github.com/ctirelay/relay/internal/retryqueue"
	"github.com/ctirelay/relay/internal/router"
)

// metricsSnapshotInterval is the periodic-snapshot cadence named in
// spec.md §4.13's startup summary.
const metricsSnapshotInterval = 30 * time.Second

// destinationBurstRate/destinationBurstSize shape the steady-state send
// rate per destination, underneath ratelimit.Limiter's cooldown-deadline
// table: a burst of destinationBurstSize sends refills at
// destinationBurstRate per second, smoothing out bursts of matched
// envelopes before they ever reach a sender's own rate-limit handling.
const (
	destinationBurstRate = rate.Limit(2)
	destinationBurstSize = 4
)

// MediaDownloader fetches an envelope's attached media to destPath. Only
// the chat source implements one; feed entries never carry downloadable
// media (spec.md §4.12), so a nil MediaDownloader is valid when no
// destination subscribes to any chat channel.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, env *envelope.Envelope, destPath string) error
}

// MissedCounter reports a chat source's running gap-recovery count, for
// folding into the session metrics snapshot. Only chatsource.Source
// implements it; a MediaDownloader that doesn't is simply never folded.
type MissedCounter interface {
	MissedMessagesCaught() int64
}

// ChatMessageID extracts the source message id behind a chat envelope, for
// building its defanged permalink. ChatFilename extracts the attachment's
// original filename, for the restricted-mode safety check and the media
// policy's allow-list lookup. Both are nil when no chat client is built
// (no chat channel subscription and no chat-kind destination).
type ChatMessageID func(env *envelope.Envelope) (messageID string, ok bool)
type ChatFilename func(env *envelope.Envelope) (filename string, ok bool)

// Options bundles an Orchestrator's dependencies. Every field is required
// except ChatDownloader/MessageID/DocumentName, which stay nil when the
// loaded configuration needs no chat client.
type Options struct {
	Table   *router.Table
	Metrics *metrics.Collector
	OCR     *ocr.Adapter

	// Senders and DestinationKinds are keyed by config.Destination.Name.
	Senders          map[string]destination.Sender
	DestinationKinds map[string]config.DestinationKind

	ChatDownloader MediaDownloader
	MessageID      ChatMessageID
	DocumentName   ChatFilename

	ChatEnvelopes <-chan *envelope.Envelope
	FeedEnvelopes <-chan *envelope.Envelope

	AttachmentsDir string
	MetricsPath    string
}

// Orchestrator drives the pipeline state machine over envelopes arriving
// from the chat and feed sources.
type Orchestrator struct {
	table   *router.Table
	metrics *metrics.Collector
	ocr     *ocr.Adapter
	retry   *retryqueue.Queue

	classifier *attachment.Classifier
	textReader *attachment.TextReader

	senders   map[string]destination.Sender
	destKinds map[string]config.DestinationKind

	chatDownloader MediaDownloader
	messageID      ChatMessageID
	documentName   ChatFilename

	chatEnvelopes <-chan *envelope.Envelope
	feedEnvelopes <-chan *envelope.Envelope

	attachmentsDir string
	metricsPath    string

	burstMu   sync.Mutex
	burstLims map[string]*rate.Limiter

	wg sync.WaitGroup
}

// New builds an Orchestrator from opts, wiring its own RetryQueue over
// opts.Senders so a retried delivery goes through the exact same sender
// instance (and therefore the exact same RateLimiter) a live send would.
func New(opts Options) *Orchestrator {
	classifier := attachment.NewClassifier()

	o := &Orchestrator{
		table:          opts.Table,
		metrics:        opts.Metrics,
		ocr:            opts.OCR,
		classifier:     classifier,
		textReader:     attachment.NewTextReader(classifier),
		senders:        opts.Senders,
		destKinds:      opts.DestinationKinds,
		chatDownloader: opts.ChatDownloader,
		messageID:      opts.MessageID,
		documentName:   opts.DocumentName,
		chatEnvelopes:  opts.ChatEnvelopes,
		feedEnvelopes:  opts.FeedEnvelopes,
		attachmentsDir: opts.AttachmentsDir,
		metricsPath:    opts.MetricsPath,
		burstLims:      make(map[string]*rate.Limiter),
	}
	o.retry = retryqueue.New(o.dispatchRetry)
	return o
}

// burstLimiterFor lazily creates a destination's token bucket on first use.
func (o *Orchestrator) burstLimiterFor(destinationName string) *rate.Limiter {
	o.burstMu.Lock()
	defer o.burstMu.Unlock()

	lim, ok := o.burstLims[destinationName]
	if !ok {
		lim = rate.NewLimiter(destinationBurstRate, destinationBurstSize)
		o.burstLims[destinationName] = lim
	}
	return lim
}

// Run purges stale attachments from a previous crash, starts the RetryQueue
// tick loop and the periodic metrics snapshot loop, then dispatches
// envelopes from both sources until ctx is canceled. It returns once every
// in-flight handler has finished and a final metrics snapshot is written.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := purgeAttachments(o.attachmentsDir); err != nil {
		logger.WarnCF("orchestrator", "purging stale attachments", map[string]any{"error": err.Error()})
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.retry.Run(ctx)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.metrics.Run(ctx, o.metricsPath, metricsSnapshotInterval)
	}()

	if o.chatEnvelopes != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.drain(ctx, o.chatEnvelopes)
		}()
	}

	if o.feedEnvelopes != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.drain(ctx, o.feedEnvelopes)
		}()
	}

	if counter, ok := o.chatDownloader.(MissedCounter); ok {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.foldMissedMessages(ctx, counter)
		}()
	}

	<-ctx.Done()
	o.wg.Wait()
	o.metrics.WriteSnapshot(o.metricsPath)
	return nil
}

// drain processes one source's envelopes strictly in arrival order. Every
// chat channel shares this one read loop, so spec.md §5's "within a single
// chat channel, receipt order is preserved" guarantee holds trivially;
// cross-channel and cross-feed interleaving is unspecified and this loop's
// FIFO behavior is simply one valid interleaving among the allowed ones.
func (o *Orchestrator) drain(ctx context.Context, in <-chan *envelope.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			o.handle(ctx, env)
		}
	}
}

// foldMissedMessages copies counter's running total into the metrics
// snapshot every metricsSnapshotInterval, so spec.md §4.11's "missed
// messages caught" counter reflects gap recovery without the chat source
// needing its own handle on the metrics.Collector.
func (o *Orchestrator) foldMissedMessages(ctx context.Context, counter MissedCounter) {
	ticker := time.NewTicker(metricsSnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.metrics.MissedMessagesCaught.Store(counter.MissedMessagesCaught())
			return
		case <-ticker.C:
			o.metrics.MissedMessagesCaught.Store(counter.MissedMessagesCaught())
		}
	}
}

func purgeAttachments(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o755)
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) newAttachmentPath() string {
	return filepath.Join(o.attachmentsDir, uuid.NewString())
}

func (o *Orchestrator) bumpSent(destinationName string) {
	if o.destKinds[destinationName] == config.KindWebhook {
		o.metrics.SentWebhook.Add(1)
	} else {
		o.metrics.SentChat.Add(1)
	}
}

// dispatchRetry implements retryqueue.Dispatcher over the same sender
// instances the live pipeline uses, so a retried send respects the same
// per-destination RateLimiter cooldown.
func (o *Orchestrator) dispatchRetry(item retryqueue.Item) destination.Result {
	sender, ok := o.senders[item.DestinationName]
	if !ok {
		return destination.Result{Outcome: destination.OutcomeError}
	}
	if err := o.burstLimiterFor(item.DestinationName).Wait(context.Background()); err != nil {
		return destination.Result{Outcome: destination.OutcomeError, Err: err}
	}
	result := sender.Send(item.Endpoint, item.Body, item.MediaPath)
	if result.Outcome == destination.OutcomeOK {
		o.bumpSent(item.DestinationName)
	}
	return result
}
