package orchestrator

import (
	"context"
	"os"
	"strings"

	"github.com/ctirelay/relay/internal/attachment"
	"github.com/ctirelay/relay/internal/config"
	"github.com/ctirelay/relay/internal/destination"
	"github.com/ctirelay/relay/internal/envelope"
	"github.com/ctirelay/relay/internal/format"
	"github.com/ctirelay/relay/internal/logger"
	"github.com/ctirelay/relay/internal/parser"
	"github.com/ctirelay/relay/internal/router"
)

// sourceURLMetadataKey is the envelope metadata field the formatter reads
// back at format/formatter.go's header step.
const sourceURLMetadataKey = "defanged_source_url"

// handle runs one envelope through the full per-message pipeline of
// spec.md §4.13: preprocess, route, apply media policy, dispatch to every
// matched destination, then clean up the downloaded media file. Every
// failure along the way is logged and swallowed; handle never blocks the
// drain loop behind a single bad message.
func (o *Orchestrator) handle(ctx context.Context, env *envelope.Envelope) {
	o.bumpReceived(env.SourceKind)

	o.preprocess(ctx, env)

	matches := o.route(ctx, env)
	if len(matches) == 0 {
		o.metrics.NoDestination.Add(1)
		o.cleanup(env)
		return
	}

	ok := false
	for _, m := range matches {
		if o.dispatch(ctx, m, env) {
			ok = true
		}
	}
	if ok {
		o.metrics.RoutedSuccess.Add(1)
	} else {
		o.metrics.RoutedFailed.Add(1)
	}

	o.cleanup(env)
}

func (o *Orchestrator) bumpReceived(kind envelope.SourceKind) {
	if kind == envelope.SourceFeed {
		o.metrics.MessagesReceivedFeed.Add(1)
	} else {
		o.metrics.MessagesReceivedChat.Add(1)
	}
}

// preprocess runs OCR and/or opportunistic media download ahead of routing.
// Media must be on disk before router.Table.Matches can evaluate a
// check_attachments rule, so this downloads eagerly whenever any rule on
// the envelope's channel wants either OCR or attachment text, rather than
// waiting for a destination match first.
func (o *Orchestrator) preprocess(ctx context.Context, env *envelope.Envelope) {
	if env.SourceKind != envelope.SourceChat {
		return
	}

	o.attachSourceURL(env)

	if !env.HasMedia {
		return
	}

	needsOCR := env.MediaKind == envelope.MediaImage && o.table.NeedsOCR(env.ChannelID)
	needsScan := o.table.NeedsAttachmentScan(env.ChannelID)
	if !needsOCR && !needsScan {
		return
	}

	if err := o.ensureMediaDownloaded(ctx, env); err != nil {
		logger.WarnCF("orchestrator", "preprocessing media download failed", map[string]any{
			"channel": env.ChannelID, "error": err.Error(),
		})
		return
	}

	if needsOCR {
		env.OCREnabled = true
		if text, ok := o.ocr.Extract(env.MediaPath); ok {
			env.OCRText = text
			o.metrics.OCRProcessed.Add(1)
		}
	}
}

// attachSourceURL sets the defanged t.me permalink metadata spec.md §4.8
// requires on every chat delivery, built from the source message id behind
// env. A feed envelope, or a chat client built without an id extractor, is
// left without one.
func (o *Orchestrator) attachSourceURL(env *envelope.Envelope) {
	if o.messageID == nil {
		return
	}
	messageID, ok := o.messageID(env)
	if !ok {
		return
	}
	url := format.ChatMessageURL(env.ChannelID, messageID)
	env.SetMetadata(sourceURLMetadataKey, format.DefangURL(url))
}

// ensureMediaDownloaded downloads env's media exactly once, keyed on
// MediaPath already being set, so preprocess, routing and dispatch can each
// call it without downloading twice. Callers pass the original envelope,
// not a per-destination copy, so cleanup sees the downloaded path.
func (o *Orchestrator) ensureMediaDownloaded(ctx context.Context, env *envelope.Envelope) error {
	if env.MediaPath != "" {
		return nil
	}
	if o.chatDownloader == nil {
		return nil
	}

	dest := o.newAttachmentPath()
	if err := o.chatDownloader.DownloadMedia(ctx, env, dest); err != nil {
		return err
	}
	env.MediaPath = dest
	return nil
}

func (o *Orchestrator) route(ctx context.Context, env *envelope.Envelope) []router.Match {
	path, name, mime := o.attachmentDescriptor(env)
	return o.table.Matches(env, o.textReader, path, name, mime)
}

// attachmentDescriptor downloads the envelope's media if routing will need
// to read it and it wasn't already fetched during preprocess, then returns
// the (path, filename, mime) triple router.Table.Matches needs to evaluate
// a check_attachments rule.
func (o *Orchestrator) attachmentDescriptor(env *envelope.Envelope) (path, name, mime string) {
	if !env.HasMedia || env.SourceKind != envelope.SourceChat {
		return "", "", ""
	}
	if !o.table.NeedsAttachmentScan(env.ChannelID) {
		return "", "", ""
	}
	if err := o.ensureMediaDownloaded(context.Background(), env); err != nil {
		return "", "", ""
	}

	filename := o.filenameFor(env)
	mime = attachment.DetectMIME(env.MediaPath)
	return env.MediaPath, filename, mime
}

func (o *Orchestrator) filenameFor(env *envelope.Envelope) string {
	if o.documentName == nil {
		return ""
	}
	name, ok := o.documentName(env)
	if !ok {
		return ""
	}
	return name
}

// dispatch applies the destination's parser, renders the variant Formatter
// appropriate to the destination's kind, waits for that destination's burst
// token, and sends. A failed send is enqueued onto the RetryQueue rather
// than dropped.
func (o *Orchestrator) dispatch(ctx context.Context, m router.Match, env *envelope.Envelope) bool {
	destEnv, filtered := o.applyMediaPolicy(m, env)
	destEnv = parser.Apply(destEnv, m.Rule.Parser)

	variant := format.Markdown
	if m.Destination.Kind == config.KindWebhook {
		variant = format.HTML
	}
	body := format.NewFormatter(variant).Render(destEnv, matchedKeywords(m.Rule.Keywords, destEnv))

	mediaPath := ""
	if destEnv.HasMedia && !filtered {
		if err := o.ensureMediaDownloaded(ctx, env); err != nil {
			logger.WarnCF("orchestrator", "ensuring media for delivery", map[string]any{
				"destination": m.Destination.Name, "error": err.Error(),
			})
		} else {
			mediaPath = env.MediaPath
		}
	}

	sender, ok := o.senders[m.Destination.Name]
	if !ok {
		logger.WarnCF("orchestrator", "no sender configured for destination", map[string]any{
			"destination": m.Destination.Name,
		})
		return false
	}

	if err := o.burstLimiterFor(m.Destination.Name).Wait(ctx); err != nil {
		return false
	}

	result := sender.Send(m.Destination.Endpoint, body, mediaPath)
	if result.Outcome == destination.OutcomeOK {
		o.bumpSent(m.Destination.Name)
		return true
	}

	o.metrics.QueuedRetry.Add(1)
	reason := "error"
	if result.Outcome == destination.OutcomeRateLimited {
		reason = "rate_limited"
	}
	o.retry.Enqueue(m.Destination.Name, m.Destination.Endpoint, body, mediaPath, reason)
	return false
}

// applyMediaPolicy implements spec.md §4.9's restricted_mode filter: under
// a restricted destination, media is dropped from the outgoing send unless
// the attachment's filename/MIME pass the same safe-type allow-list used
// for keyword extraction. The original envelope is left untouched; other
// destinations routing the same envelope see its media as normal.
func (o *Orchestrator) applyMediaPolicy(m router.Match, env *envelope.Envelope) (*envelope.Envelope, bool) {
	if !env.HasMedia || !m.Rule.RestrictedMode {
		return env, false
	}

	filename := o.filenameFor(env)
	mime := ""
	if env.MediaPath != "" {
		mime = attachment.DetectMIME(env.MediaPath)
	}
	if o.classifier.IsSafe(filename, mime) {
		return env, false
	}

	out := env.Clone()
	out.SetMetadata("media_filtered", "true")
	return out, true
}

// cleanup removes the downloaded attachment copy, if any. Deletion errors
// are logged, not fatal: a leftover file is swept on the next startup by
// purgeAttachments.
func (o *Orchestrator) cleanup(env *envelope.Envelope) {
	if env.MediaPath == "" {
		return
	}
	if err := os.Remove(env.MediaPath); err != nil && !os.IsNotExist(err) {
		logger.WarnCF("orchestrator", "removing downloaded media", map[string]any{
			"path": env.MediaPath, "error": err.Error(),
		})
	}
}

// matchedKeywords recomputes which of a rule's configured keywords appear
// in the envelope's own text/OCR text, for the formatter's "matched:"
// annotation. router.Match does not carry the matched subset itself, only
// the full rule; a keyword that matched solely via attachment content
// (check_attachments) is not re-surfaced here since the formatter only
// annotates what's visible in the rendered message.
func matchedKeywords(keywords []string, env *envelope.Envelope) []string {
	if len(keywords) == 0 {
		return nil
	}

	haystack := strings.ToLower(env.Text + "\n" + env.OCRText)
	var out []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			out = append(out, kw)
		}
	}
	return out
}
