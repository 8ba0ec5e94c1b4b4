package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ctirelay/relay/internal/chatsource"
	"github.com/ctirelay/relay/internal/config"
	"github.com/ctirelay/relay/internal/cursor"
	"github.com/ctirelay/relay/internal/destination"
	"github.com/ctirelay/relay/internal/feedsource"
	"github.com/ctirelay/relay/internal/logger"
	"github.com/ctirelay/relay/internal/metrics"
	"github.com/ctirelay/relay/internal/ocr"
	"github.com/ctirelay/relay/internal/orchestrator"
	"github.com/ctirelay/relay/internal/ratelimit"
	"github.com/ctirelay/relay/internal/router"
)

func newMonitorCmd() *cobra.Command {
	var sources string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the relay pipeline until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			wantChat, wantFeed, err := parseSources(sources)
			if err != nil {
				return err
			}
			return runMonitor(cmd.Context(), wantChat, wantFeed)
		},
	}
	cmd.Flags().StringVar(&sources, "sources", "all", "which sources to run: all, chat, or feed")
	return cmd
}

func parseSources(sources string) (wantChat, wantFeed bool, err error) {
	switch strings.ToLower(sources) {
	case "all":
		return true, true, nil
	case "chat":
		return true, false, nil
	case "feed":
		return false, true, nil
	default:
		return false, false, fmt.Errorf("--sources must be one of all, chat, feed (got %q)", sources)
	}
}

// runMonitor implements spec.md §4.13's startup and shutdown sequence:
// purge stale attachments, resolve destination endpoints, begin the
// sources, begin the RetryQueue and metrics loops, then on a shutdown
// signal drain in-flight handlers, write final metrics, and clear chat
// cursors.
func runMonitor(parent context.Context, wantChat, wantFeed bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	table := router.Build(cfg)
	limiter := ratelimit.New()
	ocrAdapter := ocr.NewAdapter()
	defer ocrAdapter.Close()

	chatClient, err := buildChatClient(cfg)
	if err != nil {
		return fmt.Errorf("building chat client: %w", err)
	}

	feedSrc, err := buildFeedSource(cfg)
	if err != nil {
		return fmt.Errorf("building feed source: %w", err)
	}

	senders, kinds := buildSenders(cfg, chatClient, limiter)

	opts := orchestrator.Options{
		Table:            table,
		Metrics:          metrics.New(),
		OCR:              ocrAdapter,
		Senders:          senders,
		DestinationKinds: kinds,
		AttachmentsDir:   attachmentsDir,
		MetricsPath:      metricsPath,
	}
	if chatClient != nil {
		opts.ChatDownloader = chatClient.Source
		opts.MessageID = chatsource.MessageID
		opts.DocumentName = chatsource.DocumentFilename
	}
	if wantChat && chatClient != nil {
		opts.ChatEnvelopes = chatClient.Source.Envelopes
	}
	if wantFeed && feedSrc != nil {
		opts.FeedEnvelopes = feedSrc.Envelopes
	}

	orch := orchestrator.New(opts)

	var wg sync.WaitGroup

	if wantFeed && feedSrc != nil {
		feedSrc.Start(ctx)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := orch.Run(ctx); err != nil {
			logger.ErrorCF("monitor", "orchestrator stopped with error", map[string]any{"error": err.Error()})
		}
	}()

	if chatClient != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := chatClient.Run(ctx, func(runCtx context.Context) error {
				if wantChat {
					if err := chatClient.Source.Start(runCtx); err != nil {
						return err
					}
				}
				<-runCtx.Done()
				return nil
			})
			if err != nil && ctx.Err() == nil {
				logger.ErrorCF("monitor", "chat client stopped with error", map[string]any{"error": err.Error()})
			}
		}()
	}

	<-ctx.Done()
	logger.InfoC("monitor", "shutdown signal received, draining in-flight work")
	wg.Wait()

	if chatClient != nil {
		chatClient.Source.Shutdown()
	}
	return nil
}

// buildChatClient constructs the live gotd/td client whenever the loaded
// config needs chat credentials, whether that need comes from a
// subscribed channel or from a chat-kind destination that only sends.
func buildChatClient(cfg *config.Config) (*chatsource.Client, error) {
	if cfg.ChatAPIID == 0 {
		return nil, nil
	}

	chatStore, err := cursor.NewChatStore(telegramLogDir)
	if err != nil {
		return nil, fmt.Errorf("opening chat cursor store: %w", err)
	}

	return chatsource.NewClient(cfg.ChatAPIID, cfg.ChatAPIHash, sessionPath, chatStore, cfg.ChatChannelIDs())
}

func buildFeedSource(cfg *config.Config) (*feedsource.Source, error) {
	urls := cfg.UniqueFeedURLs()
	if len(urls) == 0 {
		return nil, nil
	}
	feedStore, err := cursor.NewFeedStore(rssLogDir)
	if err != nil {
		return nil, fmt.Errorf("opening feed cursor store: %w", err)
	}
	return feedsource.New(feedStore, urls), nil
}

// buildSenders constructs one destination.Sender per configured
// destination, sharing a single ratelimit.Limiter across all of them so
// every destination's cooldown lives in one table keyed by kind-qualified
// destination identifier.
func buildSenders(cfg *config.Config, chatClient *chatsource.Client, limiter *ratelimit.Limiter) (map[string]destination.Sender, map[string]config.DestinationKind) {
	senders := make(map[string]destination.Sender)
	kinds := make(map[string]config.DestinationKind)

	for _, d := range cfg.Destinations {
		kinds[d.Name] = d.Kind
		switch d.Kind {
		case config.KindWebhook:
			senders[d.Name] = destination.NewWebhookSender(limiter)
		case config.KindChat:
			if chatClient == nil {
				logger.WarnCF("monitor", "chat destination configured without a chat client", map[string]any{"destination": d.Name})
				continue
			}
			senders[d.Name] = destination.NewChatSender(chatClient.API(), chatClient.Source, limiter)
		}
	}
	return senders, kinds
}
