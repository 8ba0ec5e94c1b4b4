// Package metrics implements the in-memory session counters of spec.md
// §4.14/§6: atomic counters updated from many goroutines, snapshotted to
// tmp/metrics.json on a periodic best-effort basis.
package metrics

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"time"

	"github.com/ctirelay/relay/internal/logger"
)

// Collector holds every session counter named across spec.md's component
// descriptions. Zero value is ready to use.
type Collector struct {
	MessagesReceivedChat atomic.Int64
	MessagesReceivedFeed atomic.Int64
	OCRProcessed         atomic.Int64
	NoDestination        atomic.Int64
	QueuedRetry          atomic.Int64
	RoutedSuccess        atomic.Int64
	RoutedFailed         atomic.Int64
	SentWebhook          atomic.Int64
	SentChat             atomic.Int64
	MissedMessagesCaught atomic.Int64
}

// New returns a ready-to-use Collector.
func New() *Collector {
	return &Collector{}
}

// snapshot is the JSON-serializable view written to disk.
type snapshot struct {
	MessagesReceivedChat int64 `json:"messages_received_chat"`
	MessagesReceivedFeed int64 `json:"messages_received_feed"`
	OCRProcessed         int64 `json:"ocr_processed"`
	NoDestination        int64 `json:"no_destination"`
	QueuedRetry          int64 `json:"queued_retry"`
	RoutedSuccess        int64 `json:"routed_success"`
	RoutedFailed         int64 `json:"routed_failed"`
	SentWebhook          int64 `json:"sent_webhook"`
	SentChat             int64 `json:"sent_chat"`
	MissedMessagesCaught int64 `json:"missed_messages_caught"`
	SnapshotAt           string `json:"snapshot_at"`
}

// Snapshot returns the current counter values as a serializable struct.
func (c *Collector) Snapshot() any {
	return snapshot{
		MessagesReceivedChat: c.MessagesReceivedChat.Load(),
		MessagesReceivedFeed: c.MessagesReceivedFeed.Load(),
		OCRProcessed:         c.OCRProcessed.Load(),
		NoDestination:        c.NoDestination.Load(),
		QueuedRetry:          c.QueuedRetry.Load(),
		RoutedSuccess:        c.RoutedSuccess.Load(),
		RoutedFailed:         c.RoutedFailed.Load(),
		SentWebhook:          c.SentWebhook.Load(),
		SentChat:             c.SentChat.Load(),
		MissedMessagesCaught: c.MissedMessagesCaught.Load(),
		SnapshotAt:           time.Now().UTC().Format(time.RFC3339),
	}
}

// WriteSnapshot marshals the current counters to path. Failures are logged
// and swallowed: metrics persistence is best-effort (spec.md §6).
func (c *Collector) WriteSnapshot(path string) {
	data, err := json.MarshalIndent(c.Snapshot(), "", "  ")
	if err != nil {
		logger.WarnCF("metrics", "marshaling snapshot", map[string]any{"error": err.Error()})
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.WarnCF("metrics", "writing snapshot", map[string]any{"path": path, "error": err.Error()})
	}
}

// Run periodically snapshots to path until ctx is canceled, writing one
// final snapshot on the way out.
func (c *Collector) Run(ctx context.Context, path string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.WriteSnapshot(path)
			return
		case <-ticker.C:
			c.WriteSnapshot(path)
		}
	}
}
