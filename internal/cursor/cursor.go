// Package cursor implements the two on-disk cursor logs of spec.md §3/§6:
// a non-persistent chat cursor cleared on clean shutdown, and a persistent
// feed cursor.
package cursor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ctirelay/relay/internal/logger"
)

// sanitizeID makes a channel or feed identifier safe to use as a filename.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ChatStore persists the last-processed message id per chat channel under
// tmp/telegramlog/. It is non-persistent by design: Clear deletes every
// file it manages, called once at clean shutdown.
type ChatStore struct {
	dir string
}

// NewChatStore returns a ChatStore rooted at dir (created if absent).
func NewChatStore(dir string) (*ChatStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating chat cursor dir: %w", err)
	}
	return &ChatStore{dir: dir}, nil
}

func (s *ChatStore) path(channelID string) string {
	return filepath.Join(s.dir, sanitizeID(channelID)+".txt")
}

// Write creates or overwrites a channel's cursor file in the two-line
// `display_name\nlast_message_id` format.
func (s *ChatStore) Write(channelID, displayName string, lastMessageID int64) error {
	content := fmt.Sprintf("%s\n%d\n", displayName, lastMessageID)
	return os.WriteFile(s.path(channelID), []byte(content), 0o644)
}

// Read returns the last persisted message id for channelID, or ok=false if
// no cursor file exists yet.
func (s *ChatStore) Read(channelID string) (lastMessageID int64, ok bool) {
	f, err := os.Open(s.path(channelID))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, false
	}
	if !scanner.Scan() {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(scanner.Text()), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Clear deletes every cursor file this store has written, per spec.md
// §4.11's clean-shutdown rationale: the next startup re-anchors fresh
// rather than backfilling a long outage.
func (s *ChatStore) Clear() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logger.WarnCF("cursor", "reading chat cursor dir for cleanup", map[string]any{"error": err.Error()})
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil {
			logger.WarnCF("cursor", "removing chat cursor file", map[string]any{"path": path, "error": err.Error()})
		}
	}
}

// FeedStore persists the last-processed entry timestamp per feed URL under
// tmp/rsslog/. Unlike ChatStore, this is persistent across restarts.
type FeedStore struct {
	dir string
}

// NewFeedStore returns a FeedStore rooted at dir (created if absent).
func NewFeedStore(dir string) (*FeedStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating feed cursor dir: %w", err)
	}
	return &FeedStore{dir: dir}, nil
}

func (s *FeedStore) path(feedName string) string {
	return filepath.Join(s.dir, sanitizeID(feedName)+".txt")
}

// Write persists ts as the feed's new cursor in ISO-8601 form.
func (s *FeedStore) Write(feedName string, ts time.Time) error {
	return os.WriteFile(s.path(feedName), []byte(ts.UTC().Format(time.RFC3339)+"\n"), 0o644)
}

// Read returns the feed's persisted cursor, or ok=false if absent or
// unparseable.
func (s *FeedStore) Read(feedName string) (ts time.Time, ok bool) {
	raw, err := os.ReadFile(s.path(feedName))
	if err != nil {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(string(raw)))
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
