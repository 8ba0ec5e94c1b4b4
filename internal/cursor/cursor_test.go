package cursor

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestChatStore_WriteReadRoundTrip(t *testing.T) {
	store, err := NewChatStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Write("-1001234", "SecNews", 42); err != nil {
		t.Fatal(err)
	}

	id, ok := store.Read("-1001234")
	if !ok || id != 42 {
		t.Fatalf("Read() = (%d, %v), want (42, true)", id, ok)
	}
}

func TestChatStore_ReadMissingIsNotOK(t *testing.T) {
	store, err := NewChatStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Read("nonexistent"); ok {
		t.Fatal("Read() ok = true, want false for missing cursor")
	}
}

func TestChatStore_ClearRemovesAllFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewChatStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Write("-1001234", "A", 1)
	_ = store.Write("@public", "B", 2)

	store.Clear()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("remaining entries after Clear() = %d, want 0", len(entries))
	}
}

func TestChatStore_SanitizesChannelIDForFilename(t *testing.T) {
	dir := t.TempDir()
	store, err := NewChatStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Write("@weird/chan:id", "X", 1); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if filepath.Ext(entries[0].Name()) != ".txt" {
		t.Fatalf("filename = %q, want .txt suffix", entries[0].Name())
	}
}

func TestFeedStore_WriteReadRoundTrip(t *testing.T) {
	store, err := NewFeedStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)
	if err := store.Write("SomeFeed", ts); err != nil {
		t.Fatal(err)
	}

	got, ok := store.Read("SomeFeed")
	if !ok {
		t.Fatal("Read() ok = false, want true")
	}
	if !got.Equal(ts) {
		t.Fatalf("Read() = %v, want %v", got, ts)
	}
}

func TestFeedStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	store1, err := NewFeedStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store1.Write("Feed", ts); err != nil {
		t.Fatal(err)
	}

	store2, err := NewFeedStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := store2.Read("Feed")
	if !ok || !got.Equal(ts) {
		t.Fatalf("Read() = (%v, %v), want (%v, true)", got, ok, ts)
	}
}
