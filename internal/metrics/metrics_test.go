package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestCollector_ConcurrentIncrements(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.MessagesReceivedChat.Add(1)
			c.RoutedSuccess.Add(1)
		}()
	}
	wg.Wait()

	if got := c.MessagesReceivedChat.Load(); got != 100 {
		t.Fatalf("MessagesReceivedChat = %d, want 100", got)
	}
	if got := c.RoutedSuccess.Load(); got != 100 {
		t.Fatalf("RoutedSuccess = %d, want 100", got)
	}
}

func TestWriteSnapshot_RoundTrip(t *testing.T) {
	c := New()
	c.SentWebhook.Store(7)
	c.NoDestination.Store(2)

	path := filepath.Join(t.TempDir(), "metrics.json")
	c.WriteSnapshot(path)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if decoded["sent_webhook"].(float64) != 7 {
		t.Fatalf("sent_webhook = %v, want 7", decoded["sent_webhook"])
	}
	if decoded["no_destination"].(float64) != 2 {
		t.Fatalf("no_destination = %v, want 2", decoded["no_destination"])
	}
	if _, ok := decoded["snapshot_at"]; !ok {
		t.Fatal("snapshot missing snapshot_at timestamp")
	}
}
