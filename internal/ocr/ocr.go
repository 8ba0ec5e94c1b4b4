// Package ocr wraps github.com/otiai10/gosseract to pull text out of image
// attachments when a channel rule asks for it (spec.md §4.5). Tesseract
// clients are not goroutine-safe, so all calls serialize through a single
// lazily-created instance.
package ocr

import (
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/ctirelay/relay/internal/logger"
)

// Adapter lazily owns one gosseract.Client, protected by mu. Construct with
// NewAdapter; the zero value is not usable.
type Adapter struct {
	mu        sync.Mutex
	client    *gosseract.Client
	available bool
	checked   bool
}

// NewAdapter returns an Adapter that has not yet probed Tesseract
// availability; the probe runs lazily on first use.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Available reports whether a usable Tesseract installation was found. The
// result is cached after the first call.
func (a *Adapter) Available() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ensureClientLocked()
	return a.available
}

// Extract runs OCR over the image at path and returns its recognized text.
// A failure (missing Tesseract, unreadable image) is logged and reported as
// ok=false; it never aborts message processing (spec.md §7,
// PreprocessFailure).
func (a *Adapter) Extract(path string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ensureClientLocked()
	if !a.available {
		return "", false
	}

	a.client.SetImage(path)
	text, err := a.client.Text()
	if err != nil {
		logger.WarnCF("ocr", "extraction failed", map[string]any{"path": path, "error": err.Error()})
		return "", false
	}
	return text, true
}

// Close releases the underlying Tesseract client, if one was created.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	return err
}

func (a *Adapter) ensureClientLocked() {
	if a.checked {
		return
	}
	a.checked = true

	client, err := newGosseractClient()
	if err != nil {
		logger.WarnCF("ocr", "tesseract unavailable", map[string]any{"error": err.Error()})
		a.available = false
		return
	}

	a.client = client
	a.available = true
}

func newGosseractClient() (client *gosseract.Client, err error) {
	defer func() {
		if r := recover(); r != nil {
			client = nil
			err = fmt.Errorf("gosseract init panic: %v", r)
		}
	}()
	return gosseract.NewClient(), nil
}
