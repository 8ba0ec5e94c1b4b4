package attachment

import (
	"io"
	"os"
	"unicode/utf8"

	"github.com/ctirelay/relay/internal/logger"
)

// maxSafeReadBytes is the spec.md §4.4 hard cap: files larger than this are
// skipped rather than read, even if classifier-safe.
const maxSafeReadBytes = 5 * 1024 * 1024

// TextReader reads classifier-safe attachments for keyword search.
type TextReader struct {
	classifier *Classifier
}

// NewTextReader builds a TextReader backed by classifier.
func NewTextReader(classifier *Classifier) *TextReader {
	return &TextReader{classifier: classifier}
}

// Read returns the file's text content, or "", false if the attachment is
// classifier-unsafe, oversized, or unreadable. All failure paths are
// logged and non-fatal, per spec.md §4.4/§7 (PreprocessFailure).
func (r *TextReader) Read(path, filename, mime string) (string, bool) {
	if !r.classifier.IsSafe(filename, mime) {
		return "", false
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.WarnCF("attachment", "stat failed", map[string]any{"path": path, "error": err.Error()})
		return "", false
	}
	if info.Size() > maxSafeReadBytes {
		logger.WarnCF("attachment", "skipping oversized attachment", map[string]any{
			"path": path, "size_bytes": info.Size(),
		})
		return "", false
	}

	f, err := os.Open(path)
	if err != nil {
		logger.WarnCF("attachment", "open failed", map[string]any{"path": path, "error": err.Error()})
		return "", false
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxSafeReadBytes))
	if err != nil {
		logger.WarnCF("attachment", "read failed", map[string]any{"path": path, "error": err.Error()})
		return "", false
	}

	return decodeUTF8Replace(raw), true
}

// ReadForSearch extends Read for the router's keyword-search path: pdf,
// docx, and xlsx attachments are not on the restricted-mode safe list (they
// carry executable content risk when forwarded raw) but their text is still
// fair game for keyword matching, so ExtractRich is tried first before
// falling back to the plain safe-type path.
func (r *TextReader) ReadForSearch(path, filename, mime string) (string, bool) {
	if text, ok := ExtractRich(path); ok {
		return text, true
	}
	return r.Read(path, filename, mime)
}

// decodeUTF8Replace decodes raw bytes as UTF-8, replacing invalid sequences
// with U+FFFD, matching Python's "replace" error policy named in spec.md §4.4.
func decodeUTF8Replace(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}

	var out []rune
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		out = append(out, r)
		raw = raw[size:]
	}
	return string(out)
}
