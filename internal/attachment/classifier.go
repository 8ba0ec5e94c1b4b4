// Package attachment implements the safe-type allow-list classifier and
// bounded text extraction used both to pre-filter restricted-mode media and
// to pull searchable text out of attachments for keyword routing.
package attachment

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// safeExtensions and safeMIMETypes are the two fixed allow-lists of
// spec.md §4.3. Both must contain the observed value for IsSafe to pass.
var safeExtensions = map[string]bool{
	".txt": true, ".csv": true, ".log": true, ".sql": true,
	".xml": true, ".dat": true, ".db": true, ".mdb": true, ".json": true,
}

var safeMIMETypes = map[string]bool{
	"text/plain":       true,
	"text/csv":         true,
	"text/xml":         true,
	"application/xml":  true,
	"application/json": true,
	"application/sql":  true,
	"application/x-sqlite3": true,
	"application/octet-stream": true,
	"application/vnd.ms-access": true,
}

// Classifier answers whether a (filename, mime) pair is safe to forward to
// a restricted-mode destination or to read for keyword search.
type Classifier struct{}

// NewClassifier returns a ready-to-use Classifier. It has no state.
func NewClassifier() *Classifier { return &Classifier{} }

// IsSafe reports whether both filename's extension and mime are on the
// fixed allow-lists. A missing filename or mime is always unsafe.
func (c *Classifier) IsSafe(filename, mime string) bool {
	if filename == "" || mime == "" {
		return false
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !safeExtensions[ext] {
		return false
	}
	return safeMIMETypes[normalizeMIME(mime)]
}

// DetectMIME sniffs a local file's content type, preferring
// github.com/h2non/filetype's signature matching and falling back to
// stdlib content sniffing, mirroring the teacher's detectMediaType.
func DetectMIME(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n == 0 {
		return ""
	}
	buf = buf[:n]

	if kind, err := filetype.Match(buf); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}

	return normalizeMIME(http.DetectContentType(buf))
}

func normalizeMIME(mime string) string {
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.TrimSpace(mime)
}
