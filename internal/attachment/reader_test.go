package attachment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTextReader_ReadsSafeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("CVE-2024-0001 observed"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewTextReader(NewClassifier())
	text, ok := r.Read(path, "notes.txt", "text/plain")
	if !ok {
		t.Fatal("Read() ok = false, want true")
	}
	if text != "CVE-2024-0001 observed" {
		t.Fatalf("text = %q", text)
	}
}

func TestTextReader_RejectsUnsafeType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.exe")
	if err := os.WriteFile(path, []byte("MZ"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewTextReader(NewClassifier())
	if _, ok := r.Read(path, "payload.exe", "application/octet-stream"); ok {
		t.Fatal("Read() ok = true, want false: .exe is not on the safe extension list")
	}
}

func TestTextReader_RejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	big := strings.Repeat("a", maxSafeReadBytes+1)
	if err := os.WriteFile(path, []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewTextReader(NewClassifier())
	if _, ok := r.Read(path, "big.txt", "text/plain"); ok {
		t.Fatal("Read() ok = true, want false: file exceeds the 5MB cap")
	}
}

func TestTextReader_MissingFile(t *testing.T) {
	r := NewTextReader(NewClassifier())
	if _, ok := r.Read("/nonexistent/path.txt", "path.txt", "text/plain"); ok {
		t.Fatal("Read() ok = true, want false for nonexistent file")
	}
}

func TestReadForSearch_FallsBackToSafeReaderForPlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("ransomware indicators"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewTextReader(NewClassifier())
	text, ok := r.ReadForSearch(path, "notes.txt", "text/plain")
	if !ok || text != "ransomware indicators" {
		t.Fatalf("ReadForSearch() = %q, %v", text, ok)
	}
}

func TestReadForSearch_UnsafeNonRichExtensionStillRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.exe")
	if err := os.WriteFile(path, []byte("MZ"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewTextReader(NewClassifier())
	if _, ok := r.ReadForSearch(path, "payload.exe", "application/octet-stream"); ok {
		t.Fatal("ReadForSearch() ok = true, want false for an unsafe non-document extension")
	}
}

func TestDecodeUTF8Replace_ValidPassesThrough(t *testing.T) {
	if got := decodeUTF8Replace([]byte("hello world")); got != "hello world" {
		t.Fatalf("decodeUTF8Replace = %q", got)
	}
}

func TestDecodeUTF8Replace_InvalidBytesReplaced(t *testing.T) {
	raw := []byte{'a', 0xff, 'b'}
	got := decodeUTF8Replace(raw)
	if !strings.Contains(got, "�") {
		t.Fatalf("decodeUTF8Replace(%v) = %q, want replacement char", raw, got)
	}
	if !strings.HasPrefix(got, "a") || !strings.HasSuffix(got, "b") {
		t.Fatalf("decodeUTF8Replace(%v) = %q, want surrounding bytes preserved", raw, got)
	}
}
