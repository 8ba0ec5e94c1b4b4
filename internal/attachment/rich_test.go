package attachment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractRich_UnsupportedExtensionFallsThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("irrelevant"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := ExtractRich(path); ok {
		t.Fatal("ExtractRich() ok = true, want false for .txt (not pdf/docx/xlsx)")
	}
}

func TestExtractRich_CorruptPDFFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	if err := os.WriteFile(path, []byte("not a real pdf"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := ExtractRich(path); ok {
		t.Fatal("ExtractRich() ok = true, want false for a corrupt PDF")
	}
}

func TestExtractRich_TruncatesToMaxChars(t *testing.T) {
	long := strings.Repeat("a", maxRichTextChars+5000)
	if len([]rune(long)) <= maxRichTextChars {
		t.Fatal("fixture text must exceed maxRichTextChars for this test to be meaningful")
	}

	path := filepath.Join(t.TempDir(), "long.xlsx")
	wb := excelize.NewFile()
	if err := wb.SetCellValue("Sheet1", "A1", long); err != nil {
		t.Fatal(err)
	}
	if err := wb.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	_ = wb.Close()

	text, ok := ExtractRich(path)
	if !ok {
		t.Fatal("ExtractRich() ok = false, want true for a readable xlsx")
	}
	if len([]rune(text)) != maxRichTextChars {
		t.Fatalf("len(text) = %d, want %d", len([]rune(text)), maxRichTextChars)
	}
}
