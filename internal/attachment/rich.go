package attachment

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	godocx "github.com/gomutex/godocx"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/ctirelay/relay/internal/logger"
)

// maxRichTextChars bounds in-memory text produced by the richer extractors,
// independent of the safe-type reader's byte cap (spec.md §4.4 only
// mandates the safe-type path; this supplements it for document types the
// teacher's processor already knows how to read).
const maxRichTextChars = 20000

// ExtractRich pulls search text out of pdf/docx/xlsx attachments. It is a
// supplemented feature (SPEC_FULL.md §7): a destination's check_attachments
// rule may still fall through to the plain safe-type TextReader for
// anything this function doesn't recognize.
func ExtractRich(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		text string
		err  error
	)

	switch ext {
	case ".pdf":
		text, err = extractPDFText(path)
	case ".docx":
		text, err = extractDOCXText(path)
	case ".xlsx":
		text, err = extractXLSXText(path)
	default:
		return "", false
	}

	if err != nil {
		logger.WarnCF("attachment", "rich extraction failed", map[string]any{
			"path": path, "ext": ext, "error": err.Error(),
		})
		return "", false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if len([]rune(text)) > maxRichTextChars {
		text = string([]rune(text)[:maxRichTextChars])
	}
	return text, true
}

// extractPDFText uses github.com/ledongthuc/pdf, handling CIDFont/ToUnicode
// CMap encodings the way the teacher's extractPDFText does.
func extractPDFText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plainText, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(plainText, int64(maxRichTextChars)*4))
	if err != nil {
		return "", err
	}

	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no extractable text found in PDF")
	}
	return text, nil
}

func extractDOCXText(path string) (string, error) {
	document, err := godocx.OpenDocument(path)
	if err != nil {
		return "", err
	}

	if document.Document == nil || document.Document.Body == nil {
		return "", fmt.Errorf("document body not found")
	}

	var out strings.Builder
	for _, child := range document.Document.Body.Children {
		if child.Para == nil {
			continue
		}
		appendParagraphText(&out, child.Para.GetCT().Children)
		out.WriteByte('\n')
	}

	return out.String(), nil
}

func appendParagraphText(builder *strings.Builder, children []ctypes.ParagraphChild) {
	for _, child := range children {
		if child.Run != nil {
			for _, runChild := range child.Run.Children {
				switch {
				case runChild.Text != nil:
					builder.WriteString(runChild.Text.Text)
				case runChild.Tab != nil:
					builder.WriteByte('\t')
				case runChild.Break != nil || runChild.CarrRtn != nil:
					builder.WriteByte('\n')
				}
			}
		}
		if child.Link != nil {
			appendParagraphText(builder, child.Link.Children)
		}
	}
}

func extractXLSXText(path string) (string, error) {
	workbook, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = workbook.Close() }()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("worksheets not found")
	}

	var out strings.Builder
	for i, sheet := range sheets {
		if i > 0 {
			out.WriteString("\n\n")
		}
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return "", err
		}
		for _, row := range rows {
			out.WriteString(strings.Join(row, "\t"))
			out.WriteByte('\n')
		}
	}

	return out.String(), nil
}
