package attachment

import "testing"

func TestIsSafe_BothOnAllowList(t *testing.T) {
	c := NewClassifier()
	if !c.IsSafe("report.csv", "text/csv") {
		t.Fatal("want safe for report.csv/text/csv")
	}
	if !c.IsSafe("dump.json", "application/json") {
		t.Fatal("want safe for dump.json/application/json")
	}
}

func TestIsSafe_ExtensionOnlyMatchIsUnsafe(t *testing.T) {
	c := NewClassifier()
	if c.IsSafe("report.csv", "application/pdf") {
		t.Fatal("want unsafe: mime not on allow-list")
	}
}

func TestIsSafe_MIMEOnlyMatchIsUnsafe(t *testing.T) {
	c := NewClassifier()
	if c.IsSafe("report.pdf", "text/csv") {
		t.Fatal("want unsafe: extension not on allow-list")
	}
}

func TestIsSafe_MissingFilenameOrMIME(t *testing.T) {
	c := NewClassifier()
	if c.IsSafe("", "text/csv") {
		t.Fatal("want unsafe: missing filename")
	}
	if c.IsSafe("report.csv", "") {
		t.Fatal("want unsafe: missing mime")
	}
}

func TestIsSafe_MIMEParametersIgnored(t *testing.T) {
	c := NewClassifier()
	if !c.IsSafe("notes.txt", "text/plain; charset=utf-8") {
		t.Fatal("want safe: charset parameter should be stripped before comparison")
	}
}

func TestIsSafe_CaseInsensitiveExtension(t *testing.T) {
	c := NewClassifier()
	if !c.IsSafe("REPORT.CSV", "text/csv") {
		t.Fatal("want safe: extension match should be case-insensitive")
	}
}
