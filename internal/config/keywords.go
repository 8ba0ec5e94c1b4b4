package config

import (
	"bufio"
	"os"
	"strings"
)

// resolveKeywords flattens an optional keyword document into a plain string
// list, reading any referenced keyword files. A nil doc means "match-all"
// (empty slice). Duplicates are permitted and left as-is per spec.md §4.6.
func resolveKeywords(doc *keywordDoc) ([]string, error) {
	if doc == nil {
		return nil, nil
	}

	keywords := append([]string{}, doc.Inline...)
	for _, path := range doc.Files {
		fromFile, err := readKeywordFile(path)
		if err != nil {
			return nil, errf("keywords", "reading %s: %w", path, err)
		}
		keywords = append(keywords, fromFile...)
	}
	return keywords, nil
}

func readKeywordFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}
