package config

import (
	"strconv"

	"github.com/ctirelay/relay/internal/logger"
)

// resolveParser validates and converts a parserDoc into a ParserSpec. A nil
// doc yields a nil spec (no transform). Using both shapes at once is a
// configuration error surfaced at load (spec.md §4.7); negative or
// non-numeric field values are warned about and treated as "no transform".
func resolveParser(where string, doc *parserDoc) (*ParserSpec, error) {
	if doc == nil {
		return nil, nil
	}

	if doc.hasTrim() && doc.hasKeepFirst() {
		return nil, errf(where, "parser specifies both trim_front/trim_back and keep_first")
	}

	if doc.hasKeepFirst() {
		n, ok := parseNonNegative(doc.KeepFirst.String())
		if !ok || n <= 0 {
			logger.WarnCF("config", "invalid keep_first, leaving text unchanged", map[string]any{
				"where": where, "keep_first": doc.KeepFirst.String(),
			})
			return nil, nil
		}
		return &ParserSpec{Kind: ParserKeepFirst, KeepFirst: n}, nil
	}

	if doc.hasTrim() {
		front, frontOK := parseNonNegative(defaultZero(doc.TrimFront.String()))
		back, backOK := parseNonNegative(defaultZero(doc.TrimBack.String()))
		if !frontOK || !backOK {
			logger.WarnCF("config", "invalid trim_front/trim_back, leaving text unchanged", map[string]any{
				"where": where, "trim_front": doc.TrimFront.String(), "trim_back": doc.TrimBack.String(),
			})
			return nil, nil
		}
		return &ParserSpec{Kind: ParserTrim, TrimFront: front, TrimBack: back}, nil
	}

	return nil, nil
}

func defaultZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func parseNonNegative(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
