package config

import "encoding/json"

// document mirrors the on-disk JSON shape from spec.md §6 exactly; it is
// unmarshaled as-is and then resolved (env lookups, keyword file reads,
// parser validation) into the immutable Config/Destination/*Rule types.
type document struct {
	Destinations []destinationDoc `json:"destinations"`
}

type destinationDoc struct {
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	EnvKey   string       `json:"env_key"`
	Channels []channelDoc `json:"channels"`
	RSS      []feedDoc    `json:"rss"`
}

type channelDoc struct {
	ID               string      `json:"id"`
	Keywords         *keywordDoc `json:"keywords"`
	RestrictedMode   bool        `json:"restricted_mode"`
	OCR              bool        `json:"ocr"`
	CheckAttachments *bool       `json:"check_attachments"`
	Parser           *parserDoc  `json:"parser"`
}

type feedDoc struct {
	URL      string      `json:"url"`
	Name     string      `json:"name"`
	Keywords *keywordDoc `json:"keywords"`
	Parser   *parserDoc  `json:"parser"`
}

type keywordDoc struct {
	Files  []string `json:"files"`
	Inline []string `json:"inline"`
}

// parserDoc accepts loosely-typed JSON numbers so negative or fractional
// values, and numbers written as quoted strings, reach parser resolution,
// which warns about them and leaves the text unchanged. A value that is not
// a number at all, such as a quoted word or a boolean, fails the unmarshal
// and with it the whole config load.
type parserDoc struct {
	TrimFront json.Number `json:"trim_front"`
	TrimBack  json.Number `json:"trim_back"`
	KeepFirst json.Number `json:"keep_first"`
}

func (p *parserDoc) hasTrim() bool {
	return p.TrimFront != "" || p.TrimBack != ""
}

func (p *parserDoc) hasKeepFirst() bool {
	return p.KeepFirst != ""
}
