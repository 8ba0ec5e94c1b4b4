package format

import "strings"

// ChatMessageURL builds a t.me link per spec.md §4.8: public channels use
// the handle form, private (-100-prefixed) channels use the numeric /c/
// form with the prefix stripped.
func ChatMessageURL(channelID, messageID string) string {
	if strings.HasPrefix(channelID, "@") {
		return "https://t.me/" + strings.TrimPrefix(channelID, "@") + "/" + messageID
	}
	if strings.HasPrefix(channelID, "-100") {
		return "https://t.me/c/" + strings.TrimPrefix(channelID, "-100") + "/" + messageID
	}
	return "https://t.me/" + channelID + "/" + messageID
}
