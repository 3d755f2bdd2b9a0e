// Package codec converts between item lists and the delimited answer format
// used in few-shot demonstrations and model completions.
//
// Items are joined with Delimiter and the answer is terminated by StopToken.
// Decode does not remove StopToken; the provider's stop-sequence truncation is
// expected to have dropped it already. The delimiter is never escaped, so an
// item containing it decodes as several items.
package codec

import (
	"strings"
)

const (
	Delimiter = ";;;"
	StopToken = "!!!"

	// answerLabel is the leading label a text model echoes after "A:" prompts.
	answerLabel = "A:"
)

// Encode joins items with Delimiter.
func Encode(items []string) string {
	return strings.Join(items, Delimiter)
}

// Decode strips a leading answer label, splits on Delimiter and trims each item.
func Decode(raw string) []string {
	raw = strings.TrimPrefix(strings.TrimLeft(raw, " \t\r\n"), answerLabel)
	parts := strings.Split(raw, Delimiter)
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// Suspect reports whether a decoded answer looks unparsed: a single item
// usually means the model ignored the delimiter.
func Suspect(items []string) bool {
	return len(items) == 1
}
