package relay

import "strings"

// fenceMarker is the opening of a fenced block, with or without a language tag.
const fenceMarker = "```"

// Postprocess normalizes raw model output before synthesis: surrounding
// whitespace is trimmed, and when the whole reply is wrapped in a fenced
// block the first and last line of the wrapper are stripped.
//
// Only a full wrap is unwrapped; a fence appearing mid-reply is left alone.
func Postprocess(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, fenceMarker) {
		return s
	}

	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	if !strings.HasPrefix(last, fenceMarker) {
		return s
	}

	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}
