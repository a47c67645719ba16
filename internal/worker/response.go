package worker

import (
	"strings"
)

// Markers the driver prints around its final answer. Not every driver build
// emits them; absent markers fall back to the stdout tail.
const (
	responseStartMarker = "AGENT_RESPONSE_START"
	responseEndMarker   = "AGENT_RESPONSE_END"

	// stdoutTailLimit bounds the fallback response when markers are missing.
	stdoutTailLimit = 64 << 10
)

// ExtractResponse pulls the driver's final answer out of its stdout. The
// region between the start and end markers wins; separator lines of repeated
// '=' are dropped. Without both markers the (at most 64 KiB) tail of stdout
// is used instead.
func ExtractResponse(stdout string) string {
	start := strings.Index(stdout, responseStartMarker)
	end := strings.Index(stdout, responseEndMarker)

	if start >= 0 && end > start {
		section := stdout[start+len(responseStartMarker) : end]
		var lines []string
		for _, line := range strings.Split(section, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || isSeparator(trimmed) {
				continue
			}
			lines = append(lines, line)
		}
		if resp := strings.TrimSpace(strings.Join(lines, "\n")); resp != "" {
			return resp
		}
	}

	tail := strings.TrimSpace(stdout)
	if len(tail) > stdoutTailLimit {
		tail = tail[len(tail)-stdoutTailLimit:]
	}
	return tail
}

func isSeparator(line string) bool {
	if len(line) < 4 {
		return false
	}
	for _, r := range line {
		if r != '=' {
			return false
		}
	}
	return true
}
