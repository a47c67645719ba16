// Package agentid implements the normalized agent identifier policy.
//
// Workers and the computer-use driver containers announce themselves with
// vendor-suffixed ids like "agent2-cua". Storage paths, database joins and
// the dashboard all use the normalized form, so normalization happens once
// at every ingress and the normalized id is carried everywhere after that.
package agentid

import "strings"

// vendorSuffixes are stripped from the end of a raw agent id.
var vendorSuffixes = []string{"-cua", "-vm", "-sandbox"}

// Normalize lowercases a raw agent identifier and strips a trailing vendor
// suffix. It is a pure function; calling it on an already-normalized id is
// a no-op.
//
//	Normalize("agent2-cua") == "agent2"
//	Normalize("Agent1")     == "agent1"
func Normalize(raw string) string {
	id := strings.ToLower(strings.TrimSpace(raw))
	for _, suffix := range vendorSuffixes {
		if trimmed, ok := strings.CutSuffix(id, suffix); ok && trimmed != "" {
			return trimmed
		}
	}
	return id
}
