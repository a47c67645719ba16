package store

import (
	"strings"
	"testing"
)

func TestNewObjectPath_AgentPrefixAndExtension(t *testing.T) {
	p := NewObjectPath("agent2", "periodic_screenshot_20250101.png")

	if !strings.HasPrefix(p, "agent2/") {
		t.Errorf("path %q does not start with agent2/", p)
	}
	if !strings.HasSuffix(p, ".png") {
		t.Errorf("path %q does not keep the .png extension", p)
	}
	// bucket names must never leak into the path
	if strings.Contains(p, "screenshots/") {
		t.Errorf("path %q re-prefixes the bucket", p)
	}
}

func TestNewObjectPath_DefaultExtension(t *testing.T) {
	if p := NewObjectPath("agent1", "blob"); !strings.HasSuffix(p, ".bin") {
		t.Errorf("path %q missing default extension", p)
	}
}

func TestNewObjectPath_Unique(t *testing.T) {
	a := NewObjectPath("agent1", "x.png")
	b := NewObjectPath("agent1", "x.png")
	if a == b {
		t.Errorf("two paths for the same filename collide: %q", a)
	}
}
