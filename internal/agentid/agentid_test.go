package agentid

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"agent1", "agent1"},
		{"agent2-cua", "agent2"},
		{"AGENT3-CUA", "agent3"},
		{"Agent1", "agent1"},
		{"agent4-vm", "agent4"},
		{"agent5-sandbox", "agent5"},
		{" agent1 ", "agent1"},
		{"-cua", "-cua"}, // suffix only, nothing left to strip
		{"", ""},
	}

	for _, tc := range cases {
		if got := Normalize(tc.raw); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	ids := []string{"agent1-cua", "agent2", "AGENT3-VM"}
	for _, raw := range ids {
		once := Normalize(raw)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", raw, once, twice)
		}
	}
}
