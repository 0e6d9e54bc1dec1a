package version

import "testing"

func TestIsCompatibleWith(t *testing.T) {
	cases := []struct {
		v    Semantic
		want bool
	}{
		{Semantic{16, 0, 0}, true},
		{Semantic{16, 9, 5}, true},
		{Semantic{15, 9, 9}, false},
		{Semantic{17, 0, 0}, false},
	}
	for _, c := range cases {
		if got := IsCompatibleWith(c.v); got != c.want {
			t.Errorf("IsCompatibleWith(%s) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestSupportsHeartbeat(t *testing.T) {
	if !SupportsHeartbeat(Semantic{16, 3, 0}) {
		t.Error("expected 16.3.0 to support heartbeat")
	}
	if !SupportsHeartbeat(Semantic{16, 4, 0}) {
		t.Error("expected 16.4.0 to support heartbeat")
	}
	if !SupportsHeartbeat(Semantic{17, 0, 0}) {
		t.Error("expected 17.0.0 to support heartbeat")
	}
	if SupportsHeartbeat(Semantic{16, 2, 9}) {
		t.Error("expected 16.2.9 to not support heartbeat")
	}
	if SupportsHeartbeat(Semantic{15, 9, 9}) {
		t.Error("expected 15.9.9 to not support heartbeat")
	}
}

func TestSemanticString(t *testing.T) {
	if got := (Semantic{1, 2, 3}).String(); got != "1.2.3" {
		t.Errorf("String() = %q, want 1.2.3", got)
	}
}
