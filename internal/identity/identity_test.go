package identity

import "testing"

func TestIDStable(t *testing.T) {
	a := ID("map", "events.1.pages.0.list.3.parameters.0")
	b := ID("map", "events.1.pages.0.list.3.parameters.0")
	if a != b {
		t.Errorf("same inputs produced different ids: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("id length = %d, want 16", len(a))
	}
}

func TestIDIndependentOfText(t *testing.T) {
	// The id must survive a translator's edit of the text, so the text can
	// play no part in it; only scope and path do.
	if ID("map", "p") == ID("actors", "p") {
		t.Error("scope not reflected in id")
	}
	if ID("map", "events.0.name") == ID("map", "events.1.name") {
		t.Error("path not reflected in id")
	}
}

func TestScopeSeparatesFiles(t *testing.T) {
	a := ID(Scope("map", "data/Map001.json"), "displayName")
	b := ID(Scope("map", "data/Map002.json"), "displayName")
	if a == b {
		t.Error("two map files share an id for the same in-file path")
	}
}

func TestFingerprintDiffers(t *testing.T) {
	if Fingerprint("Hello") == Fingerprint("World") {
		t.Error("different texts share a fingerprint")
	}
	if Fingerprint("Hello") != Fingerprint("Hello") {
		t.Error("fingerprint not deterministic")
	}
}

func TestJoinPath(t *testing.T) {
	got := JoinPath("events", "3", "pages", "0")
	if got != "events.3.pages.0" {
		t.Errorf("got %q", got)
	}
}
