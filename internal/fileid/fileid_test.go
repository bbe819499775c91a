package fileid

import "testing"

func TestContentID(t *testing.T) {
	id1 := ContentID("notes.pdf", []byte("hello"))
	id2 := ContentID("notes.pdf", []byte("hello"))
	if id1 != id2 {
		t.Errorf("same file should give same ID: %q vs %q", id1, id2)
	}
	if len(id1) < 10 {
		t.Errorf("ID too short: %q", id1)
	}
	if id1[:len(prefix)] != prefix {
		t.Errorf("ID should have prefix %q: got %q", prefix, id1)
	}
}

func TestContentID_differentContent(t *testing.T) {
	if ContentID("notes.pdf", []byte("hello")) == ContentID("notes.pdf", []byte("world")) {
		t.Error("different content should give different IDs")
	}
}

func TestContentID_differentName(t *testing.T) {
	if ContentID("a.pdf", []byte("hello")) == ContentID("b.pdf", []byte("hello")) {
		t.Error("different names should give different IDs")
	}
}

func TestContentID_nameContentBoundary(t *testing.T) {
	// "ab" + "c" must not collide with "a" + "bc".
	if ContentID("ab", []byte("c")) == ContentID("a", []byte("bc")) {
		t.Error("name/content boundary should be unambiguous")
	}
}
