package docstore

import "testing"

func TestOpenIsIdempotent(t *testing.T) {
	s := New()
	first := s.Open("file:///a.go", "go", "package a")
	second := s.Open("file:///a.go", "go", "package a v2")

	if first != second {
		t.Errorf("expected repeated Open to return the same entry, got %+v vs %+v", first, second)
	}
	if first.Version != 1 {
		t.Errorf("expected initial version 1, got %d", first.Version)
	}
}

func TestUpdateWithoutOpenFails(t *testing.T) {
	s := New()
	if _, err := s.Update("file:///missing.go", "x"); err != ErrNotOpen {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestUpdateIncrementsVersion(t *testing.T) {
	s := New()
	s.Open("file:///a.go", "go", "package a")

	v, err := s.Update("file:///a.go", "package a\n\nfunc main() {}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 2 {
		t.Errorf("expected version 2, got %d", v)
	}

	entry, ok := s.Get("file:///a.go")
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if entry.Text != "package a\n\nfunc main() {}" {
		t.Errorf("unexpected text: %q", entry.Text)
	}
}

func TestOpenURIsAndMarkAllClosed(t *testing.T) {
	s := New()
	s.Open("file:///a.go", "go", "a")
	s.Open("file:///b.go", "go", "b")
	s.MarkOpenOnServer("file:///a.go")
	s.MarkOpenOnServer("file:///b.go")

	uris := s.OpenURIs()
	if len(uris) != 2 {
		t.Fatalf("expected 2 open uris, got %d", len(uris))
	}

	s.MarkAllClosed()
	if uris := s.OpenURIs(); len(uris) != 0 {
		t.Errorf("expected 0 open uris after MarkAllClosed, got %d", len(uris))
	}
}

func TestGetUnknown(t *testing.T) {
	s := New()
	if _, ok := s.Get("file:///nope.go"); ok {
		t.Error("expected ok=false for unknown uri")
	}
}
