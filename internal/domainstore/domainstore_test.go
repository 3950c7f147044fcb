package domainstore

import (
	"errors"
	"testing"
)

func TestUpdateAndGet(t *testing.T) {
	s := New()
	if _, ok := s.Get("alpha"); ok {
		t.Fatal("unknown domain should not be present")
	}
	s.Update("alpha", true)
	active, ok := s.Get("alpha")
	if !ok || !active {
		t.Fatalf("got (%v, %v), want (true, true)", active, ok)
	}
}

func TestReloadReplacesAtomically(t *testing.T) {
	s := New()
	s.Update("stale", true)

	err := s.Reload(func() (map[string]bool, error) {
		return map[string]bool{"alpha": true, "beta": false}, nil
	})
	if err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	if _, ok := s.Get("stale"); ok {
		t.Fatal("reload must drop domains absent from the enumeration")
	}
	snap := s.Snapshot()
	if len(snap) != 2 || !snap["alpha"] || snap["beta"] {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestReloadPropagatesEnumeratorError(t *testing.T) {
	s := New()
	s.Update("alpha", true)
	wantErr := errors.New("enumeration failed")

	err := s.Reload(func() (map[string]bool, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
	if active, ok := s.Get("alpha"); !ok || !active {
		t.Fatal("a failed reload must not touch existing state")
	}
}

func TestDelete(t *testing.T) {
	s := New()
	s.Update("alpha", true)
	s.Delete("alpha")
	if _, ok := s.Get("alpha"); ok {
		t.Fatal("deleted domain should be absent")
	}
}
