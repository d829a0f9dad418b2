package state

import (
	"errors"
	"testing"

	"bhrtchain/storage"
)

func TestOverlayCommit(t *testing.T) {
	backing := storage.NewMemDB()
	if err := backing.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("seed backing: %v", err)
	}
	overlay := NewOverlay(backing)

	if err := overlay.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("overlay put: %v", err)
	}
	if err := overlay.Delete([]byte("a")); err != nil {
		t.Fatalf("overlay delete: %v", err)
	}

	// Overlay sees its own mutations, backing does not.
	if _, err := overlay.Get([]byte("a")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected deleted key to be absent in overlay, got %v", err)
	}
	if value, err := backing.Get([]byte("a")); err != nil || string(value) != "1" {
		t.Fatalf("backing mutated before commit: %q %v", value, err)
	}
	if _, err := backing.Get([]byte("b")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("backing saw buffered write before commit")
	}

	if err := overlay.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := backing.Get([]byte("a")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("delete not applied on commit")
	}
	if value, err := backing.Get([]byte("b")); err != nil || string(value) != "2" {
		t.Fatalf("write not applied on commit: %q %v", value, err)
	}
	if overlay.Dirty() {
		t.Fatalf("overlay should be clean after commit")
	}
}

func TestOverlayDiscard(t *testing.T) {
	backing := storage.NewMemDB()
	overlay := NewOverlay(backing)
	if err := overlay.Put([]byte("x"), []byte("y")); err != nil {
		t.Fatalf("overlay put: %v", err)
	}
	overlay.Discard()
	if overlay.Dirty() {
		t.Fatalf("overlay should be clean after discard")
	}
	if _, err := backing.Get([]byte("x")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("discarded write reached backing store")
	}
}
