package state

import (
	"errors"
	"sync"

	"bhrtchain/storage"
)

// Overlay buffers writes on top of a backing database so a whole instruction
// can be applied and then committed or discarded as one unit. Reads observe
// buffered writes first. The overlay is the explicit transactional boundary:
// nothing reaches the backing store until Commit.
type Overlay struct {
	mu      sync.Mutex
	backing storage.Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewOverlay creates an overlay over the backing database.
func NewOverlay(backing storage.Database) *Overlay {
	return &Overlay{
		backing: backing,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.Lock()
	k := string(key)
	if _, gone := o.deletes[k]; gone {
		o.mu.Unlock()
		return nil, storage.ErrNotFound
	}
	if value, ok := o.writes[k]; ok {
		o.mu.Unlock()
		return append([]byte(nil), value...), nil
	}
	o.mu.Unlock()
	return o.backing.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	_, err := o.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

// Close satisfies storage.Database; the backing store stays open.
func (o *Overlay) Close() {}

// Commit flushes buffered writes and deletes to the backing store. The
// backing store is assumed to apply each operation durably; callers hold the
// account locks for every touched address, so no concurrent overlay commits
// interleave on shared keys.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k := range o.deletes {
		if err := o.backing.Delete([]byte(k)); err != nil {
			return err
		}
	}
	for k, v := range o.writes {
		if err := o.backing.Put([]byte(k), v); err != nil {
			return err
		}
	}
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
	return nil
}

// Discard drops all buffered mutations, leaving the backing store untouched.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}

// Dirty reports whether the overlay holds uncommitted mutations.
func (o *Overlay) Dirty() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.writes) > 0 || len(o.deletes) > 0
}
