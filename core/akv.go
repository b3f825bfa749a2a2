package core

// Authenticated KV store (AKV): an embedded ordered key-value engine with
// snapshots, forks and atomic merges. Indices (akv_indices.go) are typed
// views scoped to a snapshot or fork and must not outlive it.
//
// Backed by badger, an embedded LSM key-value store, in place of the
// teacher's hand-rolled WAL+snapshot ledger file format: badger transactions
// give us real fork/merge semantics for free instead of reimplementing an ad
// hoc commit log.

import (
	"bytes"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// View is a read-only ordered key-value view, satisfied by both Snapshot and
// Fork.
type View interface {
	Get(key []byte) ([]byte, bool, error)
	IteratePrefix(prefix []byte, fn func(key, value []byte) error) error
}

// Mutator is a View that also accepts staged writes. Only Fork implements
// it; indices type-assert a View to Mutator before attempting a write so the
// same index type works against either a Snapshot or a Fork.
type Mutator interface {
	View
	Put(key, value []byte)
	Delete(key []byte)
}

// Database owns the on-disk embedded KV engine.
type Database struct {
	db *badger.DB
}

// OpenDatabase opens (creating if absent) the embedded KV store at path.
func OpenDatabase(path string) (*Database, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = badgerLogAdapter{logrus.StandardLogger()}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, WrapErr(KindIo, "open database", err)
	}
	return &Database{db: db}, nil
}

// Close closes the underlying engine.
func (d *Database) Close() error {
	if err := d.db.Close(); err != nil {
		return WrapErr(KindIo, "close database", err)
	}
	return nil
}

// Snapshot returns a read-only consistent view. Multiple snapshots may
// coexist with writers; the caller must Discard it when done.
func (d *Database) Snapshot() *Snapshot {
	return &Snapshot{txn: d.db.NewTransaction(false)}
}

// Snapshot is a read-only consistent view of the database at the moment it
// was taken.
type Snapshot struct {
	txn *badger.Txn
}

// Discard releases the snapshot's resources. Safe to call more than once.
func (s *Snapshot) Discard() { s.txn.Discard() }

func (s *Snapshot) Get(key []byte) ([]byte, bool, error) {
	item, err := s.txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, WrapErr(KindIo, "get", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, WrapErr(KindIo, "value copy", err)
	}
	return val, true, nil
}

func (s *Snapshot) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	it := s.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := append([]byte(nil), item.Key()...)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return WrapErr(KindIo, "iterate value copy", err)
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}

type writeOp struct {
	del   bool
	value []byte
}

// Fork is a mutable staging area: writes are invisible to other views until
// Database.Merge applies them atomically. A fork is created, mutated and
// either merged or discarded within a single synchronous critical section —
// there is no suspension point while a fork is open.
type Fork struct {
	base    *badger.Txn
	mu      sync.Mutex
	overlay map[string]writeOp
}

// Fork opens a new staging area over the database's current state.
func (d *Database) Fork() *Fork {
	return &Fork{base: d.db.NewTransaction(false), overlay: make(map[string]writeOp)}
}

// Discard abandons the fork without merging it.
func (f *Fork) Discard() { f.base.Discard() }

func (f *Fork) Put(key, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overlay[string(key)] = writeOp{value: append([]byte(nil), value...)}
}

func (f *Fork) Delete(key []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overlay[string(key)] = writeOp{del: true}
}

func (f *Fork) Get(key []byte) ([]byte, bool, error) {
	f.mu.Lock()
	op, staged := f.overlay[string(key)]
	f.mu.Unlock()
	if staged {
		if op.del {
			return nil, false, nil
		}
		return op.value, true, nil
	}
	item, err := f.base.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, WrapErr(KindIo, "get", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, WrapErr(KindIo, "value copy", err)
	}
	return val, true, nil
}

// IteratePrefix merges the fork's staged overlay with the base snapshot,
// presenting a single consistent prefix scan in key order.
func (f *Fork) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)

	it := f.base.NewIterator(badger.DefaultIteratorOptions)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return WrapErr(KindIo, "iterate value copy", err)
		}
		merged[string(item.Key())] = val
	}
	it.Close()

	f.mu.Lock()
	for k, op := range f.overlay {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if op.del {
			delete(merged, k)
		} else {
			merged[k] = op.value
		}
	}
	f.mu.Unlock()

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

// Merge atomically applies the fork's write set. On success the fork's base
// view is discarded; on failure (I/O, corruption) the fork must be discarded
// by the caller and the mutation retried from a fresh fork.
func (d *Database) Merge(f *Fork) error {
	f.mu.Lock()
	overlay := make(map[string]writeOp, len(f.overlay))
	for k, v := range f.overlay {
		overlay[k] = v
	}
	f.mu.Unlock()

	err := d.db.Update(func(txn *badger.Txn) error {
		for k, op := range overlay {
			if op.del {
				if delErr := txn.Delete([]byte(k)); delErr != nil && delErr != badger.ErrKeyNotFound {
					return delErr
				}
				continue
			}
			if setErr := txn.Set([]byte(k), op.value); setErr != nil {
				return setErr
			}
		}
		return nil
	})
	if err != nil {
		return WrapErr(KindIo, "merge fork", err)
	}
	f.base.Discard()
	return nil
}

// badgerLogAdapter routes badger's internal logging through logrus so the
// embedded engine's diagnostics match the rest of the node's log stream.
type badgerLogAdapter struct{ l *logrus.Logger }

func (b badgerLogAdapter) Errorf(f string, args ...interface{})   { b.l.Errorf(f, args...) }
func (b badgerLogAdapter) Warningf(f string, args ...interface{}) { b.l.Warnf(f, args...) }
func (b badgerLogAdapter) Infof(f string, args ...interface{})    { b.l.Infof(f, args...) }
func (b badgerLogAdapter) Debugf(f string, args ...interface{})   { b.l.Debugf(f, args...) }
