// Package kv implements the C1 KV Store Abstraction: ordered byte-key/value
// "trees" (namespaces) with prefix scan, atomic single-key put/remove, and a
// durable flush, on top of an embedded ordered key-value engine
// (dgraph-io/badger/v4).
//
// A tree is a namespace prefix inside one badger.DB — badger has no native
// concept of multiple independently-openable trees the way sled or bbolt
// buckets do, so namespacing is rendered as a key prefix
// "<namespace>\x00<key>". ScanPrefix never crosses a namespace boundary
// because the separator byte (0x00) cannot appear inside a namespace name.
package kv

import (
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const sep = 0x00

// Store owns the badger handle backing every tree.
type Store struct {
	db *badger.DB
}

// Options configures Open.
type Options struct {
	Path     string
	InMemory bool
}

// Open opens (creating if absent) the badger database at opts.Path, or an
// in-memory instance when opts.InMemory is set (used by tests).
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path).
		WithLoggingLevel(badger.WARNING).
		WithInMemory(opts.InMemory)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Flush forces badger's value log and LSM tree to durable storage.
func (s *Store) Flush() error { return s.db.Sync() }

// Tree is a namespaced view over Store.
type Tree struct {
	store *Store
	name  string
}

// Tree returns a handle scoped to namespace name. Opening the same name
// twice returns equivalent, interchangeable handles — there is no
// per-namespace setup cost in this implementation.
func (s *Store) Tree(name string) *Tree {
	return &Tree{store: s, name: name}
}

// Sibling returns a handle to another tree in the same underlying store.
func (t *Tree) Sibling(name string) *Tree {
	return t.store.Tree(name)
}

func (t *Tree) key(k []byte) []byte {
	buf := make([]byte, 0, len(t.name)+1+len(k))
	buf = append(buf, t.name...)
	buf = append(buf, sep)
	buf = append(buf, k...)
	return buf
}

func (t *Tree) stripPrefix(full []byte) []byte {
	return full[len(t.name)+1:]
}

// Get reads a single value; returns (nil, nil) if absent.
func (t *Tree) Get(key []byte) ([]byte, error) {
	var out []byte
	err := t.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(t.key(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("kv get %s/%s: %w", t.name, key, err)
	}
	return out, nil
}

// Put writes key->value atomically.
func (t *Tree) Put(key, value []byte) error {
	err := t.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(t.key(key), value)
	})
	if err != nil {
		return fmt.Errorf("kv put %s/%s: %w", t.name, key, err)
	}
	return nil
}

// Remove deletes key if present; it is not an error for key to be absent.
func (t *Tree) Remove(key []byte) error {
	err := t.store.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(t.key(key))
	})
	if err != nil {
		return fmt.Errorf("kv remove %s/%s: %w", t.name, key, err)
	}
	return nil
}

// Entry is one key/value pair yielded by a scan, with the namespace prefix
// already stripped from Key.
type Entry struct {
	Key   []byte
	Value []byte
}

// ScanPrefix returns every entry in the tree whose key starts with prefix,
// in ascending key order.
func (t *Tree) ScanPrefix(prefix []byte) ([]Entry, error) {
	var out []Entry
	full := t.key(prefix)
	err := t.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = full
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(full); it.ValidForPrefix(full); it.Next() {
			item := it.Item()
			k := append([]byte(nil), item.Key()...)
			var v []byte
			if err := item.Value(func(val []byte) error {
				v = append([]byte(nil), val...)
				return nil
			}); err != nil {
				return err
			}
			out = append(out, Entry{Key: t.stripPrefix(k), Value: v})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv scan %s/%s*: %w", t.name, prefix, err)
	}
	return out, nil
}

// Iterate returns every entry in the tree in ascending key order.
func (t *Tree) Iterate() ([]Entry, error) { return t.ScanPrefix(nil) }

// HasPrefix reports whether any key in the tree starts with prefix, without
// materializing the matching value (used by orphan checks).
func (t *Tree) HasPrefix(prefix []byte) (bool, error) {
	found := false
	full := t.key(prefix)
	err := t.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = full
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek(full)
		found = it.ValidForPrefix(full)
		return nil
	})
	return found, err
}

// Has reports whether key exists in the tree.
func (t *Tree) Has(key []byte) (bool, error) {
	v, err := t.Get(key)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// RemovePrefix deletes every key in the tree starting with prefix and
// returns the count removed.
func (t *Tree) RemovePrefix(prefix []byte) (int, error) {
	entries, err := t.ScanPrefix(prefix)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := t.Remove(e.Key); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// Count returns the number of keys in the tree.
func (t *Tree) Count() (int, error) {
	entries, err := t.Iterate()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// EqualKey is a small helper used where callers compare raw keys.
func EqualKey(a, b []byte) bool { return bytes.Equal(a, b) }
