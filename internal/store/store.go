//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package store implements the single point of serialization for the
// system's persistent documents. Every document is a JSON-encoded map kept
// on disk at a fixed path; every read-modify-write cycle is covered by the
// document's lock for its full duration, and every write goes through a
// write-new-then-rename discipline so a crash mid-write can never leave a
// torn file behind.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spiffe/spike-chat/internal/lock"
)

// Doc is a lock-serialized, disk-backed map[K]V document. A missing file on
// disk is treated as an empty map rather than an error.
type Doc[K comparable, V any] struct {
	path  string
	name  string
	locks *lock.Table
}

// New returns a handle to the document stored at path, serialized through
// the given lock table under the document name "name".
func New[K comparable, V any](
	locks *lock.Table, name, path string,
) *Doc[K, V] {
	return &Doc[K, V]{path: path, name: name, locks: locks}
}

func (d *Doc[K, V]) read() (map[K]V, error) {
	body, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[K]V{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", d.name, err)
	}
	if len(body) == 0 {
		return map[K]V{}, nil
	}

	var v map[K]V
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", d.name, err)
	}
	if v == nil {
		v = map[K]V{}
	}
	return v, nil
}

func (d *Doc[K, V]) write(v map[K]V) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", d.name, err)
	}

	dir := filepath.Dir(d.path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+d.name+"-*")
	if err != nil {
		return fmt.Errorf("store: create temp file for %s: %w", d.name, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: write temp file for %s: %w", d.name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: close temp file for %s: %w", d.name, err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: chmod temp file for %s: %w", d.name, err)
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: rename temp file for %s: %w", d.name, err)
	}
	return nil
}

// Load returns the full document. Missing documents load as an empty map.
func (d *Doc[K, V]) Load() (map[K]V, error) {
	var out map[K]V
	var err error
	d.locks.WithRLock(d.name, func() {
		out, err = d.read()
	})
	return out, err
}

// Store overwrites the document wholesale.
func (d *Doc[K, V]) Store(v map[K]V) error {
	var err error
	d.locks.WithLock(d.name, func() {
		err = d.write(v)
	})
	return err
}

// Mutate performs an atomic read-modify-write cycle: fn receives the current
// document and returns the document to persist. The document's lock is held
// for the full cycle, so concurrent mutations are totally ordered.
func (d *Doc[K, V]) Mutate(fn func(current map[K]V) (map[K]V, error)) error {
	var err error
	d.locks.WithLock(d.name, func() {
		var current map[K]V
		current, err = d.read()
		if err != nil {
			return
		}
		var next map[K]V
		next, err = fn(current)
		if err != nil {
			return
		}
		err = d.write(next)
	})
	return err
}

// Get returns a single entry and whether it was present.
func (d *Doc[K, V]) Get(key K) (V, bool, error) {
	doc, err := d.Load()
	if err != nil {
		var zero V
		return zero, false, err
	}
	v, ok := doc[key]
	return v, ok, nil
}

// Put inserts or overwrites a single entry, atomically with respect to other
// mutations of this document.
func (d *Doc[K, V]) Put(key K, value V) error {
	return d.Mutate(func(current map[K]V) (map[K]V, error) {
		current[key] = value
		return current, nil
	})
}

// Append is an alias for Put: proof records and chat/submission records are
// append-only in practice even though nothing prevents overwriting a key.
func (d *Doc[K, V]) Append(key K, value V) error {
	return d.Put(key, value)
}
