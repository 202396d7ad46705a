//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package ledger maintains the ordered list of proof-of-existence records
// shared by the submission and chat pipelines, and answers the read-only
// verification queries (root, hash lookup, inclusion proof) over it. Both
// pipelines append through the same Ledger so the Merkle tree is built from
// one single insertion-ordered sequence, per I3.
package ledger

import (
	"fmt"

	"github.com/spiffe/spike-chat/internal/apierr"
	"github.com/spiffe/spike-chat/internal/entity"
	"github.com/spiffe/spike-chat/internal/merkle"
	"github.com/spiffe/spike-chat/internal/store"
)

// docKey is the single fixed key under which the whole ledger state lives
// in its backing document, so that the record map and the insertion-order
// slice are always mutated together under one lock acquisition.
const docKey = "proofs"

// State is the full persisted ledger contents.
type State struct {
	Records map[string]entity.Proof `json:"records"`
	Order   []string                `json:"order"`
}

// Ledger is a handle to the proof-of-existence document.
type Ledger struct {
	doc *store.Doc[string, State]
}

// New wraps a proofs document as a Ledger.
func New(doc *store.Doc[string, State]) *Ledger {
	return &Ledger{doc: doc}
}

// Append adds a proof record under id at the end of the insertion order.
// Appending under an id that already exists overwrites the record in place
// without duplicating the order entry.
func (l *Ledger) Append(id string, rec entity.Proof) error {
	const fName = "Append"
	err := l.doc.Mutate(func(current map[string]State) (map[string]State, error) {
		state := current[docKey]
		if state.Records == nil {
			state.Records = map[string]entity.Proof{}
		}
		if _, exists := state.Records[id]; !exists {
			state.Order = append(state.Order, id)
		}
		state.Records[id] = rec
		current[docKey] = state
		return current, nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", fName, err)
	}
	return nil
}

func (l *Ledger) load() (State, error) {
	current, err := l.doc.Load()
	if err != nil {
		return State{}, err
	}
	return current[docKey], nil
}

// leavesAndIndex returns the ordered leaf hashes and, if id is non-empty,
// the index of id within that order.
func (l *Ledger) leavesAndIndex(id string) ([]string, int, State, error) {
	state, err := l.load()
	if err != nil {
		return nil, -1, State{}, err
	}
	leaves := make([]string, 0, len(state.Order))
	idx := -1
	for i, oid := range state.Order {
		rec := state.Records[oid]
		leaves = append(leaves, rec.DataHash)
		if id != "" && oid == id {
			idx = i
		}
	}
	return leaves, idx, state, nil
}

// Root recomputes the Merkle root and leaf count from the current proof
// records, in insertion order.
func (l *Ledger) Root() (root string, count int, err error) {
	leaves, _, _, err := l.leavesAndIndex("")
	if err != nil {
		return "", 0, err
	}
	return merkle.Root(leaves), len(leaves), nil
}

// Get returns the proof record for id, if any.
func (l *Ledger) Get(id string) (entity.Proof, bool, error) {
	state, err := l.load()
	if err != nil {
		return entity.Proof{}, false, err
	}
	rec, ok := state.Records[id]
	return rec, ok, nil
}

// FindByHash reports whether any proof record has the given data_hash.
func (l *Ledger) FindByHash(hash string) (bool, error) {
	state, err := l.load()
	if err != nil {
		return false, err
	}
	for _, rec := range state.Records {
		if rec.DataHash == hash {
			return true, nil
		}
	}
	return false, nil
}

// InclusionProof returns the leaf hash, proof path, and current root for id.
// It returns apierr.NotFound if id has no proof record.
func (l *Ledger) InclusionProof(id string) (leafHash string, proof []merkle.Step, root string, err error) {
	leaves, idx, _, err := l.leavesAndIndex(id)
	if err != nil {
		return "", nil, "", err
	}
	if idx < 0 {
		return "", nil, "", apierr.New(apierr.NotFound, "no proof record for id")
	}
	root = merkle.Root(leaves)
	proof = merkle.Proof(leaves, idx)
	return leaves[idx], proof, root, nil
}
