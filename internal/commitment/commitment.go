//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package commitment implements the server-side half of the anonymous
// identity chain: a client derives nullifier = SHA-256(identity_secret) and
// commitment = SHA-256(nullifier) and sends only the commitment. The server
// never sees identity_secret or nullifier; it only ever checks and records
// commitment membership. The one-wayness of SHA-256 is the entirety of the
// chain's zero-knowledge property.
package commitment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/spiffe/spike-chat/internal/apierr"
	"github.com/spiffe/spike-chat/internal/log"
	"github.com/spiffe/spike-chat/internal/store"
)

// Set is the append-only set of every commitment ever accepted.
type Set struct {
	doc *store.Doc[string, bool]
}

// NewSet wraps a commitments document as a Set.
func NewSet(doc *store.Doc[string, bool]) *Set {
	return &Set{doc: doc}
}

// CheckAndInsert atomically checks commitment for prior membership and, if
// absent, inserts it. It returns apierr.DuplicateCommitment if the
// commitment was already present. Membership is append-only: once a
// commitment is present, it is present forever (I2).
func (s *Set) CheckAndInsert(commitment string) error {
	const fName = "CheckAndInsert"
	if commitment == "" {
		return apierr.New(apierr.BadRequest, "commitment must not be empty")
	}

	var duplicate bool
	err := s.doc.Mutate(func(current map[string]bool) (map[string]bool, error) {
		if current[commitment] {
			duplicate = true
			return current, nil
		}
		current[commitment] = true
		return current, nil
	})
	if err != nil {
		return apierr.Wrap(fmt.Errorf("%s: %w", fName, err), "storage failure")
	}
	if duplicate {
		log.Log().Warn(fName, "msg", "duplicate commitment rejected")
		return apierr.New(apierr.DuplicateCommitment, "commitment already used")
	}
	return nil
}

// Identity is the diagnostic triple returned by the /auth/identity
// endpoint: a fresh identity_secret, and the nullifier/commitment derived
// from it. Real clients are expected to perform this derivation locally;
// this endpoint exists purely as a convenience for exploration.
type Identity struct {
	IdentitySecret string
	Nullifier      string
	Commitment     string
}

// Derive computes nullifier and commitment from a hex-encoded
// identity_secret, without touching any persistent state.
func Derive(identitySecretHex string) Identity {
	nullifier := sha256Hex([]byte(identitySecretHex))
	comm := sha256Hex([]byte(nullifier))
	return Identity{
		IdentitySecret: identitySecretHex,
		Nullifier:      nullifier,
		Commitment:     comm,
	}
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
