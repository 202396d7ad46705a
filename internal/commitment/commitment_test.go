//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

package commitment_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiffe/spike-chat/internal/apierr"
	"github.com/spiffe/spike-chat/internal/commitment"
	"github.com/spiffe/spike-chat/internal/lock"
	"github.com/spiffe/spike-chat/internal/store"
)

func newSet(t *testing.T) *commitment.Set {
	t.Helper()
	dir := t.TempDir()
	doc := store.New[string, bool](lock.NewTable(), "commitments", filepath.Join(dir, "commitments.json"))
	return commitment.NewSet(doc)
}

func TestCheckAndInsertAcceptsFirstUse(t *testing.T) {
	s := newSet(t)
	err := s.CheckAndInsert("2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7a")
	require.NoError(t, err)
}

func TestCheckAndInsertRejectsReplay(t *testing.T) {
	s := newSet(t)
	commitmentHex := "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7a"

	require.NoError(t, s.CheckAndInsert(commitmentHex))

	err := s.CheckAndInsert(commitmentHex)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.DuplicateCommitment, apiErr.Kind)
}

func TestCheckAndInsertRejectsEmpty(t *testing.T) {
	s := newSet(t)
	err := s.CheckAndInsert("")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.BadRequest, apiErr.Kind)
}

func TestDeriveIsDeterministic(t *testing.T) {
	id := commitment.Derive("00000000000000000000000000000000000000000000000000000000000000")
	again := commitment.Derive("00000000000000000000000000000000000000000000000000000000000000")
	assert.Equal(t, id, again)
	assert.NotEmpty(t, id.Nullifier)
	assert.NotEmpty(t, id.Commitment)
	assert.NotEqual(t, id.Nullifier, id.Commitment)
}
