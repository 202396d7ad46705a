//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

package chat_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiffe/spike-chat/internal/apierr"
	"github.com/spiffe/spike-chat/internal/chat"
	"github.com/spiffe/spike-chat/internal/entity"
	"github.com/spiffe/spike-chat/internal/ledger"
	"github.com/spiffe/spike-chat/internal/lock"
	"github.com/spiffe/spike-chat/internal/signature"
	"github.com/spiffe/spike-chat/internal/store"
)

func newPipeline(t *testing.T) (*chat.Pipeline, *rsa.PrivateKey) {
	t.Helper()
	dir := t.TempDir()
	locks := lock.NewTable()

	messages := store.New[string, entity.Chat](locks, "chat-messages", filepath.Join(dir, "chat.json"))
	publicKeys := store.New[string, string](locks, "public-keys", filepath.Join(dir, "public_keys.json"))
	proofs := store.New[string, ledger.State](locks, "proofs", filepath.Join(dir, "proofs.json"))

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return chat.New(messages, publicKeys, ledger.New(proofs), key, time.Hour), key
}

func TestSendRejectsUnknownReceiver(t *testing.T) {
	p, _ := newPipeline(t)
	_, _, err := p.Send(base64.StdEncoding.EncodeToString([]byte("A")), base64.StdEncoding.EncodeToString([]byte("B")), "alice")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.NotFound, apiErr.Kind)
}

func TestSendRoundTripMatchesScenario5(t *testing.T) {
	p, _ := newPipeline(t)
	require.NoError(t, p.RegisterKey("alice", "unused-placeholder-pem"))

	encMsg := base64.StdEncoding.EncodeToString([]byte("A"))
	encKey := base64.StdEncoding.EncodeToString([]byte("B"))

	messageID, expiry, err := p.Send(encMsg, encKey, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, messageID)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), expiry, 5*time.Second)

	entries, err := p.Inbox("alice")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, messageID, entries[0].MessageID)
	assert.False(t, entries[0].Expired)
}

func TestProofRecordCarriesValidSignature(t *testing.T) {
	dir := t.TempDir()
	locks := lock.NewTable()

	messages := store.New[string, entity.Chat](locks, "chat-messages", filepath.Join(dir, "chat.json"))
	publicKeys := store.New[string, string](locks, "public-keys", filepath.Join(dir, "public_keys.json"))
	proofsDoc := store.New[string, ledger.State](locks, "proofs", filepath.Join(dir, "proofs.json"))
	proofs := ledger.New(proofsDoc)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := chat.New(messages, publicKeys, proofs, key, time.Hour)
	require.NoError(t, p.RegisterKey("bob", "unused-placeholder-pem"))

	encMsg := base64.StdEncoding.EncodeToString([]byte("hello-bob"))
	messageID, _, err := p.Send(encMsg, base64.StdEncoding.EncodeToString([]byte("key")), "bob")
	require.NoError(t, err)

	rec, ok, err := proofs.Get(messageID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, rec.Signature)

	digest := sha256.Sum256([]byte(encMsg))
	assert.Equal(t, hex.EncodeToString(digest[:]), rec.DataHash)
	assert.True(t, signature.Verify(&key.PublicKey, []byte(encMsg), rec.Signature))
}

func TestRegisterAndFetchPublicKey(t *testing.T) {
	p, _ := newPipeline(t)
	require.NoError(t, p.RegisterKey("carol", "pem-body"))

	pem, err := p.PublicKey("carol")
	require.NoError(t, err)
	assert.Equal(t, "pem-body", pem)

	_, err = p.PublicKey("unknown")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.NotFound, apiErr.Kind)
}
