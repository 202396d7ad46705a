//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package chat implements the end-to-end encrypted messaging pipeline
// (§4.10): the server never inspects message contents, it only assigns an
// identifier, hashes and signs the opaque ciphertext for proof of existence,
// and persists the record until expiry.
package chat

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spiffe/spike-chat/internal/apierr"
	"github.com/spiffe/spike-chat/internal/entity"
	"github.com/spiffe/spike-chat/internal/ledger"
	"github.com/spiffe/spike-chat/internal/log"
	"github.com/spiffe/spike-chat/internal/signature"
	"github.com/spiffe/spike-chat/internal/store"
)

// Pipeline is the handle the HTTP layer drives for chat send/inbox and key
// registration operations.
type Pipeline struct {
	messages   *store.Doc[string, entity.Chat]
	publicKeys *store.Doc[string, string]
	ledger     *ledger.Ledger
	signingKey *rsa.PrivateKey
	expiry     time.Duration
}

// New builds a chat Pipeline over the given stores and server signing key.
func New(
	messages *store.Doc[string, entity.Chat],
	publicKeys *store.Doc[string, string],
	ledg *ledger.Ledger,
	signingKey *rsa.PrivateKey,
	expiry time.Duration,
) *Pipeline {
	return &Pipeline{
		messages:   messages,
		publicKeys: publicKeys,
		ledger:     ledg,
		signingKey: signingKey,
		expiry:     expiry,
	}
}

// Send runs the §4.10 send pipeline: validates the receiver is registered,
// assigns a UUIDv4 message_id, hashes and signs the ciphertext, and persists
// both the chat record and its proof record.
func (p *Pipeline) Send(encryptedMessage, encryptedKey, receiver string) (messageID string, expiry time.Time, err error) {
	const fName = "Send"

	if encryptedMessage == "" || encryptedKey == "" || receiver == "" {
		return "", time.Time{}, apierr.New(apierr.BadRequest, "encrypted_message, encrypted_key, and receiver are required")
	}

	_, registered, err := p.publicKeys.Get(receiver)
	if err != nil {
		return "", time.Time{}, apierr.Wrap(fmt.Errorf("%s: %w", fName, err), "internal error")
	}
	if !registered {
		return "", time.Time{}, apierr.New(apierr.NotFound, "receiver is not registered")
	}

	messageID = uuid.New().String()
	now := time.Now().UTC()
	record := entity.Chat{
		EncryptedMessage: encryptedMessage,
		EncryptedKey:     encryptedKey,
		Receiver:         receiver,
		CreatedAt:        now,
		Expiry:           now.Add(p.expiry),
		Expired:          false,
	}

	if err := p.messages.Put(messageID, record); err != nil {
		log.Log().Error(fName, "msg", "failed to persist chat record", "err", err.Error())
		return "", time.Time{}, apierr.Wrap(fmt.Errorf("%s: %w", fName, err), "internal error")
	}

	digest := sha256.Sum256([]byte(encryptedMessage))
	sig, err := signature.Sign(p.signingKey, []byte(encryptedMessage))
	if err != nil {
		log.Log().Error(fName, "msg", "failed to sign chat message", "err", err.Error())
		return "", time.Time{}, apierr.Wrap(fmt.Errorf("%s: %w", fName, err), "internal error")
	}

	if err := p.ledger.Append(messageID, entity.Proof{
		DataHash:  hex.EncodeToString(digest[:]),
		Signature: sig,
		CreatedAt: now,
	}); err != nil {
		log.Log().Error(fName, "msg", "failed to append chat proof record", "message_id", messageID, "err", err.Error())
		return "", time.Time{}, apierr.Wrap(fmt.Errorf("%s: %w", fName, err), "internal error")
	}

	return messageID, record.Expiry, nil
}

// Inbox returns every chat record addressed to userID, including expired
// ones (with their encrypted blobs already cleared).
func (p *Pipeline) Inbox(userID string) ([]entity.ChatInboxEntry, error) {
	const fName = "Inbox"

	records, err := p.messages.Load()
	if err != nil {
		return nil, apierr.Wrap(fmt.Errorf("%s: %w", fName, err), "internal error")
	}

	entries := make([]entity.ChatInboxEntry, 0)
	for id, rec := range records {
		if rec.Receiver != userID {
			continue
		}
		entries = append(entries, entity.ChatInboxEntry{
			MessageID:        id,
			EncryptedMessage: rec.EncryptedMessage,
			EncryptedKey:     rec.EncryptedKey,
			CreatedAt:        rec.CreatedAt,
			Expiry:           rec.Expiry,
			Expired:          rec.Expired,
		})
	}
	return entries, nil
}

// RegisterKey upserts a user's RSA public key PEM into the registry.
func (p *Pipeline) RegisterKey(userID, publicKeyPEM string) error {
	if userID == "" || publicKeyPEM == "" {
		return apierr.New(apierr.BadRequest, "user_id and public_key are required")
	}
	if err := p.publicKeys.Put(userID, publicKeyPEM); err != nil {
		return apierr.Wrap(fmt.Errorf("RegisterKey: %w", err), "internal error")
	}
	return nil
}

// PublicKey fetches a registered user's PEM-encoded RSA public key.
func (p *Pipeline) PublicKey(userID string) (string, error) {
	pem, ok, err := p.publicKeys.Get(userID)
	if err != nil {
		return "", apierr.Wrap(fmt.Errorf("PublicKey: %w", err), "internal error")
	}
	if !ok {
		return "", apierr.New(apierr.NotFound, "unknown user_id")
	}
	return pem, nil
}
