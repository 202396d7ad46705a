//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package submission implements the anonymous submission admission and read
// pipelines (§4.8/§4.9 of the design): proof-of-work and commitment-based
// admission, DEK generation and wrapping, sequential msg_id allocation, and
// the decrypt-on-read path that respects cryptographic expiry.
package submission

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/spiffe/spike-chat/internal/aead"
	"github.com/spiffe/spike-chat/internal/apierr"
	"github.com/spiffe/spike-chat/internal/commitment"
	"github.com/spiffe/spike-chat/internal/entity"
	"github.com/spiffe/spike-chat/internal/ledger"
	"github.com/spiffe/spike-chat/internal/log"
	"github.com/spiffe/spike-chat/internal/pow"
	"github.com/spiffe/spike-chat/internal/store"
)

// dekSize is the length in bytes of a fresh per-submission data-encryption
// key (AES-256).
const dekSize = 32

// Pipeline is the handle the HTTP layer drives for every submission-related
// operation; it holds every resource the admission and read paths need.
type Pipeline struct {
	submissions *store.Doc[int, entity.Submission]
	commitments *commitment.Set
	ledger      *ledger.Ledger
	kek         [32]byte
	difficulty  int
	expiry      time.Duration
}

// New builds a submission Pipeline over the given stores and vault key.
func New(
	submissions *store.Doc[int, entity.Submission],
	commitments *commitment.Set,
	ledg *ledger.Ledger,
	kek [32]byte,
	difficulty int,
	expiry time.Duration,
) *Pipeline {
	return &Pipeline{
		submissions: submissions,
		commitments: commitments,
		ledger:      ledg,
		kek:         kek,
		difficulty:  difficulty,
		expiry:      expiry,
	}
}

// Admit runs the full §4.8 admission pipeline and returns the allocated
// msg_id and expiry on success.
func (p *Pipeline) Admit(data, commitmentHex, nonce string) (msgID int, expiry time.Time, err error) {
	const fName = "Admit"

	if data == "" || commitmentHex == "" || nonce == "" {
		return 0, time.Time{}, apierr.New(apierr.BadRequest, "data, commitment, and nonce are required")
	}

	if !pow.Verify(commitmentHex, nonce, p.difficulty) {
		return 0, time.Time{}, apierr.New(apierr.BadRequest, "proof of work did not meet the required difficulty")
	}

	if err := p.commitments.CheckAndInsert(commitmentHex); err != nil {
		return 0, time.Time{}, err
	}

	dek := make([]byte, dekSize)
	if _, err := rand.Read(dek); err != nil {
		log.Log().Error(fName, "msg", "entropy failure generating dek", "err", err.Error())
		return 0, time.Time{}, apierr.Wrap(fmt.Errorf("%s: %w", fName, err), "internal error")
	}

	sealed, err := aead.Encrypt(dek, []byte(data))
	if err != nil {
		return 0, time.Time{}, apierr.Wrap(fmt.Errorf("%s: %w", fName, err), "internal error")
	}

	wrapped, err := aead.WrapDEK(p.kek[:], dek)
	if err != nil {
		return 0, time.Time{}, apierr.Wrap(fmt.Errorf("%s: %w", fName, err), "internal error")
	}
	wrappedEnvelope, err := aead.EncodeEnvelope(wrapped)
	if err != nil {
		return 0, time.Time{}, apierr.Wrap(fmt.Errorf("%s: %w", fName, err), "internal error")
	}

	now := time.Now().UTC()
	record := entity.Submission{
		Ciphertext: sealed.Ciphertext,
		Nonce:      sealed.Nonce,
		Tag:        sealed.Tag,
		WrappedDEK: wrappedEnvelope,
		Commitment: commitmentHex,
		CreatedAt:  now,
		Expiry:     now.Add(p.expiry),
	}

	var allocated int
	mutateErr := p.submissions.Mutate(func(current map[int]entity.Submission) (map[int]entity.Submission, error) {
		next := 1
		for id := range current {
			if id >= next {
				next = id + 1
			}
		}
		allocated = next
		current[next] = record
		return current, nil
	})
	if mutateErr != nil {
		log.Log().Error(fName, "msg", "failed to persist submission after commitment was consumed", "err", mutateErr.Error())
		return 0, time.Time{}, apierr.Wrap(fmt.Errorf("%s: %w", fName, mutateErr), "internal error")
	}

	digest := sha256.Sum256([]byte(data))
	proofErr := p.ledger.Append(strconv.Itoa(allocated), entity.Proof{
		DataHash:  hex.EncodeToString(digest[:]),
		CreatedAt: now,
	})
	if proofErr != nil {
		log.Log().Error(fName, "msg", "failed to append proof record", "msg_id", allocated, "err", proofErr.Error())
		return 0, time.Time{}, apierr.Wrap(fmt.Errorf("%s: %w", fName, proofErr), "internal error")
	}

	return allocated, record.Expiry, nil
}

// Read runs the §4.9 read pipeline: NotFound on a missing record, Gone on an
// expired or already-destroyed one, else the decrypted plaintext.
func (p *Pipeline) Read(msgID int) (data string, expiry time.Time, err error) {
	const fName = "Read"

	records, err := p.submissions.Load()
	if err != nil {
		return "", time.Time{}, apierr.Wrap(fmt.Errorf("%s: %w", fName, err), "internal error")
	}

	record, ok := records[msgID]
	if !ok {
		return "", time.Time{}, apierr.New(apierr.NotFound, "unknown msg_id")
	}

	now := time.Now().UTC()
	if record.Expired(now) || record.Destroyed() {
		return "", time.Time{}, apierr.New(apierr.Gone, "submission has expired and its key material has been destroyed")
	}

	envelope, err := aead.DecodeEnvelope(record.WrappedDEK)
	if err != nil {
		log.Log().Error(fName, "msg", "wrapped dek envelope is corrupt", "msg_id", msgID)
		return "", time.Time{}, apierr.Wrap(err, "internal error")
	}
	dek, err := aead.UnwrapDEK(p.kek[:], envelope)
	if err != nil {
		log.Log().Error(fName, "msg", "dek unwrap failed", "msg_id", msgID, "err", err.Error())
		return "", time.Time{}, apierr.Wrap(err, "internal error")
	}

	plaintext, err := aead.Decrypt(dek, aead.Sealed{
		Ciphertext: record.Ciphertext,
		Nonce:      record.Nonce,
		Tag:        record.Tag,
	})
	if err != nil {
		log.Log().Error(fName, "msg", "ciphertext decryption failed", "msg_id", msgID, "err", err.Error())
		return "", time.Time{}, apierr.Wrap(err, "internal error")
	}

	return string(plaintext), record.Expiry, nil
}
