//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package entity defines the persistent data model shared by the submission
// pipeline, the chat pipeline, and the verification endpoints.
package entity

import (
	"time"

	"github.com/spiffe/spike-chat/internal/merkle"
)

// Submission is an anonymous, admitted submission keyed by a sequential
// integer msg_id (carried as the map key in the submissions document, not
// as a struct field, per the storage contract).
type Submission struct {
	Ciphertext string    `json:"ciphertext"`
	Nonce      string    `json:"nonce"`
	Tag        string    `json:"tag"`
	WrappedDEK string    `json:"wrapped_dek,omitempty"`
	Commitment string    `json:"commitment"`
	CreatedAt  time.Time `json:"created_at"`
	Expiry     time.Time `json:"expiry"`
}

// Expired reports whether now is at or past the submission's deadline.
func (s Submission) Expired(now time.Time) bool {
	return !now.Before(s.Expiry)
}

// Destroyed reports whether the submission's key material has already been
// cleared by the expiry scheduler.
func (s Submission) Destroyed() bool {
	return s.WrappedDEK == ""
}

// Chat is an end-to-end-encrypted message keyed by a UUIDv4 message_id.
type Chat struct {
	EncryptedMessage string    `json:"encrypted_message"`
	EncryptedKey     string    `json:"encrypted_key"`
	Receiver         string    `json:"receiver"`
	CreatedAt        time.Time `json:"created_at"`
	Expiry           time.Time `json:"expiry"`
	Expired          bool      `json:"expired"`
}

// Proof is the proof-of-existence record for a submission or chat message,
// keyed by the same id as its subject.
type Proof struct {
	DataHash  string    `json:"data_hash"`
	Signature string    `json:"signature,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Empty reports whether the value is the zero Proof, used to distinguish
// "no proof record" from a proof with an empty signature.
func (p Proof) Empty() bool {
	return p.DataHash == "" && p.CreatedAt.IsZero()
}

// IdentityResponse is the diagnostic triple returned by /auth/identity.
type IdentityResponse struct {
	IdentitySecret string `json:"identity_secret"`
	Nullifier      string `json:"nullifier"`
	Commitment     string `json:"commitment"`
}

// SubmitRequest is the body of POST /auth/submit.
type SubmitRequest struct {
	Data       string `json:"data"`
	Commitment string `json:"commitment"`
	Nonce      string `json:"nonce"`
}

// SubmitResponse is the body of a successful POST /auth/submit.
type SubmitResponse struct {
	Status string    `json:"status"`
	MsgID  int       `json:"msg_id"`
	Expiry time.Time `json:"expiry"`
}

// ReadResponse is the body of a successful GET /auth/read/{msg_id}.
type ReadResponse struct {
	MsgID  int       `json:"msg_id"`
	Data   string    `json:"data"`
	Expiry time.Time `json:"expiry"`
}

// ChatSendRequest is the body of POST /chat/send.
type ChatSendRequest struct {
	EncryptedMessage string `json:"encrypted_message"`
	EncryptedKey     string `json:"encrypted_key"`
	Receiver         string `json:"receiver"`
}

// ChatSendResponse is the body of a successful POST /chat/send.
type ChatSendResponse struct {
	MessageID string    `json:"message_id"`
	Expiry    time.Time `json:"expiry"`
}

// ChatInboxEntry is one record returned by GET /chat/inbox/{user_id}.
type ChatInboxEntry struct {
	MessageID        string    `json:"message_id"`
	EncryptedMessage string    `json:"encrypted_message,omitempty"`
	EncryptedKey     string    `json:"encrypted_key,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	Expiry           time.Time `json:"expiry"`
	Expired          bool      `json:"expired"`
}

// KeyRegisterRequest is the body of POST /keys/register.
type KeyRegisterRequest struct {
	UserID    string `json:"user_id"`
	PublicKey string `json:"public_key"`
}

// KeyResponse is the body of GET /keys/{user_id} and /keys/server/pubkey.
type KeyResponse struct {
	UserID    string `json:"user_id,omitempty"`
	PublicKey string `json:"public_key"`
}

// RootResponse is the body of GET /verify/root.
type RootResponse struct {
	Root             string `json:"root"`
	TotalSubmissions int    `json:"total_submissions"`
}

// HashCheckRequest is the body of POST /verify/hash.
type HashCheckRequest struct {
	Data string `json:"data"`
}

// HashCheckResponse is the body of a successful POST /verify/hash.
type HashCheckResponse struct {
	DataHash   string `json:"data_hash"`
	Found      bool   `json:"found"`
	MerkleRoot string `json:"merkle_root"`
}

// ProofResponse is the body of a successful GET /verify/proof/{id}.
type ProofResponse struct {
	LeafHash   string        `json:"leaf_hash"`
	MerkleRoot string        `json:"merkle_root"`
	ProofPath  []merkle.Step `json:"proof_path"`
}

// SignatureVerifyRequest is the body of POST /verify/signature. MsgID is a
// string since it must accommodate both the decimal submission msg_id and
// the UUID chat message_id, per the shared proof-record key space.
type SignatureVerifyRequest struct {
	MsgID string `json:"msg_id"`
}

// SignatureVerifyResponse is the body of a successful POST /verify/signature.
type SignatureVerifyResponse struct {
	Valid bool   `json:"valid,omitempty"`
	Note  string `json:"note,omitempty"`
	Hash  string `json:"hash"`
}

// ExpireResponse is the body of a successful POST /admin/expire.
type ExpireResponse struct {
	Status           string `json:"status"`
	SubmissionsSwept int    `json:"submissions_swept"`
	ChatSwept        int    `json:"chat_swept"`
}

// ErrorResponse is the 4xx JSON error envelope.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}
