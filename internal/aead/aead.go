//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package aead implements the system's single-pass authenticated
// encryption: AES-256-GCM stands in for the AES-EAX construction named in
// the design notes, since Go's standard library has no native EAX mode and
// GCM is the documented drop-in substitution as long as the wrap/unwrap
// envelope schema is matched and nonces are never reused.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrAuth is returned whenever the authentication tag fails to verify. It is
// a hard integrity failure: callers must never treat it as a retryable
// error or silently report false.
var ErrAuth = errors.New("aead: authentication failed")

// Sealed is the three-field envelope the data model persists for both
// submission ciphertext and wrapped DEKs: nonce, sealed bytes (ciphertext
// with the GCM tag appended), and the tag split out on its own for wire
// compatibility with a classic AEAD envelope.
type Sealed struct {
	Ciphertext string
	Nonce      string
	Tag        string
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aead: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aead: new gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under key, returning a fresh random nonce, the
// GCM-sealed ciphertext (with tag appended), and the tag split out
// separately.
func Encrypt(key, plaintext []byte) (Sealed, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return Sealed{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Sealed{}, fmt.Errorf("aead: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	tag := sealed[len(sealed)-gcm.Overhead():]

	return Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Tag:        base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// Decrypt opens a Sealed envelope under key, returning ErrAuth on any tag
// mismatch or malformed input.
func Decrypt(key []byte, s Sealed) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return nil, ErrAuth
	}
	sealed, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return nil, ErrAuth
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, ErrAuth
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuth
	}
	return plaintext, nil
}

// WrapDEK seals a freshly generated 32-byte data-encryption key under the
// key-encryption key.
func WrapDEK(kek, dek []byte) (Sealed, error) {
	return Encrypt(kek, dek)
}

// UnwrapDEK opens a wrapped DEK envelope under the key-encryption key,
// returning ErrAuth on tag mismatch.
func UnwrapDEK(kek []byte, envelope Sealed) ([]byte, error) {
	return Decrypt(kek, envelope)
}

// EncodeEnvelope serializes a Sealed envelope into the single opaque string
// the data model persists in a record's wrapped_dek field.
func EncodeEnvelope(s Sealed) (string, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("aead: encode envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(body), nil
}

// DecodeEnvelope parses a wrapped_dek field back into a Sealed envelope.
func DecodeEnvelope(encoded string) (Sealed, error) {
	body, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Sealed{}, ErrAuth
	}
	var s Sealed
	if err := json.Unmarshal(body, &s); err != nil {
		return Sealed{}, ErrAuth
	}
	return s, nil
}
