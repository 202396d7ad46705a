//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package signature implements RSA-PSS signing and verification over
// arbitrary byte strings using the persistent server signing key.
// Verification is tolerant by design: a tampered input or signature
// produces false, never an error, so callers can never mistake a crypto
// failure for a retryable fault.
package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/spiffe/spike-chat/internal/log"
)

var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthEqualsHash,
	Hash:       crypto.SHA256,
}

// Sign returns the hex-encoded RSA-PSS signature of SHA-256(data) under
// key.
func Sign(key *rsa.PrivateKey, data []byte) (string, error) {
	const fName = "Sign"

	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		log.Log().Error(fName, "msg", "pss signing failed", "err", err.Error())
		return "", fmt.Errorf("%s: %w", fName, err)
	}
	return hex.EncodeToString(sig), nil
}

// Verify reports whether hexSignature is a valid RSA-PSS signature of
// SHA-256(data) under pub. Any malformed input (bad hex, wrong length,
// tampered bytes) yields false.
func Verify(pub *rsa.PublicKey, data []byte, hexSignature string) bool {
	sig, err := hex.DecodeString(hexSignature)
	if err != nil {
		return false
	}

	digest := sha256.Sum256(data)
	err = rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOptions)
	return err == nil
}
