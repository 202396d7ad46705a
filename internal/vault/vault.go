//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package vault bootstraps and caches the system's two long-lived secrets:
// the 256-bit AES key-encryption key (KEK) and the RSA-2048 signing
// keypair. Both are created exactly once, on first start, and reloaded on
// every subsequent start; neither is ever rotated within the lifetime of
// the persisted state (I5).
package vault

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spiffe/spike-chat/internal/log"
)

const (
	kekFileName        = "kek.json"
	signingKeyFileName = "signing_key.pem"

	// KeySize is the KEK length in bytes (AES-256).
	KeySize = 32

	rsaKeyBits = 2048
)

// Vault holds the process's cached KEK and RSA signing key, loaded once at
// startup and shared read-only across every request-handling goroutine.
type Vault struct {
	dir        string
	kek        [KeySize]byte
	signingKey *rsa.PrivateKey
}

// Open bootstraps the vault directory idempotently: it generates and
// persists the KEK and signing key if they are absent, or loads them from
// disk if present. An operator who deletes the vault directory destroys all
// unexpired submissions and all future signature verifiability, which is
// expected and not guarded against here.
func Open(dir string) (*Vault, error) {
	const fName = "Open"

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%s: create vault dir: %w", fName, err)
	}

	v := &Vault{dir: dir}

	kek, err := loadOrCreateKEK(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fName, err)
	}
	v.kek = kek

	signingKey, err := loadOrCreateSigningKey(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fName, err)
	}
	v.signingKey = signingKey

	log.Log().Info(fName, "msg", "vault ready", "dir", dir)
	return v, nil
}

// KEK returns the cached key-encryption key.
func (v *Vault) KEK() [KeySize]byte {
	return v.kek
}

// SigningKey returns the cached RSA signing keypair.
func (v *Vault) SigningKey() *rsa.PrivateKey {
	return v.signingKey
}

// PublicKeysPath returns the path of the public-key registry document
// inside the vault directory.
func (v *Vault) PublicKeysPath() string {
	return filepath.Join(v.dir, "public_keys.json")
}

func loadOrCreateKEK(dir string) ([KeySize]byte, error) {
	const fName = "loadOrCreateKEK"
	path := filepath.Join(dir, kekFileName)

	var kek [KeySize]byte

	body, err := os.ReadFile(path)
	if err == nil {
		decoded, decErr := hex.DecodeString(string(trim(body)))
		if decErr != nil {
			return kek, fmt.Errorf("%s: decode kek: %w", fName, decErr)
		}
		if len(decoded) != KeySize {
			return kek, fmt.Errorf(
				"%s: kek has invalid length %d", fName, len(decoded),
			)
		}
		copy(kek[:], decoded)
		return kek, nil
	}
	if !os.IsNotExist(err) {
		return kek, fmt.Errorf("%s: read kek: %w", fName, err)
	}

	if _, err := rand.Read(kek[:]); err != nil {
		return kek, fmt.Errorf("%s: generate kek: %w", fName, err)
	}

	encoded := hex.EncodeToString(kek[:])
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return kek, fmt.Errorf("%s: persist kek: %w", fName, err)
	}

	log.Log().Info(fName, "msg", "generated new kek")
	return kek, nil
}

func loadOrCreateSigningKey(dir string) (*rsa.PrivateKey, error) {
	const fName = "loadOrCreateSigningKey"
	path := filepath.Join(dir, signingKeyFileName)

	body, err := os.ReadFile(path)
	if err == nil {
		block, _ := pem.Decode(body)
		if block == nil {
			return nil, fmt.Errorf("%s: no PEM block in %s", fName, path)
		}
		key, parseErr := x509.ParsePKCS8PrivateKey(block.Bytes)
		if parseErr != nil {
			return nil, fmt.Errorf(
				"%s: parse signing key: %w", fName, parseErr,
			)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s: signing key is not RSA", fName)
		}
		return rsaKey, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: read signing key: %w", fName, err)
	}

	key, genErr := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if genErr != nil {
		return nil, fmt.Errorf("%s: generate signing key: %w", fName, genErr)
	}

	der, marshalErr := x509.MarshalPKCS8PrivateKey(key)
	if marshalErr != nil {
		return nil, fmt.Errorf(
			"%s: marshal signing key: %w", fName, marshalErr,
		)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}

	file, createErr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if createErr != nil {
		return nil, fmt.Errorf(
			"%s: create signing key file: %w", fName, createErr,
		)
	}
	defer func() { _ = file.Close() }()

	if err := pem.Encode(file, block); err != nil {
		return nil, fmt.Errorf("%s: persist signing key: %w", fName, err)
	}

	log.Log().Info(fName, "msg", "generated new signing key")
	return key, nil
}

func trim(b []byte) []byte {
	n := len(b)
	for n > 0 && (b[n-1] == '\n' || b[n-1] == '\r' || b[n-1] == ' ') {
		n--
	}
	return b[:n]
}
