//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

package chat

import "fmt"

// EncryptedMessage returns the raw stored encrypted_message for messageID,
// regardless of expiry (an expired record reads back as ""), for use by the
// signature-verification endpoint.
func (p *Pipeline) EncryptedMessage(messageID string) (encryptedMessage string, ok bool, err error) {
	records, err := p.messages.Load()
	if err != nil {
		return "", false, fmt.Errorf("EncryptedMessage: %w", err)
	}
	rec, found := records[messageID]
	if !found {
		return "", false, nil
	}
	return rec.EncryptedMessage, true, nil
}
