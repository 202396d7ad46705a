//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

package submission

import "fmt"

// Ciphertext returns the raw stored ciphertext for msgID, regardless of
// expiry, for use by the signature-verification endpoint which recomputes a
// hash over whatever is currently on disk.
func (p *Pipeline) Ciphertext(msgID int) (ciphertext string, ok bool, err error) {
	records, err := p.submissions.Load()
	if err != nil {
		return "", false, fmt.Errorf("Ciphertext: %w", err)
	}
	rec, found := records[msgID]
	if !found {
		return "", false, nil
	}
	return rec.Ciphertext, true, nil
}
