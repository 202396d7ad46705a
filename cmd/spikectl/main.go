//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Command spikectl is the operator CLI for the submission and messaging
// backend: it queries service status, prints the effective configuration,
// and triggers a force-expire sweep.
package main

import "github.com/spiffe/spike-chat/cmd/spikectl/internal/cmd"

func main() {
	cmd.Execute()
}
