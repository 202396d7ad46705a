//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// confirmationWord is the literal string an operator must type to confirm a
// force-expire sweep, mirroring the typed-confirmation discipline of a
// shard-restore operation: a single accidental keystroke must never trigger
// irreversible key destruction.
const confirmationWord = "EXPIRE"

type expireResult struct {
	Status           string `json:"status"`
	SubmissionsSwept int    `json:"submissions_swept"`
	ChatSwept        int    `json:"chat_swept"`
}

func newExpireCommand() *cobra.Command {
	var token string

	expireCmd := &cobra.Command{
		Use:   "expire",
		Short: "Force an immediate expiry sweep (destroys key material of expired records)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("This will permanently destroy the key material of every expired")
			fmt.Println("submission and chat message. Type the word EXPIRE to confirm.")
			fmt.Print("> ")

			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("expire: read confirmation: %w", err)
			}
			if strings.TrimSpace(line) != confirmationWord {
				return fmt.Errorf("expire: confirmation did not match %q, aborting", confirmationWord)
			}

			if token == "" {
				token = os.Getenv("SPIKECTL_ADMIN_TOKEN")
			}
			if token == "" {
				fmt.Print("Admin token: ")
				raw, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Println()
				if err != nil {
					return fmt.Errorf("expire: read admin token: %w", err)
				}
				token = string(raw)
			}

			req, err := http.NewRequest(http.MethodPost, serverURL+"/admin/expire", bytes.NewReader(nil))
			if err != nil {
				return fmt.Errorf("expire: %w", err)
			}
			req.Header.Set("Authorization", "Bearer "+token)

			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("expire: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("expire: server returned %s", resp.Status)
			}

			var result expireResult
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				return fmt.Errorf("expire: decode response: %w", err)
			}

			fmt.Printf("submissions swept: %d\n", result.SubmissionsSwept)
			fmt.Printf("chat messages swept: %d\n", result.ChatSwept)
			return nil
		},
	}

	expireCmd.Flags().StringVar(&token, "token", "", "admin bearer token (falls back to SPIKECTL_ADMIN_TOKEN, then an interactive prompt)")
	return expireCmd
}
