//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type rootStatus struct {
	Root             string `json:"root"`
	TotalSubmissions int    `json:"total_submissions"`
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current Merkle root and submission count",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Get(serverURL + "/verify/root")
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer resp.Body.Close()

			var status rootStatus
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("status: decode response: %w", err)
			}

			fmt.Printf("leaves: %d\n", status.TotalSubmissions)
			fmt.Printf("root:   %s\n", status.Root)
			return nil
		},
	}
}
