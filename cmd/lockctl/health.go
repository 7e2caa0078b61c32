package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health and readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			var healthResp map[string]any
			if err := client.get("/healthz", &healthResp); err != nil {
				return fmt.Errorf("server unreachable: %w", err)
			}

			var readyResp map[string]any
			if err := client.get("/readyz", &readyResp); err != nil {
				// Not fatal; a 503 still describes which component is down.
				readyResp = map[string]any{"status": "unavailable", "error": err.Error()}
				var apiErr *apiError
				if errors.As(err, &apiErr) {
					readyResp["status"] = fmt.Sprintf("unavailable (%d)", apiErr.Status)
				}
			}

			if structured() {
				return printOutput(cmd.OutOrStdout(), map[string]any{
					"health":    healthResp,
					"readiness": readyResp,
				})
			}

			status, _ := healthResp["status"].(string)
			ready, _ := readyResp["status"].(string)
			printTable(cmd.OutOrStdout(), []string{"Check", "Status"}, [][]string{
				{"Liveness", status},
				{"Readiness", ready},
			})
			return nil
		},
	}
}
