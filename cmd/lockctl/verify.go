package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lockgate/lockgate/pkg/challenge"
	"github.com/lockgate/lockgate/pkg/gating"
	"github.com/lockgate/lockgate/pkg/scope"
)

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the verification categories the server supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp gating.CategoriesResponse
			if err := newClient().get(apiBasePath+"/categories", &resp); err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), resp)
			}
			rows := make([][]string, 0, len(resp.Items))
			for _, m := range resp.Items {
				rows = append(rows, []string{m.Type, m.Name, truncate(m.Description, 60)})
			}
			printTable(cmd.OutOrStdout(), []string{"Type", "Name", "Description"}, rows)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	var contextStr string
	cmd := &cobra.Command{
		Use:   "status LOCK_ID --context TYPE:ID",
		Short: "Show the user's verification status for a lock in a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scope.Parse(contextStr)
			if err != nil {
				return err
			}
			q := url.Values{"contextType": {string(sc.Type)}, "contextId": {sc.ID}}
			var status gating.Status
			if err := newClient().get(apiBasePath+"/locks/"+url.PathEscape(args[0])+"/status?"+q.Encode(), &status); err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			return printStatus(cmd, status)
		},
	}
	cmd.Flags().StringVar(&contextStr, "context", "", "Context the verification applies to, e.g. post:123 or board:7")
	_ = cmd.MarkFlagRequired("context")
	return cmd
}

func printStatus(cmd *cobra.Command, s gating.Status) error {
	if structured() {
		return printOutput(cmd.OutOrStdout(), s)
	}
	out := cmd.OutOrStdout()
	if s.LockID != "" {
		fmt.Fprintf(out, "Lock:      %s\n", s.LockID)
	}
	fmt.Fprintf(out, "Context:   %s\n", s.Context)
	fmt.Fprintf(out, "Access:    %s\n", yesNo(s.CanAccess))
	if s.ExpiresAt != nil {
		fmt.Fprintf(out, "Expires:   %s\n", s.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Message:   %s\n", s.Message)
	if len(s.Categories) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	rows := make([][]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		expires := ""
		if c.ExpiresAt != nil {
			expires = c.ExpiresAt.Format(time.RFC3339)
		}
		rows = append(rows, []string{c.Type, string(c.Status), expires})
	}
	printTable(out, []string{"Category", "Status", "Expires"}, rows)
	return nil
}

func newChallengeCmd() *cobra.Command {
	var (
		category   string
		address    string
		contextStr string
	)
	cmd := &cobra.Command{
		Use:   "challenge LOCK_ID --category TYPE --address 0x... --context TYPE:ID",
		Short: "Request a challenge message to sign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scope.Parse(contextStr)
			if err != nil {
				return err
			}
			body := map[string]any{"category": category, "address": address, "context": sc}
			var c challenge.Challenge
			if err := newClient().do(http.MethodPost, apiBasePath+"/locks/"+url.PathEscape(args[0])+"/challenges", body, &c); err != nil {
				return fmt.Errorf("failed to issue challenge: %w", err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), c)
			}
			// The bare message, ready to be piped into a signer.
			fmt.Fprintln(cmd.OutOrStdout(), c.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Category to verify")
	cmd.Flags().StringVar(&address, "address", "", "Address that will sign")
	cmd.Flags().StringVar(&contextStr, "context", "", "Context, e.g. post:123 or board:7")
	for _, f := range []string{"category", "address", "context"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var (
		address     string
		contextStr  string
		message     string
		messageFile string
		signature   string
		data        string
	)
	cmd := &cobra.Command{
		Use:   "verify LOCK_ID CATEGORY --address 0x... --context TYPE:ID --signature 0x...",
		Short: "Submit a signed challenge for verification",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scope.Parse(contextStr)
			if err != nil {
				return err
			}
			if messageFile != "" {
				raw, err := os.ReadFile(messageFile)
				if err != nil {
					return fmt.Errorf("read message: %w", err)
				}
				message = strings.TrimRight(string(raw), "\n")
			}
			if message == "" {
				return errors.New("a challenge message is required (--message or --message-file)")
			}
			body := map[string]any{
				"address":   address,
				"context":   sc,
				"message":   message,
				"signature": signature,
			}
			if data != "" {
				var vd map[string]any
				if err := json.Unmarshal([]byte(data), &vd); err != nil {
					return fmt.Errorf("parse --data: %w", err)
				}
				body["verificationData"] = vd
			}

			path := fmt.Sprintf("%s/locks/%s/categories/%s/verifications", apiBasePath, url.PathEscape(args[0]), url.PathEscape(args[1]))
			var outcome gating.Outcome
			err = newClient().do(http.MethodPost, path, body, &outcome)
			var apiErr *apiError
			if errors.As(err, &apiErr) {
				// Rejections still carry an outcome.
				if json.Unmarshal(apiErr.Body, &outcome) != nil || outcome.VerificationStatus == "" {
					return fmt.Errorf("verification failed: %w", err)
				}
			} else if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}

			if structured() {
				if perr := printOutput(cmd.OutOrStdout(), outcome); perr != nil {
					return perr
				}
			} else {
				printOutcome(cmd, outcome)
			}
			if !outcome.Success {
				return fmt.Errorf("verification %s: %s", outcome.VerificationStatus, outcome.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Signing address")
	cmd.Flags().StringVar(&contextStr, "context", "", "Context, e.g. post:123 or board:7")
	cmd.Flags().StringVar(&message, "message", "", "The challenge message that was signed")
	cmd.Flags().StringVar(&messageFile, "message-file", "", "Read the challenge message from a file")
	cmd.Flags().StringVar(&signature, "signature", "", "Hex signature over the message")
	cmd.Flags().StringVar(&data, "data", "", "Extra verification data as a JSON object")
	for _, f := range []string{"address", "context", "signature"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func printOutcome(cmd *cobra.Command, o gating.Outcome) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Status:    %s\n", o.VerificationStatus)
	if o.ExpiresAt != nil {
		fmt.Fprintf(out, "Expires:   %s\n", o.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Message:   %s\n", o.Message)
	if o.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", o.Error)
	}
}
