package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	outputFmt   string
	communityID string
	userName    string
	userGroups  string
	bearerToken string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lockctl",
		Short: "CLI for the gating server",
		Long: `lockctl manages locks and their application to posts and boards, and
walks through the challenge and verification flow against a gating server.

Identity is sent as X-Remote-User/X-Remote-Group headers, or as a bearer
token when --token (or GATING_TOKEN) is set.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&serverURL, "server", envOr("GATING_SERVER", "http://localhost:8080"), "Gating server URL")
	flags.StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	flags.StringVarP(&communityID, "community", "c", os.Getenv("GATING_COMMUNITY"), "Community to act in")
	flags.StringVarP(&userName, "user", "u", os.Getenv("GATING_USER"), "User to act as")
	flags.StringVar(&userGroups, "groups", os.Getenv("GATING_GROUPS"), "Comma-separated groups of the user")
	flags.StringVar(&bearerToken, "token", os.Getenv("GATING_TOKEN"), "Bearer token; replaces --user and --groups")

	root.AddCommand(
		newHealthCmd(),
		newCategoriesCmd(),
		newLocksCmd(),
		newApplyCmd(),
		newRemoveCmd(),
		newResourceLockCmd(),
		newAccessCmd(),
		newStatusCmd(),
		newChallengeCmd(),
		newVerifyCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
