package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lockgate/lockgate/pkg/locks"
)

type lockList struct {
	Locks         []locks.LockResponse `json:"locks"`
	NextPageToken string               `json:"nextPageToken"`
	TotalSize     int                  `json:"totalSize"`
}

func newLocksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "locks",
		Aliases: []string{"lock"},
		Short:   "Manage locks",
	}
	cmd.AddCommand(
		newLocksListCmd(),
		newLocksGetCmd(),
		newLocksCreateCmd(),
		newLocksUpdateCmd(),
		newLocksDeleteCmd(),
		newLocksUsageCmd(),
	)
	return cmd
}

func newLocksListCmd() *cobra.Command {
	var (
		query     string
		creator   string
		templates bool
		pageSize  int
		pageToken string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List locks visible to the caller",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if query != "" {
				q.Set("q", query)
			}
			if creator != "" {
				q.Set("creatorId", creator)
			}
			if templates {
				q.Set("templates", "true")
			}
			q.Set("pageSize", strconv.Itoa(pageSize))
			if pageToken != "" {
				q.Set("pageToken", pageToken)
			}

			var resp lockList
			if err := newClient().get(apiBasePath+"/locks?"+q.Encode(), &resp); err != nil {
				return fmt.Errorf("failed to list locks: %w", err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), resp)
			}

			rows := make([][]string, 0, len(resp.Locks))
			for _, l := range resp.Locks {
				mode := "any"
				if l.GatingConfig.RequireAll {
					mode = "all"
				}
				rows = append(rows, []string{
					l.ID,
					truncate(l.Name, 40),
					l.CreatorID,
					strconv.Itoa(len(l.GatingConfig.Categories)),
					mode,
					yesNo(l.IsPublic),
					strconv.FormatInt(l.UsageCount, 10),
				})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Name", "Creator", "Categories", "Mode", "Public", "Usage"}, rows)
			if resp.NextPageToken != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nMore results: --page-token %s\n", resp.NextPageToken)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Filter by name or description")
	cmd.Flags().StringVar(&creator, "creator", "", "Only locks created by this user")
	cmd.Flags().BoolVar(&templates, "templates", false, "Only templates")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Results per page")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Continue from a previous page")
	return cmd
}

func newLocksGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get LOCK_ID",
		Short: "Show a lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var l locks.LockResponse
			if err := newClient().get(apiBasePath+"/locks/"+url.PathEscape(args[0]), &l); err != nil {
				return fmt.Errorf("failed to get lock: %w", err)
			}
			return printLock(cmd, l)
		},
	}
}

func newLocksCreateCmd() *cobra.Command {
	var (
		file string
		name string
	)
	cmd := &cobra.Command{
		Use:   "create -f LOCK.yaml",
		Short: "Create a lock from a YAML definition",
		Long: `Create a lock from a YAML definition, for example:

  name: LYX holders
  isPublic: true
  gatingConfig:
    requireAll: false
    categories:
      - type: universal_profile
        enabled: true
        requirements:
          minLyxBalance: "1000000000000000000"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readLockFile(file)
			if err != nil {
				return err
			}
			if name != "" {
				body["name"] = name
			}
			var l locks.LockResponse
			if err := newClient().do(http.MethodPost, apiBasePath+"/locks", body, &l); err != nil {
				return fmt.Errorf("failed to create lock: %w", err)
			}
			return printLock(cmd, l)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML lock definition")
	cmd.Flags().StringVar(&name, "name", "", "Lock name; overrides the file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newLocksUpdateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "update LOCK_ID -f PATCH.yaml",
		Short: "Update a lock; only the fields present in the file change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readLockFile(file)
			if err != nil {
				return err
			}
			var l locks.LockResponse
			if err := newClient().do(http.MethodPatch, apiBasePath+"/locks/"+url.PathEscape(args[0]), body, &l); err != nil {
				return fmt.Errorf("failed to update lock: %w", err)
			}
			return printLock(cmd, l)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML with the fields to change")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newLocksDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete LOCK_ID",
		Short: "Delete a lock that is not applied anywhere",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().do(http.MethodDelete, apiBasePath+"/locks/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return fmt.Errorf("failed to delete lock: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lock %s deleted\n", args[0])
			return nil
		},
	}
}

func newLocksUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage LOCK_ID",
		Short: "List the posts and boards a lock is applied to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				LockID       string                      `json:"lockId"`
				UsageCount   int64                       `json:"usageCount"`
				Applications []locks.ApplicationResponse `json:"applications"`
			}
			if err := newClient().get(apiBasePath+"/locks/"+url.PathEscape(args[0])+"/usage", &resp); err != nil {
				return fmt.Errorf("failed to get lock usage: %w", err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), resp)
			}
			rows := make([][]string, 0, len(resp.Applications))
			for _, a := range resp.Applications {
				rows = append(rows, applicationRow(a))
			}
			printTable(cmd.OutOrStdout(), applicationHeaders, rows)
			return nil
		},
	}
}

// readLockFile decodes a YAML lock definition into a JSON-ready body.
func readLockFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var body map[string]any
	if err := yaml.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if body == nil {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return body, nil
}

func printLock(cmd *cobra.Command, l locks.LockResponse) error {
	if structured() {
		return printOutput(cmd.OutOrStdout(), l)
	}
	mode := "any one category"
	if l.GatingConfig.RequireAll {
		mode = "all categories"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", l.ID)
	fmt.Fprintf(out, "Name:      %s\n", l.Name)
	fmt.Fprintf(out, "Creator:   %s\n", l.CreatorID)
	fmt.Fprintf(out, "Public:    %s\n", yesNo(l.IsPublic))
	fmt.Fprintf(out, "Template:  %s\n", yesNo(l.IsTemplate))
	fmt.Fprintf(out, "Requires:  %s\n", mode)
	fmt.Fprintf(out, "Usage:     %d\n\n", l.UsageCount)

	rows := make([][]string, 0, len(l.GatingConfig.Categories))
	for _, c := range l.GatingConfig.Categories {
		rows = append(rows, []string{c.Type, yesNo(c.Enabled), truncate(string(c.Requirements), 60)})
	}
	printTable(out, []string{"Category", "Enabled", "Requirements"}, rows)
	return nil
}
