package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/comfort/internal/api"
	"github.com/nupi-ai/comfort/internal/client"
	"github.com/nupi-ai/comfort/internal/constants"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "history [session-id]",
		Short:         "Show recorded comfort-mode sessions",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          showHistory,
	}
	cmd.Flags().Int("limit", 20, "Maximum number of sessions to list (1-1000)")
	return cmd
}

func showHistory(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	c, err := newClient(cmd)
	if err != nil {
		return out.Error("Invalid daemon address", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), constants.CLIRequestTimeout)
	defer cancel()

	if len(args) == 1 {
		entry, err := c.GetSession(ctx, args[0])
		if client.IsNotFound(err) {
			return out.Error(fmt.Sprintf("Session %s not found", args[0]), nil)
		}
		if err != nil {
			return out.Error("Failed to load session", err)
		}
		if out.jsonMode {
			return out.Print(entry)
		}
		printSessionTable([]api.SessionDTO{entry})
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 1 || limit > 1000 {
		return out.Error("--limit must be between 1 and 1000", nil)
	}
	entries, err := c.ListSessions(ctx, limit)
	if err != nil {
		return out.Error("Failed to list sessions", err)
	}
	if out.jsonMode {
		return out.Print(map[string]any{"sessions": entries})
	}
	if len(entries) == 0 {
		fmt.Println("No recorded sessions")
		return nil
	}
	printSessionTable(entries)
	return nil
}

func printSessionTable(entries []api.SessionDTO) {
	tw := newTable("ID", "PAGE", "SITE", "STARTED", "DURATION", "VIDEOS", "REVEALS", "ENDED BY")
	for _, e := range entries {
		ended := e.EndReason
		if e.EndedAt == nil {
			ended = "(active)"
		}
		duration := (time.Duration(e.DurationMS) * time.Millisecond).Round(time.Second)
		tw.row(e.ID, e.PageID, siteLabel(e.Site), e.StartedAt.Local().Format(time.DateTime),
			duration.String(), strconv.Itoa(e.Videos), strconv.Itoa(e.Reveals), ended)
	}
	tw.flush()
}
