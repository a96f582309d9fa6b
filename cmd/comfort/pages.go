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

func newPagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "pages",
		Short:         "List pages connected to the daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          listPages,
	}
}

func listPages(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	c, err := newClient(cmd)
	if err != nil {
		return out.Error("Invalid daemon address", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), constants.CLIRequestTimeout)
	defer cancel()
	pages, err := c.ListPages(ctx)
	if err != nil {
		return out.Error("Failed to list pages", err)
	}

	if out.jsonMode {
		return out.Print(map[string]any{"pages": pages})
	}
	if len(pages) == 0 {
		fmt.Println("No connected pages")
		return nil
	}
	tw := newTable("ID", "SITE", "ACTIVE", "CONTROLS", "VIDEOS", "CONNECTED", "ORIGIN")
	for _, p := range pages {
		tw.row(p.ID, siteLabel(p.Site), yesNo(p.Active), yesNo(p.ControlsEnabled),
			strconv.Itoa(p.Videos), p.ConnectedAt.Local().Format(time.Kitchen), p.Origin)
	}
	return tw.flush()
}

func newToggleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "toggle <page-id>",
		Short:         "Toggle comfort mode on a connected page",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          togglePage,
	}
	cmd.Flags().Bool("video-context", false, "Mark the request as coming from a video context menu")
	return cmd
}

func togglePage(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	c, err := newClient(cmd)
	if err != nil {
		return out.Error("Invalid daemon address", err)
	}
	videoContext, _ := cmd.Flags().GetBool("video-context")

	ctx, cancel := context.WithTimeout(cmd.Context(), constants.CLIRequestTimeout)
	defer cancel()
	resp, err := c.TogglePage(ctx, args[0], videoContext)
	if client.IsNotFound(err) {
		return out.Error(fmt.Sprintf("Page %s is not connected", args[0]), nil)
	}
	if err != nil {
		return out.Error("Failed to toggle page", err)
	}
	return out.Success(toggleMessage(args[0], resp), map[string]any{
		"page_id":  args[0],
		"active":   resp.Active,
		"no_video": resp.NoVideo,
	})
}

func toggleMessage(id string, resp api.ToggleResponse) string {
	switch {
	case resp.NoVideo:
		return fmt.Sprintf("No playable video on page %s", id)
	case resp.Active:
		return fmt.Sprintf("Comfort mode ON for page %s", id)
	default:
		return fmt.Sprintf("Comfort mode OFF for page %s", id)
	}
}

func siteLabel(site string) string {
	if site == "" {
		return "-"
	}
	return site
}
