package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/comfort/internal/constants"
	comfortversion "github.com/nupi-ai/comfort/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client and daemon versions",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	clientVersion := comfortversion.String()

	var daemonVersion string
	if c, err := newClient(cmd); err == nil {
		ctx, cancel := context.WithTimeout(cmd.Context(), constants.CLIProbeTimeout)
		if health, err := c.Health(ctx); err == nil {
			daemonVersion = health.Version
		}
		cancel()
	}
	warning := comfortversion.CheckVersionMismatch(daemonVersion)

	if out.jsonMode {
		data := map[string]any{"client": clientVersion}
		if daemonVersion != "" {
			data["daemon"] = daemonVersion
		}
		if warning != "" {
			data["warning"] = warning
		}
		return out.Print(data)
	}

	fmt.Printf("comfort  %s\n", comfortversion.FormatVersion(clientVersion))
	if daemonVersion == "" {
		fmt.Println("comfortd not reachable")
	} else {
		fmt.Printf("comfortd %s\n", comfortversion.FormatVersion(daemonVersion))
	}
	if warning != "" {
		fmt.Println(warning)
	}
	return nil
}
