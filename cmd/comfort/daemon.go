package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/comfort/internal/constants"
	daemonruntime "github.com/nupi-ai/comfort/internal/runtime"
	"github.com/nupi-ai/comfort/internal/transport/gateway"
	comfortversion "github.com/nupi-ai/comfort/internal/version"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Check whether the daemon is running and healthy",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          daemonStatus,
	}
	cmd.Flags().String("grpc-addr", "", "Daemon gRPC health address (defaults to COMFORT_GRPC_ADDR)")
	return cmd
}

type statusReport struct {
	PID       int    `json:"pid,omitempty"`
	Health    string `json:"grpc_health"`
	HTTP      bool   `json:"http_reachable"`
	Version   string `json:"version,omitempty"`
	Pages     int    `json:"pages"`
	Clients   int    `json:"clients"`
	Published uint64 `json:"bus_published"`
	Dropped   uint64 `json:"bus_dropped"`
	Warning   string `json:"warning,omitempty"`
}

func daemonStatus(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	settings := loadSettings()

	report := statusReport{Health: "UNREACHABLE"}
	if pid, ok := daemonruntime.LivePID(settings.Paths().PIDFile); ok {
		report.PID = pid
	}

	grpcAddr, _ := cmd.Flags().GetString("grpc-addr")
	if grpcAddr == "" {
		grpcAddr = settings.GRPCAddr
	}
	probeCtx, cancel := context.WithTimeout(cmd.Context(), constants.CLIProbeTimeout)
	if status, err := gateway.Probe(probeCtx, grpcAddr); err == nil {
		report.Health = status.String()
	}
	cancel()

	if c, err := newClient(cmd); err == nil {
		ctx, cancel := context.WithTimeout(cmd.Context(), constants.CLIProbeTimeout)
		if health, err := c.Health(ctx); err == nil {
			report.HTTP = true
			report.Version = health.Version
			report.Pages = health.Pages
			report.Clients = health.Clients
			report.Published = health.PublishTotal
			report.Dropped = health.DroppedTotal
			report.Warning = comfortversion.CheckVersionMismatch(health.Version)
		}
		cancel()
	}

	if out.jsonMode {
		return out.Print(report)
	}
	if report.PID == 0 && !report.HTTP {
		fmt.Println("Daemon is not running")
		return nil
	}
	tw := newTable("PID", "HEALTH", "HTTP", "VERSION", "PAGES", "CLIENTS", "BUS PUB/DROP")
	pid := "-"
	if report.PID > 0 {
		pid = fmt.Sprint(report.PID)
	}
	tw.row(pid, report.Health, yesNo(report.HTTP), report.Version, fmt.Sprint(report.Pages),
		fmt.Sprint(report.Clients), fmt.Sprintf("%d/%d", report.Published, report.Dropped))
	tw.flush()
	if report.Warning != "" {
		fmt.Println(report.Warning)
	}
	return nil
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "stop",
		Short:         "Stop the running daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          daemonStop,
	}
}

func daemonStop(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	paths := loadSettings().Paths()

	pid, err := daemonruntime.ReadPIDFile(paths.PIDFile)
	if errors.Is(err, daemonruntime.ErrNoPIDFile) {
		return out.Error("Daemon is not running", nil)
	}
	if err != nil {
		return out.Error("Failed to read daemon PID", err)
	}
	if _, alive := daemonruntime.LivePID(paths.PIDFile); !alive {
		return out.Error("Daemon is not running (removed stale PID file)", nil)
	}
	if err := daemonruntime.Terminate(pid); err != nil {
		return out.Error("Failed to signal daemon", err)
	}

	deadline := time.Now().Add(constants.CLIStopWaitTimeout)
	for daemonruntime.ProcessAlive(pid) {
		if time.Now().After(deadline) {
			return out.Error(fmt.Sprintf("Daemon (PID %d) did not exit in time", pid), nil)
		}
		time.Sleep(constants.CLIStopPollInterval)
	}
	return out.Success("Daemon stopped", map[string]any{"pid": pid})
}
