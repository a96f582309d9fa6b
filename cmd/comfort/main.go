package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/nupi-ai/comfort/internal/client"
	"github.com/nupi-ai/comfort/internal/config"
	comfortversion "github.com/nupi-ai/comfort/internal/version"
)

// OutputFormatter prints JSON when --json is set or stdout is not a terminal.
type OutputFormatter struct {
	jsonMode bool
}

func newOutputFormatter(cmd *cobra.Command) *OutputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	if !jsonMode && !terminal.IsTerminal(int(os.Stdout.Fd())) {
		jsonMode = true
	}
	return &OutputFormatter{jsonMode: jsonMode}
}

// Print outputs data as indented JSON, or as-is for strings in table mode.
func (f *OutputFormatter) Print(data any) error {
	if s, ok := data.(string); ok && !f.jsonMode {
		fmt.Println(s)
		return nil
	}
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(jsonBytes))
	return nil
}

// Success outputs a success message.
func (f *OutputFormatter) Success(message string, data map[string]any) error {
	if f.jsonMode {
		output := map[string]any{
			"success": true,
			"message": message,
		}
		for k, v := range data {
			output[k] = v
		}
		return f.Print(output)
	}
	fmt.Println(message)
	return nil
}

// Error reports message on stderr and returns it as an error.
func (f *OutputFormatter) Error(message string, err error) error {
	if f.jsonMode {
		output := map[string]any{
			"success": false,
			"error":   message,
		}
		if err != nil {
			output["details"] = err.Error()
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(os.Stderr, string(jsonBytes))
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", message, err)
	} else {
		fmt.Fprintln(os.Stderr, message)
	}
	if err == nil {
		return fmt.Errorf("%s", message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

type table struct {
	w *tabwriter.Writer
}

func newTable(headers ...string) *table {
	t := &table{w: tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)}
	t.row(headers...)
	return t
}

func (t *table) row(cols ...string) {
	fmt.Fprintln(t.w, strings.Join(cols, "\t"))
}

func (t *table) flush() error {
	return t.w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// loadSettings returns the daemon settings, falling back to defaults when
// the environment does not validate.
func loadSettings() config.Settings {
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v; using defaults\n", err)
		settings = config.Settings{HTTPAddr: "127.0.0.1:7420", GRPCAddr: "127.0.0.1:7421", Home: config.GetHome()}
	}
	return settings
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("addr")
	if strings.TrimSpace(addr) == "" {
		addr = loadSettings().HTTPAddr
	}
	return client.New(addr)
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "comfort",
		Short: "Comfort - control comfort viewing mode on connected browser pages",
		Long: `Comfort maximises the videos on a page and keeps the page chrome out of the way
until the cursor lingers at the bottom of the video.

The comfort CLI talks to the comfortd daemon to list connected pages, toggle
comfort mode and browse the session journal.`,
	}
	rootCmd.Version = comfortversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("addr", "", "Daemon HTTP address (defaults to COMFORT_HTTP_ADDR)")

	rootCmd.AddCommand(
		newPagesCommand(),
		newToggleCommand(),
		newHistoryCommand(),
		newStatusCommand(),
		newStopCommand(),
		newSimulateCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
