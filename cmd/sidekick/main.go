package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags shared by client commands
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

// LogsFlags holds flags for the logs command
type LogsFlags struct {
	Stream string
	Lines  int
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

// buildRoot creates the root command and its subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}
	logsFlags := &LogsFlags{}

	root := createRootCommand(globalFlags)
	root.PersistentFlags().StringVar(&apiFlags.URL, "api-url", "", "daemon URL (default http://localhost:8850/api)")
	root.PersistentFlags().DurationVar(&apiFlags.Timeout, "api-timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		createServeCommand(globalFlags),
		createStartCommand(apiFlags),
		createStopCommand(apiFlags),
		createRestartCommand(apiFlags),
		createStatusCommand(apiFlags),
		createLogsCommand(apiFlags, logsFlags),
		createLogFilesCommand(apiFlags),
		createClearLogsCommand(apiFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "sidekick",
		Short: "Sidecar process supervision tool",
		Long: `Sidekick launches, monitors and recovers a companion worker process.
It captures the worker's output, probes its health endpoint and exposes a
small control API.

Examples:
  sidekick serve --config=config.toml       # Start daemon
  sidekick start                            # Start the sidecar via daemon API
  sidekick status                           # Show sidecar state
  sidekick logs --stream=stderr --lines=50  # Tail captured stderr`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	return root
}

func dialDaemon(f *APIFlags) (*APIClient, error) {
	client := NewAPIClient(f.URL, f.Timeout)
	if !client.IsReachable() {
		return nil, fmt.Errorf("daemon is not reachable at %s (is 'sidekick serve' running?)", client.baseURL)
	}
	return client, nil
}

func createStartCommand(apiFlags *APIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the sidecar process",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(apiFlags)
			if err != nil {
				return err
			}
			if err := client.StartSidecar(); err != nil {
				return err
			}
			fmt.Println("sidecar started")
			return nil
		},
	}
}

func createStopCommand(apiFlags *APIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the sidecar process",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(apiFlags)
			if err != nil {
				return err
			}
			if err := client.StopSidecar(); err != nil {
				return err
			}
			fmt.Println("sidecar stopped")
			return nil
		},
	}
}

func createRestartCommand(apiFlags *APIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the sidecar process",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(apiFlags)
			if err != nil {
				return err
			}
			if err := client.RestartSidecar(); err != nil {
				return err
			}
			fmt.Println("sidecar restarted")
			return nil
		},
	}
}

func createStatusCommand(apiFlags *APIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sidecar status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(apiFlags)
			if err != nil {
				return err
			}
			status, err := client.GetStatus()
			if err != nil {
				return err
			}
			printStatus(status)
			return nil
		},
	}
}

func createLogsCommand(apiFlags *APIFlags, logsFlags *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent captured sidecar output",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(apiFlags)
			if err != nil {
				return err
			}
			lines, err := client.GetLogs(logsFlags.Stream, logsFlags.Lines)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logsFlags.Stream, "stream", "stdout", "stream to read (stdout or stderr)")
	cmd.Flags().IntVar(&logsFlags.Lines, "lines", 100, "number of lines from the end")
	return cmd
}

func createLogFilesCommand(apiFlags *APIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logfiles",
		Short: "List captured log files, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(apiFlags)
			if err != nil {
				return err
			}
			files, err := client.ListLogFiles()
			if err != nil {
				return err
			}
			for _, f := range files {
				name, _ := f["name"].(string)
				size, _ := f["size"].(float64)
				modified, _ := f["modified"].(string)
				fmt.Printf("%-40s %10.0f  %s\n", name, size, modified)
			}
			return nil
		},
	}
}

func createClearLogsCommand(apiFlags *APIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-logs",
		Short: "Truncate active logs and delete archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(apiFlags)
			if err != nil {
				return err
			}
			if err := client.ClearLogs(); err != nil {
				return err
			}
			fmt.Println("logs cleared")
			return nil
		},
	}
}

func printStatus(status map[string]interface{}) {
	state, _ := status["state"].(string)
	fmt.Printf("state: %s\n", state)
	if msg, ok := status["message"].(string); ok && msg != "" {
		fmt.Printf("message: %s\n", msg)
	}
	if pid, ok := status["pid"].(float64); ok && pid > 0 {
		fmt.Printf("pid: %.0f\n", pid)
	}
	if uptime, ok := status["uptime"].(float64); ok && uptime > 0 {
		fmt.Printf("uptime: %s\n", (time.Duration(uptime) * time.Second).String())
	}
	if rc, ok := status["restart_count"].(float64); ok && rc > 0 {
		fmt.Printf("restarts: %.0f\n", rc)
	}
}
