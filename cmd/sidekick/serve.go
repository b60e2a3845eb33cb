package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/publr/sidekick"
	"github.com/publr/sidekick/internal/logger"
)

const defaultListen = "127.0.0.1:8850"

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the sidekick daemon",
		Long: `Start the sidekick daemon. The daemon manages the sidecar process and
serves the control API used by the other commands.

Examples:
  sidekick serve --config=config.toml
  sidekick serve config.toml
  sidekick serve config.toml --daemonize --pidfile=/run/sidekick.pid`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := serveFlags.ConfigPath
			if path == "" {
				path = globalFlags.ConfigPath
			}
			if len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("config file required (--config or positional argument)")
			}
			if serveFlags.Daemonize {
				if err := daemonize(serveFlags.PidFile, serveFlags.LogFile); err != nil {
					return err
				}
			}
			return runServe(path, serveFlags)
		},
	}
	cmd.Flags().StringVar(&serveFlags.ConfigPath, "config", "", "path to TOML config file")
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run in the background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "daemon PID file path")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "daemon log file path")
	return cmd
}

func runServe(configPath string, flags *ServeFlags) error {
	fc, err := sidekick.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}

	logCfg := logger.DefaultConfig()
	if fc.Log != nil {
		logCfg = *fc.Log
	}
	slog.SetDefault(logCfg.NewSlogger())

	supCfg, err := fc.SupervisorConfig()
	if err != nil {
		return err
	}
	sup, err := sidekick.New(supCfg)
	if err != nil {
		return err
	}
	defer func() { _ = sup.Close() }()

	if err := sidekick.RegisterMetricsDefault(); err != nil {
		slog.Warn("failed to register metrics", "error", err)
	}

	if fc.History != nil {
		if fc.History.Store != "" {
			st, err := sidekick.NewHistoryStore(fc.History.Store)
			if err != nil {
				return fmt.Errorf("open history store: %w", err)
			}
			if err := sup.SetStore(st); err != nil {
				return fmt.Errorf("prepare history store: %w", err)
			}
		}
		var sinks []sidekick.HistorySink
		for _, dsn := range fc.History.Sinks {
			sk, err := sidekick.NewHistorySink(dsn)
			if err != nil {
				return fmt.Errorf("open history sink: %w", err)
			}
			sinks = append(sinks, sk)
		}
		if len(sinks) > 0 {
			sup.SetHistorySinks(sinks...)
		}
	}

	listen := defaultListen
	basePath := "/api"
	if fc.Server != nil {
		listen = fc.Server.Listen
		if fc.Server.BasePath != "" {
			basePath = fc.Server.BasePath
		}
	}
	srv, err := sidekick.NewHTTPServer(listen, basePath, sup)
	if err != nil {
		return fmt.Errorf("start API server: %w", err)
	}
	slog.Info("daemon started", "listen", listen, "base_path", basePath)

	if fc.Autostart {
		if err := sup.Start(); err != nil {
			slog.Error("sidecar autostart failed", "error", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	slog.Info("shutting down", "signal", s.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		slog.Warn("API server shutdown", "error", err)
	}
	if flags.PidFile != "" {
		_ = removePidFile(flags.PidFile)
	}
	return nil
}
