package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/shiftsuite/shiftboard/internal/config"
	"github.com/shiftsuite/shiftboard/pkg/server"
	"github.com/shiftsuite/shiftboard/pkg/session"
)

func serveCmd() *cobra.Command {
	var (
		addr       string
		configPath string
		dataDir    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
		Long: `Start the HTTP server accepting archive uploads and serving the
dashboard JSON API.

Configuration is read from shiftboard.yaml in the working directory (or
--config), with SHIFTBOARD_* environment variables layered on top. A
.env file next to the binary is loaded first when present.

Examples:
  shiftboard serve
  shiftboard serve --addr=:9090
  shiftboard serve --config=/etc/shiftboard.yaml --data-dir=/var/lib/shiftboard`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, configPath, dataDir)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to shiftboard.yaml")
	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory for uploads and sessions")

	return cmd
}

func runServe(addr, configPath, dataDir string) error {
	// .env is optional; ignore a missing file.
	godotenv.Load()

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		wd, wdErr := os.Getwd()
		if wdErr != nil {
			return wdErr
		}
		cfg, err = config.Load(wd)
	}
	if err != nil {
		return err
	}

	if addr != "" {
		cfg.Address = addr
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	store, err := cfg.BuildStore(ctx)
	if err != nil {
		return err
	}

	manager := session.NewManager(store, cfg.ManagerConfig(), logger)
	srv, err := server.New(cfg.ServerConfig(), manager, nil, logger)
	if err != nil {
		return err
	}

	printBanner()
	fmt.Println()
	info("listening on %s", cfg.Address)
	info("data dir %s", cfg.DataDir)
	if cfg.Path() != "" {
		info("config %s", cfg.Path())
	}
	fmt.Println()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		warn("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errorMsg("shutdown: %s", err)
		return err
	}
	success("server stopped")
	return nil
}
