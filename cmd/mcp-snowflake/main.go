// Package main provides the entry point for the mcp-snowflake server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mcp-snowflake/server/internal/server"
	"github.com/mcp-snowflake/server/pkg/config"
	"github.com/mcp-snowflake/server/pkg/httpapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	showVersion bool
}

func parseFlags() serverOptions {
	opts := serverOptions{}
	flag.StringVar(&opts.configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("mcp-snowflake version %s\n", mcpserver.Version)
		return nil
	}

	ctx := setupSignalHandler()
	logger := slog.Default()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	srv, err := mcpserver.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer func() {
		if err := srv.Close(context.Background()); err != nil {
			logger.Error("closing server", "error", err)
		}
	}()

	var adminAPI *httpapi.Server
	if cfg.AdminAPI.Enabled {
		adminAPI, err = httpapi.New(cfg.AdminAPI, srv.Registry(), srv.AuditLogger(), srv.Health())
		if err != nil {
			return fmt.Errorf("creating admin API: %w", err)
		}
		go func() {
			if err := adminAPI.ListenAndServe(); err != nil {
				logger.Error("admin API stopped", "error", err)
			}
		}()
		defer func() {
			if err := adminAPI.Close(); err != nil {
				logger.Error("closing admin API", "error", err)
			}
		}()
	}

	srv.Health().SetReady()
	defer srv.Health().SetDraining()

	logger.Info("starting mcp-snowflake", "transport", cfg.Server.Transport)
	return srv.Run(ctx)
}
