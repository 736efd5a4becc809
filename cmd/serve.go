package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lspbridge/internal/capability"
	"lspbridge/internal/config"
	"lspbridge/internal/logging"
	"lspbridge/internal/mcpadapter"
	"lspbridge/internal/registry"
	"lspbridge/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge and serve MCP requests over stdio",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("serve: determine working directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("serve: load config: %w", err)
	}

	log, err := logging.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("serve: init logging: %w", err)
	}
	log = log.For("Component", "serve")
	log.Information("starting lsp-bridge")

	sessions, err := cfg.Sessions()
	if err != nil {
		return fmt.Errorf("serve: build session configs: %w", err)
	}

	reg := registry.New(sessions, log, cfg.StartupTimeout())

	w := watcher.New(cfg.NotifyFilePath(cwd), reg, log)

	facade := capability.New(reg, capability.Timeouts{
		Hover:        cfg.HoverTimeout(),
		Definition:   cfg.DefinitionTimeout(),
		CompileGrace: cfg.CompileGrace(),
	})

	adapter := mcpadapter.New(facade, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcherDone := make(chan error, 1)
	go func() { watcherDone <- w.Run(ctx) }()

	serveDone := make(chan error, 1)
	go func() { serveDone <- adapter.ServeStdio(ctx) }()

	select {
	case <-ctx.Done():
		log.Information("shutdown signal received")
	case err := <-serveDone:
		if err != nil {
			log.Error("mcp server exited: {Error}", err.Error())
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := reg.ShutdownAll(shutdownCtx, 5*time.Second); err != nil {
		log.Warning("shutdownAll returned errors: {Error}", err.Error())
	}
	<-watcherDone
	log.Information("lsp-bridge stopped")
	return nil
}
