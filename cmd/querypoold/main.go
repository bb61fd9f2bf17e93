// Command querypoold serves the configured pools over HTTP.
//
//	querypoold -config querypool.yaml
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/querypool/internal/config"
	"github.com/koustreak/querypool/internal/logger"
	"github.com/koustreak/querypool/internal/registry"
	"github.com/koustreak/querypool/internal/server"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("QUERYPOOL_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Global().ErrorWith("failed to load config", err, nil)
		os.Exit(1)
	}

	log := logger.New(&cfg.Logger)
	logger.SetGlobal(log)
	log.InfoWith("starting querypoold", map[string]interface{}{
		"version": Version,
		"addr":    cfg.Server.Addr,
		"pools":   len(cfg.Pools),
	})

	if err := run(cfg, log); err != nil {
		log.ErrorWith("querypoold stopped with an error", err, nil)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := registry.New(cfg, log)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg.Server, reg, log)
	if err != nil {
		_ = reg.Close(context.Background())
		return err
	}

	serveErr := srv.ListenAndServe(ctx)

	closeCtx := context.Background()
	if cfg.Server.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		closeCtx, cancel = context.WithTimeout(closeCtx, cfg.Server.ShutdownTimeout)
		defer cancel()
	}
	if err := reg.Close(closeCtx); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}
