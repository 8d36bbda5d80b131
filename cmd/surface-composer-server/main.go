package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	surfacecomposer "github.com/menta2k/surface-composer"
	"github.com/menta2k/surface-composer/internal/api"
	"github.com/menta2k/surface-composer/internal/backend"
	"github.com/menta2k/surface-composer/internal/config"
	"github.com/menta2k/surface-composer/internal/logger"
	"github.com/menta2k/surface-composer/pkg/compose"
)

func main() {
	var cfgPath, addr string
	flag.StringVar(&cfgPath, "config", "", "config file (yaml)")
	flag.StringVar(&addr, "addr", "", "listen address (overrides config and PORT)")
	flag.Parse()

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.LoadFromFile(cfgPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := backend.Build(ctx, cfg)
	if err != nil {
		log.Fatal("failed to create model clients", "error", err)
	}

	composer, err := surfacecomposer.New(clients.Describer, clients.Compositor,
		compose.WithTarget(cfg.Geometry.Target),
		compose.WithMarker(cfg.MarkerOptions()),
		compose.WithLogger(log.Zap()),
	)
	if err != nil {
		log.Fatal("failed to create composer", "error", err)
	}

	if cfg.Log.Mode == "prod" || cfg.Log.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = int64(cfg.Server.MaxUploadMB) << 20
	api.RegisterRoutes(r, api.NewHandler(composer, log, api.Options{
		Target:        cfg.Geometry.Target,
		MaxUploadMB:   cfg.Server.MaxUploadMB,
		MaxConcurrent: cfg.Server.MaxConcurrent,
	}))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", cfg.Server.Addr,
			"describe_backend", cfg.Model.DescribeBackend,
			"compose_backend", cfg.Model.ComposeBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
