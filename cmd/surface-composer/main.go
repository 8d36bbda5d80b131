package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	surfacecomposer "github.com/menta2k/surface-composer"
	"github.com/menta2k/surface-composer/internal/backend"
	"github.com/menta2k/surface-composer/internal/config"
	"github.com/menta2k/surface-composer/internal/logger"
	"github.com/menta2k/surface-composer/internal/utils"
	"github.com/menta2k/surface-composer/pkg/compose"
	"github.com/menta2k/surface-composer/pkg/types"
)

func main() {
	var scene, product, desc, modeName, cfgPath string
	var x, y float64
	var describeBackend, composeBackend, url, model string
	var outDir, ext, dbgext string
	var quality int
	var debug bool
	var logMode, logLevel string

	flag.StringVar(&scene, "scene", "", "scene image path or URL (jpg/png/webp)")
	flag.StringVar(&product, "product", "", "product image path or URL (jpg/png/webp)")
	flag.StringVar(&desc, "desc", "", "short product description, e.g. \"a hexagonal marble tile\"")
	flag.Float64Var(&x, "x", 50, "drop point x as percent of scene width (0-100)")
	flag.Float64Var(&y, "y", 50, "drop point y as percent of scene height (0-100)")
	flag.StringVar(&modeName, "mode", "tile", "placement mode: tile|single")
	flag.StringVar(&cfgPath, "config", "", "config file (yaml); defaults to "+config.GetConfigPath()+" when present")

	flag.StringVar(&describeBackend, "describe-backend", "", "surface description backend: gemini|openai|ollama")
	flag.StringVar(&composeBackend, "compose-backend", "", "composition backend: gemini|openai")
	flag.StringVar(&url, "url", "", "server URL for openai-compatible and ollama backends")
	flag.StringVar(&model, "model", "", "compose model name (backend default if empty)")

	flag.StringVar(&outDir, "out", "", "output directory")
	flag.StringVar(&ext, "ext", "", "output format for the final image: png|jpg|webp")
	flag.StringVar(&dbgext, "dbgext", "jpg", "debug image format: png|jpg|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&debug, "debug", false, "also write the marked scene sent to the vision model")

	flag.StringVar(&logMode, "log", "", "log mode: dev|prod")
	flag.StringVar(&logLevel, "loglevel", "", "log level: debug|info|warn|error")

	flag.Parse()
	if scene == "" || product == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -scene room.jpg|URL -product tile.png|URL [-desc text] [-x 50 -y 80] [-mode tile|single] [-out dir] [-ext png|jpg|webp] [-debug]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// flags override the file
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if describeBackend != "" {
		cfg.Model.DescribeBackend = describeBackend
	}
	if composeBackend != "" {
		cfg.Model.ComposeBackend = composeBackend
	}
	if url != "" {
		cfg.Model.BaseURL = url
	}
	if model != "" {
		cfg.Model.ComposeModel = model
	}
	if outDir != "" {
		cfg.Output.OutputDir = outDir
	}
	if ext != "" {
		cfg.Output.Format = ext
	}
	if quality != 0 {
		cfg.Output.Quality = quality
	}
	if set["debug"] {
		cfg.Output.Debug = debug
	}
	if logMode != "" {
		cfg.Log.Mode = logMode
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	mode, err := types.ParsePlacementMode(modeName)
	if err != nil {
		log.Fatal("invalid mode", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Model.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Model.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	clients, err := backend.Build(ctx, cfg)
	if err != nil {
		log.Fatal("failed to create model clients", "error", err)
	}

	composer, err := surfacecomposer.New(clients.Describer, clients.Compositor,
		compose.WithTarget(cfg.Geometry.Target),
		compose.WithMarker(cfg.MarkerOptions()),
		compose.WithLogger(log.Zap()),
		compose.WithObserver(func(s compose.State) {
			log.Debug("pipeline", "state", s.String())
		}),
	)
	if err != nil {
		log.Fatal("failed to create composer", "error", err)
	}

	log.Info("composing",
		"scene", scene,
		"product", product,
		"x", x, "y", y,
		"mode", mode.String(),
		"describe_backend", cfg.Model.DescribeBackend,
		"compose_backend", cfg.Model.ComposeBackend)

	result, err := composer.ComposeFiles(ctx, product, scene, desc, types.RelativePosition{XPercent: x, YPercent: y}, mode)
	if err != nil {
		log.Fatal("composition failed",
			"error", err,
			"input_error", types.IsInputError(err),
			"model_error", types.IsModelError(err))
	}

	saved, err := surfacecomposer.SaveResult(result, cfg.Output.OutputDir, surfacecomposer.SaveOptions{
		Format:      cfg.Output.Format,
		Quality:     cfg.Output.Quality,
		Debug:       cfg.Output.Debug,
		DebugFormat: dbgext,
	})
	if err != nil {
		log.Fatal("failed to save result", "error", err)
	}

	if result.DescriptionFallback {
		log.Warn("surface description fell back to the generic phrase")
	}
	log.Info("surface", "description", result.SurfaceDescription)
	for _, path := range []string{saved.Final, saved.Debug, saved.Prompt} {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err == nil {
			log.Info("wrote", "path", path, "size", utils.FormatFileSize(info.Size()))
		}
	}

	// Save result metadata next to the images
	meta := struct {
		Prompt              string  `json:"prompt"`
		SurfaceDescription  string  `json:"surface_description"`
		DescriptionFallback bool    `json:"description_fallback"`
		OriginalWidth       int     `json:"original_width"`
		OriginalHeight      int     `json:"original_height"`
		XPercent            float64 `json:"x_percent"`
		YPercent            float64 `json:"y_percent"`
		Mode                string  `json:"mode"`
	}{
		result.PromptUsed, result.SurfaceDescription, result.DescriptionFallback,
		result.OriginalWidth, result.OriginalHeight, x, y, mode.String(),
	}
	js, _ := json.MarshalIndent(meta, "", "  ")
	_ = os.WriteFile(filepath.Join(cfg.Output.OutputDir, "result.json"), js, 0o644)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if utils.FileExists(config.GetConfigPath()) {
			path = config.GetConfigPath()
		} else {
			return config.Default(), nil
		}
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
