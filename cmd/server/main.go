package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/texdesk/internal/api"
	"github.com/dgallion1/texdesk/internal/assistant"
	"github.com/dgallion1/texdesk/internal/compile"
	"github.com/dgallion1/texdesk/internal/config"
	"github.com/dgallion1/texdesk/internal/docstore"
	"github.com/dgallion1/texdesk/internal/render"
	"github.com/dgallion1/texdesk/internal/stats"
)

func main() {
	configPath := flag.String("config", "", "optional YAML file overlaid on the environment configuration")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// Error ignored: Set only fails on an invalid GOMAXPROCS, and the runtime default applies.
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Info(fmt.Sprintf(format, args...))
	}))

	cfg, err := config.LoadFile(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := docstore.New(docstore.Options{
		BaseDir:           cfg.StorageDir,
		MaxBytes:          cfg.MaxUploadBytes,
		AllowedExtensions: cfg.AllowedExtensions,
	})
	if err != nil {
		return err
	}

	compileStats := stats.NewWindow(time.Hour)
	renderStats := stats.NewWindow(time.Hour)
	assistantStats := stats.NewWindow(time.Hour)

	renderer := render.New(render.Options{
		Macros:  cfg.MathMacros,
		Timeout: cfg.RenderTimeout,
		Logger:  log.With("component", "render"),
		Stats:   renderStats,
	})
	jobs := compile.NewJobStore(cfg.JobTTL)
	compiler := compile.New(store, compile.Options{
		Binary:        cfg.CompilerBinary,
		Passes:        cfg.CompilerPasses,
		PassTimeout:   cfg.CompilerPassTimeout,
		LogTail:       cfg.CompilerLogTail,
		MaxConcurrent: int64(cfg.CompilerMaxConcurrent),
		ScratchDir:    cfg.ScratchDir,
		Jobs:          jobs,
		Stats:         compileStats,
		Logger:        log.With("component", "compile"),
	})
	if !compiler.Available() {
		log.Warn("compiler not found; PDF export will return 501", "binary", cfg.CompilerBinary)
	}

	var claude *assistant.Client
	if cfg.AssistantEnabled {
		claude = assistant.New(assistant.Options{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
			Stats:  assistantStats,
			Logger: log.With("component", "assistant"),
		})
		defer claude.Close()
	}

	srv := api.NewServer(api.Deps{
		Store:          store,
		Renderer:       renderer,
		Compiler:       compiler,
		Assistant:      claude,
		CompileStats:   compileStats,
		RenderStats:    renderStats,
		AssistantStats: assistantStats,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting texdesk", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		// Drop expired compile job records.
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := jobs.Cleanup(); n > 0 {
					log.Debug("expired compile jobs removed", "count", n)
				}
			}
		}
	})
	return g.Wait()
}
