// Command texwatch keeps an HTML preview of a LaTeX document up to date.
//
//	texwatch --file hw.tex --out preview.html
//	texwatch --server http://localhost:8090 --id <fileId> --out preview.html
//
// SIGHUP forces a re-render.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/dgallion1/texdesk/internal/config"
	"github.com/dgallion1/texdesk/internal/preview"
	"github.com/dgallion1/texdesk/internal/render"
)

type options struct {
	file     string
	server   string
	id       string
	apiKey   string
	out      string
	interval time.Duration
	once     bool
	verbose  bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("texwatch", flag.ContinueOnError)
	fs.StringVarP(&o.file, "file", "f", "", "local .tex file to watch")
	fs.StringVar(&o.server, "server", "", "texdesk server base URL")
	fs.StringVar(&o.id, "id", "", "document ID on the server")
	fs.StringVar(&o.apiKey, "api-key", os.Getenv("TEXDESK_API_KEY"), "bearer token for the server")
	fs.StringVarP(&o.out, "out", "o", "preview.html", "output HTML file")
	fs.DurationVarP(&o.interval, "interval", "i", preview.DefaultInterval, "poll interval")
	fs.BoolVar(&o.once, "once", false, "render once and exit")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log every poll")
	if err := fs.Parse(args[1:]); err != nil {
		return o, err
	}
	switch {
	case o.file == "" && o.server == "":
		return o, errors.New("one of --file or --server is required")
	case o.file != "" && o.server != "":
		return o, errors.New("--file and --server are mutually exclusive")
	case o.server != "" && o.id == "":
		return o, errors.New("--id is required with --server")
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	if err := run(o, log); err != nil {
		log.Error("texwatch failed", "error", err)
		os.Exit(1)
	}
}

func run(o options, log *slog.Logger) error {
	var (
		fetcher preview.Fetcher
		title   string
	)
	if o.file != "" {
		fetcher = preview.FileFetcher{Path: o.file}
		title = strings.TrimSuffix(filepath.Base(o.file), filepath.Ext(o.file))
	} else {
		remote := preview.NewRemoteFetcher(o.server, o.apiKey, o.id)
		defer remote.Close()
		fetcher = remote
		title = o.id
	}

	renderer := render.New(render.Options{Macros: config.DefaultMathMacros(), Logger: log})
	loop := preview.New(fetcher, renderer, preview.Options{
		Interval: o.interval,
		Logger:   log,
		OnChange: pageWriter(o.out, title, log),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if o.once {
		loop.Poll(ctx)
		if err := loop.State().Err; err != nil {
			return err
		}
		return nil
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	loop.Start(ctx)
	defer loop.Stop()
	log.Info("watching", "out", o.out, "interval", o.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if !loop.Refresh(ctx) {
				log.Debug("refresh skipped, poll in flight")
			}
		}
	}
}

// pageWriter returns an OnChange callback that writes a standalone page
// after each new render.
func pageWriter(out, title string, log *slog.Logger) func(preview.State) {
	renders := 0
	return func(s preview.State) {
		if s.Err != nil {
			log.Warn("fetch failed, keeping last preview", "error", s.Err)
		}
		if s.Renders == renders {
			return
		}
		renders = s.Renders
		if err := writeFileAtomic(out, []byte(render.Page(title, s.HTML))); err != nil {
			log.Error("write preview", "out", out, "error", err)
			return
		}
		log.Info("preview updated", "out", out, "degraded", s.Degraded, "renders", s.Renders)
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".texwatch-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
