package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/iron-birch/winnow/internal/audit"
	"github.com/iron-birch/winnow/internal/config"
	"github.com/iron-birch/winnow/internal/convo"
	"github.com/iron-birch/winnow/internal/engine"
	"github.com/iron-birch/winnow/internal/ingest"
	"github.com/iron-birch/winnow/internal/llm"
	"github.com/iron-birch/winnow/internal/logging"
	"github.com/iron-birch/winnow/internal/pipeline"
	"github.com/iron-birch/winnow/internal/report"
	"github.com/iron-birch/winnow/internal/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to winnow.yaml (defaults and WINNOW_* env apply without one)")
		filePath   = flag.String("file", "", "reduce one log file and exit instead of serving")
		query      = flag.String("query", "", "plain-language incident query, required with -file")
		format     = flag.String("format", "text", "report format for -file mode: text or json")
		outPath    = flag.String("out", "", "report destination for -file mode (default stdout)")
	)
	flag.Parse()

	cfg, v, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("%v", e)
		}
		log.Fatalf("invalid configuration (%d errors)", len(errs))
	}

	logging.Init(cfg.Logging.Format, logging.ParseLevel(cfg.Logging.Level))

	if *filePath != "" {
		if err := reduceOnce(cfg.Pipeline, *filePath, *query, *format, *outPath); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	comps, err := buildComponents(cfg.Pipeline)
	if err != nil {
		log.Fatalf("building pipeline: %v", err)
	}
	store, err := convo.NewStore(cfg.Server.MaxConversations)
	if err != nil {
		log.Fatalf("building conversation store: %v", err)
	}
	trail, err := audit.New(cfg.Audit)
	if err != nil {
		log.Fatalf("opening audit trail: %v", err)
	}

	client := llm.New(cfg.LLM)
	if !client.Enabled() {
		slog.Warn("no analysis model configured, responses carry the reduction only")
	}

	h := server.NewHandler(server.Deps{
		Pipeline: comps.pipe,
		Reader:   comps.reader,
		MaxBody:  cfg.Pipeline.MaxInputBytes,
		Store:    store,
		LLM:      client,
		Trail:    trail,
	})

	// Re-wire the pipeline when the config file changes. Invalid edits keep
	// the running configuration.
	config.Watch(v, func(next config.Config) {
		c, err := buildComponents(next.Pipeline)
		if err != nil {
			slog.Error("config reload rejected", "error", err)
			return
		}
		h.Swap(c.pipe, c.reader, next.Pipeline.MaxInputBytes)
		slog.Info("configuration reloaded")
	}, func(err error) {
		slog.Error("config reload rejected", "error", err)
	})

	srv := server.New(cfg.Server, h)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		trail.Close()
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown incomplete", "error", err)
	}
	if err := trail.Close(); err != nil {
		slog.Error("audit trail close failed", "error", err)
	}
}

type components struct {
	pipe   *pipeline.Pipeline
	reader *ingest.Reader
}

func buildComponents(cfg config.PipelineConfig) (components, error) {
	eng, err := engine.New(cfg)
	if err != nil {
		return components{}, err
	}
	reader, err := ingest.New(ingest.Config{
		MaxBytes:   cfg.MaxInputBytes,
		MaxRecords: cfg.MaxRecords,
	})
	if err != nil {
		return components{}, err
	}
	return components{pipe: pipeline.New(eng, cfg), reader: reader}, nil
}

// reduceOnce runs a single reduction against a file on disk and renders the
// report, for scripted triage without a server.
func reduceOnce(cfg config.PipelineConfig, path, query, format, out string) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("-file mode requires -query")
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		return err
	}
	comps, err := buildComponents(cfg)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	res, err := comps.reader.ReadFile(path)
	if err != nil {
		return err
	}
	rep, err := comps.pipe.Run(context.Background(), res.Records, query)
	if err != nil {
		return err
	}

	w, err := report.New(out, f)
	if err != nil {
		return err
	}
	if err := w.Write(rep, res.Malformed); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
