package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/scavenger/internal/api"
	"github.com/banshee-data/scavenger/internal/config"
	"github.com/banshee-data/scavenger/internal/monitoring"
	"github.com/banshee-data/scavenger/internal/scavenger/l1capture"
	"github.com/banshee-data/scavenger/internal/scavenger/l5localize"
	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
	"github.com/banshee-data/scavenger/internal/scavenger/pipeline"
)

type options struct {
	ConfigPath string
	LayoutPath string
	DataGlob   string
	DBPath     string
	Backend    string
	RedisAddr  string
	Resume     string
	Label      string
	Seed       int64
	Drain      bool
	Listen     string
	BackupDir  string
	Verbose    bool
	Trace      bool
}

func setupLogging(opts options, w io.Writer) {
	ops, diag, trace := monitoring.VerbosityFromFlags(opts.Verbose, opts.Trace).Streams(w)
	l1capture.SetLogWriters(ops, diag, trace)
	l5localize.SetLogWriters(ops, diag, trace)
	l6identity.SetLogWriters(ops, diag, trace)
	pipeline.SetLogWriters(ops, diag, trace)
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func newRNG(opts options, cfg *config.TuningConfig) *rand.Rand {
	if opts.Seed >= 0 {
		s := uint64(opts.Seed)
		return rand.New(rand.NewPCG(s, s+1))
	}
	if s, ok := cfg.GetSeed(); ok {
		return rand.New(rand.NewPCG(s, s+1))
	}
	return nil
}

// run executes one pipeline run and writes the report to out. With a
// listen address the HTTP routes stay up after the run until ctx ends.
func run(ctx context.Context, opts options, out io.Writer) error {
	setupLogging(opts, os.Stderr)

	cfg, err := loadTuning(opts.ConfigPath)
	if err != nil {
		return err
	}
	layout, err := config.LoadLayout(opts.LayoutPath)
	if err != nil {
		return fmt.Errorf("layout: %w", err)
	}

	loc, err := l5localize.New(layout, cfg.LocalizerOptions(), newRNG(opts, cfg))
	if err != nil {
		return err
	}

	name := cfg.GetRegistryBackend()
	if opts.Backend != "" {
		name = opts.Backend
	}
	backend, err := openBackend(ctx, name, opts, cfg)
	if err != nil {
		return fmt.Errorf("open %s registry: %w", name, err)
	}
	defer func() {
		if err := backend.close(); err != nil {
			log.Printf("close registry: %v", err)
		}
	}()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := pipeline.NewMetrics(promReg)
	if err != nil {
		return err
	}

	p, err := pipeline.New(ctx, cfg.PipelineConfig(), loc, backend.reg, metrics)
	if err != nil {
		return err
	}

	var server *http.Server
	if opts.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		api.NewServer(backend.reg, loc.RegionCentre, backend.reg.RunID()).Attach(mux)
		if backend.admin != nil {
			if err := backend.admin(mux); err != nil {
				return fmt.Errorf("admin routes: %w", err)
			}
		}
		server = &http.Server{Addr: opts.Listen, Handler: api.LoggingMiddleware(mux)}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("HTTP server: %v", err)
			}
		}()
		log.Printf("serving on %s", opts.Listen)
	}

	log.Printf("run %s: processing %s", backend.reg.RunID(), opts.DataGlob)
	stats, err := p.Run(ctx, l1capture.NewSource(opts.DataGlob), opts.Drain)
	if err != nil {
		return fmt.Errorf("run %s: %w", backend.reg.RunID(), err)
	}

	counts, err := l6identity.ReadCounts(ctx, backend.reg)
	if err != nil {
		return fmt.Errorf("read counts: %w", err)
	}
	printReport(out, backend.reg.RunID(), cfg.GetMinDetectionRate(), counts, stats)

	if server != nil {
		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}
	return nil
}
