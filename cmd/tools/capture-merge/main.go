// Command capture-merge aligns the batch files of sniffers whose clocks
// were never synchronised and writes them as one merged capture.
//
// The input directory holds one subdirectory per sniffer group, each with
// JSON batch files. Every group is shifted so its first record lines up
// with the earliest first record of all groups.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/scavenger/internal/monitoring"
	"github.com/banshee-data/scavenger/internal/scavenger"
	"github.com/banshee-data/scavenger/internal/scavenger/l1capture"
	"github.com/banshee-data/scavenger/internal/security"
	"github.com/banshee-data/scavenger/internal/version"
)

// Config holds the merge settings.
type Config struct {
	InputDir  string
	OutputDir string
	Prefix    string
	BatchSize int
	Verbose   bool
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.InputDir, "in", "", "Directory with one subdirectory of batch files per sniffer")
	flag.StringVar(&cfg.OutputDir, "out", "merged", "Directory for the merged batch files")
	flag.StringVar(&cfg.Prefix, "prefix", "merged", "File name prefix of the merged batches")
	flag.IntVar(&cfg.BatchSize, "batch", 0, "Records per merged file; 0 writes a single file")
	flag.BoolVar(&cfg.Verbose, "v", false, "Enable diagnostic logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("capture-merge"))
		return
	}
	if cfg.InputDir == "" {
		log.Fatal("-in is required")
	}

	names, n, err := merge(context.Background(), cfg)
	if err != nil {
		log.Fatalf("capture-merge: %v", err)
	}
	log.Printf("merged %d records into %d files in %s", n, len(names), cfg.OutputDir)
}

// groups lists the sniffer subdirectories of dir in name order.
func groups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("no sniffer directories under %s", dir)
	}
	return out, nil
}

func readGroup(ctx context.Context, dir string) ([]scavenger.DetectionRecord, error) {
	var records []scavenger.DetectionRecord
	err := l1capture.NewSource(filepath.Join(dir, "*.json")).Each(ctx, func(b l1capture.Batch) error {
		records = append(records, b.Records...)
		return nil
	})
	return records, err
}

func merge(ctx context.Context, cfg Config) ([]string, int, error) {
	ops, diag, trace := monitoring.VerbosityFromFlags(cfg.Verbose, false).Streams(os.Stderr)
	l1capture.SetLogWriters(ops, diag, trace)

	if err := security.ValidateOutputPath(cfg.OutputDir); err != nil {
		return nil, 0, err
	}
	names, err := groups(cfg.InputDir)
	if err != nil {
		return nil, 0, err
	}

	var mu sync.Mutex
	perGroup := make(map[string][]scavenger.DetectionRecord, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			records, err := readGroup(gctx, filepath.Join(cfg.InputDir, name))
			if err != nil {
				return fmt.Errorf("sniffer group %s: %w", name, err)
			}
			mu.Lock()
			perGroup[name] = records
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	merged := l1capture.AlignSniffers(perGroup)
	sink := l1capture.NewSink(cfg.OutputDir, security.SanitizeFilename(cfg.Prefix), cfg.BatchSize)
	files, err := sink.Write(merged)
	return files, len(merged), err
}
