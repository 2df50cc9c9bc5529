// Command probe-extract turns an offline radiotap pcap recorded by one
// sniffer into JSON detection batches for the scavenger pipeline.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/scavenger/internal/fsutil"
	"github.com/banshee-data/scavenger/internal/monitoring"
	"github.com/banshee-data/scavenger/internal/scavenger/l1capture"
	"github.com/banshee-data/scavenger/internal/security"
	"github.com/banshee-data/scavenger/internal/version"
)

// Config holds the extraction settings.
type Config struct {
	PCAPFile  string
	SnifferID string
	OutputDir string
	BatchSize int
	Verbose   bool
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.PCAPFile, "pcap", "", "Radiotap pcap file to read")
	flag.StringVar(&cfg.SnifferID, "sniffer", "", "Sniffer id stamped on every record (default: pcap file name)")
	flag.StringVar(&cfg.OutputDir, "out", "batches", "Directory for the JSON batch files")
	flag.IntVar(&cfg.BatchSize, "batch", 500, "Records per batch file; 0 writes a single file")
	flag.BoolVar(&cfg.Verbose, "v", false, "Enable diagnostic logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("probe-extract"))
		return
	}
	if cfg.PCAPFile == "" {
		log.Fatal("-pcap is required")
	}

	stats, names, err := extract(cfg)
	if err != nil {
		log.Fatalf("probe-extract: %v", err)
	}
	log.Printf("%d packets, %d probe requests (%d without signal, %d malformed) -> %d files in %s",
		stats.Packets, stats.ProbeRequests, stats.NoSignal, stats.Malformed, len(names), cfg.OutputDir)
}

// snifferID defaults to the pcap base name without extension.
func snifferID(cfg Config) string {
	if cfg.SnifferID != "" {
		return cfg.SnifferID
	}
	base := filepath.Base(cfg.PCAPFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func extract(cfg Config) (l1capture.ExtractStats, []string, error) {
	ops, diag, trace := monitoring.VerbosityFromFlags(cfg.Verbose, false).Streams(os.Stderr)
	l1capture.SetLogWriters(ops, diag, trace)

	if err := security.ValidateOutputPath(cfg.OutputDir); err != nil {
		return l1capture.ExtractStats{}, nil, err
	}

	id := snifferID(cfg)
	records, stats, err := l1capture.ExtractFile(fsutil.OSFileSystem{}, cfg.PCAPFile, id)
	if err != nil {
		return stats, nil, err
	}

	sink := l1capture.NewSink(cfg.OutputDir, security.SanitizeFilename(id), cfg.BatchSize)
	names, err := sink.Write(records)
	return stats, names, err
}
