// Command trajectory reconstructs the smoothed path of one device from a
// SQLite registry, following every alias recorded for it, and renders it
// as a PNG plot or an interactive HTML chart.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/banshee-data/scavenger/internal/config"
	"github.com/banshee-data/scavenger/internal/fsutil"
	"github.com/banshee-data/scavenger/internal/scavenger"
	"github.com/banshee-data/scavenger/internal/scavenger/l5localize"
	"github.com/banshee-data/scavenger/internal/scavenger/storage/sqlite"
	"github.com/banshee-data/scavenger/internal/scavenger/trajectory"
	"github.com/banshee-data/scavenger/internal/security"
	"github.com/banshee-data/scavenger/internal/version"
)

// Config holds the rendering settings.
type Config struct {
	DBPath     string
	RunID      string
	ClaimedID  string
	LayoutPath string
	ConfigPath string
	// Output is the file to write; its extension picks png, html or json.
	// Empty derives a name from the claimed id.
	Output string
	Format string
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.DBPath, "db", "scavenger.db", "SQLite registry path")
	flag.StringVar(&cfg.RunID, "run", "", "Run id (default: the latest run)")
	flag.StringVar(&cfg.ClaimedID, "claimed-id", "", "Claimed id of the device to track")
	flag.StringVar(&cfg.LayoutPath, "layout", "", "Sniffer layout the run was localized against")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Tuning config the run used (for meter_per_bin)")
	flag.StringVar(&cfg.Output, "out", "", "Output file")
	flag.StringVar(&cfg.Format, "format", "png", "Output format when -out is empty: png, html or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("trajectory"))
		return
	}
	if cfg.ClaimedID == "" || cfg.LayoutPath == "" {
		log.Fatal("-claimed-id and -layout are required")
	}

	path, err := render(context.Background(), cfg)
	if err != nil {
		log.Fatalf("trajectory: %v", err)
	}
	log.Printf("wrote %s", path)
}

// outputPath resolves the output file and its format.
func outputPath(cfg Config) (path, format string, err error) {
	path = cfg.Output
	if path == "" {
		path = "track-" + security.SanitizeFilename(cfg.ClaimedID) + "." + cfg.Format
	}
	format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch format {
	case "png", "html", "json":
	default:
		return "", "", fmt.Errorf("unsupported output format %q", format)
	}
	if err := security.ValidateOutputPath(path); err != nil {
		return "", "", err
	}
	return path, format, nil
}

func latestRun(ctx context.Context, db *sqlite.DB) (string, error) {
	runs, err := db.Runs(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("registry has no runs")
	}
	return runs[len(runs)-1].RunID, nil
}

func writeTrack(w io.Writer, track *trajectory.Track, format string, layout scavenger.Layout) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(track)
	case "html":
		return track.WriteHTML(w, layout)
	default:
		return track.WritePNG(w, layout)
	}
}

func render(ctx context.Context, cfg Config) (string, error) {
	path, format, err := outputPath(cfg)
	if err != nil {
		return "", err
	}

	tuning := config.EmptyTuningConfig()
	if cfg.ConfigPath != "" {
		if tuning, err = config.LoadTuningConfig(cfg.ConfigPath); err != nil {
			return "", err
		}
	}
	layout, err := config.LoadLayout(cfg.LayoutPath)
	if err != nil {
		return "", fmt.Errorf("layout: %w", err)
	}
	// Regions are stored in bin coordinates; the localizer maps them back.
	loc, err := l5localize.New(layout, tuning.LocalizerOptions(), nil)
	if err != nil {
		return "", err
	}

	osfs := fsutil.OSFileSystem{}
	if !osfs.Exists(cfg.DBPath) {
		return "", fmt.Errorf("no registry at %s", cfg.DBPath)
	}
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	runID := cfg.RunID
	if runID == "" {
		if runID, err = latestRun(ctx, db); err != nil {
			return "", err
		}
	}
	store, err := db.ResumeRun(ctx, runID)
	if err != nil {
		return "", err
	}

	track, err := trajectory.Build(ctx, store, loc.RegionCentre, cfg.ClaimedID)
	if err != nil {
		return "", err
	}

	f, err := osfs.Create(path)
	if err != nil {
		return "", err
	}
	if err := writeTrack(f, track, format, layout); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
