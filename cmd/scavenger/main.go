// Command scavenger replays captured probe requests through the
// de-anonymization pipeline and reports how many distinct devices stand
// behind the observed identifiers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/scavenger/internal/version"
)

var (
	configPath  = flag.String("config", "", "Tuning config JSON (built-in defaults when empty)")
	layoutPath  = flag.String("layout", "", "Sniffer layout file (.json, .yaml or .yml)")
	dataGlob    = flag.String("data", "", "Glob of JSON detection batch files, processed in name order")
	dbPath      = flag.String("db", "scavenger.db", "SQLite registry path")
	backend     = flag.String("registry", "", "Registry backend: sqlite, redis or memory (overrides config)")
	redisAddr   = flag.String("redis-addr", "", "Redis address (overrides config)")
	resume      = flag.String("resume", "", "Run id to continue instead of starting a new run")
	label       = flag.String("label", "", "Label stored with a new run")
	seed        = flag.Int64("seed", -1, "Localizer seed; negative uses the config or the clock")
	drain       = flag.Bool("drain", false, "Process the records still buffered after the last batch")
	listen      = flag.String("listen", "", "Serve metrics, API and admin routes on this address")
	backupDir   = flag.String("backup-dir", os.TempDir(), "Scratch directory for SQLite backups")
	verbose     = flag.Bool("v", false, "Enable diagnostic logging")
	veryVerbose = flag.Bool("vv", false, "Enable per-record trace logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("scavenger"))
		return
	}
	if *layoutPath == "" {
		log.Fatal("-layout is required")
	}
	if *dataGlob == "" {
		log.Fatal("-data is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		ConfigPath: *configPath,
		LayoutPath: *layoutPath,
		DataGlob:   *dataGlob,
		DBPath:     *dbPath,
		Backend:    *backend,
		RedisAddr:  *redisAddr,
		Resume:     *resume,
		Label:      *label,
		Seed:       *seed,
		Drain:      *drain,
		Listen:     *listen,
		BackupDir:  *backupDir,
		Verbose:    *verbose,
		Trace:      *veryVerbose,
	}
	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatalf("scavenger: %v", err)
	}
}
