// Command navsim simulates vehicles, runs the heading filter over their
// measurements and reports how well the sensor heading offset is tracked.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/heading/internal/config"
	"github.com/banshee-data/heading/internal/db"
	"github.com/banshee-data/heading/internal/filter/direction"
	"github.com/banshee-data/heading/internal/filter/estimation"
	"github.com/banshee-data/heading/internal/monitoring"
	"github.com/banshee-data/heading/internal/publish"
	"github.com/banshee-data/heading/internal/simulator"
	"github.com/banshee-data/heading/internal/timeutil"
	"github.com/banshee-data/heading/internal/units"
	"github.com/banshee-data/heading/internal/version"
)

var (
	configPath  = flag.String("config", "", "Tuning config JSON file (built-in defaults when empty)")
	variant     = flag.String("variant", "", "Filter variant override: 1_0, 1_1 or 2_1")
	duration    = flag.Float64("duration", 120, "Simulated duration of each session in seconds")
	seed        = flag.Uint64("seed", 1, "Random seed of the first session; session i uses seed+i")
	sessions    = flag.Int("sessions", 1, "Number of independent sessions run concurrently")
	dbPath      = flag.String("db", "", "SQLite database to record runs in")
	plotDir     = flag.String("plot", "", "Directory for PNG track and heading plots")
	chartDir    = flag.String("chart", "", "Directory for HTML speed and heading charts")
	speedUnits  = flag.String("units", units.MPS, "Speed units for charts: "+units.GetValidUnitsString())
	natsURL     = flag.String("nats", "", "NATS server URL to publish estimates to")
	subject     = flag.String("subject", publish.DefaultSubject, "NATS base subject; the session number is appended")
	rate        = flag.Float64("rate", 0, "Replay speed relative to real time (0 runs as fast as possible)")
	listen      = flag.String("listen", ":8080", "HTTP listen address for serve")
	verbose     = flag.Bool("v", false, "Log per-cycle filter diagnostics")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: navsim [flags]\n       navsim -db <file> migrate <command>\n       navsim -db <file> [-listen addr] serve\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("navsim"))
		return
	}

	if args := flag.Args(); len(args) > 0 {
		if args[0] != "migrate" && args[0] != "serve" {
			flag.Usage()
			os.Exit(2)
		}
		if *dbPath == "" {
			log.Fatalf("-db is required for %s", args[0])
		}
		if args[0] == "serve" {
			if err := serve(*listen, *dbPath, *speedUnits); err != nil {
				log.Fatalf("serve: %v", err)
			}
			return
		}
		if err := db.RunMigrateCommand(args[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	if err := validateFlags(); err != nil {
		log.Fatal(err)
	}
	if !*verbose {
		monitoring.SetLogger(nil)
	}

	tuning, err := loadTuning(*configPath, *variant)
	if err != nil {
		log.Fatalf("failed to load tuning: %v", err)
	}
	filterCfg, err := direction.ConfigFromTuning(tuning)
	if err != nil {
		log.Fatalf("invalid filter configuration: %v", err)
	}
	estCfg := estimation.ConfigFromTuning(tuning)

	var store *db.DB
	if *dbPath != "" {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
	}

	var pub *publish.Publisher
	if *natsURL != "" {
		pub = publish.NewPublisher(*subject)
		if err := pub.Connect(*natsURL); err != nil {
			log.Fatalf("%v", err)
		}
		defer pub.Close()
	}

	for _, dir := range []string{*plotDir, *chartDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	results := make([]*result, *sessions)
	errs := make([]error, *sessions)
	var wg sync.WaitGroup
	for i := 0; i < *sessions; i++ {
		simCfg := simulator.DefaultConfig()
		simCfg.Seed = *seed + uint64(i)
		simCfg.Duration = *duration

		s := &session{
			id:        i + 1,
			sim:       simCfg,
			filter:    filterCfg,
			est:       estCfg,
			clock:     timeutil.RealClock{},
			rate:      *rate,
			store:     store,
			publisher: pub,
			plotDir:   *plotDir,
			chartDir:  *chartDir,
			units:     *speedUnits,
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.run(ctx)
		}(i)
	}
	wg.Wait()

	failed := false
	for i, res := range results {
		if errs[i] != nil {
			log.Printf("session %d failed: %v", i+1, errs[i])
			failed = true
			continue
		}
		fmt.Println(res.summary())
	}
	log.Printf("%d session(s) finished in %v", *sessions, time.Since(start).Round(time.Millisecond))
	if failed {
		os.Exit(1)
	}
}

func validateFlags() error {
	switch {
	case *sessions < 1:
		return fmt.Errorf("-sessions must be at least 1, got %d", *sessions)
	case !(*duration > 0):
		return fmt.Errorf("-duration must be positive, got %v", *duration)
	case *rate < 0:
		return fmt.Errorf("-rate must not be negative, got %v", *rate)
	case !units.IsValid(*speedUnits):
		return fmt.Errorf("invalid -units %q, expected one of: %s", *speedUnits, units.GetValidUnitsString())
	}
	return nil
}

// loadTuning reads the tuning file at path, or the built-in defaults when
// path is empty, and applies a variant override.
func loadTuning(path, variant string) (*config.TuningConfig, error) {
	tuning := config.EmptyTuningConfig()
	if path != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(path); err != nil {
			return nil, err
		}
	}
	if variant != "" {
		tuning.FilterVariant = &variant
	}
	if err := tuning.Validate(); err != nil {
		return nil, err
	}
	return tuning, nil
}
