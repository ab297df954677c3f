package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"golang.org/x/oauth2"

	"trailmetrics/internal/auth"
	"trailmetrics/internal/config"
	"trailmetrics/internal/enrich"
	"trailmetrics/internal/export"
	"trailmetrics/internal/service"
	"trailmetrics/internal/source"
	"trailmetrics/internal/store"
	"trailmetrics/internal/strava"
	"trailmetrics/internal/tui"
)

const usage = `Usage: trailmetrics [-config file] [-v] <command> [flags]

Commands:
  enrich    enrich a dataset CSV or a directory of GPX files
  dataset   convert a directory of GPX files to the dataset CSV
  strava    fetch new Strava activities, enrich and store them
  summary   show a stored run

Run 'trailmetrics <command> -h' for the flags of a command.
`

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	global := flag.NewFlagSet("trailmetrics", flag.ExitOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := global.String("config", "", "config file (default ~/.trailmetrics/config.json)")
	verbose := global.Bool("v", false, "debug logging")
	global.Parse(os.Args[1:])

	if global.NArg() == 0 {
		global.Usage()
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cmd, args := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "enrich":
		return runEnrich(ctx, cfg, args)
	case "dataset":
		return runDataset(ctx, cfg, args)
	case "strava":
		return runStrava(ctx, cfg, args)
	case "summary":
		return runSummary(cfg, args)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// loadConfig reads the config file. Without one the defaults are used.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if errors.Is(err, config.ErrNoConfig) && path == "" {
		def := config.DefaultConfig()
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger writes to stderr, or to a file in the config directory while
// the terminal UI owns the screen
func newLogger(cfg *config.Config, useTUI bool) (*slog.Logger, func(), error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if useTUI {
		dir, err := config.GetConfigDir()
		if err != nil {
			return nil, nil, err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("creating config directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(dir, "trailmetrics.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = f
		closeFn = func() { f.Close() }
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeFn, nil
}

// execute runs fn with a progress view when useTUI is set
func execute(ctx context.Context, title string, useTUI bool, fn tui.RunFunc) (*service.RunResult, error) {
	if useTUI {
		return tui.RunWithProgress(ctx, title, fn, tea.WithOutput(os.Stderr))
	}
	return fn(ctx, nil)
}

func runEnrich(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("enrich", flag.ExitOnError)
	in := fs.String("in", "", "dataset CSV file or directory of GPX files (required)")
	out := fs.String("out", "enriched.csv", "enriched CSV output, - for stdout")
	summaryOut := fs.String("summary", "", "per-trace summary CSV output")
	save := fs.Bool("db", false, "save the run to the database")
	useTUI := fs.Bool("tui", false, "show a progress view")
	precision := fs.Int("precision", cfg.Output.Precision, "decimals for derived values, -1 for exact")
	workers := fs.Int("workers", cfg.Engine.Workers, "traces enriched in parallel, 0 for one per CPU")
	fs.Parse(args)

	if *in == "" {
		fs.Usage()
		return errors.New("enrich: -in is required")
	}
	cfg.Engine.Workers = *workers

	src, err := openSource(*in)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg, *useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	engine, err := enrich.NewEngine(cfg.Engine, logger)
	if err != nil {
		return err
	}

	var db *store.DB
	if *save {
		db, err = store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
	}

	svc := service.NewEnrichService(engine, db, logger)
	res, err := execute(ctx, "Enriching "+src.Name(), *useTUI, func(ctx context.Context, progress chan<- service.RunProgress) (*service.RunResult, error) {
		return svc.Run(ctx, src, progress)
	})
	if err != nil {
		return err
	}

	opts := export.Options{Precision: *precision}
	if err := writeOutputs(res, *out, *summaryOut, opts); err != nil {
		return err
	}
	printResult(res, *save)
	return nil
}

// openSource picks the GPX reader for directories and the dataset reader
// for files
func openSource(path string) (source.Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return source.NewGPXSource(path), nil
	}
	if strings.EqualFold(filepath.Ext(path), ".gpx") {
		return source.NewGPXSource(path), nil
	}
	return source.NewCSVSource(path), nil
}

func writeOutputs(res *service.RunResult, out, summaryOut string, opts export.Options) error {
	if out != "" {
		if err := writeFile(out, func(w io.Writer) error {
			return export.WriteCSV(w, res.Result.Points(), opts)
		}); err != nil {
			return fmt.Errorf("writing enriched CSV: %w", err)
		}
	}
	if summaryOut != "" {
		if err := writeFile(summaryOut, func(w io.Writer) error {
			return export.WriteSummaryCSV(w, res.Result.Summaries(), opts)
		}); err != nil {
			return fmt.Errorf("writing summary CSV: %w", err)
		}
	}
	return nil
}

// writeFile creates path, or writes to stdout for "-"
func writeFile(path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printResult(res *service.RunResult, saved bool) {
	r := res.Run
	fmt.Fprintf(os.Stderr, "Enriched %s traces (%s points) in %s\n",
		humanize.Comma(int64(r.Traces)), humanize.Comma(int64(r.Points)), res.Elapsed.Round(time.Millisecond))
	if saved {
		fmt.Fprintf(os.Stderr, "Saved run %s\n", r.ID)
	}
	if r.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "Skipped %d inputs:\n", r.Skipped)
		for _, s := range res.Skipped {
			fmt.Fprintf(os.Stderr, "  %v\n", s)
		}
	}
	if r.Failures > 0 {
		fmt.Fprintf(os.Stderr, "%d traces failed:\n", r.Failures)
		for _, f := range res.Result.Failures {
			fmt.Fprintf(os.Stderr, "  %v\n", f)
		}
	}
}

func runDataset(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("dataset", flag.ExitOnError)
	dir := fs.String("gpx", "", "directory of GPX files (required)")
	out := fs.String("out", "dataset.csv", "dataset CSV output, - for stdout")
	fs.Parse(args)

	if *dir == "" {
		fs.Usage()
		return errors.New("dataset: -gpx is required")
	}

	logger, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	src := source.NewGPXSource(*dir)
	batch, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading %s: %w", src.Name(), err)
	}
	for _, s := range batch.Skipped {
		logger.Warn("skipped input", "ref", s.Ref, "error", s.Err)
	}

	if err := writeFile(*out, func(w io.Writer) error {
		return source.WriteDatasetCSV(w, batch.Points)
	}); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s points (%d files skipped)\n", humanize.Comma(int64(len(batch.Points))), len(batch.Skipped))
	return nil
}

func runStrava(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("strava", flag.ExitOnError)
	full := fs.Bool("full", false, "fetch all activities instead of those since the last sync")
	limit := fs.Int("limit", cfg.Strava.Limit, "most recent activities to fetch, 0 for all")
	out := fs.String("out", "", "also write the enriched CSV here")
	useTUI := fs.Bool("tui", false, "show a progress view")
	logout := fs.Bool("logout", false, "forget the stored Strava authorization and exit")
	fs.Parse(args)

	if *logout {
		return forgetAuth(cfg.Store.Path)
	}

	// Validate config
	if err := cfg.ValidateStrava(); err != nil {
		if err := config.CreateExample(); err != nil {
			return fmt.Errorf("creating example config: %w", err)
		}
		configDir, _ := config.GetConfigDir()
		fmt.Printf("Strava is not configured: %v\n\n", err)
		fmt.Printf("Please edit the config file at:\n  %s/config.json\n", configDir)
		return nil
	}

	logger, closeLog, err := newLogger(cfg, *useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	// Open database
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	oauthCfg := auth.NewOAuthConfig(auth.Config{
		ClientID:     cfg.Strava.ClientID,
		ClientSecret: cfg.Strava.ClientSecret,
		CallbackPort: cfg.Strava.CallbackPort,
	})
	tokenSource, err := loadTokenSource(ctx, db, oauthCfg, cfg.Strava.CallbackPort)
	if err != nil {
		return err
	}

	engine, err := enrich.NewEngine(cfg.Engine, logger)
	if err != nil {
		return err
	}

	// Create services
	stravaClient := strava.NewClient(tokenSource)
	enrichSvc := service.NewEnrichService(engine, db, logger)
	syncSvc := service.NewSyncService(stravaClient, db, enrichSvc, *limit, logger)

	res, err := execute(ctx, "Syncing Strava", *useTUI, func(ctx context.Context, progress chan<- service.RunProgress) (*service.RunResult, error) {
		return syncSvc.Sync(ctx, *full, progress)
	})
	if err != nil {
		return err
	}

	if err := writeOutputs(res, *out, "", export.Options{Precision: cfg.Output.Precision}); err != nil {
		return err
	}
	printResult(res, true)

	short, daily := syncSvc.RateLimitStatus()
	fmt.Fprintf(os.Stderr, "API requests left: %d (15 min), %d (daily)\n", short, daily)
	return nil
}

// loadTokenSource returns a refreshing token source, running the OAuth
// flow when nothing is stored or the stored token no longer works
func loadTokenSource(ctx context.Context, db *store.DB, oauthCfg *oauth2.Config, port int) (*auth.TokenSource, error) {
	ts, err := auth.NewStoredTokenSource(oauthCfg, db)
	if errors.Is(err, store.ErrNoAuth) {
		fmt.Println("No authentication found. Starting OAuth flow...")
		if err := authenticate(ctx, db, oauthCfg, port); err != nil {
			return nil, fmt.Errorf("authentication: %w", err)
		}
		return auth.NewStoredTokenSource(oauthCfg, db)
	}
	if err != nil {
		return nil, fmt.Errorf("checking auth: %w", err)
	}

	// Test token is valid by getting a fresh one
	if _, err := ts.Token(); err != nil {
		fmt.Println("Stored token is invalid or expired. Re-authenticating...")
		if err := authenticate(ctx, db, oauthCfg, port); err != nil {
			return nil, fmt.Errorf("re-authentication: %w", err)
		}
		return auth.NewStoredTokenSource(oauthCfg, db)
	}
	return ts, nil
}

func authenticate(ctx context.Context, db *store.DB, oauthCfg *oauth2.Config, port int) error {
	if port == 0 {
		port = auth.CallbackPort
	}
	result, err := auth.Authenticate(ctx, oauthCfg, fmt.Sprintf("localhost:%d", port), os.Stdout)
	if err != nil {
		return err
	}

	// Store the tokens
	if err := auth.SaveResult(db, result); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Successfully authenticated as athlete %d!\n", result.AthleteID)
	if !auth.HasScope(result.Scope, auth.ActivityScope) {
		fmt.Printf("Warning: %s was not granted, private activities will be missing.\n", auth.ActivityScope)
	}
	return nil
}

func forgetAuth(dbPath string) error {
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.DeleteAuth(); errors.Is(err, store.ErrNoAuth) {
		fmt.Println("Not authenticated.")
		return nil
	} else if err != nil {
		return err
	}
	fmt.Println("Strava authorization removed.")
	return nil
}

func runSummary(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	runID := fs.String("run", "", "run id (default latest)")
	list := fs.Bool("list", false, "list recent runs")
	limit := fs.Int("n", service.RecentRunsLimit, "runs to list")
	traceID := fs.Int("trace", -1, "show the points of one trace")
	out := fs.String("out", "", "write the stored points of -trace as enriched CSV")
	useTUI := fs.Bool("tui", false, "browse the run in a scrollable view")
	del := fs.Bool("delete", false, "delete the run named by -run")
	fs.Parse(args)

	// Open database
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	querySvc := service.NewQueryService(db)

	switch {
	case *del:
		if *runID == "" {
			return errors.New("summary: -delete needs -run")
		}
		if err := querySvc.DeleteRun(*runID); err != nil {
			return err
		}
		fmt.Printf("Deleted run %s\n", *runID)
		return nil

	case *list:
		rows, err := querySvc.ListRuns(*limit, time.Now())
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%s  %-14s  %5d traces  %s\n", r.Run.ID, r.Age, r.Run.Traces, r.Run.Source)
		}
		return nil

	case *traceID >= 0:
		id := *runID
		if id == "" {
			latest, err := db.LatestRun()
			if err != nil {
				return err
			}
			id = latest.ID
		}
		detail, err := querySvc.GetTraceDetail(id, *traceID)
		if err != nil {
			return fmt.Errorf("trace %d of run %s: %w", *traceID, id, err)
		}
		printTraceStats(detail)
		if *out != "" {
			return writeFile(*out, func(w io.Writer) error {
				return export.WriteCSV(w, detail.Points, export.Options{Precision: cfg.Output.Precision})
			})
		}
		return nil

	case *useTUI:
		p := tea.NewProgram(tui.NewReportModel(querySvc, *runID, 0, 0), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running TUI: %w", err)
		}
		return nil
	}

	report, err := querySvc.GetRunReport(*runID)
	if errors.Is(err, store.ErrRunNotFound) && *runID == "" {
		fmt.Println("No runs stored yet. Use 'trailmetrics enrich -db' or 'trailmetrics strava'.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println(tui.RenderReport(report))
	return nil
}

func printTraceStats(d *service.TraceDetail) {
	optional := func(v *float64, unit string) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.1f %s", *v, unit)
	}
	s := d.Stats
	fmt.Printf("%s: %d points\n", d.Points[0].SourceID, len(d.Points))
	fmt.Printf("  altitude  %s .. %s\n", optional(s.MinAltitude, "m"), optional(s.MaxAltitude, "m"))
	fmt.Printf("  slope     %s .. %s\n", optional(s.MinSlope, "%"), optional(s.MaxSlope, "%"))
	fmt.Printf("  speed     %.1f km/h moving avg, %.1f km/h max\n", s.AvgMovingSpeed, s.MaxSpeed)
}
