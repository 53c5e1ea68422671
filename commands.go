package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/pelagic-data/bathy.report/internal/config"
	"github.com/pelagic-data/bathy.report/internal/db"
	"github.com/pelagic-data/bathy.report/internal/geo"
	"github.com/pelagic-data/bathy.report/internal/monitoring"
	"github.com/pelagic-data/bathy.report/internal/sonar"
	"github.com/pelagic-data/bathy.report/internal/sonar/pipeline"
	"github.com/pelagic-data/bathy.report/internal/sonar/report"
	"github.com/pelagic-data/bathy.report/internal/sonar/storage/sqlite"
	"github.com/pelagic-data/bathy.report/internal/timeutil"
)

const defaultDBFile = "bathy_data.db"

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint(*s) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// datasetFile is the JSON survey dataset the process command consumes:
// time-ordered pings, the attitude series and the per-line installation
// geometry. Raw sensor formats are converted to this upstream.
type datasetFile struct {
	Pings        []sonar.PingRecord     `json:"pings"`
	Attitude     []sonar.AttitudeSample `json:"attitude"`
	Installation []installationEntry    `json:"installation"`
}

type installationEntry struct {
	LineID string `json:"line_id"`
	HeadID int    `json:"head_id"`
	sonar.InstallationOffsets
}

func loadDataset(path string) (*datasetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	var ds datasetFile
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if len(ds.Pings) == 0 {
		return nil, fmt.Errorf("dataset %s has no pings", path)
	}
	if len(ds.Attitude) == 0 {
		return nil, fmt.Errorf("dataset %s has no attitude samples", path)
	}
	return &ds, nil
}

func loadNavigationFile(path string) ([]sonar.NavigationSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading navigation: %w", err)
	}
	var samples []sonar.NavigationSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("parsing navigation %s: %w", path, err)
	}
	return samples, nil
}

func loadConfig(path string) (*config.ProcessingConfig, error) {
	if path == "" {
		return config.EmptyProcessingConfig(), nil
	}
	return config.LoadProcessingConfig(path)
}

func openDatabase(path string) (*db.DB, error) {
	database, err := db.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	return database, nil
}

// restoreCachedChunk loads a completed chunk's soundings from the result
// cache. A miss, a version mismatch, or a payload that no longer fits the
// chunk sends it back through the pipeline instead.
func restoreCachedChunk(cache *sqlite.CacheStore, proc *pipeline.Processor, key pipeline.ChunkKey, versions sqlite.VersionKey) bool {
	payload, ok, err := cache.Get(key.LineID, key.ChunkIndex, pipeline.StageUncertaintyComputed.String(), versions)
	if err != nil || !ok {
		return false
	}
	var soundings []sonar.Sounding
	if err := json.Unmarshal(payload, &soundings); err != nil {
		return false
	}
	return proc.RestoreSoundings(key, soundings) == nil
}

func handleProcess(args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	dbFile := fs.String("db", defaultDBFile, "SQLite database path")
	dataset := fs.String("dataset", "", "Survey dataset JSON (required)")
	navFile := fs.String("nav", "", "Raw navigation JSON (required)")
	postNavFile := fs.String("post-nav", "", "Post-processed navigation JSON overlay")
	configFile := fs.String("config", "", "Processing configuration JSON")
	migrations := fs.String("migrations", "migrations", "Schema migrations directory")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address while processing (e.g. :9090)")
	var svpFiles stringList
	fs.Var(&svpFiles, "svp", "Sound velocity cast file (repeatable, required)")
	fs.Parse(args)

	if *dataset == "" || *navFile == "" || len(svpFiles) == 0 {
		return fmt.Errorf("--dataset, --nav and at least one --svp are required")
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	ds, err := loadDataset(*dataset)
	if err != nil {
		return err
	}

	navStore := sonar.NewNavigationStore()
	rawNav, err := loadNavigationFile(*navFile)
	if err != nil {
		return err
	}
	if err := navStore.ImportRawNavigation(rawNav); err != nil {
		return err
	}
	if *postNavFile != "" {
		postNav, err := loadNavigationFile(*postNavFile)
		if err != nil {
			return err
		}
		if err := navStore.ApplyPostProcessedNavigation(postNav); err != nil {
			return err
		}
	}

	profiles := sonar.NewProfileSet()
	if _, err := profiles.ImportSoundVelocityFiles(svpFiles); err != nil {
		return err
	}

	attitude, err := sonar.AttitudeSeries(ds.Attitude)
	if err != nil {
		return err
	}
	navSnap := navStore.Snapshot()
	navSeries, err := navSnap.Series()
	if err != nil {
		return err
	}
	hasAltitude := false
	if active := navSnap.Active(); len(active) > 0 {
		hasAltitude = true
		for _, s := range active {
			hasAltitude = hasAltitude && s.HasAltitude
		}
	}

	refSample := navSnap.Active()[0]
	crs, err := geo.ConstructCRS(cfg.GetCRSSpec(), refSample.LatDeg, refSample.LonDeg)
	if err != nil {
		return err
	}

	chunks, err := sonar.BuildChunks(ds.Pings, cfg.GetChunkTargetBeams())
	if err != nil {
		return err
	}

	proc := pipeline.NewProcessor(chunks)
	proc.Attitude = attitude
	proc.Navigation = navSeries
	proc.HasAltitude = hasAltitude
	proc.Profiles = profiles.Snapshot()
	proc.CRS = crs
	proc.VerticalRef = cfg.GetVerticalReference()
	proc.DatumSeparation = cfg.GetDatumSeparation()
	proc.HasSeparation = cfg.DatumSeparation != nil
	proc.TieBreak = cfg.GetCastTieBreak()
	proc.Uncertainty = cfg.GetUncertainty()
	proc.Installation = make(map[pipeline.InstallKey]sonar.InstallationOffsets, len(ds.Installation))
	for _, entry := range ds.Installation {
		proc.Installation[pipeline.InstallKey{LineID: entry.LineID, HeadID: entry.HeadID}] = entry.InstallationOffsets
	}

	database, err := openDatabase(*dbFile)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.MigrateUp(*migrations); err != nil {
		return err
	}
	statusStore := sqlite.NewStatusStore(database.DB)
	soundingStore := sqlite.NewSoundingStore(database.DB)
	cacheStore := sqlite.NewCacheStore(database.DB)

	versions := sqlite.VersionKey{
		Nav:    navSnap.Version,
		SVP:    proc.Profiles.Version,
		Config: cfg.Fingerprint(),
	}

	// Resume from durable status where possible: completed chunks reload
	// their soundings from the cache, anything else restores mid-pipeline.
	// Chunks whose cached inputs no longer match report stale or miss and
	// restart from scratch.
	stored := make(map[pipeline.ChunkKey]pipeline.Stage)
	if rows, err := statusStore.All(); err == nil {
		for _, row := range rows {
			if stage, ok := pipeline.ParseStage(row.Stage); ok {
				stored[pipeline.ChunkKey{LineID: row.LineID, ChunkIndex: row.ChunkIndex}] = stage
			}
		}
	}
	board := pipeline.NewStatusBoard(timeutil.RealClock{})
	lineSet := make(map[string]bool)
	resumed, reloaded := 0, 0
	for _, c := range chunks {
		key := pipeline.ChunkKey{LineID: c.LineID, ChunkIndex: c.Index}
		lineSet[c.LineID] = true
		stage, ok := stored[key]
		switch {
		case ok && stage == pipeline.StageComplete:
			if restoreCachedChunk(cacheStore, proc, key, versions) {
				board.Restore(key, pipeline.StageComplete)
				reloaded++
			} else {
				board.Register(key)
			}
		case ok:
			board.Restore(key, stage)
			resumed++
		default:
			board.Register(key)
		}
	}
	if resumed > 0 || reloaded > 0 {
		monitoring.Logf("resuming %d chunks from stored status, %d complete from cache", resumed, reloaded)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := pipeline.NewMetrics()
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				monitoring.Logf("metrics listener on %s failed: %v", *metricsAddr, err)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	runner := &pipeline.Runner{
		Board:   board,
		Workers: cfg.GetWorkers(),
		Exec:    proc.Execute,
		Metrics: metrics,
	}
	runErr := runner.Run(ctx)

	// Persist whatever completed, even on cancellation: the next run
	// resumes from here.
	for _, st := range board.Snapshot() {
		if err := statusStore.Upsert(st.Key.LineID, st.Key.ChunkIndex, st.Stage.String(), st.LastError); err != nil {
			return err
		}
		if soundings, ok := proc.Soundings(st.Key); ok && st.Stage == pipeline.StageComplete {
			payload, err := json.Marshal(soundings)
			if err != nil {
				return err
			}
			if err := cacheStore.Put(st.Key.LineID, st.Key.ChunkIndex,
				pipeline.StageUncertaintyComputed.String(), versions, payload); err != nil {
				return err
			}
		}
	}
	for lineID := range lineSet {
		if soundings := proc.LineSoundings(lineID); len(soundings) > 0 {
			if err := soundingStore.ReplaceLineSoundings(lineID, soundings); err != nil {
				return err
			}
		}
	}
	if runErr != nil {
		return runErr
	}

	counts := board.Counts()
	fmt.Printf("processed %d chunks across %d lines (%d complete)\n",
		len(chunks), len(lineSet), counts[pipeline.StageComplete])
	return nil
}

func handleImportNav(args []string) error {
	fs := flag.NewFlagSet("import-nav", flag.ExitOnError)
	dbFile := fs.String("db", defaultDBFile, "SQLite database path")
	file := fs.String("file", "", "Navigation JSON file (required)")
	post := fs.Bool("post", false, "Validate as a post-processed overlay")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("--file is required")
	}
	samples, err := loadNavigationFile(*file)
	if err != nil {
		return err
	}

	// Validation runs through the same store path the process command uses.
	store := sonar.NewNavigationStore()
	if *post {
		err = store.ApplyPostProcessedNavigation(samples)
	} else {
		err = store.ImportRawNavigation(samples)
	}
	if err != nil {
		return err
	}

	database, err := openDatabase(*dbFile)
	if err != nil {
		return err
	}
	defer database.Close()
	kind := "navigation"
	if *post {
		kind = "navigation-post"
	}
	id, err := sqlite.NewStatusStore(database.DB).RecordImport(kind, *file)
	if err != nil {
		return err
	}
	fmt.Printf("validated %d navigation samples, import %s\n", len(samples), id)
	return nil
}

func handleImportSVP(args []string) error {
	fs := flag.NewFlagSet("import-svp", flag.ExitOnError)
	dbFile := fs.String("db", defaultDBFile, "SQLite database path")
	fs.Parse(args)

	files := fs.Args()
	if len(files) == 0 {
		return fmt.Errorf("at least one cast file is required")
	}

	profiles := sonar.NewProfileSet()
	ids, err := profiles.ImportSoundVelocityFiles(files)
	if err != nil {
		return err
	}

	database, err := openDatabase(*dbFile)
	if err != nil {
		return err
	}
	defer database.Close()
	store := sqlite.NewStatusStore(database.DB)
	for i, file := range files {
		id, err := store.RecordImport("svp", file)
		if err != nil {
			return err
		}
		fmt.Printf("validated cast %s from %s, import %s\n", ids[i], file, id)
	}
	return nil
}

func handleExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbFile := fs.String("db", defaultDBFile, "SQLite database path")
	out := fs.String("out", "", "Output file path (required)")
	line := fs.String("line", "", "Restrict to one survey line")
	dropRejected := fs.Bool("drop-rejected", false, "Exclude rejected soundings")
	dropDegraded := fs.Bool("drop-degraded", false, "Exclude degraded soundings")
	noUncertainty := fs.Bool("no-uncertainty", false, "Omit the tvu/thu/flag columns")
	fs.Parse(args)

	if *out == "" {
		return fmt.Errorf("--out is required")
	}

	database, err := openDatabase(*dbFile)
	if err != nil {
		return err
	}
	defer database.Close()
	soundings, err := loadSoundings(database, *line)
	if err != nil {
		return err
	}
	if len(soundings) == 0 {
		return fmt.Errorf("no soundings to export")
	}

	if err := sonar.SetExportDir(filepath.Dir(*out)); err != nil {
		return err
	}
	filter := sonar.SoundingFilter{
		LineID:          *line,
		ExcludeRejected: *dropRejected,
		ExcludeDegraded: *dropDegraded,
	}
	path, err := sonar.ExportSoundingsToFile(soundings, *out, filter, !*noUncertainty)
	if err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)
	return nil
}

func handleReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	dbFile := fs.String("db", defaultDBFile, "SQLite database path")
	out := fs.String("out", "", "Report HTML output path (required)")
	svpFile := fs.String("svp", "", "Cast file for the profile plot")
	svpPlot := fs.String("svp-plot", "", "Profile plot output path (.png/.svg)")
	fs.Parse(args)

	if *out == "" {
		return fmt.Errorf("--out is required")
	}

	database, err := openDatabase(*dbFile)
	if err != nil {
		return err
	}
	defer database.Close()
	soundings, err := loadSoundings(database, "")
	if err != nil {
		return err
	}

	rep := report.BuildUncertaintyReport(soundings)
	if err := rep.WriteHTML(*out); err != nil {
		return err
	}
	fmt.Printf("wrote uncertainty report to %s\n", *out)

	if *svpFile != "" && *svpPlot != "" {
		profiles := sonar.NewProfileSet()
		if _, err := profiles.ImportSoundVelocityFiles([]string{*svpFile}); err != nil {
			return err
		}
		cast := profiles.Snapshot().Casts()[0]
		if err := report.PlotCastProfile(cast, *svpPlot); err != nil {
			return err
		}
		fmt.Printf("wrote profile plot to %s\n", *svpPlot)
	}
	return nil
}

func handlePatchTest(args []string) error {
	fs := flag.NewFlagSet("patch-test", flag.ExitOnError)
	dbFile := fs.String("db", defaultDBFile, "SQLite database path")
	lineA := fs.String("line-a", "", "First line (required)")
	lineB := fs.String("line-b", "", "Second, reciprocal line (required)")
	azimuth := fs.Float64("azimuth", 0, "Line azimuth in degrees")
	resolution := fs.Float64("resolution", 1.0, "Grid cell size in meters")
	fs.Parse(args)

	if *lineA == "" || *lineB == "" {
		return fmt.Errorf("--line-a and --line-b are required")
	}

	database, err := openDatabase(*dbFile)
	if err != nil {
		return err
	}
	defer database.Close()
	soundings, err := sqlite.NewSoundingStore(database.DB).AllSoundings()
	if err != nil {
		return err
	}

	result, err := sonar.RunPatchTest(soundings, *lineA, *lineB, *azimuth, *resolution)
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}

func handleMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbFile := fs.String("db", defaultDBFile, "SQLite database path")
	migrations := fs.String("migrations", "migrations", "Schema migrations directory")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("migrate needs an action: up, down, version or force <n>")
	}

	database, err := openDatabase(*dbFile)
	if err != nil {
		return err
	}
	defer database.Close()

	switch action := fs.Arg(0); action {
	case "up":
		if err := database.MigrateUp(*migrations); err != nil {
			return err
		}
		fmt.Println("migrations applied")
	case "down":
		if err := database.MigrateDown(*migrations); err != nil {
			return err
		}
		fmt.Println("rolled back one migration")
	case "version":
		v, dirty, err := database.MigrateVersion(*migrations)
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d (dirty: %v)\n", v, dirty)
	case "force":
		if fs.NArg() < 2 {
			return fmt.Errorf("force needs a version number")
		}
		v, err := strconv.Atoi(fs.Arg(1))
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", fs.Arg(1), err)
		}
		if err := database.MigrateForce(*migrations, v); err != nil {
			return err
		}
		fmt.Printf("forced schema version to %d\n", v)
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
	return nil
}

func loadSoundings(database *db.DB, line string) ([]sonar.Sounding, error) {
	store := sqlite.NewSoundingStore(database.DB)
	if line != "" {
		return store.SoundingsByLine(line)
	}
	return store.AllSoundings()
}
