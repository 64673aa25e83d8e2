// mazeforge generates a batch of maze artifacts from the command line:
// resolve seeds, run the batch, and write the packaged downloads to a
// directory.
//
// Usage:
//
//	mazeforge -shape rectangle -sizes "width=20,height=15" -kinds maze,solution -seeds 1,2,3
//	mazeforge -shape cross -seed-mode range -range-start 10 -range-end 1 -range-step 3
//	mazeforge -seed-mode random -random-count 10 -out renders
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mazeforge/mazeforge/internal/archive"
	"github.com/mazeforge/mazeforge/internal/artifact"
	"github.com/mazeforge/mazeforge/internal/batch"
	"github.com/mazeforge/mazeforge/internal/catalog"
	"github.com/mazeforge/mazeforge/internal/engine"
	"github.com/mazeforge/mazeforge/internal/logger"
	"github.com/mazeforge/mazeforge/internal/mazegen"
	"github.com/mazeforge/mazeforge/internal/store"
)

func main() {
	// Parse command-line flags
	shape := flag.String("shape", "rectangle", "Maze shape (see -list for the catalog)")
	sizesFlag := flag.String("sizes", "", "Size parameters as name=value pairs, e.g. \"width=20,height=15\" (missing params take catalog defaults)")
	algorithm := flag.String("algorithm", "", "Generation algorithm (empty for the shape's default)")
	exitConfig := flag.String("exits", "farthest", "Exit configuration: none, corners, or farthest")
	kindsFlag := flag.String("kinds", "maze", "Artifact kinds to render, comma-separated: maze, solution, distance")
	seedMode := flag.String("seed-mode", "list", "Seed input mode: list, range, random, or preset")
	seeds := flag.String("seeds", "1", "Seed list for list mode, comma-separated")
	rangeStart := flag.String("range-start", "", "Range mode start seed")
	rangeEnd := flag.String("range-end", "", "Range mode end seed")
	rangeStep := flag.String("range-step", "", "Range mode step (empty defaults to 1)")
	randomCount := flag.String("random-count", "", "Random mode seed count, 1 to 100 (empty defaults to 5)")
	preset := flag.String("preset", "", "Preset mode seed preset name")
	outDir := flag.String("out", "output", "Directory the downloads are written to")
	noArchive := flag.Bool("no-archive", false, "Skip zip packaging and write each artifact as its own file")
	catalogFile := flag.String("catalog", "", "Path to a catalog YAML file (empty for built-in defaults)")
	dbFile := flag.String("db", "", "Path to a SQLite database recording settings and run history (empty disables recording)")
	loggingConfig := flag.String("logging", "data/logging.yaml", "Path to logging config YAML file")
	list := flag.Bool("list", false, "Print the catalog (shapes, algorithms, exits, presets) and exit")
	flag.Parse()

	// Initialize logger first (before any logging)
	logConfig, _ := logger.LoadConfig(*loggingConfig)
	logger.Initialize(logConfig)

	cat := loadCatalog(*catalogFile)

	if *list {
		printCatalog(cat)
		return
	}

	// Resolve the request against the catalog before touching the engine.
	sizeMap, err := parseSizes(*sizesFlag)
	if err != nil {
		fatal("Invalid -sizes: %v", err)
	}
	sizes, err := cat.SizeValues(*shape, sizeMap)
	if err != nil {
		fatal("%v", err)
	}
	algo, err := cat.ResolveAlgorithm(*shape, *algorithm)
	if err != nil {
		fatal("%v", err)
	}
	if _, ok := cat.ExitConfig(*exitConfig); !ok {
		fatal("Unknown exit configuration %q", *exitConfig)
	}

	var kinds []artifact.Kind
	for _, raw := range strings.Split(*kindsFlag, ",") {
		kind, err := artifact.ParseKind(raw)
		if err != nil {
			fatal("%v", err)
		}
		kinds = append(kinds, kind)
	}

	spec, err := buildSeedSpec(cat, *seedMode, *seeds, *rangeStart, *rangeEnd, *rangeStep, *randomCount, *preset)
	if err != nil {
		fatal("%v", err)
	}
	resolved, err := batch.Resolve(spec, nil)
	if err != nil {
		fatal("%v", err)
	}

	cfg := batch.Config{
		Shape:      *shape,
		Sizes:      sizes,
		Algorithm:  algo.ID,
		ExitConfig: *exitConfig,
		Kinds:      kinds,
	}

	fmt.Printf("Generating %s %s mazes with %s (%d seeds)\n",
		*shape, sizeLabel(sizes), algo.Display, len(resolved))

	runner := batch.NewRunner(mazegen.New())
	result, err := runner.Run(cfg, resolved, func(p batch.Progress) {
		label := string(p.Kind)
		if label == "" {
			label = "skipped"
		}
		fmt.Printf("  [%d/%d] seed %d: %s\n", p.CompletedSteps, p.TotalSteps, p.Seed, label)
	})
	if err != nil {
		fatal("%v", err)
	}

	fmt.Println(result.Summary())

	if len(result.Artifacts) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to package, every seed failed")
		os.Exit(1)
	}

	downloads, total, err := packageResult(cfg, algo, resolved, result, *noArchive)
	if err != nil {
		fatal("%v", err)
	}
	if err := archive.WriteDownloads(*outDir, downloads); err != nil {
		fatal("%v", err)
	}
	for _, d := range downloads {
		fmt.Printf("Wrote %s (%s)\n", d.Name, humanize.Bytes(uint64(len(d.Content))))
	}
	fmt.Printf("Done: %d files, %s total in %s\n", len(downloads), humanize.Bytes(total), *outDir)

	recordRun(*dbFile, cfg, result, resolved, downloads, *noArchive)

	if len(result.Errors) > 0 {
		os.Exit(1)
	}
}

func loadCatalog(path string) *catalog.Catalog {
	if path == "" {
		return catalog.Default()
	}
	cat, err := catalog.LoadFromYAML(path)
	if err != nil {
		logger.Warning("Failed to load catalog, using built-in defaults", "path", path, "error", err)
		return catalog.Default()
	}
	return cat
}

func printCatalog(cat *catalog.Catalog) {
	fmt.Println("Shapes:")
	for _, s := range cat.Shapes() {
		var params []string
		for _, p := range s.Params {
			params = append(params, fmt.Sprintf("%s %d-%d (default %d)", p.Name, p.Min, p.Max, p.Initial))
		}
		fmt.Printf("  %-10s %s; default algorithm %s\n", s.ID, strings.Join(params, ", "), s.DefaultAlgorithm)
	}
	fmt.Println("Algorithms:")
	for _, a := range cat.Algorithms() {
		fmt.Printf("  %-12s %s (shapes: %s)\n", a.ID, a.Display, strings.Join(a.Shapes, ", "))
	}
	fmt.Println("Exit configurations:")
	for _, e := range cat.ExitConfigs() {
		fmt.Printf("  %-10s %s\n", e.ID, e.Description)
	}
	fmt.Println("Seed presets:")
	for name, values := range cat.Presets() {
		fmt.Printf("  %-10s %s\n", name, values)
	}
}

// parseSizes turns "width=20,height=15" into a name→value map.
func parseSizes(s string) (map[string]int, error) {
	if s == "" {
		return nil, nil
	}
	sizes := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%q is not a name=value pair", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", strings.TrimSpace(value))
		}
		sizes[strings.TrimSpace(name)] = n
	}
	return sizes, nil
}

func buildSeedSpec(cat *catalog.Catalog, mode, seeds, start, end, step, count, preset string) (batch.SeedSpec, error) {
	switch mode {
	case "list":
		return batch.SeedList{Tokens: strings.Split(seeds, ",")}, nil
	case "range":
		return batch.SeedRange{Start: start, End: end, Step: step}, nil
	case "random":
		return batch.SeedRandom{Count: count}, nil
	case "preset":
		blob, ok := cat.Preset(preset)
		if !ok {
			return nil, fmt.Errorf("unknown seed preset %q", preset)
		}
		return batch.SeedPreset{Values: blob}, nil
	default:
		return nil, fmt.Errorf("unknown seed mode %q (want list, range, random, or preset)", mode)
	}
}

func sizeLabel(sizes []engine.SizeValue) string {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = strconv.Itoa(s.Value)
	}
	return strings.Join(parts, "x")
}

// packageResult bundles the run's artifacts the same way the daemon
// serves them: one zip with a manifest, or per-file downloads when
// archiving is off.
func packageResult(cfg batch.Config, algo catalog.Algorithm, seeds []int64, result *batch.Result, noArchive bool) ([]archive.Download, uint64, error) {
	grid := engine.GridSpec{Shape: cfg.Shape, Sizes: cfg.Sizes}
	now := time.Now().UTC()
	name := archive.ArchiveName(algo.Display, cfg.Shape, grid.SizeInts(), now, archive.ZipExt)

	names := make([]string, len(result.Artifacts))
	for i, a := range result.Artifacts {
		names[i] = a.Name
	}
	var errs []string
	for _, e := range result.Errors {
		errs = append(errs, fmt.Sprintf("seed %d: %s", e.Seed, e.Message))
	}
	manifest := &archive.Manifest{
		GeneratedAt: now.Format(time.RFC3339),
		Shape:       cfg.Shape,
		Sizes:       grid.SizeInts(),
		Algorithm:   cfg.Algorithm,
		ExitConfig:  cfg.ExitConfig,
		SeedCount:   len(seeds),
		Artifacts:   names,
		Errors:      errs,
	}

	p := &archive.Packager{Disabled: noArchive}
	downloads, err := p.Package(name, result.Artifacts, manifest)
	if err != nil {
		return nil, 0, err
	}

	var total uint64
	for _, d := range downloads {
		total += uint64(len(d.Content))
	}
	return downloads, total, nil
}

// recordRun saves the run record and last-used settings when a
// database path was given. Failures are logged, never fatal.
func recordRun(dbFile string, cfg batch.Config, result *batch.Result, seeds []int64, downloads []archive.Download, noArchive bool) {
	if dbFile == "" {
		return
	}

	st, err := store.Open(store.DefaultConfig(dbFile))
	if err != nil {
		logger.Warning("Failed to open store, run not recorded", "path", dbFile, "error", err)
		return
	}
	defer st.Close()

	archiveName := ""
	if !noArchive && len(downloads) == 1 {
		archiveName = downloads[0].Name
	}
	err = st.SaveRun(&store.Run{
		Shape:         cfg.Shape,
		Sizes:         cfg.Sizes,
		Algorithm:     cfg.Algorithm,
		ExitConfig:    cfg.ExitConfig,
		SeedCount:     len(seeds),
		ArtifactCount: len(result.Artifacts),
		ErrorCount:    len(result.Errors),
		ArchiveName:   archiveName,
	})
	if err != nil {
		logger.Warningf("Failed to record run: %v", err)
	}

	err = st.SaveSettings(store.Settings{
		Shape:      cfg.Shape,
		Sizes:      cfg.Sizes,
		Algorithm:  cfg.Algorithm,
		ExitConfig: cfg.ExitConfig,
		Kinds:      cfg.Kinds,
	})
	if err != nil {
		logger.Warningf("Failed to save settings: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
