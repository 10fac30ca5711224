package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"repgap/internal/config"
	apierrors "repgap/internal/errors"
	"repgap/internal/files"
	"repgap/internal/gapanalysis"
	"repgap/internal/infrastructure"
	"repgap/internal/ingest"
	"repgap/internal/services"
	"repgap/internal/validation"
	"repgap/pkg/contracts"
)

// Exit codes
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitBadInput = 3
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	in          string
	out         string
	configPath  string
	catalog     string
	sheet       string
	band        string
	targets     string
	entities    string
	grades      string
	components  string
	sort        string
	value       string
	rollup      string
	shortLabels bool
	labelMax    int
	includeOver bool
	bom         bool
	printJSON   bool
	noExports   bool
	logLevel    string
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("repgap", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.in, "in", "", "input file (.csv, .tsv or .xlsx) or a directory of them")
	fs.StringVar(&o.out, "out", "", "directory for exported CSVs and workbook (defaults to the configured exports dir)")
	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.catalog, "catalog", "", "demographic catalog YAML (overrides config)")
	fs.StringVar(&o.sheet, "sheet", "", "workbook sheet to read (defaults to the first)")
	fs.StringVar(&o.band, "band", "", "on-target band in percentage points")
	fs.StringVar(&o.targets, "targets", "", "target overrides, e.g. hispanic=18,lgbt=7")
	fs.StringVar(&o.entities, "entity", "", "only analyze these entities (comma separated)")
	fs.StringVar(&o.grades, "grade", "", "only analyze these grades (comma separated)")
	fs.StringVar(&o.components, "component", "", "only analyze these components (comma separated)")
	fs.StringVar(&o.sort, "sort", "", "heatmap row order: first-seen | largest-gap | total-people | label")
	fs.StringVar(&o.value, "value", "", "heatmap value: gap | actual")
	fs.StringVar(&o.rollup, "rollup", "", "re-aggregate modules by entity | grade | component")
	fs.BoolVar(&o.shortLabels, "short-labels", false, "use short column labels in the heatmap")
	fs.IntVar(&o.labelMax, "label-max", 0, "truncate heatmap row labels to this many characters")
	fs.BoolVar(&o.includeOver, "include-over-attributed", false, "aggregate rows whose counts exceed their spec count")
	fs.BoolVar(&o.bom, "bom", true, "prefix CSV exports with a UTF-8 byte order mark")
	fs.BoolVar(&o.printJSON, "json", false, "print the full report as JSON to stdout")
	fs.BoolVar(&o.noExports, "no-export", false, "skip writing export files")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug | info | warn | error")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.in == "" && !o.showVersion {
		fs.Usage()
		return nil, errors.New("-in is required")
	}
	return &o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if o.showVersion {
		fmt.Fprintln(stdout, contracts.GetFullVersionString())
		return exitOK
	}

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitFailure
	}
	if o.catalog != "" {
		cfg.Analysis.CatalogFile = o.catalog
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	out := o.out
	if out == "" {
		out = cfg.GetExportsDir()
	}

	logger := infrastructure.NewLogger(cfg.Logging, stderr)
	// One ID correlates every run of a batch in the logs.
	ctx = infrastructure.EnsureRequestID(ctx)

	runOpts, err := o.analysisOptions()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	svc, err := services.NewAnalysisService(cfg.Analysis,
		services.WithLogger(logger),
		services.WithExportsDir(out, o.bom),
		services.WithIngestOptions(ingest.Options{Sheet: o.sheet}),
	)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize analysis: %v\n", err)
		return exitFailure
	}

	validator := validation.NewFileValidator(logger, cfg.Analysis.MaxUploadBytes)
	if !o.noExports {
		if err := validator.ValidateOutputDirectory(out); err != nil {
			fmt.Fprintln(stderr, err)
			return exitFailure
		}
	}

	info, err := os.Stat(o.in)
	if err != nil || !info.IsDir() {
		return analyzeOne(ctx, svc, validator, o, runOpts, o.in, "", stdout, stderr)
	}

	inputs, err := files.NewDiscovery("").FindInputs(o.in)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitBadInput
	}
	if len(inputs) == 0 {
		fmt.Fprintf(stderr, "%s: no .csv, .tsv or .xlsx files found\n", o.in)
		return exitBadInput
	}
	logger.Info("batch analysis", slog.String("dir", o.in), slog.Int("files", len(inputs)))

	code := exitOK
	for _, in := range inputs {
		if c := analyzeOne(ctx, svc, validator, o, runOpts, in.Path, in.Stem(), stdout, stderr); c > code {
			code = c
		}
	}
	return code
}

// analyzeOne runs one input file. A non-empty subdir places its exports in
// that subdirectory of the output directory.
func analyzeOne(ctx context.Context, svc *services.AnalysisService, validator *validation.FileValidator, o *options, runOpts gapanalysis.Options, path, subdir string, stdout, stderr io.Writer) int {
	if err := validator.ValidateInputFile(path); err != nil {
		fmt.Fprintln(stderr, err)
		return exitBadInput
	}

	result, err := svc.AnalyzeFile(ctx, path, runOpts)
	if err != nil {
		return reportError(stderr, path, err)
	}

	if o.printJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result.Response()); err != nil {
			fmt.Fprintf(stderr, "failed to encode report: %v\n", err)
			return exitFailure
		}
	} else {
		printSummary(stdout, result)
	}

	if o.noExports {
		return exitOK
	}
	var paths []string
	if subdir == "" {
		paths, err = svc.SaveExports(ctx, result)
	} else {
		paths, err = svc.SaveExportsTo(ctx, result, subdir)
	}
	if err != nil {
		fmt.Fprintf(stderr, "failed to write exports: %v\n", err)
		return exitFailure
	}
	if !o.printJSON {
		fmt.Fprintln(stdout, "Exports:")
		for _, p := range paths {
			fmt.Fprintf(stdout, "  %s\n", p)
		}
	}
	return exitOK
}

// reportError prints err and maps it to an exit code
func reportError(stderr io.Writer, path string, err error) int {
	var schemaErr *gapanalysis.SchemaError
	if errors.As(err, &schemaErr) {
		fmt.Fprintf(stderr, "%s: missing required fields: %s\n", path, strings.Join(schemaErr.Missing, ", "))
		return exitBadInput
	}
	var optionErr *gapanalysis.OptionError
	var catalogErr *gapanalysis.CatalogError
	if errors.As(err, &optionErr) || errors.As(err, &catalogErr) {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	var apiErr *apierrors.APIError
	var appErr *apierrors.AppError
	if errors.As(err, &apiErr) || errors.As(err, &appErr) {
		fmt.Fprintf(stderr, "%s: %v\n", path, err)
		return exitBadInput
	}
	fmt.Fprintf(stderr, "analysis failed: %v\n", err)
	return exitFailure
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", slog.String("error", err.Error()))
		return config.Default(), nil
	}
	return cfg, nil
}

func (o *options) analysisOptions() (gapanalysis.Options, error) {
	opts := gapanalysis.Options{
		Filter: gapanalysis.Filter{
			Entities:   splitList(o.entities),
			Grades:     splitList(o.grades),
			Components: splitList(o.components),
		},
		Sort:                  o.sort,
		Value:                 o.value,
		Rollup:                o.rollup,
		ShortLabels:           o.shortLabels,
		LabelMaxLength:        o.labelMax,
		IncludeOverAttributed: o.includeOver,
	}
	if o.band != "" {
		band, err := strconv.ParseFloat(o.band, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid -band %q: %w", o.band, err)
		}
		opts.Band = &band
	}
	targets, err := parseTargets(o.targets)
	if err != nil {
		return opts, err
	}
	opts.Targets = targets
	return opts, nil
}

// parseTargets reads "name=percent" pairs separated by commas
func parseTargets(s string) (map[string]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	targets := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid target %q: want name=percent", pair)
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid target %q: %w", pair, err)
		}
		targets[strings.TrimSpace(name)] = pct
	}
	return targets, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printSummary(w io.Writer, result *services.AnalysisResult) {
	s := result.Report.Summary
	fmt.Fprintf(w, "Run %s (%s)\n", result.RunID, result.Source)
	fmt.Fprintf(w, "  Rows: %d total, %d analyzed, %d rejected, %d excluded, %d filtered out\n",
		s.TotalRows, s.AnalyzedRows, s.RejectedRows, s.ExcludedRows, s.FilteredOutRows)
	fmt.Fprintf(w, "  Modules: %d, people: %d, band: ±%.2f pp\n", s.Modules, s.TotalPeople, s.Band)
	fmt.Fprintf(w, "  Gaps: %d under, %d on, %d over, %d no data\n",
		s.Classifications[gapanalysis.ClassUnder], s.Classifications[gapanalysis.ClassOn],
		s.Classifications[gapanalysis.ClassOver], s.Classifications[gapanalysis.ClassNoData])
	fmt.Fprintf(w, "  Health: %d errors, %d warnings, %d info\n",
		s.IssueCounts[gapanalysis.SeverityError], s.IssueCounts[gapanalysis.SeverityWarning],
		s.IssueCounts[gapanalysis.SeverityInfo])
	if len(s.DefaultTargetFields) > 0 {
		fmt.Fprintf(w, "  Default target used for: %s\n", strings.Join(s.DefaultTargetFields, ", "))
	}
}
