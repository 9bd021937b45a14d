// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/poiesic/skimap"
	"github.com/poiesic/skimap/config"
	"github.com/poiesic/skimap/core"
	"github.com/poiesic/skimap/featurefile"
	"github.com/poiesic/skimap/importer"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "skimap",
		Usage: "Import and search ski areas, lifts and runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "skimap.yaml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to .env file (defaults to ./.env if present)",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Feature store backend (badger, memory, postgres)",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Import GeoJSON files as a new dataset and purge the previous one",
				ArgsUsage: "FILE...",
				Action:    importCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Number of concurrent upserts per file (0 uses the config value)",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N features",
						Value: importer.DefaultReportInterval,
					},
					&cli.StringFlag{
						Name:  "import-id",
						Usage: "Import id to tag features with (generated if empty)",
					},
					&cli.BoolFlag{
						Name:  "no-purge",
						Usage: "Keep features of previous imports",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Input format (auto, collection, sequence)",
						Value: "auto",
					},
					&cli.StringFlag{
						Name:  "metrics-textfile",
						Usage: "Write import metrics in Prometheus text format to this file",
					},
				},
			},
			{
				Name:   "purge",
				Usage:  "Remove every feature not written by an import",
				Action: purgeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "import-id",
						Usage:    "Import id to keep",
						Required: true,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search features by name or place",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results (0 uses the config value)",
					},
					&cli.BoolFlag{
						Name:  "geojson",
						Usage: "Print results as a GeoJSON FeatureCollection",
					},
				},
			},
			{
				Name:      "get",
				Usage:     "Print a feature as GeoJSON",
				ArgsUsage: "ID",
				Action:    getCommand,
			},
		},
	}
}

// loadConfig reads the config file, the .env file and the environment, then
// applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadEnvFile(c.String("env-file")); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if backend := c.String("backend"); backend != "" {
		cfg.Backend = config.Backend(backend)
	}
	if path := c.String("db"); path != "" {
		cfg.Badger.Path = path
	}
	return cfg, cfg.Validate()
}

func openDatabase(c *cli.Context) (*skimap.Database, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	db, err := skimap.Open(c.Context, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func parseFormat(s string) (featurefile.Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return featurefile.FormatAuto, nil
	case "collection":
		return featurefile.FormatCollection, nil
	case "sequence":
		return featurefile.FormatSequence, nil
	default:
		return featurefile.FormatAuto, fmt.Errorf("invalid format %q: must be one of auto, collection, sequence", s)
	}
}

func importCommand(c *cli.Context) error {
	ctx := c.Context

	// Validate flags
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("at least one input file is required")
	}
	if c.Int("report-interval") <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if c.Int("concurrency") < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	format, err := parseFormat(c.String("format"))
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []importer.Option{
		importer.WithProgress(c.App.ErrWriter, c.Int("report-interval")),
	}
	if n := c.Int("concurrency"); n > 0 {
		opts = append(opts, importer.WithConcurrency(n))
	}
	pipeline, err := db.NewImportPipeline(opts...)
	if err != nil {
		return fmt.Errorf("failed to create import pipeline: %w", err)
	}
	defer pipeline.Release()

	sources := make([]importer.Source, len(paths))
	for i, path := range paths {
		sources[i] = featurefile.Open(path, featurefile.WithFormat(format))
	}

	importID := c.String("import-id")
	if importID == "" {
		importID = importer.NewImportID()
	}

	fmt.Fprintf(c.App.ErrWriter, "Backend: %s\n", db.Config().Backend)
	fmt.Fprintf(c.App.ErrWriter, "Import id: %s\n", importID)
	fmt.Fprintf(c.App.ErrWriter, "Files: %s\n", strings.Join(paths, ", "))
	fmt.Fprintln(c.App.ErrWriter)

	var result *importer.Result
	if c.Bool("no-purge") {
		result, err = pipeline.Import(ctx, sources, importID)
	} else {
		result, err = pipeline.Run(ctx, sources, importID)
	}

	if path := c.String("metrics-textfile"); path != "" {
		if werr := db.Metrics().WriteTextfile(path); werr != nil {
			slog.Error("error writing metrics textfile", "path", path, "err", werr)
		}
	}

	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	for _, source := range result.PerSource {
		fmt.Fprintf(c.App.ErrWriter, "%s: %d imported, %d skipped\n", source.Name, source.Upserted, source.Skipped)
	}
	fmt.Fprintf(c.App.ErrWriter, "Imported %d features (%d skipped, %d removed) in %s\n",
		result.Upserted, result.Skipped, result.Removed, result.Duration.Round(time.Millisecond))
	fmt.Fprintln(c.App.Writer, result.ImportID)
	return nil
}

func purgeCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.RemoveExceptImport(c.Context, c.String("import-id"))
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	fmt.Fprintf(c.App.ErrWriter, "Removed %d features\n", removed)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a search query is required")
	}
	if c.Int("limit") < 0 {
		return fmt.Errorf("limit must not be negative")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	limit := c.Int("limit")
	if limit == 0 {
		limit = db.Config().Search.DefaultLimit
	}

	results, err := db.Search(c.Context, query, limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if c.Bool("geojson") {
		fc := geojson.NewFeatureCollection()
		for _, result := range results {
			fc.Append(core.ToGeoJSON(result.Feature))
		}
		return writeJSON(c, fc)
	}

	for _, result := range results {
		base := result.Feature.Base()
		fmt.Fprintf(c.App.Writer, "%.4f\t%s\t%s\t%s\n", result.Score, result.Feature.Type(), base.ID, base.Name)
	}
	return nil
}

func getCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("a feature id is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	feature, err := db.Get(c.Context, id)
	if err != nil {
		return err
	}
	return writeJSON(c, core.ToGeoJSON(feature))
}

func writeJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
