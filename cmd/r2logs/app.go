package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/r2logs/internal/config"
	"github.com/justapithecus/r2logs/internal/export"
	"github.com/justapithecus/r2logs/internal/logger"
	"github.com/justapithecus/r2logs/r2logs"
)

// Commands accepted as the last positional argument.
const (
	modeRetrieve = "retrieve"
	modeList     = "list"
)

const (
	flagVerbose            = "verbose"
	flagPretty             = "pretty"
	flagConcurrency        = "concurrency"
	flagLayout             = "layout"
	flagPrefix             = "prefix"
	flagBackend            = "backend"
	flagEndpoint           = "endpoint"
	flagRoot               = "root"
	flagParquet            = "parquet"
	flagParquetCompression = "parquet-compression"
	flagLogLevel           = "log-level"
)

// deps are the process boundaries run depends on.
type deps struct {
	now        func() time.Time
	loadConfig func() (*config.Config, error)
	openStore  func(context.Context, storeParams) (r2logs.Store, error)
}

func defaultDeps() deps {
	return deps{
		now:        time.Now,
		loadConfig: func() (*config.Config, error) { return config.Load() },
		openStore:  openStore,
	}
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, d deps) int {
	app := newApp(stdout, stderr, d)
	if err := app.RunContext(ctx, args); err != nil {
		log := logger.New(stderr, "")
		log.Error().Err(err).Msg("r2logs failed")

		var cfgErr *r2logs.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Field == "environment" {
			log.Warn().Msg("Please set environment variables")
		}
		return 1
	}
	return 0
}

type app struct {
	stdout io.Writer
	stderr io.Writer
	deps   deps
}

func newApp(stdout, stderr io.Writer, d deps) *cli.App {
	a := &app{stdout: stdout, stderr: stderr, deps: d}
	return &cli.App{
		Name:            "r2logs",
		Usage:           "Retrieve Cloudflare Logpush logs stored in R2 for a time range",
		UsageText:       "r2logs [OPTIONS] [START_TIME] [END_TIME] [retrieve|list]",
		Description:     "START_TIME and END_TIME are RFC3339 UTC timestamps, e.g. 2024-01-11T15:00:00Z.\nDefaults: 5 minutes ago and now. The command defaults to retrieve.",
		HideHelpCommand: true,
		Writer:          stdout,
		ErrWriter:       stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagVerbose,
				Aliases: []string{"v"},
				Usage:   "print time range, endpoint and totals to stderr",
			},
			&cli.BoolFlag{
				Name:    flagPretty,
				Aliases: []string{"p"},
				Usage:   "pretty print JSON records",
			},
			&cli.IntFlag{
				Name:  flagConcurrency,
				Usage: "in-flight backend requests (default R2LOGS_CONCURRENCY or 8)",
			},
			&cli.StringFlag{
				Name:  flagLayout,
				Usage: "partition layout, hourly or daily (default R2LOGS_LAYOUT or hourly)",
			},
			&cli.StringFlag{
				Name:  flagPrefix,
				Usage: "key prefix inside the bucket (default R2LOGS_PREFIX)",
			},
			&cli.StringFlag{
				Name:  flagBackend,
				Usage: "storage client: s3, minio or fs (fs needs no R2 credentials)",
				Value: backendS3,
			},
			&cli.StringFlag{
				Name:  flagEndpoint,
				Usage: "override the R2 endpoint (default R2_ENDPOINT or the account endpoint)",
			},
			&cli.StringFlag{
				Name:  flagRoot,
				Usage: "local `DIR` mirroring the bucket, read by the fs backend",
			},
			&cli.StringFlag{
				Name:  flagParquet,
				Usage: "also write records to a parquet `FILE`",
			},
			&cli.StringFlag{
				Name:  flagParquetCompression,
				Usage: "parquet page compression: snappy, gzip, zstd or none",
				Value: "snappy",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "diagnostic log level (default R2LOGS_LOG_LEVEL or info)",
			},
		},
		Action: a.action,
	}
}

func (a *app) action(c *cli.Context) error {
	cfg, err := a.deps.loadConfig()
	if err != nil {
		return err
	}
	// A local mirror needs no bucket credentials.
	if c.String(flagBackend) != backendFS {
		if err := cfg.RequireCredentials(); err != nil {
			return err
		}
	}

	level := cfg.LogLevel
	if c.IsSet(flagLogLevel) {
		level = c.String(flagLogLevel)
	}
	log := logger.New(a.stderr, level)
	verbose := c.Bool(flagVerbose)
	if verbose && log.GetLevel() > zerolog.InfoLevel {
		log = log.Level(zerolog.InfoLevel)
	}

	r, mode, err := parseArgs(c.Args().Slice(), a.deps.now())
	if err != nil {
		return err
	}

	concurrency := cfg.Concurrency
	if c.IsSet(flagConcurrency) {
		concurrency = c.Int(flagConcurrency)
	}
	layout, err := r2logs.ParseLayout(stringFlag(c, flagLayout, cfg.Layout), stringFlag(c, flagPrefix, cfg.Prefix))
	if err != nil {
		return err
	}

	params := storeParams{
		Backend:     c.String(flagBackend),
		R2:          cfg.R2,
		Concurrency: concurrency,
		Root:        c.String(flagRoot),
	}
	if c.IsSet(flagEndpoint) {
		params.R2.Endpoint = c.String(flagEndpoint)
	}

	if verbose {
		log.Info().
			Str("start", r.Start.Format(time.RFC3339)).
			Str("end", r.End.Format(time.RFC3339)).
			Str("command", mode).
			Msg("Retrieving logs")
		event := log.Info().Str("backend", params.Backend).Str("layout", layout.Name())
		if params.Backend == backendFS {
			event = event.Str("root", params.Root)
		} else {
			event = event.Str("endpoint", params.endpoint()).Str("bucket", params.R2.Bucket)
		}
		event.Msg("Using bucket")
	}

	store, err := a.deps.openStore(c.Context, params)
	if err != nil {
		return err
	}

	p, err := r2logs.NewPipeline(store,
		r2logs.WithLayout(layout),
		r2logs.WithConcurrency(concurrency),
		r2logs.WithPretty(c.Bool(flagPretty)),
		r2logs.WithLogger(log),
	)
	if err != nil {
		return err
	}

	sink, closeSink, err := a.openSink(c)
	if err != nil {
		return err
	}

	started := a.deps.now()
	var stats r2logs.Stats
	switch mode {
	case modeList:
		stats, err = p.List(c.Context, r, sink)
	default:
		stats, err = p.Retrieve(c.Context, r, sink)
	}
	if closeErr := closeSink(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	if stats.Objects == 0 {
		log.Warn().Stringer("range", r).Msg("No logs found")
		log.Warn().Msg("Please check time range")
	}
	if verbose {
		event := log.Info().
			Int("objects", stats.Objects).
			Str("size", humanize.Bytes(uint64(stats.Bytes))).
			Dur("elapsed", a.deps.now().Sub(started))
		if mode == modeRetrieve {
			event = event.Str("records", humanize.Comma(stats.Records))
		}
		event.Msg("Done")
	}
	return nil
}

// openSink returns the output sink and a function releasing it. Records go
// to stdout and, with --parquet, to the parquet file as well.
func (a *app) openSink(c *cli.Context) (r2logs.Sink, func() error, error) {
	out := r2logs.NewLineSink(a.stdout)

	path := c.String(flagParquet)
	if path == "" {
		return out, func() error { return nil }, nil
	}

	compression, err := export.ParseCompression(c.String(flagParquetCompression))
	if err != nil {
		return nil, nil, err
	}
	pq, err := export.CreateParquetFile(path, compression)
	if err != nil {
		return nil, nil, err
	}
	return r2logs.MultiSink(out, pq), pq.Close, nil
}

// parseArgs reads [START_TIME] [END_TIME] [COMMAND]. Omitted times default
// to the last DefaultWindow before now.
func parseArgs(args []string, now time.Time) (r2logs.TimeRange, string, error) {
	mode := modeRetrieve
	if n := len(args); n > 0 && (args[n-1] == modeRetrieve || args[n-1] == modeList) {
		mode = args[n-1]
		args = args[:n-1]
	}
	if len(args) > 2 {
		return r2logs.TimeRange{}, "", &r2logs.ConfigError{
			Field:   "arguments",
			Message: fmt.Sprintf("unexpected argument %q", args[2]),
		}
	}

	def := r2logs.DefaultRange(now)
	start, end := def.Start, def.End
	var err error
	if len(args) > 0 {
		if start, err = parseTime("start time", args[0]); err != nil {
			return r2logs.TimeRange{}, "", err
		}
	}
	if len(args) > 1 {
		if end, err = parseTime("end time", args[1]); err != nil {
			return r2logs.TimeRange{}, "", err
		}
	}

	r, err := r2logs.NewTimeRange(start, end)
	if err != nil {
		return r2logs.TimeRange{}, "", err
	}
	return r, mode, nil
}

func parseTime(field, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &r2logs.ConfigError{
			Field:   field,
			Message: fmt.Sprintf("%q is not an RFC3339 timestamp (e.g. 2024-01-11T15:00:00Z)", s),
		}
	}
	return t, nil
}

// stringFlag returns the flag value when given on the command line, or def.
func stringFlag(c *cli.Context, name, def string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	return def
}
