// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-sql runs statements against a SQLite database through the
// pooled session stack, and writes query results to compressed,
// checksummed export files.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/sqlsession/lib/config"
	"github.com/bureau-foundation/sqlsession/lib/process"
	"github.com/bureau-foundation/sqlsession/lib/sqlitedb"
	"github.com/bureau-foundation/sqlsession/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, newLogger(os.Stderr)); err != nil {
		process.Fatal(err)
	}
}

// newLogger writes text records to a terminal and JSON records
// otherwise.
func newLogger(stderr *os.File) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(stderr.Fd())) {
		return slog.New(slog.NewTextHandler(stderr, options))
	}
	return slog.New(slog.NewJSONHandler(stderr, options))
}

// options holds the parsed command line.
type options struct {
	configPath     string
	databasePath   string
	readOnly       bool
	wal            bool
	create         bool
	maxConnections int
	windowSize     int
	output         string
	compression    string
	diagnose       bool
	showVersion    bool
	help           bool
}

func newFlagSet(opts *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("bureau-sql", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&opts.configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+" if set)")
	flagSet.StringVar(&opts.databasePath, "db", "", "database file (empty opens a temporary database)")
	flagSet.BoolVar(&opts.readOnly, "read-only", false, "open the database read-only")
	flagSet.BoolVar(&opts.wal, "wal", true, "use write-ahead logging")
	flagSet.BoolVar(&opts.create, "create", true, "create the database file if it does not exist")
	flagSet.IntVar(&opts.maxConnections, "max-connections", 0, "maximum secondary connections (0 for the pool default)")
	flagSet.IntVar(&opts.windowSize, "window-size", 0, "cursor window size in bytes (0 for the configured size)")
	flagSet.StringVarP(&opts.output, "output", "o", "", "export destination file (- for stdout)")
	flagSet.StringVar(&opts.compression, "compression", "", "export compression: none, lz4, or zstd")
	flagSet.BoolVar(&opts.diagnose, "diagnose", false, "inspect: also print the export header in CBOR diagnostic notation")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")
	return flagSet
}

func run(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	var opts options
	flagSet := newFlagSet(&opts)
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if opts.showVersion {
		return version.Print(stdout)
	}
	if opts.help || flagSet.NArg() == 0 {
		printHelp(stdout, flagSet)
		return nil
	}

	cfg, err := loadConfig(flagSet, &opts)
	if err != nil {
		return err
	}

	command, commandArgs := flagSet.Arg(0), flagSet.Args()[1:]
	logger = logger.With("command", command)
	switch command {
	case "inspect":
		// Reads an export file; no database involved.
		return runInspect(commandArgs, opts.diagnose, stdout)
	case "exec", "query", "validate", "export":
	default:
		return fmt.Errorf("unknown command %q (want exec, query, validate, export, or inspect)", command)
	}

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("closing database", "error", closeErr)
		}
	}()

	switch command {
	case "exec":
		return runExec(ctx, db, commandArgs)
	case "query":
		return runQuery(ctx, db, commandArgs, stdout)
	case "validate":
		return runValidate(ctx, db, commandArgs, stdout)
	default:
		return runExport(ctx, db, commandArgs, cfg.Export.Compression, opts.output, stdout, logger)
	}
}

// loadConfig starts from --config, then $BUREAU_SQL_CONFIG, then the
// built-in defaults, and applies any flags given explicitly.
func loadConfig(flagSet *pflag.FlagSet, opts *options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if flagSet.Changed("db") {
		cfg.Database.Path = opts.databasePath
	}
	if flagSet.Changed("read-only") {
		cfg.Database.ReadOnly = opts.readOnly
	}
	if flagSet.Changed("wal") {
		cfg.Database.WAL = opts.wal
	}
	if flagSet.Changed("create") {
		cfg.Database.Create = opts.create
	}
	if flagSet.Changed("max-connections") {
		cfg.Database.MaxSecondaryConnections = opts.maxConnections
	}
	if opts.windowSize != 0 {
		cfg.Cursor.WindowSize = opts.windowSize
	}
	if opts.compression != "" {
		cfg.Export.Compression = opts.compression
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openDatabase(cfg *config.Config, logger *slog.Logger) (*sqlitedb.Database, error) {
	poolConfig, err := cfg.PoolConfig(logger)
	if err != nil {
		return nil, err
	}
	db, err := sqlitedb.Open(poolConfig)
	if err != nil {
		return nil, err
	}
	db.SetCursorWindowSize(cfg.Cursor.WindowSize)
	return db, nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprint(w, `bureau-sql runs SQL against a SQLite database.

Usage:
  bureau-sql [flags] exec SQL [ARG...]       run a statement
  bureau-sql [flags] query SQL [ARG...]      print the rows of a query
  bureau-sql [flags] validate SQL            compile a statement without running it
  bureau-sql [flags] export SQL [ARG...]     write query rows to --output
  bureau-sql [--diagnose] inspect FILE       describe and verify an export file

Flags come before the command. Arguments after the SQL are bound to
? placeholders in order.

Examples:
  bureau-sql --db app.db exec "CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)"
  bureau-sql --db app.db exec "INSERT INTO notes (body) VALUES (?)" "hello"
  bureau-sql --db app.db --read-only query "SELECT * FROM notes WHERE id > ?" 10
  bureau-sql --db app.db -o notes.export --compression lz4 export "SELECT * FROM notes"

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
