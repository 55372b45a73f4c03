package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	hifi "github.com/mattkeenan/hifi/pkg"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func defineOptions() *ParsedOptions {
	options := NewParsedOptions()
	options.DefineOption("help", "h", OptionTypeBool, "false", "Show help message")
	options.DefineOption("version", "", OptionTypeBool, "false", "Show version information")
	options.DefineOption("verbose", "v", OptionTypeCount, "0", "Increase verbosity (repeat for more: -vvv)")
	options.DefineOption("config", "c", OptionTypeString, "", "Configuration directory (default ~/.config/hifi)")
	options.DefineOption("db", "", OptionTypeString, "", "Index database file")
	options.DefineOption("format", "f", OptionTypeString, "", "Output format (human|json|fdupes)")
	options.DefineOption("debug", "", OptionTypeString, "", "Debug flags (scan,hash,query,store,watch)")
	options.DefineOption("hash-workers", "j", OptionTypeInt, "", "Number of files hashed concurrently")
	options.DefineOption("metrics-file", "", OptionTypeString, "", "Write metrics to this node_exporter textfile on exit")
	options.DefineOption("log-file", "", OptionTypeString, "", "Also write JSON logs to this rotated file")
	options.DefineOption("set", "", OptionTypeString, "", "Override config values (key:value,key:value)")
	options.DefineOption("no-refresh", "", OptionTypeBool, "false", "Query the index without refreshing the given paths first")
	options.DefineOption("no-color", "", OptionTypeBool, "false", "Disable colored event output")
	options.DefineOption("runs", "", OptionTypeInt, "5", "Number of recent scans shown by info database")
	return options
}

func main() {
	options := defineOptions()
	if err := options.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "hifi: %v\n", err)
		fmt.Fprintf(os.Stderr, "Try 'hifi --help' for more information.\n")
		os.Exit(1)
	}

	if options.GetBool("version") {
		fmt.Printf("hifi %s\n", version)
		return
	}

	args := options.GetArgs()
	if options.GetBool("help") || len(args) == 0 || args[0] == "help" {
		showHelp(options)
		return
	}

	os.Exit(run(options, args))
}

// run executes one command and returns the process exit status
func run(options *ParsedOptions, args []string) int {
	cfg, err := loadConfig(options)
	if err != nil {
		return fail(err)
	}

	all := cfg.GetAllConfig()
	hifi.SetVerboseLevel(max(all.Verbose.Level, options.GetInt("verbose")))
	hifi.InitDebugFlags(all.Verbose.Debug)
	if err := hifi.InitLogging(hifi.LogConfig{
		File:       all.Log.File,
		MaxSize:    all.Log.MaxSize,
		MaxBackups: all.Log.MaxBackups,
		MaxAge:     all.Log.MaxAge,
	}); err != nil {
		return fail(err)
	}
	defer hifi.SyncLogging()

	if options.GetBool("no-color") {
		disableColor()
	}

	ctx, cancel := setupSignalContext(context.Background())
	defer cancel()

	x, err := hifi.OpenIndex(cfg, newEventSink(os.Stderr, hifi.GetVerboseLevel()))
	if err != nil {
		return fail(err)
	}

	cmdErr := dispatch(ctx, x, options, args)
	if err := x.Close(); err != nil && cmdErr == nil {
		cmdErr = err
	}
	if cmdErr != nil {
		return fail(cmdErr)
	}
	return 0
}

// loadConfig reads the config directory and applies command-line overrides
func loadConfig(options *ParsedOptions) (*hifi.Config, error) {
	configDir := options.GetString("config")
	if configDir == "" {
		dir, err := hifi.DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}
	cfg, err := hifi.LoadConfig(configDir)
	if err != nil {
		return nil, err
	}

	var overrides []string
	if set := options.GetString("set"); set != "" {
		overrides = append(overrides, strings.Split(set, ",")...)
	}
	optionKeys := []struct{ option, key string }{
		{"db", "path"},
		{"format", "format"},
		{"debug", "debug"},
		{"hash-workers", "hash_workers"},
		{"metrics-file", "textfile"},
		{"log-file", "file"},
	}
	for _, ok := range optionKeys {
		if options.IsSet(ok.option) {
			overrides = append(overrides, ok.key+":"+options.GetString(ok.option))
		}
	}
	if err := cfg.ApplyOverrides(overrides); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func dispatch(ctx context.Context, x *hifi.Index, options *ParsedOptions, args []string) error {
	reporter, err := hifi.NewReporter(os.Stdout, x.Config.GetOutputConfig().Format)
	if err != nil {
		return err
	}

	command, rest := args[0], args[1:]
	switch command {
	case "info":
		return handleInfoCommand(ctx, x, reporter, options, rest)
	case "scan":
		return handleScanCommand(ctx, x, reporter, rest)
	case "clean":
		return handleCleanCommand(ctx, x, rest)
	case "find":
		return handleFindCommand(ctx, x, reporter, options, rest)
	case "watch":
		return handleWatchCommand(ctx, x, reporter, rest)
	case "export":
		return handleExportCommand(ctx, x, rest)
	default:
		return usageError{fmt.Sprintf("unknown command '%s'", command)}
	}
}

func handleInfoCommand(ctx context.Context, x *hifi.Index, reporter *hifi.Reporter, options *ParsedOptions, args []string) error {
	if len(args) == 0 {
		return usageError{"info requires a subcommand: database | path P"}
	}
	switch args[0] {
	case "database", "db":
		info, err := x.DatabaseInfo(ctx, options.GetInt("runs"))
		if err != nil {
			return err
		}
		return reporter.DatabaseInfo(info)
	case "path":
		if len(args) < 2 {
			return usageError{"info path requires a path"}
		}
		for _, p := range args[1:] {
			info, err := x.Query.PathInfo(ctx, p)
			if err != nil {
				return err
			}
			if err := reporter.PathInfo(info); err != nil {
				return err
			}
		}
		return nil
	default:
		return usageError{fmt.Sprintf("unknown info subcommand '%s'", args[0])}
	}
}

func handleScanCommand(ctx context.Context, x *hifi.Index, reporter *hifi.Reporter, args []string) error {
	if len(args) == 0 {
		return usageError{"scan requires at least one path"}
	}
	for _, p := range args {
		run, err := x.Indexer.Refresh(ctx, p)
		if err != nil {
			return err
		}
		if err := reporter.ScanRun(run); err != nil {
			return err
		}
	}
	return nil
}

func handleCleanCommand(ctx context.Context, x *hifi.Index, args []string) error {
	removed, err := x.Indexer.Cleanup(ctx, args...)
	if err != nil {
		return err
	}
	hifi.VerboseLog(1, "Removed %s records", hifi.FormatCount(removed))
	return nil
}

func handleFindCommand(ctx context.Context, x *hifi.Index, reporter *hifi.Reporter, options *ParsedOptions, args []string) error {
	if len(args) == 0 {
		return usageError{"find requires a subcommand: dupes | unique P | common P1 P2 | same FILE"}
	}
	refresh := !options.GetBool("no-refresh")
	sub, paths := args[0], args[1:]

	switch sub {
	case "dupes", "duplicates":
		if refresh && len(paths) > 0 {
			if _, err := x.Sync(ctx, paths...); err != nil {
				return err
			}
		}
		groups, err := collectSeq(x.Query.Duplicates(ctx))
		if err != nil {
			return err
		}
		return reporter.Duplicates(groups)

	case "unique":
		if len(paths) != 1 {
			return usageError{"find unique requires exactly one path"}
		}
		if refresh {
			if _, err := x.Sync(ctx, paths[0]); err != nil {
				return err
			}
		}
		unique, err := collectSeq(x.Query.Unique(ctx, paths[0]))
		if err != nil {
			return err
		}
		return reporter.Paths(unique)

	case "common":
		if len(paths) != 2 {
			return usageError{"find common requires exactly two paths"}
		}
		if refresh {
			if _, err := x.Sync(ctx, paths...); err != nil {
				return err
			}
		}
		pairs, err := collectSeq(x.Query.Common(ctx, paths[0], paths[1]))
		if err != nil {
			return err
		}
		return reporter.Common(pairs)

	case "same":
		if len(paths) != 1 {
			return usageError{"find same requires exactly one file"}
		}
		same, err := x.Query.FindSame(ctx, x.Hasher, paths[0])
		if err != nil {
			return err
		}
		return reporter.Paths(same)

	default:
		return usageError{fmt.Sprintf("unknown find subcommand '%s'", sub)}
	}
}

func handleWatchCommand(ctx context.Context, x *hifi.Index, reporter *hifi.Reporter, args []string) error {
	if len(args) != 1 {
		return usageError{"watch requires exactly one directory"}
	}
	w, err := hifi.NewWatcher(x.Indexer, args[0], x.Config.GetWatchConfig().Debounce)
	if err != nil {
		return err
	}
	w.OnFlush = func(runs []*hifi.ScanRun, removed int) {
		if err := reportChangedRuns(reporter, runs); err != nil {
			hifi.Warnf("%v", err)
		}
		if removed > 0 {
			hifi.VerboseLog(1, "Removed %s records", hifi.FormatCount(removed))
		}
		if textfile := x.Config.GetMetricsConfig().Textfile; textfile != "" {
			if err := x.Metrics.WriteTextfile(textfile); err != nil {
				hifi.Warnf("failed to write metrics: %v", err)
			}
		}
	}
	return w.Run(ctx)
}

// reportChangedRuns prints the runs that added or updated records
func reportChangedRuns(reporter *hifi.Reporter, runs []*hifi.ScanRun) error {
	for _, run := range runs {
		if run.Added+run.Updated == 0 {
			continue
		}
		if err := reporter.ScanRun(run); err != nil {
			return fmt.Errorf("failed to report scan of %s: %w", run.Root, err)
		}
	}
	return nil
}

func handleExportCommand(ctx context.Context, x *hifi.Index, args []string) error {
	if len(args) != 1 {
		return usageError{"export requires exactly one output file"}
	}
	n, err := x.Export(ctx, args[0])
	if err != nil {
		return err
	}
	hifi.VerboseLog(1, "Exported %s records to %s", hifi.FormatCount(n), args[0])
	return nil
}

// usageError is a command-line mistake; it prints a hint to --help
type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

// fail reports err on stderr and returns the exit status
func fail(err error) int {
	var nf *hifi.NotFoundError
	var ue usageError
	switch {
	case errors.As(err, &nf):
		fmt.Fprintf(os.Stderr, "hifi: Path not found: %s\n", nf.Path)
	case errors.As(err, &ue):
		fmt.Fprintf(os.Stderr, "hifi: %v\n", err)
		fmt.Fprintf(os.Stderr, "Try 'hifi --help' for more information.\n")
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(os.Stderr, "hifi: interrupted\n")
	default:
		fmt.Fprintf(os.Stderr, "hifi: %v\n", err)
	}
	return 1
}

func showHelp(options *ParsedOptions) {
	fmt.Printf("hifi - incremental file hash index\n\n")
	fmt.Printf("Usage: hifi [OPTIONS] <command> [args...]\n\n")

	fmt.Printf("COMMANDS:\n")
	fmt.Printf("  info database          Summary of the whole index\n")
	fmt.Printf("  info path P...         Summary of the records under P\n")
	fmt.Printf("  scan P...              Refresh the index for P\n")
	fmt.Printf("  clean [P...]           Drop records whose file is gone (all records without P)\n")
	fmt.Printf("  find dupes [P...]      Groups of files with identical content\n")
	fmt.Printf("  find unique P          Files under P with no copy outside P\n")
	fmt.Printf("  find common P1 P2      Pairs of identical files under P1 and P2\n")
	fmt.Printf("  find same FILE         Indexed files identical to FILE\n")
	fmt.Printf("  watch P                Keep the index of P current until interrupted\n")
	fmt.Printf("  export FILE            Write every record to FILE as JSON lines\n\n")

	fmt.Printf("OPTIONS:\n")
	options.ShowUsage(os.Stdout)

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  hifi scan ~/photos ~/backup          # Index two trees\n")
	fmt.Printf("  hifi find unique ~/photos            # Photos missing from every other tree\n")
	fmt.Printf("  hifi -f fdupes find dupes             # fdupes-compatible duplicate list\n")
	fmt.Printf("  hifi --set=default:sha256 scan /srv  # New index hashed with SHA-256\n")
}
