package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dm/twemcheck/internal/check"
	"github.com/dm/twemcheck/internal/client"
	"github.com/dm/twemcheck/internal/config"
	"github.com/dm/twemcheck/internal/stats"
	"github.com/dm/twemcheck/internal/store"
)

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("check_twemproxy", pflag.ContinueOnError)
	fs.StringP("host", "H", "", "twemproxy host to check (required)")
	fs.IntP("port", "p", config.DefaultPort, "stats port")
	fs.IntP("warning", "w", config.DefaultWarning, "WARNING when more than this many shards are disconnected")
	fs.IntP("critical", "c", config.DefaultCritical, "CRITICAL when more than this many shards are disconnected")
	fs.BoolP("verbose", "v", false, "dump every shard's raw counters after the status line")
	fs.DurationP("timeout", "t", config.DefaultTimeout, "connect/read timeout for the stats port")
	fs.String("cache-dir", "", "directory for the cached snapshot (default: system temp dir)")
	fs.String("config", "", "YAML file with defaults; explicit flags take precedence")
	fs.Bool("debug", false, "log diagnostics to stderr")
	fs.BoolP("help", "?", false, "show usage")
	return fs
}

// buildConfig layers defaults, the optional config file, and explicit
// flags, in that order, then validates the result.
func buildConfig(fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()

	if path, _ := fs.GetString("config"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.Host, _ = fs.GetString("host")
	if fs.Changed("port") {
		cfg.Port, _ = fs.GetInt("port")
	}
	if fs.Changed("warning") {
		cfg.Warning, _ = fs.GetInt("warning")
	}
	if fs.Changed("critical") {
		cfg.Critical, _ = fs.GetInt("critical")
	}
	if fs.Changed("timeout") {
		cfg.Timeout, _ = fs.GetDuration("timeout")
	}
	if fs.Changed("cache-dir") {
		cfg.CacheDir, _ = fs.GetString("cache-dir")
	}
	cfg.Verbose, _ = fs.GetBool("verbose")
	cfg.Debug, _ = fs.GetBool("debug")

	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	return cfg, cfg.Validate()
}

// run performs one check cycle: fetch current counters, load the prior
// baseline, evaluate deltas, persist the new baseline, verdict. Any
// failure surfaces as UNKNOWN so the scheduler always sees one of the four
// plugin exit codes. The returned snapshot feeds the verbose dump.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (check.Status, string, stats.Snapshot) {
	src, err := client.New(client.Config{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return check.StatusUnknown, unknownLine(err), nil
	}

	curr, err := src.Fetch(ctx)
	if err != nil {
		return check.StatusUnknown, unknownLine(err), nil
	}

	cache := store.New(cfg.CacheDir, nil, logger)
	prior, ok, err := cache.Load(cfg.Host)
	if err != nil {
		return check.StatusUnknown, unknownLine(err), curr
	}
	if !ok {
		logger.Debug("no usable baseline, this run establishes one")
	}

	tally := check.Evaluate(curr, prior)

	if err := cache.Save(cfg.Host, curr); err != nil {
		return check.StatusUnknown, unknownLine(err), curr
	}

	status := check.Verdict(tally, cfg.Warning, cfg.Critical)
	logger.Debug("evaluated",
		zap.Int("disconnects", tally.Disconnects),
		zap.Int("timeouts", tally.Timeouts),
		zap.Strings("clusters", tally.Clusters),
		zap.String("status", status.String()))
	return status, check.Report(cfg.Host, tally, status), curr
}

func unknownLine(err error) string {
	return fmt.Sprintf("TWEMPROXY UNKNOWN : %v", err)
}

func usage(fs *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintln(os.Stderr, "usage: check_twemproxy -H HOST [-p PORT] [-w COUNT] [-c COUNT] [-t TIMEOUT] [-v]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprint(os.Stderr, fs.FlagUsages())
	}
}

func main() {
	fs := newFlagSet()
	fs.SetOutput(os.Stderr)
	fs.Usage = usage(fs)

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fs.Usage()
		os.Exit(check.StatusUnknown.ExitCode())
	}
	if help, _ := fs.GetBool("help"); help {
		fs.Usage()
		os.Exit(check.StatusUnknown.ExitCode())
	}

	cfg, err := buildConfig(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fs.Usage()
		os.Exit(check.StatusUnknown.ExitCode())
	}

	logger := zap.NewNop()
	if cfg.Debug {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}

	status, line, snap := run(context.Background(), cfg, logger)

	fmt.Println(line)
	if cfg.Verbose && snap != nil {
		check.VerboseDump(os.Stdout, snap)
	}

	_ = logger.Sync()
	os.Exit(status.ExitCode())
}
