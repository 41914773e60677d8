package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ritzau/module-graph/pkg/config"
	"github.com/ritzau/module-graph/pkg/ddi"
	"github.com/ritzau/module-graph/pkg/logging"
	"github.com/ritzau/module-graph/pkg/metrics"
	"github.com/ritzau/module-graph/pkg/output"
	"github.com/ritzau/module-graph/pkg/pubsub"
	"github.com/ritzau/module-graph/pkg/runner"
	"github.com/ritzau/module-graph/pkg/web"
	"github.com/spf13/cobra"
)

// Exit codes
const (
	exitOK       = 0
	exitFailure  = 1 // Configuration or I/O failure
	exitFindings = 2 // --fail-on-errors and the report has errors
)

// exitError carries the process exit code out of the command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the exit code
func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return exitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exit.err)
		}
		return exit.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFailure
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "module-graph [root]",
		Short: "Analyze C++ module dependencies from compiler DDI files",
		Long: "module-graph scans a build directory for .ddi dependency files, builds the\n" +
			"module dependency graph and reports duplicate providers, missing providers\n" +
			"and circular dependencies. The graph is written as a Graphviz DOT file.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(cmd.Flags(), configPath)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			if len(args) == 1 {
				cfg.Root = args[0]
			}
			return run(cmd.Context(), cfg, stdout)
		},
	}

	defaults := config.Defaults()
	f := cmd.Flags()
	f.StringVar(&configPath, "config", config.DefaultFile, "Config file (TOML)")
	f.StringP("output", "o", defaults["output"].(string), "DOT file to write")
	f.Bool("web", false, "Serve the analysis over HTTP")
	f.IntP("port", "p", defaults["port"].(int), "Port for the web server (only used with --web)")
	f.BoolP("watch", "w", false, "Re-analyze when DDI files change")
	f.Bool("fail-on-errors", false, "Exit with status 2 when missing providers or cycles are found")
	f.String("version-constraint", defaults["version-constraint"].(string), "Accepted DDI format versions (semver constraint)")
	f.Int("cache-size", defaults["cache-size"].(int), "Number of parsed DDI files to cache")
	f.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	f.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	f.String("log-format", defaults["log-format"].(string), "Log format: text or json")

	return cmd
}

func setupLogging(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt)
	if err != nil {
		return err
	}
	if cfg.LogFormat == "json" {
		logging.SetJSONOutput(level)
	} else {
		logging.SetCompactOutput(level)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	if err := setupLogging(cfg); err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	loader, err := ddi.NewLoader(cfg.VersionConstraint, cfg.CacheSize)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher := pubsub.NewSSEPublisher()
	defer publisher.Close()
	recorder := metrics.NewRecorder()

	r := runner.New(cfg.Root, loader, runner.WithPublisher(publisher), runner.WithRecorder(recorder))

	var server *web.Server
	if cfg.Web {
		// Created before the first run so its status is buffered for subscribers
		server = web.NewServer(r, publisher, recorder)
	}

	snap, err := r.Run(ctx, "initial analysis")
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	if err := emit(snap, cfg.Output, stdout); err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	if cfg.Watch {
		err := r.WatchDirectory(ctx, func(s *runner.Snapshot) {
			if err := emit(s, cfg.Output, stdout); err != nil {
				logging.Error("failed to write results", "error", err)
			}
		})
		if err != nil {
			return &exitError{code: exitFailure, err: err}
		}
	}

	switch {
	case server != nil:
		if err := server.Start(ctx, cfg.Port); err != nil {
			return &exitError{code: exitFailure, err: err}
		}
		return nil
	case cfg.Watch:
		<-ctx.Done()
		return nil
	}

	if cfg.FailOnErrors && snap.Report.HasErrors() {
		return &exitError{code: exitFindings}
	}
	return nil
}

// emit writes the DOT file and prints the report
func emit(snap *runner.Snapshot, dotPath string, stdout io.Writer) error {
	if err := os.WriteFile(dotPath, snap.DOT, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dotPath, err)
	}
	logging.Debug("wrote DOT file", "path", dotPath, "bytes", len(snap.DOT))
	return output.PrintReport(stdout, snap.Report)
}
