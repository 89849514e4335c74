package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/ritzau/pipegraph/pkg/config"
	"github.com/ritzau/pipegraph/pkg/engine"
	"github.com/ritzau/pipegraph/pkg/logging"
	"github.com/ritzau/pipegraph/pkg/model"
	"github.com/ritzau/pipegraph/pkg/output"
	"github.com/ritzau/pipegraph/pkg/snapshot"
	"github.com/ritzau/pipegraph/pkg/watcher"
	"github.com/ritzau/pipegraph/pkg/web"
)

const watchQuietPeriod = 200 * time.Millisecond

func main() {
	os.Exit(run(os.Args[1:]))
}

func newFlagSet() *pflag.FlagSet {
	f := pflag.NewFlagSet("pipegraph", pflag.ContinueOnError)
	f.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pipegraph [flags] <pipeline.json|pipeline.hcl>\n\n")
		f.PrintDefaults()
	}

	f.StringP("platform", "p", string(model.PlatformSSIS), "Platform for new pipelines (ssis, adf, databricks)")
	f.Int64("rows", 1_000_000, "Nominal rows entering every source when simulating")
	f.Bool("simulate", false, "Estimate duration, memory and cost")
	f.Bool("preview", false, "Propagate sample rows through the pipeline")
	f.Bool("web", false, "Serve the editing API instead of printing a report")
	f.Int("port", 8080, "Port for the web server (only used with --web)")
	f.Bool("watch", false, "Re-run when the pipeline file changes")
	f.Int("history", 50, "Undo history capacity")
	f.String("state", "", "Working pipeline file kept up to date by the web server")
	f.Bool("json-logs", false, "Log as JSON")
	f.String("verbosity", "", "Log level (trace, debug, info, warn, error); overrides -v")
	f.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	return f
}

func run(args []string) int {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if err := setupLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := flags.Arg(0)
	if cfg.Web {
		if err := serve(ctx, cfg, path, flags.Changed("platform")); err != nil {
			logging.Error("web server stopped", "error", err)
			return 1
		}
		return 0
	}

	if path == "" {
		flags.Usage()
		return 2
	}
	return report(ctx, cfg, path, flags.Changed("platform"))
}

func setupLogging(cfg *config.Config) error {
	level := logging.LevelFromVerbosity(cfg.Verbose)
	if cfg.Verbosity != "" {
		l, err := logging.ParseLevel(cfg.Verbosity)
		if err != nil {
			return err
		}
		level = l
	}
	logging.Setup(logging.Options{Level: level, JSON: cfg.JSONLogs, Color: !color.NoColor})
	return nil
}

// loadPipeline reads path. A platform given explicitly on the command line
// must agree with the one stored in the file.
func loadPipeline(cfg *config.Config, path string, platformSet bool) (*model.Graph, model.Platform, error) {
	g, p, err := snapshot.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	if platformSet && p != cfg.PlatformTag() {
		return nil, "", fmt.Errorf("%s is a %s pipeline, not %s", path, p, cfg.PlatformTag())
	}
	logging.Debug("loaded pipeline", "path", path, "platform", p, "nodes", len(g.Nodes), "edges", len(g.Edges))
	return g, p, nil
}

// report prints the validation report and the requested extras. It returns
// the exit code: 1 when the pipeline has blocking errors or cannot be read.
func report(ctx context.Context, cfg *config.Config, path string, platformSet bool) int {
	session := engine.New(cfg.PlatformTag(), cfg.History)

	once := func() int {
		g, p, err := loadPipeline(cfg, path, platformSet)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		session.Load(g, p)
		return printReport(cfg, path, session)
	}

	code := once()
	if !cfg.Watch {
		return code
	}

	err := watcher.Watch(ctx, path, watchQuietPeriod, func(ev watcher.ChangeEvent) {
		if ev.Kind == watcher.ChangeRemoved {
			logging.Warn("pipeline file removed, waiting for it to come back", "path", ev.Path)
			return
		}
		fmt.Println()
		once()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return code
}

func printReport(cfg *config.Config, path string, session *engine.Session) int {
	results := session.Results()
	output.PrintValidationReport(os.Stdout, path, session.Platform(), results)

	if cfg.Simulate {
		res, err := session.Simulate(cfg.Rows)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Simulation skipped: %v\n", err)
		} else {
			output.PrintSimulationReport(os.Stdout, session.Graph(), res)
		}
	}
	if cfg.Preview {
		output.PrintPreviewReport(os.Stdout, session.Preview())
	}

	if model.HasBlocking(results) {
		return 1
	}
	return 0
}

// serve runs the editing API. The session starts from the pipeline file when
// one is given, otherwise from the state file, otherwise empty.
func serve(ctx context.Context, cfg *config.Config, path string, platformSet bool) error {
	session := engine.New(cfg.PlatformTag(), cfg.History)

	var store *snapshot.FileStore
	if cfg.State != "" {
		store = &snapshot.FileStore{Path: cfg.State}
	}

	switch {
	case path != "":
		g, p, err := loadPipeline(cfg, path, platformSet)
		if err != nil {
			return err
		}
		session.Load(g, p)
	case store != nil:
		g, p, err := store.Load()
		switch {
		case err == nil:
			session.Load(g, p)
		case errors.Is(err, os.ErrNotExist):
			logging.Info("starting with an empty pipeline", "state", store.Path)
		default:
			logging.Warn("starting with an empty pipeline", "state", store.Path, "error", err)
		}
	}

	server := web.NewServer(session, web.Options{Rows: cfg.Rows, Store: store})
	defer server.Close()

	if cfg.Watch && path != "" {
		go func() {
			err := watcher.Watch(ctx, path, watchQuietPeriod, func(ev watcher.ChangeEvent) {
				if ev.Kind == watcher.ChangeRemoved {
					return
				}
				g, p, err := loadPipeline(cfg, path, platformSet)
				if err != nil {
					logging.Warn("ignoring unreadable pipeline", "path", path, "error", err)
					return
				}
				server.Reload(g, p)
				logging.Info("reloaded pipeline", "path", path)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logging.Error("watcher stopped", "error", err)
			}
		}()
	}

	errc := make(chan error, 1)
	go func() { errc <- server.Start(cfg.Port) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		logging.Info("shutting down")
		return nil
	}
}
