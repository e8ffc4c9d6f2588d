package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/docvellum/vellum/backend"
	"github.com/docvellum/vellum/cache"
	"github.com/docvellum/vellum/cache/l1"
	"github.com/docvellum/vellum/cache/l2"
	"github.com/docvellum/vellum/checkpoint"
	"github.com/docvellum/vellum/config"
	"github.com/docvellum/vellum/dedup"
	"github.com/docvellum/vellum/dispatch"
	"github.com/docvellum/vellum/errs"
	"github.com/docvellum/vellum/fault"
	"github.com/docvellum/vellum/manifest"
	"github.com/docvellum/vellum/output"
	"github.com/docvellum/vellum/parser"
	"github.com/docvellum/vellum/prefetch"
	"github.com/docvellum/vellum/progress"
	"github.com/docvellum/vellum/stage"
)

// RunOptions are the handful of per-invocation knobs §6's config surface
// leaves to the command line: which config to load, whether to resume,
// and this node's identity in a multi-node run.
type RunOptions struct {
	ConfigPath       string
	Resume           bool
	NodeIndex        int
	ManifestOverride string
}

// ExitError pins the exact process exit code a startup failure should
// produce. §6's table assigns distinct codes to configuration errors (1),
// an unreadable manifest (2), and catastrophic startup failures such as
// L1 initialization (3) — the last two both classify as errs.IO, so the
// code can't be derived from Class alone. Run attaches the code
// explicitly at the one place that knows which startup step failed.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// defaultPrefetchWindow is the read-ahead size the dispatcher's prefetch
// window keeps hot, independent of the worker-pool chunk size.
const defaultPrefetchWindow = 64

// Run loads cfg, builds every collaborator Dispatcher needs, and drives
// this node's share of the manifest to completion, returning the final
// run report.
func Run(ctx context.Context, opts RunOptions, logger *zap.SugaredLogger) (progress.RunReport, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return progress.RunReport{}, &ExitError{Code: 1, Err: err}
	}
	if opts.ManifestOverride != "" {
		cfg.ManifestPath = opts.ManifestOverride
	}

	entries, err := manifest.Load(cfg.ManifestPath)
	if err != nil {
		return progress.RunReport{}, &ExitError{Code: 2, Err: errs.New(errs.IO, "cli: load manifest", err)}
	}
	entries = dispatch.ForNode(entries, opts.NodeIndex, cfg.NumLocales)

	mask, err := cfg.StageMask()
	if err != nil {
		return progress.RunReport{}, &ExitError{Code: 1, Err: err}
	}

	l1Store, err := l1.Open(filepath.Join(cfg.CacheDir, "cache.db"), l1.DefaultOptions())
	if err != nil {
		return progress.RunReport{}, &ExitError{Code: 3, Err: errs.New(errs.IO, "cli: open l1 cache", err)}
	}
	defer l1Store.Close()

	var l2Store *l2.Store
	if cfg.L2Address != "" {
		l2Store = l2.Dial(l2.Options{Addr: cfg.L2Address})
		defer l2Store.Close()
	}
	resultCache := cache.New(l1Store, l2Store, logger)

	backends := backend.Discover(ctx, cfg.GPULibraryPath, cfg.ModelDir)
	defer backends.Close(ctx)

	journal, err := checkpoint.Open(cfg.ResolvedCheckpointPath(), cfg.CheckpointIntervalDocs)
	if err != nil {
		return progress.RunReport{}, &ExitError{Code: 3, Err: errs.New(errs.IO, "cli: open checkpoint journal", err)}
	}
	defer journal.Close()

	skip := map[string]bool{}
	if opts.Resume {
		skip, err = checkpoint.Load(cfg.ResolvedCheckpointPath())
		if err != nil {
			return progress.RunReport{}, &ExitError{Code: 3, Err: errs.New(errs.IO, "cli: load checkpoint for resume", err)}
		}
	}

	format, err := output.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return progress.RunReport{}, &ExitError{Code: 1, Err: errs.New(errs.Configuration, "cli: output format", err)}
	}
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = fmt.Sprintf("node-%d", opts.NodeIndex)
	}
	writer := output.New(output.Options{OutputDir: cfg.OutputDir, NodeID: nodeID, Format: format})
	defer writer.Close()

	stopFlush := make(chan struct{})
	go writer.Run(stopFlush)
	defer close(stopFlush)

	counters := progress.NewCounters()
	reporter, err := progress.NewReporter(nodeID, counters, cfg.NATSAddress, "vellum.progress", cfg.ProgressInterval())
	if err != nil {
		return progress.RunReport{}, &ExitError{Code: 1, Err: errs.New(errs.Configuration, "cli: build progress reporter", err)}
	}
	if err := reporter.Subscribe(); err != nil {
		logger.Warnw("progress heartbeat subscription failed, continuing node-local only", "error", err)
	}
	stopReport := make(chan struct{})
	go reporter.Run(stopReport)
	defer close(stopReport)
	defer reporter.Close()

	window, err := prefetch.NewWindow(defaultPrefetchWindow, 2*time.Hour, defaultPrefetchWindow)
	if err != nil {
		return progress.RunReport{}, &ExitError{Code: 1, Err: errs.New(errs.Configuration, "cli: build prefetch window", err)}
	}

	d := dispatch.New(dispatch.Options{
		NodeIndex:     opts.NodeIndex,
		NumNodes:      cfg.NumLocales,
		ChunkSize:     cfg.ChunkSize,
		Workers:       cfg.Workers(),
		RequestedMask: mask,
		Window:        window,
		Cache:         resultCache,
		Parser:        parser.Init(),
		Pipeline:      stage.New(backends),
		Faults:        fault.New(fault.DefaultPolicy()),
		Checkpoint:    journal,
		Counters:      counters,
		Writer:        writer,
		Skip:          skip,
		Dedup:         dedup.NewLiveRegistry(len(entries)),
		Logger:        logger,
	})

	if err := d.Run(ctx, entries); err != nil {
		return progress.RunReport{}, err
	}

	return reporter.Report(time.Now()), nil
}
