package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/msageha/conductor/internal/agent"
	"github.com/msageha/conductor/internal/events"
	"github.com/msageha/conductor/internal/logging"
	"github.com/msageha/conductor/internal/metrics"
	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/notify"
	"github.com/msageha/conductor/internal/pipeline"
	"github.com/msageha/conductor/internal/setup"
	"github.com/msageha/conductor/internal/store"
	"github.com/msageha/conductor/internal/tree"
)

// workspace is the loaded .conductor/ directory.
type workspace struct {
	base   string
	root   string
	cfg    model.Config
	logger *logging.Logger
	source *pipeline.FileSource

	closers []func()
}

func openWorkspace(logOut io.Writer) *workspace {
	cwd, err := os.Getwd()
	if err != nil {
		fatalf("getwd: %v", err)
	}
	base := setup.Find(cwd)
	if base == "" {
		fatalf("error: %s/ directory not found. Run 'conductor init' first.", setup.DirName)
	}
	cfg, err := setup.LoadConfig(base)
	if err != nil {
		exitErr(err)
	}

	logger := logging.New(logOut, logging.ParseLevel(cfg.Logging.Level), "conductor")
	ws := &workspace{
		base:   base,
		root:   filepath.Dir(base),
		cfg:    cfg,
		logger: logger,
	}
	ws.source = &pipeline.FileSource{
		TreePath:  ws.path(cfg.Paths.Tree),
		GraphPath: ws.path(cfg.Paths.Graph),
		Logger:    logger.Named("source"),
	}
	return ws
}

func (ws *workspace) path(p string) string {
	return setup.Resolve(ws.base, p)
}

// logFile opens logs/<name>.log for append and registers it for close.
func (ws *workspace) logFile(name string) io.Writer {
	path := filepath.Join(ws.base, "logs", name+".log")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fatalf("create log dir: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fatalf("open %s log: %v", name, err)
	}
	ws.closers = append(ws.closers, func() { f.Close() })
	return f
}

func (ws *workspace) relog(w io.Writer) {
	ws.logger = logging.New(w, logging.ParseLevel(ws.cfg.Logging.Level), "conductor")
	ws.source.Logger = ws.logger.Named("source")
}

func (ws *workspace) close() {
	for i := len(ws.closers) - 1; i >= 0; i-- {
		ws.closers[i]()
	}
	ws.closers = nil
}

func (ws *workspace) loadTree() *tree.Tree {
	defs, err := ws.source.Load(context.Background())
	if err != nil {
		exitErr(err)
	}
	return defs.Tree
}

func (ws *workspace) loadDefinitions() pipeline.Definitions {
	defs, err := ws.source.Load(context.Background())
	if err != nil {
		exitErr(err)
	}
	return defs
}

func (ws *workspace) openSQLite() *store.SQLite {
	if ws.cfg.Paths.Database == "" {
		return nil
	}
	db, err := store.OpenSQLite(ws.path(ws.cfg.Paths.Database))
	if err != nil {
		fatalf("open database: %v", err)
	}
	ws.closers = append(ws.closers, func() { db.Close() })
	return db
}

type engineOptions struct {
	store   bool
	metrics *metrics.Metrics
}

// engine wires the executor, the artifact stores and the event bus
// subscribers around a pipeline engine.
func (ws *workspace) engine(opts engineOptions) *pipeline.Engine {
	var exec pipeline.Executor
	cmdExec, err := agent.NewCommandExecutor(ws.cfg.Execution.Command, ws.root, ws.logger)
	switch {
	case err == nil:
		exec = cmdExec
	case errors.Is(err, agent.ErrNoCommand):
		ws.logger.Warnf("execution.command is empty; only dry runs can complete tasks")
	default:
		fatalf("executor: %v", err)
	}

	var stores store.Multi
	if opts.store {
		audit, err := events.NewAuditLogger(ws.path(ws.cfg.Paths.AuditLog), 0)
		if err != nil {
			fatalf("open audit log: %v", err)
		}
		audit.EnableChecksum(true)
		ws.closers = append(ws.closers, func() { audit.Close() })
		stores = append(stores, audit)

		if db := ws.openSQLite(); db != nil {
			stores = append(stores, db)
		}
	}

	if opts.metrics != nil || ws.cfg.Notify.Enabled {
		bus := events.NewBus(0)
		if opts.metrics != nil {
			opts.metrics.Attach(bus)
		}
		if ws.cfg.Notify.Enabled {
			notify.New(nil, ws.logger).Attach(bus)
		}
		ws.closers = append(ws.closers, bus.Close)
		stores = append(stores, bus)
	}

	var artifacts pipeline.ArtifactStore
	if len(stores) > 0 {
		artifacts = stores
	}
	e := pipeline.NewEngine(ws.source, pipeline.Options{
		Execution: ws.cfg.Execution,
		TopN:      ws.cfg.Routing.TopN,
		Executor:  exec,
		Store:     artifacts,
		Logger:    ws.logger,
	})
	// registered last so it runs first: queued records flush before the
	// stores behind them close
	ws.closers = append(ws.closers, func() { _ = e.Close(context.Background()) })
	return e
}

func exitErr(err error) {
	var cfgErr *model.ConfigError
	if errors.As(err, &cfgErr) {
		fmt.Fprint(os.Stderr, cfgErr.FormatStderr())
		os.Exit(1)
	}
	var verrs *model.ValidationErrors
	if errors.As(err, &verrs) {
		fmt.Fprint(os.Stderr, verrs.FormatStderr())
		os.Exit(1)
	}
	fatalf("error: %v", err)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
