// Package watch runs every run request dropped into the inbox directory
// and writes its trace next to the others.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/msageha/conductor/internal/lock"
	"github.com/msageha/conductor/internal/logging"
	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/pipeline"
	"github.com/msageha/conductor/internal/uds"
	conductoryaml "github.com/msageha/conductor/internal/yaml"
)

// Runner executes one request. *pipeline.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, req model.RunRequest) (*model.ExecutionTrace, error)
}

type Options struct {
	// BaseDir holds quarantine/, processed/ and the lock file.
	BaseDir   string
	Inbox     string
	TracesDir string
	// Socket is the control socket path. Empty disables it.
	Socket   string
	Debounce time.Duration
	Logger   *logging.Logger
}

// Outcome describes what happened to one inbox file.
type Outcome struct {
	Path        string
	Trace       *model.ExecutionTrace
	TracePath   string
	Quarantined string
	Err         error
}

type Watcher struct {
	opts     Options
	runner   Runner
	logger   *logging.Logger
	fileLock *lock.FileLock
	files    *lock.PathLocks

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats

	// OnOutcome is called after every processed file. Tests hook it.
	OnOutcome func(Outcome)
}

func New(runner Runner, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = time.Duration(model.DefaultDebounceMs) * time.Millisecond
	}
	return &Watcher{
		opts:     opts,
		runner:   runner,
		logger:   opts.Logger.Named("watch"),
		fileLock: lock.NewFileLock(filepath.Join(opts.BaseDir, "locks", "watch.lock")),
		files:    lock.NewPathLocks(),
		pending:  make(map[string]*time.Timer),
	}
}

// Run takes the single-instance lock, processes files already in the inbox
// and then every file written to it until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.fileLock.TryLock(); err != nil {
		return fmt.Errorf("watch lock: %w", err)
	}
	defer w.fileLock.Unlock()

	for _, dir := range []string{w.opts.Inbox, w.opts.TracesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("ensure dir %s: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.opts.Inbox); err != nil {
		return fmt.Errorf("watch %s: %w", w.opts.Inbox, err)
	}
	w.statsMu.Lock()
	w.stats = Stats{PID: os.Getpid(), StartedAt: time.Now().UTC().Format(time.RFC3339), Inbox: w.opts.Inbox}
	w.statsMu.Unlock()

	if w.opts.Socket != "" {
		srv := uds.NewServer(w.opts.Socket, w.logger)
		w.RegisterControl(srv)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("control socket: %w", err)
		}
		defer srv.Stop()
	}
	w.logger.Infof("watching %s pid=%d", w.opts.Inbox, os.Getpid())

	if err := w.Scan(ctx); err != nil {
		w.logger.Warnf("initial scan: %v", err)
	}

	defer w.drain()
	for {
		select {
		case <-ctx.Done():
			w.logger.Infof("shutdown requested, waiting for in-flight runs")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("fsnotify error=%v", err)
		}
	}
}

// Scan processes every request file currently in the inbox, in name order.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.opts.Inbox)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isRequestFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		w.Process(ctx, filepath.Join(w.opts.Inbox, name))
	}
	return nil
}

func isRequestFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// schedule debounces bursts of writes to the same file.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if !isRequestFile(filepath.Base(path)) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.opts.Debounce)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.opts.Debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.Process(ctx, path)
	})
	w.pending[path] = t
}

// drain cancels timers that have not fired and waits for running ones.
func (w *Watcher) drain() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// Process runs one request file. Malformed and invalid requests are
// quarantined; processed requests move to processed/. A file with a
// definition problem stays in the inbox so it can be retried after the
// tree or graph is fixed.
func (w *Watcher) Process(ctx context.Context, path string) Outcome {
	unlock := w.files.Lock(path)
	defer unlock()

	out := w.process(ctx, path)
	w.count(out.Trace, out.Err, out.Quarantined != "")
	if w.OnOutcome != nil && (out.Trace != nil || out.Err != nil) {
		w.OnOutcome(out)
	}
	return out
}

func (w *Watcher) process(ctx context.Context, path string) Outcome {
	out := Outcome{Path: path}
	if _, err := os.Stat(path); err != nil {
		// already handled by an earlier event
		return out
	}

	req, err := LoadRequest(path)
	if err != nil {
		out.Err = err
		out.Quarantined = w.quarantine(path, err)
		return out
	}

	tr, err := w.runner.Run(ctx, req)
	out.Trace = tr
	if tr != nil {
		tracePath, werr := w.writeTrace(tr)
		if werr != nil {
			w.logger.Errorf("run=%s write trace: %v", tr.RunID, werr)
		}
		out.TracePath = tracePath
	}

	var cfgErr *model.ConfigError
	switch {
	case err == nil:
		w.archive(path, tr.RunID)
		w.logger.Infof("run=%s file=%s status=%s", tr.RunID, filepath.Base(path), tr.Status)
	case errors.As(err, &cfgErr):
		out.Err = err
		w.logger.Errorf("file=%s left in inbox: %v", filepath.Base(path), err)
	default:
		out.Err = err
		out.Quarantined = w.quarantine(path, err)
	}
	return out
}

func (w *Watcher) writeTrace(tr *model.ExecutionTrace) (string, error) {
	path := filepath.Join(w.opts.TracesDir, tr.RunID+".yaml")
	if err := conductoryaml.AtomicWrite(path, tr); err != nil {
		return "", err
	}
	return path, nil
}

func (w *Watcher) quarantine(path string, reason error) string {
	dst, err := conductoryaml.Quarantine(w.opts.BaseDir, path, reason.Error())
	if err != nil {
		w.logger.Errorf("quarantine %s: %v", filepath.Base(path), err)
		return dst
	}
	w.logger.Warnf("file=%s quarantined: %v", filepath.Base(path), reason)
	return dst
}

func (w *Watcher) archive(path, runID string) {
	dir := filepath.Join(w.opts.BaseDir, "processed")
	if err := os.MkdirAll(dir, 0755); err != nil {
		w.logger.Errorf("create processed dir: %v", err)
		return
	}
	dst := filepath.Join(dir, fmt.Sprintf("%s.%s", filepath.Base(path), runID))
	if err := os.Rename(path, dst); err != nil {
		w.logger.Errorf("archive %s: %v", filepath.Base(path), err)
	}
}

var _ Runner = (*pipeline.Engine)(nil)
