package watch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/pipeline"
	"github.com/msageha/conductor/internal/uds"
)

// Control socket commands.
const (
	CommandStatus = "status"
	CommandSubmit = "submit"
)

// Stats is what the status command reports.
type Stats struct {
	PID         int    `json:"pid" yaml:"pid"`
	StartedAt   string `json:"started_at" yaml:"started_at"`
	Inbox       string `json:"inbox" yaml:"inbox"`
	Runs        int    `json:"runs" yaml:"runs"`
	Failed      int    `json:"failed" yaml:"failed"`
	Quarantined int    `json:"quarantined" yaml:"quarantined"`
	LastRunID   string `json:"last_run_id,omitempty" yaml:"last_run_id,omitempty"`
	LastStatus  string `json:"last_status,omitempty" yaml:"last_status,omitempty"`
}

func (w *Watcher) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

func (w *Watcher) count(tr *model.ExecutionTrace, err error, quarantined bool) {
	if tr == nil && err == nil {
		return
	}
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	if tr != nil {
		w.stats.Runs++
		w.stats.LastRunID = tr.RunID
		w.stats.LastStatus = string(tr.Status)
	}
	if err != nil {
		w.stats.Failed++
	}
	if quarantined {
		w.stats.Quarantined++
	}
}

// Submit runs a request received over the control socket. The trace is
// written like one from an inbox file.
func (w *Watcher) Submit(ctx context.Context, req model.RunRequest) (*model.ExecutionTrace, error) {
	if err := ValidateRequest(req); err != nil {
		w.count(nil, err, false)
		return nil, err
	}
	tr, err := w.runner.Run(ctx, req)
	if tr != nil {
		if _, werr := w.writeTrace(tr); werr != nil {
			w.logger.Errorf("run=%s write trace: %v", tr.RunID, werr)
		}
		w.logger.Infof("run=%s submitted status=%s", tr.RunID, tr.Status)
	}
	w.count(tr, err, false)
	return tr, err
}

// RegisterControl installs the status and submit handlers on srv.
func (w *Watcher) RegisterControl(srv *uds.Server) {
	srv.Handle(CommandStatus, func(context.Context, json.RawMessage) (any, error) {
		return w.Stats(), nil
	})
	srv.Handle(CommandSubmit, func(ctx context.Context, params json.RawMessage) (any, error) {
		var req model.RunRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, uds.Errorf(uds.CodeValidation, "decode request: %v", err)
		}
		tr, err := w.Submit(ctx, req)
		if err != nil {
			return nil, controlError(err)
		}
		return tr, nil
	})
}

func controlError(err error) error {
	var cfgErr *model.ConfigError
	var verrs *model.ValidationErrors
	switch {
	case errors.As(err, &cfgErr):
		return uds.Errorf(uds.CodeConfig, "%v", err)
	case errors.As(err, &verrs), errors.Is(err, pipeline.ErrInvalidRequest):
		return uds.Errorf(uds.CodeValidation, "%v", err)
	}
	return err
}

// SubmitRemote sends req to the watcher listening on socket and waits for
// its trace.
func SubmitRemote(ctx context.Context, socket string, req model.RunRequest) (*model.ExecutionTrace, error) {
	var tr model.ExecutionTrace
	if err := uds.NewClient(socket).Call(ctx, CommandSubmit, req, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// RemoteStats asks the watcher listening on socket for its counters.
func RemoteStats(ctx context.Context, socket string) (Stats, error) {
	c := uds.NewClient(socket)
	c.SetTimeout(5 * time.Second)
	var s Stats
	err := c.Call(ctx, CommandStatus, nil, &s)
	return s, err
}
