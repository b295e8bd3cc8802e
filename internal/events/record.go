// Package events carries pipeline records to in-process subscribers and
// to the append-only JSONL audit log.
package events

import (
	"time"

	"github.com/msageha/conductor/internal/model"
)

type Kind string

const (
	// KindPhase is recorded once per phase transition.
	KindPhase Kind = "phase_transition"
	// KindTrace carries the finalized trace at SHIP.
	KindTrace Kind = "trace"
)

// Record is the unit handed to an artifact store.
type Record struct {
	ID        string                `json:"id"`
	RunID     string                `json:"run_id"`
	Kind      Kind                  `json:"kind"`
	From      model.Phase           `json:"from,omitempty"`
	Phase     model.Phase           `json:"phase,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
	Details   map[string]any        `json:"details,omitempty"`
	Trace     *model.ExecutionTrace `json:"trace,omitempty"`
}

// NewPhaseRecord builds a phase transition record. from is empty for INTAKE.
func NewPhaseRecord(runID string, from, to model.Phase, details map[string]any) Record {
	return Record{
		ID:        newEventID(),
		RunID:     runID,
		Kind:      KindPhase,
		From:      from,
		Phase:     to,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
}

func NewTraceRecord(trace *model.ExecutionTrace) Record {
	return Record{
		ID:        newEventID(),
		RunID:     trace.RunID,
		Kind:      KindTrace,
		Phase:     model.PhaseShip,
		Timestamp: time.Now().UTC(),
		Details: map[string]any{
			"status": string(trace.Status),
			"tasks":  trace.Counts.Total,
		},
		Trace: trace,
	}
}

func newEventID() string {
	id, err := model.NewID(model.IDEvent)
	if err != nil {
		return ""
	}
	return id
}
