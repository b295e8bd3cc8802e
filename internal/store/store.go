// Package store persists pipeline records. Stores are combined with Multi
// and shielded from the pipeline by Async, which never blocks a run.
package store

import (
	"context"
	"errors"

	"github.com/msageha/conductor/internal/events"
)

// Recorder accepts pipeline records.
type Recorder interface {
	Record(ctx context.Context, rec events.Record) error
}

// Multi records into every member and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, rec events.Record) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards records.
type Nop struct{}

func (Nop) Record(context.Context, events.Record) error { return nil }
