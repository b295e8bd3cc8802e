package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/singleflight"

	"github.com/msageha/conductor/internal/graph"
	"github.com/msageha/conductor/internal/logging"
	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/tree"
)

// Definitions are the loaded tree and, when available, the component graph.
// Both are immutable and may be shared across concurrent runs.
type Definitions struct {
	Tree  *tree.Tree
	Graph *graph.Graph
}

// Source supplies definitions at INTAKE.
type Source interface {
	Load(ctx context.Context) (Definitions, error)
}

// StaticSource always returns the same preloaded definitions.
type StaticSource Definitions

func (s StaticSource) Load(context.Context) (Definitions, error) {
	if s.Tree == nil {
		return Definitions{}, model.NewConfigError("tree", errors.New("no tree loaded"))
	}
	return Definitions(s), nil
}

// FileSource reads the tree and graph files on every Load, so edits are
// picked up by the next run. Concurrent loads share one read.
type FileSource struct {
	TreePath  string
	GraphPath string
	Logger    *logging.Logger

	group singleflight.Group
}

func (s *FileSource) Load(ctx context.Context) (Definitions, error) {
	ch := s.group.DoChan("definitions", func() (any, error) {
		return s.load()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Definitions{}, res.Err
		}
		return res.Val.(Definitions), nil
	case <-ctx.Done():
		return Definitions{}, ctx.Err()
	}
}

func (s *FileSource) load() (Definitions, error) {
	t, err := tree.LoadFile(s.TreePath)
	if err != nil {
		var cfgErr *model.ConfigError
		if !errors.As(err, &cfgErr) {
			err = model.NewConfigError("tree", err)
		}
		return Definitions{}, err
	}

	defs := Definitions{Tree: t}
	if s.GraphPath == "" {
		return defs, nil
	}
	g, err := graph.LoadFile(s.GraphPath)
	switch {
	case err == nil:
		defs.Graph = g
	case errors.Is(err, os.ErrNotExist):
		s.Logger.Debugf("graph %s not found, continuing without blast radius", s.GraphPath)
	default:
		var cfgErr *model.ConfigError
		if !errors.As(err, &cfgErr) {
			err = model.NewConfigError("graph", fmt.Errorf("load %s: %w", s.GraphPath, err))
		}
		return Definitions{}, err
	}
	return defs, nil
}
