package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/uds"
)

func TestSubmit_WritesTraceAndCounts(t *testing.T) {
	runner := &fakeRunner{}
	w, opts := setup(t, runner)

	tr, err := w.Submit(context.Background(), model.RunRequest{Intent: "fix login", DryRun: true})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(opts.TracesDir, tr.RunID+".yaml"))

	_, err = w.Submit(context.Background(), model.RunRequest{})
	var verrs *model.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	s := w.Stats()
	assert.Equal(t, 1, s.Runs)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, tr.RunID, s.LastRunID)
	assert.Equal(t, string(model.RunCompleted), s.LastStatus)
}

func TestControlError_Codes(t *testing.T) {
	assert.True(t, uds.IsCode(controlError(&model.ConfigError{Source: "tree", Err: errors.New("x")}), uds.CodeConfig))
	assert.True(t, uds.IsCode(controlError(&model.ValidationErrors{}), uds.CodeValidation))
	assert.False(t, uds.IsCode(controlError(errors.New("other")), uds.CodeValidation))
}

func TestRun_ControlSocket(t *testing.T) {
	runner := &fakeRunner{}
	w, _ := setup(t, runner)
	dir, err := os.MkdirTemp("/tmp", "cdr-watch-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	w.opts.Socket = filepath.Join(dir, "c.sock")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(w.opts.Socket)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	tr, err := SubmitRemote(ctx, w.opts.Socket, model.RunRequest{Intent: "update the api", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "update the api", tr.Intent)
	assert.Equal(t, model.RunCompleted, tr.Status)

	_, err = SubmitRemote(ctx, w.opts.Socket, model.RunRequest{Direct: &model.DirectRequest{}})
	assert.True(t, uds.IsCode(err, uds.CodeValidation), "got %v", err)

	s, err := RemoteStats(ctx, w.opts.Socket)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), s.PID)
	assert.Equal(t, 1, s.Runs)
	assert.Equal(t, tr.RunID, s.LastRunID)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	_, err = os.Stat(w.opts.Socket)
	assert.True(t, os.IsNotExist(err))
}
