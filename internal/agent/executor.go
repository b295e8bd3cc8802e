// Package agent provides the executors that perform leaf tasks: a shell
// command per task, and a dry-run executor with no side effects.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/msageha/conductor/internal/logging"
	"github.com/msageha/conductor/internal/model"
)

const (
	maxPayloadBytes = 4096
	envPrefix       = "CONDUCTOR_"
	DryRunPayload   = "dry-run"
)

var ErrNoCommand = errors.New("execution command is empty")

// CommandExecutor runs a configured argv once per task. Placeholders
// {{node}}, {{intent}}, {{lineage}} and {{files}} in the argv are replaced
// with task values; the task envelope is written to stdin.
type CommandExecutor struct {
	argv   []string
	dir    string
	logger *logging.Logger
}

func NewCommandExecutor(argv []string, dir string, logger *logging.Logger) (*CommandExecutor, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, ErrNoCommand
	}
	return &CommandExecutor{
		argv:   append([]string(nil), argv...),
		dir:    dir,
		logger: logger.Named("agent_executor"),
	}, nil
}

func (e *CommandExecutor) Execute(ctx context.Context, task model.LeafTask, timeout time.Duration) model.LeafResult {
	start := time.Now()
	res := model.LeafResult{NodeID: task.NodeID}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := expandArgs(e.argv, task)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = e.dir
	cmd.Env = append(filterEnv(os.Environ(), envPrefix), taskEnv(task)...)
	cmd.Stdin = strings.NewReader(BuildTaskEnvelope(task))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debugf("dispatch node=%s argv=%q", task.NodeID, args)
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Payload = truncate(strings.TrimSpace(stdout.String()), maxPayloadBytes)

	switch {
	case err == nil:
		res.Status = model.LeafCompleted
		e.logger.Infof("task_completed node=%s duration=%s", task.NodeID, res.Duration.Round(time.Millisecond))
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Status = model.LeafFailed
		res.Error = fmt.Sprintf("timed out after %s", timeout)
		e.logger.Warnf("task_timeout node=%s timeout=%s", task.NodeID, timeout)
	default:
		res.Status = model.LeafFailed
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			res.Error = err.Error()
		} else {
			res.Error = fmt.Sprintf("%v: %s", err, truncate(msg, 512))
		}
		e.logger.Warnf("task_failed node=%s error=%q", task.NodeID, res.Error)
	}
	return res
}

func expandArgs(argv []string, task model.LeafTask) []string {
	r := strings.NewReplacer(
		"{{node}}", task.NodeID,
		"{{intent}}", task.Intent,
		"{{lineage}}", strings.Join(task.Lineage, "/"),
		"{{files}}", strings.Join(task.OwnedFiles, ","),
	)
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}

func taskEnv(task model.LeafTask) []string {
	return []string{
		envPrefix + "NODE=" + task.NodeID,
		envPrefix + "NODE_NAME=" + task.NodeName,
		envPrefix + "INTENT=" + task.Intent,
		envPrefix + "LINEAGE=" + strings.Join(task.Lineage, "/"),
		envPrefix + "FILES=" + strings.Join(task.OwnedFiles, ","),
		envPrefix + "COMPONENTS=" + strings.Join(task.Components, ","),
	}
}

// filterEnv returns environ without variables starting with prefix, so a
// nested conductor does not inherit the parent task's values.
func filterEnv(environ []string, prefix string) []string {
	out := make([]string, 0, len(environ))
	for _, e := range environ {
		if !strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// cut on a rune boundary so traces stay valid UTF-8
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "... [truncated]"
}

// BuildTaskEnvelope renders the plain-text task description handed to the
// worker process.
func BuildTaskEnvelope(task model.LeafTask) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[conductor] node:%s scale:%s tier:%d\n", task.NodeID, task.Scale, task.Tier)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "intent: %s\n", task.Intent)
	fmt.Fprintf(&sb, "lineage: %s\n", strings.Join(task.Lineage, " > "))
	fmt.Fprintf(&sb, "owned_files: %s\n", listOrNone(task.OwnedFiles))
	fmt.Fprintf(&sb, "owned_functions: %s\n", listOrNone(task.OwnedFunctions))
	fmt.Fprintf(&sb, "owned_resources: %s\n", listOrNone(task.OwnedResources))
	fmt.Fprintf(&sb, "components: %s\n", listOrNone(task.Components))
	if len(task.Rules) > 0 {
		names := make([]string, len(task.Rules))
		for i, r := range task.Rules {
			names[i] = fmt.Sprintf("%s(%s)", r.Name, r.Action)
		}
		fmt.Fprintf(&sb, "rules: %s\n", strings.Join(names, ", "))
	}
	sb.WriteString("\n")
	sb.WriteString("Exit 0 when done; any other exit status marks the task failed. Stdout is kept as the result payload.")
	return sb.String()
}

func listOrNone(s []string) string {
	if len(s) == 0 {
		return "none"
	}
	return strings.Join(s, ", ")
}

// DryRunExecutor completes every task without doing anything.
type DryRunExecutor struct{}

func (DryRunExecutor) Execute(_ context.Context, task model.LeafTask, _ time.Duration) model.LeafResult {
	return model.LeafResult{NodeID: task.NodeID, Status: model.LeafCompleted, Payload: DryRunPayload}
}
