// Package notify raises desktop notifications for runs that escalated or
// were blocked.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/msageha/conductor/internal/events"
	"github.com/msageha/conductor/internal/logging"
	"github.com/msageha/conductor/internal/model"
)

// SendFunc delivers one notification.
type SendFunc func(title, message string) error

// Send uses osascript on macOS and notify-send elsewhere.
func Send(title, message string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		script := fmt.Sprintf(
			`display notification "%s" with title "%s" sound name "default"`,
			escapeAppleScript(message), escapeAppleScript(title),
		)
		cmd = exec.Command("osascript", "-e", script)
	} else {
		cmd = exec.Command("notify-send", title, message)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", cmd.Args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// Notifier watches trace records and notifies when a run needs a human.
type Notifier struct {
	send   SendFunc
	logger *logging.Logger
}

func New(send SendFunc, logger *logging.Logger) *Notifier {
	if send == nil {
		send = Send
	}
	return &Notifier{send: send, logger: logger.Named("notify")}
}

// Attach subscribes to trace records on bus and returns the unsubscribe func.
func (n *Notifier) Attach(bus *events.Bus) func() {
	return bus.Subscribe(events.KindTrace, n.Observe)
}

func (n *Notifier) Observe(rec events.Record) {
	if rec.Trace == nil {
		return
	}
	title, message, ok := Message(rec.Trace)
	if !ok {
		return
	}
	if err := n.send(title, message); err != nil {
		n.logger.Warnf("run=%s notification failed: %v", rec.RunID, err)
	}
}

// Message builds the notification for a trace. ok is false when the run
// needs no attention.
func Message(tr *model.ExecutionTrace) (title, message string, ok bool) {
	blocked := tr.Counts.Blocked
	if len(tr.Escalations) == 0 && blocked == 0 {
		return "", "", false
	}

	title = fmt.Sprintf("conductor: run %s", tr.Status)
	var parts []string
	if n := len(tr.Escalations); n > 0 {
		targets := make([]string, 0, n)
		seen := make(map[string]bool)
		unresolved := 0
		for _, e := range tr.Escalations {
			if e.Unresolved {
				unresolved++
			}
			if e.To != "" && !seen[e.To] {
				seen[e.To] = true
				targets = append(targets, e.To)
			}
		}
		s := fmt.Sprintf("%d escalation(s)", n)
		if len(targets) > 0 {
			s += " to " + strings.Join(targets, ", ")
		}
		if unresolved > 0 {
			s += fmt.Sprintf(", %d unresolved", unresolved)
		}
		parts = append(parts, s)
	}
	if blocked > 0 {
		parts = append(parts, fmt.Sprintf("%d task(s) awaiting approval", blocked))
	}
	message = strings.Join(parts, "; ")
	if tr.Intent != "" {
		message += ": " + truncate(tr.Intent, 80)
	}
	return title, message, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
