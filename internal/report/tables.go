package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/msageha/conductor/internal/graph"
	"github.com/msageha/conductor/internal/pipeline"
	"github.com/msageha/conductor/internal/router"
	"github.com/msageha/conductor/internal/store"
)

func WriteMatches(w io.Writer, matches []router.Match, format Format) error {
	if format != FormatText {
		if matches == nil {
			matches = []router.Match{}
		}
		return Encode(w, matches, format)
	}
	if len(matches) == 0 {
		fmt.Fprintln(w, "No nodes match.")
		return nil
	}
	fmt.Fprintf(w, "%-16s  %5s\n", "NODE", "SCORE")
	for _, m := range matches {
		fmt.Fprintf(w, "%-16s  %5.1f\n", m.NodeID, m.Score)
	}
	return nil
}

func WriteBlast(w io.Writer, br graph.BlastRadius, format Format) error {
	if format != FormatText {
		return Encode(w, br, format)
	}
	fmt.Fprintf(w, "changed:  %s\n", listOrDash(br.Changed))
	fmt.Fprintf(w, "affected: %s\n", listOrDash(br.Affected))
	tiers := make([]string, len(br.AffectedTiers))
	for i, t := range br.AffectedTiers {
		tiers[i] = fmt.Sprint(t)
	}
	fmt.Fprintf(w, "tiers:    %s\n", listOrDash(tiers))
	fmt.Fprintf(w, "nodes:    %s\n", listOrDash(br.AffectedNodeIDs))
	fmt.Fprintf(w, "risk:     %d\n", br.Risk)
	if br.Summary != "" {
		fmt.Fprintf(w, "summary:  %s\n", br.Summary)
	}
	return nil
}

func WritePreview(w io.Writer, p *pipeline.PlanPreview, format Format) error {
	if format != FormatText {
		return Encode(w, p, format)
	}
	fmt.Fprintf(w, "mode: %s\n", p.Mode)
	if len(p.Components) > 0 {
		fmt.Fprintf(w, "components: %s\n", strings.Join(p.Components, ", "))
	}
	if p.Blast != nil {
		fmt.Fprintf(w, "blast radius: %d affected, risk %d\n", len(p.Blast.Affected), p.Blast.Risk)
	}
	if len(p.Tasks) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return nil
	}
	fmt.Fprintf(w, "\n%-16s  %4s  %4s  %-8s  %s\n", "NODE", "TIER", "RISK", "LEVEL", "DECISION")
	for i, t := range p.Tasks {
		a := p.Assessments[i]
		decision := "approved"
		if a.Audit {
			decision = "approved (audit)"
		}
		if !a.Approved {
			decision = "blocked"
		}
		tier := "-"
		if t.Tier >= 0 {
			tier = fmt.Sprint(t.Tier)
		}
		fmt.Fprintf(w, "%-16s  %4s  %4d  %-8s  %s\n", t.NodeID, tier, a.Score, a.Level, decision)
	}
	return nil
}

func WriteRuns(w io.Writer, runs []store.RunSummary, format Format) error {
	if format != FormatText {
		if runs == nil {
			runs = []store.RunSummary{}
		}
		return Encode(w, runs, format)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	fmt.Fprintf(w, "%-28s  %-15s  %5s  %7s  %-20s  %s\n", "RUN", "STATUS", "TASKS", "BLOCKED", "RECORDED", "INTENT")
	for _, r := range runs {
		status := string(r.Status)
		if r.DryRun {
			status += "*"
		}
		fmt.Fprintf(w, "%-28s  %-15s  %5d  %7d  %-20s  %s\n",
			r.RunID, status, r.Total, r.Blocked, r.RecordedAt, truncate(r.Intent, 48))
	}
	return nil
}

func WriteEvents(w io.Writer, evs []store.EventRow) {
	for _, e := range evs {
		from := string(e.From)
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(w, "  %s  %-16s  %s -> %s\n", e.CreatedAt, e.Kind, from, e.Phase)
	}
}

func listOrDash(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
