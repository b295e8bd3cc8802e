// Package report renders traces, plans and run history for the CLI.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/conductor/internal/model"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// Encode writes v as JSON or YAML. Text output is handled by the typed
// writers.
func Encode(w io.Writer, v any, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yamlv3.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("encode: unsupported format %q", format)
	}
}

var traceTemplate = template.Must(template.New("trace").Funcs(template.FuncMap{
	"ms":    func(d time.Duration) string { return d.Round(time.Millisecond).String() },
	"join":  strings.Join,
}).Parse(`Run {{.RunID}}{{if .DryRun}} (dry run){{end}}
  intent:  {{.Intent}}
  target:  {{.TargetID}}
  mode:    {{if .Mode}}{{.Mode}}{{else}}-{{end}}
  status:  {{.Status}}
  tasks:   {{.Counts.Total}} total, {{.Counts.Approved}} approved, {{.Counts.Blocked}} blocked
  took:    {{ms .Duration}}
{{- if .Error}}
  error:   {{.Error}}
{{- end}}
{{- if .Results}}

Results:
{{- range .Results}}
  {{printf "%-16s" .NodeID}} {{printf "%-9s" .Status}} risk={{printf "%-2d" .Risk.Score}} {{.Risk.Level}}
{{- if .Skipped}}  (skipped){{end}}
{{- if .EscalationTarget}}  -> {{.EscalationTarget}}{{end}}
{{- if .Error}}  {{.Error}}{{end}}
{{- end}}
{{- end}}
{{- if .Escalations}}

Escalations:
{{- range .Escalations}}
  {{.From}} -> {{if .To}}{{.To}}{{else}}(none){{end}}{{if .Cascade}} via {{join .Cascade ", "}}{{end}}{{if .Unresolved}} [unresolved]{{end}}: {{.Reason}}
{{- end}}
{{- end}}
`))

// WriteTrace renders tr in the given format.
func WriteTrace(w io.Writer, tr *model.ExecutionTrace, format Format) error {
	if format != FormatText {
		return Encode(w, tr, format)
	}
	if err := traceTemplate.Execute(w, tr); err != nil {
		return fmt.Errorf("render trace: %w", err)
	}
	if tr.Root != nil {
		fmt.Fprintln(w, "\nAggregate:")
		writeNode(w, tr.Root, 1)
	}
	return nil
}

func writeNode(w io.Writer, n *model.AggregateNode, depth int) {
	line := fmt.Sprintf("%s%s: %s", strings.Repeat("  ", depth), n.NodeID, n.Status)
	if n.FiredRule != "" {
		line += fmt.Sprintf(" (rule %s)", n.FiredRule)
	}
	fmt.Fprintln(w, line)
	for _, c := range n.Children {
		writeNode(w, c, depth+1)
	}
}
