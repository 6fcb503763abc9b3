// Package report renders per-product descriptions and end-of-run summaries.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/enrich/internal/resolve"
)

// Summary aggregates the outcomes of one batch run.
type Summary struct {
	Total        int
	Resolved     int
	Partial      int
	Failed       int
	FallbackUsed int
	// Consulted counts how often each source was queried.
	Consulted map[string]int
	// Contributions counts the fields each source filled.
	Contributions map[string]int
	FailedEANs    []string
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}

// GenerateSummary folds outcomes into a Summary. start and end bound the run.
func GenerateSummary(outcomes []resolve.Outcome, start, end time.Time) Summary {
	s := Summary{
		Consulted:     make(map[string]int),
		Contributions: make(map[string]int),
		StartTime:     start,
		EndTime:       end,
		Duration:      end.Sub(start),
	}

	for _, o := range outcomes {
		s.Total++
		switch o.State {
		case resolve.StateResolved:
			s.Resolved++
		case resolve.StatePartial:
			s.Partial++
		default:
			s.Failed++
			s.FailedEANs = append(s.FailedEANs, o.EAN)
		}
		if o.FallbackUsed {
			s.FallbackUsed++
		}
		for _, src := range o.Consulted {
			s.Consulted[src]++
		}
		for src, fields := range o.Contributions {
			s.Contributions[src] += len(fields)
		}
	}

	return s
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// WriteText writes a human-readable summary.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Enrichment Summary
------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Products:      {{.Total}}
Resolved:      {{.Resolved}}
Partial:       {{.Partial}}
Failed:        {{.Failed}}
Fallback used: {{.FallbackUsed}}

Sources consulted:
{{- range $src, $count := .Consulted}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}

Fields contributed:
{{- range $src, $count := .Contributions}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}
{{- if .FailedEANs}}

Unresolved EANs:
{{- range .FailedEANs}}
  {{.}}
{{- end}}
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}
	return nil
}
