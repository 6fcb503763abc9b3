package report

import (
	"fmt"
	"html/template"
	"io"
)

const summaryHTML = `<!DOCTYPE html>
<html>
<head>
<title>Enrichment Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Enrichment Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card"><div>Products</div><div class="stat-val">{{.Total}}</div></div>
  <div class="stat-card"><div>Resolved</div><div class="stat-val" style="color: green;">{{.Resolved}}</div></div>
  <div class="stat-card"><div>Partial</div><div class="stat-val">{{.Partial}}</div></div>
  <div class="stat-card"><div>Failed</div><div class="stat-val" style="color: {{if gt .Failed 0}}red{{else}}green{{end}};">{{.Failed}}</div></div>
  <div class="stat-card"><div>Fallback used</div><div class="stat-val">{{.FallbackUsed}}</div></div>

  <h3>Sources</h3>
  <table>
    <tr><th>Source</th><th>Consulted</th><th>Fields contributed</th></tr>
    {{- $contrib := .Contributions}}
    {{- range $src, $count := .Consulted}}
    <tr><td>{{$src}}</td><td>{{$count}}</td><td>{{index $contrib $src}}</td></tr>
    {{- else}}
    <tr><td colspan="3">None</td></tr>
    {{- end}}
  </table>
  {{- if .FailedEANs}}

  <h3>Unresolved EANs</h3>
  <ul>
    {{- range .FailedEANs}}
    <li>{{.}}</li>
    {{- end}}
  </ul>
  {{- end}}
</body>
</html>
`

var summaryTemplate = template.Must(template.New("htmlReport").Parse(summaryHTML))

// WriteHTML writes the summary as a standalone HTML page.
func WriteHTML(w io.Writer, summary Summary) error {
	if err := summaryTemplate.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}
