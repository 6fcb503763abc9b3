package report

import (
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"strings"

	"github.com/FranksOps/enrich/internal/product"
)

// DefaultTemplateFile is looked up in the working directory when no template
// path is configured.
const DefaultTemplateFile = "description_template.html"

// DefaultTemplate is used when no template file exists.
const DefaultTemplate = `<div class="product">
  <h2>{{.product_name}}</h2>
  {{- if .description}}
  <p class="description">{{.description}}</p>
  {{- end}}
  {{- if .ingredients}}
  <h3>Összetevők</h3>
  <p>{{.ingredients}}</p>
  {{- end}}
  {{- if .effects}}
  <h3>Hatások</h3>
  <p>{{.effects}}</p>
  {{- end}}
  {{- if .packaging}}
  <p class="packaging">Kiszerelés: {{.packaging}}</p>
  {{- end}}
</div>`

// Renderer turns a record into its HTML description. Values are escaped by
// html/template.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses text as a description template. Templates reference the
// keys product_name, description, ingredients, effects and packaging.
func NewRenderer(text string) (*Renderer, error) {
	t, err := template.New("description").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("report: parse description template: %w", err)
	}
	return &Renderer{tmpl: t}, nil
}

// LoadRenderer reads the template at path. An empty path tries
// DefaultTemplateFile and falls back to DefaultTemplate when it is absent; an
// explicit path must exist.
func LoadRenderer(path string) (*Renderer, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultTemplateFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return NewRenderer(DefaultTemplate)
		}
		return nil, fmt.Errorf("report: read description template: %w", err)
	}
	return NewRenderer(string(data))
}

// Render executes the template for rec.
func (r *Renderer) Render(rec product.Record) (string, error) {
	var sb strings.Builder
	err := r.tmpl.Execute(&sb, map[string]string{
		"product_name": rec.Title,
		"description":  rec.Description,
		"ingredients":  rec.Ingredients,
		"effects":      rec.Effects,
		"packaging":    rec.Packaging,
	})
	if err != nil {
		return "", fmt.Errorf("report: render description: %w", err)
	}
	return sb.String(), nil
}
