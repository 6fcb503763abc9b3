package product

import "strings"

// Field names a single attribute of a Record. The string value doubles as
// the column name used by the tabular outputs.
type Field string

const (
	FieldTitle       Field = "title"
	FieldLink        Field = "link"
	FieldIngredients Field = "ingredients"
	FieldEffects     Field = "effects"
	FieldPackaging   Field = "packaging"
	FieldDescription Field = "description"
)

// ColumnEAN is the identifier column of every input and output table.
const ColumnEAN = "EAN"

// Columns is the column order of the raw output table.
var Columns = []string{
	ColumnEAN,
	string(FieldTitle),
	string(FieldLink),
	string(FieldIngredients),
	string(FieldEffects),
	string(FieldPackaging),
	string(FieldDescription),
}

// Identifier is one row of the input catalog. It is never mutated.
type Identifier struct {
	EAN  string `json:"ean"`
	Name string `json:"name,omitempty"`
}

// HasName reports whether the identifier carries a usable product name.
func (id Identifier) HasName() bool {
	return strings.TrimSpace(id.Name) != ""
}

// Candidate is a (title, link) pair proposed by a source as a possible match.
type Candidate struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	// Details holds attributes the source already returned alongside the
	// match (structured APIs). Nil for search results, which need extraction.
	Details *Partial `json:"-"`
}

// Usable reports whether both title and link are present. A candidate that
// carries Details only needs a link.
func (c Candidate) Usable() bool {
	if c.Link == "" {
		return false
	}
	return c.Title != "" || c.Details != nil
}

// Partial is the set of attributes found on one page or API response.
// An empty string means "not found".
type Partial struct {
	Ingredients string `json:"ingredients"`
	Effects     string `json:"effects"`
	Packaging   string `json:"packaging"`
	Description string `json:"description"`
}

// Get returns the value of an attribute field. Title and link are not part
// of a Partial and always read as empty.
func (p Partial) Get(f Field) string {
	switch f {
	case FieldIngredients:
		return p.Ingredients
	case FieldEffects:
		return p.Effects
	case FieldPackaging:
		return p.Packaging
	case FieldDescription:
		return p.Description
	}
	return ""
}

// Set assigns an attribute field. Unknown fields are ignored.
func (p *Partial) Set(f Field, v string) {
	switch f {
	case FieldIngredients:
		p.Ingredients = v
	case FieldEffects:
		p.Effects = v
	case FieldPackaging:
		p.Packaging = v
	case FieldDescription:
		p.Description = v
	}
}

// Empty reports whether no attribute was found.
func (p Partial) Empty() bool {
	return p.Ingredients == "" && p.Effects == "" && p.Packaging == "" && p.Description == ""
}

// Record is the enriched output for one identifier.
type Record struct {
	EAN         string `json:"EAN"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Ingredients string `json:"ingredients"`
	Effects     string `json:"effects"`
	Packaging   string `json:"packaging"`
	Description string `json:"description"`
}

// NewRecord starts an empty record for the identifier. The EAN is copied
// verbatim and no merge ever touches it afterwards.
func NewRecord(id Identifier) Record {
	return Record{EAN: id.EAN}
}

// TopUpCandidate fills title and link from c where they are still empty and
// returns the fields that changed.
func (r *Record) TopUpCandidate(c Candidate) []Field {
	var filled []Field
	if fill(&r.Title, c.Title) {
		filled = append(filled, FieldTitle)
	}
	if fill(&r.Link, c.Link) {
		filled = append(filled, FieldLink)
	}
	return filled
}

// TopUpPartial fills attribute fields from p where they are still empty and
// returns the fields that changed. A populated field is never overwritten.
func (r *Record) TopUpPartial(p Partial) []Field {
	var filled []Field
	if fill(&r.Ingredients, p.Ingredients) {
		filled = append(filled, FieldIngredients)
	}
	if fill(&r.Effects, p.Effects) {
		filled = append(filled, FieldEffects)
	}
	if fill(&r.Packaging, p.Packaging) {
		filled = append(filled, FieldPackaging)
	}
	if fill(&r.Description, p.Description) {
		filled = append(filled, FieldDescription)
	}
	return filled
}

func fill(dst *string, v string) bool {
	if *dst != "" || v == "" {
		return false
	}
	*dst = v
	return true
}

// Resolved reports whether any field beyond the EAN was found.
func (r Record) Resolved() bool {
	return r.Title != "" || r.Link != "" || r.Ingredients != "" ||
		r.Effects != "" || r.Packaging != "" || r.Description != ""
}

// Values returns the record in Columns order.
func (r Record) Values() []string {
	return []string{r.EAN, r.Title, r.Link, r.Ingredients, r.Effects, r.Packaging, r.Description}
}

// RecordFromValues is the inverse of Values. Missing trailing values read
// as empty.
func RecordFromValues(vals []string) Record {
	get := func(i int) string {
		if i < len(vals) {
			return vals[i]
		}
		return ""
	}
	return Record{
		EAN:         get(0),
		Title:       get(1),
		Link:        get(2),
		Ingredients: get(3),
		Effects:     get(4),
		Packaging:   get(5),
		Description: get(6),
	}
}
