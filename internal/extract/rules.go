package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/FranksOps/enrich/internal/product"
)

// Mode says how a rule's keywords are matched against a text node.
type Mode int

const (
	// MatchContains matches when the text contains any keyword verbatim.
	MatchContains Mode = iota
	// MatchQuantity treats keywords as units and matches a number followed
	// by one of them, such as "500 g" or "0,5l".
	MatchQuantity
)

func (m Mode) String() string {
	switch m {
	case MatchContains:
		return "contains"
	case MatchQuantity:
		return "quantity"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode is the inverse of String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "contains", "":
		return MatchContains, nil
	case "quantity":
		return MatchQuantity, nil
	}
	return 0, fmt.Errorf("extract: unknown match mode %q", s)
}

// Rule fills Field with the text of the element around the first text node
// the rule matches.
type Rule struct {
	Field    product.Field
	Keywords []string
	Mode     Mode
}

// DefaultRules targets Hungarian health-food shop pages.
var DefaultRules = []Rule{
	{Field: product.FieldIngredients, Keywords: []string{"Összetevők"}, Mode: MatchContains},
	{Field: product.FieldEffects, Keywords: []string{"Hatás", "Előny"}, Mode: MatchContains},
	{Field: product.FieldPackaging, Keywords: []string{"g", "ml", "kg", "l", "mg", "db"}, Mode: MatchQuantity},
}

type matcher func(text string) bool

func (r Rule) compile() (matcher, error) {
	if len(r.Keywords) == 0 {
		return nil, fmt.Errorf("extract: rule for %s has no keywords", r.Field)
	}
	switch r.Mode {
	case MatchContains:
		kws := append([]string(nil), r.Keywords...)
		return func(text string) bool {
			for _, kw := range kws {
				if strings.Contains(text, kw) {
					return true
				}
			}
			return false
		}, nil
	case MatchQuantity:
		units := make([]string, 0, len(r.Keywords))
		for _, u := range r.Keywords {
			units = append(units, regexp.QuoteMeta(u))
		}
		sort.Slice(units, func(i, j int) bool { return len(units[i]) > len(units[j]) })
		re, err := regexp.Compile(`(?i)\b\d+(?:[.,]\d+)?\s*(?:` + strings.Join(units, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("extract: rule for %s: %w", r.Field, err)
		}
		return re.MatchString, nil
	}
	return nil, fmt.Errorf("extract: rule for %s has unknown mode %s", r.Field, r.Mode)
}

type compiledRule struct {
	field product.Field
	match matcher
}

// ValidateRules reports the first rule that New would reject.
func ValidateRules(rules []Rule) error {
	_, err := compileRules(rules)
	return err
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		switch r.Field {
		case product.FieldIngredients, product.FieldEffects, product.FieldPackaging, product.FieldDescription:
		default:
			return nil, fmt.Errorf("extract: field %q cannot be extracted", r.Field)
		}
		m, err := r.compile()
		if err != nil {
			return nil, err
		}
		out = append(out, compiledRule{field: r.Field, match: m})
	}
	return out, nil
}
