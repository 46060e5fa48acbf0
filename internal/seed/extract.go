// Package seed extracts and normalizes the legacy prototype's embedded seed
// data. The prototype kept its records in a hand-written relaxed-JSON object
// assigned to a variable inside an HTML file; this package turns that blob
// into typed records the importer can consume.
package seed

import (
	"regexp"

	"github.com/rotisserie/eris"
	"github.com/titanous/json5"
)

var (
	// ErrNotFound means the document contains no recognizable seed assignment.
	ErrNotFound = eris.New("seed: assignment not found")
	// ErrParse means the located literal is not valid relaxed JSON.
	ErrParse = eris.New("seed: invalid object literal")
)

// SeedVar is the variable name the prototype binds its data to.
const SeedVar = "SEED"

// Locator finds the raw object-literal text inside a container document.
// Keeping this separate from parsing lets other container formats plug in
// without touching the parser or the projection.
type Locator func(doc string) (string, error)

// StatementLocator matches a `var <name> = {...};` statement anywhere in the
// document and returns the object literal between the braces.
func StatementLocator(name string) Locator {
	re := regexp.MustCompile(`(?s)\bvar\s+` + regexp.QuoteMeta(name) + `\s*=\s*(\{.*?\})\s*;`)
	return func(doc string) (string, error) {
		m := re.FindStringSubmatch(doc)
		if m == nil {
			return "", eris.Wrapf(ErrNotFound, "no `var %s = {...};` statement in document", name)
		}
		return m[1], nil
	}
}

// Record is one loosely-typed legacy record. Accessors tolerate absent and
// mistyped fields instead of failing.
type Record map[string]any

// Str returns the string value for key, or "" when absent or not a string.
func (r Record) Str(key string) string {
	s, _ := r[key].(string)
	return s
}

// Bool coerces the value for key the way the prototype's scripts did:
// booleans as-is, non-empty strings and non-zero numbers are true.
func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case nil:
		return false
	default:
		return true
	}
}

// Seed is the typed projection of the legacy payload. Absent category
// arrays project to empty slices, not errors.
type Seed struct {
	Accounts []Record
	Deals    []Record
	Leads    []Record
}

// Extract locates and parses the seed payload using the default locator.
func Extract(doc string) (*Seed, error) {
	return ExtractWith(StatementLocator(SeedVar), doc)
}

// ExtractWith runs the given locator, parses the located literal as relaxed
// JSON (unquoted keys, single quotes, trailing commas), and projects the
// three category arrays.
func ExtractWith(loc Locator, doc string) (*Seed, error) {
	raw, err := loc(doc)
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json5.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, eris.Wrapf(ErrParse, "parse seed literal: %v", err)
	}

	return &Seed{
		Accounts: records(obj["accounts"]),
		Deals:    records(obj["deals"]),
		Leads:    records(obj["leads"]),
	}, nil
}

func records(v any) []Record {
	arr, _ := v.([]any)
	out := make([]Record, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}
