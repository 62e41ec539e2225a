package flower

import (
	"iter"
	"regexp"
	"strings"
)

// entryDelimiter separates entries inside a flower-type cell that holds a
// list of quoted `<p>Name: ...</p>` fragments.
const entryDelimiter = `","`

var namePattern = regexp.MustCompile(`(?i)<p>\s*([^:<]+):`)

// Parse yields the normalized flower names found in a flower-type cell, in
// order of appearance. The sequence is lazy and may be ranged over any
// number of times. Pieces without a `<p>Name:` prefix are skipped.
func Parse(field string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if field == "" {
			return
		}
		for _, piece := range strings.Split(field, entryDelimiter) {
			piece = strings.TrimSpace(piece)
			piece = strings.TrimPrefix(piece, `"`)
			piece = strings.TrimSuffix(piece, `"`)

			m := namePattern.FindStringSubmatch(piece)
			if m == nil {
				continue
			}
			name := Normalize(m[1])
			if name == "" {
				continue
			}
			if !yield(name) {
				return
			}
		}
	}
}

// Names is Parse with a fallback for plain cells: a cell without markup is
// taken as a single flower name ("Roses" -> "roses").
func Names(field string) iter.Seq[string] {
	if strings.Contains(field, "<") {
		return Parse(field)
	}
	return func(yield func(string) bool) {
		if name := Normalize(strings.Trim(field, `"`)); name != "" {
			yield(name)
		}
	}
}

// Resolved pairs a flower name with its sprite locator.
type Resolved struct {
	Name    string `json:"name"`
	Locator string `json:"url,omitempty"`
}

// ResolveAll runs every name from seq through the catalog and keeps only the
// ones with a sprite.
func (c *Catalog) ResolveAll(seq iter.Seq[string]) []Resolved {
	var out []Resolved
	for name := range seq {
		if loc, ok := c.Resolve(name); ok {
			out = append(out, Resolved{Name: name, Locator: loc})
		}
	}
	return out
}
