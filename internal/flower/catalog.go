// Package flower maps free-text flower names from order rows to sprite
// locators.
package flower

import "strings"

// Entry pairs a flower-name synonym with the sprite that renders it.
type Entry struct {
	Key     string `yaml:"key"`
	Locator string `yaml:"locator"`
}

// DefaultEntries is the built-in synonym list. Order matters: the substring
// fallback returns the first entry that matches.
var DefaultEntries = []Entry{
	{Key: "rose", Locator: "/rose.png"},
	{Key: "roses", Locator: "/rose.png"},
	{Key: "tulip", Locator: "/tulip.png"},
	{Key: "tulips", Locator: "/tulip.png"},
	{Key: "orange tulip", Locator: "/tulip.png"},
	{Key: "orange tulips", Locator: "/tulip.png"},
	{Key: "cornflower", Locator: "/cornflower.png"},
	{Key: "cornflowers", Locator: "/cornflower.png"},
	{Key: "blue cornflower", Locator: "/cornflower.png"},
	{Key: "blue cornflowers", Locator: "/cornflower.png"},
	{Key: "gardenia", Locator: "/gardenia.png"},
	{Key: "gardenias", Locator: "/gardenia.png"},
	{Key: "dandelion", Locator: "/dandelion.png"},
	{Key: "dandelions", Locator: "/dandelion.png"},
	{Key: "white dandelion", Locator: "/dandelion.png"},
	{Key: "white dandelions", Locator: "/dandelion.png"},
}

// Catalog resolves normalized flower names to sprite locators.
// A Catalog is immutable and safe for concurrent use.
type Catalog struct {
	entries []Entry
	exact   map[string]string
}

// NewCatalog builds a catalog from an ordered entry list. Keys are
// normalized; on duplicate keys the first entry wins.
func NewCatalog(entries []Entry) *Catalog {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		exact:   make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		key := Normalize(e.Key)
		if key == "" || e.Locator == "" {
			continue
		}
		c.entries = append(c.entries, Entry{Key: key, Locator: e.Locator})
		if _, ok := c.exact[key]; !ok {
			c.exact[key] = e.Locator
		}
	}
	return c
}

// Default returns a catalog over DefaultEntries.
func Default() *Catalog {
	return NewCatalog(DefaultEntries)
}

// Resolve returns the locator for name. An exact key match wins; otherwise
// the first entry whose key contains name, or is contained in name, is
// returned. This fallback is a best-effort heuristic. ok is false when
// nothing matches, which callers treat as "no sprite".
func (c *Catalog) Resolve(name string) (string, bool) {
	name = Normalize(name)
	if name == "" {
		return "", false
	}
	if loc, ok := c.exact[name]; ok {
		return loc, true
	}
	for _, e := range c.entries {
		if strings.Contains(e.Key, name) || strings.Contains(name, e.Key) {
			return e.Locator, true
		}
	}
	return "", false
}

// Entries returns a copy of the catalog's ordered entries.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Locators returns the distinct locators in first-seen order.
func (c *Catalog) Locators() []string {
	seen := make(map[string]struct{}, len(c.entries))
	var out []string
	for _, e := range c.entries {
		if _, ok := seen[e.Locator]; ok {
			continue
		}
		seen[e.Locator] = struct{}{}
		out = append(out, e.Locator)
	}
	return out
}

// Normalize lower-cases and trims a flower name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
