// Package i18n loads the base string table and machine-translated copies of it.
package i18n

import (
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/lepinkainen/feed-brief/internal/lang"
	"gopkg.in/yaml.v3"
)

//go:embed locales/fa.yaml
var baseYAML []byte

// ErrInvalidTranslation is returned when a translated table does not match the base table.
var ErrInvalidTranslation = errors.New("invalid translation table")

var placeholderPattern = regexp.MustCompile(`\{[A-Za-z0-9_]+\}`)

// Catalog is a flat key -> string table for one language.
type Catalog struct {
	Language lang.Language     `json:"language"`
	Strings  map[string]string `json:"strings"`
}

var loadBase = sync.OnceValues(func() (map[string]string, error) {
	return ParseYAML(baseYAML)
})

// Base returns the built-in catalog of the base language.
func Base() *Catalog {
	table, err := loadBase()
	if err != nil {
		panic(fmt.Sprintf("embedded string table is broken: %v", err))
	}
	return &Catalog{Language: lang.Base, Strings: maps.Clone(table)}
}

// ParseYAML flattens a nested YAML table into dotted keys.
func ParseYAML(data []byte) (map[string]string, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse string table: %w", err)
	}
	out := make(map[string]string)
	flatten("", tree, out)
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for key, value := range node {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]any:
			flatten(full, v, out)
		case string:
			out[full] = v
		case nil:
			out[full] = ""
		default:
			out[full] = fmt.Sprint(v)
		}
	}
}

// T returns the string for key with {name} placeholders filled from
// alternating name/value pairs. Unknown keys return the key itself.
func (c *Catalog) T(key string, pairs ...string) string {
	s, ok := c.Strings[key]
	if !ok {
		return key
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		s = strings.ReplaceAll(s, "{"+pairs[i]+"}", pairs[i+1])
	}
	return s
}

// Keys returns the sorted keys of the catalog.
func (c *Catalog) Keys() []string {
	return sortedKeys(c.Strings)
}

// Placeholders returns the sorted placeholders of s, e.g. ["{error}"].
func Placeholders(s string) []string {
	found := placeholderPattern.FindAllString(s, -1)
	sort.Strings(found)
	return found
}

// Validate checks that candidate has every base key with a non-empty value,
// the same placeholders and the same number of bold markers.
func Validate(base, candidate map[string]string) error {
	var problems []string
	for _, key := range sortedKeys(base) {
		want := base[key]
		got, ok := candidate[key]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("missing key %s", key))
		case strings.TrimSpace(got) == "" && strings.TrimSpace(want) != "":
			problems = append(problems, fmt.Sprintf("empty value for %s", key))
		case !slices.Equal(Placeholders(want), Placeholders(got)):
			problems = append(problems, fmt.Sprintf("placeholders changed in %s", key))
		case strings.Count(want, "**") != strings.Count(got, "**"):
			problems = append(problems, fmt.Sprintf("bold markers changed in %s", key))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTranslation, strings.Join(problems, "; "))
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Segment is a run of text that is either bold or not.
type Segment struct {
	Text string
	Bold bool
}

// Segments splits s on ** markers. An unmatched trailing marker is kept as text.
func Segments(s string) []Segment {
	parts := strings.Split(s, "**")
	if len(parts)%2 == 0 {
		// odd number of markers: glue the dangling one back on
		last := len(parts) - 1
		parts[last-1] = parts[last-1] + "**" + parts[last]
		parts = parts[:last]
	}

	var out []Segment
	for i, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, Segment{Text: p, Bold: i%2 == 1})
	}
	return out
}

// Plain removes bold markers.
func Plain(s string) string {
	var sb strings.Builder
	for _, seg := range Segments(s) {
		sb.WriteString(seg.Text)
	}
	return sb.String()
}
