package i18n

import (
	"errors"
	"maps"
	"reflect"
	"testing"

	"github.com/lepinkainen/feed-brief/internal/lang"
)

func TestBase(t *testing.T) {
	c := Base()
	if c.Language != lang.Farsi {
		t.Errorf("Base().Language = %q", c.Language)
	}

	for _, key := range []string{
		"app.summarizeError",
		"app.allFeedsFetchError",
		"app.sessionExpired",
		"settingsModal.instructions.step3",
		"chat.greeting",
	} {
		if c.Strings[key] == "" {
			t.Errorf("base table lacks %s", key)
		}
	}

	c.Strings["app.error"] = "changed"
	if Base().Strings["app.error"] == "changed" {
		t.Error("Base() must return an independent copy")
	}
}

func TestParseYAML(t *testing.T) {
	table, err := ParseYAML([]byte("a:\n  b: one\n  c:\n    d: two\ne: 3\n"))
	if err != nil {
		t.Fatalf("ParseYAML() error = %v", err)
	}
	want := map[string]string{"a.b": "one", "a.c.d": "two", "e": "3"}
	if !reflect.DeepEqual(table, want) {
		t.Errorf("ParseYAML() = %v, want %v", table, want)
	}

	if _, err := ParseYAML([]byte("a: [unterminated")); err == nil {
		t.Error("ParseYAML() should fail on broken YAML")
	}
}

func TestCatalog_T(t *testing.T) {
	c := &Catalog{Strings: map[string]string{
		"greet": "Hello {name}, {name}!",
		"plain": "Nothing to fill",
	}}

	if got := c.T("greet", "name", "Sara"); got != "Hello Sara, Sara!" {
		t.Errorf("T() = %q", got)
	}
	if got := c.T("plain", "unused", "x"); got != "Nothing to fill" {
		t.Errorf("T() = %q", got)
	}
	if got := c.T("missing.key"); got != "missing.key" {
		t.Errorf("T(missing) = %q, want the key", got)
	}
	if got := c.T("greet", "name"); got != "Hello {name}, {name}!" {
		t.Errorf("T() with odd pairs = %q", got)
	}
}

func TestValidate(t *testing.T) {
	base := map[string]string{
		"a": "Error: {error}",
		"b": "Press **exactly** this",
		"c": "Plain",
	}

	good := map[string]string{
		"a":     "خطا: {error}",
		"b":     "**دقیقا** این را بزنید",
		"c":     "ساده",
		"extra": "ignored",
	}
	if err := Validate(base, good); err != nil {
		t.Errorf("Validate(good) error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(m map[string]string)
	}{
		{"missing key", func(m map[string]string) { delete(m, "c") }},
		{"empty value", func(m map[string]string) { m["c"] = "  " }},
		{"translated placeholder", func(m map[string]string) { m["a"] = "خطا: {خطا}" }},
		{"dropped placeholder", func(m map[string]string) { m["a"] = "خطا" }},
		{"dropped bold", func(m map[string]string) { m["b"] = "دقیقا این را بزنید" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := maps.Clone(good)
			tt.mutate(bad)
			if err := Validate(base, bad); !errors.Is(err, ErrInvalidTranslation) {
				t.Errorf("Validate() error = %v, want ErrInvalidTranslation", err)
			}
		})
	}
}

func TestSegments(t *testing.T) {
	tests := []struct {
		in   string
		want []Segment
	}{
		{"plain", []Segment{{Text: "plain"}}},
		{"a **b** c", []Segment{{Text: "a "}, {Text: "b", Bold: true}, {Text: " c"}}},
		{"**all**", []Segment{{Text: "all", Bold: true}}},
		{"dangling ** marker", []Segment{{Text: "dangling ** marker"}}},
		{"", nil},
	}

	for _, tt := range tests {
		if got := Segments(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Segments(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	if got := Plain("Use **OAuth Client ID** here"); got != "Use OAuth Client ID here" {
		t.Errorf("Plain() = %q", got)
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{b} then {a} and {b}")
	if want := []string{"{a}", "{b}", "{b}"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders() = %v, want %v", got, want)
	}
}
