// Package articles holds summarized articles grouped by category.
package articles

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Uncategorized is used for articles whose category is blank.
const Uncategorized = "Uncategorized"

// Article is one summarized news item. URL identifies it within a category.
type Article struct {
	Title    string  `json:"title"`
	Summary  string  `json:"summary"`
	URL      string  `json:"url"`
	Category string  `json:"category"`
	ImageURL *string `json:"imageUrl"`
}

// Image returns the image URL or "".
func (a Article) Image() string {
	if a.ImageURL == nil {
		return ""
	}
	return *a.ImageURL
}

// Group is one category and its articles in order.
type Group struct {
	Category string
	Articles []Article
}

// Categorized maps category to articles, keeping categories in first-seen
// order. It encodes as a JSON object whose key order is preserved in both
// directions.
type Categorized []Group

// GroupByCategory groups articles by trimmed category in first-seen order.
func GroupByCategory(list []Article) Categorized {
	var c Categorized
	for _, a := range list {
		c.Add(a)
	}
	return c
}

// Add appends an article to its category, creating the category if needed.
func (c *Categorized) Add(a Article) {
	category := strings.TrimSpace(a.Category)
	if category == "" {
		category = Uncategorized
	}
	c.append(category, a)
}

func (c *Categorized) append(category string, list ...Article) {
	for i := range *c {
		if (*c)[i].Category == category {
			(*c)[i].Articles = append((*c)[i].Articles, list...)
			return
		}
	}
	*c = append(*c, Group{Category: category, Articles: append([]Article(nil), list...)})
}

// Categories returns the category names in order.
func (c Categorized) Categories() []string {
	names := make([]string, len(c))
	for i, g := range c {
		names[i] = g.Category
	}
	return names
}

// Get returns the articles of a category, nil when absent.
func (c Categorized) Get(category string) []Article {
	for _, g := range c {
		if g.Category == category {
			return g.Articles
		}
	}
	return nil
}

// Count returns the total number of articles.
func (c Categorized) Count() int {
	n := 0
	for _, g := range c {
		n += len(g.Articles)
	}
	return n
}

// All returns every article in category order.
func (c Categorized) All() []Article {
	all := make([]Article, 0, c.Count())
	for _, g := range c {
		all = append(all, g.Articles...)
	}
	return all
}

func (c Categorized) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(g.Category)
		if err != nil {
			return nil, err
		}
		list := g.Articles
		if list == nil {
			list = []Article{}
		}
		value, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Categorized) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("categorized articles: expected object, got %v", tok)
	}

	var out Categorized
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		category, ok := tok.(string)
		if !ok {
			return fmt.Errorf("categorized articles: expected category key, got %v", tok)
		}

		var list []Article
		if err := dec.Decode(&list); err != nil {
			return fmt.Errorf("categorized articles: category %q: %w", category, err)
		}
		out.append(category, list...)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*c = out
	return nil
}
