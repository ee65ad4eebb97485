// Package taxonomy holds the category and subcategory names items are filed under.
package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/erazemk/lostfound/internal/model"
)

//go:embed categories.yaml
var defaultCategories []byte

// Category is a top-level category and its subcategories.
type Category struct {
	Name          string   `yaml:"name" json:"name"`
	Subcategories []string `yaml:"subcategories" json:"subcategories"`
}

// Taxonomy is an ordered, case-insensitively indexed category list.
type Taxonomy struct {
	categories []Category
	index      map[string]map[string]string // folded category -> folded subcategory -> canonical subcategory
	names      map[string]string            // folded category -> canonical category
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	t, err := Parse(defaultCategories)
	if err != nil {
		panic(fmt.Sprintf("embedded categories: %v", err))
	}
	return t
}

// Load reads a taxonomy from a YAML file. An empty path yields the built-in one.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading categories: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing categories %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a taxonomy document.
func Parse(data []byte) (*Taxonomy, error) {
	var doc struct {
		Categories []Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("no categories defined")
	}

	t := &Taxonomy{
		index: map[string]map[string]string{},
		names: map[string]string{},
	}
	for _, c := range doc.Categories {
		name := strings.TrimSpace(c.Name)
		key := fold(name)
		if name == "" {
			return nil, fmt.Errorf("category without a name")
		}
		if _, dup := t.names[key]; dup {
			return nil, fmt.Errorf("duplicate category %q", name)
		}
		if len(c.Subcategories) == 0 {
			return nil, fmt.Errorf("category %q has no subcategories", name)
		}
		t.names[key] = name
		t.index[key] = map[string]string{}

		cat := Category{Name: name}
		for _, sub := range c.Subcategories {
			sub = strings.TrimSpace(sub)
			if sub == "" {
				continue
			}
			t.index[key][fold(sub)] = sub
			cat.Subcategories = append(cat.Subcategories, sub)
		}
		t.categories = append(t.categories, cat)
	}
	return t, nil
}

// Categories returns the categories in file order.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		out[i] = Category{Name: c.Name, Subcategories: append([]string(nil), c.Subcategories...)}
	}
	return out
}

// Canonical returns the stored spelling of a category/subcategory pair, or a
// validation error when the pair is not part of the taxonomy.
func (t *Taxonomy) Canonical(category, subcategory string) (string, string, error) {
	key := fold(category)
	subs, ok := t.index[key]
	if !ok {
		return "", "", model.Errorf(model.ErrValidation, "unknown category %q", category)
	}
	sub, ok := subs[fold(subcategory)]
	if !ok {
		return "", "", model.Errorf(model.ErrValidation, "unknown subcategory %q for category %q", subcategory, t.names[key])
	}
	return t.names[key], sub, nil
}

// Valid reports whether the pair is part of the taxonomy.
func (t *Taxonomy) Valid(category, subcategory string) bool {
	_, _, err := t.Canonical(category, subcategory)
	return err == nil
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
