// Package catalog holds the pre-built template catalog the server loads once
// at startup and serves read-only: over HTTP for pickers, and to template
// elements that reference a template by id.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/canvaslab/canvas-sync/pkg/observability"
)

// Slot is one fillable region of a template
type Slot struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"` // text, image
	Placeholder string `json:"placeholder,omitempty"`
}

// Template is one pre-built canvas layout
type Template struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Preview  string  `json:"preview,omitempty"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Slots    []Slot  `json:"slots,omitempty"`
}

// Catalog is an immutable set of templates. It is built once at startup and
// never mutated, so reads need no locking.
type Catalog struct {
	templates []Template
	byID      map[string]Template
}

// Load reads the catalog from the given JSON file. A missing file yields the
// built-in default catalog rather than an error; any other failure is
// surfaced.
func Load(path string, logger observability.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("Template catalog file not found, using built-in defaults", map[string]interface{}{
				"path": path,
			})
			return build(defaultTemplates()), nil
		}
		return nil, fmt.Errorf("reading template catalog: %w", err)
	}

	var templates []Template
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parsing template catalog %s: %w", path, err)
	}

	logger.Info("Template catalog loaded", map[string]interface{}{
		"path":  path,
		"count": len(templates),
	})
	return build(templates), nil
}

func build(templates []Template) *Catalog {
	c := &Catalog{
		templates: templates,
		byID:      make(map[string]Template, len(templates)),
	}
	for _, t := range templates {
		c.byID[t.ID] = t
	}
	return c
}

// List returns every template in catalog order
func (c *Catalog) List() []Template {
	out := make([]Template, len(c.templates))
	copy(out, c.templates)
	return out
}

// Get returns the template with the given id
func (c *Catalog) Get(id string) (Template, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// defaultTemplates is the catalog shipped with the server binary
func defaultTemplates() []Template {
	return []Template{
		{
			ID:     "blank-1080p",
			Name:   "Blank 1080p",
			Width:  1920,
			Height: 1080,
		},
		{
			ID:       "social-square",
			Name:     "Social Square",
			Category: "social",
			Width:    1080,
			Height:   1080,
			Slots: []Slot{
				{Name: "headline", Kind: "text", Placeholder: "Your headline"},
				{Name: "hero", Kind: "image"},
			},
		},
		{
			ID:       "presentation-16x9",
			Name:     "Presentation 16:9",
			Category: "presentation",
			Width:    1920,
			Height:   1080,
			Slots: []Slot{
				{Name: "title", Kind: "text", Placeholder: "Title"},
				{Name: "subtitle", Kind: "text", Placeholder: "Subtitle"},
			},
		},
	}
}
