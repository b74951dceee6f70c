// Package registry loads and validates the framework catalog that
// collaborations are created from.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"partner-workspace/internal/models"
)

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Version:     "1.0.0",
		LastUpdated: "2024-01-15T00:00:00Z",
		Entries: []models.Framework{
			{
				ID:          "lean-canvas",
				Name:        "Lean Canvas",
				Description: "One-page business model worked through problem to advantage.",
				Phases:      []string{"Problem", "Solution", "Key Metrics", "Unfair Advantage"},
				Metrics:     []string{"Customer interviews", "Conversion rate", "Monthly revenue"},
			},
			{
				ID:          "design-sprint",
				Name:        "Design Sprint",
				Description: "Five-day process from mapping the challenge to testing a prototype.",
				Phases:      []string{"Understand", "Sketch", "Decide", "Prototype", "Test"},
				Metrics:     []string{"Ideas generated", "User tests run", "Task success rate"},
			},
		},
	}
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a catalog document and validates it.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	result, err := catalogSchema.Validate(doc)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, fmt.Errorf("invalid catalog: %s", result.Summary())
	}

	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks the rules the schema cannot express.
func (c *Catalog) Validate() error {
	ids := make(map[string]bool, len(c.Entries))
	for _, fw := range c.Entries {
		if ids[fw.ID] {
			return fmt.Errorf("duplicate framework ID: %s", fw.ID)
		}
		ids[fw.ID] = true
	}
	return nil
}

// Frameworks returns copies of the catalog entries in catalog order.
func (c *Catalog) Frameworks() []models.Framework {
	out := make([]models.Framework, len(c.Entries))
	for i, fw := range c.Entries {
		out[i] = fw.Copy()
	}
	return out
}

func (c *Catalog) Find(id string) (models.Framework, bool) {
	for _, fw := range c.Entries {
		if fw.ID == id {
			return fw.Copy(), true
		}
	}
	return models.Framework{}, false
}

// Add appends a framework and stamps the catalog.
func (c *Catalog) Add(fw models.Framework) error {
	if _, ok := c.Find(fw.ID); ok {
		return fmt.Errorf("framework with ID %s already exists", fw.ID)
	}
	c.Entries = append(c.Entries, fw)
	c.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return nil
}

// Save writes the catalog as indented JSON, creating the directory if needed.
func (c *Catalog) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	return nil
}
