package registry

import (
	"partner-workspace/internal/common/validation"
	"partner-workspace/internal/models"
)

// Catalog is the global list of collaboration frameworks.
type Catalog struct {
	Version     string             `json:"version"`
	LastUpdated string             `json:"lastUpdated"`
	Entries     []models.Framework `json:"frameworks"`
}

var catalogSchema = validation.MustCompile("framework-catalog", `{
	"type": "object",
	"required": ["version", "frameworks"],
	"properties": {
		"version": {"type": "string", "minLength": 1},
		"lastUpdated": {"type": "string"},
		"frameworks": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "name", "phases"],
				"properties": {
					"id": {"type": "string", "pattern": "^[a-z0-9][a-z0-9-]*$"},
					"name": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"phases": {
						"type": "array",
						"minItems": 1,
						"uniqueItems": true,
						"items": {"type": "string", "minLength": 1}
					},
					"metrics": {
						"type": "array",
						"uniqueItems": true,
						"items": {"type": "string", "minLength": 1}
					}
				}
			}
		}
	}
}`)
