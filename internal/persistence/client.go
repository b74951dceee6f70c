// Package persistence is the remote CRUD client for the workspace entity
// collections. The store owns durable state; every successful write assigns a new
// version that callers use to reconcile cached copies.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"partner-workspace/internal/models"
)

// Collection names an entity collection.
type Collection string

const (
	Users          Collection = "users"
	Companies      Collection = "companies"
	Partners       Collection = "partners"
	Applications   Collection = "applications"
	Collaborations Collection = "collaborations"
	Notifications  Collection = "notifications"
	Messages       Collection = "messages"
)

// AllCollections lists every collection in a stable order.
var AllCollections = []Collection{Users, Companies, Partners, Applications, Collaborations, Notifications, Messages}

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflicts with an existing record")
)

// Client is the contract every store backend implements.
type Client interface {
	GetAll(ctx context.Context, c Collection) ([]Record, error)
	// Get reads one record; a missing id yields ErrNotFound.
	Get(ctx context.Context, c Collection, id string) (Record, error)
	Create(ctx context.Context, c Collection, fields any) (Record, error)
	// Update shallow-merges patch into the stored fields.
	Update(ctx context.Context, c Collection, id string, patch map[string]any) (Record, error)
	Delete(ctx context.Context, c Collection, id string) error
	// ToggleSetMembership adds member to the string set held in field, or removes it
	// if present.
	ToggleSetMembership(ctx context.Context, c Collection, id, field, member string) (Record, error)
}

// Record is one stored entity. Data holds the entity fields without identity.
type Record struct {
	ID        string          `json:"id"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (r Record) Meta() models.Meta {
	return models.Meta{ID: r.ID, Version: r.Version, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

// Decode turns a record into a typed entity carrying the record's identity.
func Decode[T any, P models.MetaSetter[T]](r Record) (T, error) {
	var v T
	if err := json.Unmarshal(r.Data, &v); err != nil {
		return v, fmt.Errorf("decode record %s: %w", r.ID, err)
	}
	P(&v).SetMeta(r.Meta())
	return v, nil
}

// DecodeAll decodes every record, stopping at the first failure.
func DecodeAll[T any, P models.MetaSetter[T]](records []Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		v, err := Decode[T, P](r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
