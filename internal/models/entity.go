package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Meta carries the store-assigned identity of a persisted entity.
type Meta struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (m Meta) EntityID() string { return m.ID }

func (m Meta) EntityVersion() int64 { return m.Version }

func (m Meta) GetMeta() Meta { return m }

// SetMeta overwrites the identity fields; used when decoding store records.
func (m *Meta) SetMeta(meta Meta) { *m = meta }

// Entity is implemented by every type held in a Domain Store collection.
type Entity interface {
	EntityID() string
	EntityVersion() int64
}

// MetaSetter is the pointer side of Entity.
type MetaSetter[T any] interface {
	*T
	Entity
	GetMeta() Meta
	SetMeta(meta Meta)
}

// ApplyPatch overlays a shallow field patch onto v using its JSON field names.
// Identity fields in the patch are ignored.
func ApplyPatch[T any, P MetaSetter[T]](v T, patch map[string]interface{}) (T, error) {
	meta := P(&v).GetMeta()

	raw, err := json.Marshal(v)
	if err != nil {
		return v, fmt.Errorf("marshal entity: %w", err)
	}
	fields := map[string]interface{}{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return v, fmt.Errorf("unmarshal entity: %w", err)
	}
	for k, val := range patch {
		if IsMetaField(k) {
			continue
		}
		fields[k] = val
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return v, fmt.Errorf("marshal patch: %w", err)
	}

	var out T
	if err := json.Unmarshal(merged, &out); err != nil {
		return v, fmt.Errorf("apply patch: %w", err)
	}
	P(&out).SetMeta(meta)
	return out, nil
}

// IsMetaField reports whether a JSON field name belongs to Meta.
func IsMetaField(name string) bool {
	switch name {
	case "id", "version", "createdAt", "updatedAt":
		return true
	}
	return false
}
