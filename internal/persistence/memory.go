package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process store used for development and tests.
type Memory struct {
	mu      sync.RWMutex
	records map[Collection]map[string]Record
	order   map[Collection][]string
	unique  map[Collection]map[string]string

	now   func() time.Time
	newID func() string
}

func NewMemory() *Memory {
	return &Memory{
		records: map[Collection]map[string]Record{},
		order:   map[Collection][]string{},
		unique:  map[Collection]map[string]string{},
		now:     monotonicClock(),
		newID:   uuid.NewString,
	}
}

// GetAll returns records in creation order.
func (m *Memory) GetAll(ctx context.Context, c Collection) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.order[c]))
	for _, id := range m.order[c] {
		out = append(out, copyRecord(m.records[c][id]))
	}
	return out, nil
}

func (m *Memory) Get(ctx context.Context, c Collection, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[c][id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, c, id)
	}
	return copyRecord(rec), nil
}

func (m *Memory) Create(ctx context.Context, c Collection, fields any) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	data, err := encodeFields(fields)
	if err != nil {
		return Record{}, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Record{}, fmt.Errorf("encode fields: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key, hasKey := uniqueKey(c, data)
	if hasKey {
		if _, taken := m.unique[c][key]; taken {
			return Record{}, fmt.Errorf("%w: %s %s", ErrConflict, c, key)
		}
	}

	now := m.now()
	rec := Record{ID: m.newID(), Version: 1, Data: raw, CreatedAt: now, UpdatedAt: now}
	if m.records[c] == nil {
		m.records[c] = map[string]Record{}
	}
	m.records[c][rec.ID] = rec
	m.order[c] = append(m.order[c], rec.ID)
	if hasKey {
		if m.unique[c] == nil {
			m.unique[c] = map[string]string{}
		}
		m.unique[c][key] = rec.ID
	}
	return copyRecord(rec), nil
}

func (m *Memory) Update(ctx context.Context, c Collection, id string, patch map[string]any) (Record, error) {
	return m.rewrite(ctx, c, id, func(data json.RawMessage) (json.RawMessage, error) {
		return mergePatch(data, patch)
	})
}

func (m *Memory) ToggleSetMembership(ctx context.Context, c Collection, id, field, member string) (Record, error) {
	return m.rewrite(ctx, c, id, func(data json.RawMessage) (json.RawMessage, error) {
		return toggleMember(data, field, member)
	})
}

func (m *Memory) rewrite(ctx context.Context, c Collection, id string, fn func(json.RawMessage) (json.RawMessage, error)) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[c][id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, c, id)
	}
	data, err := fn(rec.Data)
	if err != nil {
		return Record{}, err
	}
	rec.Data = data
	rec.Version++
	rec.UpdatedAt = m.now()
	m.records[c][id] = rec
	return copyRecord(rec), nil
}

func (m *Memory) Delete(ctx context.Context, c Collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[c][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, c, id)
	}
	if fields, err := decodeFields(rec.Data); err == nil {
		if key, ok := uniqueKey(c, fields); ok {
			delete(m.unique[c], key)
		}
	}
	delete(m.records[c], id)
	order := m.order[c][:0]
	for _, existing := range m.order[c] {
		if existing != id {
			order = append(order, existing)
		}
	}
	m.order[c] = order
	return nil
}

func copyRecord(r Record) Record {
	r.Data = append(json.RawMessage(nil), r.Data...)
	return r
}
