package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// Redis keeps each collection in a hash of JSON-encoded records. Writes run as
// WATCH/MULTI transactions and are retried when a concurrent writer wins.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	newID  func() string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		now:    monotonicClock(),
		newID:  uuid.NewString,
	}
}

func (r *Redis) recordsKey(c Collection) string {
	return fmt.Sprintf("%s:%s", r.prefix, c)
}

func (r *Redis) uniqueKey(c Collection) string {
	return fmt.Sprintf("%s:%s:unique", r.prefix, c)
}

// GetAll returns records ordered by creation time.
func (r *Redis) GetAll(ctx context.Context, c Collection) ([]Record, error) {
	raw, err := r.client.HGetAll(ctx, r.recordsKey(c)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", c, err)
	}
	out := make([]Record, 0, len(raw))
	for id, payload := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", c, id, err)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *Redis) Get(ctx context.Context, c Collection, id string) (Record, error) {
	payload, err := r.client.HGet(ctx, r.recordsKey(c), id).Result()
	return decodePayload(c, id, payload, err)
}

func (r *Redis) Create(ctx context.Context, c Collection, fields any) (Record, error) {
	data, err := encodeFields(fields)
	if err != nil {
		return Record{}, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Record{}, fmt.Errorf("encode fields: %w", err)
	}

	now := r.now()
	rec := Record{ID: r.newID(), Version: 1, Data: raw, CreatedAt: now, UpdatedAt: now}
	payload, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}
	key, hasKey := uniqueKey(c, data)

	txf := func(tx *redis.Tx) error {
		if hasKey {
			taken, err := tx.HExists(ctx, r.uniqueKey(c), key).Result()
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: %s %s", ErrConflict, c, key)
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.recordsKey(c), rec.ID, payload)
			if hasKey {
				pipe.HSet(ctx, r.uniqueKey(c), key, rec.ID)
			}
			return nil
		})
		return err
	}

	if err := r.watch(ctx, txf, r.uniqueKey(c)); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *Redis) Update(ctx context.Context, c Collection, id string, patch map[string]any) (Record, error) {
	return r.rewrite(ctx, c, id, func(data json.RawMessage) (json.RawMessage, error) {
		return mergePatch(data, patch)
	})
}

func (r *Redis) ToggleSetMembership(ctx context.Context, c Collection, id, field, member string) (Record, error) {
	return r.rewrite(ctx, c, id, func(data json.RawMessage) (json.RawMessage, error) {
		return toggleMember(data, field, member)
	})
}

// rewrite applies fn to the stored fields. Natural-key fields are treated as
// immutable, so the unique index is not touched.
func (r *Redis) rewrite(ctx context.Context, c Collection, id string, fn func(json.RawMessage) (json.RawMessage, error)) (Record, error) {
	var out Record
	txf := func(tx *redis.Tx) error {
		rec, err := r.load(ctx, tx, c, id)
		if err != nil {
			return err
		}
		data, err := fn(rec.Data)
		if err != nil {
			return err
		}
		rec.Data = data
		rec.Version++
		rec.UpdatedAt = r.now()
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.recordsKey(c), id, payload)
			return nil
		})
		if err == nil {
			out = rec
		}
		return err
	}

	if err := r.watch(ctx, txf, r.recordsKey(c)); err != nil {
		return Record{}, err
	}
	return out, nil
}

func (r *Redis) Delete(ctx context.Context, c Collection, id string) error {
	txf := func(tx *redis.Tx) error {
		rec, err := r.load(ctx, tx, c, id)
		if err != nil {
			return err
		}
		fields, _ := decodeFields(rec.Data)
		key, hasKey := uniqueKey(c, fields)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, r.recordsKey(c), id)
			if hasKey {
				pipe.HDel(ctx, r.uniqueKey(c), key)
			}
			return nil
		})
		return err
	}
	return r.watch(ctx, txf, r.recordsKey(c))
}

func (r *Redis) load(ctx context.Context, tx *redis.Tx, c Collection, id string) (Record, error) {
	payload, err := tx.HGet(ctx, r.recordsKey(c), id).Result()
	return decodePayload(c, id, payload, err)
}

func decodePayload(c Collection, id, payload string, err error) (Record, error) {
	if errors.Is(err, redis.Nil) {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, c, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("hget %s/%s: %w", c, id, err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s/%s: %w", c, id, err)
	}
	return rec, nil
}

func (r *Redis) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction on %v: too many concurrent writers", keys)
}
