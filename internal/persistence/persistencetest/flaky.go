// Package persistencetest provides a store client wrapper with failure, latency
// and blocking injection for tests of the layers above persistence.
package persistencetest

import (
	"context"
	"sync"
	"time"

	"partner-workspace/internal/persistence"
)

type Op string

const (
	OpGetAll Op = "getAll"
	OpGet    Op = "get"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpToggle Op = "toggle"
)

type key struct {
	op Op
	c  persistence.Collection
}

// Flaky wraps a Client. Zero configuration passes every call through.
type Flaky struct {
	inner persistence.Client

	mu        sync.Mutex
	failures  map[key]error
	gates     map[key]chan struct{}
	overrides map[persistence.Collection][]persistence.Record
	calls     map[key]int
	latency   time.Duration
}

func NewFlaky(inner persistence.Client) *Flaky {
	return &Flaky{
		inner:     inner,
		failures:  map[key]error{},
		gates:     map[key]chan struct{}{},
		overrides: map[persistence.Collection][]persistence.Record{},
		calls:     map[key]int{},
	}
}

// FailOn makes every op on c return err until Clear is called.
func (f *Flaky) FailOn(op Op, c persistence.Collection, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key{op, c}] = err
}

func (f *Flaky) Clear(op Op, c persistence.Collection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, key{op, c})
}

// Gate blocks op on c until the returned release func is called.
func (f *Flaky) Gate(op Op, c persistence.Collection) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[key{op, c}] = ch
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[key{op, c}] == ch {
				delete(f.gates, key{op, c})
			}
			f.mu.Unlock()
			close(ch)
		})
	}
}

// OverrideGetAll makes GetAll on c return records verbatim until ClearOverride.
func (f *Flaky) OverrideGetAll(c persistence.Collection, records []persistence.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if records == nil {
		records = []persistence.Record{}
	}
	f.overrides[c] = records
}

func (f *Flaky) ClearOverride(c persistence.Collection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.overrides, c)
}

func (f *Flaky) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

// Calls returns how many times op on c was invoked.
func (f *Flaky) Calls(op Op, c persistence.Collection) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key{op, c}]
}

func (f *Flaky) before(ctx context.Context, op Op, c persistence.Collection) error {
	f.mu.Lock()
	k := key{op, c}
	f.calls[k]++
	gate := f.gates[k]
	latency := f.latency
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[k]
}

func (f *Flaky) GetAll(ctx context.Context, c persistence.Collection) ([]persistence.Record, error) {
	if err := f.before(ctx, OpGetAll, c); err != nil {
		return nil, err
	}
	f.mu.Lock()
	override, ok := f.overrides[c]
	f.mu.Unlock()
	if ok {
		return append([]persistence.Record(nil), override...), nil
	}
	return f.inner.GetAll(ctx, c)
}

func (f *Flaky) Get(ctx context.Context, c persistence.Collection, id string) (persistence.Record, error) {
	if err := f.before(ctx, OpGet, c); err != nil {
		return persistence.Record{}, err
	}
	return f.inner.Get(ctx, c, id)
}

func (f *Flaky) Create(ctx context.Context, c persistence.Collection, fields any) (persistence.Record, error) {
	if err := f.before(ctx, OpCreate, c); err != nil {
		return persistence.Record{}, err
	}
	return f.inner.Create(ctx, c, fields)
}

func (f *Flaky) Update(ctx context.Context, c persistence.Collection, id string, patch map[string]any) (persistence.Record, error) {
	if err := f.before(ctx, OpUpdate, c); err != nil {
		return persistence.Record{}, err
	}
	return f.inner.Update(ctx, c, id, patch)
}

func (f *Flaky) Delete(ctx context.Context, c persistence.Collection, id string) error {
	if err := f.before(ctx, OpDelete, c); err != nil {
		return err
	}
	return f.inner.Delete(ctx, c, id)
}

func (f *Flaky) ToggleSetMembership(ctx context.Context, c persistence.Collection, id, field, member string) (persistence.Record, error) {
	if err := f.before(ctx, OpToggle, c); err != nil {
		return persistence.Record{}, err
	}
	return f.inner.ToggleSetMembership(ctx, c, id, field, member)
}
