// Package facade exposes every state-changing workspace operation. Each one
// writes through the persistence client and then reconciles the domain store,
// either by upserting the version-stamped record the store returned or by a
// full refresh, depending on the configured write mode.
package facade

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"time"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/common/metrics"
	"partner-workspace/internal/domain"
	"partner-workspace/internal/models"
	"partner-workspace/internal/persistence"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type WriteMode string

const (
	// WriteModeRefresh awaits a full RefreshAll after every write.
	WriteModeRefresh WriteMode = "refresh"
	// WriteModeReconcile upserts the record returned by the write.
	WriteModeReconcile WriteMode = "reconcile"
)

const DefaultMaxAdmins = 5

var errNoUploader = stderrors.New("no uploader configured")

type Config struct {
	WriteMode   WriteMode
	MaxAdmins   int
	ImageBucket string
}

// Uploader stores files and returns the URL to keep on the record.
type Uploader interface {
	UploadImage(ctx context.Context, name string, r io.Reader, bucket string) (string, error)
	UploadDocument(ctx context.Context, name string, r io.Reader) (string, error)
}

// Notifier delivers a persisted notification outside the app.
type Notifier interface {
	Deliver(ctx context.Context, recipient models.User, n models.Notification) error
}

type Facade struct {
	client   persistence.Client
	store    *domain.Store
	cfg      Config
	uploads  Uploader
	notifier Notifier
	log      logger.Logger
	tracer   trace.Tracer
	newID    func() string
	now      func() time.Time

	roleMu sync.Mutex

	bgMu     sync.Mutex
	bg       conc.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
	closed   bool
}

type Option func(*Facade)

func WithLogger(log logger.Logger) Option {
	return func(f *Facade) { f.log = log }
}

func WithUploader(u Uploader) Option {
	return func(f *Facade) { f.uploads = u }
}

func WithNotifier(n Notifier) Option {
	return func(f *Facade) { f.notifier = n }
}

func WithTracer(t trace.Tracer) Option {
	return func(f *Facade) { f.tracer = t }
}

func New(client persistence.Client, store *domain.Store, cfg Config, opts ...Option) *Facade {
	if cfg.WriteMode == "" {
		cfg.WriteMode = WriteModeReconcile
	}
	if cfg.MaxAdmins <= 0 {
		cfg.MaxAdmins = DefaultMaxAdmins
	}
	f := &Facade{
		client: client,
		store:  store,
		cfg:    cfg,
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = logger.ForComponent(f.log, "facade")
	if f.tracer == nil {
		f.tracer = otel.Tracer("partner-workspace/facade")
	}
	f.bgCtx, f.bgCancel = context.WithCancel(context.Background())
	return f
}

// Store returns the domain store the façade keeps current.
func (f *Facade) Store() *domain.Store { return f.store }

func (f *Facade) snapshot() *domain.Snapshot { return f.store.Snapshot() }

// Refresh runs a full resync of the domain store.
func (f *Facade) Refresh(ctx context.Context) domain.Report {
	return f.store.RefreshAll(ctx)
}

// Close waits for background refreshes started by optimistic operations.
func (f *Facade) Close() {
	f.bgMu.Lock()
	f.closed = true
	f.bgMu.Unlock()

	f.bg.Wait()
	f.bgCancel()
}

// refreshInBackground starts a RefreshAll the caller does not wait for.
func (f *Facade) refreshInBackground() {
	f.bgMu.Lock()
	defer f.bgMu.Unlock()
	if f.closed {
		return
	}
	f.bg.Go(func() {
		report := f.store.RefreshAll(f.bgCtx)
		if !report.OK() {
			f.log.Warn("Background refresh degraded", map[string]interface{}{
				"error": report.Err().Error(),
			})
		}
	})
}

// run wraps one operation in a span and counts its outcome.
func (f *Facade) run(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := f.tracer.Start(ctx, "facade."+op, trace.WithAttributes(attrs...))
	defer span.End()

	err := fn(ctx)
	metrics.Mutations.WithLabelValues(op, metrics.Outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		fields := map[string]interface{}{"operation": op, "error": err.Error()}
		if errors.IsValidation(err) {
			f.log.Debug("Operation rejected", fields)
		} else {
			f.log.Warn("Operation failed", fields)
		}
	}
	return err
}

// commit brings the domain store up to date after a successful write.
func (f *Facade) commit(ctx context.Context, c persistence.Collection, rec persistence.Record) error {
	if f.cfg.WriteMode == WriteModeRefresh {
		f.store.RefreshAll(ctx)
		return nil
	}
	_, err := f.store.Apply(c, rec)
	return err
}

func (f *Facade) create(ctx context.Context, op string, c persistence.Collection, fields any) (persistence.Record, error) {
	rec, err := f.client.Create(ctx, c, fields)
	if err != nil {
		return rec, errors.NewRemoteWriteError(op, err)
	}
	return rec, f.commit(ctx, c, rec)
}

func (f *Facade) update(ctx context.Context, op string, c persistence.Collection, id string, patch map[string]any) (persistence.Record, error) {
	rec, err := f.client.Update(ctx, c, id, patch)
	if err != nil {
		return rec, errors.NewRemoteWriteError(op, err)
	}
	return rec, f.commit(ctx, c, rec)
}

func (f *Facade) toggle(ctx context.Context, op string, c persistence.Collection, id, field, member string) (persistence.Record, error) {
	rec, err := f.client.ToggleSetMembership(ctx, c, id, field, member)
	if err != nil {
		return rec, errors.NewRemoteWriteError(op, err)
	}
	return rec, f.commit(ctx, c, rec)
}

func decode[T any, P models.MetaSetter[T]](rec persistence.Record) (T, error) {
	v, err := persistence.Decode[T, P](rec)
	if err != nil {
		return v, errors.NewRemoteWriteError("decode", err)
	}
	return v, nil
}

// optimistic describes how one cached collection takes a local patch.
type optimistic[T any] struct {
	collection persistence.Collection
	op         string
	get        func(*domain.Snapshot, string) (T, bool)
	put        func(T)
}

// patchOptimistically publishes the patched entity before the remote write.
// On failure the previous entity is restored unless a newer version arrived
// in the meantime.
func patchOptimistically[T any, P models.MetaSetter[T]](ctx context.Context, f *Facade, o optimistic[T], prev T, patch map[string]any) (T, error) {
	next, err := models.ApplyPatch[T, P](prev, patch)
	if err != nil {
		return prev, errors.NewValidationError(err.Error())
	}
	id := P(&prev).EntityID()
	o.put(next)

	rec, err := f.client.Update(ctx, o.collection, id, patch)
	if err != nil {
		f.rollback(o.collection, o.op, id, func() bool {
			cur, ok := o.get(f.snapshot(), id)
			if !ok || P(&cur).EntityVersion() != P(&prev).EntityVersion() {
				return false
			}
			o.put(prev)
			return true
		})
		return prev, errors.NewRemoteWriteError(o.op, err)
	}

	stored, err := decode[T, P](rec)
	if err != nil {
		return prev, err
	}
	if _, err := f.store.Apply(o.collection, rec); err != nil {
		return prev, err
	}
	if f.cfg.WriteMode == WriteModeRefresh {
		f.refreshInBackground()
	}
	return stored, nil
}

func (f *Facade) rollback(c persistence.Collection, op, id string, restore func() bool) {
	restored := restore()
	if restored {
		metrics.OptimisticRollbacks.WithLabelValues(op).Inc()
	}
	f.log.Warn("Optimistic patch failed remotely", map[string]interface{}{
		"collection": string(c),
		"id":         id,
		"restored":   restored,
	})
}
