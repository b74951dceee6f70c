// Package domain holds the in-memory cache of every workspace collection and
// the full-refresh protocol that resynchronizes it from the store.
package domain

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/common/metrics"
	"partner-workspace/internal/common/observability"
	"partner-workspace/internal/models"
	"partner-workspace/internal/persistence"

	"github.com/sourcegraph/conc"
)

// Reader is the read side of the persistence client.
type Reader interface {
	GetAll(ctx context.Context, c persistence.Collection) ([]persistence.Record, error)
}

// CachedCollections are refreshed by RefreshAll. Chat messages are owned by the
// messaging synchronizer of each active workspace.
var CachedCollections = []persistence.Collection{
	persistence.Users,
	persistence.Companies,
	persistence.Partners,
	persistence.Applications,
	persistence.Collaborations,
	persistence.Notifications,
}

// Store publishes Snapshots. Reads never block; writes are serialized.
type Store struct {
	reader         Reader
	log            logger.Logger
	obs            *observability.Observability
	refreshTimeout time.Duration

	snap    atomic.Pointer[Snapshot]
	loaded  atomic.Bool
	writeMu sync.Mutex
}

type Option func(*Store)

func WithLogger(log logger.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithRefreshTimeout bounds each RefreshAll. Zero means no bound.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Store) { s.refreshTimeout = d }
}

func WithObservability(o *observability.Observability) Option {
	return func(s *Store) { s.obs = o }
}

func New(reader Reader, opts ...Option) *Store {
	s := &Store{reader: reader}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.ForComponent(s.log, "domain-store")
	if s.obs == nil {
		s.obs = observability.NewNoop("domain-store")
	}
	s.snap.Store(emptySnapshot())
	return s
}

// Snapshot returns the current published view.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Loaded reports whether the first RefreshAll has completed, even if some of
// its fetches failed.
func (s *Store) Loaded() bool {
	return s.loaded.Load()
}

// Report describes one RefreshAll.
type Report struct {
	Duration time.Duration
	Counts   map[persistence.Collection]int
	Failures map[persistence.Collection]error
}

func (r Report) OK() bool { return len(r.Failures) == 0 }

// Err joins the per-collection failures, or returns nil.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, c := range CachedCollections {
		if err, ok := r.Failures[c]; ok {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func goFetch[T models.Entity, P models.MetaSetter[T]](
	wg *conc.WaitGroup,
	ctx context.Context,
	r Reader,
	c persistence.Collection,
	dst *[]T,
	fail func(persistence.Collection, error),
) {
	wg.Go(func() {
		recs, err := r.GetAll(ctx, c)
		if err == nil {
			var items []T
			if items, err = persistence.DecodeAll[T, P](recs); err == nil {
				*dst = items
				return
			}
		}
		fail(c, err)
	})
}

// RefreshAll fetches every cached collection concurrently and then replaces
// all of them in one swap. A failed fetch leaves that collection empty; the
// other collections are unaffected and nothing is retried. When refreshes
// overlap, the one that finishes last wins.
func (s *Store) RefreshAll(ctx context.Context) Report {
	start := time.Now()
	if s.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.refreshTimeout)
		defer cancel()
	}

	var (
		users          []models.User
		companies      []models.CompanyProfile
		partners       []models.PartnerProfile
		applications   []models.Application
		collaborations []models.Collaboration
		notifications  []models.Notification

		mu       sync.Mutex
		failures = map[persistence.Collection]error{}
	)
	fail := func(c persistence.Collection, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures[c] = errors.NewRemoteReadError(string(c), err)
	}

	var wg conc.WaitGroup
	goFetch[models.User](&wg, ctx, s.reader, persistence.Users, &users, fail)
	goFetch[models.CompanyProfile](&wg, ctx, s.reader, persistence.Companies, &companies, fail)
	goFetch[models.PartnerProfile](&wg, ctx, s.reader, persistence.Partners, &partners, fail)
	goFetch[models.Application](&wg, ctx, s.reader, persistence.Applications, &applications, fail)
	goFetch[models.Collaboration](&wg, ctx, s.reader, persistence.Collaborations, &collaborations, fail)
	goFetch[models.Notification](&wg, ctx, s.reader, persistence.Notifications, &notifications, fail)
	wg.Wait()

	next := &Snapshot{
		Users:          newCollection(users),
		Companies:      newCollection(companies),
		Partners:       newCollection(partners),
		Applications:   newCollection(applications),
		Collaborations: newCollection(collaborations),
		Notifications:  newCollection(notifications),
		owners:         buildOwners(users),
	}

	s.writeMu.Lock()
	s.snap.Store(next)
	s.writeMu.Unlock()
	s.loaded.Store(true)

	report := Report{
		Duration: time.Since(start),
		Counts: map[persistence.Collection]int{
			persistence.Users:          next.Users.Len(),
			persistence.Companies:      next.Companies.Len(),
			persistence.Partners:       next.Partners.Len(),
			persistence.Applications:   next.Applications.Len(),
			persistence.Collaborations: next.Collaborations.Len(),
			persistence.Notifications:  next.Notifications.Len(),
		},
		Failures: failures,
	}
	s.record(ctx, report)
	return report
}

func (s *Store) record(ctx context.Context, report Report) {
	for c, err := range report.Failures {
		metrics.StoreFetchFailures.WithLabelValues(string(c)).Inc()
		s.log.Warn("Collection fetch failed, using empty collection", map[string]interface{}{
			"collection": string(c),
			"error":      err.Error(),
		})
	}

	outcome := "success"
	if !report.OK() {
		outcome = "degraded"
	}
	metrics.StoreRefreshes.WithLabelValues(outcome).Inc()
	metrics.StoreRefreshDuration.Observe(report.Duration.Seconds())
	s.obs.RecordRefresh(ctx, report.Duration, len(report.Failures))

	s.log.Debug("Domain store refreshed", map[string]interface{}{
		"durationMs": report.Duration.Milliseconds(),
		"failed":     len(report.Failures),
	})
}

// mutate publishes a modified copy of the current snapshot if fn reports a change.
func (s *Store) mutate(fn func(next *Snapshot) bool) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := *s.snap.Load()
	if !fn(&next) {
		return false
	}
	s.snap.Store(&next)
	return true
}

func reconciled(c persistence.Collection, applied bool) bool {
	result := "applied"
	if !applied {
		result = "stale"
	}
	metrics.StoreReconciliations.WithLabelValues(string(c), result).Inc()
	return applied
}

// Apply decodes a record returned by a store write and upserts it into the
// matching collection. Records older than the cached entity are ignored.
func (s *Store) Apply(c persistence.Collection, rec persistence.Record) (bool, error) {
	switch c {
	case persistence.Users:
		v, err := persistence.Decode[models.User](rec)
		if err != nil {
			return false, err
		}
		return s.UpsertUser(v), nil
	case persistence.Companies:
		v, err := persistence.Decode[models.CompanyProfile](rec)
		if err != nil {
			return false, err
		}
		return s.UpsertCompany(v), nil
	case persistence.Partners:
		v, err := persistence.Decode[models.PartnerProfile](rec)
		if err != nil {
			return false, err
		}
		return s.UpsertPartner(v), nil
	case persistence.Applications:
		v, err := persistence.Decode[models.Application](rec)
		if err != nil {
			return false, err
		}
		return s.UpsertApplication(v), nil
	case persistence.Collaborations:
		v, err := persistence.Decode[models.Collaboration](rec)
		if err != nil {
			return false, err
		}
		return s.UpsertCollaboration(v), nil
	case persistence.Notifications:
		v, err := persistence.Decode[models.Notification](rec)
		if err != nil {
			return false, err
		}
		return s.UpsertNotification(v), nil
	}
	return false, fmt.Errorf("collection %s is not cached by the domain store", c)
}

func (s *Store) UpsertUser(u models.User) bool {
	return reconciled(persistence.Users, s.mutate(func(n *Snapshot) bool {
		prev, had := n.Users.Get(u.ID)
		users, changed := n.Users.upsert(u)
		if !changed {
			return false
		}
		var p *models.User
		if had {
			p = &prev
		}
		n.Users = users
		n.owners = withUser(n.owners, p, u)
		return true
	}))
}

func (s *Store) UpsertCompany(c models.CompanyProfile) bool {
	return reconciled(persistence.Companies, s.mutate(func(n *Snapshot) bool {
		var changed bool
		n.Companies, changed = n.Companies.upsert(c)
		return changed
	}))
}

func (s *Store) UpsertPartner(p models.PartnerProfile) bool {
	return reconciled(persistence.Partners, s.mutate(func(n *Snapshot) bool {
		var changed bool
		n.Partners, changed = n.Partners.upsert(p)
		return changed
	}))
}

func (s *Store) UpsertApplication(a models.Application) bool {
	return reconciled(persistence.Applications, s.mutate(func(n *Snapshot) bool {
		var changed bool
		n.Applications, changed = n.Applications.upsert(a)
		return changed
	}))
}

func (s *Store) UpsertCollaboration(c models.Collaboration) bool {
	return reconciled(persistence.Collaborations, s.mutate(func(n *Snapshot) bool {
		var changed bool
		n.Collaborations, changed = n.Collaborations.upsert(c)
		return changed
	}))
}

func (s *Store) UpsertNotification(x models.Notification) bool {
	return reconciled(persistence.Notifications, s.mutate(func(n *Snapshot) bool {
		var changed bool
		n.Notifications, changed = n.Notifications.upsert(x)
		return changed
	}))
}

// PatchUser writes u without a version check. Used for optimistic local
// changes and their rollback.
func (s *Store) PatchUser(u models.User) {
	s.mutate(func(n *Snapshot) bool {
		prev, had := n.Users.Get(u.ID)
		var p *models.User
		if had {
			p = &prev
		}
		n.Users = n.Users.put(u)
		n.owners = withUser(n.owners, p, u)
		return true
	})
}

func (s *Store) PatchCompany(c models.CompanyProfile) {
	s.mutate(func(n *Snapshot) bool {
		n.Companies = n.Companies.put(c)
		return true
	})
}

func (s *Store) PatchPartner(p models.PartnerProfile) {
	s.mutate(func(n *Snapshot) bool {
		n.Partners = n.Partners.put(p)
		return true
	})
}

// Remove drops one entity from a cached collection.
func (s *Store) Remove(c persistence.Collection, id string) bool {
	return s.mutate(func(n *Snapshot) bool {
		var removed bool
		switch c {
		case persistence.Users:
			var prev models.User
			prev, removed = n.Users.Get(id)
			if removed {
				n.Users, _ = n.Users.remove(id)
				owners := make(map[string]string, len(n.owners))
				for k, v := range n.owners {
					if !(k == prev.ProfileID && v == id) {
						owners[k] = v
					}
				}
				n.owners = owners
			}
		case persistence.Companies:
			n.Companies, removed = n.Companies.remove(id)
		case persistence.Partners:
			n.Partners, removed = n.Partners.remove(id)
		case persistence.Applications:
			n.Applications, removed = n.Applications.remove(id)
		case persistence.Collaborations:
			n.Collaborations, removed = n.Collaborations.remove(id)
		case persistence.Notifications:
			n.Notifications, removed = n.Notifications.remove(id)
		}
		return removed
	})
}
