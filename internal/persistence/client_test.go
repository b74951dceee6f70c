package persistence

import (
	"context"
	"testing"

	"partner-workspace/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Shared backend contract
// ==========================

func runClientContract(t *testing.T, newClient func(t *testing.T) Client) {
	ctx := context.Background()

	t.Run("create assigns identity and version 1", func(t *testing.T) {
		c := newClient(t)
		rec, err := c.Create(ctx, Companies, models.CompanyProfile{
			Meta: models.Meta{ID: "ignored"},
			Name: "Acme",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.NotEqual(t, "ignored", rec.ID)
		assert.Equal(t, int64(1), rec.Version)
		assert.False(t, rec.CreatedAt.IsZero())

		company, err := Decode[models.CompanyProfile](rec)
		require.NoError(t, err)
		assert.Equal(t, "Acme", company.Name)
		assert.Equal(t, rec.ID, company.ID)
	})

	t.Run("get all returns creation order", func(t *testing.T) {
		c := newClient(t)
		for _, name := range []string{"a", "b", "c"} {
			_, err := c.Create(ctx, Users, map[string]any{"name": name})
			require.NoError(t, err)
		}
		recs, err := c.GetAll(ctx, Users)
		require.NoError(t, err)
		users, err := DecodeAll[models.User](recs)
		require.NoError(t, err)
		require.Len(t, users, 3)
		assert.Equal(t, "a", users[0].Name)
		assert.Equal(t, "c", users[2].Name)

		empty, err := c.GetAll(ctx, Partners)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("get reads one record by id", func(t *testing.T) {
		c := newClient(t)
		rec, err := c.Create(ctx, Applications, models.Application{CompanyID: "c1", PartnerID: "p1", Status: models.StatusPending})
		require.NoError(t, err)
		_, err = c.Update(ctx, Applications, rec.ID, map[string]any{"status": "accepted"})
		require.NoError(t, err)

		got, err := c.Get(ctx, Applications, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		app, err := Decode[models.Application](got)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAccepted, app.Status)

		_, err = c.Get(ctx, Applications, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update merges shallowly and bumps version", func(t *testing.T) {
		c := newClient(t)
		rec, err := c.Create(ctx, Companies, models.CompanyProfile{Name: "Acme", Location: "Paris", Industry: "Retail"})
		require.NoError(t, err)

		updated, err := c.Update(ctx, Companies, rec.ID, map[string]any{"location": "Berlin", "version": 40})
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)

		company, err := Decode[models.CompanyProfile](updated)
		require.NoError(t, err)
		assert.Equal(t, "Berlin", company.Location)
		assert.Equal(t, "Acme", company.Name)
		assert.Equal(t, "Retail", company.Industry)
	})

	t.Run("update of missing record is not found", func(t *testing.T) {
		c := newClient(t)
		_, err := c.Update(ctx, Users, "nope", map[string]any{"name": "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("toggle set membership is an involution", func(t *testing.T) {
		c := newClient(t)
		rec, err := c.Create(ctx, Partners, models.PartnerProfile{Name: "Pat"})
		require.NoError(t, err)

		on, err := c.ToggleSetMembership(ctx, Partners, rec.ID, "upvotes", "u1")
		require.NoError(t, err)
		p, _ := Decode[models.PartnerProfile](on)
		assert.Equal(t, []string{"u1"}, p.Upvotes)

		off, err := c.ToggleSetMembership(ctx, Partners, rec.ID, "upvotes", "u1")
		require.NoError(t, err)
		p, _ = Decode[models.PartnerProfile](off)
		assert.Empty(t, p.Upvotes)
		assert.Equal(t, int64(3), off.Version)
	})

	t.Run("duplicate application pair conflicts", func(t *testing.T) {
		c := newClient(t)
		app := models.Application{CompanyID: "c1", PartnerID: "p1", Status: models.StatusPending}
		_, err := c.Create(ctx, Applications, app)
		require.NoError(t, err)

		_, err = c.Create(ctx, Applications, app)
		assert.ErrorIs(t, err, ErrConflict)

		_, err = c.Create(ctx, Applications, models.Application{CompanyID: "p1", PartnerID: "c1"})
		assert.NoError(t, err, "pairs are ordered")

		recs, err := c.GetAll(ctx, Applications)
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("one collaboration per application", func(t *testing.T) {
		c := newClient(t)
		_, err := c.Create(ctx, Collaborations, models.Collaboration{ApplicationID: "a1"})
		require.NoError(t, err)
		_, err = c.Create(ctx, Collaborations, models.Collaboration{ApplicationID: "a1"})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("delete removes record and frees its natural key", func(t *testing.T) {
		c := newClient(t)
		rec, err := c.Create(ctx, Messages, models.ChatMessage{CollaborationID: "w1", Content: "hi", ClientKey: "k1"})
		require.NoError(t, err)

		require.NoError(t, c.Delete(ctx, Messages, rec.ID))
		assert.ErrorIs(t, c.Delete(ctx, Messages, rec.ID), ErrNotFound)

		_, err = c.Create(ctx, Messages, models.ChatMessage{CollaborationID: "w1", Content: "hi", ClientKey: "k1"})
		assert.NoError(t, err)
	})
}

func TestMemoryClient(t *testing.T) {
	runClientContract(t, func(t *testing.T) Client { return NewMemory() })
}

func TestRedisClient(t *testing.T) {
	runClientContract(t, func(t *testing.T) Client {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)

		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return NewRedis(rdb, "test")
	})
}

func TestMemoryRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().GetAll(ctx, Users)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToggleRejectsNonSetField(t *testing.T) {
	m := NewMemory()
	rec, err := m.Create(context.Background(), Companies, models.CompanyProfile{Name: "Acme"})
	require.NoError(t, err)

	_, err = m.ToggleSetMembership(context.Background(), Companies, rec.ID, "name", "u1")
	assert.Error(t, err)
	_, err = m.ToggleSetMembership(context.Background(), Companies, rec.ID, "id", "u1")
	assert.Error(t, err)
}
