package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"partner-workspace/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordColumns = []string{"id", "version", "data", "created_at", "updated_at"}

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p := NewPostgres(db)
	p.newID = func() string { return "rec-1" }
	return p, mock
}

func TestPostgres_EnsureSchema(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS workspace_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE UNIQUE INDEX IF NOT EXISTS workspace_records_application_pair")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE UNIQUE INDEX IF NOT EXISTS workspace_records_collaboration_application")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE UNIQUE INDEX IF NOT EXISTS workspace_records_message_client_key")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, p.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetAll(t *testing.T) {
	p, mock := newMockPostgres(t)
	created := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, version, data, created_at, updated_at FROM workspace_records")).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("u1", int64(3), []byte(`{"name":"Ann","role":"admin"}`), created, created).
			AddRow("u2", int64(1), []byte(`{"name":"Bo","role":"partner"}`), created, created))

	recs, err := p.GetAll(context.Background(), Users)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	u, err := Decode[models.User](recs[0])
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, int64(3), u.Version)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get(t *testing.T) {
	p, mock := newMockPostgres(t)
	created := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, version, data, created_at, updated_at FROM workspace_records")).
		WithArgs("applications", "a1").
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("a1", int64(2), []byte(`{"companyId":"c1","partnerId":"p1","status":"accepted"}`), created, created))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, version, data, created_at, updated_at FROM workspace_records")).
		WithArgs("applications", "missing").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	rec, err := p.Get(context.Background(), Applications, "a1")
	require.NoError(t, err)
	app, err := Decode[models.Application](rec)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, app.Status)
	assert.Equal(t, int64(2), app.Version)

	_, err = p.Get(context.Background(), Applications, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Create(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workspace_records")).
		WithArgs("applications", "rec-1", int64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := p.Create(context.Background(), Applications, models.Application{
		CompanyID: "c1", PartnerID: "p1", Status: models.StatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", rec.ID)
	assert.JSONEq(t, `{"companyId":"c1","partnerId":"p1","status":"pending"}`, string(rec.Data))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateUniqueViolation(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workspace_records")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "workspace_records_application_pair"})

	_, err := p.Create(context.Background(), Applications, models.Application{CompanyID: "c1", PartnerID: "p1"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Update(t *testing.T) {
	p, mock := newMockPostgres(t)
	created := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE workspace_records SET data = data || $3::jsonb")).
		WithArgs("companies", "c1", []byte(`{"location":"Berlin"}`), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("c1", int64(5), []byte(`{"name":"Acme","location":"Berlin"}`), created, created.Add(time.Hour)))

	rec, err := p.Update(context.Background(), Companies, "c1", map[string]any{"location": "Berlin", "id": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateNotFound(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE workspace_records")).
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err := p.Update(context.Background(), Companies, "missing", map[string]any{"name": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ToggleSetMembership(t *testing.T) {
	p, mock := newMockPostgres(t)
	created := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM workspace_records WHERE collection = $1 AND id = $2 FOR UPDATE")).
		WithArgs("partners", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"name":"Pat","upvotes":["u2"]}`)))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE workspace_records SET data = $3")).
		WithArgs("partners", "p1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("p1", int64(2), []byte(`{"name":"Pat","upvotes":["u2","u1"]}`), created, created))
	mock.ExpectCommit()

	rec, err := p.ToggleSetMembership(context.Background(), Partners, "p1", "upvotes", "u1")
	require.NoError(t, err)

	partner, err := Decode[models.PartnerProfile](rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u1"}, partner.Upvotes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ToggleMissingRollsBack(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM workspace_records")).
		WithArgs("partners", "nope").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))
	mock.ExpectRollback()

	_, err := p.ToggleSetMembership(context.Background(), Partners, "nope", "upvotes", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Delete(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM workspace_records")).
		WithArgs("links", "l1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM workspace_records")).
		WithArgs("links", "l1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, p.Delete(context.Background(), Collection("links"), "l1"))
	assert.ErrorIs(t, p.Delete(context.Background(), Collection("links"), "l1"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
