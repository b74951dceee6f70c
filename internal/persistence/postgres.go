package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// schemaStatements create the record table and the natural-key unique indexes
// that back the no-duplicate guarantees across processes.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS workspace_records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		version BIGINT NOT NULL,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS workspace_records_application_pair
		ON workspace_records ((data->>'companyId'), (data->>'partnerId'))
		WHERE collection = 'applications'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS workspace_records_collaboration_application
		ON workspace_records ((data->>'applicationId'))
		WHERE collection = 'collaborations'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS workspace_records_message_client_key
		ON workspace_records ((data->>'collaborationId'), (data->>'clientKey'))
		WHERE collection = 'messages' AND data->>'clientKey' <> ''`,
}

const uniqueViolation = "23505"

// Postgres stores every collection as JSONB rows of one table.
type Postgres struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db:    db,
		now:   monotonicClock(),
		newID: uuid.NewString,
	}
}

// EnsureSchema creates the table and indexes if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) GetAll(ctx context.Context, c Collection) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, version, data, created_at, updated_at FROM workspace_records
		WHERE collection = $1 ORDER BY created_at, id`, string(c))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var data []byte
		if err := rows.Scan(&rec.ID, &rec.Version, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c, err)
		}
		rec.Data = data
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", c, err)
	}
	return out, nil
}

func (p *Postgres) Get(ctx context.Context, c Collection, id string) (Record, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, version, data, created_at, updated_at FROM workspace_records
		WHERE collection = $1 AND id = $2`, string(c), id)
	return scanRecord(c, id, row)
}

func (p *Postgres) Create(ctx context.Context, c Collection, fields any) (Record, error) {
	data, err := encodeFields(fields)
	if err != nil {
		return Record{}, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Record{}, fmt.Errorf("encode fields: %w", err)
	}

	now := p.now()
	rec := Record{ID: p.newID(), Version: 1, Data: raw, CreatedAt: now, UpdatedAt: now}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO workspace_records (collection, id, version, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(c), rec.ID, rec.Version, []byte(raw), now, now)
	if err != nil {
		return Record{}, mapPQError(c, rec.ID, err)
	}
	return rec, nil
}

func (p *Postgres) Update(ctx context.Context, c Collection, id string, patch map[string]any) (Record, error) {
	clean, err := encodeFields(patch)
	if err != nil {
		return Record{}, err
	}
	raw, err := json.Marshal(clean)
	if err != nil {
		return Record{}, fmt.Errorf("encode patch: %w", err)
	}

	row := p.db.QueryRowContext(ctx,
		`UPDATE workspace_records SET data = data || $3::jsonb, version = version + 1, updated_at = $4
		WHERE collection = $1 AND id = $2
		RETURNING id, version, data, created_at, updated_at`,
		string(c), id, []byte(raw), p.now())
	return scanRecord(c, id, row)
}

// ToggleSetMembership reads the row under FOR UPDATE so concurrent toggles serialize.
func (p *Postgres) ToggleSetMembership(ctx context.Context, c Collection, id, field, member string) (Record, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin toggle: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var data []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM workspace_records WHERE collection = $1 AND id = $2 FOR UPDATE`,
		string(c), id).Scan(&data)
	if err != nil {
		return Record{}, mapPQError(c, id, err)
	}

	next, err := toggleMember(data, field, member)
	if err != nil {
		return Record{}, err
	}

	row := tx.QueryRowContext(ctx,
		`UPDATE workspace_records SET data = $3, version = version + 1, updated_at = $4
		WHERE collection = $1 AND id = $2
		RETURNING id, version, data, created_at, updated_at`,
		string(c), id, []byte(next), p.now())
	rec, err := scanRecord(c, id, row)
	if err != nil {
		return Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit toggle: %w", err)
	}
	return rec, nil
}

func (p *Postgres) Delete(ctx context.Context, c Collection, id string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM workspace_records WHERE collection = $1 AND id = $2`, string(c), id)
	if err != nil {
		return mapPQError(c, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, c, id)
	}
	return nil
}

func scanRecord(c Collection, id string, row *sql.Row) (Record, error) {
	var rec Record
	var data []byte
	if err := row.Scan(&rec.ID, &rec.Version, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, mapPQError(c, id, err)
	}
	rec.Data = data
	return rec, nil
}

func mapPQError(c Collection, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, c, id)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%w: %s (%s)", ErrConflict, c, pqErr.Constraint)
	}
	return fmt.Errorf("%s/%s: %w", c, id, err)
}
