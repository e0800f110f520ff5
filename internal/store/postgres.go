package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bellafleur/benly/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the full session record as jsonb, with last_seen
// broken out for the sweeper's index scan.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the sessions table when it does not exist yet.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS sessions (
		sid text PRIMARY KEY,
		last_seen bigint NOT NULL,
		record jsonb NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `CREATE INDEX IF NOT EXISTS sessions_last_seen_idx ON sessions (last_seen)`)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, sid string) (*domain.Session, error) {
	var record []byte
	err := p.db.QueryRow(ctx, `SELECT record FROM sessions WHERE sid=$1`, sid).Scan(&record)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal(record, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *PostgresStore) Put(ctx context.Context, s *domain.Session) error {
	record, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `INSERT INTO sessions (sid, last_seen, record)
		VALUES ($1, $2, $3)
		ON CONFLICT (sid) DO UPDATE SET last_seen=$2, record=$3`, s.SID, s.LastSeen, record)
	return err
}

func (p *PostgresStore) Delete(ctx context.Context, sid string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM sessions WHERE sid=$1`, sid)
	return err
}

func (p *PostgresStore) List(ctx context.Context) ([]*domain.Session, error) {
	rows, err := p.db.Query(ctx, `SELECT record FROM sessions ORDER BY sid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var s domain.Session
		if err := json.Unmarshal(record, &s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Stale(ctx context.Context, cutoff int64) ([]string, error) {
	rows, err := p.db.Query(ctx, `SELECT sid FROM sessions WHERE last_seen < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sids []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		sids = append(sids, sid)
	}
	return sids, rows.Err()
}

func (p *PostgresStore) Close() error {
	p.db.Close()
	return nil
}

var _ SessionStore = (*PostgresStore)(nil)
