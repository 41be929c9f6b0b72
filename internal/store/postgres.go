package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Snapshots ---

// SaveSnapshot replaces the stored snapshot in one transaction.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM snapshot_jobs`)
	batch.Queue(`DELETE FROM snapshot_edges`)
	for i, j := range snap.Jobs {
		data, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", j.ID, err)
		}
		batch.Queue(`INSERT INTO snapshot_jobs (position, job_id, data) VALUES ($1, $2, $3)`, i, j.ID, data)
	}
	for i, e := range snap.Edges {
		batch.Queue(`INSERT INTO snapshot_edges (position, parent_job_id, child_job_id) VALUES ($1, $2, $3)`,
			i, e.ParentJobID, e.ChildJobID)
	}
	batch.Queue(`INSERT INTO snapshot_meta (id, saved_at, job_count, edge_count) VALUES (1, $1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET saved_at = EXCLUDED.saved_at,
		   job_count = EXCLUDED.job_count, edge_count = EXCLUDED.edge_count`,
		savedAt, len(snap.Jobs), len(snap.Edges))

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot, or ErrNotFound if none was saved.
func (s *PostgresStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.pool.QueryRow(ctx, `SELECT saved_at FROM snapshot_meta WHERE id = 1`).Scan(&snap.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot meta: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT data FROM snapshot_jobs ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load snapshot jobs: %w", err)
	}
	defer rows.Close()
	snap.Jobs = []models.Job{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan snapshot job: %w", err)
		}
		var j models.Job
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, fmt.Errorf("decode snapshot job: %w", err)
		}
		snap.Jobs = append(snap.Jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load snapshot jobs: %w", err)
	}

	edgeRows, err := s.pool.Query(ctx,
		`SELECT parent_job_id, child_job_id FROM snapshot_edges ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load snapshot edges: %w", err)
	}
	defer edgeRows.Close()
	snap.Edges = []models.DependencyEdge{}
	for edgeRows.Next() {
		var e models.DependencyEdge
		if err := edgeRows.Scan(&e.ParentJobID, &e.ChildJobID); err != nil {
			return nil, fmt.Errorf("scan snapshot edge: %w", err)
		}
		snap.Edges = append(snap.Edges, e)
	}
	return snap, edgeRows.Err()
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
