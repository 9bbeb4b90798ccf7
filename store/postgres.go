package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dj1530954213/fatengine/model"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PostgresStore is the shared-deployment Store backend: a pgxpool.Pool
// wrapping a handful of hand-written SQL statements rather than an ORM.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parsing postgres dsn: %w", err)
	}
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connecting to postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fat_batches (
			batch_id BIGINT PRIMARY KEY,
			batch_name TEXT NOT NULL UNIQUE,
			station_name TEXT NOT NULL,
			import_time TIMESTAMPTZ NOT NULL,
			created_time TIMESTAMPTZ NOT NULL,
			body JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fat_instances (
			instance_id BIGINT PRIMARY KEY,
			batch_id BIGINT NOT NULL REFERENCES fat_batches(batch_id) ON DELETE CASCADE,
			body JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS fat_instances_batch_idx ON fat_instances(batch_id)`,
		`CREATE TABLE IF NOT EXISTS fat_global_checks (
			station_name TEXT NOT NULL,
			import_time TIMESTAMPTZ NOT NULL,
			function_key TEXT NOT NULL,
			body JSONB NOT NULL,
			PRIMARY KEY (station_name, import_time, function_key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: applying schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertBatch(ctx context.Context, batch *model.TestBatch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("store: marshaling batch: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO fat_batches (batch_id, batch_name, station_name, import_time, created_time, body)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (batch_id) DO UPDATE SET body = EXCLUDED.body`,
		batch.BatchID, batch.BatchName, batch.StationName, batch.ImportTime, batch.CreatedTime, body)
	return err
}

func (s *PostgresStore) scanBatch(row pgx.Row) (*model.TestBatch, error) {
	var body []byte
	if err := row.Scan(&body); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var batch model.TestBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("store: unmarshaling batch: %w", err)
	}
	return &batch, nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, batchID uint64) (*model.TestBatch, error) {
	row := s.pool.QueryRow(ctx, `SELECT body FROM fat_batches WHERE batch_id = $1`, batchID)
	return s.scanBatch(row)
}

func (s *PostgresStore) GetBatchByName(ctx context.Context, name string) (*model.TestBatch, error) {
	row := s.pool.QueryRow(ctx, `SELECT body FROM fat_batches WHERE batch_name = $1`, name)
	return s.scanBatch(row)
}

func (s *PostgresStore) ListBatches(ctx context.Context) ([]*model.TestBatch, error) {
	rows, err := s.pool.Query(ctx, `SELECT body FROM fat_batches ORDER BY created_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.TestBatch, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var batch model.TestBatch
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, err
		}
		out = append(out, &batch)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteBatch(ctx context.Context, batchID uint64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fat_batches WHERE batch_id = $1`, batchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertInstances(ctx context.Context, instances []*model.ChannelInstance) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for _, inst := range instances {
		body, err := json.Marshal(inst)
		if err != nil {
			return fmt.Errorf("store: marshaling instance %d: %w", inst.InstanceID, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO fat_instances (instance_id, batch_id, body)
			VALUES ($1, $2, $3)
			ON CONFLICT (instance_id) DO UPDATE SET body = EXCLUDED.body`,
			inst.InstanceID, inst.BatchID, body); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetInstance(ctx context.Context, instanceID uint64) (*model.ChannelInstance, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM fat_instances WHERE instance_id = $1`, instanceID).Scan(&body)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var inst model.ChannelInstance
	if err := json.Unmarshal(body, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *PostgresStore) GetInstancesByBatch(ctx context.Context, batchID uint64) ([]*model.ChannelInstance, error) {
	rows, err := s.pool.Query(ctx, `SELECT body FROM fat_instances WHERE batch_id = $1`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.ChannelInstance, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var inst model.ChannelInstance
		if err := json.Unmarshal(body, &inst); err != nil {
			return nil, err
		}
		out = append(out, &inst)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertGlobalCheck(ctx context.Context, check *model.GlobalCheck) error {
	body, err := json.Marshal(check)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO fat_global_checks (station_name, import_time, function_key, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (station_name, import_time, function_key) DO UPDATE SET body = EXCLUDED.body`,
		check.StationName, check.ImportTime, check.FunctionKey, body)
	return err
}

func (s *PostgresStore) GetGlobalChecks(ctx context.Context, station string, importTime time.Time) ([]*model.GlobalCheck, error) {
	rows, err := s.pool.Query(ctx, `SELECT body FROM fat_global_checks WHERE station_name = $1 AND import_time = $2`, station, importTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.GlobalCheck, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var gc model.GlobalCheck
		if err := json.Unmarshal(body, &gc); err != nil {
			return nil, err
		}
		out = append(out, &gc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
