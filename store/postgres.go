package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	cfg "github.com/sweetpotato0/gramflow/config"
	gferrors "github.com/sweetpotato0/gramflow/errors"
)

// PostgresStore implements Store using PostgreSQL. The fields worth
// querying get their own columns; the full record rides along as JSONB.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Table    string
}

// NewPostgres creates a PostgreSQL-backed run store and ensures the table
// exists.
func NewPostgres(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = PostgresConfigFromEnv()
	}
	if err := cfg.ValidatePostgresConfig(config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL configuration: %w", err)
	}
	if config.Table == "" {
		config.Table = "runs"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db, table: config.Table}
	if err := store.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id           TEXT PRIMARY KEY,
			phase        TEXT NOT NULL,
			grammar_name TEXT NOT NULL DEFAULT '',
			model        TEXT NOT NULL,
			stop_reason  TEXT NOT NULL DEFAULT '',
			is_complete  BOOLEAN NOT NULL DEFAULT FALSE,
			started_at   TIMESTAMPTZ NOT NULL,
			finished_at  TIMESTAMPTZ NOT NULL,
			record       JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_started_at ON %s (started_at DESC);
	`, s.table, s.table, s.table)
	_, err := s.db.Exec(query)
	return err
}

// Save upserts the record by its run ID.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, phase, grammar_name, model, stop_reason, is_complete, started_at, finished_at, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			grammar_name = EXCLUDED.grammar_name,
			model = EXCLUDED.model,
			stop_reason = EXCLUDED.stop_reason,
			is_complete = EXCLUDED.is_complete,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			record = EXCLUDED.record
	`, s.table)
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.Phase, rec.GrammarName, rec.Model, rec.StopReason,
		rec.IsComplete, rec.StartedAt, rec.FinishedAt, data)
	if err != nil {
		return fmt.Errorf("failed to store record in PostgreSQL: %w", err)
	}
	return nil
}

// Load retrieves one record by ID.
func (s *PostgresStore) Load(ctx context.Context, id string) (*Record, error) {
	query := fmt.Sprintf("SELECT record FROM %s WHERE id = $1", s.table)
	var data []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, gferrors.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// Delete removes one record.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s: %w", id, gferrors.ErrRecordNotFound)
	}
	return nil
}

// List returns records newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Record, error) {
	query := fmt.Sprintf("SELECT record FROM %s ORDER BY started_at DESC", s.table)
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)
	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Exists reports whether a record with the given ID is stored.
func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", s.table)
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}
	return exists, nil
}

// Clear removes every record in the table.
func (s *PostgresStore) Clear(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s", s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close(ctx context.Context) error {
	return s.db.Close()
}

// Ping checks if the PostgreSQL connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
