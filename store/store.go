// Package store persists finished comparison runs. Four backends share
// one interface: an in-memory store for tests and single-process use,
// Redis, MongoDB and PostgreSQL for anything that should survive a
// restart.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Diagnostic is the stored form of the post-run grammar analysis of the
// unconstrained output.
type Diagnostic struct {
	Valid              bool   `json:"valid" bson:"valid"`
	IsComplete         bool   `json:"is_complete" bson:"is_complete"`
	WellTypedTreeCount int    `json:"well_typed_tree_count" bson:"well_typed_tree_count"`
	TypeError          string `json:"type_error,omitempty" bson:"type_error,omitempty"`
	Error              string `json:"error,omitempty" bson:"error,omitempty"`
}

// Record is one finished comparison run: the request that started it, the
// text both phases produced, and how the run ended.
type Record struct {
	ID            string      `json:"id" bson:"_id"`
	GrammarName   string      `json:"grammar_name,omitempty" bson:"grammar_name,omitempty"`
	GrammarSpec   string      `json:"grammar_spec,omitempty" bson:"grammar_spec,omitempty"`
	Prompt        string      `json:"prompt" bson:"prompt"`
	Model         string      `json:"model" bson:"model"`
	MaxTokens     int         `json:"max_tokens,omitempty" bson:"max_tokens,omitempty"`
	GrammarTokens int         `json:"grammar_tokens,omitempty" bson:"grammar_tokens,omitempty"`
	Phase         string      `json:"phase" bson:"phase"`
	Unconstrained string      `json:"unconstrained" bson:"unconstrained"`
	Constrained   string      `json:"constrained" bson:"constrained"`
	StopReason    string      `json:"stop_reason,omitempty" bson:"stop_reason,omitempty"`
	IsComplete    bool        `json:"is_complete" bson:"is_complete"`
	Error         string      `json:"error,omitempty" bson:"error,omitempty"`
	Diagnostic    *Diagnostic `json:"diagnostic,omitempty" bson:"diagnostic,omitempty"`
	StartedAt     time.Time   `json:"started_at" bson:"started_at"`
	FinishedAt    time.Time   `json:"finished_at" bson:"finished_at"`
	DurationMS    int64       `json:"duration_ms" bson:"duration_ms"`
}

// Clone returns a deep copy, so stored records cannot be mutated through
// a pointer the caller kept.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Diagnostic != nil {
		d := *r.Diagnostic
		out.Diagnostic = &d
	}
	return &out
}

// Store is the persistence interface for comparison runs. List returns
// records in reverse start order, newest first; a limit of zero or less
// means no limit.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Load(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]*Record, error)
	Count(ctx context.Context) (int, error)
	Exists(ctx context.Context, id string) (bool, error)
	Close(ctx context.Context) error
}

// Backend selects a Store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendMongo    Backend = "mongo"
	BackendPostgres Backend = "postgres"
)

// Config selects and configures a store backend. Nil backend configs fall
// back to their environment-driven defaults.
type Config struct {
	Backend  Backend
	Redis    *RedisConfig
	Mongo    *MongoConfig
	Postgres *PostgresConfig
}

// New creates the store selected by config. A nil config yields the
// in-memory store.
func New(cfg *Config) (Store, error) {
	if cfg == nil {
		return NewInMemory(), nil
	}
	switch cfg.Backend {
	case "", BackendMemory:
		return NewInMemory(), nil
	case BackendRedis:
		rc := cfg.Redis
		if rc == nil {
			rc = RedisConfigFromEnv()
		}
		return NewRedis(rc)
	case BackendMongo:
		mc := cfg.Mongo
		if mc == nil {
			mc = MongoConfigFromEnv()
		}
		return NewMongo(mc)
	case BackendPostgres:
		pc := cfg.Postgres
		if pc == nil {
			pc = PostgresConfigFromEnv()
		}
		return NewPostgres(pc)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// prepare fills generated fields before a record is written.
func prepare(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}
	if rec.DurationMS == 0 {
		rec.DurationMS = rec.FinishedAt.Sub(rec.StartedAt).Milliseconds()
	}
	return nil
}
