package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shipshift/orchestrator/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS rollouts (
	id                  TEXT PRIMARY KEY,
	strategy            TEXT NOT NULL,
	environment         TEXT NOT NULL,
	module_name         TEXT NOT NULL,
	version             TEXT NOT NULL,
	success             BOOLEAN NOT NULL,
	message             TEXT NOT NULL,
	rollback_performed  BOOLEAN NOT NULL,
	rollback_successful BOOLEAN NOT NULL,
	node_results        JSONB,
	rollback_results    JSONB,
	started_at          TIMESTAMPTZ,
	completed_at        TIMESTAMPTZ
)`

// RolloutRecord is one persisted rollout outcome
type RolloutRecord struct {
	ID                 string               `json:"id"`
	Strategy           string               `json:"strategy"`
	Environment        string               `json:"environment"`
	ModuleName         string               `json:"module_name"`
	Version            string               `json:"version"`
	Success            bool                 `json:"success"`
	Message            string               `json:"message"`
	RollbackPerformed  bool                 `json:"rollback_performed"`
	RollbackSuccessful bool                 `json:"rollback_successful"`
	NodeResults        []domain.NodeOutcome `json:"node_results"`
	RollbackResults    []domain.NodeOutcome `json:"rollback_results,omitempty"`
	StartedAt          *time.Time           `json:"started_at,omitempty"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty"`
}

// History stores and reads rollout records
type History struct {
	pool *pgxpool.Pool
}

// NewHistory creates the history store and ensures its schema exists
func NewHistory(ctx context.Context, pool *pgxpool.Pool) (*History, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create rollouts table: %w", err)
	}
	return &History{pool: pool}, nil
}

// Save persists one rollout result under the given id. Failures are
// logged, not propagated, so history never blocks a rollout response.
func (h *History) Save(ctx context.Context, id string, res *domain.DeploymentResult) {
	nodeJSON, _ := json.Marshal(res.NodeResults)
	rbJSON, _ := json.Marshal(res.RollbackResults)

	_, err := h.pool.Exec(ctx, `
		INSERT INTO rollouts (
			id, strategy, environment, module_name, version,
			success, message, rollback_performed, rollback_successful,
			node_results, rollback_results, started_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		id, res.Strategy, string(res.Environment), res.ModuleName, res.Version,
		res.Success, res.Message, res.RollbackPerformed, res.RollbackSuccessful,
		nodeJSON, rbJSON, toTimestamptz(res.StartedAt), toTimestamptz(res.CompletedAt),
	)
	if err != nil {
		log.Printf("DB persistence skipped for rollout %s: %v", id, err)
	}
}

// List returns the most recent rollouts, newest first
func (h *History) List(ctx context.Context, limit int) ([]RolloutRecord, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := h.pool.Query(ctx, `
		SELECT id, strategy, environment, module_name, version,
		       success, message, rollback_performed, rollback_successful,
		       node_results, rollback_results, started_at, completed_at
		FROM rollouts ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list rollouts: %w", err)
	}
	defer rows.Close()

	var out []RolloutRecord
	for rows.Next() {
		rec, err := scanRollout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns one rollout by id
func (h *History) Get(ctx context.Context, id string) (RolloutRecord, error) {
	row := h.pool.QueryRow(ctx, `
		SELECT id, strategy, environment, module_name, version,
		       success, message, rollback_performed, rollback_successful,
		       node_results, rollback_results, started_at, completed_at
		FROM rollouts WHERE id = $1`, id)
	return scanRollout(row)
}

func scanRollout(row pgx.Row) (RolloutRecord, error) {
	var rec RolloutRecord
	var nodeJSON, rbJSON []byte
	var started, completed pgtype.Timestamptz

	err := row.Scan(
		&rec.ID, &rec.Strategy, &rec.Environment, &rec.ModuleName, &rec.Version,
		&rec.Success, &rec.Message, &rec.RollbackPerformed, &rec.RollbackSuccessful,
		&nodeJSON, &rbJSON, &started, &completed,
	)
	if err != nil {
		return rec, fmt.Errorf("scan rollout: %w", err)
	}

	if len(nodeJSON) > 0 {
		_ = json.Unmarshal(nodeJSON, &rec.NodeResults)
	}
	if len(rbJSON) > 0 {
		_ = json.Unmarshal(rbJSON, &rec.RollbackResults)
	}
	if started.Valid {
		t := started.Time
		rec.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}

func toTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
