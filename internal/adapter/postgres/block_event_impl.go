package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/user/proxyservice/internal/entity"
)

// Schema creates the block event audit table.
const Schema = `
	CREATE TABLE IF NOT EXISTS proxy_block_events (
		id          UUID PRIMARY KEY,
		target_id   TEXT NOT NULL,
		proxy_id    BIGINT NOT NULL,
		reason      TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS proxy_block_events_target_idx
		ON proxy_block_events (target_id, occurred_at DESC);
`

// DB is the subset of *pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// BlockEventRepoImpl provides a concrete implementation for the BlockEventRepository interface using PostgreSQL.
type BlockEventRepoImpl struct {
	db DB
}

// NewBlockEventRepo creates a new instance of BlockEventRepoImpl.
func NewBlockEventRepo(db DB) *BlockEventRepoImpl {
	return &BlockEventRepoImpl{db: db}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (r *BlockEventRepoImpl) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("creating block event schema: %w", err)
	}
	return nil
}

// Save appends a block event. Saving the same event twice is a no-op.
func (r *BlockEventRepoImpl) Save(ctx context.Context, event *entity.BlockEvent) error {
	query := `
		INSERT INTO proxy_block_events (id, target_id, proxy_id, reason, status_code, error, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.TargetID,
		event.ProxyID,
		string(event.Reason),
		event.StatusCode,
		event.Error,
		event.OccurredAt,
	)
	return err
}

// FindRecent retrieves the latest events of a target, newest first.
func (r *BlockEventRepoImpl) FindRecent(ctx context.Context, targetID string, limit int) ([]*entity.BlockEvent, error) {
	query := `
		SELECT id, target_id, proxy_id, reason, status_code, error, occurred_at
		FROM proxy_block_events
		WHERE target_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2;
	`
	rows, err := r.db.Query(ctx, query, targetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*entity.BlockEvent
	for rows.Next() {
		var (
			e      entity.BlockEvent
			reason string
		)
		if err := rows.Scan(
			&e.ID,
			&e.TargetID,
			&e.ProxyID,
			&reason,
			&e.StatusCode,
			&e.Error,
			&e.OccurredAt,
		); err != nil {
			return nil, err
		}
		e.Reason = entity.BlockReason(reason)
		events = append(events, &e)
	}

	return events, rows.Err()
}
