package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.arena/internal/config"
	"sudooom.arena/internal/model"
)

const schema = `
	CREATE TABLE IF NOT EXISTS match_results (
		id           BIGSERIAL PRIMARY KEY,
		room_id      TEXT        NOT NULL,
		winner_slot  INT         NOT NULL DEFAULT 0,
		winner_name  TEXT        NOT NULL DEFAULT '',
		reason       TEXT        NOT NULL,
		participants TEXT[]      NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		finished_at  TIMESTAMPTZ NOT NULL,
		create_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_match_results_finished_at ON match_results (finished_at DESC);
`

// Connect 连接 PostgreSQL
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	return pgxpool.NewWithConfig(ctx, poolConfig)
}

// MatchRepository 对局结果归档，实现 room.ResultSink
type MatchRepository struct {
	db *pgxpool.Pool
}

// NewMatchRepository 创建对局结果仓库
func NewMatchRepository(db *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{db: db}
}

// EnsureSchema 建表（幂等）
func (r *MatchRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveResult 写入一局结果
func (r *MatchRepository) SaveResult(ctx context.Context, result model.MatchResult) error {
	query := `
		INSERT INTO match_results (room_id, winner_slot, winner_name, reason, participants, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	participants := result.Participants
	if participants == nil {
		participants = []string{}
	}
	_, err := r.db.Exec(ctx, query,
		string(result.RoomID),
		int(result.Winner),
		result.WinnerName,
		result.Reason,
		participants,
		time.UnixMilli(result.StartedAt),
		time.UnixMilli(result.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save match result: %w", err)
	}
	return nil
}

// Recent 最近结束的对局，按结束时间倒序
func (r *MatchRepository) Recent(ctx context.Context, limit int) ([]model.MatchResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT room_id, winner_slot, winner_name, reason, participants, started_at, finished_at
		FROM match_results ORDER BY finished_at DESC LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.MatchResult, error) {
		var (
			res        model.MatchResult
			roomID     string
			winner     int
			startedAt  time.Time
			finishedAt time.Time
		)
		if err := row.Scan(&roomID, &winner, &res.WinnerName, &res.Reason, &res.Participants, &startedAt, &finishedAt); err != nil {
			return res, err
		}
		res.RoomID = model.RoomID(roomID)
		res.Winner = model.Slot(winner)
		res.StartedAt = startedAt.UnixMilli()
		res.FinishedAt = finishedAt.UnixMilli()
		return res, nil
	})
}

// Ping 检查数据库连接
func (r *MatchRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
