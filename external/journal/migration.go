package journal

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS room_dumps (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		room_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_room_dumps_room ON room_dumps (room_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_room_dumps_kind ON room_dumps (kind)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
