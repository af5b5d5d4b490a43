package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iconichq/automod/internal/journal"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresJournal struct {
	pool *pgxpool.Pool
}

func NewPostgresJournal(pool *pgxpool.Pool) journal.Journal {
	return &PostgresJournal{pool: pool}
}

func (j *PostgresJournal) dump(ctx context.Context, roomID, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s dump: %w", kind, err)
	}
	_, err = j.pool.Exec(ctx,
		`INSERT INTO room_dumps (room_id, kind, payload) VALUES ($1, $2, $3)`,
		roomID, kind, body)
	return err
}

func (j *PostgresJournal) DumpJoin(ctx context.Context, roomID string, payload any) error {
	return j.dump(ctx, roomID, journal.KindJoin, payload)
}

func (j *PostgresJournal) DumpSnapshot(ctx context.Context, roomID string, payload any) error {
	return j.dump(ctx, roomID, journal.KindSnapshot, payload)
}

func (j *PostgresJournal) ListDumps(ctx context.Context, roomID string, limit int) ([]journal.Dump, error) {
	rows, err := j.pool.Query(ctx,
		`SELECT id, room_id, kind, payload, created_at
		 FROM room_dumps WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2`,
		roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []journal.Dump
	for rows.Next() {
		var d journal.Dump
		if err := rows.Scan(&d.ID, &d.RoomID, &d.Kind, &d.Payload, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}
