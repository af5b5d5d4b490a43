// Package journal records room payloads for later analysis: the join
// response at session start and periodic roster snapshots while active.
package journal

import (
	"context"
	"time"
)

const (
	KindJoin     = "join"
	KindSnapshot = "snapshot"
)

type Dump struct {
	ID        string
	RoomID    string
	Kind      string
	Payload   []byte
	CreatedAt time.Time
}

type Journal interface {
	DumpJoin(ctx context.Context, roomID string, payload any) error
	DumpSnapshot(ctx context.Context, roomID string, payload any) error
	ListDumps(ctx context.Context, roomID string, limit int) ([]Dump, error)
}
