// Package report defines the end-of-session report contract. The report
// is a best-effort notification; failures never affect session handling.
package report

import (
	"context"
	"time"
)

type SessionReport struct {
	RoomID    string    `json:"room_id"`
	RoomType  string    `json:"room_type"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Reason    string    `json:"reason"`
	Welcomed  int       `json:"welcomed"`
	Invited   int       `json:"invited"`
	Promoted  int       `json:"promoted"`
}

type Sender interface {
	SendSessionReport(ctx context.Context, r SessionReport) error
}
