// Package gateway defines the capability interface the automation uses to
// talk to the audio platform. The HTTP wire format lives in
// external/gateway; nothing in here depends on it.
package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrRoomUnavailable is the definitive "room no longer exists" failure.
// Callers must stop retrying when they see it.
var ErrRoomUnavailable = errors.New("room no longer available")

// ErrRateLimited is returned by SendChat when the room's minimum message
// cadence was violated. The message was not delivered.
var ErrRateLimited = errors.New("chat rate limited")

// NotificationRoomInvite is the notification type for a ping inviting the
// bot into a room.
const NotificationRoomInvite = 9

type RoomUser struct {
	UserID             string
	FirstName          string
	IsSpeaker          bool
	IsInvitedAsSpeaker bool
	IsModerator        bool
}

type JoinInfo struct {
	Success             bool
	RoomID              string
	IsPrivate           bool
	IsSocialMode        bool
	IsLounge            bool
	AutoSpeakerApproval bool
	HostID              string
	HostName            string
	ClubID              string
	ChatEnabled         bool
	TimeCreated         time.Time
	Token               string
	Users               []RoomUser
}

type Snapshot struct {
	Success     bool
	ChatEnabled bool
	Users       []RoomUser
}

type Notification struct {
	Type        int
	TimeCreated time.Time
	UserID      string
	UserName    string
	RoomID      string
	Message     string
}

type Client interface {
	Join(ctx context.Context, roomID string) (JoinInfo, error)
	GetSnapshot(ctx context.Context, roomID string) (Snapshot, error)
	Leave(ctx context.Context, roomID string) error

	InviteToSpeak(ctx context.Context, roomID, userID string) error
	PromoteToModerator(ctx context.Context, roomID, userID string) error
	RemoveUser(ctx context.Context, roomID, userID string) error

	SendChat(ctx context.Context, roomID, text string) error
	KeepAlive(ctx context.Context, roomID string) error

	// RaiseHand asks the room's moderators for speaking permission.
	RaiseHand(ctx context.Context, roomID string) error
	// AcceptSpeakerInvite confirms a pending invitation for the bot itself.
	AcceptSpeakerInvite(ctx context.Context, roomID string) error

	GetNotifications(ctx context.Context) ([]Notification, error)
}
