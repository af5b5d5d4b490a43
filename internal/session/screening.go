package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iconichq/automod/internal/gateway"
	"github.com/iconichq/automod/internal/telemetry"
)

// screenPolicy describes what one screening pass does to each guest.
// At most one of inviteAll/selective/welcomeNewcomers drives the invite
// side; promoteAll stacks on top for rooms where everyone moderates.
type screenPolicy struct {
	inviteAll        bool
	promoteAll       bool
	selective        bool
	welcomeNewcomers bool
}

// screenPolicy derives the room's policy from its type and club:
//   - private rooms and rooms of a social club get everyone invited and
//     promoted,
//   - public rooms of an auto-invite club get everyone invited,
//   - public rooms with allow-lists act selectively on those lists,
//   - social and lounge rooms, and public rooms with nothing configured,
//     only greet newcomers.
func (m *Manager) screenPolicy() screenPolicy {
	_, roomType, clubID, _, _ := m.session.info()
	switch roomType {
	case RoomSocial, RoomLounge:
		return screenPolicy{welcomeNewcomers: true}
	case RoomPrivate:
		return screenPolicy{inviteAll: true, promoteAll: true}
	}
	var pol screenPolicy
	if m.cfg.IsSocialClub(clubID) {
		pol.inviteAll = true
		pol.promoteAll = true
	} else if m.cfg.IsAutoInviteClub(clubID) {
		pol.inviteAll = true
	}
	if !pol.inviteAll && (len(m.cfg.GuestList) > 0 || len(m.cfg.ModList) > 0) {
		pol.selective = true
	}
	if !pol.inviteAll && !pol.selective {
		pol.welcomeNewcomers = true
	}
	return pol
}

// screenPass walks the roster once and applies the room's policy to
// every guest. Each user gets at most one state-changing action per
// pass, and the dedup sets make every action idempotent across passes.
func (m *Manager) screenPass(ctx context.Context, roomID string, users []gateway.RoomUser) {
	telemetry.ScreeningPasses.Inc()
	pol := m.screenPolicy()
	canModerate := m.session.isActiveMod()

	for _, u := range users {
		if u.UserID == m.cfg.UserID {
			continue
		}
		if pol.welcomeNewcomers {
			m.welcomeNewcomer(ctx, roomID, u)
			continue
		}
		if !canModerate {
			// Invites and promotions need moderator rights; skip the
			// pass rather than queue actions we cannot perform.
			continue
		}
		if pol.inviteAll || (pol.selective && m.cfg.OnGuestList(u.UserID)) {
			m.inviteGuest(ctx, roomID, u)
		}
		if pol.promoteAll || m.cfg.OnModList(u.UserID) {
			m.promoteGuest(ctx, roomID, u)
		}
	}
}

// inviteGuest invites an audience member to speak, exactly once per
// session. The user is marked screened before the call goes out, so a
// failed invite never turns into an invite storm on later passes.
func (m *Manager) inviteGuest(ctx context.Context, roomID string, u gateway.RoomUser) {
	if u.IsSpeaker || u.IsInvitedAsSpeaker {
		return
	}
	if !m.session.markScreenedSpeaker(u.UserID) {
		return
	}
	if err := m.gw.InviteToSpeak(ctx, roomID, u.UserID); err != nil {
		slog.Warn("speaker invite failed", "room_id", roomID, "user_id", u.UserID, "error", err)
	} else {
		telemetry.SpeakerInvites.Inc()
		slog.Info("invited guest to speak", "room_id", roomID, "user_id", u.UserID, "name", u.FirstName)
	}
	m.greet(ctx, roomID, u)
}

// promoteGuest makes a speaker a moderator, exactly once per session.
func (m *Manager) promoteGuest(ctx context.Context, roomID string, u gateway.RoomUser) {
	if !u.IsSpeaker || u.IsModerator {
		return
	}
	if !m.session.markScreenedMod(u.UserID) {
		return
	}
	if err := m.gw.PromoteToModerator(ctx, roomID, u.UserID); err != nil {
		slog.Warn("moderator promote failed", "room_id", roomID, "user_id", u.UserID, "error", err)
	} else {
		telemetry.ModPromotes.Inc()
		slog.Info("promoted guest to moderator", "room_id", roomID, "user_id", u.UserID, "name", u.FirstName)
	}
	m.greet(ctx, roomID, u)
}

// greet sends the per-user welcome alongside an invite or promote. The
// user is marked welcomed up front: the state change already happened,
// so a lost greeting is not worth a duplicate one later.
func (m *Manager) greet(ctx context.Context, roomID string, u gateway.RoomUser) {
	if !m.session.markWelcomed(u.UserID) {
		return
	}
	override, _ := m.cfg.GreetingFor(u.UserID)
	if err := m.sendChat(ctx, roomID, welcomeMessage(u, override)); err != nil {
		if errors.Is(err, gateway.ErrRateLimited) {
			telemetry.ChatRateLimited.Inc()
			time.Sleep(m.cfg.ChatMessageGap)
		}
		slog.Warn("welcome message failed", "room_id", roomID, "user_id", u.UserID, "error", err)
		return
	}
	telemetry.GreetingsSent.Inc()
}

// welcomeNewcomer greets users who arrived after the bot did, once each.
// Unlike greet, a rate-limited send leaves the user unmarked so the next
// pass retries after the backoff.
func (m *Manager) welcomeNewcomer(ctx context.Context, roomID string, u gateway.RoomUser) {
	if m.session.wasInRoomAtJoin(u.UserID) || m.session.isWelcomed(u.UserID) {
		return
	}
	override, _ := m.cfg.GreetingFor(u.UserID)
	if err := m.sendChat(ctx, roomID, welcomeMessage(u, override)); err != nil {
		if errors.Is(err, gateway.ErrRateLimited) {
			telemetry.ChatRateLimited.Inc()
			slog.Warn("chat rate limited, backing off", "room_id", roomID, "user_id", u.UserID)
			time.Sleep(m.cfg.ChatMessageGap)
			return
		}
		slog.Warn("welcome message failed", "room_id", roomID, "user_id", u.UserID, "error", err)
	} else {
		telemetry.GreetingsSent.Inc()
		slog.Info("welcomed newcomer", "room_id", roomID, "user_id", u.UserID, "name", u.FirstName)
	}
	m.session.markScreened(u.UserID)
	m.session.markWelcomed(u.UserID)
}
