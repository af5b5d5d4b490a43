package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/iconichq/automod/internal/gateway"
	"github.com/iconichq/automod/internal/schedule"
	"github.com/iconichq/automod/internal/telemetry"
)

const taskListener = "ping-listener"

// StartListener begins polling notifications for room invites. When a
// ping from an authorized user leads to a session, the listener stops
// itself and is restarted automatically after the session terminates.
func (m *Manager) StartListener() {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	m.listenEnabled = true
	if m.listenerTask != nil {
		select {
		case <-m.listenerTask.Done():
		default:
			return
		}
	}
	slog.Info("ping listener started", "interval", m.cfg.ListenInterval.String())
	m.listenerTask = schedule.Every(m.cfg.ListenInterval, taskListener, m.listenTick)
}

// StopListener stops the polling loop and disables automatic restarts.
func (m *Manager) StopListener() {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	m.listenEnabled = false
	if m.listenerTask != nil {
		m.listenerTask.Stop()
		m.listenerTask = nil
	}
}

// listenTick fetches notifications and acts on the first fresh, authorized
// room invite that was not attempted before. Returning false hands off to
// the session: the loop stops and terminate restarts it later.
func (m *Manager) listenTick() bool {
	if m.session.active() {
		return true
	}
	ctx := context.Background()
	notifs, err := m.gw.GetNotifications(ctx)
	if err != nil {
		slog.Warn("fetching notifications failed", "error", err)
		return true
	}
	for _, n := range notifs {
		if !m.pingActionable(n) {
			continue
		}
		m.markPingAttempted(n)
		telemetry.PingsHandled.Inc()
		slog.Info("answering room invite",
			"room_id", n.RoomID, "from_user", n.UserID, "from_name", n.UserName)
		if err := m.StartSession(ctx, n.RoomID); err != nil {
			slog.Warn("joining pinged room failed", "room_id", n.RoomID, "error", err)
			continue
		}
		return false
	}
	return true
}

func (m *Manager) pingActionable(n gateway.Notification) bool {
	if n.Type != gateway.NotificationRoomInvite || n.RoomID == "" {
		return false
	}
	if time.Since(n.TimeCreated) > m.cfg.PingFreshness {
		return false
	}
	if !m.cfg.PingAuthorized(n.UserID) {
		return false
	}
	m.listenMu.Lock()
	_, attempted := m.attemptedPings[pingKey(n)]
	m.listenMu.Unlock()
	return !attempted
}

func (m *Manager) markPingAttempted(n gateway.Notification) {
	m.listenMu.Lock()
	m.attemptedPings[pingKey(n)] = struct{}{}
	m.listenMu.Unlock()
}

// pingKey identifies one invite so a failed join is not retried forever.
// The same user pinging for a new room counts as a new invite.
func pingKey(n gateway.Notification) string {
	return n.UserID + "/" + n.RoomID
}
