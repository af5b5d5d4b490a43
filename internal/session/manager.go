// Package session implements the room automation lifecycle: joining a
// room, negotiating the bot's own permissions, screening guests on a
// schedule, and recovering from disconnects.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iconichq/automod/internal/config"
	"github.com/iconichq/automod/internal/gateway"
	"github.com/iconichq/automod/internal/journal"
	"github.com/iconichq/automod/internal/report"
	"github.com/iconichq/automod/internal/schedule"
	"github.com/iconichq/automod/internal/telemetry"
	"golang.org/x/time/rate"
)

const (
	taskKeepAlive    = "keep-alive"
	taskActiveRoom   = "active-room"
	taskAnnouncement = "announcement"

	reportTimeout    = 10 * time.Second
	terminateTimeout = 10 * time.Second
)

// ErrSessionActive is returned by StartSession while another room session
// is still running.
var ErrSessionActive = errors.New("session: a session is already active")

var errSessionEnded = errors.New("session: terminated while waiting")

type permissionKind int

const (
	permissionSpeaker permissionKind = iota
	permissionModerator
)

func (k permissionKind) String() string {
	if k == permissionModerator {
		return "moderator"
	}
	return "speaker"
}

type Manager struct {
	cfg     *config.Config
	gw      gateway.Client
	journal journal.Journal
	report  report.Sender

	session *Session
	limiter *rate.Limiter

	startMu sync.Mutex
	termMu  sync.Mutex

	listenMu       sync.Mutex
	listenerTask   *schedule.Task
	listenEnabled  bool
	attemptedPings map[string]struct{}

	dumpMu      sync.Mutex
	dumpCounter int
}

func NewManager(cfg *config.Config, gw gateway.Client, jr journal.Journal, rp report.Sender) *Manager {
	limit := rate.Inf
	if cfg.ChatMessageGap > 0 {
		limit = rate.Every(cfg.ChatMessageGap)
	}
	return &Manager{
		cfg:            cfg,
		gw:             gw,
		journal:        jr,
		report:         rp,
		session:        newSession(),
		limiter:        rate.NewLimiter(limit, 1),
		attemptedPings: make(map[string]struct{}),
	}
}

// Status returns a read-only view of the current session for logging and
// the status surface.
func (m *Manager) Status() Status {
	return m.session.status()
}

// StartSession joins a room and runs the full automation lifecycle:
// populate state, negotiate speaker (and moderator, where the room's
// policy needs it) permissions, then start the recurring room tasks. It
// blocks until the permission negotiation has resolved one way or the
// other; the recurring tasks keep running in the background afterwards.
func (m *Manager) StartSession(ctx context.Context, roomID string) error {
	m.startMu.Lock()
	if m.session.active() {
		m.startMu.Unlock()
		return ErrSessionActive
	}
	join, err := m.gw.Join(ctx, roomID)
	if err != nil {
		m.startMu.Unlock()
		return fmt.Errorf("join room %s: %w", roomID, err)
	}
	if !join.Success {
		m.startMu.Unlock()
		return fmt.Errorf("join room %s: rejected by gateway", roomID)
	}
	if join.RoomID == "" {
		join.RoomID = roomID
	}
	m.session.begin(join)
	m.startMu.Unlock()

	telemetry.SessionsStarted.Inc()
	telemetry.SessionActiveGauge.Set(1)
	slog.Info("joined room",
		"room_id", roomID,
		"room_type", string(roomTypeOf(join)),
		"club_id", join.ClubID,
		"host", join.HostName,
		"chat_enabled", join.ChatEnabled,
		"users", len(join.Users))

	m.dumpJoin(ctx, join)
	if err := m.gw.KeepAlive(ctx, roomID); err != nil {
		slog.Warn("initial keep-alive failed", "room_id", roomID, "error", err)
	}

	self, found := findUser(join.Users, m.cfg.UserID)
	m.session.applySelf(self, found)

	needMod := m.moderationRequired()
	m.sendLines(ctx, roomID, joinMessages(join.HostName, needMod, self.IsSpeaker, self.IsModerator))

	if !m.session.isActiveSpeaker() {
		if err := m.waitForPermission(ctx, permissionSpeaker, join.AutoSpeakerApproval); err != nil {
			if !errors.Is(err, errSessionEnded) {
				m.terminate("speaker permission not granted")
			}
			return err
		}
	}
	if needMod && !m.session.isActiveMod() {
		if err := m.waitForPermission(ctx, permissionModerator, false); err != nil {
			if !errors.Is(err, errSessionEnded) {
				m.terminate("moderator permission not granted")
			}
			return err
		}
	}

	m.startRoomTasks(roomID)
	return nil
}

// StopSession terminates the active session. Safe to call when none is
// running.
func (m *Manager) StopSession() {
	m.terminate("stopped by operator")
}

// moderationRequired reports whether the current room's policy involves
// invite or promote actions, which the bot can only perform as moderator.
func (m *Manager) moderationRequired() bool {
	pol := m.screenPolicy()
	return pol.inviteAll || pol.promoteAll || pol.selective
}

// waitForPermission runs the bounded permission wait: request the
// permission once, then re-derive the bot's flags from fresh snapshots
// until granted or the timeout elapses. When the permission is already
// held the first probe succeeds immediately and no waiting happens.
func (m *Manager) waitForPermission(ctx context.Context, kind permissionKind, autoApproval bool) error {
	roomID := m.session.room()
	if roomID == "" {
		return errSessionEnded
	}
	if kind == permissionSpeaker {
		if autoApproval {
			if err := m.gw.AcceptSpeakerInvite(ctx, roomID); err == nil {
				m.session.grantSpeaker()
				slog.Info("speaker permission granted automatically", "room_id", roomID)
				return nil
			}
		}
		if err := m.gw.RaiseHand(ctx, roomID); err != nil {
			slog.Warn("raise hand failed", "room_id", roomID, "error", err)
		}
	}
	if !m.session.beginWait(kind) {
		return fmt.Errorf("%s wait already in progress", kind)
	}
	defer m.session.endWait(kind)

	slog.Info("waiting for permission", "room_id", roomID, "kind", kind.String())
	err := schedule.Await(ctx, m.cfg.PermissionInterval, m.cfg.PermissionTimeout, func(ctx context.Context) (bool, error) {
		if !m.session.active() {
			return false, errSessionEnded
		}
		if kind == permissionSpeaker {
			// Best effort: a moderator may have invited us since last check.
			_ = m.gw.AcceptSpeakerInvite(ctx, roomID)
		}
		snap, err := m.gw.GetSnapshot(ctx, roomID)
		if err != nil {
			if errors.Is(err, gateway.ErrRoomUnavailable) {
				return false, err
			}
			return false, nil
		}
		self, found := findUser(snap.Users, m.cfg.UserID)
		m.session.applySelf(self, found)
		if kind == permissionModerator {
			return m.session.isActiveMod(), nil
		}
		return m.session.isActiveSpeaker(), nil
	})
	if err != nil {
		if errors.Is(err, schedule.ErrWaitTimeout) {
			return fmt.Errorf("%s permission not granted within %s: %w", kind, m.cfg.PermissionTimeout, err)
		}
		return err
	}
	slog.Info("permission granted", "room_id", roomID, "kind", kind.String())
	return nil
}

// reconnect retries joining the room until it succeeds, the timeout
// elapses, or the gateway says the room is definitively gone.
func (m *Manager) reconnect(roomID string) error {
	slog.Warn("room unreachable, attempting to rejoin", "room_id", roomID)
	return schedule.Await(context.Background(), m.cfg.ReconnectInterval, m.cfg.ReconnectTimeout, func(ctx context.Context) (bool, error) {
		if !m.session.active() {
			return false, errSessionEnded
		}
		telemetry.Reconnects.Inc()
		join, err := m.gw.Join(ctx, roomID)
		if err != nil {
			if errors.Is(err, gateway.ErrRoomUnavailable) {
				return false, err
			}
			slog.Warn("rejoin attempt failed", "room_id", roomID, "error", err)
			return false, nil
		}
		if !join.Success {
			return false, nil
		}
		slog.Info("rejoined room", "room_id", roomID)
		return true, nil
	})
}

func (m *Manager) startRoomTasks(roomID string) {
	_, roomType, _, _, chatEnabled := m.session.info()

	if chatEnabled {
		var lines []string
		if m.cfg.Announcement != "" {
			lines = []string{m.cfg.Announcement}
		} else if roomType == RoomPrivate {
			lines = shareURLMessages(roomID)
		}
		if lines != nil {
			m.sendLines(context.Background(), roomID, lines)
			m.session.trackTask(taskAnnouncement, schedule.Every(m.cfg.AnnouncementInterval, taskAnnouncement, func() bool {
				return m.announcementTick(roomID, lines)
			}))
		}
	}

	m.session.trackTask(taskKeepAlive, schedule.Every(m.cfg.KeepAliveInterval, taskKeepAlive, func() bool {
		return m.keepAliveTick(roomID)
	}))
	m.session.trackTask(taskActiveRoom, schedule.Every(m.cfg.PollInterval, taskActiveRoom, func() bool {
		return m.activeRoomTick(roomID)
	}))
	telemetry.ActiveTasksGauge.Set(float64(m.session.status().ActiveTasks))
}

func (m *Manager) keepAliveTick(roomID string) bool {
	if !m.session.active() {
		return false
	}
	if err := m.gw.KeepAlive(context.Background(), roomID); err != nil {
		slog.Warn("keep-alive failed", "room_id", roomID, "error", err)
	}
	return true
}

func (m *Manager) announcementTick(roomID string, lines []string) bool {
	if !m.session.active() {
		return false
	}
	m.sendLines(context.Background(), roomID, lines)
	return true
}

// activeRoomTick is the main poll: refresh the snapshot (reconnecting if
// the room is unreachable), re-derive the bot's own permissions, run a
// screening pass, and journal the roster on its cadence.
func (m *Manager) activeRoomTick(roomID string) bool {
	if !m.session.active() {
		return false
	}
	ctx := context.Background()

	snap, err := m.gw.GetSnapshot(ctx, roomID)
	if err != nil || !snap.Success {
		if errors.Is(err, gateway.ErrRoomUnavailable) {
			m.terminate("room closed")
			return false
		}
		if rerr := m.reconnect(roomID); rerr != nil {
			switch {
			case errors.Is(rerr, errSessionEnded):
			case errors.Is(rerr, gateway.ErrRoomUnavailable):
				m.terminate("room closed")
			default:
				m.terminate("unexplained disconnect")
			}
			return false
		}
		return true
	}

	self, found := findUser(snap.Users, m.cfg.UserID)
	m.session.applySelf(self, found)

	if m.session.speakerRevoked() {
		slog.Info("speaker permission lost, waiting for re-grant", "room_id", roomID)
		if err := m.waitForPermission(ctx, permissionSpeaker, false); err != nil {
			if !errors.Is(err, errSessionEnded) {
				m.terminate("speaker permission revoked")
			}
			return false
		}
	}
	if m.moderationRequired() && m.session.modRevoked() {
		slog.Info("moderator permission lost, waiting for re-grant", "room_id", roomID)
		if err := m.waitForPermission(ctx, permissionModerator, false); err != nil {
			if !errors.Is(err, errSessionEnded) {
				m.terminate("moderator permission revoked")
			}
			return false
		}
	}

	m.screenPass(ctx, roomID, snap.Users)
	m.maybeDumpSnapshot(ctx, roomID, snap)
	return m.session.active()
}

// terminate cancels every tracked task, leaves the room, resets the
// session, and restarts the ping listener when one was enabled. Safe to
// call any number of times.
func (m *Manager) terminate(reason string) {
	m.termMu.Lock()
	defer m.termMu.Unlock()
	if !m.session.active() {
		return
	}
	st := m.session.status()
	startedAt := m.session.started()
	slog.Info("terminating session", "room_id", st.RoomID, "reason", reason,
		"welcomed", st.Welcomed, "invited", st.Invited, "promoted", st.Promoted)

	for _, t := range m.session.takeTasks() {
		t.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
	defer cancel()
	if err := m.gw.Leave(ctx, st.RoomID); err != nil {
		slog.Warn("leave room failed", "room_id", st.RoomID, "error", err)
	}
	m.session.reset()

	telemetry.SessionsTerminated.Inc()
	telemetry.SessionActiveGauge.Set(0)
	telemetry.ActiveTasksGauge.Set(0)

	m.sendReport(st, startedAt, reason)

	m.listenMu.Lock()
	restart := m.listenEnabled
	m.listenMu.Unlock()
	if restart {
		m.StartListener()
	}
}

func (m *Manager) sendReport(st Status, startedAt time.Time, reason string) {
	if m.report == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()
	err := m.report.SendSessionReport(ctx, report.SessionReport{
		RoomID:    st.RoomID,
		RoomType:  string(st.RoomType),
		StartedAt: startedAt,
		EndedAt:   time.Now(),
		Reason:    reason,
		Welcomed:  st.Welcomed,
		Invited:   st.Invited,
		Promoted:  st.Promoted,
	})
	if err != nil {
		slog.Error("session report failed", "room_id", st.RoomID, "error", err)
	}
}

// sendChat delivers one chat line, honoring the room's message cadence.
// A disabled chat surface makes this a no-op.
func (m *Manager) sendChat(ctx context.Context, roomID, text string) error {
	_, _, _, _, chatEnabled := m.session.info()
	if !chatEnabled {
		return nil
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	return m.gw.SendChat(ctx, roomID, text)
}

func (m *Manager) sendLines(ctx context.Context, roomID string, lines []string) {
	for _, line := range lines {
		if err := m.sendChat(ctx, roomID, line); err != nil {
			slog.Warn("chat message failed", "room_id", roomID, "error", err)
		}
	}
}

func (m *Manager) dumpJoin(ctx context.Context, join gateway.JoinInfo) {
	if m.journal == nil || join.IsPrivate || join.IsSocialMode {
		return
	}
	if err := m.journal.DumpJoin(ctx, join.RoomID, join); err != nil {
		slog.Warn("join dump failed", "room_id", join.RoomID, "error", err)
	}
}

func (m *Manager) maybeDumpSnapshot(ctx context.Context, roomID string, snap gateway.Snapshot) {
	_, roomType, _, _, _ := m.session.info()
	if m.journal == nil || roomType != RoomPublic {
		return
	}
	m.dumpMu.Lock()
	m.dumpCounter++
	due := m.dumpCounter >= m.cfg.SnapshotDumpEvery
	if due {
		m.dumpCounter = 0
	}
	m.dumpMu.Unlock()
	if !due {
		return
	}
	if err := m.journal.DumpSnapshot(ctx, roomID, snap); err != nil {
		slog.Warn("snapshot dump failed", "room_id", roomID, "error", err)
	}
}

func findUser(users []gateway.RoomUser, userID string) (gateway.RoomUser, bool) {
	for _, u := range users {
		if u.UserID == userID {
			return u, true
		}
	}
	return gateway.RoomUser{}, false
}
