package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iconichq/automod/internal/config"
	"github.com/iconichq/automod/internal/gateway"
	"github.com/iconichq/automod/internal/journal"
	"github.com/iconichq/automod/internal/report"
	"github.com/iconichq/automod/internal/schedule"
	"github.com/iconichq/automod/internal/telemetry"
)

const testBotID = "bot-1"

type snapshotResult struct {
	snap gateway.Snapshot
	err  error
}

type mockGateway struct {
	mu sync.Mutex

	joinInfo gateway.JoinInfo
	joinErr  error
	// joinErrOnce makes only the first Join fail, for reconnect tests.
	joinErrOnce bool
	joinCalls   int

	// snapshots are consumed in order; the last one repeats forever.
	snapshots []snapshotResult
	snapCalls int

	chats         []string
	chatErrs      []error
	invites       []string
	promotes      []string
	removed       []string
	leaves        []string
	keepAlives    int
	raiseHands    int
	acceptErr     error
	acceptInvites int

	notifs   []gateway.Notification
	notifErr error
}

func (g *mockGateway) Join(_ context.Context, roomID string) (gateway.JoinInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joinCalls++
	if g.joinErr != nil {
		err := g.joinErr
		if g.joinErrOnce {
			g.joinErr = nil
		}
		return gateway.JoinInfo{}, err
	}
	info := g.joinInfo
	if info.RoomID == "" {
		info.RoomID = roomID
	}
	return info, nil
}

func (g *mockGateway) GetSnapshot(_ context.Context, _ string) (gateway.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snapCalls++
	if len(g.snapshots) == 0 {
		return gateway.Snapshot{Success: true}, nil
	}
	res := g.snapshots[0]
	if len(g.snapshots) > 1 {
		g.snapshots = g.snapshots[1:]
	}
	return res.snap, res.err
}

func (g *mockGateway) Leave(_ context.Context, roomID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaves = append(g.leaves, roomID)
	return nil
}

func (g *mockGateway) InviteToSpeak(_ context.Context, _, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invites = append(g.invites, userID)
	return nil
}

func (g *mockGateway) PromoteToModerator(_ context.Context, _, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.promotes = append(g.promotes, userID)
	return nil
}

func (g *mockGateway) RemoveUser(_ context.Context, _, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removed = append(g.removed, userID)
	return nil
}

func (g *mockGateway) SendChat(_ context.Context, _, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.chatErrs) > 0 {
		err := g.chatErrs[0]
		g.chatErrs = g.chatErrs[1:]
		if err != nil {
			return err
		}
	}
	g.chats = append(g.chats, text)
	return nil
}

func (g *mockGateway) KeepAlive(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keepAlives++
	return nil
}

func (g *mockGateway) RaiseHand(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.raiseHands++
	return nil
}

func (g *mockGateway) AcceptSpeakerInvite(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.acceptInvites++
	return g.acceptErr
}

func (g *mockGateway) GetNotifications(_ context.Context) ([]gateway.Notification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.notifs, g.notifErr
}

func (g *mockGateway) chatCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.chats)
}

func (g *mockGateway) leaveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.leaves)
}

func (g *mockGateway) raiseHandCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.raiseHands
}

func (g *mockGateway) acceptCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.acceptInvites
}

func (g *mockGateway) joinCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.joinCalls
}

type mockJournal struct {
	mu        sync.Mutex
	joins     []string
	snapshots []string
}

func (j *mockJournal) DumpJoin(_ context.Context, roomID string, _ any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.joins = append(j.joins, roomID)
	return nil
}

func (j *mockJournal) DumpSnapshot(_ context.Context, roomID string, _ any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snapshots = append(j.snapshots, roomID)
	return nil
}

func (j *mockJournal) ListDumps(_ context.Context, _ string, _ int) ([]journal.Dump, error) {
	return nil, nil
}

type mockReportSender struct {
	mu      sync.Mutex
	reports []report.SessionReport
}

func (r *mockReportSender) SendSessionReport(_ context.Context, rep report.SessionReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return nil
}

func (r *mockReportSender) last() (report.SessionReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reports) == 0 {
		return report.SessionReport{}, false
	}
	return r.reports[len(r.reports)-1], true
}

func testConfig() *config.Config {
	return &config.Config{
		Env:    "test",
		UserID: testBotID,

		PollInterval:         time.Hour,
		KeepAliveInterval:    time.Hour,
		ListenInterval:       time.Hour,
		AnnouncementInterval: time.Hour,
		PermissionInterval:   2 * time.Millisecond,
		PermissionTimeout:    80 * time.Millisecond,
		ReconnectInterval:    2 * time.Millisecond,
		ReconnectTimeout:     80 * time.Millisecond,
		PingFreshness:        30 * time.Second,
		ChatMessageGap:       0,
		SnapshotDumpEvery:    1,
	}
}

func newTestManager(cfg *config.Config, gw *mockGateway) (*Manager, *mockReportSender) {
	telemetry.Init()
	rp := &mockReportSender{}
	return NewManager(cfg, gw, &mockJournal{}, rp), rp
}

func selfUser(speaker, mod bool) gateway.RoomUser {
	return gateway.RoomUser{UserID: testBotID, FirstName: "AutoMod", IsSpeaker: speaker, IsModerator: mod}
}

func grantedJoin() gateway.JoinInfo {
	return gateway.JoinInfo{
		Success:     true,
		RoomID:      "room-1",
		HostID:      "host-1",
		HostName:    "Alice",
		ChatEnabled: true,
		Users:       []gateway.RoomUser{selfUser(true, true)},
	}
}

func TestStartSessionAlreadyPermittedStartsTasks(t *testing.T) {
	gw := &mockGateway{joinInfo: grantedJoin()}
	gw.snapshots = []snapshotResult{{snap: gateway.Snapshot{Success: true, Users: []gateway.RoomUser{selfUser(true, true)}}}}
	cfg := testConfig()
	cfg.GuestList = []string{"guest-1"}
	manager, _ := newTestManager(cfg, gw)
	defer manager.StopSession()

	if err := manager.StartSession(context.Background(), "room-1"); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	st := manager.Status()
	if !st.Active || st.RoomID != "room-1" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if !st.ActiveSpeaker || !st.ActiveMod {
		t.Fatalf("expected both permissions active, got %+v", st)
	}
	if st.WaitingSpeaker || st.WaitingMod {
		t.Fatalf("expected no waits when permissions already held, got %+v", st)
	}
	if st.ActiveTasks != 2 {
		t.Fatalf("expected keep-alive and active-room tasks, got %d", st.ActiveTasks)
	}
	if gw.raiseHandCount() != 0 {
		t.Fatalf("expected no raise hand when already speaking, got %d", gw.raiseHandCount())
	}
}

func TestStartSessionRejectsSecondSession(t *testing.T) {
	gw := &mockGateway{joinInfo: grantedJoin()}
	gw.snapshots = []snapshotResult{{snap: gateway.Snapshot{Success: true, Users: []gateway.RoomUser{selfUser(true, true)}}}}
	manager, _ := newTestManager(testConfig(), gw)
	defer manager.StopSession()

	if err := manager.StartSession(context.Background(), "room-1"); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := manager.StartSession(context.Background(), "room-2"); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
}

func TestStartSessionWaitsUntilSpeakerGranted(t *testing.T) {
	join := grantedJoin()
	join.Users = []gateway.RoomUser{selfUser(false, false)}
	gw := &mockGateway{joinInfo: join}
	gw.snapshots = []snapshotResult{
		{snap: gateway.Snapshot{Success: true, Users: []gateway.RoomUser{selfUser(false, false)}}},
		{snap: gateway.Snapshot{Success: true, Users: []gateway.RoomUser{selfUser(true, false)}}},
	}
	manager, _ := newTestManager(testConfig(), gw)
	defer manager.StopSession()

	if err := manager.StartSession(context.Background(), "room-1"); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if gw.raiseHandCount() != 1 {
		t.Fatalf("expected one raise hand, got %d", gw.raiseHandCount())
	}
	st := manager.Status()
	if !st.ActiveSpeaker || st.WaitingSpeaker {
		t.Fatalf("expected speaker granted and wait cleared, got %+v", st)
	}
}

func TestStartSessionSpeakerTimeoutTerminates(t *testing.T) {
	join := grantedJoin()
	join.Users = []gateway.RoomUser{selfUser(false, false)}
	gw := &mockGateway{joinInfo: join}
	gw.snapshots = []snapshotResult{{snap: gateway.Snapshot{Success: true, Users: []gateway.RoomUser{selfUser(false, false)}}}}
	manager, rp := newTestManager(testConfig(), gw)

	err := manager.StartSession(context.Background(), "room-1")
	if !errors.Is(err, schedule.ErrWaitTimeout) {
		t.Fatalf("expected wait timeout, got %v", err)
	}
	if manager.Status().Active {
		t.Fatal("expected session terminated after timeout")
	}
	if gw.leaveCount() != 1 {
		t.Fatalf("expected one leave call, got %d", gw.leaveCount())
	}
	if rep, ok := rp.last(); !ok || rep.Reason != "speaker permission not granted" {
		t.Fatalf("unexpected session report: %+v (ok=%v)", rep, ok)
	}
}

func TestStartSessionFastFailsWhenRoomCloses(t *testing.T) {
	join := grantedJoin()
	join.Users = []gateway.RoomUser{selfUser(false, false)}
	gw := &mockGateway{joinInfo: join}
	gw.snapshots = []snapshotResult{{err: gateway.ErrRoomUnavailable}}
	manager, _ := newTestManager(testConfig(), gw)

	start := time.Now()
	err := manager.StartSession(context.Background(), "room-1")
	if !errors.Is(err, gateway.ErrRoomUnavailable) {
		t.Fatalf("expected ErrRoomUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("expected fast failure, took %s", elapsed)
	}
	if manager.Status().Active {
		t.Fatal("expected session terminated after room closed")
	}
}

func TestStartSessionAutoApprovalSkipsWait(t *testing.T) {
	join := grantedJoin()
	join.AutoSpeakerApproval = true
	join.Users = []gateway.RoomUser{selfUser(false, false)}
	gw := &mockGateway{joinInfo: join}
	gw.snapshots = []snapshotResult{{snap: gateway.Snapshot{Success: true, Users: []gateway.RoomUser{selfUser(true, false)}}}}
	manager, _ := newTestManager(testConfig(), gw)
	defer manager.StopSession()

	if err := manager.StartSession(context.Background(), "room-1"); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if gw.acceptCount() != 1 {
		t.Fatalf("expected one accept call, got %d", gw.acceptCount())
	}
	if gw.raiseHandCount() != 0 {
		t.Fatalf("expected no raise hand with auto approval, got %d", gw.raiseHandCount())
	}
	if !manager.Status().ActiveSpeaker {
		t.Fatal("expected speaker active after auto approval")
	}
}

func TestStartSessionWaitsForModeratorWhenPolicyNeedsIt(t *testing.T) {
	join := grantedJoin()
	join.Users = []gateway.RoomUser{selfUser(true, false)}
	gw := &mockGateway{joinInfo: join}
	gw.snapshots = []snapshotResult{
		{snap: gateway.Snapshot{Success: true, Users: []gateway.RoomUser{selfUser(true, false)}}},
		{snap: gateway.Snapshot{Success: true, Users: []gateway.RoomUser{selfUser(true, true)}}},
	}
	cfg := testConfig()
	cfg.ModList = []string{"mod-1"}
	manager, _ := newTestManager(cfg, gw)
	defer manager.StopSession()

	if err := manager.StartSession(context.Background(), "room-1"); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if !manager.Status().ActiveMod {
		t.Fatal("expected moderator permission after wait")
	}
}

func TestStartSessionSendsHelloAndPermissionAsk(t *testing.T) {
	join := grantedJoin()
	join.Users = []gateway.RoomUser{selfUser(false, false)}
	gw := &mockGateway{joinInfo: join}
	gw.snapshots = []snapshotResult{{snap: gateway.Snapshot{Success: true, Users: []gateway.RoomUser{selfUser(true, true)}}}}
	cfg := testConfig()
	cfg.GuestList = []string{"guest-1"}
	manager, _ := newTestManager(cfg, gw)
	defer manager.StopSession()

	if err := manager.StartSession(context.Background(), "room-1"); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.chats) < 2 {
		t.Fatalf("expected hello plus ask, got %v", gw.chats)
	}
	if gw.chats[0] != helloMessage("Alice") {
		t.Fatalf("unexpected first message: %q", gw.chats[0])
	}
	if gw.chats[1] != messageRequestSpeakAndMod {
		t.Fatalf("unexpected ask message: %q", gw.chats[1])
	}
}

func TestActiveRoomTickReconnectsAfterTransientFailure(t *testing.T) {
	gw := &mockGateway{joinInfo: grantedJoin()}
	manager, _ := newTestManager(testConfig(), gw)
	manager.session.begin(grantedJoin())
	manager.session.applySelf(selfUser(true, true), true)
	defer manager.StopSession()

	gw.snapshots = []snapshotResult{
		{err: errors.New("gateway timeout")},
		{snap: gateway.Snapshot{Success: true, Users: []gateway.RoomUser{selfUser(true, true)}}},
	}
	if !manager.activeRoomTick("room-1") {
		t.Fatal("expected tick to continue after successful rejoin")
	}
	if gw.joinCount() != 1 {
		t.Fatalf("expected one rejoin, got %d", gw.joinCount())
	}
}

func TestActiveRoomTickTerminatesWhenRoomGone(t *testing.T) {
	gw := &mockGateway{joinInfo: grantedJoin()}
	manager, rp := newTestManager(testConfig(), gw)
	manager.session.begin(grantedJoin())
	manager.session.applySelf(selfUser(true, true), true)

	gw.snapshots = []snapshotResult{{err: gateway.ErrRoomUnavailable}}
	if manager.activeRoomTick("room-1") {
		t.Fatal("expected tick to stop when the room is gone")
	}
	if manager.Status().Active {
		t.Fatal("expected session terminated")
	}
	if rep, ok := rp.last(); !ok || rep.Reason != "room closed" {
		t.Fatalf("unexpected report: %+v (ok=%v)", rep, ok)
	}
}

func TestActiveRoomTickTerminatesWhenReconnectExhausted(t *testing.T) {
	gw := &mockGateway{joinInfo: grantedJoin(), joinErr: errors.New("gateway down")}
	manager, rp := newTestManager(testConfig(), gw)
	manager.session.begin(grantedJoin())
	manager.session.applySelf(selfUser(true, true), true)

	gw.snapshots = []snapshotResult{{err: errors.New("gateway down")}}
	if manager.activeRoomTick("room-1") {
		t.Fatal("expected tick to stop after reconnect window")
	}
	if manager.Status().Active {
		t.Fatal("expected session terminated")
	}
	if rep, ok := rp.last(); !ok || rep.Reason != "unexplained disconnect" {
		t.Fatalf("unexpected report: %+v (ok=%v)", rep, ok)
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	gw := &mockGateway{joinInfo: grantedJoin()}
	gw.snapshots = []snapshotResult{{snap: gateway.Snapshot{Success: true, Users: []gateway.RoomUser{selfUser(true, true)}}}}
	manager, rp := newTestManager(testConfig(), gw)
	if err := manager.StartSession(context.Background(), "room-1"); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	manager.StopSession()
	manager.StopSession()

	if gw.leaveCount() != 1 {
		t.Fatalf("expected exactly one leave, got %d", gw.leaveCount())
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if len(rp.reports) != 1 {
		t.Fatalf("expected exactly one report, got %d", len(rp.reports))
	}
	if manager.Status().Active {
		t.Fatal("expected inactive session after stop")
	}
}

func TestPrivateRoomAnnouncesShareURL(t *testing.T) {
	join := grantedJoin()
	join.IsPrivate = true
	gw := &mockGateway{joinInfo: join}
	gw.snapshots = []snapshotResult{{snap: gateway.Snapshot{Success: true, Users: []gateway.RoomUser{selfUser(true, true)}}}}
	manager, _ := newTestManager(testConfig(), gw)
	defer manager.StopSession()

	if err := manager.StartSession(context.Background(), "room-1"); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	var found bool
	for _, msg := range gw.chats {
		if msg == "https://www.clubhouse.com/room/room-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected share url in chats, got %v", gw.chats)
	}
}
