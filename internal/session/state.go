package session

import (
	"sync"
	"time"

	"github.com/iconichq/automod/internal/gateway"
	"github.com/iconichq/automod/internal/schedule"
)

type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomPrivate RoomType = "private"
	RoomSocial  RoomType = "social"
	RoomLounge  RoomType = "lounge"
)

func roomTypeOf(join gateway.JoinInfo) RoomType {
	switch {
	case join.IsPrivate:
		return RoomPrivate
	case join.IsSocialMode:
		return RoomSocial
	case join.IsLounge:
		return RoomLounge
	}
	return RoomPublic
}

// Status is the read-only view exposed for observability.
type Status struct {
	Active         bool
	RoomID         string
	RoomType       RoomType
	WaitingSpeaker bool
	ActiveSpeaker  bool
	WaitingMod     bool
	ActiveMod      bool
	ActiveTasks    int
	Welcomed       int
	Invited        int
	Promoted       int
}

// Session is the mutable record of one room automation attempt. Every
// periodic task reads and writes it, so all access goes through the
// mutex-guarded methods below; roomID empty means no session is active.
type Session struct {
	mu sync.Mutex

	roomID      string
	roomType    RoomType
	clubID      string
	hostID      string
	hostName    string
	chatEnabled bool
	startedAt   time.Time

	waitingSpeaker bool
	grantedSpeaker bool
	activeSpeaker  bool
	waitingMod     bool
	grantedMod     bool
	activeMod      bool

	alreadyInRoom   map[string]struct{}
	screened        map[string]struct{}
	screenedSpeaker map[string]struct{}
	screenedMod     map[string]struct{}
	welcomed        map[string]struct{}

	tasks map[string]*schedule.Task

	invitedCount  int
	promotedCount int
}

func newSession() *Session {
	s := &Session{}
	s.resetLocked()
	return s
}

// begin populates the session from a join response. The room type, host
// and club never change for the session's lifetime.
func (s *Session) begin(join gateway.JoinInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.roomID = join.RoomID
	s.roomType = roomTypeOf(join)
	s.clubID = join.ClubID
	s.hostID = join.HostID
	s.hostName = join.HostName
	s.chatEnabled = join.ChatEnabled
	s.startedAt = time.Now()
	for _, u := range join.Users {
		s.alreadyInRoom[u.UserID] = struct{}{}
	}
}

func (s *Session) resetLocked() {
	s.roomID = ""
	s.roomType = ""
	s.clubID = ""
	s.hostID = ""
	s.hostName = ""
	s.chatEnabled = false
	s.startedAt = time.Time{}
	s.waitingSpeaker = false
	s.grantedSpeaker = false
	s.activeSpeaker = false
	s.waitingMod = false
	s.grantedMod = false
	s.activeMod = false
	s.alreadyInRoom = make(map[string]struct{})
	s.screened = make(map[string]struct{})
	s.screenedSpeaker = make(map[string]struct{})
	s.screenedMod = make(map[string]struct{})
	s.welcomed = make(map[string]struct{})
	s.tasks = make(map[string]*schedule.Task)
	s.invitedCount = 0
	s.promotedCount = 0
}

// reset clears all fields and dedup sets. Idempotent.
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID != ""
}

func (s *Session) room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *Session) info() (roomID string, roomType RoomType, clubID, hostName string, chat bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.roomType, s.clubID, s.hostName, s.chatEnabled
}

func (s *Session) started() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// applySelf re-derives the bot's own permission flags from the latest
// roster entry. active flags track the snapshot exactly; granted flags
// remember that the permission was held at some point.
func (s *Session) applySelf(self gateway.RoomUser, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !found {
		s.activeSpeaker = false
		s.activeMod = false
		return
	}
	s.activeSpeaker = self.IsSpeaker
	s.activeMod = self.IsModerator
	if self.IsSpeaker {
		s.grantedSpeaker = true
		s.waitingSpeaker = false
	}
	if self.IsModerator {
		s.grantedMod = true
		s.waitingMod = false
	}
}

func (s *Session) isActiveSpeaker() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSpeaker
}

func (s *Session) isActiveMod() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeMod
}

func (s *Session) speakerRevoked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantedSpeaker && !s.activeSpeaker
}

func (s *Session) modRevoked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantedMod && !s.activeMod
}

// beginWait marks a permission wait active; it reports false when a wait
// of that kind is already running, so at most one exists per kind.
func (s *Session) beginWait(kind permissionKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case permissionSpeaker:
		if s.waitingSpeaker {
			return false
		}
		s.waitingSpeaker = true
	case permissionModerator:
		if s.waitingMod {
			return false
		}
		s.waitingMod = true
	}
	return true
}

func (s *Session) endWait(kind permissionKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case permissionSpeaker:
		s.waitingSpeaker = false
	case permissionModerator:
		s.waitingMod = false
	}
}

func (s *Session) grantSpeaker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grantedSpeaker = true
	s.activeSpeaker = true
	s.waitingSpeaker = false
}

func (s *Session) wasInRoomAtJoin(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.alreadyInRoom[userID]
	return ok
}

// markWelcomed records a greeting; it reports false when the user was
// welcomed before, which callers treat as "do not greet again".
func (s *Session) markWelcomed(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.welcomed[userID]; ok {
		return false
	}
	s.welcomed[userID] = struct{}{}
	return true
}

func (s *Session) isWelcomed(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.welcomed[userID]
	return ok
}

func (s *Session) markScreened(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.screened[userID]; ok {
		return false
	}
	s.screened[userID] = struct{}{}
	return true
}

func (s *Session) markScreenedSpeaker(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.screenedSpeaker[userID]; ok {
		return false
	}
	s.screenedSpeaker[userID] = struct{}{}
	s.invitedCount++
	return true
}

func (s *Session) isScreenedSpeaker(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.screenedSpeaker[userID]
	return ok
}

func (s *Session) markScreenedMod(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.screenedMod[userID]; ok {
		return false
	}
	s.screenedMod[userID] = struct{}{}
	s.promotedCount++
	return true
}

func (s *Session) isScreenedMod(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.screenedMod[userID]
	return ok
}

func (s *Session) trackTask(name string, t *schedule.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.tasks[name]; ok {
		old.Stop()
	}
	s.tasks[name] = t
}

// takeTasks removes and returns every tracked handle so termination can
// cancel them outside the lock.
func (s *Session) takeTasks() []*schedule.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*schedule.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	s.tasks = make(map[string]*schedule.Task)
	return out
}

func (s *Session) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Active:         s.roomID != "",
		RoomID:         s.roomID,
		RoomType:       s.roomType,
		WaitingSpeaker: s.waitingSpeaker,
		ActiveSpeaker:  s.activeSpeaker,
		WaitingMod:     s.waitingMod,
		ActiveMod:      s.activeMod,
		ActiveTasks:    len(s.tasks),
		Welcomed:       len(s.welcomed),
		Invited:        s.invitedCount,
		Promoted:       s.promotedCount,
	}
}
