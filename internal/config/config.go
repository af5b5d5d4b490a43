package config

import (
	"fmt"
	"slices"
	"time"
)

// Config is built once at startup and passed by reference everywhere.
// Nothing else in the process holds mutable policy state.
type Config struct {
	Env string

	APIBaseURL string
	UserID     string
	UserToken  string
	DeviceID   string

	DatabaseURL string

	GuestList       []string
	ModList         []string
	PingList        []string
	AutoInviteClubs []string
	SocialClubs     []string

	// GreetingOverrides maps a user id to a custom welcome line.
	GreetingOverrides map[string]string

	PollInterval         time.Duration
	KeepAliveInterval    time.Duration
	ListenInterval       time.Duration
	AnnouncementInterval time.Duration
	PermissionInterval   time.Duration
	PermissionTimeout    time.Duration
	ReconnectInterval    time.Duration
	ReconnectTimeout     time.Duration
	PingFreshness        time.Duration
	ChatMessageGap       time.Duration

	// Announcement, when set, replaces the default share-URL announcement.
	Announcement string

	SnapshotDumpEvery int

	MetricsAddr      string
	ReportWebhookURL string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	for _, iv := range []struct {
		name  string
		value time.Duration
	}{
		{"POLL_INTERVAL", c.PollInterval},
		{"KEEP_ALIVE_INTERVAL", c.KeepAliveInterval},
		{"LISTEN_INTERVAL", c.ListenInterval},
		{"ANNOUNCEMENT_INTERVAL", c.AnnouncementInterval},
		{"PERMISSION_INTERVAL", c.PermissionInterval},
		{"PERMISSION_TIMEOUT", c.PermissionTimeout},
		{"RECONNECT_INTERVAL", c.ReconnectInterval},
		{"RECONNECT_TIMEOUT", c.ReconnectTimeout},
		{"PING_FRESHNESS", c.PingFreshness},
	} {
		if iv.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", iv.name, iv.value)
		}
	}
	if c.PermissionInterval >= c.PermissionTimeout {
		return fmt.Errorf("PERMISSION_INTERVAL must be shorter than PERMISSION_TIMEOUT")
	}
	if c.ReconnectInterval >= c.ReconnectTimeout {
		return fmt.Errorf("RECONNECT_INTERVAL must be shorter than RECONNECT_TIMEOUT")
	}
	if c.ChatMessageGap < 0 {
		return fmt.Errorf("CHAT_MESSAGE_GAP must not be negative, got %s", c.ChatMessageGap)
	}
	if c.SnapshotDumpEvery <= 0 {
		return fmt.Errorf("SNAPSHOT_DUMP_EVERY must be positive, got %d", c.SnapshotDumpEvery)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "API_BASE_URL", value: c.APIBaseURL},
		{name: "USER_ID", value: c.UserID},
		{name: "USER_TOKEN", value: c.UserToken},
		{name: "DATABASE_URL", value: c.DatabaseURL},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) OnGuestList(userID string) bool {
	return slices.Contains(c.GuestList, userID)
}

func (c *Config) OnModList(userID string) bool {
	return slices.Contains(c.ModList, userID)
}

// PingAuthorized reports whether a room invite from this user may trigger
// a new session.
func (c *Config) PingAuthorized(userID string) bool {
	return slices.Contains(c.PingList, userID)
}

func (c *Config) IsAutoInviteClub(clubID string) bool {
	return clubID != "" && slices.Contains(c.AutoInviteClubs, clubID)
}

func (c *Config) IsSocialClub(clubID string) bool {
	return clubID != "" && slices.Contains(c.SocialClubs, clubID)
}

// GreetingFor returns the custom greeting for a user, if one is configured.
func (c *Config) GreetingFor(userID string) (string, bool) {
	msg, ok := c.GreetingOverrides[userID]
	return msg, ok
}
