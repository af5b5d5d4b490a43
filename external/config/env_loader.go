package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	internalconfig "github.com/iconichq/automod/internal/config"
)

type envConfig struct {
	Env string `env:"ENV" envDefault:"production"`

	APIBaseURL string `env:"API_BASE_URL,required"`
	UserID     string `env:"USER_ID,required"`
	UserToken  string `env:"USER_TOKEN,required"`
	DeviceID   string `env:"DEVICE_ID"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	GuestList       []string `env:"GUEST_LIST" envSeparator:","`
	ModList         []string `env:"MOD_LIST" envSeparator:","`
	PingList        []string `env:"PING_LIST" envSeparator:","`
	AutoInviteClubs []string `env:"AUTO_INVITE_CLUBS" envSeparator:","`
	SocialClubs     []string `env:"SOCIAL_CLUBS" envSeparator:","`

	GreetingOverrides map[string]string `env:"GREETING_OVERRIDES" envSeparator:","`

	PollInterval         time.Duration `env:"POLL_INTERVAL" envDefault:"15s"`
	KeepAliveInterval    time.Duration `env:"KEEP_ALIVE_INTERVAL" envDefault:"30s"`
	ListenInterval       time.Duration `env:"LISTEN_INTERVAL" envDefault:"30s"`
	AnnouncementInterval time.Duration `env:"ANNOUNCEMENT_INTERVAL" envDefault:"2m"`
	PermissionInterval   time.Duration `env:"PERMISSION_INTERVAL" envDefault:"10s"`
	PermissionTimeout    time.Duration `env:"PERMISSION_TIMEOUT" envDefault:"2m"`
	ReconnectInterval    time.Duration `env:"RECONNECT_INTERVAL" envDefault:"10s"`
	ReconnectTimeout     time.Duration `env:"RECONNECT_TIMEOUT" envDefault:"2m"`
	PingFreshness        time.Duration `env:"PING_FRESHNESS" envDefault:"30s"`
	ChatMessageGap       time.Duration `env:"CHAT_MESSAGE_GAP" envDefault:"3s"`

	Announcement string `env:"ANNOUNCEMENT"`

	SnapshotDumpEvery int `env:"SNAPSHOT_DUMP_EVERY" envDefault:"6"`

	MetricsAddr      string `env:"METRICS_ADDR" envDefault:":9130"`
	ReportWebhookURL string `env:"REPORT_WEBHOOK_URL"`
}

func Load() (*internalconfig.Config, error) {
	// Local dev convenience; production relies on real environment variables.
	_ = godotenv.Load()

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                  raw.Env,
		APIBaseURL:           raw.APIBaseURL,
		UserID:               raw.UserID,
		UserToken:            raw.UserToken,
		DeviceID:             raw.DeviceID,
		DatabaseURL:          raw.DatabaseURL,
		GuestList:            raw.GuestList,
		ModList:              raw.ModList,
		PingList:             raw.PingList,
		AutoInviteClubs:      raw.AutoInviteClubs,
		SocialClubs:          raw.SocialClubs,
		GreetingOverrides:    raw.GreetingOverrides,
		PollInterval:         raw.PollInterval,
		KeepAliveInterval:    raw.KeepAliveInterval,
		ListenInterval:       raw.ListenInterval,
		AnnouncementInterval: raw.AnnouncementInterval,
		PermissionInterval:   raw.PermissionInterval,
		PermissionTimeout:    raw.PermissionTimeout,
		ReconnectInterval:    raw.ReconnectInterval,
		ReconnectTimeout:     raw.ReconnectTimeout,
		PingFreshness:        raw.PingFreshness,
		ChatMessageGap:       raw.ChatMessageGap,
		Announcement:         raw.Announcement,
		SnapshotDumpEvery:    raw.SnapshotDumpEvery,
		MetricsAddr:          raw.MetricsAddr,
		ReportWebhookURL:     raw.ReportWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
