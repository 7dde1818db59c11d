package commands

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"fic-gradebot/internal/components/chrono"
	"fic-gradebot/internal/components/telemetry"
	"fic-gradebot/internal/db"
	"fic-gradebot/internal/keychain"
	"fic-gradebot/internal/monitor"
	"fic-gradebot/internal/notify"
	"fic-gradebot/internal/sources"
	"fic-gradebot/internal/store"
	"fic-gradebot/lib/configutil"
	configlibsql "fic-gradebot/lib/configutil/libsql"
)

type PortalsConfig struct {
	FicBaseUrl    string `json:"fic_base_url" envconfig:"FIC_BASE_URL"`
	MoodleBaseUrl string `json:"moodle_base_url" envconfig:"MOODLE_BASE_URL"`
	SsoBaseUrl    string `json:"sso_base_url" envconfig:"SSO_BASE_URL"`
	// EmptyGrade replaces blank grade cells.
	EmptyGrade string `json:"empty_grade" envconfig:"EMPTY_GRADE"`
}

type TelegramConfig struct {
	ApiUrl string `json:"api_url" envconfig:"TELEGRAM_API_URL"`
	Token  string `json:"token" envconfig:"BOT_TOKEN"`
}

type Config struct {
	Database configlibsql.Struct `json:"database"`

	// KeychainKey is the base64 secretbox key sealing portal logins.
	KeychainKey string            `json:"keychain_key" envconfig:"KEYCHAIN_KEY"`
	Portals     PortalsConfig     `json:"portals"`
	Telegram    TelegramConfig    `json:"telegram"`
	Smtp        notify.SmtpConfig `json:"smtp"`

	// EmailRecipients maps user ids to the address their messages are
	// mirrored to.
	EmailRecipients map[string]string `json:"email_recipients" envconfig:"EMAIL_RECIPIENTS"`

	CheckIntervalSec          int `json:"check_interval_sec" envconfig:"CHECK_INTERVAL_SEC"`
	MoodleCheckIntervalSec    int `json:"moodle_check_interval_sec" envconfig:"MOODLE_CHECK_INTERVAL_SEC"`
	NotifDurationDays         int `json:"notif_duration_days" envconfig:"NOTIF_DURATION_DAYS"`
	NotifWarnBeforeDays       int `json:"notif_warn_before_days" envconfig:"NOTIF_WARN_BEFORE_DAYS"`
	MoodleNotifDurationDays   int `json:"moodle_notif_duration_days" envconfig:"MOODLE_NOTIF_DURATION_DAYS"`
	MoodleNotifMaxDays        int `json:"moodle_notif_max_days" envconfig:"MOODLE_NOTIF_MAX_DAYS"`
	MoodleNotifWarnBeforeDays int `json:"moodle_notif_warn_before_days" envconfig:"MOODLE_NOTIF_WARN_BEFORE_DAYS"`
	MoodleActiveTerms         int `json:"moodle_active_terms" envconfig:"MOODLE_ACTIVE_TERMS"`
}

const day = 24 * time.Hour

func (c *Config) setDefaults() {
	if c.Database.File == "" && c.Database.Url == "" {
		c.Database.File = "gradebot.db"
	}
	if c.Portals.FicBaseUrl == "" {
		c.Portals.FicBaseUrl = "https://learning.fraseric.ca"
	}
	if c.Portals.MoodleBaseUrl == "" {
		c.Portals.MoodleBaseUrl = "https://moodle.fraseric.ca"
	}
	if c.Telegram.ApiUrl == "" {
		c.Telegram.ApiUrl = "https://api.telegram.org"
	}
	if c.CheckIntervalSec <= 0 {
		c.CheckIntervalSec = 600
	}
	if c.MoodleCheckIntervalSec <= 0 {
		c.MoodleCheckIntervalSec = c.CheckIntervalSec
	}
	if c.NotifDurationDays <= 0 {
		c.NotifDurationDays = 14
	}
	if c.NotifWarnBeforeDays <= 0 {
		c.NotifWarnBeforeDays = 1
	}
	if c.MoodleNotifDurationDays <= 0 {
		c.MoodleNotifDurationDays = 60
	}
	if c.MoodleNotifMaxDays <= 0 {
		c.MoodleNotifMaxDays = c.MoodleNotifDurationDays
	}
	if c.MoodleNotifWarnBeforeDays <= 0 {
		c.MoodleNotifWarnBeforeDays = 1
	}
	if c.MoodleActiveTerms <= 0 {
		c.MoodleActiveTerms = 1
	}
}

func (c Config) Leases() store.Leases {
	return store.Leases{
		Fic:    time.Duration(c.NotifDurationDays) * day,
		Moodle: time.Duration(min(c.MoodleNotifDurationDays, c.MoodleNotifMaxDays)) * day,
	}
}

func (c Config) MonitorOptions() monitor.Options {
	return monitor.Options{
		FicInterval:    time.Duration(c.CheckIntervalSec) * time.Second,
		MoodleInterval: time.Duration(c.MoodleCheckIntervalSec) * time.Second,
		FicWarn:        time.Duration(c.NotifWarnBeforeDays) * day,
		MoodleWarn:     time.Duration(c.MoodleNotifWarnBeforeDays) * day,
	}
}

func (c Config) SourceFactory(clock chrono.TimeAPI, tel telemetry.API) sources.Factory {
	return sources.Factory{
		FicBaseUrl:    c.Portals.FicBaseUrl,
		MoodleBaseUrl: c.Portals.MoodleBaseUrl,
		SsoBaseUrl:    c.Portals.SsoBaseUrl,
		EmptyGrade:    c.Portals.EmptyGrade,
		ActiveTerms:   c.MoodleActiveTerms,
		Time:          clock,
		Tel:           tel,
	}
}

func (c Config) recipients() (map[int64]string, error) {
	out := make(map[int64]string, len(c.EmailRecipients))
	for key, address := range c.EmailRecipients {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("email recipient %q: %w", key, err)
		}
		out[id] = address
	}
	return out, nil
}

// Notifier sends through every configured transport, it only logs when
// none is configured.
func (c Config) Notifier(tel telemetry.API) (notify.Notifier, error) {
	var out notify.Multi
	if c.Telegram.Token != "" {
		out = append(out, notify.NewTelegram(c.Telegram.ApiUrl, c.Telegram.Token, tel))
	}
	if c.Smtp.Server != "" {
		recipients, err := c.recipients()
		if err != nil {
			return nil, err
		}
		out = append(out, notify.NewEmail(c.Smtp, recipients, tel))
	}
	if len(out) == 0 {
		return notify.NewLog(tel), nil
	}
	return out, nil
}

// loadConfig reads the config file, then .env, then GRADEBOT_* variables.
func loadConfig() (Config, error) {
	cfg, err := configutil.Load[Config](configPath, "GRADEBOT", ".env")
	if err != nil {
		return Config{}, err
	}
	cfg.setDefaults()
	return cfg, nil
}

type app struct {
	cfg   Config
	conn  *sql.DB
	store store.Store
	time  chrono.TimeAPI
	tel   telemetry.API
}

func openApp(ctx context.Context) (app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return app{}, fmt.Errorf("read config: %w", err)
	}
	keys, err := keychain.New(cfg.KeychainKey)
	if err != nil {
		return app{}, fmt.Errorf("keychain: %w", err)
	}
	conn, err := cfg.Database.OpenDB(ctx, db.Schema)
	if err != nil {
		return app{}, fmt.Errorf("open db: %w", err)
	}

	clock := chrono.NewStandardTime()
	tel := telemetry.SlogAPI{}
	return app{
		cfg:   cfg,
		conn:  conn,
		store: store.NewStore(conn, keys, cfg.Leases(), clock, tel),
		time:  clock,
		tel:   tel,
	}, nil
}

func (a app) Close() error {
	return a.conn.Close()
}
