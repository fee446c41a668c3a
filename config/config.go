package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabasePath string
	Timezone     *time.Location
	SoundDir     string
	ExportPath   string

	TickInterval time.Duration
	RingTimeout  time.Duration

	SnoozeLimit    int
	SnoozeInterval int

	Notifier       string
	TelegramToken  string
	TelegramChatID int64

	NotificationsGranted   bool
	ExactSchedulingGranted bool
}

func Load() (*Config, error) {
	dbPath := os.Getenv("CHIMED_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/chimed.db"
	}

	tzName := os.Getenv("CHIMED_TIMEZONE")
	if tzName == "" {
		tzName = "Local"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid CHIMED_TIMEZONE: %w", err)
	}

	soundDir := os.Getenv("CHIMED_SOUND_DIR")
	if soundDir == "" {
		soundDir = "./sounds"
	}

	exportPath := os.Getenv("CHIMED_EXPORT_PATH")
	if exportPath == "" {
		exportPath = "./alarms.ics"
	}

	tickInterval := time.Second
	if v := os.Getenv("CHIMED_TICK_INTERVAL"); v != "" {
		tickInterval, err = time.ParseDuration(v)
		if err != nil || tickInterval <= 0 {
			return nil, fmt.Errorf("invalid CHIMED_TICK_INTERVAL: %q", v)
		}
	}

	ringTimeout := 5 * time.Minute
	if v := os.Getenv("CHIMED_RING_TIMEOUT"); v != "" {
		ringTimeout, err = time.ParseDuration(v)
		if err != nil || ringTimeout <= 0 {
			return nil, fmt.Errorf("invalid CHIMED_RING_TIMEOUT: %q", v)
		}
	}

	snoozeLimit := 3
	if v := os.Getenv("CHIMED_SNOOZE_LIMIT"); v != "" {
		snoozeLimit, err = strconv.Atoi(v)
		if err != nil || snoozeLimit < 0 {
			return nil, fmt.Errorf("invalid CHIMED_SNOOZE_LIMIT: %q", v)
		}
	}

	snoozeInterval := 10
	if v := os.Getenv("CHIMED_SNOOZE_INTERVAL_MINUTES"); v != "" {
		snoozeInterval, err = strconv.Atoi(v)
		if err != nil || snoozeInterval <= 0 {
			return nil, fmt.Errorf("invalid CHIMED_SNOOZE_INTERVAL_MINUTES: %q", v)
		}
	}

	notifier := os.Getenv("CHIMED_NOTIFIER")
	if notifier == "" {
		notifier = "desktop"
	}
	switch notifier {
	case "desktop", "telegram", "log":
	default:
		return nil, fmt.Errorf("invalid CHIMED_NOTIFIER: %q (want desktop, telegram or log)", notifier)
	}

	var token string
	var chatID int64
	if notifier == "telegram" {
		token = os.Getenv("CHIMED_TELEGRAM_TOKEN")
		if token == "" {
			return nil, fmt.Errorf("CHIMED_TELEGRAM_TOKEN is required for the telegram notifier")
		}
		chatID, err = strconv.ParseInt(os.Getenv("CHIMED_TELEGRAM_CHAT_ID"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("CHIMED_TELEGRAM_CHAT_ID is required and must be a number")
		}
	}

	return &Config{
		DatabasePath:           dbPath,
		Timezone:               tz,
		SoundDir:               soundDir,
		ExportPath:             exportPath,
		TickInterval:           tickInterval,
		RingTimeout:            ringTimeout,
		SnoozeLimit:            snoozeLimit,
		SnoozeInterval:         snoozeInterval,
		Notifier:               notifier,
		TelegramToken:          token,
		TelegramChatID:         chatID,
		NotificationsGranted:   boolEnv("CHIMED_NOTIFICATIONS_GRANTED", true),
		ExactSchedulingGranted: boolEnv("CHIMED_EXACT_SCHEDULING_GRANTED", true),
	}, nil
}

func boolEnv(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
