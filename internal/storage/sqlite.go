package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"chimed/internal/domain"

	"github.com/mattn/go-sqlite3"
)

// Storage is the canonical store for alarms and countdown timers. Every
// successful mutation re-reads the affected collection and broadcasts it to
// observers, so consumers always converge on persisted state.
type Storage struct {
	db       *sql.DB
	alarmHub *hub[[]*domain.ScheduledAlarm]
	timerHub *hub[[]*domain.Countdown]
}

func New(dbPath string) (*Storage, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: serializes writers and keeps PRAGMA data_version stable
	// for our own commits, so Watch only reacts to other processes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", storeErr(err))
	}

	s := &Storage{
		db:       db,
		alarmHub: newHub[[]*domain.ScheduledAlarm](),
		timerHub: newHub[[]*domain.Countdown](),
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	s.alarmHub.closeAll()
	s.timerHub.closeAll()
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS alarms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL DEFAULT '',
			hour INTEGER NOT NULL,
			minute INTEGER NOT NULL,
			is_daily INTEGER NOT NULL DEFAULT 0,
			repeat_days TEXT NOT NULL DEFAULT '',
			enabled INTEGER NOT NULL DEFAULT 1,
			sound TEXT NOT NULL DEFAULT '',
			vibrate INTEGER NOT NULL DEFAULT 0,
			volume INTEGER NOT NULL DEFAULT 100,
			snooze_enabled INTEGER NOT NULL DEFAULT 1,
			snooze_limit INTEGER NOT NULL DEFAULT 3,
			snooze_remaining INTEGER NOT NULL DEFAULT 3,
			snooze_interval INTEGER NOT NULL DEFAULT 10,
			state TEXT NOT NULL DEFAULT 'upcoming',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS timers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL DEFAULT '',
			target_ms INTEGER NOT NULL,
			remaining_ms INTEGER NOT NULL,
			started_at DATETIME,
			is_running INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL DEFAULT 'idle',
			snoozed_target DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alarms_state ON alarms(state)`,
		`CREATE INDEX IF NOT EXISTS idx_timers_running ON timers(is_running)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", storeErr(err))
			}
		}
	}
	return nil
}

// storeErr maps driver failures onto the shared error taxonomy.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", domain.ErrStoreBusy, err)
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return fmt.Errorf("%w: %v", domain.ErrStoreCorrupted, err)
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%w: %v", domain.ErrConstraint, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
	}
	return err
}

// === Alarms ===

const alarmColumns = `id, label, hour, minute, is_daily, repeat_days, enabled, sound, vibrate, volume,
	snooze_enabled, snooze_limit, snooze_remaining, snooze_interval, state, created_at`

// SaveAlarm inserts a new alarm and assigns its id. Alarms that already carry
// an id must go through UpdateAlarm instead.
func (s *Storage) SaveAlarm(a *domain.ScheduledAlarm) error {
	if a.ID != 0 {
		return fmt.Errorf("save alarm: id %d already assigned: %w", a.ID, domain.ErrConstraint)
	}
	res, err := s.db.Exec(
		`INSERT INTO alarms (label, hour, minute, is_daily, repeat_days, enabled, sound, vibrate, volume,
			snooze_enabled, snooze_limit, snooze_remaining, snooze_interval, state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Label, a.Hour, a.Minute, a.IsDaily, encodeDays(a.RepeatDays), a.Enabled, a.Sound, a.Vibrate, a.Volume,
		a.Snooze.Enabled, a.Snooze.Limit, a.Snooze.Remaining, a.Snooze.IntervalMinutes, a.State,
	)
	if err != nil {
		return storeErr(err)
	}
	id, _ := res.LastInsertId()
	a.ID = id
	a.CreatedAt = time.Now()
	s.emitAlarms()
	return nil
}

// UpdateAlarm rewrites a persisted alarm. Unsaved alarms (id 0) are rejected.
func (s *Storage) UpdateAlarm(a *domain.ScheduledAlarm) error {
	if a.ID == 0 {
		return fmt.Errorf("update alarm: missing id: %w", domain.ErrConstraint)
	}
	res, err := s.db.Exec(
		`UPDATE alarms SET label = ?, hour = ?, minute = ?, is_daily = ?, repeat_days = ?, enabled = ?,
			sound = ?, vibrate = ?, volume = ?, snooze_enabled = ?, snooze_limit = ?, snooze_remaining = ?,
			snooze_interval = ?, state = ? WHERE id = ?`,
		a.Label, a.Hour, a.Minute, a.IsDaily, encodeDays(a.RepeatDays), a.Enabled,
		a.Sound, a.Vibrate, a.Volume, a.Snooze.Enabled, a.Snooze.Limit, a.Snooze.Remaining,
		a.Snooze.IntervalMinutes, a.State, a.ID,
	)
	if err != nil {
		return storeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update alarm %d: %w", a.ID, domain.ErrNotFound)
	}
	s.emitAlarms()
	return nil
}

func (s *Storage) GetAlarmByID(id int64) (*domain.ScheduledAlarm, error) {
	row := s.db.QueryRow(`SELECT `+alarmColumns+` FROM alarms WHERE id = ?`, id)
	a, err := scanAlarm(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alarm %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return a, nil
}

func (s *Storage) ListAlarms() ([]*domain.ScheduledAlarm, error) {
	rows, err := s.db.Query(`SELECT ` + alarmColumns + ` FROM alarms ORDER BY id`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var alarms []*domain.ScheduledAlarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		alarms = append(alarms, a)
	}
	return alarms, rows.Err()
}

func (s *Storage) DeleteAlarm(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM alarms WHERE id = ?`, id); err != nil {
		return storeErr(err)
	}
	s.emitAlarms()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlarm(row rowScanner) (*domain.ScheduledAlarm, error) {
	a := &domain.ScheduledAlarm{}
	var days string
	err := row.Scan(&a.ID, &a.Label, &a.Hour, &a.Minute, &a.IsDaily, &days, &a.Enabled,
		&a.Sound, &a.Vibrate, &a.Volume, &a.Snooze.Enabled, &a.Snooze.Limit,
		&a.Snooze.Remaining, &a.Snooze.IntervalMinutes, &a.State, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.RepeatDays = decodeDays(days)
	return a, nil
}

func encodeDays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func decodeDays(enc string) []time.Weekday {
	if enc == "" {
		return nil
	}
	var days []time.Weekday
	for _, p := range strings.Split(enc, ",") {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

// === Timers ===

const timerColumns = `id, label, target_ms, remaining_ms, started_at, is_running, state, snoozed_target, created_at`

func (s *Storage) SaveTimer(c *domain.Countdown) error {
	if c.ID != 0 {
		return fmt.Errorf("save timer: id %d already assigned: %w", c.ID, domain.ErrConstraint)
	}
	res, err := s.db.Exec(
		`INSERT INTO timers (label, target_ms, remaining_ms, started_at, is_running, state, snoozed_target)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Label, c.TargetDuration.Milliseconds(), c.Remaining.Milliseconds(),
		nullTime(c.StartedAt), c.IsRunning, c.State, c.SnoozedTarget,
	)
	if err != nil {
		return storeErr(err)
	}
	id, _ := res.LastInsertId()
	c.ID = id
	c.CreatedAt = time.Now()
	s.emitTimers()
	return nil
}

func (s *Storage) UpdateTimer(c *domain.Countdown) error {
	if c.ID == 0 {
		return fmt.Errorf("update timer: missing id: %w", domain.ErrConstraint)
	}
	res, err := s.db.Exec(
		`UPDATE timers SET label = ?, target_ms = ?, remaining_ms = ?, started_at = ?, is_running = ?,
			state = ?, snoozed_target = ? WHERE id = ?`,
		c.Label, c.TargetDuration.Milliseconds(), c.Remaining.Milliseconds(),
		nullTime(c.StartedAt), c.IsRunning, c.State, c.SnoozedTarget, c.ID,
	)
	if err != nil {
		return storeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update timer %d: %w", c.ID, domain.ErrNotFound)
	}
	s.emitTimers()
	return nil
}

func (s *Storage) GetTimerByID(id int64) (*domain.Countdown, error) {
	row := s.db.QueryRow(`SELECT `+timerColumns+` FROM timers WHERE id = ?`, id)
	c, err := scanTimer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("timer %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return c, nil
}

// GetTimerSnapshot is the point read of all timers, ordered by id.
func (s *Storage) GetTimerSnapshot() ([]*domain.Countdown, error) {
	rows, err := s.db.Query(`SELECT ` + timerColumns + ` FROM timers ORDER BY id`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var timers []*domain.Countdown
	for rows.Next() {
		c, err := scanTimer(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		timers = append(timers, c)
	}
	return timers, rows.Err()
}

func (s *Storage) DeleteTimer(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM timers WHERE id = ?`, id); err != nil {
		return storeErr(err)
	}
	s.emitTimers()
	return nil
}

func scanTimer(row rowScanner) (*domain.Countdown, error) {
	c := &domain.Countdown{}
	var targetMs, remainingMs int64
	var started, snoozed sql.NullTime
	err := row.Scan(&c.ID, &c.Label, &targetMs, &remainingMs, &started,
		&c.IsRunning, &c.State, &snoozed, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.TargetDuration = time.Duration(targetMs) * time.Millisecond
	c.Remaining = time.Duration(remainingMs) * time.Millisecond
	if started.Valid {
		c.StartedAt = started.Time
	}
	if snoozed.Valid {
		t := snoozed.Time
		c.SnoozedTarget = &t
	}
	return c, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
