package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli"

	"chimed/config"
	"chimed/internal/domain"
	"chimed/internal/export"
	"chimed/internal/service"
	"chimed/internal/storage"
	"chimed/internal/trigger"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func main() {
	app := cli.App{
		Name:      "chimectl",
		Usage:     "manage chimed alarms and countdown timers",
		UsageText: "chimectl <command> [arguments...]",
		Commands: []cli.Command{
			{
				Name:  "alarm",
				Usage: "manage alarms",
				Subcommands: []cli.Command{
					{
						Name:      "add",
						Usage:     "create an alarm",
						UsageText: "chimectl alarm add --at HH:MM [options]",
						Flags: []cli.Flag{
							cli.StringFlag{Name: "at", Usage: "time of day, HH:MM"},
							cli.StringFlag{Name: "label, l"},
							cli.StringFlag{Name: "days", Usage: "comma-separated weekdays (mon,tue,...)"},
							cli.BoolFlag{Name: "daily", Usage: "repeat every day"},
							cli.StringFlag{Name: "sound", Value: "classic.wav"},
							cli.IntFlag{Name: "volume", Value: 80},
							cli.BoolFlag{Name: "vibrate"},
							cli.IntFlag{Name: "snooze-limit", Value: -1, Usage: "snoozes per ring cycle (-1 for the configured default)"},
							cli.IntFlag{Name: "snooze-interval", Value: -1, Usage: "minutes between snoozes (-1 for the configured default)"},
						},
						Action: alarmAdd,
					},
					{Name: "list", Usage: "list alarms", Action: alarmList},
					{Name: "enable", Usage: "enable an alarm", ArgsUsage: "<id>", Action: alarmSetEnabled(true)},
					{Name: "disable", Usage: "disable an alarm", ArgsUsage: "<id>", Action: alarmSetEnabled(false)},
					{Name: "snooze", Usage: "snooze a ringing alarm", ArgsUsage: "<id>", Action: alarmSnooze},
					{
						Name:      "stop",
						Usage:     "dismiss a ringing alarm",
						ArgsUsage: "<id>",
						Flags: []cli.Flag{
							cli.BoolFlag{Name: "disable", Usage: "also switch the alarm off"},
						},
						Action: alarmStop,
					},
					{Name: "rm", Usage: "delete an alarm", ArgsUsage: "<id>", Action: alarmDelete},
				},
			},
			{
				Name:  "timer",
				Usage: "manage countdown timers",
				Subcommands: []cli.Command{
					{
						Name:      "add",
						Usage:     "create a timer",
						UsageText: "chimectl timer add --for DURATION [--label LABEL] [--start]",
						Flags: []cli.Flag{
							cli.StringFlag{Name: "for", Usage: "target duration, e.g. 10m or 1h30m"},
							cli.StringFlag{Name: "label, l"},
							cli.BoolFlag{Name: "start", Usage: "start counting immediately"},
						},
						Action: timerAdd,
					},
					{Name: "list", Usage: "list timers", Action: timerList},
					{Name: "start", ArgsUsage: "<id>", Action: timerOp((*service.TimerService).Start)},
					{Name: "pause", ArgsUsage: "<id>", Action: timerOp((*service.TimerService).Pause)},
					{Name: "resume", ArgsUsage: "<id>", Action: timerOp((*service.TimerService).Resume)},
					{Name: "stop", ArgsUsage: "<id>", Action: timerOp((*service.TimerService).Stop)},
					{
						Name:      "snooze",
						Usage:     "restart a completed timer for a grace window",
						ArgsUsage: "<id>",
						Flags: []cli.Flag{
							cli.StringFlag{Name: "for", Value: "5m"},
						},
						Action: timerSnooze,
					},
					{Name: "rm", ArgsUsage: "<id>", Action: timerOp((*service.TimerService).Delete)},
				},
			},
			{
				Name:      "export",
				Usage:     "write the alarm schedule as an iCalendar file",
				UsageText: "chimectl export [path]",
				Action:    exportSchedule,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Printf("chimectl: %s\n", err.Error())
		os.Exit(1)
	}
}

func openStore() (*storage.Storage, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func argID(ctx *cli.Context) (int64, error) {
	arg := ctx.Args().First()
	if arg == "" {
		return 0, fmt.Errorf("missing id argument")
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func parseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return t.Hour(), t.Minute(), nil
}

func parseDays(s string) ([]time.Weekday, error) {
	if s == "" {
		return nil, nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(part))]
		if !ok {
			return nil, fmt.Errorf("invalid weekday %q", part)
		}
		days = append(days, d)
	}
	return days, nil
}

func alarmAdd(ctx *cli.Context) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	hour, minute, err := parseTimeOfDay(ctx.String("at"))
	if err != nil {
		return err
	}
	days, err := parseDays(ctx.String("days"))
	if err != nil {
		return err
	}

	limit := ctx.Int("snooze-limit")
	if limit < 0 {
		limit = cfg.SnoozeLimit
	}
	interval := ctx.Int("snooze-interval")
	if interval < 0 {
		interval = cfg.SnoozeInterval
	}

	a := &domain.ScheduledAlarm{
		Label:      ctx.String("label"),
		Hour:       hour,
		Minute:     minute,
		IsDaily:    ctx.Bool("daily"),
		RepeatDays: days,
		Enabled:    true,
		Sound:      ctx.String("sound"),
		Vibrate:    ctx.Bool("vibrate"),
		Volume:     ctx.Int("volume"),
		Snooze: domain.SnoozeConfig{
			Enabled:         limit > 0,
			Limit:           limit,
			IntervalMinutes: interval,
		},
	}
	if err := service.NewAlarmService(store).Create(a); err != nil {
		return err
	}
	fmt.Printf("alarm %d created, next trigger %s\n", a.ID,
		trigger.NextAlarmTrigger(a.Hour, a.Minute, a.RepeatDays, time.Now().In(cfg.Timezone)).Format(time.RFC1123))
	return nil
}

func alarmList(ctx *cli.Context) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	alarms, err := service.NewAlarmService(store).List()
	if err != nil {
		return err
	}
	if len(alarms) == 0 {
		fmt.Println("no alarms")
		return nil
	}

	now := time.Now().In(cfg.Timezone)
	for _, a := range alarms {
		status := "off"
		if a.Enabled {
			r := trigger.RemainingUntil(now, trigger.NextAlarmTrigger(a.Hour, a.Minute, a.RepeatDays, now))
			status = fmt.Sprintf("in %dd %dh %dm", r.Days, r.Hours, r.Minutes)
		}
		fmt.Printf("%4d  %s  %-12s %-8s %s\n", a.ID, a.TimeOfDay(), repeatLabel(a), a.State, status)
	}
	return nil
}

func repeatLabel(a *domain.ScheduledAlarm) string {
	if a.IsDaily {
		return "daily"
	}
	if len(a.RepeatDays) == 0 {
		return "once"
	}
	names := make([]string, 0, len(a.RepeatDays))
	for _, d := range a.RepeatDays {
		names = append(names, strings.ToLower(d.String()[:3]))
	}
	return strings.Join(names, ",")
}

func alarmSetEnabled(enabled bool) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := argID(ctx)
		if err != nil {
			return err
		}
		return service.NewAlarmService(store).SetEnabled(id, enabled)
	}
}

func alarmSnooze(ctx *cli.Context) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := argID(ctx)
	if err != nil {
		return err
	}
	return service.NewAlarmService(store).Snooze(id)
}

func alarmStop(ctx *cli.Context) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := argID(ctx)
	if err != nil {
		return err
	}
	return service.NewAlarmService(store).Stop(id, ctx.Bool("disable"))
}

func alarmDelete(ctx *cli.Context) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := argID(ctx)
	if err != nil {
		return err
	}
	return service.NewAlarmService(store).Delete(id)
}

func timerAdd(ctx *cli.Context) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	target, err := time.ParseDuration(ctx.String("for"))
	if err != nil {
		return fmt.Errorf("invalid duration %q", ctx.String("for"))
	}

	svc := service.NewTimerService(store)
	c, err := svc.Create(ctx.String("label"), target)
	if err != nil {
		return err
	}
	if ctx.Bool("start") {
		if err := svc.Start(c.ID); err != nil {
			return err
		}
	}
	fmt.Printf("timer %d created\n", c.ID)
	return nil
}

func timerList(ctx *cli.Context) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	timers, err := service.NewTimerService(store).List()
	if err != nil {
		return err
	}
	if len(timers) == 0 {
		fmt.Println("no timers")
		return nil
	}

	now := time.Now()
	for _, c := range timers {
		remaining := c.Remaining
		if c.IsRunning {
			remaining = c.RemainingAt(now)
		}
		fmt.Printf("%4d  %-10s %-8s target %s, remaining %s\n",
			c.ID, c.Label, c.State, c.TargetDuration, remaining.Round(time.Second))
	}
	return nil
}

func timerOp(op func(*service.TimerService, int64) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := argID(ctx)
		if err != nil {
			return err
		}
		return op(service.NewTimerService(store), id)
	}
}

func timerSnooze(ctx *cli.Context) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := argID(ctx)
	if err != nil {
		return err
	}
	grace, err := time.ParseDuration(ctx.String("for"))
	if err != nil {
		return fmt.Errorf("invalid duration %q", ctx.String("for"))
	}
	return service.NewTimerService(store).Snooze(id, grace)
}

func exportSchedule(ctx *cli.Context) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	path := ctx.Args().First()
	if path == "" {
		path = cfg.ExportPath
	}
	alarms, err := store.ListAlarms()
	if err != nil {
		return err
	}
	if err := export.WriteFile(path, alarms, time.Now().In(cfg.Timezone)); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
