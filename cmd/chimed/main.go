package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chimed/config"
	"chimed/internal/coordinator"
	"chimed/internal/hardware"
	"chimed/internal/notify"
	"chimed/internal/scheduler"
	"chimed/internal/storage"
	"chimed/internal/ticker"
	"chimed/internal/wakeup"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	presenter, err := newPresenter(cfg)
	if err != nil {
		log.Fatalf("Failed to init notifier: %v", err)
	}

	gate := scheduler.StaticGate{
		Notifications:   cfg.NotificationsGranted,
		ExactScheduling: cfg.ExactSchedulingGranted,
	}
	hw := hardware.NewAudioController(cfg.SoundDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The wakeup callback dispatches to the coordinator, which is built after
	// the facility; the closure covers the gap.
	var coord *coordinator.Coordinator
	wake := wakeup.New(ctx, func(e wakeup.Event) { coord.HandleWakeup(e) })
	sched := scheduler.New(wake, gate, store, cfg.Timezone, cfg.RingTimeout)
	coord = coordinator.New(store, sched, hw, presenter, gate, cfg.RingTimeout)
	tick := ticker.New(store, presenter, cfg.TickInterval)

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	// Pick up writes from chimectl, which runs in its own process.
	go func() {
		if err := store.Watch(ctx, cfg.TickInterval); err != nil {
			log.Printf("Store watcher error: %v", err)
		}
	}()

	go func() {
		if err := coord.Start(ctx); err != nil {
			log.Printf("Coordinator error: %v", err)
		}
	}()

	go func() {
		if err := tick.Start(ctx); err != nil {
			log.Printf("Ticker error: %v", err)
		}
	}()

	log.Println("chimed started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	cancel()
	tick.Stop()
	coord.Stop()

	log.Println("chimed stopped")
}

func newPresenter(cfg *config.Config) (notify.Presenter, error) {
	switch cfg.Notifier {
	case "telegram":
		return notify.NewTelegramPresenter(cfg.TelegramToken, cfg.TelegramChatID)
	case "desktop":
		return notify.NewDesktopPresenter()
	default:
		return notify.LogPresenter{}, nil
	}
}
