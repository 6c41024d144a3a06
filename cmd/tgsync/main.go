// Command tgsync archives a single Telegram account's dialogs to a local
// SQLite store with media, tracks edit history, and can run as a
// keyword-alerting watcher.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Berektassuly/tg-sync/internal/adapter/telegram"
	"github.com/Berektassuly/tg-sync/internal/adapter/ui"
	"github.com/Berektassuly/tg-sync/internal/checkpoint"
	"github.com/Berektassuly/tg-sync/internal/config"
	"github.com/Berektassuly/tg-sync/internal/domain"
	"github.com/Berektassuly/tg-sync/internal/media"
	"github.com/Berektassuly/tg-sync/internal/ratelimit"
	"github.com/Berektassuly/tg-sync/internal/registry"
	"github.com/Berektassuly/tg-sync/internal/store"
	"github.com/Berektassuly/tg-sync/internal/syncsvc"
	"github.com/Berektassuly/tg-sync/internal/watcher"
)

// These variables are set by the linker during build:
// -ldflags "-X main.AppID=12345 -X main.AppHash=abcdef..."
var (
	AppID   string
	AppHash string
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type engine struct {
	cfg        *config.CLIConfig
	gateway    *telegram.Client
	msgStore   *store.SQLiteStore
	checkpoint *checkpoint.Store
	registry   *registry.Registry
	pipeline   *media.Pipeline
	limiter    *ratelimit.Controller
	sync       *syncsvc.Service
}

func run() error {
	cfg, err := config.ParseCLI(AppID, AppHash)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.msgStore.Close()

	switch cfg.Command {
	case "backup":
		return eng.runBackup(ctx)
	case "watch":
		return eng.runWatch(ctx)
	case "list":
		return eng.runList(ctx)
	case "blacklist":
		return eng.runBlacklist(ctx)
	default:
		return fmt.Errorf("unknown command: %s", cfg.Command)
	}
}

func setup(ctx context.Context, cfg *config.CLIConfig) (*engine, error) {
	log.Printf("[*] data dir: %s", cfg.DataDir)

	reg, err := registry.Load(cfg.RegistryPath())
	if err != nil {
		return nil, fmt.Errorf("load entity registry: %w", err)
	}

	gateway, err := telegram.New(cfg.AppID, cfg.AppHash, cfg.SessionPath, reg)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	console := ui.NewConsoleUI(cfg.NonInteractive)
	log.Println("[*] connecting to telegram...")
	if err := gateway.Start(ctx, console); err != nil {
		return nil, fmt.Errorf("start telegram client: %w", err)
	}
	log.Println("[*] connected")

	msgStore, err := store.Open(cfg.MessageDBPath())
	if err != nil {
		return nil, fmt.Errorf("open message store: %w", err)
	}

	cp, err := checkpoint.Load(cfg.CheckpointPath())
	if err != nil {
		msgStore.Close()
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	limiter := ratelimit.New()
	pipeline := media.New(gateway, limiter, cfg.MediaDir(), cfg.MediaQueueSize, cfg.MediaParallelism)

	syncDelay := msToDuration(cfg.SyncDelay)
	syncSvc := syncsvc.New(gateway, msgStore, cp, pipeline, limiter, syncDelay)

	return &engine{
		cfg:        cfg,
		gateway:    gateway,
		msgStore:   msgStore,
		checkpoint: cp,
		registry:   reg,
		pipeline:   pipeline,
		limiter:    limiter,
		sync:       syncSvc,
	}, nil
}

// runBackup runs one full pass over every non-blacklisted dialog,
// downloading media, then closes the pipeline and waits for in-flight
// downloads to finish.
func (e *engine) runBackup(ctx context.Context) error {
	dialogs, err := e.gateway.ListDialogs(ctx)
	if err != nil {
		return fmt.Errorf("list dialogs: %w", err)
	}

	blacklist, err := e.msgStore.ListBlacklist(ctx)
	if err != nil {
		return fmt.Errorf("load blacklist: %w", err)
	}

	console := ui.NewConsoleUI(e.cfg.NonInteractive)
	var active []domain.Dialog
	for _, d := range dialogs {
		if blacklist[d.ID] {
			continue
		}
		if err := e.msgStore.UpsertDialog(ctx, d); err != nil {
			return fmt.Errorf("upsert dialog %d: %w", d.ID, err)
		}
		active = append(active, d)
	}
	bar := console.ProgressBar(len(active))

	pipelineErrCh := make(chan error, 1)
	go func() { pipelineErrCh <- e.pipeline.Run(ctx) }()

	exportDelay := msToDuration(e.cfg.ExportDelay)
	for _, d := range active {
		stats, err := e.sync.SyncDialog(ctx, d.ID, 100, true)
		if err != nil {
			log.Printf("[!] dialog=%d sync failed: %v", d.ID, err)
		} else {
			log.Printf("[*] dialog=%d %q: %d messages, %d media queued", d.ID, d.Title, stats.MessagesSynced, stats.MediaQueued)
		}
		bar.Increment()

		select {
		case <-time.After(exportDelay):
		case <-ctx.Done():
			e.pipeline.Close()
			return ctx.Err()
		}
	}
	bar.Wait()

	e.pipeline.Close()
	return <-pipelineErrCh
}

func (e *engine) runWatch(ctx context.Context) error {
	dialogs, err := e.gateway.ListDialogs(ctx)
	if err != nil {
		return fmt.Errorf("list dialogs: %w", err)
	}
	blacklist, err := e.msgStore.ListBlacklist(ctx)
	if err != nil {
		return fmt.Errorf("load blacklist: %w", err)
	}

	var targets []int64
	for _, d := range dialogs {
		if !blacklist[d.ID] {
			targets = append(targets, d.ID)
		}
	}

	pipelineErrCh := make(chan error, 1)
	go func() { pipelineErrCh <- e.pipeline.Run(ctx) }()

	w := watcher.New(e.gateway, e.msgStore, e.sync, cycleDuration(e.cfg.WatcherCycleSecs), e.cfg.WatcherKeywords)
	err = w.Run(ctx, targets)
	e.pipeline.Close()
	<-pipelineErrCh
	return err
}

func (e *engine) runList(ctx context.Context) error {
	dialogs, err := e.gateway.ListDialogs(ctx)
	if err != nil {
		return fmt.Errorf("list dialogs: %w", err)
	}
	blacklist, err := e.msgStore.ListBlacklist(ctx)
	if err != nil {
		return fmt.Errorf("load blacklist: %w", err)
	}
	for _, d := range dialogs {
		mark := " "
		if blacklist[d.ID] {
			mark = "*"
		}
		fmt.Printf("%s %-20d %-12s %s\n", mark, d.ID, d.Kind, d.Title)
	}
	return nil
}

func (e *engine) runBlacklist(ctx context.Context) error {
	dialogID := e.cfg.DialogID
	if dialogID == 0 {
		dialogs, err := e.gateway.ListDialogs(ctx)
		if err != nil {
			return fmt.Errorf("list dialogs: %w", err)
		}
		console := ui.NewConsoleUI(e.cfg.NonInteractive)
		picked, err := console.SelectDialog(dialogs)
		if err != nil {
			return fmt.Errorf("select dialog: %w", err)
		}
		dialogID = picked.ID
	}

	if err := e.msgStore.SetBlacklist(ctx, dialogID, e.cfg.Blacklisted); err != nil {
		return fmt.Errorf("set blacklist: %w", err)
	}
	log.Printf("[*] dialog=%d blacklisted=%v", dialogID, e.cfg.Blacklisted)
	return nil
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func cycleDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}
