// Package watcher implements the periodic Watcher (C7): sync target
// dialogs on a fixed cadence, scan newly synced messages for keywords, and
// alert to the account's own Saved Messages dialog. The loop measures each
// cycle's duration and sleeps only the remainder of the period; a cycle
// that overruns its period is followed immediately by the next one, with
// no catch-up of skipped cycles and no cycles running in parallel.
package watcher

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Berektassuly/tg-sync/internal/domain"
	"github.com/Berektassuly/tg-sync/internal/syncsvc"
)

// Keywords matched case-insensitively against new message text.
var Keywords = []string{"Urgent", "Bug", "Error", "Production"}

const maxAlertLen = 200

// Watcher periodically syncs a fixed set of dialogs and raises keyword
// alerts for newly arrived text.
type Watcher struct {
	gateway  domain.ChatGateway
	msgStore domain.MessageStore
	sync     *syncsvc.Service
	cycle    time.Duration
	keywords []string
}

func New(gateway domain.ChatGateway, msgStore domain.MessageStore, sync *syncsvc.Service, cycle time.Duration, keywords []string) *Watcher {
	if len(keywords) == 0 {
		keywords = Keywords
	}
	return &Watcher{
		gateway:  gateway,
		msgStore: msgStore,
		sync:     sync,
		cycle:    cycle,
		keywords: keywords,
	}
}

// Run loops until ctx is cancelled: sync every dialog in targetIDs
// (text-only), scan what was newly persisted, alert on keyword matches,
// then sleep for whatever remains of the cycle period. A cycle that runs
// longer than the period starts its next pass immediately rather than
// catching up on skipped cycles.
func (w *Watcher) Run(ctx context.Context, targetIDs []int64) error {
	log.Printf("[*] watcher started: %d target dialog(s), cycle=%v", len(targetIDs), w.cycle)

	for {
		start := time.Now()

		if len(targetIDs) == 0 {
			log.Println("[*] watcher: no target dialogs; sleeping until next cycle")
		} else {
			for _, dialogID := range targetIDs {
				if err := w.syncAndNotify(ctx, dialogID); err != nil {
					log.Printf("[!] watcher: dialog=%d sync/notify failed: %v", dialogID, err)
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
		}

		elapsed := time.Since(start)
		remaining := w.cycle - elapsed
		if remaining < 0 {
			remaining = 0
		}
		log.Printf("[*] watcher: cycle complete in %v, sleeping %v", elapsed, remaining)

		select {
		case <-time.After(remaining):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) syncAndNotify(ctx context.Context, dialogID int64) error {
	stats, err := w.sync.SyncDialog(ctx, dialogID, 100, false)
	if err != nil {
		return err
	}
	if stats.MessagesSynced == 0 {
		return nil
	}

	dialogs, err := w.gateway.ListDialogs(ctx)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%d", dialogID)
	for _, d := range dialogs {
		if d.ID == dialogID {
			title = d.Title
			break
		}
	}

	messages, err := w.msgStore.ReadMessages(ctx, dialogID, 0, 0)
	if err != nil {
		return err
	}
	if stats.MessagesSynced < len(messages) {
		messages = messages[len(messages)-stats.MessagesSynced:]
	}

	for _, m := range messages {
		keyword, ok := findKeyword(m.Text, w.keywords)
		if !ok {
			continue
		}
		alert := fmt.Sprintf("[ALERT] Keyword '%s' found in chat '%s': %s", keyword, title, truncate(m.Text))
		if err := w.gateway.SendSelfMessage(ctx, alert); err != nil {
			log.Printf("[!] watcher: dialog=%d failed to send alert: %v", dialogID, err)
			continue
		}
		log.Printf("[*] watcher: dialog=%d alert sent keyword=%q", dialogID, keyword)
	}
	return nil
}

func findKeyword(text string, keywords []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return k, true
		}
	}
	return "", false
}

func truncate(text string) string {
	t := strings.TrimSpace(text)
	r := []rune(t)
	if len(r) <= maxAlertLen {
		return t
	}
	return string(r[:maxAlertLen]) + "..."
}
