// Package syncsvc implements the Sync Service (C6): per-dialog incremental
// history sync, paging forward from the last checkpoint and filtering the
// gateway's response client-side since its min_id honouring can't be
// trusted on its own.
package syncsvc

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/Berektassuly/tg-sync/internal/domain"
	"github.com/Berektassuly/tg-sync/internal/media"
	"github.com/Berektassuly/tg-sync/internal/ratelimit"
)

const rateScope = "gateway"

// Stats summarizes one dialog's sync pass.
type Stats struct {
	MessagesSynced int
	MediaQueued    int
}

// Service coordinates incremental text sync against one dialog at a time,
// queuing any media onto the shared Media Pipeline.
type Service struct {
	gateway    domain.ChatGateway
	msgStore   domain.MessageStore
	checkpoint domain.CheckpointStore
	pipeline   *media.Pipeline
	limiter    *ratelimit.Controller
	delay      time.Duration
}

func New(gateway domain.ChatGateway, msgStore domain.MessageStore, checkpoint domain.CheckpointStore, pipeline *media.Pipeline, limiter *ratelimit.Controller, delay time.Duration) *Service {
	return &Service{
		gateway:    gateway,
		msgStore:   msgStore,
		checkpoint: checkpoint,
		pipeline:   pipeline,
		limiter:    limiter,
		delay:      delay,
	}
}

// SyncDialog fetches every message with id > the last persisted checkpoint
// for dialogID, in pages of up to limit, advancing minID to each committed
// page's highest id until a page has nothing above minID. includeMedia
// controls whether the dialog's media references are queued for download;
// when false, text is still saved.
func (s *Service) SyncDialog(ctx context.Context, dialogID int64, limit int, includeMedia bool) (Stats, error) {
	minID := s.checkpoint.Get(dialogID)
	currentHead := minID

	var stats Stats

	for {
		if err := s.limiter.Wait(ctx, rateScope); err != nil {
			return stats, err
		}

		var raw []domain.Message
		err := s.limiter.RetryTransport(ctx, func() error {
			var callErr error
			raw, callErr = s.gateway.GetHistory(ctx, dialogID, minID, limit)
			return callErr
		})
		if err != nil {
			if fw, ok := domain.AsFloodWait(err); ok {
				if herr := s.limiter.Handle(ctx, rateScope, fw); herr != nil {
					return stats, herr
				}
				continue
			}
			return stats, fmt.Errorf("syncsvc: get history dialog=%d: %w", dialogID, err)
		}

		// Gateway history calls don't honor min_id reliably; re-filter
		// client-side and stop once a page holds nothing above minID.
		if len(raw) == 0 {
			break
		}

		reachedMin := false
		for _, m := range raw {
			if m.ID <= minID {
				reachedMin = true
			}
		}

		var batch []domain.Message
		for _, m := range raw {
			if m.ID > minID {
				batch = append(batch, m)
			}
		}

		if len(batch) > 0 {
			sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })
			batchMin := batch[0].ID
			batchMax := batch[len(batch)-1].ID

			if err := s.msgStore.SaveMessageBatch(ctx, dialogID, batch); err != nil {
				return stats, fmt.Errorf("syncsvc: save batch dialog=%d: %w", dialogID, err)
			}
			// Checkpoint only after the batch commits, so a crash between
			// persist and checkpoint just re-fetches (and safely
			// re-upserts) the same batch on the next run.
			if err := s.checkpoint.Put(dialogID, batchMax); err != nil {
				return stats, fmt.Errorf("syncsvc: checkpoint dialog=%d: %w", dialogID, err)
			}

			// Media is only enqueued once its message has durably
			// persisted and checkpointed: a download queued for a message
			// that was never committed would leave an orphan file with
			// nothing in the store pointing at it.
			if includeMedia {
				for _, m := range batch {
					if len(m.Media) == 0 {
						continue
					}
					ref := domain.MediaReference{DialogID: dialogID, MessageID: m.ID, Media: m.Media, Extension: m.Extension}
					if err := s.pipeline.Enqueue(ctx, ref); err != nil {
						return stats, fmt.Errorf("syncsvc: enqueue media dialog=%d msg=%d: %w", dialogID, m.ID, err)
					}
					stats.MediaQueued++
				}
			}

			stats.MessagesSynced += len(batch)
			if batchMax > currentHead {
				currentHead = batchMax
			}

			log.Printf("[*] dialog=%d batch saved range=%d..%d checkpoint=%d", dialogID, batchMin, batchMax, batchMax)

			if reachedMin {
				break
			}
			minID = batchMax
		} else {
			break
		}

		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return stats, ctx.Err()
		}
	}

	if stats.MessagesSynced > 0 {
		log.Printf("[*] dialog=%d sync complete messages=%d media_queued=%d last_id=%d", dialogID, stats.MessagesSynced, stats.MediaQueued, currentHead)
	}
	return stats, nil
}

// SyncDialogs runs SyncDialog sequentially over dialogIDs, honoring
// per-dialog FLOOD_WAIT without letting one dialog's rate limit stall the
// rest indefinitely: a long wait aborts only the current dialog's pass.
func (s *Service) SyncDialogs(ctx context.Context, dialogIDs []int64, limitPerChat int, includeMedia bool) error {
	for _, id := range dialogIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.SyncDialog(ctx, id, limitPerChat, includeMedia); err != nil {
			if _, ok := domain.AsFloodWait(err); ok {
				log.Printf("[!] dialog=%d deferred by rate limit: %v", id, err)
				continue
			}
			return err
		}
	}
	return nil
}
