package media

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Berektassuly/tg-sync/internal/domain"
	"github.com/Berektassuly/tg-sync/internal/pkg/retry"
	"github.com/Berektassuly/tg-sync/internal/ratelimit"
)

const (
	maxRetries  = 3
	baseBackoff = 2 * time.Second
	rateScope   = "media"
)

// Pipeline is a bounded producer/consumer queue of download work. Producers
// (the Sync Service) call Enqueue; a single Run loop drains the queue and
// gates actual download concurrency with a weighted semaphore.
type Pipeline struct {
	gateway     domain.ChatGateway
	limiter     *ratelimit.Controller
	outputDir   string
	queue       chan domain.MediaReference
	sem         *semaphore.Weighted
	parallelism int64

	// closeMu guards queue against a send racing its close: Close takes
	// the write lock so it can only run once every in-flight Enqueue/requeue
	// send has returned; Enqueue/requeue hold the read lock for the
	// duration of their send attempt.
	closeMu sync.RWMutex
	closed  bool
}

// New builds a Pipeline with the given queue capacity (backpressure bound)
// and download parallelism.
func New(gateway domain.ChatGateway, limiter *ratelimit.Controller, outputDir string, queueSize, parallelism int) *Pipeline {
	if parallelism <= 0 {
		parallelism = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pipeline{
		gateway:     gateway,
		limiter:     limiter,
		outputDir:   outputDir,
		queue:       make(chan domain.MediaReference, queueSize),
		sem:         semaphore.NewWeighted(int64(parallelism)),
		parallelism: int64(parallelism),
	}
}

// Enqueue submits a reference for download, blocking if the queue is at
// capacity. This is the pipeline's backpressure mechanism: a slow
// downloader naturally stalls its producer rather than growing unbounded.
func (p *Pipeline) Enqueue(ctx context.Context, ref domain.MediaReference) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return fmt.Errorf("media: pipeline closed")
	}
	select {
	case p.queue <- ref:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requeue pushes ref back onto the queue's tail without blocking, for a
// long FLOOD_WAIT that released its permit mid-download. If the queue is
// full or already closed, the ref is dropped and logged rather than
// stalling or panicking on a send to a closed channel.
func (p *Pipeline) requeue(ref domain.MediaReference) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		log.Printf("[!] media: pipeline closed, dropping dialog=%d message=%d after flood wait", ref.DialogID, ref.MessageID)
		return
	}
	select {
	case p.queue <- ref:
	default:
		log.Printf("[!] media: queue full, dropping dialog=%d message=%d after flood wait", ref.DialogID, ref.MessageID)
	}
}

// Close signals no further work will be enqueued. Run's loop exits once the
// queue drains.
func (p *Pipeline) Close() {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
}

// Run drains the queue until it is closed and empty, spawning one goroutine
// per item gated by the weighted semaphore. Returns once all in-flight
// downloads complete.
func (p *Pipeline) Run(ctx context.Context) error {
	for ref := range p.queue {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		ref := ref
		go func() {
			defer p.sem.Release(1)
			err := p.downloadOne(ctx, ref)
			if err == nil {
				return
			}
			if fw, ok := domain.AsFloodWait(err); ok {
				log.Printf("[!] media: dialog=%d message=%d hit a %ds flood wait mid-download, releasing permit and re-queuing", ref.DialogID, ref.MessageID, fw.Seconds)
				p.requeue(ref)
				return
			}
			log.Printf("[!] media: permanently failed dialog=%d message=%d: %v", ref.DialogID, ref.MessageID, err)
		}()
	}

	// semaphore.Weighted has no "wait for all" primitive; acquiring its
	// full configured weight blocks until every in-flight holder releases,
	// which only happens once every downloadOne goroutine has returned.
	if err := p.sem.Acquire(ctx, p.parallelism); err != nil {
		return err
	}
	p.sem.Release(p.parallelism)
	return nil
}

func (p *Pipeline) downloadOne(ctx context.Context, ref domain.MediaReference) error {
	if err := ensureDir(p.outputDir); err != nil {
		return err
	}
	dest := joinDest(p.outputDir, ref.FileName())
	if exists(dest) {
		return nil
	}

	if err := p.limiter.Wait(ctx, rateScope); err != nil {
		return err
	}

	name := "download " + ref.FileName()
	return retry.Linear(ctx, name, func() error {
		for {
			err := p.gateway.DownloadMedia(ctx, ref, dest)
			fw, ok := domain.AsFloodWait(err)
			if !ok {
				return err
			}
			herr := p.limiter.Handle(ctx, rateScope, fw)
			if herr == nil {
				// short wait: Handle already slept it out in place, retry
				// the download now within this same permit instead of
				// reporting success without ever fetching the bytes.
				continue
			}
			// long wait: Handle set the scope barrier; bail out of
			// Linear's own retry schedule immediately so the caller
			// releases this permit and re-queues ref at the tail rather
			// than burning attempts against a barrier that hasn't lifted.
			return retry.Permanent(herr)
		}
	}, maxRetries, baseBackoff)
}
