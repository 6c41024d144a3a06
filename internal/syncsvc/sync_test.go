package syncsvc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Berektassuly/tg-sync/internal/domain"
	"github.com/Berektassuly/tg-sync/internal/media"
	"github.com/Berektassuly/tg-sync/internal/ratelimit"
)

type fakeGateway struct {
	domain.ChatGateway
	pages       [][]domain.Message
	calls       int
	downloadCnt atomic.Int32

	mu        sync.Mutex
	destPaths []string
}

func (f *fakeGateway) GetHistory(ctx context.Context, dialogID int64, minID int, limit int) ([]domain.Message, error) {
	if f.calls >= len(f.pages) {
		return nil, nil
	}
	p := f.pages[f.calls]
	f.calls++
	return p, nil
}

func (f *fakeGateway) DownloadMedia(ctx context.Context, m domain.MediaReference, destPath string) error {
	f.downloadCnt.Add(1)
	f.mu.Lock()
	f.destPaths = append(f.destPaths, destPath)
	f.mu.Unlock()
	return nil
}

type fakeStore struct {
	domain.MessageStore
	saved   []domain.Message
	failErr error
}

func (f *fakeStore) SaveMessageBatch(ctx context.Context, dialogID int64, messages []domain.Message) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.saved = append(f.saved, messages...)
	return nil
}

type fakeCheckpoint struct {
	data map[int64]int
}

func newFakeCheckpoint() *fakeCheckpoint { return &fakeCheckpoint{data: make(map[int64]int)} }

func (f *fakeCheckpoint) Get(dialogID int64) int { return f.data[dialogID] }
func (f *fakeCheckpoint) Put(dialogID int64, lastMessageID int) error {
	f.data[dialogID] = lastMessageID
	return nil
}

func TestSyncDialogEmptyHistory(t *testing.T) {
	gw := &fakeGateway{pages: nil}
	st := &fakeStore{}
	cp := newFakeCheckpoint()
	pipeline := media.New(gw, ratelimit.New(), t.TempDir(), 4, 1)
	pipeline.Close()
	go pipeline.Run(context.Background())

	svc := New(gw, st, cp, pipeline, ratelimit.New(), time.Millisecond)
	stats, err := svc.SyncDialog(context.Background(), 1, 100, false)
	if err != nil {
		t.Fatalf("SyncDialog: %v", err)
	}
	if stats.MessagesSynced != 0 {
		t.Fatalf("MessagesSynced = %d, want 0", stats.MessagesSynced)
	}
}

func TestSyncDialogSinglePage(t *testing.T) {
	now := time.Now()
	gw := &fakeGateway{pages: [][]domain.Message{
		{
			{ID: 3, SentAt: now, Text: "c"},
			{ID: 2, SentAt: now, Text: "b"},
			{ID: 1, SentAt: now, Text: "a"},
		},
	}}
	st := &fakeStore{}
	cp := newFakeCheckpoint()
	pipeline := media.New(gw, ratelimit.New(), t.TempDir(), 4, 1)
	pipeline.Close()
	go pipeline.Run(context.Background())

	svc := New(gw, st, cp, pipeline, ratelimit.New(), time.Millisecond)
	stats, err := svc.SyncDialog(context.Background(), 1, 100, false)
	if err != nil {
		t.Fatalf("SyncDialog: %v", err)
	}
	if stats.MessagesSynced != 3 {
		t.Fatalf("MessagesSynced = %d, want 3", stats.MessagesSynced)
	}
	if cp.Get(1) != 3 {
		t.Fatalf("checkpoint = %d, want 3", cp.Get(1))
	}
	if len(st.saved) != 3 {
		t.Fatalf("saved = %d messages, want 3", len(st.saved))
	}
}

func TestSyncDialogStopsAtCheckpoint(t *testing.T) {
	now := time.Now()
	gw := &fakeGateway{pages: [][]domain.Message{
		{
			{ID: 5, SentAt: now, Text: "e"},
			{ID: 4, SentAt: now, Text: "d"},
		},
	}}
	st := &fakeStore{}
	cp := newFakeCheckpoint()
	cp.data[1] = 3 // already have up through id 3

	pipeline := media.New(gw, ratelimit.New(), t.TempDir(), 4, 1)
	pipeline.Close()
	go pipeline.Run(context.Background())

	svc := New(gw, st, cp, pipeline, ratelimit.New(), time.Millisecond)
	stats, err := svc.SyncDialog(context.Background(), 1, 100, false)
	if err != nil {
		t.Fatalf("SyncDialog: %v", err)
	}
	if stats.MessagesSynced != 2 {
		t.Fatalf("MessagesSynced = %d, want 2", stats.MessagesSynced)
	}
	if cp.Get(1) != 5 {
		t.Fatalf("checkpoint = %d, want 5", cp.Get(1))
	}
}

func TestSyncDialogNeverEnqueuesMediaForAnUnpersistedBatch(t *testing.T) {
	now := time.Now()
	gw := &fakeGateway{pages: [][]domain.Message{
		{
			{ID: 1, SentAt: now, Text: "a", Media: []byte(`{}`), Extension: "jpg"},
		},
	}}
	st := &fakeStore{failErr: fmt.Errorf("disk full")}
	cp := newFakeCheckpoint()

	pipeline := media.New(gw, ratelimit.New(), t.TempDir(), 4, 1)
	pipeline.Close()
	go pipeline.Run(context.Background())

	svc := New(gw, st, cp, pipeline, ratelimit.New(), time.Millisecond)
	_, err := svc.SyncDialog(context.Background(), 1, 100, true)
	if err == nil {
		t.Fatal("SyncDialog: want error from failing store, got nil")
	}
	if gw.downloadCnt.Load() != 0 {
		t.Fatalf("DownloadMedia called %d times, want 0: media must never be queued for a batch that failed to persist", gw.downloadCnt.Load())
	}
	if cp.Get(1) != 0 {
		t.Fatalf("checkpoint advanced to %d despite a failed save", cp.Get(1))
	}
}

func TestSyncDialogPropagatesMediaExtensionToDownload(t *testing.T) {
	now := time.Now()
	gw := &fakeGateway{pages: [][]domain.Message{
		{
			{ID: 1, SentAt: now, Text: "", Media: []byte(`{}`), Extension: "mp4"},
		},
	}}
	st := &fakeStore{}
	cp := newFakeCheckpoint()

	pipeline := media.New(gw, ratelimit.New(), t.TempDir(), 4, 1)

	svc := New(gw, st, cp, pipeline, ratelimit.New(), time.Millisecond)
	stats, err := svc.SyncDialog(context.Background(), 1, 100, true)
	if err != nil {
		t.Fatalf("SyncDialog: %v", err)
	}
	if stats.MediaQueued != 1 {
		t.Fatalf("MediaQueued = %d, want 1", stats.MediaQueued)
	}

	pipeline.Close()
	if err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("pipeline.Run: %v", err)
	}

	if gw.downloadCnt.Load() != 1 {
		t.Fatalf("DownloadMedia called %d times, want 1", gw.downloadCnt.Load())
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.destPaths) != 1 {
		t.Fatalf("destPaths = %v, want exactly one entry", gw.destPaths)
	}
	if got, want := gw.destPaths[0], "1_1.mp4"; !strings.HasSuffix(got, want) {
		t.Fatalf("destPath = %q, want suffix %q (extension must round-trip)", got, want)
	}
}
