package domain

import (
	"context"
	"time"
)

// ChatGateway (C1) abstracts the remote chat service. Implemented by
// internal/adapter/telegram against gotd/td.
type ChatGateway interface {
	// ListDialogs enumerates accessible peers. May be expensive and
	// rate-limited; callers should rely on the Entity Registry rather than
	// re-listing.
	ListDialogs(ctx context.Context) ([]Dialog, error)

	// GetHistory returns messages with id > minID, newest-first as
	// delivered by remote, bounded by limit. The gateway MAY return
	// messages outside the requested range; callers MUST re-filter.
	GetHistory(ctx context.Context, dialogID int64, minID int, limit int) ([]Message, error)

	// DownloadMedia streams media bytes to destPath.
	DownloadMedia(ctx context.Context, media MediaReference, destPath string) error

	// ResolvePeer resolves peerID to an access handle, populating the
	// Entity Registry.
	ResolvePeer(ctx context.Context, peerID int64) (EntityEntry, error)

	// SendSelfMessage delivers text to the account's own "saved messages"
	// dialog, used by the Watcher's alerting.
	SendSelfMessage(ctx context.Context, text string) error
}

// MessageStore (C2) is the durable, transactional message store.
type MessageStore interface {
	UpsertDialog(ctx context.Context, dialog Dialog) error

	// SaveMessageBatch atomically inserts or updates a batch of messages
	// for one dialog. Either all rows commit or none. On conflict of
	// (dialog_id, message_id), if the text changed, the current live text
	// is appended to edit_history before being overwritten.
	SaveMessageBatch(ctx context.Context, dialogID int64, messages []Message) error

	// ReadMessages returns messages with id > sinceID, up to limit,
	// ascending by id.
	ReadMessages(ctx context.Context, dialogID int64, sinceID int, limit int) ([]Message, error)

	SetBlacklist(ctx context.Context, dialogID int64, blacklisted bool) error
	ListBlacklist(ctx context.Context) (map[int64]bool, error)

	// MarkAnalyzed and UnanalyzedWeeks back the Analysis Log bookkeeping a
	// future post-processor would use; the core never calls MarkAnalyzed
	// itself.
	MarkAnalyzed(ctx context.Context, dialogID int64, weekBucket string, analyzedAt time.Time) error
	UnanalyzedWeeks(ctx context.Context, dialogID int64, allWeeks []string) ([]string, error)

	Close() error
}

// CheckpointStore (C3) tracks the per-dialog high-water mark.
type CheckpointStore interface {
	Get(dialogID int64) int
	Put(dialogID int64, lastMessageID int) error
}

// EntityRegistry (C4) caches peer identity -> access handle.
type EntityRegistry interface {
	Lookup(peerID int64) (EntityEntry, bool)
	Put(entry EntityEntry) error
	Invalidate(peerID int64) error
}

// Analyzer is the minimal contract an external LLM summarizer would
// implement against the archived history; this engine defines the seam
// but never calls it itself.
type Analyzer interface {
	Analyze(ctx context.Context, dialogID int64, weekBucket string, messages []Message) (summary string, err error)
}

// TaskTracker is the minimal contract an external task-tracker integration
// would implement; this engine defines the seam but never calls it itself.
type TaskTracker interface {
	CreateTask(ctx context.Context, title, description string, due *time.Time) error
}
