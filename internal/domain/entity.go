// Package domain holds the pure data structures and port contracts for the
// archival engine. No Telegram or storage-engine types leak in here; adapters
// map their own types onto these at the boundary.
package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// DialogKind tags the shape of a Dialog.
type DialogKind string

const (
	DialogUser       DialogKind = "user"
	DialogGroup      DialogKind = "group"
	DialogSupergroup DialogKind = "supergroup"
	DialogChannel    DialogKind = "channel"
)

// Dialog is a single conversation the account participates in.
type Dialog struct {
	ID          int64
	Title       string
	Kind        DialogKind
	Blacklisted bool
}

// EditEntry is one prior version of a message's text, oldest first in
// Message.EditHistory.
type EditEntry struct {
	EditedAt  time.Time `json:"edited_at"`
	PriorText string    `json:"prior_text"`
}

// Message is a single history record, identified by (DialogID, ID).
type Message struct {
	DialogID    int64
	ID          int
	SentAt      time.Time
	SenderID    *int64
	Text        string
	Media       json.RawMessage // opaque, gateway-defined; nil when no media
	Extension   string          // media file extension without the leading dot; empty when no media
	EditHistory []EditEntry
}

// MediaReference is an enqueued unit of download work.
type MediaReference struct {
	DialogID  int64
	MessageID int
	Media     json.RawMessage
	Extension string // expected file extension without the leading dot, e.g. "jpg"
}

// FileName returns the media file's name under the media/ directory, using
// the fixed layout media/{dialog_id}_{message_id}.{ext}.
func (m MediaReference) FileName() string {
	ext := m.Extension
	if ext == "" {
		ext = "bin"
	}
	return strconv.FormatInt(m.DialogID, 10) + "_" + strconv.Itoa(m.MessageID) + "." + ext
}

// EntityEntry caches a resolved peer identity, keyed by PeerID.
type EntityEntry struct {
	PeerID     int64
	AccessHash int64
	Kind       DialogKind
}

// AnalysisLogEntry records that a (dialog, week) bucket has been summarized
// by an external post-processor. The engine never writes this itself; it
// only exposes the read/write surface a post-processor needs.
type AnalysisLogEntry struct {
	DialogID   int64
	WeekBucket string // "{year}-{week}", ISO week
	AnalyzedAt time.Time
}
