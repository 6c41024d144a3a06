// Package store implements the Message Store (C2) on SQLite in WAL mode,
// with embedded migrations and edit-history-on-conflict semantics on
// message upsert.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Berektassuly/tg-sync/internal/domain"
)

// SQLiteStore implements domain.MessageStore.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path, enables WAL
// journaling and foreign keys, and brings the schema up to date.
func Open(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on", path)

	if err := applyMigrations(path); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	// Dialogs are synced one at a time against one SQLite file; cap the
	// pool at 1 connection since go-sqlite3 serializes writes anyway and a
	// larger pool just produces SQLITE_BUSY under WAL contention.
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertDialog(ctx context.Context, dialog domain.Dialog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dialogs (id, title, kind, blacklisted)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET title = excluded.title, kind = excluded.kind
	`, dialog.ID, dialog.Title, string(dialog.Kind), boolToInt(dialog.Blacklisted))
	if err != nil {
		return fmt.Errorf("%w: upsert dialog %d: %v", domain.ErrStoreIO, dialog.ID, err)
	}
	return nil
}

// SaveMessageBatch atomically inserts or updates messages for one dialog.
// On a conflicting (dialog_id, message_id) where the stored text differs
// from the incoming text, the stored text is pushed onto edit_history
// before being overwritten.
func (s *SQLiteStore) SaveMessageBatch(ctx context.Context, dialogID int64, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStoreIO, err)
	}
	defer tx.Rollback()

	selectStmt, err := tx.PrepareContext(ctx, `
		SELECT text, edit_history FROM messages WHERE dialog_id = ? AND message_id = ?
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare select: %v", domain.ErrStoreIO, err)
	}
	defer selectStmt.Close()

	upsertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (dialog_id, message_id, sent_at, sender_id, text, media, edit_history)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dialog_id, message_id) DO UPDATE SET
			sent_at = excluded.sent_at,
			sender_id = excluded.sender_id,
			text = excluded.text,
			media = excluded.media,
			edit_history = excluded.edit_history
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare upsert: %v", domain.ErrStoreIO, err)
	}
	defer upsertStmt.Close()

	for _, msg := range messages {
		history := msg.EditHistory

		var existingText string
		var existingHistoryJSON string
		err := selectStmt.QueryRowContext(ctx, dialogID, msg.ID).Scan(&existingText, &existingHistoryJSON)
		switch {
		case err == sql.ErrNoRows:
			// fresh insert, nothing to carry forward
		case err != nil:
			return fmt.Errorf("%w: select existing: %v", domain.ErrStoreIO, err)
		default:
			// carry the stored history forward, so an unchanged re-save
			// leaves it as it was
			var existing []domain.EditEntry
			if existingHistoryJSON != "" {
				if err := json.Unmarshal([]byte(existingHistoryJSON), &existing); err != nil {
					return fmt.Errorf("%w: decode edit_history: %v", domain.ErrStoreIO, err)
				}
			}
			if existingText != msg.Text {
				existing = append(existing, domain.EditEntry{EditedAt: time.Now().UTC(), PriorText: existingText})
			}
			history = append(existing, history...)
		}

		historyJSON, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("%w: encode edit_history: %v", domain.ErrStoreIO, err)
		}

		var senderID interface{}
		if msg.SenderID != nil {
			senderID = *msg.SenderID
		}
		var media interface{}
		if len(msg.Media) > 0 {
			media = string(msg.Media)
		}

		if _, err := upsertStmt.ExecContext(ctx, dialogID, msg.ID, msg.SentAt.UTC().Unix(), senderID, msg.Text, media, string(historyJSON)); err != nil {
			return fmt.Errorf("%w: upsert message %d/%d: %v", domain.ErrStoreIO, dialogID, msg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStoreConflict, err)
	}
	return nil
}

func (s *SQLiteStore) ReadMessages(ctx context.Context, dialogID int64, sinceID int, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: LIMIT -1 means unbounded, unlike LIMIT 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, sent_at, sender_id, text, media, edit_history
		FROM messages
		WHERE dialog_id = ? AND message_id > ?
		ORDER BY message_id ASC
		LIMIT ?
	`, dialogID, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrStoreIO, err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			id           int
			sentAtUnix   int64
			senderID     sql.NullInt64
			text         string
			media        sql.NullString
			historyJSON  string
		)
		if err := rows.Scan(&id, &sentAtUnix, &senderID, &text, &media, &historyJSON); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrStoreIO, err)
		}

		msg := domain.Message{
			DialogID: dialogID,
			ID:       id,
			SentAt:   time.Unix(sentAtUnix, 0).UTC(),
			Text:     text,
		}
		if senderID.Valid {
			v := senderID.Int64
			msg.SenderID = &v
		}
		if media.Valid {
			msg.Media = json.RawMessage(media.String)
		}
		if historyJSON != "" {
			if err := json.Unmarshal([]byte(historyJSON), &msg.EditHistory); err != nil {
				return nil, fmt.Errorf("%w: decode edit_history: %v", domain.ErrStoreIO, err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", domain.ErrStoreIO, err)
	}
	return out, nil
}

// SetBlacklist upserts the blacklisted flag for dialogID: a dialog set
// blacklisted before its first backup has no row yet, and a plain UPDATE
// would silently affect zero rows and drop the setting.
func (s *SQLiteStore) SetBlacklist(ctx context.Context, dialogID int64, blacklisted bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dialogs (id, title, kind, blacklisted)
		VALUES (?, '', '', ?)
		ON CONFLICT (id) DO UPDATE SET blacklisted = excluded.blacklisted
	`, dialogID, boolToInt(blacklisted))
	if err != nil {
		return fmt.Errorf("%w: set blacklist %d: %v", domain.ErrStoreIO, dialogID, err)
	}
	return nil
}

func (s *SQLiteStore) ListBlacklist(ctx context.Context) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, blacklisted FROM dialogs`)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrStoreIO, err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		var blacklisted int
		if err := rows.Scan(&id, &blacklisted); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrStoreIO, err)
		}
		out[id] = blacklisted != 0
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkAnalyzed(ctx context.Context, dialogID int64, weekBucket string, analyzedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_log (dialog_id, week_bucket, analyzed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (dialog_id, week_bucket) DO UPDATE SET analyzed_at = excluded.analyzed_at
	`, dialogID, weekBucket, analyzedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("%w: mark analyzed %d/%s: %v", domain.ErrStoreIO, dialogID, weekBucket, err)
	}
	return nil
}

func (s *SQLiteStore) UnanalyzedWeeks(ctx context.Context, dialogID int64, allWeeks []string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT week_bucket FROM analysis_log WHERE dialog_id = ?`, dialogID)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrStoreIO, err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var week string
		if err := rows.Scan(&week); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrStoreIO, err)
		}
		done[week] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", domain.ErrStoreIO, err)
	}

	var out []string
	for _, w := range allWeeks {
		if !done[w] {
			out = append(out, w)
		}
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
