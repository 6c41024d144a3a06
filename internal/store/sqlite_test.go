package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Berektassuly/tg-sync/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndReadMessages(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.UpsertDialog(ctx, domain.Dialog{ID: 1, Title: "Alice", Kind: domain.DialogUser}); err != nil {
		t.Fatalf("UpsertDialog: %v", err)
	}

	msgs := []domain.Message{
		{DialogID: 1, ID: 10, SentAt: time.Now(), Text: "hello"},
		{DialogID: 1, ID: 11, SentAt: time.Now(), Text: "world"},
	}
	if err := s.SaveMessageBatch(ctx, 1, msgs); err != nil {
		t.Fatalf("SaveMessageBatch: %v", err)
	}

	got, err := s.ReadMessages(ctx, 1, 0, 10)
	if err != nil {
		t.Fatalf("ReadMessages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadMessages returned %d messages, want 2", len(got))
	}
	if got[0].Text != "hello" || got[1].Text != "world" {
		t.Fatalf("unexpected message content: %+v", got)
	}
}

func TestSaveMessageBatchTracksEdit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.UpsertDialog(ctx, domain.Dialog{ID: 1, Title: "Alice", Kind: domain.DialogUser}); err != nil {
		t.Fatalf("UpsertDialog: %v", err)
	}

	original := domain.Message{DialogID: 1, ID: 5, SentAt: time.Now(), Text: "original"}
	if err := s.SaveMessageBatch(ctx, 1, []domain.Message{original}); err != nil {
		t.Fatalf("SaveMessageBatch (insert): %v", err)
	}

	edited := domain.Message{DialogID: 1, ID: 5, SentAt: original.SentAt, Text: "edited"}
	if err := s.SaveMessageBatch(ctx, 1, []domain.Message{edited}); err != nil {
		t.Fatalf("SaveMessageBatch (edit): %v", err)
	}

	got, err := s.ReadMessages(ctx, 1, 0, 10)
	if err != nil {
		t.Fatalf("ReadMessages: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ReadMessages returned %d messages, want 1", len(got))
	}
	if got[0].Text != "edited" {
		t.Fatalf("Text = %q, want %q", got[0].Text, "edited")
	}
	if len(got[0].EditHistory) != 1 || got[0].EditHistory[0].PriorText != "original" {
		t.Fatalf("EditHistory = %+v, want one entry with PriorText=original", got[0].EditHistory)
	}
}

func TestSaveMessageBatchNoOpWhenTextUnchanged(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.UpsertDialog(ctx, domain.Dialog{ID: 1, Title: "Alice", Kind: domain.DialogUser}); err != nil {
		t.Fatalf("UpsertDialog: %v", err)
	}

	msg := domain.Message{DialogID: 1, ID: 5, SentAt: time.Now(), Text: "same"}
	if err := s.SaveMessageBatch(ctx, 1, []domain.Message{msg}); err != nil {
		t.Fatalf("SaveMessageBatch: %v", err)
	}
	if err := s.SaveMessageBatch(ctx, 1, []domain.Message{msg}); err != nil {
		t.Fatalf("SaveMessageBatch (repeat): %v", err)
	}

	got, err := s.ReadMessages(ctx, 1, 0, 10)
	if err != nil {
		t.Fatalf("ReadMessages: %v", err)
	}
	if len(got[0].EditHistory) != 0 {
		t.Fatalf("EditHistory = %+v, want empty", got[0].EditHistory)
	}
}

func TestBlacklist(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.UpsertDialog(ctx, domain.Dialog{ID: 9, Title: "Spam", Kind: domain.DialogGroup}); err != nil {
		t.Fatalf("UpsertDialog: %v", err)
	}
	if err := s.SetBlacklist(ctx, 9, true); err != nil {
		t.Fatalf("SetBlacklist: %v", err)
	}

	list, err := s.ListBlacklist(ctx)
	if err != nil {
		t.Fatalf("ListBlacklist: %v", err)
	}
	if !list[9] {
		t.Fatalf("ListBlacklist = %v, want dialog 9 blacklisted", list)
	}
}

func TestSetBlacklistBeforeFirstBackupStillSticks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.SetBlacklist(ctx, 42, true); err != nil {
		t.Fatalf("SetBlacklist: %v", err)
	}

	list, err := s.ListBlacklist(ctx)
	if err != nil {
		t.Fatalf("ListBlacklist: %v", err)
	}
	if !list[42] {
		t.Fatalf("ListBlacklist = %v, want dialog 42 blacklisted despite no prior UpsertDialog", list)
	}

	if err := s.UpsertDialog(ctx, domain.Dialog{ID: 42, Title: "Later Known Title", Kind: domain.DialogUser}); err != nil {
		t.Fatalf("UpsertDialog: %v", err)
	}
	list, err = s.ListBlacklist(ctx)
	if err != nil {
		t.Fatalf("ListBlacklist: %v", err)
	}
	if !list[42] {
		t.Fatalf("ListBlacklist = %v, want dialog 42 still blacklisted after UpsertDialog", list)
	}
}

func TestUnanalyzedWeeks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.MarkAnalyzed(ctx, 1, "2026-01", time.Now()); err != nil {
		t.Fatalf("MarkAnalyzed: %v", err)
	}

	weeks, err := s.UnanalyzedWeeks(ctx, 1, []string{"2026-01", "2026-02", "2026-03"})
	if err != nil {
		t.Fatalf("UnanalyzedWeeks: %v", err)
	}
	if len(weeks) != 2 || weeks[0] != "2026-02" || weeks[1] != "2026-03" {
		t.Fatalf("UnanalyzedWeeks = %v, want [2026-02 2026-03]", weeks)
	}
}
