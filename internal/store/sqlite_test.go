package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/printdesk/printdesk/internal/model"
	"github.com/printdesk/printdesk/tests/testutil"
)

func TestUpsertMailboxUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	first, err := s.UpsertMailbox(ctx, model.Mailbox{
		Name:         "Front Desk",
		IMAPHost:     "imap.old.example.com",
		IMAPPort:     143,
		IMAPUsername: "front@example.com",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second, err := s.UpsertMailbox(ctx, model.Mailbox{
		Name:         "Front Desk",
		IMAPHost:     "imap.new.example.com",
		IMAPPort:     993,
		IMAPUsername: "front@example.com",
		IMAPTLS:      true,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("upsert changed ID: %s -> %s", first.ID, second.ID)
	}

	mailboxes, err := s.GetMailboxes(ctx)
	if err != nil {
		t.Fatalf("GetMailboxes: %v", err)
	}
	if len(mailboxes) != 1 {
		t.Fatalf("mailboxes = %d, want 1", len(mailboxes))
	}
	if mailboxes[0].IMAPHost != "imap.new.example.com" || !mailboxes[0].IMAPTLS {
		t.Errorf("settings not updated: %+v", mailboxes[0])
	}
}

func TestGetMailboxByName(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	if _, err := s.UpsertMailbox(ctx, model.Mailbox{
		Name:     "Back Office",
		IMAPHost: "imap.example.com",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	mb, err := s.GetMailboxByName(ctx, "Back Office")
	if err != nil {
		t.Fatalf("GetMailboxByName: %v", err)
	}
	if mb.Name != "Back Office" {
		t.Errorf("name = %q", mb.Name)
	}

	if _, err := s.GetMailboxByName(ctx, "Missing"); err == nil {
		t.Error("expected error for unknown mailbox name")
	}
}

func TestFetchRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	mb, err := s.UpsertMailbox(ctx, model.Mailbox{Name: "Front Desk", IMAPHost: "h"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	run, err := s.CreateFetchRun(ctx, mb.ID)
	if err != nil {
		t.Fatalf("CreateFetchRun: %v", err)
	}
	if run.FinishedAt != nil {
		t.Error("new run already finalized")
	}

	if err := s.FinalizeFetchRun(ctx, run.ID, true, "Fetched folders: INBOX"); err != nil {
		t.Fatalf("FinalizeFetchRun: %v", err)
	}

	// Finalization happens exactly once.
	if err := s.FinalizeFetchRun(ctx, run.ID, false, "again"); err == nil {
		t.Error("expected error finalizing a finalized run")
	}

	runs, err := s.GetFetchRuns(ctx, mb.ID, 10)
	if err != nil {
		t.Fatalf("GetFetchRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if !runs[0].Success || runs[0].FinishedAt == nil {
		t.Errorf("run not finalized as success: %+v", runs[0])
	}
	if runs[0].Message != "Fetched folders: INBOX" {
		t.Errorf("message = %q", runs[0].Message)
	}
}

func TestPruneFetchRunsKeepsInProgress(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	mb, err := s.UpsertMailbox(ctx, model.Mailbox{Name: "Front Desk", IMAPHost: "h"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	finished, err := s.CreateFetchRun(ctx, mb.ID)
	if err != nil {
		t.Fatalf("CreateFetchRun: %v", err)
	}
	if err := s.FinalizeFetchRun(ctx, finished.ID, true, "ok"); err != nil {
		t.Fatalf("FinalizeFetchRun: %v", err)
	}

	if _, err := s.CreateFetchRun(ctx, mb.ID); err != nil {
		t.Fatalf("CreateFetchRun: %v", err)
	}

	// Cutoff in the future: every finalized run qualifies.
	deleted, err := s.PruneFetchRuns(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneFetchRuns: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	runs, err := s.GetFetchRuns(ctx, mb.ID, 0)
	if err != nil {
		t.Fatalf("GetFetchRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("remaining runs = %d, want 1", len(runs))
	}
	if runs[0].FinishedAt != nil {
		t.Error("the surviving run should be the in-progress one")
	}
}
