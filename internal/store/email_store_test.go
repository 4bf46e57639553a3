package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/printdesk/printdesk/internal/model"
	"github.com/printdesk/printdesk/internal/store"
	"github.com/printdesk/printdesk/tests/testutil"
)

func createMailbox(t *testing.T, s store.Store) model.Mailbox {
	t.Helper()
	mb, err := s.UpsertMailbox(context.Background(), model.Mailbox{
		Name:         "Front Desk",
		IMAPHost:     "imap.example.com",
		IMAPPort:     993,
		IMAPUsername: "front@example.com",
		IMAPTLS:      true,
	})
	if err != nil {
		t.Fatalf("upserting mailbox: %v", err)
	}
	return mb
}

func emailFixture(mb model.Mailbox, folder string, uid uint32, messageID string) model.EmailMessage {
	return model.EmailMessage{
		MailboxID:  mb.ID,
		Folder:     folder,
		Sender:     "customer@example.com",
		Recipients: "shop@example.com",
		Subject:    "order",
		Body:       "body",
		MessageID:  messageID,
		UID:        uid,
		Status:     model.EmailStatusNew,
	}
}

func TestCreateEmailDuplicateUID(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	mb := createMailbox(t, s)

	if _, err := s.CreateEmail(ctx, emailFixture(mb, "inbox", 7, "<one@example.com>")); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	_, err := s.CreateEmail(ctx, emailFixture(mb, "inbox", 7, "<two@example.com>"))
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}

	// Same UID in a different folder is a distinct message.
	if _, err := s.CreateEmail(ctx, emailFixture(mb, "sent", 7, "<three@example.com>")); err != nil {
		t.Fatalf("different folder insert: %v", err)
	}
}

func TestCreateEmailDuplicateMessageID(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	mb := createMailbox(t, s)

	if _, err := s.CreateEmail(ctx, emailFixture(mb, "inbox", 1, "<same@example.com>")); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	_, err := s.CreateEmail(ctx, emailFixture(mb, "archive", 9, "<same@example.com>"))
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestEmailExistsAndMessageIDExists(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	mb := createMailbox(t, s)

	if _, err := s.CreateEmail(ctx, emailFixture(mb, "inbox", 3, "<x@example.com>")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	exists, err := s.EmailExists(ctx, mb.ID, "inbox", 3)
	if err != nil || !exists {
		t.Errorf("EmailExists = %v, %v; want true", exists, err)
	}
	exists, err = s.EmailExists(ctx, mb.ID, "inbox", 4)
	if err != nil || exists {
		t.Errorf("EmailExists for absent uid = %v, %v; want false", exists, err)
	}

	exists, err = s.MessageIDExists(ctx, "<x@example.com>")
	if err != nil || !exists {
		t.Errorf("MessageIDExists = %v, %v; want true", exists, err)
	}
	exists, err = s.MessageIDExists(ctx, "<y@example.com>")
	if err != nil || exists {
		t.Errorf("MessageIDExists for absent id = %v, %v; want false", exists, err)
	}
}

func TestMaxUID(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	mb := createMailbox(t, s)

	mark, err := s.MaxUID(ctx, mb.ID, "inbox")
	if err != nil {
		t.Fatalf("MaxUID on empty folder: %v", err)
	}
	if mark != 0 {
		t.Errorf("empty folder mark = %d, want 0", mark)
	}

	for i, uid := range []uint32{5, 12, 9} {
		msgID := string(rune('a'+i)) + "@example.com"
		if _, err := s.CreateEmail(ctx, emailFixture(mb, "inbox", uid, msgID)); err != nil {
			t.Fatalf("insert uid %d: %v", uid, err)
		}
	}

	mark, err = s.MaxUID(ctx, mb.ID, "inbox")
	if err != nil {
		t.Fatalf("MaxUID: %v", err)
	}
	if mark != 12 {
		t.Errorf("mark = %d, want 12", mark)
	}

	// Marks are folder-scoped.
	mark, err = s.MaxUID(ctx, mb.ID, "sent")
	if err != nil {
		t.Fatalf("MaxUID sent: %v", err)
	}
	if mark != 0 {
		t.Errorf("sent mark = %d, want 0", mark)
	}
}

func TestAttachmentDedup(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	mb := createMailbox(t, s)

	em, err := s.CreateEmail(ctx, emailFixture(mb, "inbox", 1, "<a@example.com>"))
	if err != nil {
		t.Fatalf("insert email: %v", err)
	}

	if _, err := s.CreateAttachment(ctx, model.Attachment{
		EmailID:  em.ID,
		Filename: "flyer.pdf",
		Path:     "attachments/Front_Desk/flyer.pdf",
	}); err != nil {
		t.Fatalf("first attachment: %v", err)
	}

	_, err = s.CreateAttachment(ctx, model.Attachment{
		EmailID:  em.ID,
		Filename: "flyer.pdf",
		Path:     "attachments/Front_Desk/flyer.pdf",
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}

	exists, err := s.AttachmentExists(ctx, em.ID, "flyer.pdf")
	if err != nil || !exists {
		t.Errorf("AttachmentExists = %v, %v; want true", exists, err)
	}
}

func TestGetEmailsFilter(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	mb := createMailbox(t, s)

	if _, err := s.CreateEmail(ctx, emailFixture(mb, "inbox", 1, "<a@example.com>")); err != nil {
		t.Fatal(err)
	}
	resolved := emailFixture(mb, "sent", 2, "<b@example.com>")
	resolved.Status = model.EmailStatusResolved
	if _, err := s.CreateEmail(ctx, resolved); err != nil {
		t.Fatal(err)
	}

	folder := "sent"
	emails, err := s.GetEmails(ctx, store.EmailFilter{MailboxID: &mb.ID, Folder: &folder})
	if err != nil {
		t.Fatalf("GetEmails: %v", err)
	}
	if len(emails) != 1 || emails[0].Folder != "sent" {
		t.Errorf("folder filter returned %d emails", len(emails))
	}

	status := model.EmailStatusResolved
	emails, err = s.GetEmails(ctx, store.EmailFilter{Status: &status})
	if err != nil {
		t.Fatalf("GetEmails: %v", err)
	}
	if len(emails) != 1 || emails[0].Status != model.EmailStatusResolved {
		t.Errorf("status filter returned %d emails", len(emails))
	}
}

func TestSetEmailHasAttachments(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	mb := createMailbox(t, s)

	em, err := s.CreateEmail(ctx, emailFixture(mb, "inbox", 1, "<a@example.com>"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if em.HasAttachments {
		t.Fatal("new email already has attachments flag")
	}

	if err := s.SetEmailHasAttachments(ctx, em.ID); err != nil {
		t.Fatalf("SetEmailHasAttachments: %v", err)
	}

	saved, err := s.GetEmailByID(ctx, em.ID)
	if err != nil {
		t.Fatalf("GetEmailByID: %v", err)
	}
	if !saved.HasAttachments {
		t.Error("flag not persisted")
	}
}
