// Package ingest implements the mailbox ingestion engine: incremental,
// idempotent fetching of messages from configured IMAP mailboxes into
// the local store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/printdesk/printdesk/internal/imapx"
	"github.com/printdesk/printdesk/internal/model"
	"github.com/printdesk/printdesk/internal/store"
)

// Engine fetches new mail for every configured mailbox. Errors are
// recovered at the narrowest possible scope: a failed message skips
// that message, a failed folder skips that folder, a failed connection
// fails only that mailbox's run.
type Engine struct {
	store  store.Store
	dialer imapx.Dialer
	media  Media
	log    *logrus.Logger
	loc    *time.Location
	now    func() time.Time
}

// New creates an ingestion engine. loc is the timezone message Date
// headers are localized into; nil means UTC.
func New(
	st store.Store,
	dialer imapx.Dialer,
	media Media,
	log *logrus.Logger,
	loc *time.Location,
) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		store:  st,
		dialer: dialer,
		media:  media,
		log:    log,
		loc:    loc,
		now:    time.Now,
	}
}

// Run fetches all configured mailboxes sequentially. A mailbox failure
// is recorded in its fetch run and never aborts the others.
func (e *Engine) Run(ctx context.Context) error {
	mailboxes, err := e.store.GetMailboxes(ctx)
	if err != nil {
		return fmt.Errorf("loading mailboxes: %w", err)
	}

	for _, mb := range mailboxes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := e.RunMailbox(ctx, mb); err != nil {
			e.log.WithField("mailbox", mb.Name).WithError(err).Error("mailbox run failed")
		}
	}

	return nil
}

// RunMailbox performs one ingestion pass over a single mailbox and
// returns the finalized fetch run. Transport and auth failures are
// captured in the run's success flag and message and also returned so
// callers can classify them; the run is finalized either way.
func (e *Engine) RunMailbox(ctx context.Context, mb model.Mailbox) (model.FetchRun, error) {
	log := e.log.WithField("mailbox", mb.Name)
	log.Info("starting mailbox fetch")

	run, err := e.store.CreateFetchRun(ctx, mb.ID)
	if err != nil {
		return model.FetchRun{}, fmt.Errorf("creating fetch run: %w", err)
	}

	folders, runErr := e.fetchMailbox(ctx, mb, log)

	success := runErr == nil
	message := ""
	if success {
		message = "Fetched folders: " + strings.Join(folders, ", ")
		log.Info("finished mailbox fetch")
	} else {
		message = runErr.Error()
	}

	if err := e.store.FinalizeFetchRun(ctx, run.ID, success, message); err != nil {
		return run, fmt.Errorf("finalizing fetch run: %w", err)
	}

	run.Success = success
	run.Message = message
	now := e.now()
	run.FinishedAt = &now
	return run, runErr
}

// fetchMailbox connects, enumerates folders, and ingests each retained
// folder. It returns the folder names that were processed.
func (e *Engine) fetchMailbox(
	ctx context.Context,
	mb model.Mailbox,
	log *logrus.Entry,
) ([]string, error) {
	sess, err := e.dialer.Dial(ctx, mb)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	listed, err := sess.ListFolders()
	if err != nil {
		return nil, err
	}

	folders := filterFolders(listed)
	log.WithField("folders", strings.Join(folders, ", ")).Info("parsed folders")

	for _, folder := range folders {
		if ctx.Err() != nil {
			return folders, ctx.Err()
		}
		if err := e.fetchFolder(ctx, sess, mb, folder, log.WithField("folder", folder)); err != nil {
			// Folder-scoped failure: skip it, keep going.
			log.WithField("folder", folder).WithError(err).Warn("skipping folder")
		}
	}

	return folders, nil
}

// fetchFolder selects one folder read-only and ingests every message
// above the stored high-water mark.
func (e *Engine) fetchFolder(
	ctx context.Context,
	sess imapx.Session,
	mb model.Mailbox,
	folder string,
	log *logrus.Entry,
) error {
	if err := sess.SelectReadOnly(folder); err != nil {
		return err
	}

	normalized := normalizeFolder(folder)

	mark, err := e.store.MaxUID(ctx, mb.ID, normalized)
	if err != nil {
		return err
	}

	uids, err := sess.SearchAfter(mark)
	if err != nil {
		return err
	}

	log.WithField("count", len(uids)).Info("found new messages")

	for _, uid := range uids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.ingestMessage(ctx, sess, mb, folder, normalized, uid); err != nil {
			// Message-scoped failure: skip it, keep going.
			log.WithField("uid", uid).WithError(err).Error("processing message")
		}
	}

	return nil
}

// ingestMessage fetches, normalizes, and persists a single message
// with its attachments. Already-stored messages are silently skipped.
func (e *Engine) ingestMessage(
	ctx context.Context,
	sess imapx.Session,
	mb model.Mailbox,
	folder, normalized string,
	uid uint32,
) error {
	// Fast-path dedup by (mailbox, folder, uid); the UNIQUE constraint
	// below remains the authoritative guard.
	exists, err := e.store.EmailExists(ctx, mb.ID, normalized, uid)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	raw, err := sess.FetchRaw(uid)
	if err != nil {
		return err
	}

	parsed, err := parseMessage(raw)
	if err != nil {
		return err
	}

	messageID := parsed.MessageID
	if messageID == "" {
		// A message without a Message-ID still needs a stable dedup key.
		messageID = fmt.Sprintf("%d@%s-%s", uid, mb.ID, folder)
	}

	// The same message can resurface under a different UID, e.g. after
	// a folder move; Message-ID catches that case.
	exists, err = e.store.MessageIDExists(ctx, messageID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	dateReceived := e.now().In(e.loc)
	if parsed.HasDate {
		dateReceived = parsed.Date.In(e.loc)
	}

	subject := parsed.Subject
	if subject == "" {
		subject = "(No Subject)"
	}

	em, err := e.store.CreateEmail(ctx, model.EmailMessage{
		MailboxID:    mb.ID,
		Folder:       normalized,
		Sender:       parsed.From,
		Recipients:   parsed.To,
		Subject:      subject,
		Body:         parsed.Body,
		DateReceived: dateReceived,
		MessageID:    messageID,
		UID:          uid,
		Status:       model.EmailStatusNew,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost the race to a concurrent run; the message is stored.
			return nil
		}
		return err
	}

	e.saveAttachments(ctx, mb, em, parsed.FileParts)
	return nil
}

// saveAttachments persists attachment payloads and rows for one email,
// then flips has_attachments when anything was saved. Every failure
// here is part-scoped: logged and skipped, never fatal to the message.
func (e *Engine) saveAttachments(
	ctx context.Context,
	mb model.Mailbox,
	em model.EmailMessage,
	parts []filePart,
) {
	log := e.log.WithField("mailbox", mb.Name).WithField("message_id", em.MessageID)

	saved := false
	for _, fp := range parts {
		exists, err := e.store.AttachmentExists(ctx, em.ID, fp.Filename)
		if err != nil {
			log.WithField("filename", fp.Filename).WithError(err).Warn("checking attachment")
			continue
		}
		if exists {
			continue
		}

		relPath, err := e.media.SaveAttachment(mb.Name, fp.Filename, fp.Data)
		if err != nil {
			log.WithField("filename", fp.Filename).WithError(err).Warn("saving attachment payload")
			continue
		}

		if _, err := e.store.CreateAttachment(ctx, model.Attachment{
			EmailID:  em.ID,
			Filename: fp.Filename,
			Path:     relPath,
		}); err != nil {
			if !errors.Is(err, store.ErrDuplicate) {
				log.WithField("filename", fp.Filename).WithError(err).Warn("saving attachment row")
			}
			continue
		}

		saved = true
	}

	if saved {
		if err := e.store.SetEmailHasAttachments(ctx, em.ID); err != nil {
			log.WithError(err).Warn("marking attachments flag")
		}
	}
}
