// Package sendmail sends replies and fresh messages through a
// mailbox's SMTP settings and records them for the audit trail.
package sendmail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"

	"github.com/printdesk/printdesk/internal/model"
	"github.com/printdesk/printdesk/internal/store"
)

// maxAttachmentSize caps a single outgoing attachment at 10MB.
const maxAttachmentSize = 10 << 20

// Attachment is a file to include in an outgoing message.
type Attachment struct {
	Filename string
	Data     []byte
}

// OutboundMessage describes a message to send.
type OutboundMessage struct {
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sender submits messages over SMTP using per-mailbox credentials.
type Sender struct {
	store store.Store
	log   *logrus.Logger
}

// New creates a Sender.
func New(st store.Store, log *logrus.Logger) *Sender {
	return &Sender{store: st, log: log}
}

// Send composes and submits a message through the mailbox's SMTP
// server, then records an outgoing-email row. originalEmailID links a
// reply back to the message it answers; pass "" for fresh sends.
func (s *Sender) Send(
	ctx context.Context,
	mb model.Mailbox,
	originalEmailID string,
	senderUser string,
	msg OutboundMessage,
) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	for _, att := range msg.Attachments {
		if len(att.Data) > maxAttachmentSize {
			return fmt.Errorf("attachment %q exceeds 10MB limit", att.Filename)
		}
	}

	var buf bytes.Buffer
	if err := composeMessage(&buf, mb.SMTPUsername, msg); err != nil {
		return fmt.Errorf("composing message: %w", err)
	}

	if err := s.submit(mb, recipients(msg), &buf); err != nil {
		return fmt.Errorf("sending via %s: %w", mb.SMTPHost, err)
	}

	audited := auditRecipients(msg)

	s.log.WithField("mailbox", mb.Name).
		WithField("recipients", audited).
		Info("email sent")

	err := s.store.CreateOutgoingEmail(ctx, model.OutgoingEmail{
		OriginalEmailID: originalEmailID,
		MailboxID:       mb.ID,
		SenderUser:      senderUser,
		Recipients:      audited,
		Subject:         msg.Subject,
		Body:            msg.Body,
	})
	if err != nil {
		// The message is already on the wire; losing the audit row is
		// not a send failure.
		s.log.WithField("mailbox", mb.Name).WithError(err).Warn("recording outgoing email")
	}

	return nil
}

// submit dials the SMTP server, authenticates, and hands over the
// composed message.
func (s *Sender) submit(mb model.Mailbox, rcpts []string, r io.Reader) error {
	addr := fmt.Sprintf("%s:%d", mb.SMTPHost, mb.SMTPPort)

	var client *smtp.Client
	var err error

	if mb.SMTPStartTLS {
		client, err = smtp.DialStartTLS(addr, &tls.Config{ServerName: mb.SMTPHost})
	} else {
		client, err = smtp.Dial(addr)
	}
	if err != nil {
		return fmt.Errorf("connecting to SMTP %s: %w", addr, err)
	}
	defer client.Close()

	if mb.SMTPUsername != "" {
		auth := sasl.NewPlainClient("", mb.SMTPUsername, mb.SMTPPassword)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating as %s: %w", mb.SMTPUsername, err)
		}
	}

	if err := client.SendMail(mb.SMTPUsername, rcpts, r); err != nil {
		return fmt.Errorf("submitting message: %w", err)
	}

	return client.Quit()
}

// composeMessage writes a MIME message with a plain-text body and any
// attachments.
func composeMessage(w io.Writer, from string, msg OutboundMessage) error {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", toAddresses([]string{from}))
	h.SetAddressList("To", toAddresses(msg.To))
	if len(msg.CC) > 0 {
		h.SetAddressList("Cc", toAddresses(msg.CC))
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return err
	}

	var th mail.InlineHeader
	th.Set("Content-Type", "text/plain; charset=utf-8")
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(tw, msg.Body); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}

	for _, att := range msg.Attachments {
		var ah mail.AttachmentHeader
		ah.SetFilename(att.Filename)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return err
		}
		if _, err := aw.Write(att.Data); err != nil {
			return err
		}
		if err := aw.Close(); err != nil {
			return err
		}
	}

	return mw.Close()
}

// auditRecipients is the recipient list recorded on the outgoing-email
// row: To and CC, never BCC.
func auditRecipients(msg OutboundMessage) string {
	all := make([]string, 0, len(msg.To)+len(msg.CC))
	all = append(all, msg.To...)
	all = append(all, msg.CC...)
	return strings.Join(all, ", ")
}

// recipients flattens To, CC, and BCC into the envelope recipient list.
func recipients(msg OutboundMessage) []string {
	rcpts := make([]string, 0, len(msg.To)+len(msg.CC)+len(msg.BCC))
	rcpts = append(rcpts, msg.To...)
	rcpts = append(rcpts, msg.CC...)
	rcpts = append(rcpts, msg.BCC...)
	return rcpts
}

// toAddresses converts bare address strings into header address lists.
func toAddresses(addrs []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, &mail.Address{Address: a})
	}
	return out
}
