// Package imapx wraps go-imap v2 behind the narrow session contract
// the ingestion engine needs: list folders, select read-only, search
// UIDs above a mark, fetch full messages.
package imapx

import (
	"context"
	"errors"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/printdesk/printdesk/internal/model"
)

// AuthError indicates that connecting to or authenticating against a
// mailbox failed. It aborts the run for that mailbox only.
type AuthError struct {
	Mailbox string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Mailbox, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Session is an authenticated IMAP connection scoped to one mailbox.
// Implementations are not safe for concurrent use; the ingestion
// engine drives each session from a single goroutine.
type Session interface {
	// ListFolders returns the server's folder names.
	ListFolders() ([]string, error)

	// SelectReadOnly opens a folder without marking messages as seen.
	SelectReadOnly(folder string) error

	// SearchAfter returns the UIDs of messages in the selected folder
	// with UID strictly greater than mark, i.e. the (mark+1):* range.
	SearchAfter(mark uint32) ([]uint32, error)

	// FetchRaw retrieves the full RFC 822 bytes of one message.
	FetchRaw(uid uint32) ([]byte, error)

	// Close logs out and releases the connection.
	Close() error
}

// Dialer opens sessions for mailboxes.
type Dialer interface {
	Dial(ctx context.Context, mb model.Mailbox) (Session, error)
}

// NetDialer is the production Dialer backed by imapclient.
type NetDialer struct{}

// Dial connects to the mailbox's IMAP server (implicit TLS, or
// plaintext upgraded via STARTTLS) and authenticates. The caller is
// responsible for calling Close on the returned session.
func (NetDialer) Dial(_ context.Context, mb model.Mailbox) (Session, error) {
	addr := fmt.Sprintf("%s:%d", mb.IMAPHost, mb.IMAPPort)

	var client *imapclient.Client
	var err error

	if mb.IMAPTLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, &AuthError{
			Mailbox: mb.Name,
			Message: fmt.Sprintf("connecting to %s: %v", addr, err),
		}
	}

	if err := client.Login(mb.IMAPUsername, mb.IMAPPassword).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{
			Mailbox: mb.Name,
			Message: fmt.Sprintf("authentication failed for %s: %v", mb.IMAPUsername, err),
		}
	}

	return &session{client: client}, nil
}

// session implements Session over an imapclient connection.
type session struct {
	client *imapclient.Client
}

func (s *session) ListFolders() ([]string, error) {
	listCmd := s.client.List("", "*", nil)

	mailboxes, err := listCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	folders := make([]string, 0, len(mailboxes))
	for _, m := range mailboxes {
		folders = append(folders, m.Mailbox)
	}
	return folders, nil
}

func (s *session) SelectReadOnly(folder string) error {
	opts := &imap.SelectOptions{ReadOnly: true}
	if _, err := s.client.Select(folder, opts).Wait(); err != nil {
		return fmt.Errorf("selecting folder %q: %w", folder, err)
	}
	return nil
}

func (s *session) SearchAfter(mark uint32) ([]uint32, error) {
	// Open-ended UID range (mark+1):* above the high-water mark.
	uidSet := imap.UIDSet{imap.UIDRange{Start: imap.UID(mark + 1), Stop: 0}}
	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{uidSet},
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching UIDs above %d: %w", mark, err)
	}

	var uids []uint32
	for _, uid := range data.AllUIDs() {
		// Servers may interpret n:* as including the last message even
		// when its UID is below n; filter those out.
		if uint32(uid) > mark {
			uids = append(uids, uint32(uid))
		}
	}
	return uids, nil
}

func (s *session) FetchRaw(uid uint32) ([]byte, error) {
	uidSet := imap.UIDSetNum(imap.UID(uid))

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message data: %w", err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body section", uid)
	}

	if err := fetchCmd.Close(); err != nil {
		return raw, fmt.Errorf("closing fetch: %w", err)
	}

	return raw, nil
}

func (s *session) Close() error {
	return s.client.Logout().Wait()
}
