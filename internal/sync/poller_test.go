package sync

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/printdesk/printdesk/internal/imapx"
	"github.com/printdesk/printdesk/internal/ingest"
	"github.com/printdesk/printdesk/internal/model"
	"github.com/printdesk/printdesk/tests/testutil"
)

// emptySession is an imapx.Session over a mailbox with no new mail.
type emptySession struct{}

func (emptySession) ListFolders() ([]string, error)       { return []string{"INBOX"}, nil }
func (emptySession) SelectReadOnly(string) error          { return nil }
func (emptySession) SearchAfter(uint32) ([]uint32, error) { return nil, nil }
func (emptySession) FetchRaw(uint32) ([]byte, error)      { return nil, nil }
func (emptySession) Close() error                         { return nil }

// stubDialer hands out a fresh session per dial, or fails every dial
// with err. Fresh sessions keep concurrent mailbox goroutines apart.
type stubDialer struct {
	err error
}

func (d stubDialer) Dial(context.Context, model.Mailbox) (imapx.Session, error) {
	if d.err != nil {
		return nil, d.err
	}
	return emptySession{}, nil
}

// newTestPoller builds a poller over freshly registered mailboxes with
// an interval long enough that only explicit triggers and the initial
// run ever fire during a test.
func newTestPoller(t *testing.T, dialer imapx.Dialer, names ...string) *Poller {
	t.Helper()

	st := testutil.NewTestStore(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	var mailboxes []model.Mailbox
	for _, name := range names {
		mb, err := st.UpsertMailbox(context.Background(), model.Mailbox{
			Name:     name,
			IMAPHost: "imap.example.com",
			IMAPPort: 993,
		})
		if err != nil {
			t.Fatalf("upserting mailbox %q: %v", name, err)
		}
		mailboxes = append(mailboxes, mb)
	}

	engine := ingest.New(st, dialer, ingest.DirMedia{Root: t.TempDir()}, log, nil)
	return New(engine, log, time.Hour, mailboxes)
}

func waitResult(t *testing.T, p *Poller) Result {
	t.Helper()
	select {
	case r := <-p.Results():
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a poll result")
		return Result{}
	}
}

func TestPollerRunsEveryMailboxOnStart(t *testing.T) {
	p := newTestPoller(t, stubDialer{}, "Front Desk", "Orders")
	p.Start()
	defer p.Stop()

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		r := waitResult(t, p)
		if r.Err != nil {
			t.Errorf("run for %q failed: %v", r.Mailbox, r.Err)
		}
		seen[r.Mailbox] = true
	}
	if !seen["Front Desk"] || !seen["Orders"] {
		t.Fatalf("initial runs covered %v, want both mailboxes", seen)
	}

	for _, s := range p.Statuses() {
		if s.State != RunIdle {
			t.Errorf("mailbox %q state = %d, want idle", s.Mailbox, s.State)
		}
		if s.LastRun.IsZero() {
			t.Errorf("mailbox %q has no LastRun", s.Mailbox)
		}
	}
}

func TestPollerTriggerTargetsOneMailbox(t *testing.T) {
	p := newTestPoller(t, stubDialer{}, "Front Desk", "Orders")
	p.Start()
	defer p.Stop()

	// Drain the initial run of each mailbox.
	waitResult(t, p)
	waitResult(t, p)

	p.Trigger("Orders")
	if r := waitResult(t, p); r.Mailbox != "Orders" {
		t.Fatalf("trigger ran %q, want %q", r.Mailbox, "Orders")
	}

	p.Trigger("Front Desk")
	if r := waitResult(t, p); r.Mailbox != "Front Desk" {
		t.Fatalf("trigger ran %q, want %q", r.Mailbox, "Front Desk")
	}

	// Unknown names are ignored rather than queued for anyone.
	p.Trigger("No Such Mailbox")

	p.TriggerAll()
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[waitResult(t, p).Mailbox] = true
	}
	if !seen["Front Desk"] || !seen["Orders"] {
		t.Fatalf("TriggerAll ran %v, want both mailboxes", seen)
	}
}

func TestPollerAuthFailureStatus(t *testing.T) {
	dialer := stubDialer{err: &imapx.AuthError{Mailbox: "Front Desk", Message: "login rejected"}}
	p := newTestPoller(t, dialer, "Front Desk")
	p.Start()
	defer p.Stop()

	r := waitResult(t, p)
	if !r.AuthFailed {
		t.Error("result not flagged as auth failure")
	}
	if !imapx.IsAuthError(r.Err) {
		t.Errorf("result error not an auth error: %v", r.Err)
	}

	statuses := p.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("got %d statuses, want 1", len(statuses))
	}
	if statuses[0].State != RunAuthError {
		t.Errorf("state = %d, want auth error state", statuses[0].State)
	}
	if statuses[0].Error == nil {
		t.Error("status error not recorded")
	}
}
