package credential

import (
	"testing"

	"github.com/printdesk/printdesk/internal/model"
)

func TestKeyNaming(t *testing.T) {
	if got := IMAPKey("Front Desk"); got != "Front Desk-imap" {
		t.Errorf("IMAPKey = %q", got)
	}
	if got := SMTPKey("Front Desk"); got != "Front Desk-smtp" {
		t.Errorf("SMTPKey = %q", got)
	}
}

func TestFillPasswordsPrefersConfigValues(t *testing.T) {
	// Both passwords present in config; the keyring must not be
	// consulted, so this passes even without a system keyring.
	mb := &model.Mailbox{
		Name:         "Front Desk",
		IMAPPassword: "imap-secret",
		SMTPPassword: "smtp-secret",
	}

	if err := FillPasswords(mb); err != nil {
		t.Fatalf("FillPasswords: %v", err)
	}
	if mb.IMAPPassword != "imap-secret" || mb.SMTPPassword != "smtp-secret" {
		t.Errorf("config passwords overwritten: %+v", mb)
	}
}
