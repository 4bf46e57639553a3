// Package credential stores mailbox passwords in the system keyring so
// they never have to live in the config file.
package credential

import (
	"fmt"

	"github.com/99designs/keyring"

	"github.com/printdesk/printdesk/internal/model"
)

const serviceName = "printdesk"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/printdesk/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("printdesk-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// IMAPKey returns the keyring key for a mailbox's IMAP password.
func IMAPKey(mailboxName string) string {
	return mailboxName + "-imap"
}

// SMTPKey returns the keyring key for a mailbox's SMTP password.
func SMTPKey(mailboxName string) string {
	return mailboxName + "-smtp"
}

// FillPasswords resolves empty mailbox passwords from the keyring.
// Passwords already present in the config take precedence.
func FillPasswords(mb *model.Mailbox) error {
	if mb.IMAPPassword == "" {
		pw, err := Get(IMAPKey(mb.Name))
		if err != nil {
			return fmt.Errorf("resolving IMAP password for %q: %w", mb.Name, err)
		}
		mb.IMAPPassword = pw
	}
	if mb.SMTPPassword == "" {
		pw, err := Get(SMTPKey(mb.Name))
		if err != nil {
			return fmt.Errorf("resolving SMTP password for %q: %w", mb.Name, err)
		}
		mb.SMTPPassword = pw
	}
	return nil
}
