package ingest

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Media stores attachment payloads and returns the media-relative
// path they were written to.
type Media interface {
	SaveAttachment(mailboxName, filename string, data []byte) (string, error)
}

// DirMedia writes attachments under a local media root. The layout
// attachments/<mailbox name with spaces as underscores>/<filename> is
// externally observable and must not change.
type DirMedia struct {
	Root string
}

// SaveAttachment writes one attachment payload to disk.
func (m DirMedia) SaveAttachment(mailboxName, filename string, data []byte) (string, error) {
	// Strip any directory components a hostile filename may carry.
	filename = filepath.Base(filename)
	if filename == "." || filename == string(filepath.Separator) {
		filename = "unknown_filename"
	}

	rel := path.Join("attachments", strings.ReplaceAll(mailboxName, " ", "_"), filename)
	full := filepath.Join(m.Root, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating attachment directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("writing attachment %s: %w", filename, err)
	}

	return rel, nil
}
