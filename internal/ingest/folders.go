package ingest

import "strings"

// junkFolders are never selected or searched. Matching is a
// case-insensitive substring check against the folder name.
var junkFolders = []string{"junk", "junk e-mail", "spam"}

// isJunkFolder reports whether a folder should be skipped entirely.
func isJunkFolder(name string) bool {
	lower := strings.ToLower(name)
	for _, junk := range junkFolders {
		if strings.Contains(lower, junk) {
			return true
		}
	}
	return false
}

// normalizeFolder produces the canonical stored folder name:
// lower-case, dots stripped, surrounding whitespace trimmed.
// "INBOX.Archive" and "inbox archive" variants collapse consistently.
func normalizeFolder(name string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ToLower(name), ".", ""))
}

// filterFolders drops junk folders and guarantees INBOX is present:
// some servers omit it from LIST output, so when no folder equals
// "INBOX" case-insensitively one is injected at the front.
func filterFolders(folders []string) []string {
	kept := make([]string, 0, len(folders))
	hasInbox := false

	for _, name := range folders {
		name = sanitize(name)
		if name == "" {
			continue
		}
		if isJunkFolder(name) {
			continue
		}
		if strings.EqualFold(name, "INBOX") {
			hasInbox = true
		}
		kept = append(kept, name)
	}

	if !hasInbox {
		kept = append([]string{"INBOX"}, kept...)
	}

	return kept
}
