package ingest

import (
	"reflect"
	"testing"
)

func TestIsJunkFolder(t *testing.T) {
	tests := []struct {
		name   string
		folder string
		want   bool
	}{
		{"plain junk", "Junk", true},
		{"junk email", "Junk E-Mail", true},
		{"spam", "Spam", true},
		{"nested spam", "INBOX.Spam", true},
		{"mixed case", "sPaM", true},
		{"inbox", "INBOX", false},
		{"sent", "Sent", false},
		{"archive", "Archive", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isJunkFolder(tt.folder); got != tt.want {
				t.Errorf("isJunkFolder(%q) = %v, want %v", tt.folder, got, tt.want)
			}
		})
	}
}

func TestNormalizeFolder(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"INBOX", "inbox"},
		{"INBOX.Archive", "inboxarchive"},
		{"  Sent  ", "sent"},
		{"INBOX.Sub.Deep", "inboxsubdeep"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeFolder(tt.in); got != tt.want {
			t.Errorf("normalizeFolder(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFilterFolders(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "drops junk keeps rest",
			in:   []string{"INBOX", "Sent", "Junk", "Spam", "Archive"},
			want: []string{"INBOX", "Sent", "Archive"},
		},
		{
			name: "injects inbox when missing",
			in:   []string{"Sent", "Drafts"},
			want: []string{"INBOX", "Sent", "Drafts"},
		},
		{
			name: "keeps lowercase inbox without injecting",
			in:   []string{"inbox", "Sent"},
			want: []string{"inbox", "Sent"},
		},
		{
			name: "empty list still yields inbox",
			in:   nil,
			want: []string{"INBOX"},
		},
		{
			name: "blank names dropped",
			in:   []string{"", "  ", "INBOX"},
			want: []string{"INBOX"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterFolders(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("filterFolders(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
