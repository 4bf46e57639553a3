package ingest

import (
	"strings"
	"testing"
)

// crlf rewrites test fixtures to the wire line endings.
func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "Invoice 1234", "Invoice 1234"},
		{"utf8 base64", "=?UTF-8?B?SGVsbG8gV29ybGQ=?=", "Hello World"},
		{"latin1 quoted printable", "=?ISO-8859-1?Q?caf=E9?=", "café"},
		{"nul bytes stripped", "order\x00 42", "order 42"},
		{"surrounding space trimmed", "  subject  ", "subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeHeader(tt.in); got != tt.want {
				t.Errorf("decodeHeader(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseMessageSimple(t *testing.T) {
	raw := crlf(`From: Customer <customer@example.com>
To: shop@example.com
Subject: Business cards order
Message-Id: <abc123@example.com>
Date: Mon, 02 Jan 2023 15:04:05 +0200
Content-Type: text/plain; charset=utf-8

Please print 500 business cards.
`)

	parsed, err := parseMessage(raw)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}

	if parsed.Subject != "Business cards order" {
		t.Errorf("Subject = %q", parsed.Subject)
	}
	if !strings.Contains(parsed.From, "customer@example.com") {
		t.Errorf("From = %q", parsed.From)
	}
	if parsed.MessageID != "<abc123@example.com>" {
		t.Errorf("MessageID = %q", parsed.MessageID)
	}
	if !parsed.HasDate {
		t.Fatal("HasDate = false, want true")
	}
	if parsed.Date.UTC().Hour() != 13 {
		t.Errorf("Date = %v, want 13:04:05 UTC", parsed.Date.UTC())
	}
	if parsed.Body != "Please print 500 business cards." {
		t.Errorf("Body = %q", parsed.Body)
	}
	if len(parsed.FileParts) != 0 {
		t.Errorf("FileParts = %d, want 0", len(parsed.FileParts))
	}
}

func TestParseMessageNoDate(t *testing.T) {
	raw := crlf(`From: a@example.com
Subject: no date here
Content-Type: text/plain

body
`)

	parsed, err := parseMessage(raw)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if parsed.HasDate {
		t.Error("HasDate = true for message without Date header")
	}
}

func TestParseMessageGarbageDate(t *testing.T) {
	raw := crlf(`From: a@example.com
Subject: bad date
Date: not a date at all
Content-Type: text/plain

body
`)

	parsed, err := parseMessage(raw)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if parsed.HasDate {
		t.Error("HasDate = true for unparseable Date header")
	}
}

func TestParseMessageMultipartAttachments(t *testing.T) {
	raw := crlf(`From: customer@example.com
To: shop@example.com
Subject: artwork
Message-Id: <art@example.com>
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="BOUNDARY"

--BOUNDARY
Content-Type: text/plain; charset=utf-8

See attached artwork.
--BOUNDARY
Content-Type: application/pdf
Content-Disposition: attachment; filename="flyer.pdf"

%PDF-fake-payload
--BOUNDARY
Content-Type: application/pdf
Content-Disposition: attachment; filename="flyer.pdf"

%PDF-duplicate-name
--BOUNDARY
Content-Type: application/octet-stream
Content-Disposition: attachment

anonymous-bytes
--BOUNDARY
Content-Type: image/png
Content-Disposition: attachment; filename="empty.png"

--BOUNDARY--
`)

	parsed, err := parseMessage(raw)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}

	if parsed.Body != "See attached artwork." {
		t.Errorf("Body = %q", parsed.Body)
	}

	if len(parsed.FileParts) != 2 {
		t.Fatalf("FileParts = %d, want 2", len(parsed.FileParts))
	}

	// Duplicate filenames collapse to the first occurrence.
	if parsed.FileParts[0].Filename != "flyer.pdf" {
		t.Errorf("FileParts[0].Filename = %q", parsed.FileParts[0].Filename)
	}
	if string(parsed.FileParts[0].Data) != "%PDF-fake-payload" {
		t.Errorf("FileParts[0].Data = %q", parsed.FileParts[0].Data)
	}

	// Attachments with no filename get the placeholder name.
	if parsed.FileParts[1].Filename != "unknown_filename" {
		t.Errorf("FileParts[1].Filename = %q", parsed.FileParts[1].Filename)
	}
}

func TestParseMessageUnreadableHeaders(t *testing.T) {
	if _, err := parseMessage([]byte("not a message")); err == nil {
		t.Error("expected error for raw bytes with no header block")
	}
}
