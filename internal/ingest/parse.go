package ingest

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// filePart is an attachment candidate extracted from a MIME walk.
type filePart struct {
	Filename string
	Data     []byte
}

// parsedMessage is the normalized view of one raw message.
type parsedMessage struct {
	Subject   string
	From      string
	To        string
	MessageID string
	Body      string
	Date      time.Time
	HasDate   bool
	FileParts []filePart
}

// sanitize strips NUL bytes and surrounding whitespace.
func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// decodeHeader decodes a MIME encoded-word header (e.g. "=?UTF-8?B?...?=")
// charset-aware, falling back to the raw value when decoding fails.
func decodeHeader(field string) string {
	if field == "" {
		return ""
	}

	decoder := &mime.WordDecoder{CharsetReader: charset.Reader}
	decoded, err := decoder.DecodeHeader(field)
	if err != nil {
		return sanitize(field)
	}
	return sanitize(decoded)
}

// parseMessage extracts headers, the plain-text body, and attachment
// candidates from a raw RFC 822 message. Header and body problems
// degrade to safe defaults; only a completely unreadable header block
// is an error.
func parseMessage(raw []byte) (*parsedMessage, error) {
	msg, err := netmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("reading message headers: %w", err)
	}

	parsed := &parsedMessage{
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		From:      decodeHeader(msg.Header.Get("From")),
		To:        decodeHeader(msg.Header.Get("To")),
		MessageID: sanitize(msg.Header.Get("Message-Id")),
	}

	if dateHeader := msg.Header.Get("Date"); dateHeader != "" {
		if t, err := netmail.ParseDate(dateHeader); err == nil {
			parsed.Date = t
			parsed.HasDate = true
		}
	}

	body, fileParts := walkParts(raw, msg.Body)
	parsed.Body = body
	parsed.FileParts = fileParts

	return parsed, nil
}

// walkParts runs the MIME walk over the full raw message, returning
// the first inline text/plain part as the body plus every part that
// carries a filename. When the message cannot be parsed as MIME, the
// raw payload after the headers becomes the body.
func walkParts(raw []byte, fallbackBody io.Reader) (string, []filePart) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Not MIME we can walk; treat the payload as plain text.
		data, readErr := io.ReadAll(fallbackBody)
		if readErr != nil {
			return "", nil
		}
		return sanitize(string(data)), nil
	}
	defer mr.Close()

	var body string
	var fileParts []filePart
	seen := make(map[string]bool)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed part never aborts the message.
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			if body == "" && strings.HasPrefix(contentType, "text/plain") {
				data, readErr := io.ReadAll(part.Body)
				if readErr != nil {
					continue
				}
				body = sanitize(string(data))
				continue
			}

			// Inline parts that still carry a filename are treated as
			// attachments, matching servers that skip the disposition.
			if filename, err := (&mail.AttachmentHeader{Header: h.Header}).Filename(); err == nil && filename != "" {
				if fp, ok := readFilePart(filename, part.Body, seen); ok {
					fileParts = append(fileParts, fp)
				}
			}

		case *mail.AttachmentHeader:
			filename, err := h.Filename()
			if err != nil || filename == "" {
				filename = "unknown_filename"
			}
			if fp, ok := readFilePart(filename, part.Body, seen); ok {
				fileParts = append(fileParts, fp)
			}
		}
	}

	return body, fileParts
}

// readFilePart reads one attachment payload, deduplicating by filename
// within the message and dropping empty payloads.
func readFilePart(filename string, r io.Reader, seen map[string]bool) (filePart, bool) {
	filename = sanitize(filename)
	if filename == "" {
		filename = "unknown_filename"
	}
	if seen[filename] {
		return filePart{}, false
	}

	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return filePart{}, false
	}

	seen[filename] = true
	return filePart{Filename: filename, Data: data}, true
}
