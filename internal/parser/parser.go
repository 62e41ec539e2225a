// Package parser reads .eml files back into the message model. The build
// pipeline never needs it; it backs the inspect command and round-trip
// checks on generated packages.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/shineum/ebouqets/internal/email"
)

// Parsed is a decoded message plus the headers the model does not carry.
type Parsed struct {
	email.Message
	MessageID string
	Date      time.Time
}

// Parse decodes a raw RFC 5322 message. The first text/html part becomes
// the body; every other leaf part is returned as an attachment with its
// Content-Id and disposition.
func Parse(raw []byte) (*Parsed, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	h := mail.Header{Header: entity.Header}
	result := &Parsed{}
	result.Subject, _ = h.Subject()
	result.MessageID, _ = h.MessageID()
	result.Date, _ = h.Date()
	result.From = firstAddress(h, "From")
	result.To = firstAddress(h, "To")

	if mr := entity.MultipartReader(); mr != nil {
		if err := parseMultipart(mr, result); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return result, nil
	}

	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	mediaType, _, _ := entity.Header.ContentType()
	if mediaType != "" && mediaType != "text/html" {
		slog.Warn("unexpected top-level content type", "content_type", mediaType)
	}
	result.HTMLBody = string(body)
	return result, nil
}

func parseMultipart(mr message.MultipartReader, result *Parsed) error {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		if nested := part.MultipartReader(); nested != nil {
			if err := parseMultipart(nested, result); err != nil {
				slog.Warn("failed to parse nested multipart", "error", err)
			}
			continue
		}

		content, err := io.ReadAll(part.Body)
		if err != nil {
			slog.Warn("failed to read part content", "error", err)
			continue
		}

		mediaType, params, _ := part.Header.ContentType()
		disposition, dparams, _ := part.Header.ContentDisposition()

		if mediaType == "text/html" && disposition != "attachment" && result.HTMLBody == "" {
			result.HTMLBody = string(content)
			continue
		}

		filename := dparams["filename"]
		if filename == "" {
			filename = params["name"]
		}
		result.Attachments = append(result.Attachments, email.Attachment{
			ContentID:   strings.Trim(part.Header.Get("Content-Id"), "<> "),
			Filename:    filename,
			ContentType: mediaType,
			Content:     content,
			Inline:      disposition == "inline",
		})
	}
}

func firstAddress(h mail.Header, key string) email.Address {
	list, err := h.AddressList(key)
	if err == nil && len(list) > 0 {
		return email.Address{Name: list[0].Name, Email: list[0].Address}
	}
	text, _ := h.Text(key)
	return email.Address{Email: text}
}
