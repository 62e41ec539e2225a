// Package email defines the message model shared by the composer, the
// packager and the .eml reader.
package email

import (
	"fmt"
	"net/mail"
	"strings"
)

// Message is one recipient's email, built once and serialized once.
type Message struct {
	// Recipient is the recipient identifier the message was grouped under,
	// verbatim. It names the message's file; empty falls back to To.Email.
	Recipient   string
	From        Address
	To          Address
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment is a MIME part referenced from the HTML body or attached to it.
type Attachment struct {
	// ContentID is the bare Content-ID (no angle brackets). Unique within
	// one message.
	ContentID   string
	Filename    string
	ContentType string
	Content     []byte
	Inline      bool
}

// Address is a mailbox with an optional display name.
type Address struct {
	Name  string `json:"name,omitempty" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// String formats the address as `Name <email>` or just `email`.
func (a Address) String() string {
	if a.Name != "" {
		return fmt.Sprintf("%s <%s>", a.Name, a.Email)
	}
	return a.Email
}

// Domain returns the domain part of the address, or "localhost".
func (a Address) Domain() string {
	if idx := strings.LastIndex(a.Email, "@"); idx >= 0 && idx < len(a.Email)-1 {
		return a.Email[idx+1:]
	}
	return "localhost"
}

// ParseAddress parses an RFC 5322 address such as
// `Pixel the Pixel <noreply@ebouqets.com>`. Strings that are not valid
// addresses are kept verbatim as the email part.
func ParseAddress(s string) Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}
	}
	parsed, err := mail.ParseAddress(s)
	if err != nil {
		return Address{Email: s}
	}
	return Address{Name: parsed.Name, Email: parsed.Address}
}

// InlineAttachments returns the attachments flagged inline, in order.
func (m *Message) InlineAttachments() []Attachment {
	var out []Attachment
	for _, att := range m.Attachments {
		if att.Inline {
			out = append(out, att)
		}
	}
	return out
}
