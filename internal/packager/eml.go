package packager

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/shineum/ebouqets/internal/email"
)

// Serialize writes msg as an RFC 5322 message. The HTML body is a
// quoted-printable UTF-8 part; inline attachments are base64 parts inside a
// multipart/related container and are referenced by Content-Id. The result
// is plain ASCII and is stored without further re-encoding.
func (p *Packager) Serialize(msg *email.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.writeMessage(&buf, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPackaging, msg.To.Email, err)
	}
	return buf.Bytes(), nil
}

func (p *Packager) writeMessage(w io.Writer, msg *email.Message) error {
	var h mail.Header
	h.SetDate(p.now())
	h.SetSubject(msg.Subject)
	setAddress(&h, "From", msg.From)
	setAddress(&h, "To", msg.To)
	h.SetMessageID(p.newID() + "@" + msg.From.Domain())
	h.AddRaw([]byte("MIME-Version: 1.0\r\n"))

	if len(msg.Attachments) == 0 {
		setHTMLHeader(&h.Header)
		mw, err := message.CreateWriter(w, h.Header)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(mw, msg.HTMLBody); err != nil {
			return err
		}
		return mw.Close()
	}

	h.SetContentType("multipart/related", map[string]string{"type": "text/html"})
	mw, err := message.CreateWriter(w, h.Header)
	if err != nil {
		return err
	}

	var bh message.Header
	setHTMLHeader(&bh)
	if err := writePart(mw, bh, []byte(msg.HTMLBody)); err != nil {
		return fmt.Errorf("html part: %w", err)
	}

	for _, att := range msg.Attachments {
		if err := writePart(mw, attachmentHeader(att), att.Content); err != nil {
			return fmt.Errorf("attachment %s: %w", att.ContentID, err)
		}
	}

	return mw.Close()
}

func setHTMLHeader(h *message.Header) {
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
}

func attachmentHeader(att email.Attachment) message.Header {
	var h message.Header
	params := map[string]string{}
	if att.Filename != "" {
		params["name"] = att.Filename
	}
	h.SetContentType(att.ContentType, params)
	h.Set("Content-Transfer-Encoding", "base64")

	disposition := "attachment"
	if att.Inline {
		disposition = "inline"
	}
	var dparams map[string]string
	if att.Filename != "" {
		dparams = map[string]string{"filename": att.Filename}
	}
	h.SetContentDisposition(disposition, dparams)
	if att.ContentID != "" {
		h.Set("Content-Id", "<"+att.ContentID+">")
	}
	return h
}

func writePart(mw *message.Writer, h message.Header, body []byte) error {
	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := pw.Write(body); err != nil {
		return err
	}
	return pw.Close()
}

// setAddress writes an address header. Values that are not mail addresses,
// such as "Unknown Recipient", are written as plain text.
func setAddress(h *mail.Header, key string, a email.Address) {
	if a.Email == "" {
		return
	}
	if !strings.Contains(a.Email, "@") {
		h.SetText(key, a.String())
		return
	}
	h.SetAddressList(key, []*mail.Address{{Name: a.Name, Address: a.Email}})
}
