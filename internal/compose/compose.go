// Package compose renders one recipient's order rows into an HTML email
// with the bouquet embedded as an inline attachment.
package compose

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"

	"github.com/shineum/ebouqets/internal/bouquet"
	"github.com/shineum/ebouqets/internal/email"
	"github.com/shineum/ebouqets/internal/flower"
	"github.com/shineum/ebouqets/internal/order"
)

// Defaults for the sender and subject.
const (
	DefaultFrom        = "Pixel the Pixel <noreply@ebouqets.com>"
	DefaultSubject     = "A Valentine's Day Surprise for You! <3"
	DefaultHeaderImage = "https://9j5dvt8v5a4l4xi0.public.blob.vercel-storage.com/shares/ift1xb3j.png"

	bouquetFilename = "bouquet.jpg"
)

// ErrRender is returned when the email template fails to execute.
var ErrRender = errors.New("compose: render failed")

//go:embed templates/email.html.tmpl
var templateFS embed.FS

// Config controls the fixed parts of every email.
type Config struct {
	From           email.Address
	Subject        string
	HeaderImageURL string
	// PublicAssetURL, when set, is prefixed to catalog locators to show a
	// per-message flower thumbnail.
	PublicAssetURL string
}

func (c *Config) applyDefaults() {
	if c.From.Email == "" {
		c.From = email.ParseAddress(DefaultFrom)
	}
	if c.Subject == "" {
		c.Subject = DefaultSubject
	}
	if c.HeaderImageURL == "" {
		c.HeaderImageURL = DefaultHeaderImage
	}
}

// Composer builds per-recipient HTML bodies and messages.
type Composer struct {
	cfg     Config
	catalog *flower.Catalog
	tmpl    *template.Template
	newID   func() string
}

// New parses the email template and returns a Composer.
func New(cfg Config, catalog *flower.Catalog) (*Composer, error) {
	cfg.applyDefaults()
	if catalog == nil {
		catalog = flower.Default()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/email.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email template: %w", err)
	}
	return &Composer{
		cfg:     cfg,
		catalog: catalog,
		tmpl:    tmpl,
		newID:   uuid.NewString,
	}, nil
}

// Sender returns the configured From address.
func (c *Composer) Sender() email.Address {
	return c.cfg.From
}

type messageView struct {
	FlowerType string
	Text       string
	Thumbnail  template.URL
}

type emailView struct {
	HeaderImage template.URL
	Greeting    string
	Bouquet     template.URL
	Messages    []messageView
}

// Compose renders the body for recipient and returns it with its
// attachments. A nil img yields no attachment and no bouquet block. The
// content ID is fresh on every call; everything else is a pure function of
// the arguments.
func (c *Composer) Compose(recipient string, rows []order.Row, img *bouquet.Image) (string, []email.Attachment, error) {
	var attachments []email.Attachment
	var src template.URL
	if img != nil {
		cid := c.contentID()
		attachments = append(attachments, email.Attachment{
			ContentID:   cid,
			Filename:    bouquetFilename,
			ContentType: img.ContentType,
			Content:     img.Data,
			Inline:      true,
		})
		src = template.URL("cid:" + cid)
	}

	html, err := c.render(order.Group{Recipient: recipient, Rows: rows}, src)
	if err != nil {
		return "", nil, err
	}
	return html, attachments, nil
}

// Preview renders the body with the bouquet inlined as a data URL, for
// display in a browser.
func (c *Composer) Preview(g order.Group, img *bouquet.Image) (string, error) {
	var src template.URL
	if img != nil {
		src = template.URL(img.DataURL())
	}
	return c.render(g, src)
}

// Message builds the complete message for one recipient group.
func (c *Composer) Message(g order.Group, img *bouquet.Image) (*email.Message, error) {
	html, attachments, err := c.Compose(g.Recipient, g.Rows, img)
	if err != nil {
		return nil, err
	}

	to := email.ParseAddress(g.Recipient)
	if to.Name == "" {
		if name := g.DisplayName(); name != g.Recipient {
			to.Name = name
		}
	}

	return &email.Message{
		Recipient:   g.Recipient,
		From:        c.cfg.From,
		To:          to,
		Subject:     c.cfg.Subject,
		HTMLBody:    html,
		Attachments: attachments,
	}, nil
}

func (c *Composer) render(g order.Group, bouquetSrc template.URL) (string, error) {
	view := emailView{
		HeaderImage: template.URL(c.cfg.HeaderImageURL),
		Greeting:    g.DisplayName(),
		Bouquet:     bouquetSrc,
		Messages:    make([]messageView, 0, len(g.Rows)),
	}
	for _, row := range g.Rows {
		view.Messages = append(view.Messages, messageView{
			FlowerType: row.FlowerType,
			Text:       row.Message,
			Thumbnail:  c.thumbnail(row),
		})
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.String(), nil
}

// thumbnail resolves the row's first flower to a public image URL.
func (c *Composer) thumbnail(row order.Row) template.URL {
	if c.cfg.PublicAssetURL == "" {
		return ""
	}
	for name := range flower.Names(row.FlowerType) {
		if loc, ok := c.catalog.Resolve(name); ok {
			return template.URL(strings.TrimRight(c.cfg.PublicAssetURL, "/") + loc)
		}
	}
	return ""
}

func (c *Composer) contentID() string {
	return "bouquet-" + c.newID() + "@" + c.cfg.From.Domain()
}
