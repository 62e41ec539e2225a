// Package packager serializes composed messages into .eml bytes and bundles
// several of them into a ZIP archive.
package packager

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/ebouqets/internal/email"
)

const (
	DefaultArchiveName = "ebouqets-emails.zip"

	ContentTypeEML = "message/rfc822"
	ContentTypeZIP = "application/zip"
)

var (
	ErrNoMessages = errors.New("packager: no messages")
	ErrPackaging  = errors.New("packager: packaging failed")
)

// Artifact is the downloadable result of a packaging run.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
	// Entries lists the archive entry names in order, or the single file
	// name for a lone message.
	Entries []string
}

// IsArchive reports whether the artifact bundles several messages.
func (a *Artifact) IsArchive() bool {
	return a.ContentType == ContentTypeZIP
}

// Packager turns messages into an Artifact.
type Packager struct {
	archiveName string
	now         func() time.Time
	newID       func() string
}

// Option configures a Packager.
type Option func(*Packager)

// WithArchiveName sets the file name used when several messages are bundled.
func WithArchiveName(name string) Option {
	return func(p *Packager) {
		if name != "" {
			p.archiveName = name
		}
	}
}

// WithClock overrides the clock used for Date headers and archive entries.
func WithClock(now func() time.Time) Option {
	return func(p *Packager) {
		p.now = now
	}
}

// WithIDGenerator overrides the Message-Id local part generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Packager) {
		p.newID = fn
	}
}

// New creates a Packager.
func New(opts ...Option) *Packager {
	p := &Packager{
		archiveName: DefaultArchiveName,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Package serializes msgs. One message yields a single .eml artifact; more
// yield a ZIP with one entry per message in input order. Nothing is
// returned on failure.
func (p *Packager) Package(msgs []*email.Message) (*Artifact, error) {
	switch len(msgs) {
	case 0:
		return nil, ErrNoMessages
	case 1:
		data, err := p.Serialize(msgs[0])
		if err != nil {
			return nil, err
		}
		name := SanitizeFilename(fileKey(msgs[0])) + ".eml"
		return &Artifact{
			Filename:    name,
			ContentType: ContentTypeEML,
			Data:        data,
			Entries:     []string{name},
		}, nil
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := EntryNames(msgs)
	modified := p.now()

	for i, msg := range msgs {
		data, err := p.Serialize(msg)
		if err != nil {
			return nil, err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     names[i],
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: create entry %s: %v", ErrPackaging, names[i], err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("%w: write entry %s: %v", ErrPackaging, names[i], err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: finalize archive: %v", ErrPackaging, err)
	}

	return &Artifact{
		Filename:    p.archiveName,
		ContentType: ContentTypeZIP,
		Data:        buf.Bytes(),
		Entries:     names,
	}, nil
}

// EntryNames returns the archive entry name for each message. Names that
// sanitize to the same value get _2, _3, ... suffixes.
func EntryNames(msgs []*email.Message) []string {
	names := make([]string, len(msgs))
	used := make(map[string]bool, len(msgs))
	for i, msg := range msgs {
		base := SanitizeFilename(fileKey(msg))
		name := base
		for n := 2; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		names[i] = name + ".eml"
	}
	return names
}

func fileKey(msg *email.Message) string {
	if msg.Recipient != "" {
		return msg.Recipient
	}
	return msg.To.Email
}

// SanitizeFilename replaces every byte outside [a-zA-Z0-9] with '_' and
// lower-cases the result.
func SanitizeFilename(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
