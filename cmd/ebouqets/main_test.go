package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shineum/ebouqets/internal/config"
	"github.com/shineum/ebouqets/internal/email"
	"github.com/shineum/ebouqets/internal/packager"
	"github.com/shineum/ebouqets/internal/sink/dir"
	s3sink "github.com/shineum/ebouqets/internal/sink/s3"
	"github.com/shineum/ebouqets/internal/sink/stdout"
	"github.com/shineum/ebouqets/internal/state"
)

func testMessage(to string, withBouquet bool) *email.Message {
	msg := &email.Message{
		From:     email.Address{Name: "Pixel the Pixel", Email: "noreply@ebouqets.com"},
		To:       email.ParseAddress(to),
		Subject:  "A Valentine's Day Surprise for You! <3",
		HTMLBody: "<p>Dear you,</p>",
	}
	if withBouquet {
		msg.Attachments = []email.Attachment{{
			ContentID:   "bouquet-1@ebouqets.com",
			Filename:    "bouquet.jpg",
			ContentType: "image/jpeg",
			Content:     []byte{0xff, 0xd8, 0xff, 0xd9},
			Inline:      true,
		}}
	}
	return msg
}

func writeArtifact(t *testing.T, msgs ...*email.Message) string {
	t.Helper()
	p := packager.New(packager.WithClock(func() time.Time {
		return time.Date(2026, time.February, 14, 9, 0, 0, 0, time.UTC)
	}))
	art, err := p.Package(msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), art.Filename)
	if err := os.WriteFile(path, art.Data, 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return path
}

func TestHandleInspect_Single(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, testMessage("Alice <a@x.com>", true))

	var out bytes.Buffer
	if err := handleInspect(&out, []string{path}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"a_x_com.eml",
		"To:      Alice <a@x.com>",
		"Subject: A Valentine's Day Surprise for You! <3",
		"inline image/jpeg bouquet.jpg <bouquet-1@ebouqets.com> 4 bytes",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "<p>Dear you,</p>") {
		t.Error("body printed without --body")
	}
}

func TestHandleInspect_ArchiveWithBody(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, testMessage("a@x.com", false), testMessage("b@x.com", false))

	var out bytes.Buffer
	if err := handleInspect(&out, []string{"--body", path}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	if n := strings.Count(got, "== "); n != 2 {
		t.Errorf("messages printed: got %d, want 2", n)
	}
	for _, want := range []string{"a_x_com.eml", "b_x_com.eml", "<p>Dear you,</p>"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestHandleInspect_Errors(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := handleInspect(&out, nil); !errors.Is(err, errNoFiles) {
		t.Errorf("no args: got %v, want errNoFiles", err)
	}
	if err := handleInspect(&out, []string{filepath.Join(t.TempDir(), "missing.eml")}); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestBuildFlagsApply(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromFile(writeConfig(t, "output:\n  sink: dir\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := buildFlags{sink: "stdout", out: "elsewhere", extract: true, concurrency: 4}
	if err := f.apply(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Output.Sink != config.SinkStdout {
		t.Errorf("sink: got %q, want %q", cfg.Output.Sink, config.SinkStdout)
	}
	if cfg.Output.Dir != "elsewhere" || !cfg.Output.Extract {
		t.Errorf("output: got %+v", cfg.Output)
	}
	if cfg.Pipeline.Concurrency != 4 {
		t.Errorf("concurrency: got %d, want 4", cfg.Pipeline.Concurrency)
	}

	if err := (buildFlags{sink: "carrier-pigeon"}).apply(cfg); err == nil {
		t.Error("expected error for unknown sink, got nil")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return path
}

func TestSelectSink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sink string
		want string
	}{
		{sink: config.SinkStdout, want: (&stdout.Sink{}).Name()},
		{sink: config.SinkDir, want: dir.New("", false).Name()},
		{sink: config.SinkS3, want: (&s3sink.Sink{}).Name()},
	}

	for _, tt := range tests {
		cfg := &config.Config{}
		cfg.Output.Sink = tt.sink
		cfg.Output.S3URL = "s3://bucket/prefix"
		cfg.S3.Region = "us-east-1"
		s, err := selectSink(context.Background(), cfg)
		if err != nil {
			t.Fatalf("selectSink(%q): unexpected error: %v", tt.sink, err)
		}
		if s.Name() != tt.want {
			t.Errorf("selectSink(%q): got %q, want %q", tt.sink, s.Name(), tt.want)
		}
	}
}

func TestOpenPersister(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Store.Dir = t.TempDir()
	c := &components{}

	cfg.Store.Backend = config.StoreMemory
	p, err := c.openPersister(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*state.MemoryPersister); !ok {
		t.Errorf("memory backend: got %T", p)
	}

	cfg.Store.Backend = config.StoreFile
	p, err = c.openPersister(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*state.FilePersister); !ok {
		t.Errorf("file backend: got %T", p)
	}

	cfg.Store.Backend = "etcd"
	if _, err := c.openPersister(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown backend, got nil")
	}
}
