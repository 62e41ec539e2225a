package main

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/shineum/ebouqets/internal/parser"
)

var errNoFiles = errors.New("no files given")

type inspectFlags struct {
	body  bool
	files []string
}

func parseInspectFlags(args []string) (inspectFlags, error) {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	var f inspectFlags
	fs.BoolVar(&f.body, "body", false, "Print the HTML body of each message")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	f.files = fs.Args()
	if len(f.files) == 0 {
		return f, errNoFiles
	}
	return f, nil
}

// handleInspect prints a summary of every .eml file and every .eml entry of
// every .zip file named in args.
func handleInspect(w io.Writer, args []string) error {
	f, err := parseInspectFlags(args)
	if err != nil {
		return err
	}

	for _, path := range f.files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		if !isZip(data) {
			if err := printMessage(w, path, data, f.body); err != nil {
				return err
			}
			continue
		}

		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return fmt.Errorf("failed to open archive %s: %w", path, err)
		}
		for _, entry := range zr.File {
			raw, err := readEntry(entry)
			if err != nil {
				return fmt.Errorf("failed to read %s in %s: %w", entry.Name, path, err)
			}
			if err := printMessage(w, filepath.Join(path, entry.Name), raw, f.body); err != nil {
				return err
			}
		}
	}
	return nil
}

func isZip(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func printMessage(w io.Writer, name string, raw []byte, body bool) error {
	msg, err := parser.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	fmt.Fprintf(w, "== %s\n", name)
	fmt.Fprintf(w, "From:    %s\n", msg.From)
	fmt.Fprintf(w, "To:      %s\n", msg.To)
	fmt.Fprintf(w, "Subject: %s\n", msg.Subject)
	if !msg.Date.IsZero() {
		fmt.Fprintf(w, "Date:    %s\n", msg.Date.Format("2006-01-02 15:04:05 -0700"))
	}
	fmt.Fprintf(w, "HTML:    %d bytes\n", len(msg.HTMLBody))
	for _, att := range msg.Attachments {
		disposition := "attachment"
		if att.Inline {
			disposition = "inline"
		}
		fmt.Fprintf(w, "  - %s %s %s <%s> %d bytes\n", disposition, att.ContentType, att.Filename, att.ContentID, len(att.Content))
	}
	if body {
		fmt.Fprintf(w, "\n%s\n", msg.HTMLBody)
	}
	return nil
}
