// Package order reads order rows from CSV and groups them by recipient.
package order

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Column names expected in the CSV header.
const (
	ColumnFlowerType = "flower type"
	ColumnMessage    = "message"
	ColumnTo         = "to"
	ColumnName       = "name"
)

// RequiredColumns lists the header columns a valid order file must carry,
// in the order they are reported when missing.
var RequiredColumns = []string{ColumnFlowerType, ColumnMessage, ColumnTo}

// ErrParse is returned when the input is not readable as CSV.
var ErrParse = errors.New("error parsing CSV")

// Row is one order line.
type Row struct {
	FlowerType string `json:"flower type"`
	Message    string `json:"message"`
	To         string `json:"to"`
	Name       string `json:"name,omitempty"`
}

// MissingFieldsError reports required columns absent from the header.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}

// ReadCSV reads a header row followed by order rows. Header names are matched
// after trimming; extra columns are ignored and empty lines skipped. When a
// required column is missing the returned rows are empty and the error is a
// *MissingFieldsError.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MissingFieldsError{Fields: append([]string(nil), RequiredColumns...)}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}

	field := func(rec []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if blank(rec) {
			continue
		}
		rows = append(rows, Row{
			FlowerType: field(rec, ColumnFlowerType),
			Message:    field(rec, ColumnMessage),
			To:         strings.TrimSpace(field(rec, ColumnTo)),
			Name:       strings.TrimSpace(field(rec, ColumnName)),
		})
	}
	return rows, nil
}

// UserMessage renders a ReadCSV error the way it is shown to users.
func UserMessage(err error) string {
	var mf *MissingFieldsError
	if errors.As(err, &mf) {
		return mf.Error()
	}
	if errors.Is(err, ErrParse) {
		return "Error parsing CSV: " + strings.TrimPrefix(err.Error(), ErrParse.Error()+": ")
	}
	return err.Error()
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
