package upload

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"

	"rollcall/internal/attendance"
)

var (
	// ErrUnsupportedFormat marks objects that are not rosters.
	ErrUnsupportedFormat = errors.New("unsupported roster format")
	// ErrNoIdentifierColumn marks rosters with neither a person nor a badge column.
	ErrNoIdentifierColumn = errors.New("roster has no student_id or rfid column")
)

var (
	personColumns = []string{"student_id", "studentid", "person_id"}
	badgeColumns  = []string{"rfid_uid", "rfid", "rfiduid", "badge_id"}
)

// Format is a roster file format derived from the object extension.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// FormatOf returns the roster format of key, if supported.
func FormatOf(key string) (Format, bool) {
	switch strings.ToLower(path.Ext(key)) {
	case ".csv":
		return CSV, true
	case ".xlsx":
		return XLSX, true
	}
	return "", false
}

// ParseRoster reads the first sheet of an xlsx file or a CSV file into roster
// rows. Headers are trimmed and lower-cased; blank rows are skipped.
func ParseRoster(format Format, data []byte) ([]attendance.RosterRow, error) {
	var (
		table [][]string
		err   error
	)
	switch format {
	case CSV:
		table, err = readCSV(data)
	case XLSX:
		table, err = readXLSX(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, ErrNoIdentifierColumn
	}

	personCol, badgeCol := -1, -1
	for i, h := range table[0] {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if personCol < 0 && contains(personColumns, h) {
			personCol = i
		}
		if badgeCol < 0 && contains(badgeColumns, h) {
			badgeCol = i
		}
	}
	if personCol < 0 && badgeCol < 0 {
		return nil, ErrNoIdentifierColumn
	}

	rows := make([]attendance.RosterRow, 0, len(table)-1)
	for i, rec := range table[1:] {
		r := attendance.RosterRow{
			PersonID: cell(rec, personCol),
			BadgeID:  cell(rec, badgeCol),
			Line:     i + 1,
		}
		if r.PersonID == "" && r.BadgeID == "" {
			continue
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		out = append(out, rec)
	}
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
