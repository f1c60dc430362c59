// Package enrich joins Ledger and ScanLog rows to the Directory and applies
// the query filters shared by listings and analytics.
package enrich

import (
	"sort"
	"strings"

	"rollcall/internal/attendance"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Filter holds the optional equality and date-range predicates of a query.
// Empty fields do not constrain.
type Filter struct {
	Cohort     string
	Department string
	Section    string
	Status     string
	From       string
	To         string
}

// byAttributes reports whether a Directory attribute filter is active. Rows
// without a Directory entry cannot satisfy one and are dropped.
func (f Filter) byAttributes() bool {
	return f.Cohort != "" || f.Department != "" || f.Section != ""
}

// Accessor extracts the join and filter fields from an input row.
type Accessor[T any] struct {
	PersonID func(T) string
	Date     func(T) string
	// Status is nil for rows without a status, such as scan events.
	Status func(T) string
}

// Row is an input row with its Directory entry, nil when unknown.
type Row[T any] struct {
	Value  T
	Person *attendance.Person
}

// Name returns the person's name or "Unknown".
func (r Row[T]) Name() string {
	if r.Person == nil || r.Person.Name == "" {
		return "Unknown"
	}
	return r.Person.Name
}

// Records is the accessor for Ledger rows.
var Records = Accessor[attendance.Record]{
	PersonID: func(r attendance.Record) string { return r.PersonID },
	Date:     func(r attendance.Record) string { return r.Date },
	Status:   func(r attendance.Record) string { return string(r.Status) },
}

// Scans is the accessor for ScanLog rows.
var Scans = Accessor[attendance.ScanEvent]{
	PersonID: func(e attendance.ScanEvent) string { return e.PersonID },
	Date:     func(e attendance.ScanEvent) string { return e.Date },
}

// Apply joins rows to the Directory and keeps those matching f, preserving
// input order. Date bounds are inclusive and compared lexicographically.
func Apply[T any](rows []T, acc Accessor[T], idx attendance.Index, f Filter) []Row[T] {
	out := make([]Row[T], 0, len(rows))
	for _, v := range rows {
		date := acc.Date(v)
		if f.From != "" && date < f.From {
			continue
		}
		if f.To != "" && date > f.To {
			continue
		}
		if f.Status != "" && acc.Status != nil && !strings.EqualFold(acc.Status(v), f.Status) {
			continue
		}

		p := idx.Lookup(acc.PersonID(v))
		if p == nil {
			if f.byAttributes() {
				continue
			}
			out = append(out, Row[T]{Value: v})
			continue
		}
		if f.Cohort != "" && p.Cohort != f.Cohort {
			continue
		}
		if f.Department != "" && p.Department != f.Department {
			continue
		}
		if f.Section != "" && p.Section != f.Section {
			continue
		}
		out = append(out, Row[T]{Value: v, Person: p})
	}
	return out
}

// ClampLimit applies the listing default and cap.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// Latest sorts scan rows newest first by timestamp, breaking ties on the
// received time, and truncates to the clamped limit.
func Latest(rows []Row[attendance.ScanEvent], limit int) []Row[attendance.ScanEvent] {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Value, rows[j].Value
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		return a.ReceivedAt > b.ReceivedAt
	})
	if limit = ClampLimit(limit); len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
