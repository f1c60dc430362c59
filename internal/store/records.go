package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks a failed call to the backing record store. Callers
// decide whether to propagate it or degrade to an empty result.
var ErrUnavailable = errors.New("record store unavailable")

// DefaultPageSize bounds one Query call when the caller passes no limit.
const DefaultPageSize = 500

// Item is one stored row: a flat map of string attributes.
type Item map[string]string

// Table describes a logical table: its key attribute and the attributes a
// row may carry. Only declared attributes are persisted or filterable.
type Table struct {
	Name       string
	Key        string
	Attributes []string
}

// Has reports whether attr is declared on the table.
func (t Table) Has(attr string) bool {
	for _, a := range t.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

var (
	Directory = Table{
		Name:       "directory",
		Key:        "person_id",
		Attributes: []string{"person_id", "badge_id", "name", "cohort", "department", "section"},
	}
	ScanLog = Table{
		Name:       "scan_log",
		Key:        "log_id",
		Attributes: []string{"log_id", "badge_id", "person_id", "timestamp", "date", "received_at"},
	}
	Ledger = Table{
		Name:       "ledger",
		Key:        "attendance_id",
		Attributes: []string{"attendance_id", "person_id", "badge_id", "date", "session", "status", "source_file", "processed_at"},
	}
)

// Tables lists every table the service owns, in migration order.
var Tables = []Table{Directory, ScanLog, Ledger}

// Range is an inclusive, lexicographic bound on one attribute. Empty bounds
// are open.
type Range struct {
	Attr string
	From string
	To   string
}

// Filter is pushed down to the backend. The zero value matches every row.
type Filter struct {
	Equals map[string]string
	Range  *Range
}

// Eq returns a filter matching rows where attr equals value.
func Eq(attr, value string) Filter {
	return Filter{Equals: map[string]string{attr: value}}
}

// Matches evaluates the filter against an item in memory.
func (f Filter) Matches(it Item) bool {
	for k, v := range f.Equals {
		if it[k] != v {
			return false
		}
	}
	if f.Range != nil {
		v, ok := it[f.Range.Attr]
		if !ok || v == "" {
			return false
		}
		if f.Range.From != "" && v < f.Range.From {
			return false
		}
		if f.Range.To != "" && v > f.Range.To {
			return false
		}
	}
	return true
}

func (f Filter) validate(t Table) error {
	for k := range f.Equals {
		if !t.Has(k) {
			return fmt.Errorf("filter on unknown attribute %s.%s", t.Name, k)
		}
	}
	if f.Range != nil && !t.Has(f.Range.Attr) {
		return fmt.Errorf("range on unknown attribute %s.%s", t.Name, f.Range.Attr)
	}
	return nil
}

// Page is one slice of a scan. Next is empty once the table is exhausted.
type Page struct {
	Items []Item
	Next  string
}

// Backend is a paginated key-value store with filter push-down and upsert.
type Backend interface {
	Query(ctx context.Context, table Table, filter Filter, cursor string, limit int) (Page, error)
	Put(ctx context.Context, table Table, item Item) error
}

// Scan follows continuation cursors until the table is exhausted and returns
// every matching item. A failure on any page fails the whole scan: callers
// never see a truncated table.
func Scan(ctx context.Context, b Backend, table Table, filter Filter) ([]Item, error) {
	if err := filter.validate(table); err != nil {
		return nil, err
	}
	var (
		out    []Item
		cursor string
	)
	for {
		page, err := b.Query(ctx, table, filter, cursor, DefaultPageSize)
		if err != nil {
			return nil, unavailable(table, err)
		}
		out = append(out, page.Items...)
		if page.Next == "" {
			return out, nil
		}
		cursor = page.Next
	}
}

// Put validates the item against the table and upserts it.
func Put(ctx context.Context, b Backend, table Table, item Item) error {
	if item[table.Key] == "" {
		return fmt.Errorf("%s: missing key attribute %s", table.Name, table.Key)
	}
	clean := make(Item, len(table.Attributes))
	for _, a := range table.Attributes {
		clean[a] = item[a]
	}
	if err := b.Put(ctx, table, clean); err != nil {
		return unavailable(table, err)
	}
	return nil
}

func unavailable(t Table, err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", t.Name, ErrUnavailable, err)
}
