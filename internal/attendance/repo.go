package attendance

import (
	"context"
	"errors"

	"rollcall/internal/store"
)

// ErrPersonNotFound is returned when a badge or person id is not in the Directory.
var ErrPersonNotFound = errors.New("person not found in directory")

// Repository gives typed access to the Directory, ScanLog and Ledger tables.
type Repository struct {
	backend store.Backend
}

// NewRepository creates a repo over a record store backend.
func NewRepository(backend store.Backend) *Repository {
	return &Repository{backend: backend}
}

// Directory returns every enrolled person.
func (r *Repository) Directory(ctx context.Context) ([]Person, error) {
	items, err := store.Scan(ctx, r.backend, store.Directory, store.Filter{})
	if err != nil {
		return nil, err
	}
	people := make([]Person, len(items))
	for i, it := range items {
		people[i] = personFrom(it)
	}
	return people, nil
}

// PersonByBadge resolves a badge id through a filtered scan.
func (r *Repository) PersonByBadge(ctx context.Context, badgeID string) (Person, error) {
	items, err := store.Scan(ctx, r.backend, store.Directory, store.Eq("badge_id", badgeID))
	if err != nil {
		return Person{}, err
	}
	if len(items) == 0 {
		return Person{}, ErrPersonNotFound
	}
	return personFrom(items[0]), nil
}

// PutPerson upserts a Directory entry.
func (r *Repository) PutPerson(ctx context.Context, p Person) error {
	return store.Put(ctx, r.backend, store.Directory, p.item())
}

// ScansOn returns every scan recorded for one calendar day.
func (r *Repository) ScansOn(ctx context.Context, date string) ([]ScanEvent, error) {
	return r.Scans(ctx, date, date)
}

// Scans returns scans with from <= date <= to; empty bounds are open.
func (r *Repository) Scans(ctx context.Context, from, to string) ([]ScanEvent, error) {
	items, err := store.Scan(ctx, r.backend, store.ScanLog, dateFilter(from, to))
	if err != nil {
		return nil, err
	}
	scans := make([]ScanEvent, len(items))
	for i, it := range items {
		scans[i] = scanFrom(it)
	}
	return scans, nil
}

// PutScan upserts a scan event by log id.
func (r *Repository) PutScan(ctx context.Context, e ScanEvent) error {
	return store.Put(ctx, r.backend, store.ScanLog, e.item())
}

// Records returns Ledger entries with from <= date <= to; empty bounds are open.
func (r *Repository) Records(ctx context.Context, from, to string) ([]Record, error) {
	items, err := store.Scan(ctx, r.backend, store.Ledger, dateFilter(from, to))
	if err != nil {
		return nil, err
	}
	recs := make([]Record, len(items))
	for i, it := range items {
		recs[i] = recordFrom(it)
	}
	return recs, nil
}

// PutRecord upserts a Ledger entry by attendance id.
func (r *Repository) PutRecord(ctx context.Context, rec Record) error {
	return store.Put(ctx, r.backend, store.Ledger, rec.item())
}

func dateFilter(from, to string) store.Filter {
	switch {
	case from == "" && to == "":
		return store.Filter{}
	case from == to:
		return store.Eq("date", from)
	default:
		return store.Filter{Range: &store.Range{Attr: "date", From: from, To: to}}
	}
}
