package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrPartialBatch marks a reconciliation run where some Ledger writes failed.
var ErrPartialBatch = errors.New("partial batch failure")

// PartialBatchError reports how many Ledger writes of a run failed.
type PartialBatchError struct {
	Failed    int
	Attempted int
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%d of %d ledger writes failed", e.Failed, e.Attempted)
}

func (e *PartialBatchError) Is(target error) bool { return target == ErrPartialBatch }

// Observer receives reconciliation and ingestion counts.
type Observer interface {
	RecordWritten(Status)
	RecordWriteFailed()
	RosterRowsSkipped(n int)
	ScanRecorded()
}

type nopObserver struct{}

func (nopObserver) RecordWritten(Status)  {}
func (nopObserver) RecordWriteFailed()    {}
func (nopObserver) RosterRowsSkipped(int) {}
func (nopObserver) ScanRecorded()         {}

// RosterRow identifies one person on an uploaded roster, either directly or
// by badge. Line is the 1-based data row in the source file.
type RosterRow struct {
	PersonID string
	BadgeID  string
	Line     int
}

// Batch is one uploaded roster for a single date and session.
type Batch struct {
	Date       string
	Session    string
	SourceFile string
	Rows       []RosterRow
}

// Outcome is the pure result of classifying a batch.
type Outcome struct {
	Records      []Record
	Unresolved   []RosterRow
	DroppedScans int
}

// Classify reconciles a roster against the Directory and the day's scans.
// Roster persons are Present when their badge was scanned and Proxy otherwise;
// scanned persons missing from the roster are Bunk. Absent is never produced:
// it is the complement of the Ledger, not a stored decision.
func Classify(b Batch, people []Person, scans []ScanEvent, processedAt time.Time) Outcome {
	byID := NewIndex(people)
	byBadge := make(map[string]Person, len(people))
	for _, p := range people {
		if p.BadgeID != "" {
			byBadge[p.BadgeID] = p
		}
	}

	scanned := make(map[string]struct{}, len(scans))
	for _, s := range scans {
		if s.Date == b.Date && s.BadgeID != "" {
			scanned[s.BadgeID] = struct{}{}
		}
	}

	var (
		out    Outcome
		seen   = make(map[string]struct{})
		roster = make(map[string]struct{})
		stamp  = processedAt.UTC().Format(time.RFC3339)
	)
	emit := func(p Person, status Status) {
		id := AttendanceID(p.PersonID, b.Date, b.Session, status)
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out.Records = append(out.Records, Record{
			AttendanceID: id,
			PersonID:     p.PersonID,
			BadgeID:      p.BadgeID,
			Date:         b.Date,
			Session:      b.Session,
			Status:       status,
			SourceFile:   b.SourceFile,
			ProcessedAt:  stamp,
		})
	}

	for _, row := range b.Rows {
		p, ok := resolve(row, byID, byBadge)
		if !ok {
			out.Unresolved = append(out.Unresolved, row)
			continue
		}
		roster[p.PersonID] = struct{}{}
		if _, hit := scanned[p.BadgeID]; hit && p.BadgeID != "" {
			emit(p, StatusPresent)
		} else {
			emit(p, StatusProxy)
		}
	}

	for _, s := range scans {
		if s.Date != b.Date || s.PersonID == "" {
			continue
		}
		if _, listed := roster[s.PersonID]; listed {
			continue
		}
		p, ok := byID[s.PersonID]
		if !ok {
			out.DroppedScans++
			continue
		}
		emit(p, StatusBunk)
	}
	return out
}

func resolve(row RosterRow, byID Index, byBadge map[string]Person) (Person, bool) {
	if id := strings.TrimSpace(row.PersonID); id != "" {
		p, ok := byID[id]
		return p, ok
	}
	if badge := strings.TrimSpace(row.BadgeID); badge != "" {
		p, ok := byBadge[badge]
		return p, ok
	}
	return Person{}, false
}

// Report summarises one reconciliation run.
type Report struct {
	Date         string         `json:"date"`
	Session      string         `json:"session"`
	SourceFile   string         `json:"source_file"`
	RosterRows   int            `json:"roster_rows"`
	Skipped      int            `json:"skipped"`
	DroppedScans int            `json:"dropped_scans"`
	Written      int            `json:"written"`
	Failed       int            `json:"failed"`
	ByStatus     map[Status]int `json:"by_status"`
}

// Reconciler loads a batch's inputs, classifies it and upserts the Ledger.
type Reconciler struct {
	repo     *Repository
	observer Observer
	log      *zap.Logger
	now      func() time.Time
}

// NewReconciler wires a reconciler; observer may be nil.
func NewReconciler(repo *Repository, observer Observer, logger *zap.Logger) *Reconciler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Reconciler{repo: repo, observer: observer, log: logger.Named("attendance.reconcile"), now: time.Now}
}

// Run reconciles one batch. Store failures while loading inputs abort the run.
// Individual write failures are logged and counted; the remaining records are
// still written and a *PartialBatchError is returned with the report.
func (r *Reconciler) Run(ctx context.Context, b Batch) (Report, error) {
	rep := Report{
		Date:       b.Date,
		Session:    b.Session,
		SourceFile: b.SourceFile,
		RosterRows: len(b.Rows),
		ByStatus:   make(map[Status]int),
	}
	if b.Date == "" || b.Session == "" {
		return rep, errors.New("batch requires date and session")
	}

	var (
		people []Person
		scans  []ScanEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		people, err = r.repo.Directory(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		scans, err = r.repo.ScansOn(gctx, b.Date)
		return err
	})
	if err := g.Wait(); err != nil {
		return rep, fmt.Errorf("load reconciliation inputs: %w", err)
	}

	out := Classify(b, people, scans, r.now())
	rep.Skipped = len(out.Unresolved)
	rep.DroppedScans = out.DroppedScans
	for _, row := range out.Unresolved {
		r.log.Warn("roster row matches no person",
			zap.String("source_file", b.SourceFile),
			zap.Int("line", row.Line),
			zap.String("person_id", row.PersonID),
			zap.String("badge_id", row.BadgeID),
		)
	}
	if rep.Skipped > 0 {
		r.observer.RosterRowsSkipped(rep.Skipped)
	}

	for _, rec := range out.Records {
		if err := r.repo.PutRecord(ctx, rec); err != nil {
			rep.Failed++
			r.observer.RecordWriteFailed()
			r.log.Error("ledger write failed",
				zap.String("attendance_id", rec.AttendanceID),
				zap.Error(err),
			)
			continue
		}
		rep.Written++
		rep.ByStatus[rec.Status]++
		r.observer.RecordWritten(rec.Status)
	}

	r.log.Info("batch reconciled",
		zap.String("date", b.Date),
		zap.String("session", b.Session),
		zap.String("source_file", b.SourceFile),
		zap.Int("roster_rows", rep.RosterRows),
		zap.Int("skipped", rep.Skipped),
		zap.Int("written", rep.Written),
		zap.Int("failed", rep.Failed),
	)
	if rep.Failed > 0 {
		return rep, &PartialBatchError{Failed: rep.Failed, Attempted: len(out.Records)}
	}
	return rep, nil
}
