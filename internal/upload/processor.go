package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/objectstore"
)

// Outcome labels how one uploaded object was handled.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomePartial  Outcome = "partial"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Observer receives one outcome per processed object.
type Observer interface {
	UploadProcessed(Outcome)
}

// Reconciler runs one batch against the Ledger.
type Reconciler interface {
	Run(ctx context.Context, b attendance.Batch) (attendance.Report, error)
}

// Processor fetches an uploaded roster, parses it and reconciles it.
type Processor struct {
	objects    objectstore.Fetcher
	reconciler Reconciler
	observer   Observer
	log        *zap.Logger
	now        func() time.Time
}

// NewProcessor wires a processor; observer may be nil.
func NewProcessor(objects objectstore.Fetcher, reconciler Reconciler, observer Observer, logger *zap.Logger) *Processor {
	return &Processor{
		objects:    objects,
		reconciler: reconciler,
		observer:   observer,
		log:        logger.Named("upload.processor"),
		now:        time.Now,
	}
}

// Process handles one object. Objects that are not .xlsx or .csv are skipped
// with ErrUnsupportedFormat. Date and session come from the key, falling
// back to today and a time-stamped session name.
func (p *Processor) Process(ctx context.Context, ref ObjectRef) (attendance.Report, error) {
	rep, outcome, err := p.process(ctx, ref)
	if p.observer != nil {
		p.observer.UploadProcessed(outcome)
	}
	return rep, err
}

func (p *Processor) process(ctx context.Context, ref ObjectRef) (attendance.Report, Outcome, error) {
	log := p.log.With(zap.String("bucket", ref.Bucket), zap.String("object_key", ref.Key))

	format, ok := FormatOf(ref.Key)
	if !ok {
		log.Warn("skipping non-roster object")
		return attendance.Report{}, OutcomeSkipped, fmt.Errorf("%s: %w", ref.Key, ErrUnsupportedFormat)
	}

	data, err := p.objects.Get(ctx, ref.Bucket, ref.Key)
	if err != nil {
		log.Error("fetch object failed", zap.Error(err))
		return attendance.Report{}, OutcomeFailed, fmt.Errorf("fetch %s: %w", ref.Key, err)
	}

	rows, err := ParseRoster(format, data)
	if err != nil {
		log.Error("roster rejected", zap.Error(err))
		return attendance.Report{}, OutcomeRejected, fmt.Errorf("parse %s: %w", ref.Key, err)
	}

	now := p.now()
	date, ok := DateFromKey(ref.Key)
	if !ok {
		date = now.Format(time.DateOnly)
		log.Warn("no date in object key, using today", zap.String("date", date))
	}
	session, ok := SessionFromKey(ref.Key)
	if !ok {
		session = FallbackSession(now)
		log.Warn("no session in object key, using default", zap.String("session", session))
	}

	rep, err := p.reconciler.Run(ctx, attendance.Batch{
		Date:       date,
		Session:    session,
		SourceFile: ref.Key,
		Rows:       rows,
	})
	switch {
	case errors.Is(err, attendance.ErrPartialBatch):
		return rep, OutcomePartial, err
	case err != nil:
		log.Error("reconciliation failed", zap.Error(err))
		return rep, OutcomeFailed, err
	}
	return rep, OutcomeOK, nil
}
