package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"rollcall/internal/apperror"
)

// ScanInput is one badge scan as delivered by a reader device.
type ScanInput struct {
	BadgeID   string
	Timestamp string
	Date      string
}

// Service handles badge scan ingestion.
type Service struct {
	repo     *Repository
	observer Observer
	log      *zap.Logger
	now      func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, observer Observer, logger *zap.Logger) *Service {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Service{repo: repo, observer: observer, log: logger.Named("attendance.scans"), now: time.Now}
}

// RecordScan validates a scan, resolves its badge to a person and appends it
// to the ScanLog. Redelivery of the same scan overwrites the same log id.
func (s *Service) RecordScan(ctx context.Context, in ScanInput) (ScanEvent, Person, error) {
	in.BadgeID = strings.TrimSpace(in.BadgeID)
	in.Timestamp = strings.TrimSpace(in.Timestamp)
	in.Date = strings.TrimSpace(in.Date)

	var missing []string
	if in.BadgeID == "" {
		missing = append(missing, "badge_id")
	}
	if in.Timestamp == "" {
		missing = append(missing, "timestamp")
	}
	if in.Date == "" {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return ScanEvent{}, Person{}, apperror.Validation("badge_id, timestamp and date are required", missing)
	}

	person, err := s.repo.PersonByBadge(ctx, in.BadgeID)
	if err != nil {
		if errors.Is(err, ErrPersonNotFound) {
			return ScanEvent{}, Person{}, apperror.NotFound("no person with badge " + in.BadgeID)
		}
		return ScanEvent{}, Person{}, err
	}

	evt := ScanEvent{
		LogID:      LogID(person.PersonID, in.Timestamp),
		BadgeID:    in.BadgeID,
		PersonID:   person.PersonID,
		Timestamp:  in.Timestamp,
		Date:       in.Date,
		ReceivedAt: s.now().UTC().Format(time.RFC3339),
	}
	if err := s.repo.PutScan(ctx, evt); err != nil {
		return ScanEvent{}, Person{}, err
	}
	s.observer.ScanRecorded()
	s.log.Debug("scan recorded", zap.String("log_id", evt.LogID), zap.String("person_id", person.PersonID))
	return evt, person, nil
}
