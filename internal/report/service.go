// Package report answers the read-side queries over the Ledger and ScanLog.
package report

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rollcall/internal/analytics"
	"rollcall/internal/apperror"
	"rollcall/internal/attendance"
	"rollcall/internal/enrich"
)

// EntryLogWindow is how far back entry-log listings look by default.
const EntryLogWindow = 90 * 24 * time.Hour

// Service runs result, analytics and entry-log queries. Store failures do
// not fail a query: the affected table reads as empty and the response is
// marked degraded.
type Service struct {
	repo *attendance.Repository
	log  *zap.Logger
	now  func() time.Time
}

// NewService creates a query service.
func NewService(repo *attendance.Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, log: logger.Named("report"), now: time.Now}
}

func (s *Service) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}

// ResultsQuery filters a results listing. Date, when set, overrides the
// range; StartDate and EndDate are independent inclusive bounds.
type ResultsQuery struct {
	Date       string
	StartDate  string
	EndDate    string
	Cohort     string
	Department string
	Section    string
	Status     string
}

// ResultRecord is a Ledger entry joined with its Directory attributes.
// Attributes are null when the person is not in the Directory.
type ResultRecord struct {
	AttendanceID string  `json:"attendance_id"`
	PersonID     string  `json:"person_id"`
	Name         string  `json:"name"`
	BadgeID      string  `json:"badge_id"`
	Cohort       *string `json:"cohort"`
	Department   *string `json:"department"`
	Section      *string `json:"section"`
	Date         string  `json:"date"`
	Session      string  `json:"session"`
	Status       string  `json:"status"`
	SourceFile   string  `json:"source_file"`
	ProcessedAt  string  `json:"processed_at"`
}

// Results is the results listing response.
type Results struct {
	Records      []ResultRecord   `json:"records"`
	Summary      analytics.Counts `json:"summary"`
	TotalRecords int              `json:"total_records"`
	Degraded     bool             `json:"degraded,omitempty"`
}

// Results lists enriched Ledger entries with a status summary.
func (s *Service) Results(ctx context.Context, q ResultsQuery) (Results, error) {
	from, to := q.StartDate, q.EndDate
	if q.Date != "" {
		from, to = q.Date, q.Date
	}
	if err := validDates(map[string]string{"date": q.Date, "start_date": q.StartDate, "end_date": q.EndDate}); err != nil {
		return Results{}, err
	}
	status := ""
	if q.Status != "" {
		st, ok := attendance.ParseStatus(q.Status)
		if !ok {
			return Results{}, apperror.Validation("status must be one of Present, Absent, Proxy, Bunk", map[string]string{"status": q.Status})
		}
		status = string(st)
	}

	records, idx, degraded := s.loadLedger(ctx, from, to)
	rows := enrich.Apply(records, enrich.Records, idx, enrich.Filter{
		Cohort:     q.Cohort,
		Department: q.Department,
		Section:    q.Section,
		Status:     status,
		From:       from,
		To:         to,
	})

	out := Results{
		Records:      make([]ResultRecord, 0, len(rows)),
		Summary:      analytics.Tally(rows),
		TotalRecords: len(rows),
		Degraded:     degraded,
	}
	for _, r := range rows {
		rec := ResultRecord{
			AttendanceID: r.Value.AttendanceID,
			PersonID:     r.Value.PersonID,
			Name:         r.Name(),
			BadgeID:      r.Value.BadgeID,
			Date:         r.Value.Date,
			Session:      r.Value.Session,
			Status:       string(r.Value.Status),
			SourceFile:   r.Value.SourceFile,
			ProcessedAt:  r.Value.ProcessedAt,
		}
		if p := r.Person; p != nil {
			rec.Cohort, rec.Department, rec.Section = &p.Cohort, &p.Department, &p.Section
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// AnalyticsQuery selects a period and optional filters. With no dates the
// whole Ledger is aggregated.
type AnalyticsQuery struct {
	Period     string
	StartDate  string
	EndDate    string
	Cohort     string
	Department string
	Section    string
}

// Analytics is the analytics response.
type Analytics struct {
	Period            analytics.Granularity `json:"period"`
	StartDate         *string               `json:"start_date"`
	EndDate           *string               `json:"end_date"`
	Buckets           []analytics.Bucket    `json:"analytics"`
	OverallStatistics analytics.Summary     `json:"overall_statistics"`
	Degraded          bool                  `json:"degraded,omitempty"`
}

var lookback = map[analytics.Granularity]int{
	analytics.Daily:    0,
	analytics.Weekly:   7,
	analytics.Monthly:  30,
	analytics.Semester: 180,
}

// Analytics aggregates the filtered Ledger by period.
func (s *Service) Analytics(ctx context.Context, q AnalyticsQuery) (Analytics, error) {
	period, ok := analytics.ParsePeriod(q.Period)
	if !ok {
		return Analytics{}, apperror.Validation("period must be one of daily, weekly, monthly, semester", map[string]string{"period": q.Period})
	}
	if err := validDates(map[string]string{"start_date": q.StartDate, "end_date": q.EndDate}); err != nil {
		return Analytics{}, err
	}

	from, to := q.StartDate, q.EndDate
	if from != "" || to != "" {
		if to == "" {
			to = s.today().Format(time.DateOnly)
		}
		if from == "" {
			end, _ := time.Parse(time.DateOnly, to)
			from = end.AddDate(0, 0, -lookback[period]).Format(time.DateOnly)
		}
	}

	records, idx, degraded := s.loadLedger(ctx, from, to)
	rows := enrich.Apply(records, enrich.Records, idx, enrich.Filter{
		Cohort:     q.Cohort,
		Department: q.Department,
		Section:    q.Section,
		From:       from,
		To:         to,
	})

	out := Analytics{
		Period:            period,
		Buckets:           analytics.Aggregate(rows, period),
		OverallStatistics: analytics.Summarize(rows),
		Degraded:          degraded,
	}
	if from != "" {
		out.StartDate, out.EndDate = &from, &to
	}
	return out, nil
}

// EntryLogsQuery filters an entry-log listing. Without dates the last
// EntryLogWindow up to today is listed.
type EntryLogsQuery struct {
	Date       string
	StartDate  string
	EndDate    string
	Cohort     string
	Department string
	Section    string
	Limit      int
}

// EntryLog is a scan event joined with its Directory attributes.
type EntryLog struct {
	LogID      string  `json:"log_id"`
	BadgeID    string  `json:"badge_id"`
	PersonID   string  `json:"person_id"`
	Name       string  `json:"name"`
	Cohort     *string `json:"cohort"`
	Department *string `json:"department"`
	Section    *string `json:"section"`
	Timestamp  string  `json:"timestamp"`
	Date       string  `json:"date"`
	ReceivedAt string  `json:"received_at"`
}

// EntryLogs is the entry-log listing response.
type EntryLogs struct {
	Logs           []EntryLog `json:"logs"`
	TotalLogs      int        `json:"total_logs"`
	UniqueStudents int        `json:"unique_students"`
	StartDate      string     `json:"start_date"`
	EndDate        string     `json:"end_date"`
	Degraded       bool       `json:"degraded,omitempty"`
}

// EntryLogs lists the most recent scans, newest first.
func (s *Service) EntryLogs(ctx context.Context, q EntryLogsQuery) (EntryLogs, error) {
	if err := validDates(map[string]string{"date": q.Date, "start_date": q.StartDate, "end_date": q.EndDate}); err != nil {
		return EntryLogs{}, err
	}
	from, to := q.StartDate, q.EndDate
	switch {
	case q.Date != "":
		from, to = q.Date, q.Date
	default:
		today := s.today()
		if to == "" {
			to = today.Format(time.DateOnly)
		}
		if from == "" {
			from = today.Add(-EntryLogWindow).Format(time.DateOnly)
		}
	}

	var (
		scans   []attendance.ScanEvent
		people  []attendance.Person
		logDown bool
		dirDown bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if scans, err = s.repo.Scans(gctx, from, to); err != nil {
			s.degrade("scan_log", err)
			logDown = true
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if people, err = s.repo.Directory(gctx); err != nil {
			s.degrade("directory", err)
			dirDown = true
		}
		return nil
	})
	_ = g.Wait()

	rows := enrich.Apply(scans, enrich.Scans, attendance.NewIndex(people), enrich.Filter{
		Cohort:     q.Cohort,
		Department: q.Department,
		Section:    q.Section,
		From:       from,
		To:         to,
	})
	rows = enrich.Latest(rows, q.Limit)

	out := EntryLogs{
		Logs:      make([]EntryLog, 0, len(rows)),
		TotalLogs: len(rows),
		StartDate: from,
		EndDate:   to,
		Degraded:  logDown || dirDown,
	}
	students := make(map[string]struct{})
	for _, r := range rows {
		e := EntryLog{
			LogID:      r.Value.LogID,
			BadgeID:    r.Value.BadgeID,
			PersonID:   r.Value.PersonID,
			Name:       r.Name(),
			Timestamp:  r.Value.Timestamp,
			Date:       r.Value.Date,
			ReceivedAt: r.Value.ReceivedAt,
		}
		if p := r.Person; p != nil {
			e.Cohort, e.Department, e.Section = &p.Cohort, &p.Department, &p.Section
		}
		if r.Value.PersonID != "" {
			students[r.Value.PersonID] = struct{}{}
		}
		out.Logs = append(out.Logs, e)
	}
	out.UniqueStudents = len(students)
	return out, nil
}

// loadLedger reads the Ledger slice and the Directory concurrently.
func (s *Service) loadLedger(ctx context.Context, from, to string) ([]attendance.Record, attendance.Index, bool) {
	var (
		records    []attendance.Record
		people     []attendance.Person
		ledgerDown bool
		dirDown    bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if records, err = s.repo.Records(gctx, from, to); err != nil {
			s.degrade("ledger", err)
			ledgerDown = true
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if people, err = s.repo.Directory(gctx); err != nil {
			s.degrade("directory", err)
			dirDown = true
		}
		return nil
	})
	_ = g.Wait()
	return records, attendance.NewIndex(people), ledgerDown || dirDown
}

func (s *Service) degrade(table string, err error) {
	s.log.Warn("store read failed, serving empty table", zap.String("table", table), zap.Error(err))
}

func validDates(fields map[string]string) error {
	bad := map[string]string{}
	for name, v := range fields {
		if v == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, v); err != nil {
			bad[name] = v
		}
	}
	if len(bad) > 0 {
		return apperror.Validation("dates must be valid YYYY-MM-DD", bad)
	}
	return nil
}
