package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rollcall/internal/store"
)

var fixedNow = time.Date(2025, 11, 3, 18, 30, 0, 0, time.UTC)

func directory() []Person {
	return []Person{
		{PersonID: "P1", BadgeID: "B1", Name: "Asha", Cohort: "2027", Department: "CSE", Section: "A"},
		{PersonID: "P2", BadgeID: "B2", Name: "Bilal", Cohort: "2027", Department: "CSE", Section: "A"},
		{PersonID: "P3", BadgeID: "B3", Name: "Chen", Cohort: "2026", Department: "ECE", Section: "B"},
	}
}

func scan(pid, badge, date, ts string) ScanEvent {
	return ScanEvent{LogID: LogID(pid, ts), BadgeID: badge, PersonID: pid, Timestamp: ts, Date: date}
}

func statuses(out Outcome) map[string]Status {
	m := make(map[string]Status, len(out.Records))
	for _, r := range out.Records {
		m[r.AttendanceID] = r.Status
	}
	return m
}

func TestClassify_PresentProxyBunk(t *testing.T) {
	b := Batch{
		Date:       "2025-11-03",
		Session:    "Lecture1",
		SourceFile: "uploads/2025-11-03_Lecture1.xlsx",
		Rows:       []RosterRow{{PersonID: "P1", Line: 1}, {PersonID: "P2", Line: 2}},
	}
	scans := []ScanEvent{
		scan("P1", "B1", "2025-11-03", "2025-11-03T09:01:00"),
		scan("P3", "B3", "2025-11-03", "2025-11-03T09:02:00"),
	}

	out := Classify(b, directory(), scans, fixedNow)

	assert.Equal(t, map[string]Status{
		"P1_2025-11-03_Lecture1":      StatusPresent,
		"P2_2025-11-03_Lecture1":      StatusProxy,
		"P3_2025-11-03_Lecture1_bunk": StatusBunk,
	}, statuses(out))
	for _, r := range out.Records {
		assert.Equal(t, "2025-11-03T18:30:00Z", r.ProcessedAt)
		assert.Equal(t, b.SourceFile, r.SourceFile)
		assert.NotEqual(t, StatusAbsent, r.Status)
	}
}

func TestClassify_IgnoresScansFromOtherDays(t *testing.T) {
	b := Batch{Date: "2025-11-03", Session: "Lecture1", Rows: []RosterRow{{PersonID: "P1"}}}
	scans := []ScanEvent{
		scan("P1", "B1", "2025-11-02", "2025-11-02T09:00:00"),
		scan("P3", "B3", "2025-11-04", "2025-11-04T09:00:00"),
	}

	out := Classify(b, directory(), scans, fixedNow)

	assert.Equal(t, map[string]Status{"P1_2025-11-03_Lecture1": StatusProxy}, statuses(out))
}

func TestClassify_ResolvesBadgeAndSkipsUnknownRows(t *testing.T) {
	b := Batch{
		Date:    "2025-11-03",
		Session: "Lab 2",
		Rows: []RosterRow{
			{BadgeID: "B2", Line: 1},
			{PersonID: "P9", Line: 2},
			{BadgeID: "B9", Line: 3},
			{Line: 4},
		},
	}

	out := Classify(b, directory(), nil, fixedNow)

	require.Len(t, out.Records, 1)
	assert.Equal(t, "P2_2025-11-03_Lab_2", out.Records[0].AttendanceID)
	assert.Equal(t, "B2", out.Records[0].BadgeID)
	assert.Len(t, out.Unresolved, 3)
}

func TestClassify_CollapsesDuplicates(t *testing.T) {
	b := Batch{
		Date:    "2025-11-03",
		Session: "Lecture1",
		Rows:    []RosterRow{{PersonID: "P1"}, {BadgeID: "B1"}},
	}
	scans := []ScanEvent{
		scan("P3", "B3", "2025-11-03", "2025-11-03T09:00:00"),
		scan("P3", "B3", "2025-11-03", "2025-11-03T10:00:00"),
		scan("P7", "B7", "2025-11-03", "2025-11-03T10:00:00"),
	}

	out := Classify(b, directory(), scans, fixedNow)

	assert.Len(t, out.Records, 2)
	assert.Equal(t, 1, out.DroppedScans)
}

func TestClassify_PersonWithoutBadgeIsProxy(t *testing.T) {
	people := []Person{{PersonID: "P5", Name: "No Badge"}}
	scans := []ScanEvent{{LogID: "x", PersonID: "P4", Date: "2025-11-03"}}
	b := Batch{Date: "2025-11-03", Session: "L", Rows: []RosterRow{{PersonID: "P5"}}}

	out := Classify(b, people, scans, fixedNow)

	assert.Equal(t, map[string]Status{"P5_2025-11-03_L": StatusProxy}, statuses(out))
}

func newFixture(t *testing.T, backend store.Backend) *Reconciler {
	t.Helper()
	repo := NewRepository(backend)
	ctx := context.Background()
	for _, p := range directory() {
		require.NoError(t, repo.PutPerson(ctx, p))
	}
	r := NewReconciler(repo, nil, zap.NewNop())
	r.now = func() time.Time { return fixedNow }
	return r
}

func TestReconciler_RunIsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	mem.PageSize = 1
	r := newFixture(t, mem)
	ctx := context.Background()
	require.NoError(t, r.repo.PutScan(ctx, scan("P1", "B1", "2025-11-03", "2025-11-03T09:01:00")))

	b := Batch{Date: "2025-11-03", Session: "Lecture1", SourceFile: "f.csv", Rows: []RosterRow{{PersonID: "P1"}, {PersonID: "P2"}}}

	first, err := r.Run(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Written)
	before, err := r.repo.Records(ctx, "", "")
	require.NoError(t, err)

	_, err = r.Run(ctx, b)
	require.NoError(t, err)
	after, err := r.repo.Records(ctx, "", "")
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, 2, mem.Len(store.Ledger))
}

func TestReconciler_RunReportsCounts(t *testing.T) {
	r := newFixture(t, store.NewMemory())
	ctx := context.Background()
	require.NoError(t, r.repo.PutScan(ctx, scan("P3", "B3", "2025-11-03", "2025-11-03T09:01:00")))

	rep, err := r.Run(ctx, Batch{
		Date:    "2025-11-03",
		Session: "Lecture1",
		Rows:    []RosterRow{{PersonID: "P1"}, {PersonID: "nobody", Line: 2}},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, rep.RosterRows)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 2, rep.Written)
	assert.Equal(t, map[Status]int{StatusProxy: 1, StatusBunk: 1}, rep.ByStatus)
}

func TestReconciler_RunRequiresDateAndSession(t *testing.T) {
	r := newFixture(t, store.NewMemory())
	_, err := r.Run(context.Background(), Batch{Date: "2025-11-03"})
	assert.Error(t, err)
}

// flakyBackend fails Ledger puts for selected keys and every query when down.
type flakyBackend struct {
	*store.Memory
	failKeys map[string]bool
	down     bool
}

func (f *flakyBackend) Query(ctx context.Context, table store.Table, filter store.Filter, cursor string, limit int) (store.Page, error) {
	if f.down {
		return store.Page{}, errors.New("connection refused")
	}
	return f.Memory.Query(ctx, table, filter, cursor, limit)
}

func (f *flakyBackend) Put(ctx context.Context, table store.Table, item store.Item) error {
	if table.Name == store.Ledger.Name && f.failKeys[item[table.Key]] {
		return errors.New("throttled")
	}
	return f.Memory.Put(ctx, table, item)
}

func TestReconciler_PartialBatchContinues(t *testing.T) {
	fb := &flakyBackend{Memory: store.NewMemory(), failKeys: map[string]bool{"P1_2025-11-03_Lecture1": true}}
	r := newFixture(t, fb)

	rep, err := r.Run(context.Background(), Batch{
		Date:    "2025-11-03",
		Session: "Lecture1",
		Rows:    []RosterRow{{PersonID: "P1"}, {PersonID: "P2"}, {PersonID: "P3"}},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartialBatch))
	var pbe *PartialBatchError
	require.True(t, errors.As(err, &pbe))
	assert.Equal(t, 1, pbe.Failed)
	assert.Equal(t, 3, pbe.Attempted)
	assert.Equal(t, 2, rep.Written)
	assert.Equal(t, 2, fb.Len(store.Ledger))
}

func TestReconciler_StoreDownAbortsBeforeWriting(t *testing.T) {
	fb := &flakyBackend{Memory: store.NewMemory()}
	r := newFixture(t, fb)
	fb.down = true

	_, err := r.Run(context.Background(), Batch{Date: "2025-11-03", Session: "Lecture1", Rows: []RosterRow{{PersonID: "P1"}}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
	assert.Equal(t, 0, fb.Len(store.Ledger))
}
