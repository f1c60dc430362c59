package attendance

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rollcall/internal/apperror"
	"rollcall/internal/store"
)

type countingObserver struct {
	nopObserver
	scans int
}

func (c *countingObserver) ScanRecorded() { c.scans++ }

func newScanService(t *testing.T) (*Service, *store.Memory, *countingObserver) {
	t.Helper()
	mem := store.NewMemory()
	repo := NewRepository(mem)
	for _, p := range directory() {
		require.NoError(t, repo.PutPerson(context.Background(), p))
	}
	obs := &countingObserver{}
	svc := NewService(repo, obs, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, mem, obs
}

func TestRecordScan_WritesEvent(t *testing.T) {
	svc, mem, obs := newScanService(t)

	evt, person, err := svc.RecordScan(context.Background(), ScanInput{
		BadgeID:   " B2 ",
		Timestamp: "2025-11-03T09:15:30.250",
		Date:      "2025-11-03",
	})

	require.NoError(t, err)
	assert.Equal(t, "P2_2025-11-03T09-15-30-250", evt.LogID)
	assert.Equal(t, "P2", evt.PersonID)
	assert.Equal(t, "Bilal", person.Name)
	assert.Equal(t, "2025-11-03T18:30:00Z", evt.ReceivedAt)
	assert.Equal(t, 1, mem.Len(store.ScanLog))
	assert.Equal(t, 1, obs.scans)
}

func TestRecordScan_RedeliveryOverwrites(t *testing.T) {
	svc, mem, _ := newScanService(t)
	in := ScanInput{BadgeID: "B1", Timestamp: "2025-11-03T09:00:00", Date: "2025-11-03"}

	_, _, err := svc.RecordScan(context.Background(), in)
	require.NoError(t, err)
	_, _, err = svc.RecordScan(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 1, mem.Len(store.ScanLog))
}

func TestRecordScan_Validation(t *testing.T) {
	svc, mem, _ := newScanService(t)

	_, _, err := svc.RecordScan(context.Background(), ScanInput{BadgeID: "B1", Date: "  "})

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	assert.Equal(t, []string{"timestamp", "date"}, appErr.Details)
	assert.Equal(t, 0, mem.Len(store.ScanLog))
}

func TestRecordScan_UnknownBadge(t *testing.T) {
	svc, mem, _ := newScanService(t)

	_, _, err := svc.RecordScan(context.Background(), ScanInput{BadgeID: "B404", Timestamp: "t", Date: "2025-11-03"})

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.CodeNotFound, appErr.Code)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
	assert.Equal(t, 0, mem.Len(store.ScanLog))
}

func TestIDs(t *testing.T) {
	assert.Equal(t, "P1_2025-11-03_Data_Structures", AttendanceID("P1", "2025-11-03", "Data Structures", StatusProxy))
	assert.Equal(t, "P1_2025-11-03_Lecture1_bunk", AttendanceID("P1", "2025-11-03", "Lecture1", StatusBunk))

	st, ok := ParseStatus("present")
	assert.True(t, ok)
	assert.Equal(t, StatusPresent, st)
	_, ok = ParseStatus("late")
	assert.False(t, ok)
}
