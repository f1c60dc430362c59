package enrich_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance"
	"rollcall/internal/enrich"
)

var idx = attendance.NewIndex([]attendance.Person{
	{PersonID: "P1", Name: "Asha", Cohort: "2027", Department: "CSE", Section: "A"},
	{PersonID: "P2", Name: "Bilal", Cohort: "2026", Department: "ECE", Section: "B"},
})

func rec(pid, date string, st attendance.Status) attendance.Record {
	return attendance.Record{AttendanceID: pid + "_" + date, PersonID: pid, Date: date, Status: st}
}

func ids(rows []enrich.Row[attendance.Record]) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Value.AttendanceID
	}
	return out
}

func TestApply_DateRangeIsInclusive(t *testing.T) {
	rows := []attendance.Record{
		rec("P1", "2025-01-31", attendance.StatusPresent),
		rec("P1", "2025-02-01", attendance.StatusPresent),
		rec("P1", "2025-02-15", attendance.StatusPresent),
		rec("P1", "2025-02-28", attendance.StatusPresent),
		rec("P1", "2025-03-01", attendance.StatusPresent),
	}

	got := enrich.Apply(rows, enrich.Records, idx, enrich.Filter{From: "2025-02-01", To: "2025-02-28"})

	assert.Equal(t, []string{"P1_2025-02-01", "P1_2025-02-15", "P1_2025-02-28"}, ids(got))
}

func TestApply_EqualityFilters(t *testing.T) {
	rows := []attendance.Record{
		rec("P1", "2025-01-01", attendance.StatusPresent),
		rec("P2", "2025-01-01", attendance.StatusProxy),
		rec("P1", "2025-01-02", attendance.StatusProxy),
	}

	tests := []struct {
		name   string
		filter enrich.Filter
		want   []string
	}{
		{"cohort", enrich.Filter{Cohort: "2027"}, []string{"P1_2025-01-01", "P1_2025-01-02"}},
		{"department", enrich.Filter{Department: "ECE"}, []string{"P2_2025-01-01"}},
		{"section", enrich.Filter{Section: "A"}, []string{"P1_2025-01-01", "P1_2025-01-02"}},
		{"status case-insensitive", enrich.Filter{Status: "proxy"}, []string{"P2_2025-01-01", "P1_2025-01-02"}},
		{"combined", enrich.Filter{Cohort: "2027", Status: "Proxy"}, []string{"P1_2025-01-02"}},
		{"none", enrich.Filter{}, []string{"P1_2025-01-01", "P2_2025-01-01", "P1_2025-01-02"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(enrich.Apply(rows, enrich.Records, idx, tt.filter)))
		})
	}
}

func TestApply_MissingDirectoryEntry(t *testing.T) {
	rows := []attendance.Record{
		rec("P1", "2025-01-01", attendance.StatusPresent),
		rec("GHOST", "2025-01-01", attendance.StatusPresent),
	}

	kept := enrich.Apply(rows, enrich.Records, idx, enrich.Filter{})
	require.Len(t, kept, 2)
	assert.Nil(t, kept[1].Person)
	assert.Equal(t, "Unknown", kept[1].Name())
	assert.Equal(t, "Asha", kept[0].Name())

	statusOnly := enrich.Apply(rows, enrich.Records, idx, enrich.Filter{Status: "Present"})
	assert.Len(t, statusOnly, 2)

	filtered := enrich.Apply(rows, enrich.Records, idx, enrich.Filter{Department: "CSE"})
	assert.Equal(t, []string{"P1_2025-01-01"}, ids(filtered))
}

func TestLatest_SortsAndLimits(t *testing.T) {
	var rows []enrich.Row[attendance.ScanEvent]
	for i := 0; i < 600; i++ {
		rows = append(rows, enrich.Row[attendance.ScanEvent]{Value: attendance.ScanEvent{
			LogID:     fmt.Sprintf("L%03d", i),
			Timestamp: fmt.Sprintf("2025-01-01T10:%02d:%02d", i/60, i%60),
		}})
	}
	rows = append(rows,
		enrich.Row[attendance.ScanEvent]{Value: attendance.ScanEvent{LogID: "tie-old", Timestamp: "2025-01-02T00:00:00", ReceivedAt: "2025-01-02T00:00:01Z"}},
		enrich.Row[attendance.ScanEvent]{Value: attendance.ScanEvent{LogID: "tie-new", Timestamp: "2025-01-02T00:00:00", ReceivedAt: "2025-01-02T00:00:05Z"}},
	)

	got := enrich.Latest(rows, 1000)
	require.Len(t, got, enrich.MaxLimit)
	assert.Equal(t, "tie-new", got[0].Value.LogID)
	assert.Equal(t, "tie-old", got[1].Value.LogID)
	assert.Equal(t, "L599", got[2].Value.LogID)

	assert.Len(t, enrich.Latest(got, 0), enrich.DefaultLimit)
	assert.Len(t, enrich.Latest(got, 3), 3)
}
