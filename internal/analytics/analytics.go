// Package analytics reduces enriched Ledger rows into per-period statistics.
package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rollcall/internal/attendance"
	"rollcall/internal/enrich"
)

// Granularity selects how rows are grouped into buckets.
type Granularity string

const (
	Daily    Granularity = "daily"
	Weekly   Granularity = "weekly"
	Monthly  Granularity = "monthly"
	Semester Granularity = "semester"
	Overall  Granularity = "overall"
)

// Periods lists the granularities a caller may request.
var Periods = []Granularity{Daily, Weekly, Monthly, Semester}

// ParsePeriod accepts one of Periods; an empty string means Daily.
func ParsePeriod(s string) (Granularity, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Daily, true
	}
	for _, p := range Periods {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Unknown stands in for a missing department or cohort.
const Unknown = "Unknown"

var hundred = decimal.NewFromInt(100)

// Percentage returns present/total*100 rounded to two places, or 0 when
// total is 0.
func Percentage(present, total int) float64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromInt(int64(present)).
		Mul(hundred).
		DivRound(decimal.NewFromInt(int64(total)), 2).
		InexactFloat64()
}

// Counts tallies statuses. Absent stays 0 while the Ledger stores no Absent
// records.
type Counts struct {
	Present              int     `json:"present"`
	Absent               int     `json:"absent"`
	Proxy                int     `json:"proxy"`
	Bunk                 int     `json:"bunk"`
	Total                int     `json:"total"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

func (c *Counts) add(st attendance.Status) {
	switch st {
	case attendance.StatusPresent:
		c.Present++
	case attendance.StatusAbsent:
		c.Absent++
	case attendance.StatusProxy:
		c.Proxy++
	case attendance.StatusBunk:
		c.Bunk++
	}
	c.Total++
}

func (c *Counts) finish() {
	c.AttendancePercentage = Percentage(c.Present, c.Total)
}

// Bucket is one group of an aggregation. Only the label fields of its
// granularity are set.
type Bucket struct {
	Key        string `json:"key"`
	Date       string `json:"date,omitempty"`
	Week       string `json:"week,omitempty"`
	Month      string `json:"month,omitempty"`
	Department string `json:"department,omitempty"`
	Cohort     string `json:"cohort,omitempty"`
	Counts
	DaysCount      int `json:"days_count,omitempty"`
	UniqueStudents int `json:"unique_students,omitempty"`

	dates    map[string]struct{}
	students map[string]struct{}
}

type row = enrich.Row[attendance.Record]

// Aggregate groups rows by g and returns buckets in ascending key order.
// Rows without a usable date are left out of date-keyed granularities.
func Aggregate(rows []row, g Granularity) []Bucket {
	groups := make(map[string]*Bucket)
	for _, r := range rows {
		b := bucketFor(groups, r, g)
		if b == nil {
			continue
		}
		b.add(r.Value.Status)
		b.dates[r.Value.Date] = struct{}{}
		b.students[r.Value.PersonID] = struct{}{}
	}

	out := make([]Bucket, 0, len(groups))
	for _, b := range groups {
		b.finish()
		switch g {
		case Weekly:
			b.DaysCount = len(b.dates)
		case Semester:
			b.UniqueStudents = len(b.students)
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func bucketFor(groups map[string]*Bucket, r row, g Granularity) *Bucket {
	date := r.Value.Date
	var label Bucket
	switch g {
	case Daily:
		if date == "" {
			return nil
		}
		label = Bucket{Key: date, Date: date}
	case Weekly:
		wk, ok := WeekKey(date)
		if !ok {
			return nil
		}
		label = Bucket{Key: wk, Week: wk}
	case Monthly:
		if len(date) < 7 {
			return nil
		}
		label = Bucket{Key: date[:7], Month: date[:7]}
	case Semester:
		dept, cohort := Unknown, Unknown
		if p := r.Person; p != nil {
			if p.Department != "" {
				dept = p.Department
			}
			if p.Cohort != "" {
				cohort = p.Cohort
			}
		}
		label = Bucket{Key: dept + "_" + cohort, Department: dept, Cohort: cohort}
	default:
		label = Bucket{Key: string(Overall)}
	}

	b, ok := groups[label.Key]
	if !ok {
		b = &label
		b.dates = make(map[string]struct{})
		b.students = make(map[string]struct{})
		groups[label.Key] = b
	}
	return b
}

// WeekKey returns the week of a YYYY-MM-DD date as "2025-W02". This is not
// ISO week numbering: weeks are seven-day blocks counted from January 1, so
// 2025-01-01 through 2025-01-07 are all W01, a week never spans two years and
// the last one of a year is one or two days long.
func WeekKey(date string) (string, bool) {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%d-W%02d", t.Year(), (t.YearDay()-1)/7+1), true
}

// Summary is the overall statistics block of an analytics response.
type Summary struct {
	Counts
	UniqueStudents int `json:"unique_students"`
	UniqueDates    int `json:"unique_dates"`
}

// Summarize computes overall statistics across every row.
func Summarize(rows []row) Summary {
	var s Summary
	students := make(map[string]struct{})
	dates := make(map[string]struct{})
	for _, r := range rows {
		s.add(r.Value.Status)
		students[r.Value.PersonID] = struct{}{}
		if r.Value.Date != "" {
			dates[r.Value.Date] = struct{}{}
		}
	}
	s.finish()
	s.UniqueStudents = len(students)
	s.UniqueDates = len(dates)
	return s
}

// Tally returns the per-status counts of rows, as used by result listings.
func Tally(rows []row) Counts {
	var c Counts
	for _, r := range rows {
		c.add(r.Value.Status)
	}
	c.finish()
	return c
}
