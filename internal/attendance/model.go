package attendance

import (
	"strings"

	"rollcall/internal/store"
)

// Status is the classification stored on a Ledger record.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
	StatusProxy   Status = "Proxy"
	StatusBunk    Status = "Bunk"
)

// Statuses lists every valid status in reporting order.
var Statuses = []Status{StatusPresent, StatusAbsent, StatusProxy, StatusBunk}

// ParseStatus accepts a status name in any letter case.
func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, true
		}
	}
	return "", false
}

// Person is one Directory entry.
type Person struct {
	PersonID   string `json:"person_id"`
	BadgeID    string `json:"badge_id"`
	Name       string `json:"name"`
	Cohort     string `json:"cohort"`
	Department string `json:"department"`
	Section    string `json:"section"`
}

// ScanEvent is one badge scan from the ScanLog.
type ScanEvent struct {
	LogID      string `json:"log_id"`
	BadgeID    string `json:"badge_id"`
	PersonID   string `json:"person_id"`
	Timestamp  string `json:"timestamp"`
	Date       string `json:"date"`
	ReceivedAt string `json:"received_at"`
}

// Record is one Ledger decision.
type Record struct {
	AttendanceID string `json:"attendance_id"`
	PersonID     string `json:"person_id"`
	BadgeID      string `json:"badge_id"`
	Date         string `json:"date"`
	Session      string `json:"session"`
	Status       Status `json:"status"`
	SourceFile   string `json:"source_file"`
	ProcessedAt  string `json:"processed_at"`
}

const bunkSuffix = "_bunk"

// AttendanceID derives the deterministic ledger key for a person's session.
// Bunk records get their own key so they never overwrite a roster decision.
func AttendanceID(personID, date, session string, status Status) string {
	id := personID + "_" + date + "_" + strings.ReplaceAll(session, " ", "_")
	if status == StatusBunk {
		id += bunkSuffix
	}
	return id
}

// LogID derives the deterministic scan key, so a redelivered scan overwrites.
func LogID(personID, timestamp string) string {
	return personID + "_" + strings.NewReplacer(":", "-", ".", "-").Replace(timestamp)
}

func (p Person) item() store.Item {
	return store.Item{
		"person_id":  p.PersonID,
		"badge_id":   p.BadgeID,
		"name":       p.Name,
		"cohort":     p.Cohort,
		"department": p.Department,
		"section":    p.Section,
	}
}

func personFrom(it store.Item) Person {
	return Person{
		PersonID:   it["person_id"],
		BadgeID:    it["badge_id"],
		Name:       it["name"],
		Cohort:     it["cohort"],
		Department: it["department"],
		Section:    it["section"],
	}
}

func (e ScanEvent) item() store.Item {
	return store.Item{
		"log_id":      e.LogID,
		"badge_id":    e.BadgeID,
		"person_id":   e.PersonID,
		"timestamp":   e.Timestamp,
		"date":        e.Date,
		"received_at": e.ReceivedAt,
	}
}

func scanFrom(it store.Item) ScanEvent {
	return ScanEvent{
		LogID:      it["log_id"],
		BadgeID:    it["badge_id"],
		PersonID:   it["person_id"],
		Timestamp:  it["timestamp"],
		Date:       it["date"],
		ReceivedAt: it["received_at"],
	}
}

func (r Record) item() store.Item {
	return store.Item{
		"attendance_id": r.AttendanceID,
		"person_id":     r.PersonID,
		"badge_id":      r.BadgeID,
		"date":          r.Date,
		"session":       r.Session,
		"status":        string(r.Status),
		"source_file":   r.SourceFile,
		"processed_at":  r.ProcessedAt,
	}
}

func recordFrom(it store.Item) Record {
	return Record{
		AttendanceID: it["attendance_id"],
		PersonID:     it["person_id"],
		BadgeID:      it["badge_id"],
		Date:         it["date"],
		Session:      it["session"],
		Status:       Status(it["status"]),
		SourceFile:   it["source_file"],
		ProcessedAt:  it["processed_at"],
	}
}

// Index maps person ids to Directory entries.
type Index map[string]Person

// NewIndex indexes people by person id.
func NewIndex(people []Person) Index {
	idx := make(Index, len(people))
	for _, p := range people {
		idx[p.PersonID] = p
	}
	return idx
}

// Lookup returns the person for id, or nil when the Directory has no entry.
func (idx Index) Lookup(id string) *Person {
	p, ok := idx[id]
	if !ok {
		return nil
	}
	return &p
}
