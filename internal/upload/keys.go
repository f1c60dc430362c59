package upload

import (
	"path"
	"regexp"
	"strings"
	"time"
)

var (
	keyDate = regexp.MustCompile(`(\d{4}[-/]\d{2}[-/]\d{2})`)

	// Keys issued by Issuer: {date}_{session}_{unix_ms}.{ext}
	issuedName = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_(.+)_\d{13}\.[A-Za-z0-9]+$`)

	lectureToken = regexp.MustCompile(`(?i)(?:^|[^A-Za-z])(lec(?:ture)?[_\s-]*[A-Za-z0-9]+)`)
	subjectToken = regexp.MustCompile(`([A-Z][a-z]+)[_\s]*\d{4}`)
)

// DateFromKey returns the first real YYYY-MM-DD or YYYY/MM/DD date in key.
func DateFromKey(key string) (string, bool) {
	for _, m := range keyDate.FindAllString(key, -1) {
		d := strings.ReplaceAll(m, "/", "-")
		if _, err := time.Parse(time.DateOnly, d); err == nil {
			return d, true
		}
	}
	return "", false
}

// SessionFromKey extracts the session name from an object key. Names
// written by Issuer are read back exactly; otherwise the first lecture token
// that starts a word is used, then a capitalised subject word preceding a digit run.
func SessionFromKey(key string) (string, bool) {
	name := path.Base(key)
	if m := issuedName.FindStringSubmatch(name); m != nil {
		return m[1], true
	}
	if m := lectureToken.FindStringSubmatch(name); m != nil {
		return m[1], true
	}
	if m := subjectToken.FindStringSubmatch(name); m != nil {
		return m[1], true
	}
	return "", false
}

// FallbackSession names a session when the key carries none.
func FallbackSession(now time.Time) string {
	return "Lecture_" + now.Format("15:04")
}
