package upload

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"rollcall/internal/apperror"
	"rollcall/internal/objectstore"
)

const (
	DefaultSession    = "upload"
	DefaultExpiration = 3600
	MaxExpiration     = 7 * 24 * 3600

	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv"
)

var (
	strictDate  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// PresignRequest asks for an upload grant. Date is mandatory and is the
// only source of the roster's date downstream.
type PresignRequest struct {
	Date        string `json:"date"`
	Session     string `json:"session"`
	Lecture     string `json:"lecture"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Expiration  int    `json:"expiration"`
}

// Presigned is the issued grant and the object key it covers.
type Presigned struct {
	PresignedURL string            `json:"presigned_url"`
	Method       string            `json:"method"`
	Fields       map[string]string `json:"fields"`
	ObjectKey    string            `json:"object_key"`
	Bucket       string            `json:"bucket"`
	ExpiresIn    int               `json:"expires_in"`
	ExpiresAt    string            `json:"expires_at"`
	DateUsed     string            `json:"date_used"`
}

// Issuer derives object keys and asks the object store for grants.
type Issuer struct {
	store objectstore.Presigner
	log   *zap.Logger
	now   func() time.Time
}

// NewIssuer creates an issuer over an object store.
func NewIssuer(store objectstore.Presigner, logger *zap.Logger) *Issuer {
	return &Issuer{store: store, log: logger.Named("upload.presign"), now: time.Now}
}

// ValidDate reports whether s is a strict YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	if !strictDate.MatchString(s) {
		return false
	}
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

// Issue validates the request and returns a grant for
// uploads/{date}_{session}_{unix_ms}.{ext}.
func (i *Issuer) Issue(ctx context.Context, req PresignRequest) (Presigned, error) {
	date := strings.TrimSpace(req.Date)
	if !ValidDate(date) {
		return Presigned{}, apperror.Validation(
			"a valid date in YYYY-MM-DD format is required, e.g. 2025-11-06",
			map[string]string{"date": req.Date},
		)
	}

	session := req.Session
	if strings.TrimSpace(session) == "" {
		session = req.Lecture
	}
	session = strings.Trim(unsafeChars.ReplaceAllString(strings.TrimSpace(session), "_"), "_")
	if session == "" {
		session = DefaultSession
	}

	ext := "xlsx"
	if e := strings.TrimPrefix(path.Ext(req.FileName), "."); e != "" {
		ext = strings.ToLower(e)
	}
	format, ok := FormatOf("." + ext)
	if !ok {
		return Presigned{}, apperror.Validation("file must be .xlsx or .csv", map[string]string{"file_name": req.FileName})
	}

	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = ContentTypeXLSX
		if format == CSV {
			contentType = ContentTypeCSV
		}
	}

	expiration := req.Expiration
	if expiration == 0 {
		expiration = DefaultExpiration
	}
	if expiration < 1 || expiration > MaxExpiration {
		return Presigned{}, apperror.Validation(
			fmt.Sprintf("expiration must be between 1 and %d seconds", MaxExpiration),
			map[string]int{"expiration": req.Expiration},
		)
	}

	now := i.now()
	key := fmt.Sprintf("uploads/%s_%s_%d.%s", date, session, now.UnixMilli(), ext)
	grant, err := i.store.Presign(ctx, key, contentType, now.Add(time.Duration(expiration)*time.Second))
	if err != nil {
		return Presigned{}, fmt.Errorf("presign %s: %w", key, err)
	}

	i.log.Info("upload grant issued",
		zap.String("object_key", key),
		zap.String("date", date),
		zap.String("session", session),
	)
	return Presigned{
		PresignedURL: grant.URL,
		Method:       grant.Method,
		Fields:       grant.Fields,
		ObjectKey:    key,
		Bucket:       grant.Bucket,
		ExpiresIn:    int(grant.ExpiresAt.Sub(now).Seconds()),
		ExpiresAt:    grant.ExpiresAt.UTC().Format(time.RFC3339),
		DateUsed:     date,
	}, nil
}
