package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MaxObjectSize bounds a single uploaded roster.
const MaxObjectSize = 20 << 20

// GrantClaims is the JWT payload of a local upload grant.
type GrantClaims struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	jwt.RegisteredClaims
}

// Local keeps objects on disk and grants uploads through signed URLs served
// by this process at PUT /v1/objects/{key}?token=.
type Local struct {
	Root       string
	BucketName string
	BaseURL    string
	Issuer     string
	SigningKey string
	now        func() time.Time
}

// NewLocal creates a local store rooted at dir.
func NewLocal(dir, bucket, baseURL, issuer, signingKey string) (*Local, error) {
	if signingKey == "" {
		return nil, errors.New("objectstore: signing key is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create root: %w", err)
	}
	return &Local{
		Root:       dir,
		BucketName: bucket,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Issuer:     issuer,
		SigningKey: signingKey,
		now:        time.Now,
	}, nil
}

// Bucket names the single bucket this store serves.
func (l *Local) Bucket() string { return l.BucketName }

// Presign signs a grant bound to key and content type.
func (l *Local) Presign(_ context.Context, key, contentType string, exp time.Time) (Grant, error) {
	now := l.now()
	claims := GrantClaims{
		Key:         key,
		ContentType: contentType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    l.Issuer,
			Subject:   key,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(l.SigningKey))
	if err != nil {
		return Grant{}, err
	}
	u := l.BaseURL + "/v1/objects/" + (&url.URL{Path: key}).EscapedPath() + "?" + url.Values{"token": {token}}.Encode()
	return Grant{
		URL:       u,
		Method:    "PUT",
		Fields:    map[string]string{"Content-Type": contentType},
		Bucket:    l.BucketName,
		ExpiresAt: exp,
	}, nil
}

// Verify checks a grant token and that it was issued for key.
func (l *Local) Verify(token, key string) (GrantClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &GrantClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(l.SigningKey), nil
	}, jwt.WithTimeFunc(l.now))
	if err != nil {
		return GrantClaims{}, err
	}
	claims, ok := parsed.Claims.(*GrantClaims)
	if !ok || !parsed.Valid {
		return GrantClaims{}, errors.New("invalid token")
	}
	if l.Issuer != "" && claims.Issuer != l.Issuer {
		return GrantClaims{}, errors.New("issuer mismatch")
	}
	if claims.Key != key {
		return GrantClaims{}, errors.New("token was issued for another key")
	}
	return *claims, nil
}

// Put stores an object, refusing bodies over MaxObjectSize.
func (l *Local) Put(_ context.Context, key string, body io.Reader) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(body, MaxObjectSize+1))
	if err != nil {
		return err
	}
	if len(data) > MaxObjectSize {
		return fmt.Errorf("%s: %w", key, ErrTooLarge)
	}
	return os.WriteFile(path, data, 0o644)
}

// Get reads an object. The bucket is ignored: a local store has one.
func (l *Local) Get(_ context.Context, _, key string) ([]byte, error) {
	path, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, err
}

func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("objectstore: invalid key %q", key)
	}
	return filepath.Join(l.Root, clean), nil
}
