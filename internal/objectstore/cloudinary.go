package objectstore

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// cloudinarySignatureTTL is how long Cloudinary accepts a signed timestamp.
const cloudinarySignatureTTL = time.Hour

// Cloudinary stores rosters as raw resources. Grants are signed form
// parameters for a direct browser upload.
type Cloudinary struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	HTTP      *http.Client

	apiBase      string
	deliveryBase string
	now          func() time.Time
}

// NewCloudinary creates a Cloudinary backend.
func NewCloudinary(cloudName, apiKey, apiSecret, folder string) *Cloudinary {
	return &Cloudinary{
		CloudName:    cloudName,
		APIKey:       apiKey,
		APISecret:    apiSecret,
		Folder:       folder,
		HTTP:         &http.Client{Timeout: 30 * time.Second},
		apiBase:      "https://api.cloudinary.com",
		deliveryBase: "https://res.cloudinary.com",
		now:          time.Now,
	}
}

// Presign returns the signed parameters for a raw upload of key. The grant
// expires at the earlier of expiresAt and Cloudinary's signature window.
func (c *Cloudinary) Presign(_ context.Context, key, _ string, expiresAt time.Time) (Grant, error) {
	now := c.now()
	if limit := now.Add(cloudinarySignatureTTL); expiresAt.After(limit) {
		expiresAt = limit
	}
	params := map[string]string{
		"timestamp": strconv.FormatInt(now.Unix(), 10),
		"public_id": key,
		"api_key":   c.APIKey,
	}
	if c.Folder != "" {
		params["folder"] = c.Folder
	}
	params["signature"] = c.sign(params)

	return Grant{
		URL:       fmt.Sprintf("%s/v1_1/%s/raw/upload", c.apiBase, c.CloudName),
		Method:    "POST",
		Fields:    params,
		Bucket:    c.CloudName,
		ExpiresAt: expiresAt,
	}, nil
}

// Get downloads a raw resource by public id.
func (c *Cloudinary) Get(ctx context.Context, _, key string) ([]byte, error) {
	id := key
	if c.Folder != "" && !strings.HasPrefix(id, c.Folder+"/") {
		id = c.Folder + "/" + id
	}
	u := fmt.Sprintf("%s/%s/raw/upload/%s", c.deliveryBase, c.CloudName, (&url.URL{Path: id}).EscapedPath())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("cloudinary: read body failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudinary: fetch failed (%d)", resp.StatusCode)
	}
	if len(body) > MaxObjectSize {
		return nil, fmt.Errorf("cloudinary: object exceeds %d bytes", MaxObjectSize)
	}
	return body, nil
}

// sign computes the Cloudinary API signature from the given params.
// api_key, file and resource_type are not signed.
func (c *Cloudinary) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	h := sha1.New()
	h.Write([]byte(strings.Join(pairs, "&") + c.APISecret))
	return fmt.Sprintf("%x", h.Sum(nil))
}
