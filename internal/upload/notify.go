// Package upload turns uploaded roster files into reconciliation batches.
package upload

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

// ErrNoObjects is returned when a notification names no uploaded object.
var ErrNoObjects = errors.New("notification names no uploaded object")

// ObjectRef identifies one uploaded object.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"object_key"`
}

type s3Record struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

type notification struct {
	Records []s3Record `json:"Records"`

	Bucket    string `json:"bucket"`
	ObjectKey string `json:"object_key"`
	Key       string `json:"key"`

	NotificationType string `json:"notification_type"`
	PublicID         string `json:"public_id"`

	Body json.RawMessage `json:"body"`
}

// maxUnwrap bounds how many string or body envelopes are peeled off.
const maxUnwrap = 3

// DecodeNotifications accepts an S3 event with Records, a flat
// {bucket, object_key}, a Cloudinary upload notification, or any of these
// string-encoded or nested under "body".
func DecodeNotifications(raw []byte) ([]ObjectRef, error) {
	return decode(raw, 0)
}

func decode(raw []byte, depth int) ([]ObjectRef, error) {
	raw = bytes.TrimSpace(raw)
	if depth > maxUnwrap || len(raw) == 0 {
		return nil, ErrNoObjects
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return decode([]byte(s), depth+1)
	}

	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}

	switch {
	case len(n.Records) > 0:
		refs := make([]ObjectRef, 0, len(n.Records))
		for _, r := range n.Records {
			key := r.S3.Object.Key
			// S3 event keys are form-encoded.
			if k, err := url.QueryUnescape(key); err == nil {
				key = k
			}
			if key != "" {
				refs = append(refs, ObjectRef{Bucket: r.S3.Bucket.Name, Key: key})
			}
		}
		if len(refs) == 0 {
			return nil, ErrNoObjects
		}
		return refs, nil
	case n.ObjectKey != "" || n.Key != "":
		key := n.ObjectKey
		if key == "" {
			key = n.Key
		}
		return []ObjectRef{{Bucket: n.Bucket, Key: key}}, nil
	case n.PublicID != "" && (n.NotificationType == "" || strings.EqualFold(n.NotificationType, "upload")):
		return []ObjectRef{{Key: n.PublicID}}, nil
	case len(n.Body) > 0 && string(n.Body) != "null":
		return decode(n.Body, depth+1)
	}
	return nil, ErrNoObjects
}
