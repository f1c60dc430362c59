package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"rollcall/internal/apperror"
)

const maxBodyBytes = 1 << 20

// decodeBody unmarshals a request body that is either the object itself or
// wrapped as {"body": "<json string>"} or {"body": {...}}.
func decodeBody(r *http.Request, v any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperror.Validation("unreadable request body", nil)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return apperror.Validation("request body is required", nil)
	}

	var envelope struct {
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return apperror.Validation("request body is not valid JSON", err.Error())
	}
	if inner := bytes.TrimSpace(envelope.Body); len(inner) > 0 && !bytes.Equal(inner, []byte("null")) {
		raw = inner
		if inner[0] == '"' {
			var s string
			if err := json.Unmarshal(inner, &s); err != nil {
				return apperror.Validation("request body is not valid JSON", err.Error())
			}
			raw = []byte(s)
		}
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return apperror.Validation("request body is not valid JSON", err.Error())
	}
	return nil
}
