package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxJSONBodyBytes int64 = 1024 * 1024

// decodeJSONBody enforces a body size cap and rejects unknown fields —
// §4.5's "unknown or malformed fields reject with 422" — by returning a
// decode error the caller routes to writeValidationError. An empty body
// is accepted as a zero-value dst for endpoints whose fields are all
// optional (complete with no result); heartbeat takes no body and does
// not call this.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid request body: trailing data after JSON value")
	}
	return nil
}
