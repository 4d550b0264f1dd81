package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/angiebeauty/storefront/pkg/httputil"
	"github.com/angiebeauty/storefront/pkg/validator"
)

// maxBodyBytes bounds request bodies; the largest form is a few hundred bytes.
const maxBodyBytes = 64 << 10

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are rejected
// so that typos in form field names surface as errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.Response{
				Error: &httputil.ErrorResponse{
					Code:    "PAYLOAD_TOO_LARGE",
					Message: fmt.Sprintf("request body must not exceed %d bytes", maxBodyBytes),
				},
			})
			return false
		}
		httputil.WriteBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// decodeAndValidate decodes the body and runs struct validation. Failures are
// written to w.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decodeJSON(w, r, dst) {
		return false
	}
	if err := validator.Validate(dst); err != nil {
		httputil.WriteError(w, r, err, nil)
		return false
	}
	return true
}
