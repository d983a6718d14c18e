// Package httpapi translates HTTP/JSON into component calls and owns
// rate limiting, CORS, CSRF enforcement, and security headers. Handlers
// return an error instead of writing one directly; a single decorator
// maps it onto the response using internal/apperr.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/darkauth/darkauth/internal/apperr"
	"github.com/darkauth/darkauth/internal/logging"
)

// HandlerFunc is an HTTP handler that returns a domain error instead of
// writing one itself; Wrap turns that into a standard http.HandlerFunc.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Wrap decorates fn so any returned error is mapped to the OIDC-flavored
// `{error, error_description}` JSON shape, with 5xx causes logged and
// genericized and everything else passed through with
// its domain message.
func Wrap(logger *logging.Logger, fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeError(logger, w, err)
		}
	}
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeError(logger *logging.Logger, w http.ResponseWriter, err error) {
	code := apperr.Code(err)
	body := errorBody{Error: string(apperr.KindOf(err))}

	if code >= http.StatusInternalServerError {
		logger.Errorw("internal server error", "error", err)
		body.ErrorDescription = "internal error"
	} else {
		body.ErrorDescription = err.Error()
		if e, ok := err.(*apperr.Error); ok {
			body.ErrorDescription = e.Message
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("malformed request body", err)
	}
	return nil
}
