package server

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/ndlib/folio/failure"
)

// the largest request body accepted
const maxBody = 4 << 20

var (
	errNoRoute  = failure.NotFound.New("no such route")
	errNoMethod = failure.Validation.New("method not allowed")
)

// every response body is one of these
type envelope struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusOf maps the stable error codes onto HTTP statuses.
func statusOf(code string) int {
	switch code {
	case failure.CodeValidation:
		return http.StatusBadRequest
	case failure.CodeNotFound:
		return http.StatusNotFound
	case failure.CodeForbidden:
		return http.StatusForbidden
	case failure.CodeInvalidTransition, failure.CodeConflict:
		return http.StatusConflict
	case failure.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	code := failure.CodeOf(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusOf(code))
	json.NewEncoder(w).Encode(envelope{Error: &apiError{Code: code, Message: err.Error()}})
}

// readJSON decodes the request body into v. Any problem is a validation
// error.
func readJSON(r *http.Request, v interface{}) error {
	data, err := ioutil.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return failure.Validation.Wrap(err)
	}
	if len(data) > maxBody {
		return failure.Validation.New("request body is larger than %d bytes", maxBody)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return failure.Validation.Wrap(err)
	}
	return nil
}

// etag quotes a fingerprint for use as an ETag header.
func etag(fingerprint string) string {
	return `"` + fingerprint + `"`
}

// unquote returns the first entity tag in an If-None-Match or If-Match
// header, without quotes or a weak prefix.
func unquote(header string) string {
	header = strings.TrimSpace(header)
	if i := strings.IndexByte(header, ','); i >= 0 {
		header = strings.TrimSpace(header[:i])
	}
	header = strings.TrimPrefix(header, "W/")
	return strings.Trim(header, `"`)
}
