package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/pkg/result"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

// statusFor maps an error kind to its HTTP status. Clients read the kind from
// the envelope; the status only helps proxies and logs.
func statusFor(kind result.Kind) int {
	switch kind {
	case result.KindValidation:
		return http.StatusBadRequest
	case result.KindUnauthorized:
		return http.StatusUnauthorized
	case result.KindForbidden:
		return http.StatusForbidden
	case result.KindNotFound:
		return http.StatusNotFound
	case result.KindConflict:
		return http.StatusConflict
	case result.KindInsufficient:
		return http.StatusUnprocessableEntity
	case result.KindInFlight:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeOK writes {"ok":true,"value":...}.
func writeOK[T any](w http.ResponseWriter, status int, value T) {
	writeJSON(w, status, result.OK(value))
}

// writeError writes {"ok":false,"kind":...,"message":...}. Unclassified
// errors are logged and reported as a generic backend failure.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := result.KindOf(err)
	if kind == result.KindBackend {
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", requestID(r)).
			Msg("Request failed")
	}
	writeJSON(w, statusFor(kind), result.FromError[any](err))
}

// respond writes the value or the error.
func respond[T any](w http.ResponseWriter, r *http.Request, value T, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, value)
}

// decode reads a JSON body into v and validates its tags.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return result.New(result.KindValidation, "request body too large")
		}
		return result.Wrap(result.KindValidation, "invalid request body", err)
	}
	return validateStruct(v)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return result.Errorf(result.KindValidation, "invalid fields: %s", strings.Join(fields, ", "))
}

// queryInt reads an integer query parameter, falling back to def when it is
// missing or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// ifMatchVersion parses the progress version from If-Match. ETag quoting and
// the weak prefix are accepted.
func ifMatchVersion(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		return 0, errMissingVersion
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return 0, errMissingVersion
	}
	return v, nil
}
