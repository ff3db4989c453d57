package validators

import (
	"net/http"
	"strings"

	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
)

const maxIDLength = 128

// QueryID returns a trimmed id query parameter; empty means absent.
func QueryID(r *http.Request, key string) (string, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if len(value) > maxIDLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter too long").WithDetails(map[string]any{"field": key, "max": maxIDLength})
	}
	return value, nil
}

// RequiredQueryID is QueryID that rejects an absent value.
func RequiredQueryID(r *http.Request, key string) (string, error) {
	value, err := QueryID(r, key)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter is required").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}
