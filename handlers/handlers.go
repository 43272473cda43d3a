package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"sportrecord/assessment"
	"sportrecord/database"

	"gorm.io/gorm"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// statusForError maps domain errors onto HTTP statuses so handlers share one
// translation.
func statusForError(err error) int {
	var unknownShard *database.UnknownShardError
	var permDenied *assessment.PermissionDeniedError
	var cooldown *assessment.CooldownActiveError
	var conflict *assessment.IntegrityConflictError
	var badValue *assessment.ValueFormatError

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.As(err, &unknownShard):
		return http.StatusBadRequest
	case errors.Is(err, assessment.ErrNotConnected),
		errors.Is(err, assessment.ErrRelationshipNotAllowed),
		errors.As(err, &permDenied):
		return http.StatusForbidden
	case errors.As(err, &cooldown):
		return http.StatusTooManyRequests
	case errors.As(err, &conflict), errors.As(err, &badValue):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
