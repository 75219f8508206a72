package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/account"
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/validate"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func caller(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authorization required")
	}
	return claims, ok
}

func forbidden(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "forbidden", "you may only access your own records")
}

// appointmentNotFound answers a request for someone else's appointment
// exactly like a missing one.
func appointmentNotFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "appointment_not_found", "appointment not found")
}

// writeServiceError maps domain errors onto HTTP responses. Anything it does
// not recognise is logged and reported as a 500 without internals.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var verr *validate.Error

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Details: verr.Error(),
			Fields:  verr.Fields,
		})
	case errors.Is(err, validate.ErrInvalid):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())

	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot is already booked")
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrInvalidReference):
		writeError(w, http.StatusUnprocessableEntity, "invalid_reference", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		appointmentNotFound(w)
	case errors.Is(err, appointment.ErrTransientStorage):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "storage is temporarily unavailable, please retry")

	case errors.Is(err, account.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, account.ErrInvalidResetToken), errors.Is(err, account.ErrInvalidVerificationToken):
		writeError(w, http.StatusBadRequest, "invalid_token", err.Error())
	case errors.Is(err, account.ErrProfileNotFound), errors.Is(err, account.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "profile_not_found", err.Error())

	default:
		logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
