// Package handler contains HTTP request handlers for the scheduling API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shiva/fleetops/internal/middleware"
	"github.com/shiva/fleetops/internal/service"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// ─── Request validation ─────────────────────────────────────

// newValidator reports fields by their JSON names and knows the "clock"
// tag for HH:MM times.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := timeslot.ParseClock(fl.Field().String())
		return err == nil
	})
	return v
}

// decode reads a JSON body into dst and validates it.
func decode(v *validator.Validate, r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &service.ValidationError{Fields: []service.FieldError{{Field: "body", Message: "invalid JSON body"}}}
	}
	return validateStruct(v, dst)
}

func validateStruct(v *validator.Validate, dst any) error {
	err := v.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]service.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, service.FieldError{Field: fieldPath(fe), Message: fieldMessage(fe)})
	}
	return &service.ValidationError{Fields: fields}
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "datetime":
		return "must be a date (YYYY-MM-DD)"
	case "clock":
		return "must be a time (HH:MM)"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "min":
		return "must contain at least " + fe.Param() + " item(s)"
	}
	return "is invalid"
}

// ─── Path & query helpers ───────────────────────────────────

func tenantOf(r *http.Request) int64 {
	id, _ := middleware.TenantID(r.Context())
	return id
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, &service.ValidationError{Fields: []service.FieldError{{Field: name, Message: "must be a positive integer"}}}
	}
	return id, nil
}

// query collects parse failures for optional query parameters.
type query struct {
	r      *http.Request
	fields []service.FieldError
}

func (q *query) date(name string) *time.Time {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	d, err := timeslot.ParseDate(raw)
	if err != nil {
		q.fields = append(q.fields, service.FieldError{Field: name, Message: "must be a date (YYYY-MM-DD)"})
		return nil
	}
	return &d
}

// required records a missing parameter.
func (q *query) required(name string, v *time.Time) {
	if v == nil && q.r.URL.Query().Get(name) == "" {
		q.fields = append(q.fields, service.FieldError{Field: name, Message: "is required"})
	}
}

func (q *query) id(name string) *int64 {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		q.fields = append(q.fields, service.FieldError{Field: name, Message: "must be a positive integer"})
		return nil
	}
	return &id
}

func (q *query) err() error {
	if len(q.fields) == 0 {
		return nil
	}
	return &service.ValidationError{Fields: q.fields}
}

// ─── Responses ──────────────────────────────────────────────

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps service errors to status codes and machine-readable codes.
func writeError(w http.ResponseWriter, log *zap.Logger, r *http.Request, err error) {
	var (
		verr     *service.ValidationError
		conflict *service.ConflictError
		aborted  *service.BatchAbortedError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "validation_failed",
			"message": "Request validation failed.",
			"fields":  verr.Fields,
		})
	case errors.As(err, &aborted):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "transaction_aborted",
			"message": "The batch was rolled back; no trips were created.",
			"index":   aborted.Index,
			"reason":  aborted.Err.Error(),
		})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":   "scheduling_conflict",
			"message": "The trip has critical scheduling conflicts.",
			"report":  conflict.Report,
		})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrSlotBusy):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "slot_busy",
			"message": "Another request is scheduling this driver or customer. Please retry.",
		})
	case errors.Is(err, service.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "invalid_transition",
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrDuplicateTrip):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "duplicate_trip",
			"message": "A regular trip already exists for this customer, date and time.",
		})
	default:
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFrom(r.Context())),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal_error",
		})
	}
}
