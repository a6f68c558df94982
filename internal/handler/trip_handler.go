package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/internal/service"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// TripCommands is the trip service surface the handler calls.
type TripCommands interface {
	Create(ctx context.Context, t *model.Trip, override bool) (*service.CreateResult, error)
	BulkCreate(ctx context.Context, trips []*model.Trip) ([]*model.Trip, error)
	List(ctx context.Context, f model.TripFilter) ([]model.Trip, error)
	Get(ctx context.Context, tenantID, id int64) (*model.Trip, error)
	ChangeStatus(ctx context.Context, tenantID, id int64, to model.TripStatus) (*model.Trip, error)
	Cancel(ctx context.Context, tenantID, id int64) (*model.Trip, error)
	Reassign(ctx context.Context, tenantID, id, driverID int64, vehicleID *int64, override bool) (*service.CreateResult, error)
}

// ConflictChecker runs conflict detection without writing.
type ConflictChecker interface {
	CheckConflicts(ctx context.Context, tenantID int64, candidate *model.Trip, excludeTripID *int64) (*model.ConflictReport, error)
}

// ─── Request DTOs ───────────────────────────────────────────

// TripBody is the JSON body for POST /api/v1/trips and each row of a bulk create.
type TripBody struct {
	CustomerID         int64   `json:"customerId" validate:"required,gt=0"`
	DriverID           *int64  `json:"driverId" validate:"omitempty,gt=0"`
	VehicleID          *int64  `json:"vehicleId" validate:"omitempty,gt=0"`
	TripDate           string  `json:"tripDate" validate:"required,datetime=2006-01-02"`
	PickupTime         string  `json:"pickupTime" validate:"required,clock"`
	ReturnTime         *string `json:"returnTime" validate:"omitempty,clock"`
	PickupLocation     string  `json:"pickupLocation"`
	PickupAddress      string  `json:"pickupAddress"`
	Destination        string  `json:"destination" validate:"required"`
	DestinationAddress string  `json:"destinationAddress"`
	TripType           string  `json:"tripType" validate:"omitempty,oneof=adhoc regular"`
	Urgent             bool    `json:"urgent"`
	Price              float64 `json:"price" validate:"gte=0"`
	PassengerCount     int     `json:"passengerCount" validate:"omitempty,gte=1"`
	RequiresWheelchair bool    `json:"requiresWheelchair"`
	RequiresEscort     bool    `json:"requiresEscort"`
	Notes              string  `json:"notes"`

	// OverrideConflicts is honoured on single creates only.
	OverrideConflicts bool `json:"overrideConflicts"`
}

// toTrip converts an already validated body.
func (b *TripBody) toTrip(tenantID int64) *model.Trip {
	date, _ := timeslot.ParseDate(b.TripDate)
	t := &model.Trip{
		TenantID:           tenantID,
		CustomerID:         b.CustomerID,
		DriverID:           b.DriverID,
		VehicleID:          b.VehicleID,
		TripDate:           date,
		PickupTime:         timeslot.MustClock(b.PickupTime),
		PickupLocation:     b.PickupLocation,
		PickupAddress:      b.PickupAddress,
		Destination:        b.Destination,
		DestinationAddress: b.DestinationAddress,
		TripType:           model.TripType(b.TripType),
		Urgent:             b.Urgent,
		Price:              b.Price,
		PassengerCount:     b.PassengerCount,
		RequiresWheelchair: b.RequiresWheelchair,
		RequiresEscort:     b.RequiresEscort,
		Notes:              b.Notes,
	}
	if b.ReturnTime != nil {
		rt := timeslot.MustClock(*b.ReturnTime)
		t.ReturnTime = &rt
	}
	if t.PickupLocation == "" {
		t.PickupLocation = t.PickupAddress
	}
	if t.DestinationAddress == "" {
		t.DestinationAddress = t.Destination
	}
	return t
}

// BulkTripsBody is the JSON body for POST /api/v1/trips/bulk.
type BulkTripsBody struct {
	Trips []TripBody `json:"trips" validate:"required,min=1,dive"`
}

// CheckConflictsBody is the JSON body for POST /api/v1/trips/check-conflicts.
type CheckConflictsBody struct {
	TripID     *int64  `json:"tripId" validate:"omitempty,gt=0"`
	DriverID   *int64  `json:"driverId" validate:"required_without=CustomerID"`
	CustomerID *int64  `json:"customerId" validate:"omitempty,gt=0"`
	VehicleID  *int64  `json:"vehicleId" validate:"omitempty,gt=0"`
	TripDate   string  `json:"tripDate" validate:"required,datetime=2006-01-02"`
	PickupTime string  `json:"pickupTime" validate:"required,clock"`
	ReturnTime *string `json:"returnTime" validate:"omitempty,clock"`
}

// StatusBody is the JSON body for POST /api/v1/trips/{id}/status.
type StatusBody struct {
	Status string `json:"status" validate:"required,oneof=scheduled in_progress completed cancelled"`
}

// ReassignBody is the JSON body for PUT /api/v1/trips/{id}/driver.
type ReassignBody struct {
	DriverID  int64  `json:"driverId" validate:"required,gt=0"`
	VehicleID *int64 `json:"vehicleId" validate:"omitempty,gt=0"`
	Override  bool   `json:"override"`
}

// ─── TripHandler ────────────────────────────────────────────

// TripHandler handles trip CRUD, lifecycle and conflict checks.
type TripHandler struct {
	trips     TripCommands
	conflicts ConflictChecker
	validate  *validator.Validate
	log       *zap.Logger
}

// NewTripHandler creates a new trip handler.
func NewTripHandler(trips TripCommands, conflicts ConflictChecker, log *zap.Logger) *TripHandler {
	return &TripHandler{trips: trips, conflicts: conflicts, validate: newValidator(), log: log}
}

// Register mounts the trip routes. {id} only matches digits, so the static
// /trips/* paths never collide with it.
func (h *TripHandler) Register(api *mux.Router) {
	api.HandleFunc("/trips", h.Create).Methods(http.MethodPost)
	api.HandleFunc("/trips", h.List).Methods(http.MethodGet)
	api.HandleFunc("/trips/bulk", h.BulkCreate).Methods(http.MethodPost)
	api.HandleFunc("/trips/check-conflicts", h.CheckConflicts).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id:[0-9]+}/status", h.ChangeStatus).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id:[0-9]+}/cancel", h.Cancel).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id:[0-9]+}/driver", h.Reassign).Methods(http.MethodPut)
}

// Create handles POST /api/v1/trips
//
// Response codes:
//
//	201  Trip created (with any warnings)
//	400  Validation failed
//	404  Customer, driver or vehicle not found
//	409  Critical conflicts (without overrideConflicts), slot busy or duplicate
func (h *TripHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body TripBody
	if err := decode(h.validate, r, &body); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	res, err := h.trips.Create(r.Context(), body.toTrip(tenantOf(r)), body.OverrideConflicts)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// BulkCreate handles POST /api/v1/trips/bulk
//
// All-or-nothing: any failing row rolls back the batch with 422.
func (h *TripHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	var body BulkTripsBody
	if err := decode(h.validate, r, &body); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	tenantID := tenantOf(r)
	trips := make([]*model.Trip, len(body.Trips))
	for i := range body.Trips {
		trips[i] = body.Trips[i].toTrip(tenantID)
	}

	created, err := h.trips.BulkCreate(r.Context(), trips)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"count": len(created),
		"trips": created,
	})
}

// List handles GET /api/v1/trips?startDate=&endDate=&date=&driverId=&customerId=&status=&tripType=
func (h *TripHandler) List(w http.ResponseWriter, r *http.Request) {
	q := &query{r: r}
	f := model.TripFilter{
		TenantID:   tenantOf(r),
		From:       q.date("startDate"),
		To:         q.date("endDate"),
		Date:       q.date("date"),
		DriverID:   q.id("driverId"),
		CustomerID: q.id("customerId"),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := model.TripStatus(s)
		switch status {
		case model.TripScheduled, model.TripInProgress, model.TripCompleted, model.TripCancelled:
			f.Status = &status
		default:
			q.fields = append(q.fields, service.FieldError{Field: "status", Message: "is not a trip status"})
		}
	}
	if s := r.URL.Query().Get("tripType"); s != "" {
		tt := model.TripType(s)
		if tt != model.TripAdhoc && tt != model.TripRegular {
			q.fields = append(q.fields, service.FieldError{Field: "tripType", Message: "must be one of: adhoc regular"})
		} else {
			f.TripType = &tt
		}
	}
	if err := q.err(); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	trips, err := h.trips.List(r.Context(), f)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(trips),
		"trips": trips,
	})
}

// Get handles GET /api/v1/trips/{id}
func (h *TripHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	t, err := h.trips.Get(r.Context(), tenantOf(r), id)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CheckConflicts handles POST /api/v1/trips/check-conflicts
//
// Never mutates state. tripId, when set, excludes the trip's stored version.
func (h *TripHandler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	var body CheckConflictsBody
	if err := decode(h.validate, r, &body); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	date, _ := timeslot.ParseDate(body.TripDate)
	candidate := &model.Trip{
		TenantID:   tenantOf(r),
		DriverID:   body.DriverID,
		VehicleID:  body.VehicleID,
		TripDate:   date,
		PickupTime: timeslot.MustClock(body.PickupTime),
	}
	if body.CustomerID != nil {
		candidate.CustomerID = *body.CustomerID
	}
	if body.TripID != nil {
		candidate.ID = *body.TripID
	}
	if body.ReturnTime != nil {
		rt := timeslot.MustClock(*body.ReturnTime)
		candidate.ReturnTime = &rt
	}

	report, err := h.conflicts.CheckConflicts(r.Context(), candidate.TenantID, candidate, body.TripID)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ChangeStatus handles POST /api/v1/trips/{id}/status
func (h *TripHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	var body StatusBody
	if err := decode(h.validate, r, &body); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	t, err := h.trips.ChangeStatus(r.Context(), tenantOf(r), id, model.TripStatus(body.Status))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Cancel handles POST /api/v1/trips/{id}/cancel
//
// Soft delete: the trip stays on record as cancelled.
func (h *TripHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	t, err := h.trips.Cancel(r.Context(), tenantOf(r), id)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Reassign handles PUT /api/v1/trips/{id}/driver
func (h *TripHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	var body ReassignBody
	if err := decode(h.validate, r, &body); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	res, err := h.trips.Reassign(r.Context(), tenantOf(r), id, body.DriverID, body.VehicleID, body.Override)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
