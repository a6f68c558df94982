package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/internal/service"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// AutoAssigner expands recurring schedules into trips.
type AutoAssigner interface {
	AutoAssign(ctx context.Context, tenantID int64, window timeslot.DateRange) (*model.AutoAssignResult, error)
}

// Recommender scores passengers for shared journeys.
type Recommender interface {
	RecommendPassengers(ctx context.Context, req service.RecommendRequest) ([]model.CompatibilityScore, error)
	CombinationOpportunities(ctx context.Context, tenantID int64, date *time.Time) ([]model.CombinationOpportunity, error)
}

// AutoAssignBody is the JSON body for POST /api/v1/trips/auto-assign.
type AutoAssignBody struct {
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
}

// RecommendBody is the JSON body for POST /api/v1/trips/recommend-passengers.
type RecommendBody struct {
	DriverID          int64  `json:"driverId" validate:"required,gt=0"`
	DriverLocation    string `json:"driverLocation"`
	Destination       string `json:"destination" validate:"required"`
	PickupTime        string `json:"pickupTime" validate:"omitempty,clock"`
	TripDate          string `json:"tripDate" validate:"required,datetime=2006-01-02"`
	IncludeGoogleMaps bool   `json:"includeGoogleMaps"`
}

// ScheduleHandler serves recurring auto-assign and passenger combination.
type ScheduleHandler struct {
	assigner    AutoAssigner
	recommender Recommender
	validate    *validator.Validate
	log         *zap.Logger
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(assigner AutoAssigner, recommender Recommender, log *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{assigner: assigner, recommender: recommender, validate: newValidator(), log: log}
}

// Register mounts the schedule routes.
func (h *ScheduleHandler) Register(api *mux.Router) {
	api.HandleFunc("/trips/auto-assign", h.AutoAssign).Methods(http.MethodPost)
	api.HandleFunc("/trips/recommend-passengers", h.RecommendPassengers).Methods(http.MethodPost)
	api.HandleFunc("/trips/combination-opportunities", h.CombinationOpportunities).Methods(http.MethodGet)
}

// AutoAssign handles POST /api/v1/trips/auto-assign
//
// Partial failures are part of a 200 response, not an error.
func (h *ScheduleHandler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	var body AutoAssignBody
	if err := decode(h.validate, r, &body); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	start, _ := timeslot.ParseDate(body.StartDate)
	end, _ := timeslot.ParseDate(body.EndDate)
	res, err := h.assigner.AutoAssign(r.Context(), tenantOf(r), timeslot.DateRange{Start: start, End: end})
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}

	h.log.Info("auto-assign complete",
		zap.Int64("tenant_id", tenantOf(r)),
		zap.Int("successful", res.Successful),
		zap.Int("failed", len(res.Failed)))
	writeJSON(w, http.StatusOK, res)
}

// RecommendPassengers handles POST /api/v1/trips/recommend-passengers
func (h *ScheduleHandler) RecommendPassengers(w http.ResponseWriter, r *http.Request) {
	var body RecommendBody
	if err := decode(h.validate, r, &body); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	date, _ := timeslot.ParseDate(body.TripDate)
	req := service.RecommendRequest{
		TenantID:          tenantOf(r),
		DriverID:          body.DriverID,
		DriverLocation:    body.DriverLocation,
		Destination:       body.Destination,
		TripDate:          date,
		IncludeGoogleMaps: body.IncludeGoogleMaps,
	}
	if body.PickupTime != "" {
		pickup := timeslot.MustClock(body.PickupTime)
		req.PickupTime = &pickup
	}

	scores, err := h.recommender.RecommendPassengers(r.Context(), req)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":           len(scores),
		"recommendations": scores,
	})
}

// CombinationOpportunities handles GET /api/v1/trips/combination-opportunities?date=
//
// Without a date it covers today and tomorrow.
func (h *ScheduleHandler) CombinationOpportunities(w http.ResponseWriter, r *http.Request) {
	q := &query{r: r}
	date := q.date("date")
	if err := q.err(); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	ops, err := h.recommender.CombinationOpportunities(r.Context(), tenantOf(r), date)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":         len(ops),
		"opportunities": ops,
	})
}
