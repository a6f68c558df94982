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

// Roster is the workload dashboard and roster auto-assign.
type Roster interface {
	Dashboard(ctx context.Context, tenantID int64, window timeslot.DateRange) (*model.Dashboard, error)
	AutoAssign(ctx context.Context, tenantID int64, req service.RosterAssignRequest) (*model.RosterAssignResult, error)
}

// RosterAssignBody is the JSON body for POST /api/v1/roster/auto-assign.
type RosterAssignBody struct {
	Date              string `json:"date" validate:"required,datetime=2006-01-02"`
	BalanceWorkload   bool   `json:"balanceWorkload"`
	ConsiderProximity bool   `json:"considerProximity"`
	MaxAssignments    int    `json:"maxAssignments" validate:"gte=0"`
	ApplyChanges      bool   `json:"applyChanges"`
}

// RosterHandler serves the roster dashboard.
type RosterHandler struct {
	roster   Roster
	validate *validator.Validate
	log      *zap.Logger
}

// NewRosterHandler creates a new roster handler.
func NewRosterHandler(roster Roster, log *zap.Logger) *RosterHandler {
	return &RosterHandler{roster: roster, validate: newValidator(), log: log}
}

func (h *RosterHandler) Register(api *mux.Router) {
	api.HandleFunc("/roster/dashboard", h.Dashboard).Methods(http.MethodGet)
	api.HandleFunc("/roster/auto-assign", h.AutoAssign).Methods(http.MethodPost)
}

// Dashboard handles GET /api/v1/roster/dashboard?startDate=&endDate=
func (h *RosterHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	q := &query{r: r}
	start := q.date("startDate")
	end := q.date("endDate")
	q.required("startDate", start)
	q.required("endDate", end)
	if err := q.err(); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	dash, err := h.roster.Dashboard(r.Context(), tenantOf(r), timeslot.DateRange{Start: *start, End: *end})
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// AutoAssign handles POST /api/v1/roster/auto-assign
//
// Previews proposals unless applyChanges is set.
func (h *RosterHandler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	var body RosterAssignBody
	if err := decode(h.validate, r, &body); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	date, _ := timeslot.ParseDate(body.Date)
	res, err := h.roster.AutoAssign(r.Context(), tenantOf(r), service.RosterAssignRequest{
		Date:              date,
		BalanceWorkload:   body.BalanceWorkload,
		ConsiderProximity: body.ConsiderProximity,
		MaxAssignments:    body.MaxAssignments,
		ApplyChanges:      body.ApplyChanges,
	})
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
