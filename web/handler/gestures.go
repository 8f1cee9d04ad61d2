package handler

import (
	"context"
	"net/http"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/pkg/httpkit"
	"github.com/screwyprof/luvsettle/web/api"
	"github.com/screwyprof/luvsettle/web/handler/bind"
)

// Gesture routes
const (
	RecordGestureRoute = http.MethodPost + " " + "/claims/{id}/gestures"
	ListGesturesRoute  = http.MethodGet + " " + "/claims/{id}/gestures"
	PromoteClaimRoute  = http.MethodPost + " " + "/claims/{id}/promotion"
)

// Ledger records endorsements
type Ledger interface {
	RecordGesture(ctx context.Context, id claim.ID, endorser string, amount int64) (ledger.Result, error)
	Gestures(ctx context.Context, id claim.ID) ([]ledger.Gesture, error)
	Promote(ctx context.Context, id claim.ID) (bool, error)
}

type Gestures struct {
	ledger Ledger
}

func NewGestures(l Ledger) *Gestures {
	return &Gestures{ledger: l}
}

func (h *Gestures) AddRoutes(m *http.ServeMux) {
	m.Handle(RecordGestureRoute, httpkit.HandlerFunc(h.RecordGesture))
	m.Handle(ListGesturesRoute, httpkit.HandlerFunc(h.ListGestures))
	m.Handle(PromoteClaimRoute, httpkit.HandlerFunc(h.Promote))
}

func (h *Gestures) RecordGesture(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	id, req, err := bind.GestureRequest(w, r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	res, err := h.ledger.RecordGesture(r.Context(), id, req.Endorser, req.Amount)
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}

	return httpkit.JSONStatus(http.StatusCreated, bind.GestureResponse(id, res))
}

func (h *Gestures) ListGestures(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	id, err := bind.ClaimID(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	gestures, err := h.ledger.Gestures(r.Context(), id)
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}

	return httpkit.JSON(bind.GesturesResponse(id, gestures))
}

// Promote re-evaluates a Pending claim against the promotion threshold. It
// completes promotions whose transition was deferred when the threshold was
// crossed. Claims that are not due answer with promoted false.
func (h *Gestures) Promote(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	id, err := bind.ClaimID(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	promoted, err := h.ledger.Promote(r.Context(), id)
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}

	return httpkit.JSON(api.PromotionResponse{ClaimID: id.String(), Promoted: promoted})
}
