package handler

import (
	"context"
	"net/http"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/pkg/httpkit"
	"github.com/screwyprof/luvsettle/settlement"
	"github.com/screwyprof/luvsettle/web/api"
	"github.com/screwyprof/luvsettle/web/handler/bind"
)

// Settlement routes
const (
	SettleRoute        = http.MethodPost + " " + "/claims/{id}/settlement"
	GetSettlementRoute = http.MethodGet + " " + "/claims/{id}/settlement"
)

// Settler triggers and reads settlements
type Settler interface {
	Settle(ctx context.Context, id claim.ID, payer string, paymentValue int64) (settlement.Record, error)
	Settlement(ctx context.Context, id claim.ID) (settlement.Record, error)
}

type Settlements struct {
	settler Settler
}

func NewSettlements(s Settler) *Settlements {
	return &Settlements{settler: s}
}

func (h *Settlements) AddRoutes(m *http.ServeMux) {
	m.Handle(SettleRoute, httpkit.HandlerFunc(h.Settle))
	m.Handle(GetSettlementRoute, httpkit.HandlerFunc(h.GetSettlement))
}

// Settle answers 201 once the record is committed. A payout the treasury did
// not accept yet is reported as pending and completed in the background, so
// it is still a success.
func (h *Settlements) Settle(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	id, req, err := bind.SettleRequest(w, r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	record, err := h.settler.Settle(r.Context(), id, req.Payer, req.PaymentValue)
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}

	return httpkit.JSONStatus(http.StatusCreated, bind.SettlementResponse(record))
}

func (h *Settlements) GetSettlement(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	id, err := bind.ClaimID(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	record, err := h.settler.Settlement(r.Context(), id)
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}

	return httpkit.JSON(bind.SettlementResponse(record))
}
