package handler

import (
	"context"
	"net/http"

	"github.com/screwyprof/luvsettle/attest"
	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/pkg/httpkit"
	"github.com/screwyprof/luvsettle/web/api"
	"github.com/screwyprof/luvsettle/web/handler/bind"
)

// Claim routes
const (
	CreateClaimRoute = http.MethodPost + " " + "/claims"
	GetClaimRoute    = http.MethodGet + " " + "/claims/{id}"
	GetPayloadRoute  = http.MethodGet + " " + "/claims/{id}/payload"
)

// Registry is the part of the claim registry the HTTP surface needs
type Registry interface {
	CreateClaim(ctx context.Context, pkg attest.Package) (claim.Claim, error)
	Get(ctx context.Context, id claim.ID) (claim.Claim, error)
	Payload(ctx context.Context, id claim.ID) (attest.Payload, error)
}

type Claims struct {
	registry Registry
}

func NewClaims(registry Registry) *Claims {
	return &Claims{registry: registry}
}

func (h *Claims) AddRoutes(m *http.ServeMux) {
	m.Handle(CreateClaimRoute, httpkit.HandlerFunc(h.CreateClaim))
	m.Handle(GetClaimRoute, httpkit.HandlerFunc(h.GetClaim))
	m.Handle(GetPayloadRoute, httpkit.HandlerFunc(h.GetPayload))
}

// CreateClaim registers an attested payload. A replayed payload answers 409
// with the existing claim's state.
func (h *Claims) CreateClaim(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	pkg, err := bind.CreateClaimRequest(w, r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	c, err := h.registry.CreateClaim(r.Context(), pkg)
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}

	w.Header().Set("Location", "/claims/"+c.ID.String())
	return httpkit.JSONStatus(http.StatusCreated, bind.ClaimResponse(c))
}

func (h *Claims) GetClaim(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	id, err := bind.ClaimID(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	c, err := h.registry.Get(r.Context(), id)
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}

	return httpkit.JSON(bind.ClaimResponse(c))
}

func (h *Claims) GetPayload(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	id, err := bind.ClaimID(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	p, err := h.registry.Payload(r.Context(), id)
	if err != nil {
		return httpkit.JsonError(api.Wrap(err))
	}

	return httpkit.JSON(bind.PayloadResponse(p))
}
