// Package treasurytest serves the treasury API over an in-memory bank for tests
package treasurytest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/settlement"
	"github.com/screwyprof/luvsettle/store/memstore"
	"github.com/screwyprof/luvsettle/treasury"
)

// Server is a treasury API backed by a memstore.Bank
type Server struct {
	*httptest.Server
	Bank *memstore.Bank

	mu       sync.Mutex
	status   int
	failures int
	requests []*http.Request
}

// NewServer starts a treasury API. Call Close when done.
func NewServer() *Server {
	s := &Server{Bank: memstore.NewBank()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/accounts/{account}/balance", s.balance)
	mux.HandleFunc("POST /v1/debits", s.debit)
	mux.HandleFunc("POST /v1/debits/{token}/reversal", s.reverse)
	mux.HandleFunc("POST /v1/batches", s.batch)

	s.Server = httptest.NewServer(s.intercept(mux))
	return s
}

// FailNext makes the next n requests answer with status
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	s.status = status
}

// Requests returns every request received so far
func (s *Server) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests...)
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Clone(r.Context()))
		fail := s.failures > 0
		if fail {
			s.failures--
		}
		status := s.status
		s.mu.Unlock()

		if fail {
			w.WriteHeader(status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	writeJSON(w, http.StatusOK, treasury.BalanceResponse{Account: account, Balance: s.Bank.Balance(account)})
}

func (s *Server) debit(w http.ResponseWriter, r *http.Request) {
	var req treasury.DebitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	err := s.Bank.Debit(r.Context(), req.Account, req.Amount, r.Header.Get(treasury.IdempotencyKeyHeader))
	writeResult(w, http.StatusCreated, err)
}

func (s *Server) reverse(w http.ResponseWriter, r *http.Request) {
	err := s.Bank.ReverseDebit(r.Context(), r.PathValue("token"))
	writeResult(w, http.StatusNoContent, err)
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	var req treasury.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	err := s.Bank.Commit(r.Context(), settlement.Batch{
		Key:       r.Header.Get(treasury.IdempotencyKeyHeader),
		Escrow:    req.Escrow,
		Transfers: req.Transfers,
	})
	writeResult(w, http.StatusCreated, err)
}

func writeResult(w http.ResponseWriter, okStatus int, err error) {
	switch {
	case err == nil:
		w.WriteHeader(okStatus)
	case errors.Is(err, claim.ErrInsufficientBalance):
		w.WriteHeader(http.StatusPaymentRequired)
	case errors.Is(err, ledger.ErrDebitVoided):
		w.WriteHeader(http.StatusGone)
	case errors.Is(err, memstore.ErrDebitSpent):
		w.WriteHeader(http.StatusConflict)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
