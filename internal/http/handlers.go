package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"whopays/internal/core"
	"whopays/internal/log"
)

type priceUpdateResponse struct {
	OK       bool         `json:"ok"`
	Name     string       `json:"name,omitempty"`
	Price    *json.Number `json:"price,omitempty"`
	Prices   core.Amounts `json:"prices"`
	Balances core.Amounts `json:"balances"`
}

type stateResponse struct {
	OK       bool                `json:"ok"`
	Prices   core.Amounts        `json:"prices"`
	Balances core.Amounts        `json:"balances"`
	History  []core.HistoryEntry `json:"history"`
}

type historyResponse struct {
	OK      bool                `json:"ok"`
	History []core.HistoryEntry `json:"history"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if body, ok := s.stateCache.Get(stateCacheKey); ok {
		NewJSONResponse().Header("X-Cache", "HIT").Raw(body).Write(w)
		return
	}

	gen := s.stateCache.Generation()
	state, err := s.ledger.GetState(r.Context())
	if err != nil {
		writeError(w, r, log.OpRead, http.StatusUnprocessableEntity, err)
		return
	}
	body, err := json.Marshal(state)
	if err != nil {
		writeError(w, r, log.OpRead, http.StatusUnprocessableEntity, err)
		return
	}
	s.stateCache.SetIfCurrent(stateCacheKey, body, gen)
	NewJSONResponse().Header("X-Cache", "MISS").Raw(body).Write(w)
}

// handleNext previews the next payer. Unknown or malformed names are
// simply not matched.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	next, err := s.ledger.PreviewNext(r.Context(), parsePeopleQuery(r), r.URL.Query().Get("tie"))
	if err != nil {
		writeError(w, r, log.OpPreview, http.StatusUnprocessableEntity, err)
		return
	}
	NewJSONResponse().Payload(next).Write(w)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	people, tie, err := parseRunRequest(r)
	if err != nil {
		writeError(w, r, log.OpRunRound, http.StatusUnprocessableEntity, err)
		return
	}

	result, err := s.ledger.RunRound(r.Context(), people, tie)
	if err != nil {
		writeError(w, r, log.OpRunRound, http.StatusUnprocessableEntity, err)
		return
	}
	NewJSONResponse().Payload(result).Write(w)
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	name, price, err := parseSetPriceRequest(r, "")
	if err != nil {
		writeError(w, r, log.OpSetPrice, http.StatusBadRequest, err)
		return
	}

	update, err := s.ledger.SetPrice(r.Context(), name, price)
	if err != nil {
		writeError(w, r, log.OpSetPrice, http.StatusBadRequest, err)
		return
	}
	NewJSONResponse().Payload(priceUpdateResponse{
		OK:       true,
		Prices:   update.Prices,
		Balances: update.Balances,
	}).Write(w)
}

func (s *Server) handlePutUserPrice(w http.ResponseWriter, r *http.Request) {
	name, price, err := parseSetPriceRequest(r, mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, log.OpSetPrice, http.StatusUnprocessableEntity, err)
		return
	}

	update, err := s.ledger.SetPrice(r.Context(), name, price)
	if err != nil {
		writeError(w, r, log.OpSetPrice, http.StatusUnprocessableEntity, err)
		return
	}
	amount := core.MoneyNumber(update.Price)
	NewJSONResponse().Payload(priceUpdateResponse{
		OK:       true,
		Name:     update.Name,
		Price:    &amount,
		Prices:   update.Prices,
		Balances: update.Balances,
	}).Write(w)
}

func (s *Server) handleRemovePerson(w http.ResponseWriter, r *http.Request) {
	name, err := parseNameRequest(r)
	if err != nil {
		writeError(w, r, log.OpRemove, http.StatusBadRequest, err)
		return
	}

	removed, state, err := s.ledger.RemovePerson(r.Context(), name)
	if err != nil {
		writeError(w, r, log.OpRemove, http.StatusBadRequest, err)
		return
	}
	NewJSONResponse().Payload(priceUpdateResponse{
		OK:       removed,
		Prices:   nonNil(state.Prices),
		Balances: nonNil(state.Balances),
	}).Write(w)
}

// handleDeleteUser answers 204 whether or not the name existed or was
// even well formed; only storage failures surface.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := core.ValidateName(name); err != nil {
		NoContent().Write(w)
		return
	}
	if _, _, err := s.ledger.RemovePerson(r.Context(), name); err != nil {
		writeError(w, r, log.OpRemove, http.StatusUnprocessableEntity, err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleResetBalances(w http.ResponseWriter, r *http.Request) {
	clearHistory, err := parseResetBalancesRequest(r)
	if err != nil {
		writeError(w, r, log.OpReset, http.StatusUnprocessableEntity, err)
		return
	}

	state, err := s.ledger.ResetBalances(r.Context(), clearHistory)
	if err != nil {
		writeError(w, r, log.OpReset, http.StatusUnprocessableEntity, err)
		return
	}
	NewJSONResponse().Payload(stateResponse{
		OK:       true,
		Prices:   nonNil(state.Prices),
		Balances: nonNil(state.Balances),
		History:  nonNilHistory(state.History),
	}).Write(w)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.ClearHistory(r.Context()); err != nil {
		writeError(w, r, log.OpClear, http.StatusUnprocessableEntity, err)
		return
	}
	state, err := s.ledger.GetState(r.Context())
	if err != nil {
		writeError(w, r, log.OpClear, http.StatusUnprocessableEntity, err)
		return
	}
	NewJSONResponse().Payload(historyResponse{OK: true, History: nonNilHistory(state.History)}).Write(w)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.ClearHistory(r.Context()); err != nil {
		writeError(w, r, log.OpClear, http.StatusUnprocessableEntity, err)
		return
	}
	NoContent().Write(w)
}

// writeError maps err to a response. validationStatus is what the route
// answers for malformed input.
func writeError(w http.ResponseWriter, r *http.Request, operation string, validationStatus int, err error) {
	var (
		list  core.ValidationErrors
		field core.ValidationError
	)
	switch {
	case errors.As(err, &list):
		ValidationErrorResponse(validationStatus, list).Write(w)
	case errors.As(err, &field):
		ValidationErrorResponse(validationStatus, core.ValidationErrors{field}).Write(w)
	case errors.Is(err, core.ErrParse), errors.Is(err, core.ErrValidation):
		ValidationErrorResponse(validationStatus, core.ValidationErrors{{Field: "body", Reason: err.Error()}}).Write(w)
	case errors.Is(err, core.ErrNoMatchingParticipants):
		BadRequestError("No provided people match prices").Write(w)
	case errors.Is(err, core.ErrNoEligibleCandidates):
		BadRequestError("No eligible candidates").Write(w)
	default:
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err, operation, nil)
		InternalServerError().Write(w)
	}
}

func nonNil(a core.Amounts) core.Amounts {
	if a == nil {
		return core.Amounts{}
	}
	return a
}

func nonNilHistory(h []core.HistoryEntry) []core.HistoryEntry {
	if h == nil {
		return []core.HistoryEntry{}
	}
	return h
}
