package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/splitledger/splitledger/internal/calculator"
	"github.com/splitledger/splitledger/internal/currency"
	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/service"
	"github.com/splitledger/splitledger/internal/storage"
)

// server is the JSON/HTTP adapter over the ledger services.
type server struct {
	ledger *service.LedgerService
	groups *service.GroupService
	store  storage.Store
	logger *slog.Logger
}

func (s *server) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/users", s.createUser)
	mux.HandleFunc("GET /api/users/{id}", s.getUser)

	mux.HandleFunc("POST /api/groups", s.createGroup)
	mux.HandleFunc("GET /api/groups/{id}", s.getGroup)
	mux.HandleFunc("POST /api/groups/{id}/archive", s.archiveGroup)
	mux.HandleFunc("POST /api/groups/{id}/unarchive", s.unarchiveGroup)
	mux.HandleFunc("DELETE /api/groups/{id}", s.deleteGroup)
	mux.HandleFunc("PUT /api/groups/{id}/currency", s.setGroupCurrency)
	mux.HandleFunc("POST /api/groups/{id}/members", s.addMember)
	mux.HandleFunc("DELETE /api/groups/{id}/members/{userID}", s.removeMember)
	mux.HandleFunc("POST /api/groups/{id}/leave", s.leaveGroup)

	mux.HandleFunc("POST /api/groups/{id}/transactions", s.createTransaction)
	mux.HandleFunc("GET /api/groups/{id}/transactions", s.listTransactions)
	mux.HandleFunc("PUT /api/transactions/{id}", s.editTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.deleteTransaction)
	mux.HandleFunc("POST /api/transactions/{id}/purge", s.purgeTransaction)

	mux.HandleFunc("GET /api/groups/{id}/balances", s.getBalances)
	mux.HandleFunc("GET /api/groups/{id}/balances/by-currency", s.getBalancesByCurrency)
	mux.HandleFunc("GET /api/groups/{id}/settlements", s.getSettlements)

	mux.HandleFunc("GET /api/categories", s.listCategories)
	mux.HandleFunc("POST /api/categories", s.createCategory)
	mux.HandleFunc("POST /api/groups/{id}/categories", s.allowGroupCategory)
}

type userRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *server) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !s.decode(w, r, &req) {
		return
	}
	user := &models.User{ID: req.ID, Name: req.Name}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *server) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

type groupRequest struct {
	Name         string `json:"name"`
	OwnerID      string `json:"owner_id"`
	CurrencyCode string `json:"currency_code"`
	EndDate      int64  `json:"end_date,omitempty"`
	AutoArchive  bool   `json:"auto_archive,omitempty"`
}

func (s *server) createGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !s.decode(w, r, &req) {
		return
	}
	group, err := s.groups.CreateGroup(r.Context(), service.GroupSpec{
		Name:         req.Name,
		OwnerID:      req.OwnerID,
		CurrencyCode: req.CurrencyCode,
		EndDate:      req.EndDate,
		AutoArchive:  req.AutoArchive,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, group)
}

func (s *server) getGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.groups.GetGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, group)
}

type actorRequest struct {
	ActorID string `json:"actor_id"`
	UserID  string `json:"user_id,omitempty"`
}

func (s *server) archiveGroup(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.groups.ArchiveGroup(r.Context(), r.PathValue("id"), req.ActorID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) unarchiveGroup(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.groups.UnarchiveGroup(r.Context(), r.PathValue("id"), req.ActorID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.DeleteGroup(r.Context(), r.PathValue("id"), r.URL.Query().Get("actor_id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) setGroupCurrency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID      string `json:"actor_id"`
		CurrencyCode string `json:"currency_code"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.groups.SetReportingCurrency(r.Context(), r.PathValue("id"), req.ActorID, req.CurrencyCode); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) addMember(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.groups.AddMember(r.Context(), r.PathValue("id"), req.ActorID, req.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) removeMember(w http.ResponseWriter, r *http.Request) {
	err := s.groups.RemoveMember(r.Context(), r.PathValue("id"), r.URL.Query().Get("actor_id"), r.PathValue("userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) leaveGroup(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.groups.LeaveGroup(r.Context(), r.PathValue("id"), req.ActorID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type participantRequest struct {
	UserID string `json:"user_id"`
	Weight int64  `json:"weight,omitempty"`
	Amount int64  `json:"amount,omitempty"`
}

type transactionRequest struct {
	// CreatedBy is the recording member on create, the acting member on edit.
	CreatedBy    string               `json:"created_by"`
	Kind         string               `json:"kind"`
	Amount       int64                `json:"amount"`
	CurrencyCode string               `json:"currency_code"`
	Date         int64                `json:"date"`
	Comment      string               `json:"comment,omitempty"`
	CategoryID   string               `json:"category_id,omitempty"`
	PaidBy       string               `json:"paid_by,omitempty"`
	SplitType    string               `json:"split_type,omitempty"`
	Participants []participantRequest `json:"participants,omitempty"`
	TransferFrom string               `json:"transfer_from,omitempty"`
	TransferTo   []string             `json:"transfer_to,omitempty"`

	// ExpectedVersion guards edits; ignored on create.
	ExpectedVersion int64 `json:"expected_version,omitempty"`
}

func (r transactionRequest) spec() service.TransactionSpec {
	spec := service.TransactionSpec{
		Kind:         models.TransactionKind(r.Kind),
		Amount:       r.Amount,
		CurrencyCode: r.CurrencyCode,
		Date:         r.Date,
		Comment:      r.Comment,
		CategoryID:   r.CategoryID,
		PaidBy:       r.PaidBy,
		SplitType:    models.SplitType(r.SplitType),
		TransferFrom: r.TransferFrom,
		TransferTo:   r.TransferTo,
	}
	for _, p := range r.Participants {
		spec.Participants = append(spec.Participants, calculator.Participant{
			UserID: p.UserID, Weight: p.Weight, Amount: p.Amount,
		})
	}
	return spec
}

func (s *server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !s.decode(w, r, &req) {
		return
	}
	tx, err := s.ledger.CreateTransaction(r.Context(), r.PathValue("id"), req.CreatedBy, req.spec())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tx)
}

func (s *server) editTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !s.decode(w, r, &req) {
		return
	}
	tx, err := s.ledger.EditTransaction(r.Context(), r.PathValue("id"), req.CreatedBy, req.spec(), req.ExpectedVersion)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

func (s *server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid version", errBadRequest))
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), r.PathValue("id"), r.URL.Query().Get("actor_id"), version); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) purgeTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.PurgeTransaction(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) listTransactions(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	txs, err := s.ledger.ListTransactions(r.Context(), r.PathValue("id"), includeDeleted)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, txs)
}

func (s *server) getBalances(w http.ResponseWriter, r *http.Request) {
	code, rates, err := s.reportingParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	lines, err := s.ledger.GetGroupBalances(r.Context(), r.PathValue("id"), code, rates)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"currency": code, "balances": lines})
}

func (s *server) getBalancesByCurrency(w http.ResponseWriter, r *http.Request) {
	byCcy, err := s.ledger.BalancesByCurrency(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, byCcy)
}

func (s *server) getSettlements(w http.ResponseWriter, r *http.Request) {
	code, rates, err := s.reportingParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	settlements, err := s.ledger.GetSettlementSuggestions(r.Context(), r.PathValue("id"), code, rates)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"currency": code, "settlements": settlements})
}

// reportingParams reads the reporting currency and the caller-supplied
// exchange rates. Rates come as repeated rate=FROM:TO:VALUE params; the
// group's own currency is the default reporting currency.
func (s *server) reportingParams(r *http.Request) (string, currency.RateProvider, error) {
	code := r.URL.Query().Get("currency")
	if code == "" {
		group, err := s.groups.GetGroup(r.Context(), r.PathValue("id"))
		if err != nil {
			return "", nil, err
		}
		code = group.CurrencyCode
	}

	rates := currency.StaticRates{}
	for _, raw := range r.URL.Query()["rate"] {
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return "", nil, fmt.Errorf("%w: rate %q, want FROM:TO:VALUE", errBadRequest, raw)
		}
		value, err := decimal.NewFromString(parts[2])
		if err != nil || !value.IsPositive() {
			return "", nil, fmt.Errorf("%w: rate %q has invalid value", errBadRequest, raw)
		}
		rates[strings.ToUpper(parts[0])+"/"+strings.ToUpper(parts[1])] = value
	}
	return code, rates, nil
}

type categoryRequest struct {
	Key        string `json:"key"`
	NameEN     string `json:"name_en"`
	NameRU     string `json:"name_ru"`
	Icon       string `json:"icon,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
}

func (s *server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, categories)
}

func (s *server) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !s.decode(w, r, &req) {
		return
	}
	category := &models.ExpenseCategory{Key: req.Key, NameEN: req.NameEN, NameRU: req.NameRU, Icon: req.Icon}
	if err := s.store.CreateCategory(r.Context(), category); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, category)
}

func (s *server) allowGroupCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.AllowGroupCategory(r.Context(), r.PathValue("id"), req.CategoryID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var errBadRequest = errors.New("bad request")

func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors to HTTP status codes.
func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, calculator.ErrInvalidParticipantSet),
		errors.Is(err, calculator.ErrInvalidWeight),
		errors.Is(err, calculator.ErrInvalidAmount),
		errors.Is(err, currency.ErrUnknown),
		errors.Is(err, currency.ErrMissingRate):
		status = http.StatusBadRequest
	case errors.Is(err, calculator.ErrAllocationMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, service.ErrGroupNotActive),
		errors.Is(err, service.ErrUnsettledBalance),
		errors.Is(err, service.ErrCategoryNotAllowed),
		errors.Is(err, service.ErrOwnerCannotLeave):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNotOwner),
		errors.Is(err, service.ErrEditNotAllowed),
		errors.Is(err, service.ErrNotGroupMember):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
