/*
handlers.go - HTTP API handlers for the contribution engine

PURPOSE:
  Exposes the contribution engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Groups:
    POST   /api/groups                         Create group (opens period 1)
    GET    /api/groups/{id}/summary            Standing snapshot
    GET    /api/groups/{id}/periods            Period history
    GET    /api/groups/{id}/periods/current    Open period, fines refreshed
    POST   /api/groups/{id}/periods/close      Close + open successor
    POST   /api/groups/{id}/periods/{periodID}/reopen  Correction workflow
    POST   /api/groups/{id}/contributions/recompute    Refresh fines

  Contributions:
    POST   /api/contributions/{entryID}/payments  Record a component payment

  Audit:
    GET    /api/audit                          Invariant-repair trail

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (ledger, lifecycle manager)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid configuration
  - 404: Group, period, or entry not found
  - 409: Lifecycle conflicts (already closed, successor has payments)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/samiti/collection-engine/contribution"
	"github.com/samiti/collection-engine/engine"
	"github.com/samiti/collection-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     contribution.TxStore
	Audit     contribution.AuditLog
	Lifecycle *contribution.LifecycleManager
	Ledger    *contribution.Ledger
	Factory   *factory.GroupFactory
}

// NewHandler creates a new handler over the given store and audit log.
func NewHandler(store contribution.TxStore, audit contribution.AuditLog) *Handler {
	return &Handler{
		Store:     store,
		Audit:     audit,
		Lifecycle: contribution.NewLifecycleManager(store, audit),
		Ledger:    contribution.NewLedger(store),
		Factory:   factory.NewGroupFactory(),
	}
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// CreateGroup onboards a group from a JSON definition and opens its first
// collection period.
// POST /api/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	group, members, startDate, err := h.Factory.ParseGroup(string(body))
	if err != nil {
		writeDomainError(w, "Invalid group definition", err)
		return
	}

	err = h.Store.WithTx(r.Context(), func(s contribution.Store) error {
		if err := s.CreateGroup(r.Context(), group); err != nil {
			return err
		}
		for _, m := range members {
			if err := s.CreateMember(r.Context(), m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create group", err)
		return
	}

	if _, err := h.Lifecycle.OpenPeriod(r.Context(), group.ID, startDate); err != nil {
		writeDomainError(w, "Failed to open first period", err)
		return
	}

	writeJSON(w, http.StatusCreated, toGroupDTO(group))
}

// GetSummary returns the group's derived financial standing.
// GET /api/groups/{id}/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	groupID := contribution.GroupID(chi.URLParam(r, "id"))

	snapshot, err := h.Lifecycle.Summary(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to compute summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(groupID, snapshot))
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// GetCurrentPeriod returns the group's open period with its entries,
// repairing the open-period invariant first if needed. Fines are refreshed
// as of today (or ?as_of=YYYY-MM-DD) before the entries are served, so a
// read always reflects the current accrual.
// GET /api/groups/{id}/periods/current
func (h *Handler) GetCurrentPeriod(w http.ResponseWriter, r *http.Request) {
	groupID := contribution.GroupID(chi.URLParam(r, "id"))

	asOf := engine.Today()
	if v := r.URL.Query().Get("as_of"); v != "" {
		var err error
		if asOf, err = parseDateField("as_of", v); err != nil {
			writeDomainError(w, "Invalid as-of date", err)
			return
		}
	}

	group, err := h.Store.GetGroup(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to load group", err)
		return
	}
	period, err := h.Lifecycle.EnsureOpenPeriod(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to resolve open period", err)
		return
	}

	entries, err := h.Ledger.RecomputeDue(r.Context(), group, period, asOf)
	if err != nil {
		writeDomainError(w, "Failed to refresh entries", err)
		return
	}

	writeJSON(w, http.StatusOK, CurrentPeriodDTO{
		Period:  toPeriodDTO(period),
		Entries: toEntryDTOs(entries),
	})
}

// ListPeriods returns the group's full period history.
// GET /api/groups/{id}/periods
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	groupID := contribution.GroupID(chi.URLParam(r, "id"))

	periods, err := h.Store.PeriodsOf(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list periods", err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ClosePeriod closes the open period and opens its successor atomically.
// POST /api/groups/{id}/periods/close
func (h *Handler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	groupID := contribution.GroupID(chi.URLParam(r, "id"))

	var req ClosePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	input := contribution.CloseInput{MembersPresent: req.MembersPresent}

	if req.Allocation != nil {
		hand, err := parseAmountField("allocation.hand", req.Allocation.Hand)
		if err != nil {
			writeDomainError(w, "Invalid allocation", err)
			return
		}
		bank, err := parseAmountField("allocation.bank", req.Allocation.Bank)
		if err != nil {
			writeDomainError(w, "Invalid allocation", err)
			return
		}
		input.Allocation = &contribution.CashAllocation{Hand: hand, Bank: bank}
	}

	if req.ClosedAt != "" {
		closedAt, err := parseDateField("closed_at", req.ClosedAt)
		if err != nil {
			writeDomainError(w, "Invalid close date", err)
			return
		}
		input.ClosedAt = closedAt
	}

	result, err := h.Lifecycle.ClosePeriod(r.Context(), groupID, input)
	if err != nil {
		writeDomainError(w, "Failed to close period", err)
		return
	}

	writeJSON(w, http.StatusOK, ClosePeriodResponse{
		Closed:    toPeriodDTO(result.Closed),
		Successor: toPeriodDTO(result.Successor),
	})
}

// ReopenPeriod returns a closed period to OPEN for corrections.
// POST /api/groups/{id}/periods/{periodID}/reopen
func (h *Handler) ReopenPeriod(w http.ResponseWriter, r *http.Request) {
	periodID := contribution.PeriodID(chi.URLParam(r, "periodID"))

	period, err := h.Lifecycle.ReopenPeriod(r.Context(), periodID)
	if err != nil {
		writeDomainError(w, "Failed to reopen period", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(period))
}

// =============================================================================
// CONTRIBUTION HANDLERS
// =============================================================================

// RecordPayment applies a component payment to an entry.
// POST /api/contributions/{entryID}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	entryID := contribution.EntryID(chi.URLParam(r, "entryID"))

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	payment := contribution.PaymentInput{
		Contribution: engine.ZeroMoney(),
		Interest:     engine.ZeroMoney(),
		LateFine:     engine.ZeroMoney(),
	}
	var err error
	if req.Contribution != "" {
		if payment.Contribution, err = parseAmountField("contribution", req.Contribution); err != nil {
			writeDomainError(w, "Invalid payment", err)
			return
		}
	}
	if req.Interest != "" {
		if payment.Interest, err = parseAmountField("interest", req.Interest); err != nil {
			writeDomainError(w, "Invalid payment", err)
			return
		}
	}
	if req.LateFine != "" {
		if payment.LateFine, err = parseAmountField("late_fine", req.LateFine); err != nil {
			writeDomainError(w, "Invalid payment", err)
			return
		}
	}

	paidAt := engine.Today()
	if req.PaidAt != "" {
		if paidAt, err = parseDateField("paid_at", req.PaidAt); err != nil {
			writeDomainError(w, "Invalid payment date", err)
			return
		}
	}

	entry, err := h.Ledger.RecordPayment(r.Context(), entryID, payment, paidAt)
	if err != nil {
		writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// Recompute refreshes days-late and fines for the group's open period.
// POST /api/groups/{id}/contributions/recompute
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	groupID := contribution.GroupID(chi.URLParam(r, "id"))

	var req RecomputeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	asOf := engine.Today()
	if req.AsOf != "" {
		var err error
		if asOf, err = parseDateField("as_of", req.AsOf); err != nil {
			writeDomainError(w, "Invalid recompute date", err)
			return
		}
	}

	group, err := h.Store.GetGroup(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to load group", err)
		return
	}
	period, err := h.Lifecycle.EnsureOpenPeriod(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to resolve open period", err)
		return
	}

	entries, err := h.Ledger.RecomputeDue(r.Context(), group, period, asOf)
	if err != nil {
		writeDomainError(w, "Failed to recompute dues", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// ListAudit returns the invariant-repair audit trail, optionally scoped to
// one group via ?group_id=.
// GET /api/audit
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	groupID := contribution.GroupID(r.URL.Query().Get("group_id"))

	entries, err := h.Audit.Query(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}

	dtos := make([]AuditDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseAmountField(field, value string) (engine.Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return engine.Money{}, &engine.ValidationError{Field: field, Detail: "must be a decimal number"}
	}
	return engine.Money{Value: d}, nil
}

func parseDateField(field, value string) (engine.Date, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return engine.Date{}, &engine.ValidationError{Field: field, Detail: "must be YYYY-MM-DD"}
	}
	return engine.DateOf(t), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses: invalid input is
// 400, lifecycle conflicts are 409, missing records are 404, the rest 500.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
