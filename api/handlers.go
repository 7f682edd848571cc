/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the bitemporal ledger via REST. Handles HTTP request/response,
  JSON serialization, and delegates to the lifecycle manager.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                        List current accounts
    POST   /api/accounts                        Create account
    GET    /api/accounts/{id}                   Current version
    GET    /api/accounts/{id}/history           All versions
    GET    /api/accounts/{id}/balance?as_of=    Balance (optionally point-in-time)
    GET    /api/accounts/{id}/balance/hierarchical  Own + descendants
    DELETE /api/accounts/{id}                   Soft delete
    POST   /api/accounts/{id}/restore           Restore from deletion
    POST   /api/accounts/{id}/deactivate        Deactivate

  Transactions:
    POST   /api/transactions                    Create journal entry
    GET    /api/transactions                    List (optional from/to window)
    GET    /api/transactions/{id}               Current version
    PUT    /api/transactions/{id}               Edit (close + supersede)
    POST   /api/transactions/{id}/void          Void (terminal)
    GET    /api/transactions/{id}/history       Version chain

  Verification:
    GET    /api/verify?from=&to=                Double-entry totals + drift

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: No current version for the requested id
  - 409: Concurrent modification (safe to retry after re-read)
  - 422: Invalid lifecycle operation (voided target, inactive account)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/clearbooks/ledger-engine/ledger"
	"github.com/clearbooks/ledger-engine/temporal"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *ledger.Service
	Fiscal ledger.FiscalConfig
}

// NewHandler creates a handler over the lifecycle manager.
func NewHandler(svc *ledger.Service, fiscal ledger.FiscalConfig) *Handler {
	return &Handler{Ledger: svc, Fiscal: fiscal}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns the current version of every account.
// GET /api/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Ledger.ListAccounts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTOs(accounts))
}

// CreateAccount opens a new account.
// POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	account, err := h.Ledger.CreateAccount(r.Context(), ledger.CreateAccountInput{
		Code:     req.Code,
		Name:     req.Name,
		Type:     ledger.AccountType(req.Type),
		ParentID: temporal.LogicalID(req.ParentID),
		Actor:    req.Actor,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// GetAccount returns the current version of one account.
// GET /api/accounts/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := temporal.LogicalID(chi.URLParam(r, "id"))
	account, err := h.Ledger.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// GetAccountHistory returns every version of an account, most recent first.
// GET /api/accounts/{id}/history
func (h *Handler) GetAccountHistory(w http.ResponseWriter, r *http.Request) {
	id := temporal.LogicalID(chi.URLParam(r, "id"))
	versions, err := h.Ledger.AccountHistory(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTOs(versions))
}

// GetBalance returns an account balance, optionally as of a past moment.
// GET /api/accounts/{id}/balance?as_of=RFC3339
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := temporal.LogicalID(chi.URLParam(r, "id"))
	dto := BalanceDTO{AccountID: string(id), Currency: h.Fiscal.Currency}

	if raw := r.URL.Query().Get("as_of"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of (use RFC3339)", err)
			return
		}
		balance, err := h.Ledger.BalanceAsOf(r.Context(), id, at)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		dto.Balance = balance.String()
		dto.AsOf = &at
		writeJSON(w, http.StatusOK, dto)
		return
	}

	account, err := h.Ledger.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dto.Balance = account.Balance.String()
	writeJSON(w, http.StatusOK, dto)
}

// GetHierarchicalBalance returns own balance plus all descendants'.
// GET /api/accounts/{id}/balance/hierarchical
func (h *Handler) GetHierarchicalBalance(w http.ResponseWriter, r *http.Request) {
	id := temporal.LogicalID(chi.URLParam(r, "id"))
	balance, err := h.Ledger.HierarchicalBalanceOf(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		AccountID: string(id),
		Balance:   balance.String(),
		Currency:  h.Fiscal.Currency,
	})
}

// DeleteAccount soft-deletes an account.
// DELETE /api/accounts/{id}
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := temporal.LogicalID(chi.URLParam(r, "id"))
	actor := r.URL.Query().Get("actor")
	if err := h.Ledger.DeleteAccount(r.Context(), id, actor); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreAccount reopens a soft-deleted account.
// POST /api/accounts/{id}/restore
func (h *Handler) RestoreAccount(w http.ResponseWriter, r *http.Request) {
	id := temporal.LogicalID(chi.URLParam(r, "id"))
	actor := r.URL.Query().Get("actor")
	account, err := h.Ledger.RestoreAccount(r.Context(), id, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// DeactivateAccount closes the account to new postings.
// POST /api/accounts/{id}/deactivate
func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	id := temporal.LogicalID(chi.URLParam(r, "id"))
	actor := r.URL.Query().Get("actor")
	account, err := h.Ledger.DeactivateAccount(r.Context(), id, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateTransaction posts a new journal entry.
// POST /api/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}
	tx, err := h.Ledger.CreateTransaction(r.Context(), ledger.CreateTransactionInput{
		Amount:          amount,
		DebitAccountID:  temporal.LogicalID(req.DebitAccountID),
		CreditAccountID: temporal.LogicalID(req.CreditAccountID),
		Date:            req.Date,
		Description:     req.Description,
		Reference:       req.Reference,
		Actor:           req.Actor,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// ListTransactions returns current journal entries, optionally windowed.
// GET /api/transactions?from=&to=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	txs, err := h.Ledger.ListTransactions(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetTransaction returns the current version of one journal entry.
// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := temporal.LogicalID(chi.URLParam(r, "id"))
	tx, err := h.Ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// EditTransaction applies a partial patch as a new version.
// PUT /api/transactions/{id}
func (h *Handler) EditTransaction(w http.ResponseWriter, r *http.Request) {
	id := temporal.LogicalID(chi.URLParam(r, "id"))
	var req EditTransactionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	in := ledger.EditTransactionInput{
		Date:        req.Date,
		Description: req.Description,
		Reference:   req.Reference,
		Actor:       req.Actor,
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount", err)
			return
		}
		in.Amount = &amount
	}
	if req.DebitAccountID != nil {
		debit := temporal.LogicalID(*req.DebitAccountID)
		in.DebitAccountID = &debit
	}
	if req.CreditAccountID != nil {
		credit := temporal.LogicalID(*req.CreditAccountID)
		in.CreditAccountID = &credit
	}

	tx, err := h.Ledger.EditTransaction(r.Context(), id, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// VoidTransaction voids a journal entry. Terminal.
// POST /api/transactions/{id}/void
func (h *Handler) VoidTransaction(w http.ResponseWriter, r *http.Request) {
	id := temporal.LogicalID(chi.URLParam(r, "id"))
	var req VoidTransactionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	tx, err := h.Ledger.VoidTransaction(r.Context(), id, req.Reason, req.Actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// GetTransactionHistory returns the full version chain, most recent first.
// GET /api/transactions/{id}/history
func (h *Handler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	id := temporal.LogicalID(chi.URLParam(r, "id"))
	chain, err := h.Ledger.GetHistory(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(chain))
}

// =============================================================================
// VERIFICATION HANDLER
// =============================================================================

// VerifyIntegrity runs the double-entry totals and drift checks.
// Defaults to the current fiscal year when no window is given.
// GET /api/verify?from=&to=
func (h *Handler) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	if from == nil && to == nil && r.URL.Query().Get("full") == "" {
		fy := h.Fiscal.CurrentFiscalYear()
		from, to = &fy.Start, &fy.End
	}
	report, err := h.Ledger.VerifyIntegrity(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIntegrityReportDTO(report))
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeRequest decodes and validates a JSON body, writing a 400 on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed", err)
		return false
	}
	return true
}

func parseWindow(w http.ResponseWriter, r *http.Request) (from, to *time.Time, ok bool) {
	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"from", &from}, {"to", &to}} {
		if raw := r.URL.Query().Get(q.name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid "+q.name+" (use RFC3339)", err)
				return nil, nil, false
			}
			*q.dst = &t
		}
	}
	return from, to, true
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case temporal.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case temporal.IsRetryable(err):
		writeError(w, http.StatusConflict, "concurrent modification, retry the operation", err)
	case errors.Is(err, temporal.ErrInvalidOperation):
		writeError(w, http.StatusUnprocessableEntity, "invalid operation", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
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
