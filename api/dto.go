/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator/v10 struct tags; handlers run the shared
  validator instance before touching domain logic. Amounts travel as JSON
  strings and are parsed into decimals in the handlers, never as floats.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/service.go: The domain inputs these map onto
*/
package api

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/clearbooks/ledger-engine/ledger"
	"github.com/clearbooks/ledger-engine/temporal"
)

// validate is the shared validator instance for request DTOs.
var validate = validator.New()

// =============================================================================
// ACCOUNT TYPES
// =============================================================================

// AccountDTO represents an account version in API responses.
type AccountDTO struct {
	ID        string     `json:"id"`
	VersionID string     `json:"version_id"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Balance   string     `json:"balance"`
	ParentID  string     `json:"parent_id,omitempty"`
	IsActive  bool       `json:"is_active"`
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
	ChangedBy string     `json:"changed_by,omitempty"`
	IsDeleted bool       `json:"is_deleted,omitempty"`
}

// CreateAccountRequest creates a new ledger account.
type CreateAccountRequest struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	ParentID string `json:"parent_id,omitempty"`
	Actor    string `json:"actor" validate:"required"`
}

func toAccountDTO(a *ledger.Account) AccountDTO {
	dto := AccountDTO{
		ID:        string(a.LogicalID),
		VersionID: string(a.VersionID),
		Code:      a.Code,
		Name:      a.Name,
		Type:      string(a.Type),
		Balance:   a.Balance.String(),
		ParentID:  string(a.ParentID),
		IsActive:  a.IsActive,
		ValidFrom: a.ValidFrom,
		ChangedBy: a.ChangedBy,
		IsDeleted: a.IsDeleted,
	}
	if !temporal.IsInfinity(a.ValidTo) {
		to := a.ValidTo
		dto.ValidTo = &to
	}
	return dto
}

func toAccountDTOs(accounts []*ledger.Account) []AccountDTO {
	dtos := make([]AccountDTO, 0, len(accounts))
	for _, a := range accounts {
		dtos = append(dtos, toAccountDTO(a))
	}
	return dtos
}

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

// TransactionDTO represents a journal-entry version in API responses.
type TransactionDTO struct {
	ID              string     `json:"id"`
	VersionID       string     `json:"version_id"`
	Amount          string     `json:"amount"`
	DebitAccountID  string     `json:"debit_account_id"`
	CreditAccountID string     `json:"credit_account_id"`
	Date            time.Time  `json:"date"`
	Description     string     `json:"description"`
	Reference       string     `json:"reference,omitempty"`
	IsVoided        bool       `json:"is_voided"`
	VoidReason      string     `json:"void_reason,omitempty"`
	VoidedAt        *time.Time `json:"voided_at,omitempty"`
	ValidFrom       time.Time  `json:"valid_from"`
	ValidTo         *time.Time `json:"valid_to,omitempty"`
	ChangedBy       string     `json:"changed_by,omitempty"`
}

// CreateTransactionRequest posts a new journal entry.
type CreateTransactionRequest struct {
	Amount          string    `json:"amount" validate:"required"`
	DebitAccountID  string    `json:"debit_account_id" validate:"required"`
	CreditAccountID string    `json:"credit_account_id" validate:"required,nefield=DebitAccountID"`
	Date            time.Time `json:"date" validate:"required"`
	Description     string    `json:"description" validate:"required"`
	Reference       string    `json:"reference,omitempty"`
	Actor           string    `json:"actor" validate:"required"`
}

// EditTransactionRequest is a partial patch; omitted fields keep their value.
type EditTransactionRequest struct {
	Amount          *string    `json:"amount,omitempty"`
	DebitAccountID  *string    `json:"debit_account_id,omitempty"`
	CreditAccountID *string    `json:"credit_account_id,omitempty"`
	Date            *time.Time `json:"date,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Reference       *string    `json:"reference,omitempty"`
	Actor           string     `json:"actor" validate:"required"`
}

// VoidTransactionRequest voids a journal entry.
type VoidTransactionRequest struct {
	Reason string `json:"reason" validate:"required"`
	Actor  string `json:"actor" validate:"required"`
}

func toTransactionDTO(tx *ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:              string(tx.LogicalID),
		VersionID:       string(tx.VersionID),
		Amount:          tx.Amount.String(),
		DebitAccountID:  string(tx.DebitAccountID),
		CreditAccountID: string(tx.CreditAccountID),
		Date:            tx.Date,
		Description:     tx.Description,
		Reference:       tx.Reference,
		IsVoided:        tx.IsVoided,
		VoidReason:      tx.VoidReason,
		VoidedAt:        tx.VoidedAt,
		ValidFrom:       tx.ValidFrom,
		ChangedBy:       tx.ChangedBy,
	}
	if !temporal.IsInfinity(tx.ValidTo) {
		to := tx.ValidTo
		dto.ValidTo = &to
	}
	return dto
}

func toTransactionDTOs(txs []*ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toTransactionDTO(tx))
	}
	return dtos
}

// =============================================================================
// BALANCE AND VERIFICATION TYPES
// =============================================================================

// BalanceDTO carries a single balance figure.
type BalanceDTO struct {
	AccountID string     `json:"account_id"`
	Balance   string     `json:"balance"`
	Currency  string     `json:"currency,omitempty"`
	AsOf      *time.Time `json:"as_of,omitempty"`
}

// IntegrityReportDTO is the verification endpoint's response.
type IntegrityReportDTO struct {
	IsValid      bool              `json:"is_valid"`
	TotalDebits  string            `json:"total_debits"`
	TotalCredits string            `json:"total_credits"`
	Difference   string            `json:"difference"`
	Drift        []AccountDriftDTO `json:"drift"`
}

// AccountDriftDTO reports one account failing the drift check.
type AccountDriftDTO struct {
	AccountID    string `json:"account_id"`
	Code         string `json:"code"`
	Stored       string `json:"stored"`
	Recalculated string `json:"recalculated"`
	Difference   string `json:"difference"`
}

func toIntegrityReportDTO(r *ledger.IntegrityReport) IntegrityReportDTO {
	dto := IntegrityReportDTO{
		IsValid:      r.IsValid,
		TotalDebits:  r.TotalDebits.String(),
		TotalCredits: r.TotalCredits.String(),
		Difference:   r.Difference.String(),
		Drift:        []AccountDriftDTO{},
	}
	for _, d := range r.Drift {
		dto.Drift = append(dto.Drift, AccountDriftDTO{
			AccountID:    string(d.AccountID),
			Code:         d.Code,
			Stored:       d.Stored.String(),
			Recalculated: d.Recalculated.String(),
			Difference:   d.Difference.String(),
		})
	}
	return dto
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
