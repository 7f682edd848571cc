/*
Package ledger implements the double-entry accounting domain on top of the
bitemporal versioning engine.

PURPOSE:
  Accounts and journal transactions are versioned records: every balance
  change produces a NEW account version, never an in-place update, and every
  transaction edit or void closes the old version and opens a successor.
  This package owns the accounting rules (sign conventions, double-entry
  effects, drift verification, hierarchy aggregation) while the temporal
  package owns the versioning mechanics.

KEY CONCEPTS IN THIS FILE (types.go):
  - AccountType: The five fundamental accounting types
  - Account: A ledger account with a temporal balance
  - Transaction: One double-entry journal entry (one amount, two accounts)

DESIGN PRINCIPLES:
  1. Amounts are always positive decimals. Direction is structural: which
     account is debited vs. credited, combined with each account's type.
  2. Precision: decimal.Decimal everywhere, never floating point.
  3. Immutability: voiding or editing never touches history, it extends it.

SEE ALSO:
  - balance.go: The sign rules (debit/credit effect per account type)
  - service.go: The transaction lifecycle manager
  - verify.go: Drift detection and hierarchical aggregation
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearbooks/ledger-engine/temporal"
)

// Entity kind names used by the version store.
const (
	KindAccount     = "account"
	KindTransaction = "transaction"
)

func init() {
	temporal.RegisterKind(KindAccount, func() temporal.Entity { return &Account{} })
	temporal.RegisterKind(KindTransaction, func() temporal.Entity { return &Transaction{} })
}

// Both entity types must keep satisfying the engine contract through the
// embedded envelope's promoted methods.
var (
	_ temporal.Entity = (*Account)(nil)
	_ temporal.Entity = (*Transaction)(nil)
)

// =============================================================================
// ACCOUNT TYPES
// =============================================================================

// AccountType is the fundamental accounting type of an account.
// It determines which side (debit or credit) increases the balance.
type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Equity    AccountType = "EQUITY"
	Revenue   AccountType = "REVENUE"
	Expense   AccountType = "EXPENSE"
)

// Valid reports whether t is one of the five account types.
func (t AccountType) Valid() bool {
	switch t {
	case Asset, Liability, Equity, Revenue, Expense:
		return true
	}
	return false
}

// =============================================================================
// ACCOUNT - A versioned ledger account
// =============================================================================

// Account is a logical ledger account. The balance is itself temporal: every
// balance change is a new version of the account, so BalanceAsOf any past
// date is just an as-of lookup.
type Account struct {
	temporal.Meta `json:"-"`

	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Type    AccountType     `json:"type"`
	Balance decimal.Decimal `json:"balance"`

	// ParentID forms the account hierarchy. Empty for a root account.
	// A tree by convention; traversal still guards against cycles.
	ParentID temporal.LogicalID `json:"parent_id,omitempty"`

	IsActive bool `json:"is_active"`
}

func (a *Account) Kind() string { return KindAccount }

func (a *Account) Clone() temporal.Entity {
	c := *a
	if a.DeletedAt != nil {
		at := *a.DeletedAt
		c.DeletedAt = &at
	}
	return &c
}

// =============================================================================
// TRANSACTION - A versioned double-entry journal entry
// =============================================================================

// Transaction records one double-entry journal entry. The amount is always
// positive; the sign effect on each side comes from the account's type.
type Transaction struct {
	temporal.Meta `json:"-"`

	Amount          decimal.Decimal    `json:"amount"`
	DebitAccountID  temporal.LogicalID `json:"debit_account_id"`
	CreditAccountID temporal.LogicalID `json:"credit_account_id"`
	Date            time.Time          `json:"date"`
	Description     string             `json:"description"`
	Reference       string             `json:"reference,omitempty"`

	// Void markers. A voided version is terminal: no further edit or void.
	IsVoided   bool       `json:"is_voided"`
	VoidReason string     `json:"void_reason,omitempty"`
	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidedBy   string     `json:"voided_by,omitempty"`
}

func (t *Transaction) Kind() string { return KindTransaction }

func (t *Transaction) Clone() temporal.Entity {
	c := *t
	if t.DeletedAt != nil {
		at := *t.DeletedAt
		c.DeletedAt = &at
	}
	if t.VoidedAt != nil {
		at := *t.VoidedAt
		c.VoidedAt = &at
	}
	return &c
}

// Touches reports whether the transaction debits or credits the account.
func (t *Transaction) Touches(accountID temporal.LogicalID) bool {
	return t.DebitAccountID == accountID || t.CreditAccountID == accountID
}
