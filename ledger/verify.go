/*
verify.go - Drift detection, double-entry totals, hierarchy aggregation

PURPOSE:
  The verification functions recompute balances purely from transaction
  history and compare them with what is stored. They are the corruption
  oracle: read-only diagnostics that never mutate state to "fix" anything.
  Correction is a deliberate, separately authorized operation.

TOLERANCE:
  Stored-vs-recalculated comparison tolerates strictly less than one cent
  of difference. The tolerance absorbs representation rounding on values
  that crossed a serialization boundary, not logic errors.

NOTE ON DOUBLE-ENTRY TOTALS:
  With the current transaction shape - one amount, one debit account, one
  credit account - the debit and credit totals are equal by construction,
  so VerifyDoubleEntryIntegrity cannot currently fail on well-formed data.
  The check keeps its interface for a future split-entry model where a
  journal line could carry different amounts per side.
*/
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/clearbooks/ledger-engine/temporal"
)

// DriftTolerance is the maximum stored-vs-recalculated difference accepted
// as representation rounding: |difference| < 0.01.
var DriftTolerance = decimal.NewFromFloat(0.01)

// =============================================================================
// RECALCULATION - Balance implied purely by history
// =============================================================================

// Recalculate folds the sign rules over every non-voided transaction that
// touches the account, starting from initial. The result is the balance the
// transaction history implies, independent of whatever is stored.
func Recalculate(txs []*Transaction, accountID temporal.LogicalID, t AccountType, initial decimal.Decimal) decimal.Decimal {
	balance := initial
	for _, tx := range txs {
		if tx.IsVoided || !tx.Touches(accountID) {
			continue
		}
		if tx.DebitAccountID == accountID {
			balance = NewBalance(balance, tx.Amount, t, true)
		}
		if tx.CreditAccountID == accountID {
			balance = NewBalance(balance, tx.Amount, t, false)
		}
	}
	return balance
}

// VerificationResult reports a stored-vs-recalculated comparison.
type VerificationResult struct {
	IsCorrect    bool
	Stored       decimal.Decimal
	Recalculated decimal.Decimal
	Difference   decimal.Decimal
}

// Verify compares a stored balance with a recalculated one under the
// one-cent tolerance. The difference is reported as stored minus
// recalculated, absolute.
func Verify(stored, recalculated decimal.Decimal) VerificationResult {
	diff := stored.Sub(recalculated).Abs()
	return VerificationResult{
		IsCorrect:    diff.LessThan(DriftTolerance),
		Stored:       stored,
		Recalculated: recalculated,
		Difference:   diff,
	}
}

// =============================================================================
// DOUBLE-ENTRY TOTALS
// =============================================================================

// DoubleEntryResult reports the debit-side vs credit-side bookkeeping totals.
type DoubleEntryResult struct {
	IsValid      bool
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
	Difference   decimal.Decimal
}

// VerifyDoubleEntryIntegrity sums the amounts applied to the debit side and
// the credit side across the given transactions and checks they match.
// Voided transactions contribute nothing: their effect has been reversed.
// Holds trivially for the empty set (0 = 0).
func VerifyDoubleEntryIntegrity(txs []*Transaction) DoubleEntryResult {
	debits := decimal.Zero
	credits := decimal.Zero
	for _, tx := range txs {
		if tx.IsVoided {
			continue
		}
		debits = debits.Add(tx.Amount)
		credits = credits.Add(tx.Amount)
	}
	diff := debits.Sub(credits).Abs()
	return DoubleEntryResult{
		IsValid:      diff.LessThan(DriftTolerance),
		TotalDebits:  debits,
		TotalCredits: credits,
		Difference:   diff,
	}
}

// =============================================================================
// HIERARCHICAL AGGREGATION
// =============================================================================

// HierarchicalBalance returns an account's displayed balance: its own stored
// balance plus the hierarchical balance of each DIRECT child, recursively.
// Grandchildren are folded in by their parent's recursion, never summed
// flat, so nothing is double-counted. Unknown ids contribute zero.
//
// Parent pointers are a tree by convention, not enforced here; the visited
// set keeps traversal terminating even on malformed data.
func HierarchicalBalance(accountID temporal.LogicalID, accounts []*Account) decimal.Decimal {
	byID := make(map[temporal.LogicalID]*Account, len(accounts))
	children := make(map[temporal.LogicalID][]*Account)
	for _, a := range accounts {
		byID[a.LogicalID] = a
		if a.ParentID != "" {
			children[a.ParentID] = append(children[a.ParentID], a)
		}
	}
	visited := make(map[temporal.LogicalID]bool)
	return hierarchicalBalance(accountID, byID, children, visited)
}

func hierarchicalBalance(
	id temporal.LogicalID,
	byID map[temporal.LogicalID]*Account,
	children map[temporal.LogicalID][]*Account,
	visited map[temporal.LogicalID]bool,
) decimal.Decimal {
	account, ok := byID[id]
	if !ok || visited[id] {
		return decimal.Zero
	}
	visited[id] = true

	total := account.Balance
	for _, child := range children[id] {
		total = total.Add(hierarchicalBalance(child.LogicalID, byID, children, visited))
	}
	return total
}
