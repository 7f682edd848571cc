/*
balance.go - The double-entry sign rules

PURPOSE:
  One pure function mapping (current balance, amount, account type, side)
  to the new balance. Everything that changes an account balance anywhere
  in the system goes through NewBalance, and everything that reverses one
  goes through the same function with the opposite side.

THE RULE:
  ASSET, EXPENSE:              debit increases, credit decreases
  LIABILITY, EQUITY, REVENUE:  credit increases, debit decreases

  Amount is always non-negative. There is no clamping: balances may go
  negative (overdraft) and that is not an error at this layer.
*/
package ledger

import "github.com/shopspring/decimal"

// NewBalance returns the balance after applying amount on the given side of
// an account of the given type. Pure: exact decimal arithmetic, no rounding.
func NewBalance(current, amount decimal.Decimal, t AccountType, isDebit bool) decimal.Decimal {
	if debitIncreases(t) == isDebit {
		return current.Add(amount)
	}
	return current.Sub(amount)
}

// ReverseBalance undoes a previously applied effect: the same amount on the
// opposite side. Applying an effect and then its reversal returns the
// balance to its prior value exactly.
func ReverseBalance(current, amount decimal.Decimal, t AccountType, wasDebit bool) decimal.Decimal {
	return NewBalance(current, amount, t, !wasDebit)
}

// debitIncreases reports whether a debit grows balances of this type.
func debitIncreases(t AccountType) bool {
	return t == Asset || t == Expense
}
