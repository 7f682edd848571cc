/*
service.go - Transaction lifecycle manager

PURPOSE:
  Orchestrates create/edit/void of journal transactions and the account
  version chains they touch. Every mutation runs inside one unit of work:
  close old versions, reverse old balance effects, open successor versions,
  apply new effects - all of it commits together or not at all.

STATE MACHINE (per logical transaction):
  ACTIVE -> EDITED (a new ACTIVE version)
  ACTIVE -> VOIDED (terminal; no transition out)

CONCURRENCY:
  Every version close inside a unit of work is compare-and-swap guarded.
  If any close loses a race the whole operation aborts with
  ConcurrentModificationError and nothing partial is observable. The caller
  retries the entire operation from a fresh read.

FAILURE SEMANTICS:
  "Not found or already voided" is reported as a single condition: the
  manager does not distinguish "never existed" from "exists but terminal".

SEE ALSO:
  - temporal/repository.go: The close-and-supersede mechanics
  - balance.go: The sign rules applied on each side
  - verify.go: The read-only integrity diagnostics
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearbooks/ledger-engine/temporal"
)

// Service is the transaction lifecycle manager.
type Service struct {
	store temporal.TxStore
	now   temporal.Clock
}

// NewService builds a lifecycle manager over the given transactional store.
func NewService(store temporal.TxStore) *Service {
	return &Service{store: store, now: temporal.UTCNow}
}

// WithClock substitutes the time source. Intended for tests.
func (s *Service) WithClock(clock temporal.Clock) *Service {
	return &Service{store: s.store, now: clock}
}

// accounts and transactions build repositories over a store view, which is
// either the root store (reads) or a unit-of-work view (mutations).
func (s *Service) accounts(st temporal.Store) *temporal.Repository[*Account] {
	return temporal.NewRepository[*Account](st, KindAccount).WithClock(s.now)
}

func (s *Service) transactions(st temporal.Store) *temporal.Repository[*Transaction] {
	return temporal.NewRepository[*Transaction](st, KindTransaction).WithClock(s.now)
}

// =============================================================================
// ACCOUNT MANAGEMENT
// =============================================================================

// CreateAccountInput carries the fields for a new ledger account.
type CreateAccountInput struct {
	Code     string
	Name     string
	Type     AccountType
	ParentID temporal.LogicalID
	Actor    string
}

// CreateAccount opens a new account at zero balance.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (*Account, error) {
	if !in.Type.Valid() {
		return nil, &temporal.InvalidOperationError{Kind: KindAccount, Reason: "unknown account type: " + string(in.Type)}
	}
	if in.Code == "" || in.Name == "" {
		return nil, &temporal.InvalidOperationError{Kind: KindAccount, Reason: "code and name are required"}
	}

	var created *Account
	err := s.store.WithTx(ctx, func(st temporal.Store) error {
		repo := s.accounts(st)
		if in.ParentID != "" {
			if _, err := repo.FindCurrent(ctx, in.ParentID); err != nil {
				return err
			}
		}
		account := &Account{
			Code:     in.Code,
			Name:     in.Name,
			Type:     in.Type,
			Balance:  decimal.Zero,
			ParentID: in.ParentID,
			IsActive: true,
		}
		var err error
		created, err = repo.Create(ctx, account, in.Actor)
		return err
	})
	return created, err
}

// GetAccount returns the current version of an account.
func (s *Service) GetAccount(ctx context.Context, id temporal.LogicalID) (*Account, error) {
	return s.accounts(s.store).FindCurrent(ctx, id)
}

// ListAccounts returns the current version of every account.
func (s *Service) ListAccounts(ctx context.Context) ([]*Account, error) {
	return s.accounts(s.store).FindAllCurrent(ctx, nil)
}

// AccountHistory returns every version of an account, most recent first.
func (s *Service) AccountHistory(ctx context.Context, id temporal.LogicalID) ([]*Account, error) {
	return s.accounts(s.store).FindHistory(ctx, id)
}

// DeactivateAccount closes the current version and opens an inactive
// successor. Inactive accounts reject new transactions but keep history.
func (s *Service) DeactivateAccount(ctx context.Context, id temporal.LogicalID, actor string) (*Account, error) {
	var updated *Account
	err := s.store.WithTx(ctx, func(st temporal.Store) error {
		var err error
		updated, err = s.accounts(st).Update(ctx, id, actor, func(a *Account) {
			a.IsActive = false
		})
		return err
	})
	return updated, err
}

// DeleteAccount soft-deletes an account: the current version is closed and
// marked deleted, no successor is created. History stays queryable.
func (s *Service) DeleteAccount(ctx context.Context, id temporal.LogicalID, actor string) error {
	return s.store.WithTx(ctx, func(st temporal.Store) error {
		return s.accounts(st).SoftDelete(ctx, id, actor)
	})
}

// RestoreAccount reopens a soft-deleted account from its last deleted version.
func (s *Service) RestoreAccount(ctx context.Context, id temporal.LogicalID, actor string) (*Account, error) {
	var restored *Account
	err := s.store.WithTx(ctx, func(st temporal.Store) error {
		var err error
		restored, err = s.accounts(st).Restore(ctx, id, actor)
		return err
	})
	return restored, err
}

// =============================================================================
// TRANSACTION LIFECYCLE
// =============================================================================

// CreateTransactionInput carries the fields for a new journal entry.
type CreateTransactionInput struct {
	Amount          decimal.Decimal
	DebitAccountID  temporal.LogicalID
	CreditAccountID temporal.LogicalID
	Date            time.Time
	Description     string
	Reference       string
	Actor           string
}

// EditTransactionInput is a partial patch over the current version.
// Nil fields keep the current value.
type EditTransactionInput struct {
	Amount          *decimal.Decimal
	DebitAccountID  *temporal.LogicalID
	CreditAccountID *temporal.LogicalID
	Date            *time.Time
	Description     *string
	Reference       *string
	Actor           string
}

// CreateTransaction writes the genesis version of a journal entry and
// applies its balance effect to both accounts, each producing a new account
// version.
func (s *Service) CreateTransaction(ctx context.Context, in CreateTransactionInput) (*Transaction, error) {
	if err := validateEntry(in.Amount, in.DebitAccountID, in.CreditAccountID); err != nil {
		return nil, err
	}

	var created *Transaction
	err := s.store.WithTx(ctx, func(st temporal.Store) error {
		tx := &Transaction{
			Amount:          in.Amount,
			DebitAccountID:  in.DebitAccountID,
			CreditAccountID: in.CreditAccountID,
			Date:            in.Date,
			Description:     in.Description,
			Reference:       in.Reference,
		}
		var err error
		created, err = s.transactions(st).Create(ctx, tx, in.Actor)
		if err != nil {
			return err
		}
		return s.applyEffect(ctx, st, created, false, in.Actor)
	})
	return created, err
}

// EditTransaction closes the current version, reverses its balance effect,
// opens a successor carrying the patch, and applies the successor's effect -
// possibly against different accounts or a different amount. All inside one
// unit of work.
func (s *Service) EditTransaction(ctx context.Context, id temporal.LogicalID, in EditTransactionInput) (*Transaction, error) {
	var edited *Transaction
	err := s.store.WithTx(ctx, func(st temporal.Store) error {
		repo := s.transactions(st)
		current, err := s.currentEditable(ctx, repo, id)
		if err != nil {
			return err
		}

		// Reverse the old effect before the successor's fields exist.
		if err := s.applyEffect(ctx, st, current, true, in.Actor); err != nil {
			return err
		}

		edited, err = repo.Supersede(ctx, current, in.Actor, func(tx *Transaction) {
			if in.Amount != nil {
				tx.Amount = *in.Amount
			}
			if in.DebitAccountID != nil {
				tx.DebitAccountID = *in.DebitAccountID
			}
			if in.CreditAccountID != nil {
				tx.CreditAccountID = *in.CreditAccountID
			}
			if in.Date != nil {
				tx.Date = *in.Date
			}
			if in.Description != nil {
				tx.Description = *in.Description
			}
			if in.Reference != nil {
				tx.Reference = *in.Reference
			}
		})
		if err != nil {
			return err
		}
		if err := validateEntry(edited.Amount, edited.DebitAccountID, edited.CreditAccountID); err != nil {
			return err
		}
		return s.applyEffect(ctx, st, edited, false, in.Actor)
	})
	if err != nil {
		edited = nil
	}
	return edited, err
}

// VoidTransaction closes the current version and opens a terminal successor
// flagged voided, reversing the balance effect exactly as an edit would.
func (s *Service) VoidTransaction(ctx context.Context, id temporal.LogicalID, reason, actor string) (*Transaction, error) {
	var voided *Transaction
	err := s.store.WithTx(ctx, func(st temporal.Store) error {
		repo := s.transactions(st)
		current, err := s.currentEditable(ctx, repo, id)
		if err != nil {
			return err
		}
		if err := s.applyEffect(ctx, st, current, true, actor); err != nil {
			return err
		}
		now := s.now()
		voided, err = repo.Supersede(ctx, current, actor, func(tx *Transaction) {
			tx.IsVoided = true
			tx.VoidReason = reason
			tx.VoidedAt = &now
			tx.VoidedBy = actor
		})
		return err
	})
	if err != nil {
		voided = nil
	}
	return voided, err
}

// GetTransaction returns the current version of a journal entry.
func (s *Service) GetTransaction(ctx context.Context, id temporal.LogicalID) (*Transaction, error) {
	return s.transactions(s.store).FindCurrent(ctx, id)
}

// ListTransactions returns the current version of every journal entry,
// optionally restricted to a [from, to) date window.
func (s *Service) ListTransactions(ctx context.Context, from, to *time.Time) ([]*Transaction, error) {
	return s.transactions(s.store).FindAllCurrent(ctx, func(tx *Transaction) bool {
		if from != nil && tx.Date.Before(*from) {
			return false
		}
		if to != nil && !tx.Date.Before(*to) {
			return false
		}
		return true
	})
}

// GetHistory follows PreviousVersionID links backward from the current
// version to genesis, most recent first. Each successor points strictly to
// an older, closed version so the walk terminates; the seen-set guards
// against malformed data anyway.
func (s *Service) GetHistory(ctx context.Context, id temporal.LogicalID) ([]*Transaction, error) {
	current, err := s.transactions(s.store).FindCurrent(ctx, id)
	if err != nil {
		return nil, err
	}

	var chain []*Transaction
	seen := make(map[temporal.VersionID]bool)
	for v := temporal.Entity(current); ; {
		m := v.Envelope()
		if seen[m.VersionID] {
			break
		}
		seen[m.VersionID] = true
		chain = append(chain, v.(*Transaction))
		if m.PreviousVersionID == "" {
			break
		}
		prev, err := s.store.Version(ctx, KindTransaction, m.PreviousVersionID)
		if err != nil {
			return nil, err
		}
		v = prev
	}
	return chain, nil
}

// =============================================================================
// BALANCE QUERIES
// =============================================================================

// BalanceAsOf returns the account balance that was the business truth at the
// given moment: the stored balance of the version whose valid-time window
// contains it.
func (s *Service) BalanceAsOf(ctx context.Context, id temporal.LogicalID, at time.Time) (decimal.Decimal, error) {
	account, err := s.accounts(s.store).FindAsOf(ctx, id, at)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return account.Balance, nil
}

// HierarchicalBalanceOf returns the account's own balance plus all
// descendants', aggregated over current account versions.
func (s *Service) HierarchicalBalanceOf(ctx context.Context, id temporal.LogicalID) (decimal.Decimal, error) {
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return HierarchicalBalance(id, accounts), nil
}

// =============================================================================
// INTEGRITY VERIFICATION
// =============================================================================

// AccountDrift reports one account failing the stored-vs-recalculated check.
type AccountDrift struct {
	AccountID    temporal.LogicalID
	Code         string
	Stored       decimal.Decimal
	Recalculated decimal.Decimal
	Difference   decimal.Decimal
}

// IntegrityReport is the result of a full verification pass.
type IntegrityReport struct {
	IsValid      bool
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
	Difference   decimal.Decimal
	Drift        []AccountDrift
}

// VerifyIntegrity runs the double-entry totals check over the (optionally
// date-bounded) transaction set and recomputes every account's balance from
// full history. Read-only: mismatches are reported, never corrected.
func (s *Service) VerifyIntegrity(ctx context.Context, from, to *time.Time) (*IntegrityReport, error) {
	txs, err := s.ListTransactions(ctx, from, to)
	if err != nil {
		return nil, err
	}
	totals := VerifyDoubleEntryIntegrity(txs)

	// Drift detection always folds the FULL history, not the window:
	// a stored balance reflects everything that ever touched the account.
	allTxs := txs
	if from != nil || to != nil {
		allTxs, err = s.ListTransactions(ctx, nil, nil)
		if err != nil {
			return nil, err
		}
	}
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{
		IsValid:      totals.IsValid,
		TotalDebits:  totals.TotalDebits,
		TotalCredits: totals.TotalCredits,
		Difference:   totals.Difference,
	}
	for _, account := range accounts {
		recalculated := Recalculate(allTxs, account.LogicalID, account.Type, decimal.Zero)
		result := Verify(account.Balance, recalculated)
		if !result.IsCorrect {
			report.IsValid = false
			report.Drift = append(report.Drift, AccountDrift{
				AccountID:    account.LogicalID,
				Code:         account.Code,
				Stored:       result.Stored,
				Recalculated: result.Recalculated,
				Difference:   result.Difference,
			})
		}
	}
	return report, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// currentEditable returns the current version if it is a valid lifecycle
// target. Missing and already-voided collapse into one reported condition.
func (s *Service) currentEditable(ctx context.Context, repo *temporal.Repository[*Transaction], id temporal.LogicalID) (*Transaction, error) {
	current, err := repo.FindCurrent(ctx, id)
	if err != nil {
		if temporal.IsNotFound(err) {
			return nil, errTerminalOrMissing()
		}
		return nil, err
	}
	if current.IsVoided {
		return nil, errTerminalOrMissing()
	}
	return current, nil
}

func errTerminalOrMissing() error {
	return &temporal.InvalidOperationError{Kind: KindTransaction, Reason: "transaction not found or already voided"}
}

// applyEffect posts the transaction's amount to both accounts: the debit
// account on the debit side, the credit account on the credit side - or the
// opposite sides when reversing. Each posting reads the account's current
// version fresh and supersedes it, so a transaction touching the same
// account twice (or an edit rebinding accounts) composes correctly.
//
// Only forward postings require an active account. A reversal undoes an
// effect that is already on the books; refusing it would make a transaction
// on a deactivated account permanently uneditable and unvoidable.
func (s *Service) applyEffect(ctx context.Context, st temporal.Store, tx *Transaction, reverse bool, actor string) error {
	if err := s.postToAccount(ctx, st, tx.DebitAccountID, tx.Amount, !reverse, reverse, actor); err != nil {
		return err
	}
	return s.postToAccount(ctx, st, tx.CreditAccountID, tx.Amount, reverse, reverse, actor)
}

func (s *Service) postToAccount(ctx context.Context, st temporal.Store, id temporal.LogicalID, amount decimal.Decimal, isDebit, reversal bool, actor string) error {
	repo := s.accounts(st)
	account, err := repo.FindCurrent(ctx, id)
	if err != nil {
		return err
	}
	if !account.IsActive && !reversal {
		return &temporal.InvalidOperationError{Kind: KindAccount, Reason: "account " + account.Code + " is inactive"}
	}
	_, err = repo.Supersede(ctx, account, actor, func(a *Account) {
		a.Balance = NewBalance(a.Balance, amount, a.Type, isDebit)
	})
	return err
}

func validateEntry(amount decimal.Decimal, debit, credit temporal.LogicalID) error {
	if !amount.IsPositive() {
		return &temporal.InvalidOperationError{Kind: KindTransaction, Reason: "amount must be positive"}
	}
	if debit == "" || credit == "" {
		return &temporal.InvalidOperationError{Kind: KindTransaction, Reason: "debit and credit accounts are required"}
	}
	if debit == credit {
		return &temporal.InvalidOperationError{Kind: KindTransaction, Reason: "debit and credit accounts must differ"}
	}
	return nil
}
