package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbooks/ledger-engine/ledger"
	"github.com/clearbooks/ledger-engine/store/sqlite"
	"github.com/clearbooks/ledger-engine/temporal"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func openAccount(id temporal.LogicalID, code string, balance string, at time.Time) *ledger.Account {
	return &ledger.Account{
		Meta: temporal.Meta{
			VersionID:  temporal.VersionID("v-" + string(id) + "-" + at.Format("150405.000")),
			LogicalID:  id,
			ValidFrom:  at,
			ValidTo:    temporal.Infinity,
			SystemFrom: at,
			SystemTo:   temporal.Infinity,
			ChangedBy:  "test",
		},
		Code:     code,
		Name:     "Account " + code,
		Type:     ledger.Asset,
		Balance:  decimal.RequireFromString(balance),
		IsActive: true,
	}
}

func at(hour, min, sec, ms int) time.Time {
	return time.Date(2024, time.May, 1, hour, min, sec, ms*1_000_000, time.UTC)
}

// =============================================================================
// CODEC ROUND-TRIP
// =============================================================================

func TestStore_RoundTrip_EnvelopeAndDomainFields(t *testing.T) {
	// GIVEN: an account version with every envelope field populated
	// WHEN: inserted and read back by version id
	// THEN: columns rebuild the envelope and the JSON blob the domain fields

	ctx := context.Background()
	s := newStore(t)

	a := openAccount("acc-1", "1000", "123.45", at(9, 0, 0, 0))
	a.PreviousVersionID = "v-prior"
	a.ParentID = "acc-0"
	require.NoError(t, s.Insert(ctx, a))

	e, err := s.Version(ctx, ledger.KindAccount, a.VersionID)
	require.NoError(t, err)
	got, ok := e.(*ledger.Account)
	require.True(t, ok)

	assert.Equal(t, a.VersionID, got.VersionID)
	assert.Equal(t, a.LogicalID, got.LogicalID)
	assert.Equal(t, temporal.VersionID("v-prior"), got.PreviousVersionID)
	assert.True(t, got.ValidFrom.Equal(at(9, 0, 0, 0)))
	assert.True(t, temporal.IsInfinity(got.ValidTo))
	assert.True(t, temporal.IsInfinity(got.SystemTo))
	assert.Equal(t, "test", got.ChangedBy)

	assert.Equal(t, "1000", got.Code)
	assert.Equal(t, ledger.Asset, got.Type)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("123.45")))
	assert.Equal(t, temporal.LogicalID("acc-0"), got.ParentID)
	assert.True(t, got.IsActive)
}

func TestStore_UnregisteredKind(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Current(ctx, "no-such-kind", "x")
	assert.True(t, temporal.IsNotFound(err))
}

// =============================================================================
// CURRENT AND HISTORY
// =============================================================================

func TestStore_Current_SkipsClosedVersions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	v1 := openAccount("acc-1", "1000", "0", at(9, 0, 0, 0))
	require.NoError(t, s.Insert(ctx, v1))
	require.NoError(t, s.CloseVersion(ctx, ledger.KindAccount, v1.VersionID, at(10, 0, 0, 0)))

	v2 := openAccount("acc-1", "1000", "50", at(10, 0, 0, 0))
	v2.PreviousVersionID = v1.VersionID
	require.NoError(t, s.Insert(ctx, v2))

	e, err := s.Current(ctx, ledger.KindAccount, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, v2.VersionID, e.Envelope().VersionID)

	history, err := s.History(ctx, ledger.KindAccount, "acc-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, v2.VersionID, history[0].Envelope().VersionID, "most recent first")
	assert.True(t, history[1].Envelope().ValidTo.Equal(at(10, 0, 0, 0)), "closed boundary persisted")
}

func TestStore_SubSecondBoundaries_SurviveStorage(t *testing.T) {
	// The text timestamp format keeps millisecond boundaries exact, so a
	// version closed at 17:59:59.999 reads back with that precise boundary.

	ctx := context.Background()
	s := newStore(t)

	v1 := openAccount("acc-1", "1000", "0", at(10, 0, 0, 0))
	require.NoError(t, s.Insert(ctx, v1))
	edge := at(17, 59, 59, 999)
	require.NoError(t, s.CloseVersion(ctx, ledger.KindAccount, v1.VersionID, edge))

	e, err := s.Version(ctx, ledger.KindAccount, v1.VersionID)
	require.NoError(t, err)
	m := e.Envelope()
	assert.True(t, m.ValidTo.Equal(edge), "got %s", m.ValidTo)
	assert.True(t, m.ValidAt(edge.Add(-time.Millisecond)))
	assert.False(t, m.ValidAt(edge), "window end is exclusive")
}

// =============================================================================
// COMPARE-AND-SWAP CLOSE
// =============================================================================

func TestStore_CloseVersion_ZeroRowsAffectedIsLostRace(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	v := openAccount("acc-1", "1000", "0", at(9, 0, 0, 0))
	require.NoError(t, s.Insert(ctx, v))

	require.NoError(t, s.CloseVersion(ctx, ledger.KindAccount, v.VersionID, at(10, 0, 0, 0)))

	err := s.CloseVersion(ctx, ledger.KindAccount, v.VersionID, at(11, 0, 0, 0))
	assert.True(t, temporal.IsRetryable(err))

	var cme *temporal.ConcurrentModificationError
	require.ErrorAs(t, err, &cme)
	assert.Equal(t, v.VersionID, cme.VersionID)
}

func TestStore_CloseDeleted_PersistsMarkers(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	v := openAccount("acc-1", "1000", "0", at(9, 0, 0, 0))
	require.NoError(t, s.Insert(ctx, v))
	require.NoError(t, s.CloseDeleted(ctx, ledger.KindAccount, v.VersionID, at(10, 0, 0, 0), "admin"))

	_, err := s.Current(ctx, ledger.KindAccount, "acc-1")
	assert.True(t, temporal.IsNotFound(err))

	e, err := s.Version(ctx, ledger.KindAccount, v.VersionID)
	require.NoError(t, err)
	m := e.Envelope()
	assert.True(t, m.IsDeleted)
	assert.Equal(t, "admin", m.DeletedBy)
	require.NotNil(t, m.DeletedAt)
	assert.True(t, m.DeletedAt.Equal(at(10, 0, 0, 0)))
}

// =============================================================================
// UNITS OF WORK
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	seed := openAccount("acc-1", "1000", "0", at(9, 0, 0, 0))
	require.NoError(t, s.Insert(ctx, seed))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(st temporal.Store) error {
		if err := st.CloseVersion(ctx, ledger.KindAccount, seed.VersionID, at(10, 0, 0, 0)); err != nil {
			return err
		}
		if err := st.Insert(ctx, openAccount("acc-2", "2000", "0", at(10, 0, 0, 0))); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	e, err := s.Current(ctx, ledger.KindAccount, "acc-1")
	require.NoError(t, err, "close rolled back")
	assert.Equal(t, seed.VersionID, e.Envelope().VersionID)

	_, err = s.Current(ctx, ledger.KindAccount, "acc-2")
	assert.True(t, temporal.IsNotFound(err), "insert rolled back")
}

// =============================================================================
// FULL SERVICE FLOW OVER SQLITE
// =============================================================================

func TestStore_DrivesFullLedgerLifecycle(t *testing.T) {
	// The same create/edit/void scenario the memory-backed service tests
	// run, persisted end to end through SQL.

	ctx := context.Background()
	now := at(9, 0, 0, 0)
	svc := ledger.NewService(newStore(t)).WithClock(func() time.Time { return now })

	cash, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{
		Code: "1000", Name: "Cash", Type: ledger.Asset, Actor: "setup",
	})
	require.NoError(t, err)
	now = now.Add(time.Minute)

	donations, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{
		Code: "4000", Name: "Donations", Type: ledger.Revenue, Actor: "setup",
	})
	require.NoError(t, err)
	now = now.Add(time.Minute)

	tx, err := svc.CreateTransaction(ctx, ledger.CreateTransactionInput{
		Amount:          decimal.RequireFromString("500"),
		DebitAccountID:  cash.LogicalID,
		CreditAccountID: donations.LogicalID,
		Date:            now,
		Description:     "donation",
		Actor:           "clerk",
	})
	require.NoError(t, err)
	now = now.Add(time.Minute)

	corrected := decimal.RequireFromString("350")
	_, err = svc.EditTransaction(ctx, tx.LogicalID, ledger.EditTransactionInput{
		Amount: &corrected, Actor: "supervisor",
	})
	require.NoError(t, err)
	now = now.Add(time.Minute)

	got, err := svc.GetAccount(ctx, cash.LogicalID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(corrected), "got %s", got.Balance)

	_, err = svc.VoidTransaction(ctx, tx.LogicalID, "duplicate", "supervisor")
	require.NoError(t, err)
	now = now.Add(time.Minute)

	got, err = svc.GetAccount(ctx, cash.LogicalID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())

	chain, err := svc.GetHistory(ctx, tx.LogicalID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.True(t, chain[0].IsVoided)

	report, err := svc.VerifyIntegrity(ctx, nil, nil)
	require.NoError(t, err)
	assert.True(t, report.IsValid)
	assert.Empty(t, report.Drift)
}
