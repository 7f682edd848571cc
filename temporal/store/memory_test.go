package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbooks/ledger-engine/temporal"
	"github.com/clearbooks/ledger-engine/temporal/store"
)

type note struct {
	temporal.Meta `json:"-"`

	Body string `json:"body"`
}

func (n *note) Kind() string { return "note" }

var _ temporal.Entity = (*note)(nil)

func (n *note) Clone() temporal.Entity {
	c := *n
	if n.DeletedAt != nil {
		at := *n.DeletedAt
		c.DeletedAt = &at
	}
	return &c
}

func openNote(id temporal.LogicalID, body string, at time.Time) *note {
	return &note{
		Meta: temporal.Meta{
			VersionID:  temporal.VersionID("v-" + string(id) + "-" + at.Format("150405")),
			LogicalID:  id,
			ValidFrom:  at,
			ValidTo:    temporal.Infinity,
			SystemFrom: at,
			SystemTo:   temporal.Infinity,
		},
		Body: body,
	}
}

func at(hour int) time.Time {
	return time.Date(2024, time.March, 1, hour, 0, 0, 0, time.UTC)
}

func TestMemory_InsertIsolatesCallerPointer(t *testing.T) {
	// GIVEN: an inserted version
	// WHEN: the caller keeps mutating its pointer
	// THEN: the stored copy is unaffected

	ctx := context.Background()
	m := store.NewMemory()

	n := openNote("n1", "original", at(9))
	require.NoError(t, m.Insert(ctx, n))
	n.Body = "mutated"

	got, err := m.Current(ctx, "note", "n1")
	require.NoError(t, err)
	assert.Equal(t, "original", got.(*note).Body)
}

func TestMemory_CloseVersion_SecondCloseLosesRace(t *testing.T) {
	// GIVEN: a current version closed once
	// WHEN: a second close targets the same version id
	// THEN: the compare-and-swap reports a concurrent modification

	ctx := context.Background()
	m := store.NewMemory()

	n := openNote("n1", "body", at(9))
	require.NoError(t, m.Insert(ctx, n))

	require.NoError(t, m.CloseVersion(ctx, "note", n.VersionID, at(10)))

	err := m.CloseVersion(ctx, "note", n.VersionID, at(11))
	assert.True(t, temporal.IsRetryable(err))

	// Unknown version ids report the same lost race.
	err = m.CloseVersion(ctx, "note", "nope", at(11))
	assert.True(t, temporal.IsRetryable(err))
}

func TestMemory_History_NewestFirst(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	v1 := openNote("n1", "one", at(9))
	require.NoError(t, m.Insert(ctx, v1))
	require.NoError(t, m.CloseVersion(ctx, "note", v1.VersionID, at(10)))
	v2 := openNote("n1", "two", at(10))
	require.NoError(t, m.Insert(ctx, v2))

	history, err := m.History(ctx, "note", "n1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "two", history[0].(*note).Body)
	assert.Equal(t, "one", history[1].(*note).Body)
}

func TestTxMemory_Rollback_LeavesNoPartialState(t *testing.T) {
	// GIVEN: a unit of work that inserts a version and closes another
	// WHEN: the unit fails after those writes
	// THEN: neither write survives

	ctx := context.Background()
	tm := store.NewTxMemory()

	seed := openNote("n1", "seed", at(9))
	require.NoError(t, tm.Insert(ctx, seed))

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(st temporal.Store) error {
		if err := st.CloseVersion(ctx, "note", seed.VersionID, at(10)); err != nil {
			return err
		}
		if err := st.Insert(ctx, openNote("n2", "new", at(10))); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := tm.Current(ctx, "note", "n1")
	require.NoError(t, err, "closed version reopened by rollback")
	assert.Equal(t, seed.VersionID, got.Envelope().VersionID)

	_, err = tm.Current(ctx, "note", "n2")
	assert.True(t, temporal.IsNotFound(err), "inserted version rolled back")
}

func TestTxMemory_ReadersNeverSeeUncommittedWrites(t *testing.T) {
	// GIVEN: a unit of work that has inserted a version but not committed
	// WHEN: a root-store read starts while the unit is still open
	// THEN: the read waits it out and, after the rollback, finds nothing

	ctx := context.Background()
	tm := store.NewTxMemory()

	inserted := make(chan struct{})
	release := make(chan struct{})
	boom := errors.New("boom")
	txDone := make(chan error, 1)
	go func() {
		txDone <- tm.WithTx(ctx, func(st temporal.Store) error {
			if err := st.Insert(ctx, openNote("n1", "dirty", at(9))); err != nil {
				return err
			}
			close(inserted)
			<-release
			return boom
		})
	}()

	<-inserted
	readDone := make(chan error, 1)
	go func() {
		_, err := tm.Current(ctx, "note", "n1")
		readDone <- err
	}()

	close(release)
	require.ErrorIs(t, <-txDone, boom)
	assert.True(t, temporal.IsNotFound(<-readDone), "rolled-back insert must not be readable")
}

func TestTxMemory_Commit_KeepsWrites(t *testing.T) {
	ctx := context.Background()
	tm := store.NewTxMemory()

	err := tm.WithTx(ctx, func(st temporal.Store) error {
		return st.Insert(ctx, openNote("n1", "kept", at(9)))
	})
	require.NoError(t, err)

	got, err := tm.Current(ctx, "note", "n1")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.(*note).Body)
}
