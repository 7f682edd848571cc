package temporal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbooks/ledger-engine/temporal"
)

func TestRegistry_NewOfKind(t *testing.T) {
	temporal.RegisterKind("gadget", func() temporal.Entity { return &widget{} })

	e, err := temporal.NewOfKind("gadget")
	require.NoError(t, err)
	_, ok := e.(*widget)
	assert.True(t, ok, "factory allocates the registered concrete type")

	_, err = temporal.NewOfKind("no-such-kind")
	assert.ErrorIs(t, err, temporal.ErrKindNotRegistered)
}

func TestRegistry_RegisteredKinds(t *testing.T) {
	temporal.RegisterKind("gizmo", func() temporal.Entity { return &widget{} })
	assert.Contains(t, temporal.RegisteredKinds(), "gizmo")
}
