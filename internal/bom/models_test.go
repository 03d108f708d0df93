package bom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemRefPrecedence(t *testing.T) {
	ref, err := internalItem("i", "box", "1").Ref()
	require.NoError(t, err)
	assert.Equal(t, InternalRef("box"), ref)

	ref, err = variationItem("v", 5, 6, "1").Ref()
	require.NoError(t, err)
	assert.Equal(t, VariationRef(5, 6), ref)

	ref, err = productItem("p", 5, "1").Ref()
	require.NoError(t, err)
	assert.Equal(t, ProductRef(5), ref)
}

func TestItemValidate(t *testing.T) {
	both := internalItem("both", "box", "1")
	pid := int64(3)
	both.ComponentProductID = &pid

	for name, it := range map[string]Item{
		"none":     {ID: "none", Quantity: dec("1")},
		"both":     both,
		"zero qty": productItem("z", 1, "0"),
		"neg qty":  productItem("n", 1, "-1"),
	} {
		assert.ErrorIs(t, it.Validate(), ErrInvalidItem, name)
	}
	assert.NoError(t, productItem("ok", 1, "0.5").Validate())
}

func TestLedgerTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusExecuted, StatusCompleted))
	assert.True(t, CanTransition(StatusExecuted, StatusRolledBack))
	assert.True(t, CanTransition(StatusCompleted, StatusReversed))

	assert.False(t, CanTransition(StatusCompleted, StatusRolledBack))
	assert.False(t, CanTransition(StatusExecuted, StatusReversed))
	assert.False(t, CanTransition(StatusRolledBack, StatusExecuted))
	assert.False(t, CanTransition(StatusReversed, StatusCompleted))
}

func TestComponentRef(t *testing.T) {
	assert.Equal(t, "product:7", ProductRef(7).String())
	assert.Equal(t, "variation:7/8", VariationRef(7, 8).String())
	assert.Equal(t, "internal:box", InternalRef("box").String())
	assert.Equal(t, ProductRef(7), ParentRef(7, 0))
	assert.Equal(t, VariationRef(7, 8), ParentRef(7, 8))
	assert.False(t, InternalRef("box").External())
	assert.True(t, VariationRef(7, 8).External())
}

func TestLedgerEntryRoundTrip(t *testing.T) {
	d := Deduction{Component: refA, Name: "A", Quantity: 6, PreviousStock: 1, NewStock: 0}
	e := NewLedgerEntry(testAccount, 9, d)

	assert.Equal(t, StatusExecuted, e.Status)
	assert.Equal(t, d, e.Deduction())
	assert.Equal(t, 1, e.Deduction().Applied())
}
