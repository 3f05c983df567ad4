package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cyclecount/internal/remote"
)

func TestFakeInventory_SaveUpdatesCatalog(t *testing.T) {
	ctx := context.Background()
	inv := NewFakeInventory(Product("Soda 12pk", 4))

	res, err := inv.Save(ctx, "Soda 12pk", 6)
	require.NoError(t, err)
	require.NotNil(t, res.NewQty)
	assert.True(t, decimal.NewFromInt(6).Equal(*res.NewQty))

	products, err := inv.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.True(t, decimal.NewFromInt(6).Equal(products[0].ExpectedQty))
	assert.Equal(t, []SaveCall{{Title: "Soda 12pk", Cases: 6}}, inv.Saves())
	assert.Equal(t, 1, inv.CatalogCalls())
}

func TestFakeInventory_Override(t *testing.T) {
	inv := NewFakeInventory(Product("Chips", 0))
	inv.OverrideNewQty("Chips", decimal.NewFromInt(5))

	res, err := inv.Save(context.Background(), "Chips", 7)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(res.Confirmed(7)))
}

func TestFakeInventory_Failures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	inv := NewFakeInventory(Product("Chips", 2))

	inv.FailSave(boom)
	_, err := inv.Save(ctx, "Chips", 3)
	assert.ErrorIs(t, err, boom)
	got, _ := inv.Expected("Chips")
	assert.True(t, decimal.NewFromInt(2).Equal(got), "failed save leaves store untouched")

	inv.FailCommit(boom)
	_, err = inv.Commit(ctx, remote.Batch{Items: []remote.BatchItem{{ProductTitle: "Chips", CasesQty: 1}}})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, inv.Commits(), 1)

	inv.FailCatalog(boom)
	_, err = inv.Catalog(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestFakeInventory_CommitCountsKnownTitles(t *testing.T) {
	inv := NewFakeInventory(Product("A", 1), Product("B", 1))
	res, err := inv.Commit(context.Background(), remote.Batch{Items: []remote.BatchItem{
		{ProductTitle: "A", CasesQty: 3},
		{ProductTitle: "Gone", CasesQty: 1},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
}
