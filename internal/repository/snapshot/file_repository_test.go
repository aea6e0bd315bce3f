package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/marketminder/internal/domain/models"
	"github.com/mamadbah2/marketminder/internal/repository/snapshot"
)

func TestFileRepository_LoadMissingFileIsEmpty(t *testing.T) {
	repo := snapshot.NewFileRepository(filepath.Join(t.TempDir(), "ledger.json"), nil)

	txs, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestFileRepository_SaveThenLoadKeepsOrderAndPrecision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "ledger.json")
	repo := snapshot.NewFileRepository(path, nil)

	in := []models.Transaction{
		{
			ID: "b", Timestamp: 1_700_000_060_000, Type: models.Income, Category: models.CategorySales,
			Item: "Rice", BaseItem: "RICE", Quantity: decimal.RequireFromString("2.5"),
			UnitPrice: decimal.RequireFromString("90.10"), Amount: decimal.RequireFromString("225.25"),
			CostPrice: decimal.RequireFromString("80"), Currency: "KES", Tags: []string{"market"},
		},
		{
			ID: "a", Timestamp: 1_700_000_000_000, Type: models.Expense, Category: models.CategoryInventory,
			Item: "Rice", BaseItem: "RICE", Quantity: decimal.RequireFromString("50"),
			UnitPrice: decimal.RequireFromString("80"), Amount: decimal.RequireFromString("4000"), Currency: "KES",
		},
	}
	require.NoError(t, repo.Save(context.Background(), in))

	out, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "a", out[1].ID)
	assert.True(t, out[0].UnitPrice.Equal(in[0].UnitPrice))
	assert.True(t, out[0].Amount.Equal(in[0].Amount))
	assert.Equal(t, []string{"market"}, out[0].Tags)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version": 1`)
	assert.Contains(t, string(raw), `"unitPrice": "90.1"`)
}

func TestFileRepository_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":2,"transactions":[]}`), 0o644))

	_, err := snapshot.NewFileRepository(path, nil).Load(context.Background())
	assert.ErrorIs(t, err, snapshot.ErrUnsupportedVersion)
}

func TestFileRepository_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := snapshot.NewFileRepository(filepath.Join(t.TempDir(), "ledger.json"), nil)
	assert.ErrorIs(t, repo.Save(ctx, nil), context.Canceled)
}
