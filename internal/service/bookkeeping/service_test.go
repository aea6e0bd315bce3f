package bookkeeping_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/marketminder/internal/domain/models"
	"github.com/mamadbah2/marketminder/internal/ledger"
	"github.com/mamadbah2/marketminder/internal/service/bookkeeping"
)

type mockSnapshot struct {
	mock.Mock
}

func (m *mockSnapshot) Load(ctx context.Context) ([]models.Transaction, error) {
	args := m.Called(ctx)
	txs, _ := args.Get(0).([]models.Transaction)
	return txs, args.Error(1)
}

func (m *mockSnapshot) Save(ctx context.Context, txs []models.Transaction) error {
	args := m.Called(ctx, txs)
	return args.Error(0)
}

func decPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func draft(typ models.TransactionType, item, qty, price string) models.TransactionDraft {
	category := models.CategoryInventory
	if typ == models.Income {
		category = models.CategorySales
	}
	return models.TransactionDraft{Item: item, Type: typ, Category: category, Quantity: decPtr(qty), UnitPrice: decPtr(price)}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newService(t *testing.T, repo *mockSnapshot) (*bookkeeping.Service, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	seq := 0
	opts := ledger.Options{
		Now: c.Now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
	}
	var svc *bookkeeping.Service
	var err error
	if repo == nil {
		svc, err = bookkeeping.NewService(context.Background(), nil, opts, nil)
	} else {
		svc, err = bookkeeping.NewService(context.Background(), repo, opts, nil)
	}
	require.NoError(t, err)
	return svc, c
}

func TestNewService_LoadsSnapshot(t *testing.T) {
	repo := new(mockSnapshot)
	repo.On("Load", mock.Anything).Return([]models.Transaction{{
		ID: "old", Timestamp: 1, Type: models.Expense, Category: models.CategoryInventory,
		Item: "Sugar", BaseItem: "SUGAR", Quantity: decimal.NewFromInt(12), UnitPrice: decimal.NewFromInt(110),
		Amount: decimal.NewFromInt(1320), Currency: "KES",
	}}, nil)

	svc, _ := newService(t, repo)

	assert.True(t, decimal.NewFromInt(12).Equal(svc.GetInventoryLevels()["SUGAR"]))
	assert.True(t, decimal.NewFromInt(110).Equal(svc.GetCostBasis()["SUGAR"]))
	repo.AssertExpectations(t)
}

func TestNewService_SnapshotErrorIsFatal(t *testing.T) {
	repo := new(mockSnapshot)
	repo.On("Load", mock.Anything).Return(nil, errors.New("disk gone"))

	_, err := bookkeeping.NewService(context.Background(), repo, ledger.Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestAddTransaction_PersistsOnSuccessOnly(t *testing.T) {
	repo := new(mockSnapshot)
	repo.On("Load", mock.Anything).Return(nil, nil)
	repo.On("Save", mock.Anything, mock.MatchedBy(func(txs []models.Transaction) bool { return len(txs) == 1 })).Return(nil).Once()

	svc, _ := newService(t, repo)
	ctx := context.Background()

	res := svc.AddTransaction(ctx, draft(models.Expense, "Rice", "50", "80"))
	require.True(t, res.Success, res.Error)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, "id-1", res.Transaction.ID)

	res = svc.AddTransaction(ctx, draft(models.Income, "Rice", "10", "70"))
	assert.False(t, res.Success)
	assert.Equal(t, ledger.ReasonSellingAtLoss, res.Reason)
	assert.Equal(t, "Sell at 80 or more.", res.Suggestion)
	assert.Nil(t, res.Transaction)

	repo.AssertExpectations(t)
}

func TestAddTransaction_SaveFailureKeepsRecord(t *testing.T) {
	repo := new(mockSnapshot)
	repo.On("Load", mock.Anything).Return(nil, nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(errors.New("read-only filesystem"))

	svc, _ := newService(t, repo)
	res := svc.AddTransaction(context.Background(), draft(models.Expense, "Oil", "3", "250"))

	assert.True(t, res.Success)
	assert.Len(t, svc.Transactions(), 1)
}

func TestAddTransaction_InsufficientStockCarriesAlternatives(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	require.True(t, svc.AddTransaction(ctx, draft(models.Expense, "Beans", "4", "90")).Success)

	res := svc.AddTransaction(ctx, draft(models.Income, "Rice", "1", "100"))
	assert.False(t, res.Success)
	assert.Equal(t, ledger.ReasonInsufficientStock, res.Reason)
	assert.Equal(t, []string{"BEANS"}, res.Alternatives)
	assert.Contains(t, res.Error, "Not enough stock of RICE")
}

func TestUpdateTransaction_UnknownID(t *testing.T) {
	svc, _ := newService(t, nil)

	res := svc.UpdateTransaction(context.Background(), models.Transaction{ID: "ghost", Item: "Rice"})
	assert.False(t, res.Success)
	assert.Equal(t, ledger.ReasonNotFound, res.Reason)
}

func TestDeleteAndUndo_PersistOnlyRealChanges(t *testing.T) {
	repo := new(mockSnapshot)
	repo.On("Load", mock.Anything).Return(nil, nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)

	svc, c := newService(t, repo)
	ctx := context.Background()
	res := svc.AddTransaction(ctx, draft(models.Expense, "Rice", "5", "80"))
	require.True(t, res.Success)

	svc.DeleteTransaction(ctx, "missing")
	repo.AssertNumberOfCalls(t, "Save", 1)

	svc.DeleteTransaction(ctx, res.Transaction.ID)
	assert.Empty(t, svc.Transactions())
	assert.True(t, svc.CanUndo())

	c.Advance(2 * time.Second)
	assert.True(t, svc.UndoDelete(ctx))
	assert.Len(t, svc.Transactions(), 1)
	assert.False(t, svc.UndoDelete(ctx))
	repo.AssertNumberOfCalls(t, "Save", 3)
}

func TestUndoDelete_AfterDeadline(t *testing.T) {
	svc, c := newService(t, nil)
	ctx := context.Background()
	res := svc.AddTransaction(ctx, draft(models.Expense, "Rice", "5", "80"))
	require.True(t, res.Success)

	svc.DeleteTransaction(ctx, res.Transaction.ID)
	c.Advance(6 * time.Second)

	assert.False(t, svc.CanUndo())
	assert.False(t, svc.UndoDelete(ctx))
	assert.Empty(t, svc.Transactions())
}

func TestService_ConcurrentSalesNeverOversell(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	require.True(t, svc.AddTransaction(ctx, draft(models.Expense, "Eggs", "10", "12")).Success)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := draft(models.Income, "Eggs", "1", fmt.Sprintf("%d", 15+i))
			if svc.AddTransaction(ctx, d).Success {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	assert.True(t, svc.GetInventoryLevels()["EGGS"].IsZero())
}

func TestRecent_LimitsInDisplayOrder(t *testing.T) {
	svc, c := newService(t, nil)
	ctx := context.Background()
	for _, item := range []string{"Rice", "Beans", "Sugar"} {
		require.True(t, svc.AddTransaction(ctx, draft(models.Expense, item, "1", "10")).Success)
		c.Advance(time.Minute)
	}

	recent := svc.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "Sugar", recent[0].Item)
	assert.Equal(t, "Beans", recent[1].Item)
}
