package commands

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/marketminder/internal/config"
	"github.com/mamadbah2/marketminder/internal/domain/models"
	"github.com/mamadbah2/marketminder/internal/ledger"
	"github.com/mamadbah2/marketminder/internal/service/bookkeeping"
	"github.com/mamadbah2/marketminder/internal/service/reporting"
)

type fixture struct {
	svc    *Service
	books  *bookkeeping.Service
	now    time.Time
	nextID int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)}

	books, err := bookkeeping.NewService(context.Background(), nil, ledger.Options{
		Now: func() time.Time { return f.now },
		NewID: func() string {
			f.nextID++
			return fmt.Sprintf("tx-%05d-abcdef", f.nextID)
		},
	}, nil)
	require.NoError(t, err)

	reports := reporting.NewService(books, nil, nil, reporting.Options{
		Shop:     config.ShopConfig{Name: "Mama Njeri"},
		Currency: "KES",
		Now:      func() time.Time { return f.now },
	}, nil)

	f.books = books
	f.svc = NewService(books, reports, "KES", nil)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) run(t *testing.T, message string) string {
	t.Helper()
	reply, err := f.svc.HandleCommand(context.Background(), models.ParseCommand(message), "254700000001")
	require.NoError(t, err)
	f.now = f.now.Add(time.Second)
	return reply
}

func TestHandleCommand_BuyThenSell(t *testing.T) {
	f := newFixture(t)

	reply := f.run(t, "/buy 10 rice 80")
	assert.Contains(t, reply, "Recorded: Bought rice x10 @ 80 = KES 800.00")

	reply = f.run(t, "/sell 2 Rice 95")
	assert.Contains(t, reply, "Recorded: Sold Rice x2 @ 95 = KES 190.00")

	levels := f.books.GetInventoryLevels()
	assert.True(t, levels["RICE"].Equal(decimal.NewFromInt(8)))

	txs := f.books.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, models.SourceWhatsApp, txs[0].Source)
	assert.Equal(t, "/sell 2 Rice 95", txs[0].OriginalMessage)
}

func TestHandleCommand_MultiWordItem(t *testing.T) {
	f := newFixture(t)

	f.run(t, "/buy 5 cooking oil 1L @300")
	levels := f.books.GetInventoryLevels()
	assert.Contains(t, levels, "COOKING OIL 1L")
}

func TestHandleCommand_RejectionsAreReplies(t *testing.T) {
	f := newFixture(t)

	reply := f.run(t, "/sell 1 sugar 150")
	assert.Contains(t, reply, "Not recorded: Not enough stock of SUGAR")

	f.run(t, "/buy 10 sugar 120")
	reply = f.run(t, "/sell 1 sugar 100")
	assert.Contains(t, reply, "Not recorded: Selling SUGAR at 100 is below the last buying price of 120.")
	assert.Contains(t, reply, "\nSell at 120 or more.")
}

func TestHandleCommand_Expense(t *testing.T) {
	f := newFixture(t)

	reply := f.run(t, "/expense transport 200 boda to market")
	assert.Contains(t, reply, "Recorded: Transport boda to market")

	txs := f.books.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, models.CategoryTransport, txs[0].Category)
	assert.Equal(t, "TRANSPORT", txs[0].BaseItem)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(200)))

	f.run(t, "/lipa rent 5000")
	txs = f.books.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "Rent", txs[0].Item)
}

func TestHandleCommand_InvalidArguments(t *testing.T) {
	f := newFixture(t)

	tests := []string{
		"/sell 2 rice",
		"/sell two rice 90",
		"/buy 2 rice cheap",
		"/expense fuel 200",
		"/expense rent",
		"/delete",
	}
	for _, message := range tests {
		t.Run(message, func(t *testing.T) {
			_, err := f.svc.HandleCommand(context.Background(), models.ParseCommand(message), "")
			assert.ErrorIs(t, err, ErrInvalidArguments)
		})
	}
}

func TestHandleCommand_Unsupported(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.HandleCommand(context.Background(), models.ParseCommand("/dance"), "")
	assert.ErrorIs(t, err, ErrUnsupportedCommand)
}

func TestHandleCommand_Stock(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "No stock recorded yet.", f.run(t, "/stock"))

	f.run(t, "/buy 10 rice 80")
	f.run(t, "/buy 4 beans 120")

	assert.Equal(t, "Stock:\n- BEANS: 4\n- RICE: 10", f.run(t, "/stock"))
	assert.Equal(t, "RICE: 10 in stock", f.run(t, "/stock rice"))
	assert.Contains(t, f.run(t, "/stock maize"), "MAIZE is not tracked yet")
}

func TestHandleCommand_Balance(t *testing.T) {
	f := newFixture(t)
	f.run(t, "/buy 10 rice 80")
	f.run(t, "/sell 2 rice 100")

	reply := f.run(t, "/balance")
	assert.Contains(t, reply, "Mama Njeri - Balance")
	assert.Contains(t, reply, "Sales: KES 200.00")
	assert.Contains(t, reply, "Expenses: KES 800.00")
	assert.Contains(t, reply, "Balance: KES -600.00")
	assert.Contains(t, reply, "Gross profit: KES 40.00")
}

func TestHandleCommand_DeleteAndUndo(t *testing.T) {
	f := newFixture(t)
	f.run(t, "/buy 10 rice 80")
	f.run(t, "/buy 4 beans 120")

	reply := f.run(t, "/delete last")
	assert.Contains(t, reply, "Deleted Bought beans")
	require.Len(t, f.books.Transactions(), 1)

	assert.Equal(t, "Restored the last deleted record.", f.run(t, "/undo"))
	require.Len(t, f.books.Transactions(), 2)
	assert.Contains(t, f.run(t, "/undo"), "Nothing to undo")

	// Short ids shown in replies are accepted.
	reply = f.run(t, "/delete tx-00001")
	assert.Contains(t, reply, "Deleted Bought rice")
	assert.Len(t, f.books.Transactions(), 1)

	assert.Equal(t, `No record matches "nope".`, f.run(t, "/delete nope"))
}

func TestHandleCommand_UndoExpires(t *testing.T) {
	f := newFixture(t)
	f.run(t, "/buy 10 rice 80")
	f.run(t, "/delete last")

	f.now = f.now.Add(10 * time.Second)
	assert.Contains(t, f.run(t, "/undo"), "Nothing to undo")
	assert.Empty(t, f.books.Transactions())
}

func TestHandleCommand_ReportAndHelp(t *testing.T) {
	f := newFixture(t)
	f.run(t, "/buy 10 rice 80")

	report := f.run(t, "/report")
	assert.Contains(t, report, "Weekly report 2026-02-27 to 2026-03-06")
	assert.Contains(t, report, "Records: 1")

	help := f.run(t, "/help")
	assert.Contains(t, help, Usage(models.CommandSell))
	assert.Contains(t, help, Usage(models.CommandUndo))
}

func TestRecordDrafts(t *testing.T) {
	f := newFixture(t)
	f.run(t, "/buy 10 rice 80")

	qty := decimal.NewFromInt(2)
	price := decimal.NewFromInt(95)
	lowPrice := decimal.NewFromInt(50)
	drafts := []models.TransactionDraft{
		{Item: "rice", Type: models.Income, Category: models.CategorySales, Quantity: &qty, UnitPrice: &price},
		{Item: "rice", Type: models.Expense, Category: models.CategoryInventory, Quantity: &qty, UnitPrice: &price, IsDuplicate: true},
		{Item: "rice", Type: models.Income, Category: models.CategorySales, Quantity: &qty, UnitPrice: &lowPrice},
	}

	reply := f.svc.RecordDrafts(context.Background(), drafts)
	assert.Contains(t, reply, "Recorded:\n- Sold rice x2 @ 95 = KES 190.00")
	assert.Contains(t, reply, "Skipped duplicates:\n- rice")
	assert.Contains(t, reply, "Errors:\n- rice: Selling RICE at 50 is below the last buying price of 80. Sell at 80 or more.")
	assert.Len(t, f.books.Transactions(), 2)
}

func TestRecordDrafts_Empty(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "No transactions found in your message.", f.svc.RecordDrafts(context.Background(), nil))
}
