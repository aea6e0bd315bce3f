package reporting_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/marketminder/internal/config"
	"github.com/mamadbah2/marketminder/internal/domain/models"
	"github.com/mamadbah2/marketminder/internal/service/reporting"
)

var nairobi = time.FixedZone("EAT", 3*60*60)

// now is Friday 2026-03-06 20:00 EAT.
var now = time.Date(2026, 3, 6, 20, 0, 0, 0, nairobi)

type fakeLedger struct {
	txs    []models.Transaction
	levels map[string]decimal.Decimal
}

func (f fakeLedger) Transactions() []models.Transaction { return f.txs }

func (f fakeLedger) GetInventoryLevels() map[string]decimal.Decimal { return f.levels }

type mockSheets struct {
	mock.Mock
}

func (m *mockSheets) ClearRange(ctx context.Context, sheetRange string) error {
	return m.Called(ctx, sheetRange).Error(0)
}

func (m *mockSheets) WriteRows(ctx context.Context, sheetRange string, rows [][]interface{}) error {
	return m.Called(ctx, sheetRange, rows).Error(0)
}

type insightFunc func(ctx context.Context, summary models.Summary, txs []models.Transaction) (string, error)

func (f insightFunc) GenerateInsights(ctx context.Context, summary models.Summary, txs []models.Transaction) (string, error) {
	return f(ctx, summary, txs)
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func at(day, hour int) int64 {
	return time.Date(2026, 3, day, hour, 0, 0, 0, nairobi).UnixMilli()
}

// sampleLedger is in display order, newest first.
func sampleLedger() fakeLedger {
	return fakeLedger{
		txs: []models.Transaction{
			{ID: "t5", Timestamp: at(6, 18), Type: models.Expense, Category: models.CategoryRent, Item: "Stall rent", BaseItem: "STALL RENT", Quantity: d("1"), UnitPrice: d("1500"), Amount: d("1500"), Currency: "KES", Source: models.SourceManual},
			{ID: "t4", Timestamp: at(6, 10), Type: models.Income, Category: models.CategorySales, Item: "Rice", BaseItem: "RICE", Quantity: d("10"), UnitPrice: d("95"), CostPrice: d("80"), Amount: d("950"), Currency: "KES", Source: models.SourceWhatsApp, OriginalMessage: "sold 10 rice at 95"},
			{ID: "t3", Timestamp: at(5, 9), Type: models.Income, Category: models.CategorySales, Item: "Tomatoes", BaseItem: "TOMATOES", Quantity: d("3"), UnitPrice: d("50"), Amount: d("150"), Currency: "KES", Source: models.SourceVoice, OriginalMessage: "nimeuza nyanya tatu"},
			{ID: "t2", Timestamp: at(4, 8), Type: models.Expense, Category: models.CategoryInventory, Item: "Rice", BaseItem: "RICE", Quantity: d("12"), UnitPrice: d("80"), Amount: d("960"), Currency: "KES", Source: models.SourceReceipt},
			{ID: "t1", Timestamp: time.Date(2026, 2, 20, 8, 0, 0, 0, nairobi).UnixMilli(), Type: models.Expense, Category: models.CategoryInventory, Item: "Sugar, white", BaseItem: "SUGAR, WHITE", Quantity: d("4"), UnitPrice: d("120"), Amount: d("480"), Currency: "UGX"},
		},
		levels: map[string]decimal.Decimal{
			"RICE":         d("2"),
			"TOMATOES":     d("-3"),
			"SUGAR, WHITE": d("4"),
			"STALL RENT":   d("0"),
			"BEANS":        d("40"),
		},
	}
}

func newService(ledger fakeLedger, sheets *mockSheets, insights reporting.InsightGenerator) *reporting.Service {
	opts := reporting.Options{
		Shop:              config.ShopConfig{Name: "Mama Mboga", Location: "Gikomba", PreferredLanguage: "Swahili"},
		Currency:          "KES",
		LowStockThreshold: d("5"),
		Location:          nairobi,
		Now:               func() time.Time { return now },
	}
	if sheets == nil {
		return reporting.NewService(ledger, nil, insights, opts, nil)
	}
	return reporting.NewService(ledger, sheets, insights, opts, nil)
}

func TestSummary_AllTime(t *testing.T) {
	svc := newService(sampleLedger(), nil, nil)

	s := svc.Summary(time.Time{}, time.Time{})

	assert.Equal(t, 5, s.Transactions)
	assert.True(t, d("1100").Equal(s.TotalIncome), s.TotalIncome.String())
	assert.True(t, d("2940").Equal(s.TotalExpenses), s.TotalExpenses.String())
	assert.True(t, d("-1840").Equal(s.Balance), s.Balance.String())
	assert.True(t, d("800").Equal(s.CostOfGoods), "only sales with a known cost count")
	assert.True(t, d("150").Equal(s.GrossProfit))
	assert.Equal(t, 5, s.ItemsTracked)
	assert.Len(t, s.Recent, 5)
	assert.Equal(t, "t5", s.Recent[0].ID)

	require.Len(t, s.LowStock, 4)
	assert.Equal(t, []string{"TOMATOES", "STALL RENT", "RICE", "SUGAR, WHITE"},
		[]string{s.LowStock[0].Item, s.LowStock[1].Item, s.LowStock[2].Item, s.LowStock[3].Item})
}

func TestSummary_Range(t *testing.T) {
	svc := newService(sampleLedger(), nil, nil)

	from := time.Date(2026, 3, 5, 0, 0, 0, 0, nairobi)
	to := time.Date(2026, 3, 6, 18, 0, 0, 0, nairobi)
	s := svc.Summary(from, to)

	assert.Equal(t, 2, s.Transactions, "to is exclusive")
	assert.True(t, d("1100").Equal(s.TotalIncome))
	assert.True(t, s.TotalExpenses.IsZero())
	assert.Equal(t, 500, s.CreditScore, "the score counts the whole ledger")
}

func TestCreditScore(t *testing.T) {
	assert.Equal(t, 450, reporting.CreditScore(0))
	assert.Equal(t, 700, reporting.CreditScore(25))
	assert.Equal(t, 850, reporting.CreditScore(40))
	assert.Equal(t, 850, reporting.CreditScore(1000))
}

func TestDailyCashFlow(t *testing.T) {
	svc := newService(sampleLedger(), nil, nil)

	points := svc.DailyCashFlow(3)

	require.Len(t, points, 3)
	assert.Equal(t, "2026-03-04", points[0].Date)
	assert.True(t, d("-960").Equal(points[0].Net))
	assert.Equal(t, "2026-03-05", points[1].Date)
	assert.True(t, d("150").Equal(points[1].Net))
	assert.Equal(t, "2026-03-06", points[2].Date)
	assert.True(t, d("-550").Equal(points[2].Net))

	assert.Nil(t, svc.DailyCashFlow(0))
	assert.Len(t, svc.DailyCashFlow(14), 14)
}

func TestGenerateWeeklyReport_WithInsight(t *testing.T) {
	var seen models.Summary
	insights := insightFunc(func(_ context.Context, s models.Summary, _ []models.Transaction) (string, error) {
		seen = s
		return "Restock rice before Monday.", nil
	})
	svc := newService(sampleLedger(), nil, insights)

	report, err := svc.GenerateWeeklyReport(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, reporting.ReportWeekly, report.Kind)
	assert.Equal(t, "Mama Mboga", report.ShopName)
	assert.Equal(t, 4, report.Summary.Transactions, "the February purchase is outside the week")
	assert.Equal(t, 4, seen.Transactions)
	assert.Contains(t, report.Message, "Weekly report 2026-02-27 to 2026-03-06")
	assert.Contains(t, report.Message, "Sales: KES 1,100.00")
	assert.Contains(t, report.Message, "Balance: KES -1,360.00")
	assert.Contains(t, report.Message, "Gross profit: KES 150.00")
	assert.Contains(t, report.Message, "Credit score: 500")
	assert.Contains(t, report.Message, "Low stock: TOMATOES (-3)")
	assert.Contains(t, report.Message, "Tip: Restock rice before Monday.")
}

func TestGenerateWeeklyReport_InsightFailureIsNotFatal(t *testing.T) {
	insights := insightFunc(func(context.Context, models.Summary, []models.Transaction) (string, error) {
		return "", errors.New("quota exceeded")
	})
	svc := newService(sampleLedger(), nil, insights)

	report, err := svc.GenerateWeeklyReport(context.Background(), now)
	require.NoError(t, err)
	assert.NotContains(t, report.Message, "Tip:")
}

func TestGenerateWeeklyReport_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newService(sampleLedger(), nil, nil).GenerateWeeklyReport(ctx, now)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatMoney(t *testing.T) {
	tests := map[string]string{
		"0":           "KES 0.00",
		"999.5":       "KES 999.50",
		"1000":        "KES 1,000.00",
		"1234567.891": "KES 1,234,567.89",
		"-25000":      "KES -25,000.00",
		"-0.001":      "KES 0.00",
	}
	for in, want := range tests {
		assert.Equal(t, want, reporting.FormatMoney("KES", d(in)), in)
	}

	assert.Equal(t, "UGX 1,250,000", reporting.FormatMoney("UGX", d("1250000.4")))
	assert.Equal(t, "XYZ 12.30", reporting.FormatMoney("XYZ", d("12.3")))
}

func TestExportCSV(t *testing.T) {
	svc := newService(sampleLedger(), nil, nil)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(&buf, sampleLedger().txs))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, []string{"ID", "Date", "Time", "Item", "Type", "Category", "Quantity", "Unit Price", "Total Amount", "Currency", "Source", "Original Message"}, records[0])
	assert.Equal(t, []string{"t4", "2026-03-06", "10:00", "Rice", "Income", "Sales", "10", "95.00", "950.00", "KES", "WhatsApp", "sold 10 rice at 95"}, records[2])
	assert.Equal(t, "Sugar, white", records[5][3], "commas survive quoting")
}

func TestExportBackup(t *testing.T) {
	svc := newService(sampleLedger(), nil, nil)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportBackup(&buf))

	var backup reporting.Backup
	require.NoError(t, json.Unmarshal(buf.Bytes(), &backup))
	assert.Equal(t, "Mama Mboga", backup.Settings.Name)
	assert.Equal(t, "KES", backup.Settings.Currency)
	assert.Len(t, backup.Transactions, 5)
	assert.Contains(t, buf.String(), `"shopName": "Mama Mboga"`)
}

func TestExportToSheets(t *testing.T) {
	sheets := new(mockSheets)
	sheets.On("ClearRange", mock.Anything, "Ledger!A:L").Return(nil)
	sheets.On("WriteRows", mock.Anything, "Ledger!A1", mock.MatchedBy(func(rows [][]interface{}) bool {
		return len(rows) == 6 && rows[0][0] == "ID" && rows[1][0] == "t5"
	})).Return(nil)

	n, err := newService(sampleLedger(), sheets, nil).ExportToSheets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	sheets.AssertExpectations(t)
}

func TestExportToSheets_Errors(t *testing.T) {
	_, err := newService(sampleLedger(), nil, nil).ExportToSheets(context.Background())
	assert.ErrorIs(t, err, reporting.ErrSheetsDisabled)

	sheets := new(mockSheets)
	sheets.On("ClearRange", mock.Anything, mock.Anything).Return(errors.New("403 forbidden"))
	_, err = newService(sampleLedger(), sheets, nil).ExportToSheets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear ledger tab")
	sheets.AssertNotCalled(t, "WriteRows", mock.Anything, mock.Anything, mock.Anything)
}

func TestFilter(t *testing.T) {
	txs := sampleLedger().txs

	ids := func(in []models.Transaction) []string {
		out := make([]string, len(in))
		for i, tx := range in {
			out[i] = tx.ID
		}
		return out
	}

	assert.Equal(t, []string{"t5", "t4", "t3", "t2", "t1"}, ids(reporting.Filter{}.Apply(txs)))
	assert.Equal(t, []string{"t4", "t3"}, ids(reporting.Filter{Type: "income"}.Apply(txs)))
	assert.Equal(t, []string{"t1"}, ids(reporting.Filter{Currency: "ugx"}.Apply(txs)))
	assert.Equal(t, []string{"t3"}, ids(reporting.Filter{Query: "NYANYA"}.Apply(txs)), "matches the original message")
	assert.Equal(t, []string{"t4", "t2"}, ids(reporting.Filter{Query: "rice", Currency: "KES"}.Apply(txs)))
}
