package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockLevel is one inventory line used by dashboards and reports.
type StockLevel struct {
	Item     string          `json:"item"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Summary aggregates the ledger for the dashboard and periodic reports.
type Summary struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	Transactions  int             `json:"transactions"`
	TotalIncome   decimal.Decimal `json:"totalIncome"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	Balance       decimal.Decimal `json:"balance"`
	CostOfGoods   decimal.Decimal `json:"costOfGoods"`
	GrossProfit   decimal.Decimal `json:"grossProfit"`
	ItemsTracked  int             `json:"itemsTracked"`
	CreditScore   int             `json:"creditScore"`
	LowStock      []StockLevel    `json:"lowStock"`
	Recent        []Transaction   `json:"recent"`
}

// CashFlowPoint is the net cash movement of one calendar day.
type CashFlowPoint struct {
	Date string          `json:"date"`
	Net  decimal.Decimal `json:"net"`
}

// PeriodReport is the archived form of a generated report.
type PeriodReport struct {
	Kind      string    `json:"kind"`
	ShopName  string    `json:"shopName"`
	Summary   Summary   `json:"summary"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
