package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes sales from purchases and costs.
type TransactionType string

const (
	// Income is a sale: stock leaves the shop.
	Income TransactionType = "Income"
	// Expense is a purchase or cost. Stock enters only for the Inventory category.
	Expense TransactionType = "Expense"
)

// Category classifies what a transaction was about.
type Category string

const (
	CategoryInventory Category = "Inventory"
	CategoryRent      Category = "Rent"
	CategoryTransport Category = "Transport"
	CategoryFood      Category = "Food"
	CategorySales     Category = "Sales"
	CategoryCredit    Category = "Credit"
	CategoryOther     Category = "Other"
)

// PaymentMethod records how money changed hands.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "Cash"
	PaymentMpesa  PaymentMethod = "M-Pesa"
	PaymentBank   PaymentMethod = "Bank"
	PaymentCredit PaymentMethod = "Credit"
)

// Source records which channel produced a transaction.
type Source string

const (
	SourceSMS      Source = "SMS"
	SourceVoice    Source = "Voice"
	SourceMpesa    Source = "M-Pesa"
	SourceManual   Source = "Manual"
	SourceReceipt  Source = "Receipt Scan"
	SourceWhatsApp Source = "WhatsApp"
)

// TradeUnit is the unit of measure label carried for display and export.
type TradeUnit string

const (
	UnitPiece  TradeUnit = "piece"
	UnitKg     TradeUnit = "kg"
	UnitBag    TradeUnit = "bag"
	UnitCrate  TradeUnit = "crate"
	UnitTray   TradeUnit = "tray"
	UnitLitre  TradeUnit = "litre"
	UnitBundle TradeUnit = "bundle"
)

// Transaction is an immutable ledger record. Edits replace the whole record.
type Transaction struct {
	ID              string          `json:"id"`
	Timestamp       int64           `json:"timestamp"` // milliseconds since epoch
	Type            TransactionType `json:"type"`
	Category        Category        `json:"category"`
	Item            string          `json:"item"`
	BaseItem        string          `json:"baseItem"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            TradeUnit       `json:"unit,omitempty"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	CostPrice       decimal.Decimal `json:"costPrice"`
	SellingPrice    decimal.Decimal `json:"sellingPrice"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod,omitempty"`
	Source          Source          `json:"source,omitempty"`
	OriginalMessage string          `json:"originalMessage,omitempty"`
	Tags            []string        `json:"tags,omitempty"`

	// RunningBalance is derived by the balance projection and never authoritative.
	RunningBalance decimal.Decimal `json:"runningBalance"`
}

// Time converts the millisecond timestamp to a time.Time.
func (t Transaction) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// IsSale reports whether the record moves stock out.
func (t Transaction) IsSale() bool {
	return t.Type == Income
}

// IsStockPurchase reports whether the record moves stock in.
func (t Transaction) IsStockPurchase() bool {
	return t.Type == Expense && t.Category == CategoryInventory
}

// Clone returns a copy that shares no slices with the receiver.
func (t Transaction) Clone() Transaction {
	if t.Tags != nil {
		t.Tags = append([]string(nil), t.Tags...)
	}
	return t
}

// TransactionDraft is a proposed transaction as produced by a parser, a form or a chat command.
// Pointer fields distinguish "absent" from zero so defaults and validation can tell them apart.
type TransactionDraft struct {
	Item            string           `json:"item" validate:"required"`
	BaseItem        string           `json:"baseItem,omitempty"`
	Type            TransactionType  `json:"type" validate:"required,oneof=Income Expense"`
	Category        Category         `json:"category" validate:"required,oneof=Inventory Rent Transport Food Sales Credit Other"`
	Quantity        *decimal.Decimal `json:"quantity,omitempty"`
	Unit            TradeUnit        `json:"unit,omitempty"`
	UnitPrice       *decimal.Decimal `json:"unitPrice,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	SellingPrice    *decimal.Decimal `json:"sellingPrice,omitempty"`
	Currency        string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	Timestamp       int64            `json:"timestamp,omitempty" validate:"gte=0"`
	PaymentMethod   PaymentMethod    `json:"paymentMethod,omitempty"`
	Source          Source           `json:"source,omitempty"`
	OriginalMessage string           `json:"originalMessage,omitempty"`
	Tags            []string         `json:"tags,omitempty"`

	// IsDuplicate is set by parsers that recognised the entry in the recent history.
	IsDuplicate bool `json:"isDuplicate,omitempty"`
}
