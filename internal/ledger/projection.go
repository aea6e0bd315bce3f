package ledger

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/marketminder/internal/domain/models"
)

// chronological returns a copy of txs sorted by timestamp, ties broken by id so the
// result does not depend on storage order.
func chronological(txs []models.Transaction) []models.Transaction {
	sorted := make([]models.Transaction, len(txs))
	for i, tx := range txs {
		sorted[i] = tx.Clone()
	}
	slices.SortStableFunc(sorted, func(a, b models.Transaction) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return sorted
}

// ProjectInventory replays txs in time order and returns the net stock per item key.
// Levels may go negative when records bypassed the guardrails; nothing is clamped.
func ProjectInventory(txs []models.Transaction) map[string]decimal.Decimal {
	levels := make(map[string]decimal.Decimal)
	for _, tx := range chronological(txs) {
		key := NormalizeKey(tx.BaseItem)
		if key == "" {
			continue
		}
		level, seen := levels[key]
		switch {
		case tx.IsStockPurchase():
			levels[key] = level.Add(quantityOf(tx))
		case tx.Type == models.Income:
			levels[key] = level.Sub(quantityOf(tx))
		case tx.Type == models.Expense && !seen:
			levels[key] = decimal.Zero
		}
	}
	return levels
}

// ProjectCostBasis replays txs in time order and returns the last purchase unit price
// per item key (last cost wins, no averaging). Items never bought through the ledger
// have no entry.
func ProjectCostBasis(txs []models.Transaction) map[string]decimal.Decimal {
	basis := make(map[string]decimal.Decimal)
	for _, tx := range chronological(txs) {
		if !tx.IsStockPurchase() || !tx.UnitPrice.IsPositive() {
			continue
		}
		key := NormalizeKey(tx.BaseItem)
		if key == "" {
			continue
		}
		basis[key] = tx.UnitPrice
	}
	return basis
}

// ProjectRunningBalance annotates copies of txs with the cumulative cash balance in
// time order and returns them newest first.
func ProjectRunningBalance(txs []models.Transaction) []models.Transaction {
	annotated := chronological(txs)
	balance := decimal.Zero
	for i := range annotated {
		switch annotated[i].Type {
		case models.Income:
			balance = balance.Add(annotated[i].Amount)
		case models.Expense:
			balance = balance.Sub(annotated[i].Amount)
		}
		annotated[i].RunningBalance = balance
	}
	slices.Reverse(annotated)
	return annotated
}
