package reporting

import (
	"strings"

	"github.com/mamadbah2/marketminder/internal/domain/models"
)

// Filter narrows the ledger table. Empty fields match everything.
type Filter struct {
	Query    string `form:"q"`
	Type     string `form:"type"`
	Currency string `form:"currency"`
}

// Apply returns the records matching f, preserving order. Query is a case-insensitive
// substring match on the item and the original message.
func (f Filter) Apply(txs []models.Transaction) []models.Transaction {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.Type != "" && !strings.EqualFold(f.Type, string(tx.Type)) {
			continue
		}
		if f.Currency != "" && !strings.EqualFold(f.Currency, tx.Currency) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(tx.Item), query) &&
			!strings.Contains(strings.ToLower(tx.OriginalMessage), query) {
			continue
		}
		out = append(out, tx)
	}
	return out
}
