package ledger

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/marketminder/internal/domain/models"
)

const (
	// DefaultDuplicateWindow is how far apart two identical records must be to both count.
	DefaultDuplicateWindow = time.Hour
	// maxAlternatives caps the in-stock suggestions attached to a stock rejection.
	maxAlternatives = 3
)

// DefaultAmountTolerance absorbs rounding noise when comparing amounts for duplicates.
var DefaultAmountTolerance = decimal.NewFromFloat(0.1)

// Resolution reports which inventory key a sale was matched to.
type Resolution struct {
	Requested string
	Key       string
	Fallback  bool
	Ambiguous []string
}

// Verdict is the outcome of an accepted evaluation: the record ready to commit and how
// its item was resolved.
type Verdict struct {
	Transaction models.Transaction
	Resolution  Resolution
}

// Guardrails decides whether a proposed record may enter the store.
type Guardrails struct {
	window    time.Duration
	tolerance decimal.Decimal
}

// NewGuardrails builds the engine. Non-positive settings fall back to the defaults.
func NewGuardrails(window time.Duration, tolerance decimal.Decimal) *Guardrails {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	if tolerance.IsNegative() || tolerance.IsZero() {
		tolerance = DefaultAmountTolerance
	}
	return &Guardrails{window: window, tolerance: tolerance}
}

// Evaluate runs the create-path checks in order: duplicate, stock, loss. On success the
// returned record carries its cost and selling price snapshots.
func (g *Guardrails) Evaluate(tx models.Transaction, existing []models.Transaction, inventory, costBasis map[string]decimal.Decimal) (Verdict, error) {
	tx.BaseItem = NormalizeKey(tx.BaseItem)
	res := Resolution{Requested: tx.BaseItem, Key: tx.BaseItem}
	if tx.IsSale() {
		res = resolveItem(tx.BaseItem, inventory)
	}

	if rej := g.checkDuplicate(tx, res.Key, existing); rej != nil {
		return Verdict{}, rej
	}

	if tx.IsSale() {
		tx.BaseItem = res.Key
		if rej := checkStock(tx, inventory); rej != nil {
			return Verdict{}, rej
		}
		if rej := checkLoss(tx, costBasis); rej != nil {
			return Verdict{}, rej
		}
	}

	return Verdict{Transaction: withPriceSnapshots(tx, costBasis), Resolution: res}, nil
}

// EvaluateUpdate runs the update-path check. Editing a record is not compared against
// itself for duplicates or stock, so only loss prevention applies.
func (g *Guardrails) EvaluateUpdate(tx models.Transaction, costBasis map[string]decimal.Decimal) error {
	tx.BaseItem = NormalizeKey(tx.BaseItem)
	if !tx.IsSale() {
		return nil
	}
	if rej := checkLoss(tx, costBasis); rej != nil {
		return rej
	}
	return nil
}

func (g *Guardrails) checkDuplicate(tx models.Transaction, resolvedKey string, existing []models.Transaction) *Rejection {
	window := g.window.Milliseconds()
	for _, other := range existing {
		key := NormalizeKey(other.BaseItem)
		if key != tx.BaseItem && key != resolvedKey {
			continue
		}
		if other.Type != tx.Type || !quantityOf(other).Equal(tx.Quantity) {
			continue
		}
		if other.Amount.Sub(tx.Amount).Abs().GreaterThan(g.tolerance) {
			continue
		}
		delta := other.Timestamp - tx.Timestamp
		if delta < 0 {
			delta = -delta
		}
		if delta > window {
			continue
		}
		return &Rejection{
			Reason: ReasonDuplicate,
			Message: fmt.Sprintf("%s x%s for %s %s was already recorded within the last %s",
				other.Item, tx.Quantity.String(), tx.Amount.StringFixed(2), tx.Currency, formatWindow(g.window)),
			Suggestion: "Change the quantity, price or time if this is a separate trade.",
		}
	}
	return nil
}

func checkStock(tx models.Transaction, inventory map[string]decimal.Decimal) *Rejection {
	available := inventory[tx.BaseItem]
	if !available.LessThan(tx.Quantity) {
		return nil
	}
	alternatives := inStockAlternatives(tx.BaseItem, inventory)
	rej := &Rejection{
		Reason: ReasonInsufficientStock,
		Message: fmt.Sprintf("Not enough stock of %s: %s available, trying to sell %s. Record a purchase first.",
			tx.BaseItem, available.String(), tx.Quantity.String()),
		Available:    available,
		Alternatives: alternatives,
	}
	if len(alternatives) > 0 {
		lines := make([]string, len(alternatives))
		for i, key := range alternatives {
			lines[i] = fmt.Sprintf("%s (%s)", key, inventory[key].String())
		}
		rej.Suggestion = "In stock: " + strings.Join(lines, ", ")
	}
	return rej
}

func checkLoss(tx models.Transaction, costBasis map[string]decimal.Decimal) *Rejection {
	cost, ok := costBasis[tx.BaseItem]
	if !ok || !cost.IsPositive() {
		return nil
	}
	if !tx.UnitPrice.LessThan(cost) {
		return nil
	}
	return &Rejection{
		Reason: ReasonSellingAtLoss,
		Message: fmt.Sprintf("Selling %s at %s is below the last buying price of %s.",
			tx.BaseItem, tx.UnitPrice.String(), cost.String()),
		Suggestion: fmt.Sprintf("Sell at %s or more.", cost.String()),
		CostBasis:  cost,
		UnitPrice:  tx.UnitPrice,
	}
}

func withPriceSnapshots(tx models.Transaction, costBasis map[string]decimal.Decimal) models.Transaction {
	if tx.IsSale() {
		tx.CostPrice = costBasis[tx.BaseItem]
		tx.SellingPrice = tx.UnitPrice
		return tx
	}
	tx.CostPrice = tx.UnitPrice
	return tx
}

// resolveItem matches requested against the inventory keys: exact first, then keys that
// contain or are contained in requested. Several fallback candidates resolve to the
// shortest key, then the lexicographically smallest.
func resolveItem(requested string, inventory map[string]decimal.Decimal) Resolution {
	res := Resolution{Requested: requested, Key: requested}
	if _, ok := inventory[requested]; ok || requested == "" {
		return res
	}

	var candidates []string
	for key := range inventory {
		if strings.Contains(key, requested) || strings.Contains(requested, key) {
			candidates = append(candidates, key)
		}
	}
	if len(candidates) == 0 {
		return res
	}
	slices.SortFunc(candidates, func(a, b string) int {
		if c := cmp.Compare(len(a), len(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	res.Key = candidates[0]
	res.Fallback = true
	if len(candidates) > 1 {
		res.Ambiguous = candidates
	}
	return res
}

func inStockAlternatives(exclude string, inventory map[string]decimal.Decimal) []string {
	type line struct {
		key   string
		level decimal.Decimal
	}
	var lines []line
	for key, level := range inventory {
		if key == exclude || !level.IsPositive() {
			continue
		}
		lines = append(lines, line{key: key, level: level})
	}
	slices.SortFunc(lines, func(a, b line) int {
		if c := b.level.Cmp(a.level); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})

	out := make([]string, 0, maxAlternatives)
	for _, l := range lines {
		if len(out) == maxAlternatives {
			break
		}
		out = append(out, l.key)
	}
	return out
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}
