// Package ledger derives inventory, cost basis and running balances from an
// append-only transaction log, and guards every mutation of that log.
//
// The package performs no I/O and holds no locks: it assumes a single writer.
// Callers that serve concurrent requests must serialise access themselves.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/marketminder/internal/domain/models"
)

// DefaultUndoTTL is how long a deleted record stays restorable.
const DefaultUndoTTL = 5 * time.Second

// Options tune the ledger. Zero values select the defaults.
type Options struct {
	DefaultCurrency string
	DuplicateWindow time.Duration
	AmountTolerance decimal.Decimal
	UndoTTL         time.Duration

	// Now and NewID are injectable for tests.
	Now   func() time.Time
	NewID func() string
}

type undoSlot struct {
	tx       models.Transaction
	index    int
	deadline time.Time
}

// Ledger is the mutation API over a Store. Every add and update passes the guardrails
// first; the store is only touched on acceptance.
type Ledger struct {
	store    *Store
	guards   *Guardrails
	currency string
	undoTTL  time.Duration
	now      func() time.Time
	newID    func() string
	undo     *undoSlot
	logger   *zap.Logger
}

// New wires a ledger around store.
func New(store *Store, opts Options, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewStore()
	}
	l := &Ledger{
		store:    store,
		guards:   NewGuardrails(opts.DuplicateWindow, opts.AmountTolerance),
		currency: opts.DefaultCurrency,
		undoTTL:  opts.UndoTTL,
		now:      opts.Now,
		newID:    opts.NewID,
		logger:   logger,
	}
	if l.currency == "" {
		l.currency = DefaultCurrency
	}
	if l.undoTTL <= 0 {
		l.undoTTL = DefaultUndoTTL
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	return l
}

// Add validates draft, runs the create-path guardrails and, on acceptance, puts the
// record at the front of the display order. Rejections are returned as *Rejection.
func (l *Ledger) Add(draft models.TransactionDraft) (models.Transaction, error) {
	tx, err := fromDraft(draft, l.currency, l.guards.tolerance, l.now())
	if err != nil {
		l.logRejection("add", draft.Item, err)
		return models.Transaction{}, err
	}

	records := l.store.Records()
	verdict, err := l.guards.Evaluate(tx, records, ProjectInventory(records), ProjectCostBasis(records))
	if err != nil {
		l.logRejection("add", tx.BaseItem, err)
		return models.Transaction{}, err
	}

	if res := verdict.Resolution; res.Fallback {
		l.logger.Info("item resolved by partial match",
			zap.String("requested", res.Requested),
			zap.String("matched", res.Key),
			zap.Strings("candidates", res.Ambiguous))
	}

	committed := verdict.Transaction
	committed.ID = l.newID()
	committed.RunningBalance = decimal.Zero
	l.store.prepend(committed)

	l.logger.Debug("transaction added",
		zap.String("id", committed.ID),
		zap.String("type", string(committed.Type)),
		zap.String("item", committed.BaseItem),
		zap.Stringer("amount", committed.Amount))
	return committed, nil
}

// Update replaces the record with the same id after re-running loss prevention on the
// edited values. Amount is always recomputed from quantity and unit price.
func (l *Ledger) Update(tx models.Transaction) (models.Transaction, error) {
	current, _, ok := l.store.Find(tx.ID)
	if !ok {
		err := &Rejection{Reason: ReasonNotFound, Message: "transaction " + tx.ID + " does not exist"}
		l.logRejection("update", tx.BaseItem, err)
		return models.Transaction{}, err
	}

	tx = tx.Clone()
	tx.BaseItem = NormalizeKey(tx.BaseItem)
	if tx.BaseItem == "" {
		tx.BaseItem = NormalizeKey(tx.Item)
	}
	if tx.Currency == "" {
		tx.Currency = current.Currency
	}
	if err := checkRecord(tx); err != nil {
		l.logRejection("update", tx.BaseItem, err)
		return models.Transaction{}, err
	}
	tx.Amount = tx.Quantity.Mul(tx.UnitPrice)
	tx.RunningBalance = decimal.Zero

	records := l.store.Records()
	costBasis := ProjectCostBasis(records)
	if err := l.guards.EvaluateUpdate(tx, costBasis); err != nil {
		l.logRejection("update", tx.BaseItem, err)
		return models.Transaction{}, err
	}

	switch {
	case !tx.IsSale():
		tx.CostPrice = tx.UnitPrice
	case current.IsSale() && NormalizeKey(current.BaseItem) == tx.BaseItem:
		// The cost snapshot is historical and survives edits of the same item.
		tx.CostPrice = current.CostPrice
		tx.SellingPrice = tx.UnitPrice
	default:
		tx.CostPrice = costBasis[tx.BaseItem]
		tx.SellingPrice = tx.UnitPrice
	}

	l.store.replace(tx)
	l.logger.Debug("transaction updated", zap.String("id", tx.ID), zap.Stringer("amount", tx.Amount))
	return tx, nil
}

// Delete removes the record with id and keeps it restorable until the undo deadline.
// A later delete discards the previous capture. Unknown ids are ignored.
func (l *Ledger) Delete(id string) {
	tx, index, ok := l.store.remove(id)
	if !ok {
		l.logger.Debug("delete ignored, unknown id", zap.String("id", id))
		return
	}
	l.undo = &undoSlot{tx: tx, index: index, deadline: l.now().Add(l.undoTTL)}
	l.logger.Debug("transaction deleted", zap.String("id", id), zap.Int("index", index))
}

// Undo restores the last deleted record at its original position. It reports whether
// anything was restored; an expired or consumed capture is a no-op.
func (l *Ledger) Undo() bool {
	slot := l.undo
	l.undo = nil
	if slot == nil {
		return false
	}
	if l.now().After(slot.deadline) {
		l.logger.Debug("undo expired", zap.String("id", slot.tx.ID))
		return false
	}
	if _, _, exists := l.store.Find(slot.tx.ID); exists {
		return false
	}
	l.store.insertAt(slot.index, slot.tx)
	l.logger.Debug("transaction restored", zap.String("id", slot.tx.ID), zap.Int("index", slot.index))
	return true
}

// CanUndo reports whether Undo would currently restore a record.
func (l *Ledger) CanUndo() bool {
	return l.undo != nil && !l.now().After(l.undo.deadline)
}

// Transactions returns the stored records in display order.
func (l *Ledger) Transactions() []models.Transaction {
	return l.store.Records()
}

// InventoryLevels projects the current stock per item key.
func (l *Ledger) InventoryLevels() map[string]decimal.Decimal {
	return ProjectInventory(l.store.Records())
}

// CostBasis projects the last purchase price per item key.
func (l *Ledger) CostBasis() map[string]decimal.Decimal {
	return ProjectCostBasis(l.store.Records())
}

// TransactionsWithRunningBalance projects the running balance, newest first.
func (l *Ledger) TransactionsWithRunningBalance() []models.Transaction {
	return ProjectRunningBalance(l.store.Records())
}

func (l *Ledger) logRejection(op, item string, err error) {
	rej, ok := AsRejection(err)
	if !ok {
		l.logger.Warn("transaction refused", zap.String("op", op), zap.String("item", item), zap.Error(err))
		return
	}
	l.logger.Info("transaction rejected",
		zap.String("op", op),
		zap.String("item", item),
		zap.String("reason", string(rej.Reason)),
		zap.String("message", rej.Message))
}
