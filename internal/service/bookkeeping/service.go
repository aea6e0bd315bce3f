package bookkeeping

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/marketminder/internal/domain/models"
	"github.com/mamadbah2/marketminder/internal/ledger"
	"github.com/mamadbah2/marketminder/internal/repository/snapshot"
)

// Result is the outcome of a mutation as reported to the chat and HTTP front ends.
type Result struct {
	Success      bool                `json:"success"`
	Error        string              `json:"error,omitempty"`
	Reason       ledger.Reason       `json:"reason,omitempty"`
	Suggestion   string              `json:"suggestion,omitempty"`
	Alternatives []string            `json:"alternatives,omitempty"`
	Transaction  *models.Transaction `json:"transaction,omitempty"`
}

// Service serialises access to one merchant's ledger and persists it after every change.
type Service struct {
	mu       sync.Mutex
	ledger   *ledger.Ledger
	snapshot snapshot.Repository
	logger   *zap.Logger
}

// NewService loads the snapshot (when repo is not nil) and wraps it in a ledger.
func NewService(ctx context.Context, repo snapshot.Repository, opts ledger.Options, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var records []models.Transaction
	if repo != nil {
		loaded, err := repo.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load ledger snapshot: %w", err)
		}
		records = loaded
	}

	return &Service{
		ledger:   ledger.New(ledger.NewStore(records...), opts, logger.Named("ledger")),
		snapshot: repo,
		logger:   logger,
	}, nil
}

// AddTransaction submits a draft to the guardrails and records it on acceptance.
func (s *Service) AddTransaction(ctx context.Context, draft models.TransactionDraft) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ledger.Add(draft)
	if err != nil {
		return rejected(err)
	}
	s.persist(ctx)
	return Result{Success: true, Transaction: &tx}
}

// UpdateTransaction replaces an existing record after the loss check.
func (s *Service) UpdateTransaction(ctx context.Context, tx models.Transaction) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.ledger.Update(tx)
	if err != nil {
		return rejected(err)
	}
	s.persist(ctx)
	return Result{Success: true, Transaction: &updated}
}

// DeleteTransaction removes a record and arms the undo slot. Unknown ids are ignored.
func (s *Service) DeleteTransaction(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.ledger.Transactions())
	s.ledger.Delete(id)
	if len(s.ledger.Transactions()) != before {
		s.persist(ctx)
	}
}

// UndoDelete restores the last deleted record if its undo window is still open.
func (s *Service) UndoDelete(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ledger.Undo() {
		return false
	}
	s.persist(ctx)
	return true
}

// CanUndo reports whether a deleted record is still restorable.
func (s *Service) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.CanUndo()
}

// GetInventoryLevels returns the stock on hand per item key.
func (s *Service) GetInventoryLevels() map[string]decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.InventoryLevels()
}

// GetCostBasis returns the last purchase unit price per item key.
func (s *Service) GetCostBasis() map[string]decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.CostBasis()
}

// GetTransactionsWithRunningBalance returns every record newest first, annotated with
// the cash balance after it.
func (s *Service) GetTransactionsWithRunningBalance() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.TransactionsWithRunningBalance()
}

// Transactions returns the records in display order.
func (s *Service) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Transactions()
}

// Recent returns at most n records in display order, used as parser context.
func (s *Service) Recent(n int) []models.Transaction {
	txs := s.Transactions()
	if n >= 0 && len(txs) > n {
		txs = txs[:n]
	}
	return txs
}

// persist writes the snapshot. The in-memory ledger stays authoritative when the write
// fails; the next successful mutation retries it.
func (s *Service) persist(ctx context.Context) {
	if s.snapshot == nil {
		return
	}
	if err := s.snapshot.Save(ctx, s.ledger.Transactions()); err != nil {
		s.logger.Error("failed to save ledger snapshot", zap.Error(err))
	}
}

func rejected(err error) Result {
	res := Result{Error: err.Error()}
	if rej, ok := ledger.AsRejection(err); ok {
		res.Reason = rej.Reason
		res.Suggestion = rej.Suggestion
		res.Alternatives = rej.Alternatives
	}
	return res
}
