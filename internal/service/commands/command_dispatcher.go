package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/marketminder/internal/domain/models"
	"github.com/mamadbah2/marketminder/internal/ledger"
	"github.com/mamadbah2/marketminder/internal/service/bookkeeping"
	"github.com/mamadbah2/marketminder/internal/service/reporting"
)

// ErrInvalidArguments indicates the command payload could not be parsed.
var ErrInvalidArguments = errors.New("invalid command arguments")

// ErrUnsupportedCommand indicates we do not yet support the requested command.
var ErrUnsupportedCommand = errors.New("unsupported command")

var usage = map[models.CommandType]string{
	models.CommandSell:    "/sell <qty> <item> <unit price>, e.g. /sell 2 rice 95",
	models.CommandBuy:     "/buy <qty> <item> <unit price>, e.g. /buy 50 rice 80",
	models.CommandExpense: "/expense <rent|transport|food|credit|other> <amount> [note], e.g. /expense transport 200 boda",
	models.CommandStock:   "/stock [item]",
	models.CommandBalance: "/balance",
	models.CommandDelete:  "/delete <id|last>",
	models.CommandUndo:    "/undo",
	models.CommandReport:  "/report",
}

var expenseCategories = map[string]models.Category{
	"rent":      models.CategoryRent,
	"transport": models.CategoryTransport,
	"food":      models.CategoryFood,
	"credit":    models.CategoryCredit,
	"other":     models.CategoryOther,
}

// Bookkeeper is the ledger surface commands act on.
type Bookkeeper interface {
	AddTransaction(ctx context.Context, draft models.TransactionDraft) bookkeeping.Result
	DeleteTransaction(ctx context.Context, id string)
	UndoDelete(ctx context.Context) bool
	GetInventoryLevels() map[string]decimal.Decimal
	Transactions() []models.Transaction
}

// ReportingAdapter defines the reporting functions required by the dispatcher.
type ReportingAdapter interface {
	Summary(from, to time.Time) models.Summary
	FormatSummary(title string, summary models.Summary) string
	GenerateWeeklyReport(ctx context.Context, now time.Time) (models.PeriodReport, error)
}

// Dispatcher executes chat commands and records parsed drafts.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error)
	RecordDrafts(ctx context.Context, drafts []models.TransactionDraft) string
}

// Service implements the Dispatcher interface.
type Service struct {
	ledger    Bookkeeper
	reporting ReportingAdapter
	currency  string
	logger    *zap.Logger
	now       func() time.Time
}

// NewService constructs a command dispatcher.
func NewService(ledger Bookkeeper, reporting ReportingAdapter, currency string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = "KES"
	}
	return &Service{
		ledger:    ledger,
		reporting: reporting,
		currency:  currency,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleCommand runs cmd and returns the reply text. Guardrail rejections are part of
// the reply; errors are reserved for malformed or unknown commands.
func (s *Service) HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error) {
	s.logger.Debug("dispatching command", zap.String("command", string(cmd.Type)), zap.String("sender", sender), zap.Strings("args", cmd.Args))

	switch cmd.Type {
	case models.CommandSell, models.CommandBuy:
		draft, err := tradeDraft(cmd)
		if err != nil {
			return "", err
		}
		draft.OriginalMessage = cmd.Raw
		return DescribeResult(s.ledger.AddTransaction(ctx, draft), s.currency), nil
	case models.CommandExpense:
		draft, err := expenseDraft(cmd)
		if err != nil {
			return "", err
		}
		draft.OriginalMessage = cmd.Raw
		return DescribeResult(s.ledger.AddTransaction(ctx, draft), s.currency), nil
	case models.CommandStock:
		return s.stockReply(strings.Join(cmd.Args, " ")), nil
	case models.CommandBalance:
		summary := s.reporting.Summary(time.Time{}, time.Time{})
		return s.reporting.FormatSummary("Balance", summary), nil
	case models.CommandDelete:
		return s.deleteReply(ctx, cmd)
	case models.CommandUndo:
		if s.ledger.UndoDelete(ctx) {
			return "Restored the last deleted record.", nil
		}
		return "Nothing to undo. Deleted records can only be restored for a few seconds.", nil
	case models.CommandReport:
		report, err := s.reporting.GenerateWeeklyReport(ctx, s.now())
		if err != nil {
			return "", fmt.Errorf("generate report: %w", err)
		}
		return report.Message, nil
	case models.CommandHelp:
		return helpText(), nil
	default:
		return "", ErrUnsupportedCommand
	}
}

// RecordDrafts submits parsed drafts one by one and summarises what happened. Drafts
// the parser flagged as duplicates are skipped without reaching the ledger.
func (s *Service) RecordDrafts(ctx context.Context, drafts []models.TransactionDraft) string {
	var recorded, skipped, failed []string
	for _, draft := range drafts {
		if draft.IsDuplicate {
			skipped = append(skipped, draft.Item)
			continue
		}
		res := s.ledger.AddTransaction(ctx, draft)
		if res.Success {
			recorded = append(recorded, describeTransaction(*res.Transaction, s.currency))
			continue
		}
		line := fmt.Sprintf("%s: %s", draft.Item, res.Error)
		if res.Suggestion != "" {
			line += " " + res.Suggestion
		}
		failed = append(failed, line)
	}

	var b strings.Builder
	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(title)
		for _, l := range lines {
			b.WriteString("\n- " + l)
		}
	}
	section("Recorded:", recorded)
	section("Skipped duplicates:", skipped)
	section("Errors:", failed)
	if b.Len() == 0 {
		return "No transactions found in your message."
	}
	return b.String()
}

// DescribeResult renders a mutation result as a chat reply.
func DescribeResult(res bookkeeping.Result, currency string) string {
	if res.Success && res.Transaction != nil {
		return "Recorded: " + describeTransaction(*res.Transaction, currency)
	}
	reply := "Not recorded: " + res.Error
	if res.Suggestion != "" {
		reply += "\n" + res.Suggestion
	}
	return reply
}

func describeTransaction(tx models.Transaction, fallbackCurrency string) string {
	currency := tx.Currency
	if currency == "" {
		currency = fallbackCurrency
	}
	verb := "Sold"
	if tx.Type == models.Expense {
		verb = "Bought"
		if !tx.IsStockPurchase() {
			verb = string(tx.Category)
		}
	}
	return fmt.Sprintf("%s %s x%s @ %s = %s [%s]",
		verb, tx.Item, tx.Quantity.String(), tx.UnitPrice.String(),
		reporting.FormatMoney(currency, tx.Amount), shortID(tx.ID))
}

func (s *Service) stockReply(item string) string {
	levels := s.ledger.GetInventoryLevels()
	if item != "" {
		key := ledger.NormalizeKey(item)
		level, ok := levels[key]
		if !ok {
			return fmt.Sprintf("%s is not tracked yet. Record a purchase with /buy first.", key)
		}
		return fmt.Sprintf("%s: %s in stock", key, level.String())
	}
	if len(levels) == 0 {
		return "No stock recorded yet."
	}

	keys := make([]string, 0, len(levels))
	for key := range levels {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString("Stock:")
	for _, key := range keys {
		fmt.Fprintf(&b, "\n- %s: %s", key, levels[key].String())
	}
	return b.String()
}

func (s *Service) deleteReply(ctx context.Context, cmd models.Command) (string, error) {
	if len(cmd.Args) != 1 {
		return "", fmt.Errorf("%w: %s", ErrInvalidArguments, usage[models.CommandDelete])
	}

	txs := s.ledger.Transactions()
	ref := cmd.Args[0]
	var target *models.Transaction
	if strings.EqualFold(ref, "last") {
		if len(txs) > 0 {
			target = &txs[0]
		}
	} else {
		for i := range txs {
			if txs[i].ID == ref || shortID(txs[i].ID) == ref {
				target = &txs[i]
				break
			}
		}
	}
	if target == nil {
		return fmt.Sprintf("No record matches %q.", ref), nil
	}

	s.ledger.DeleteTransaction(ctx, target.ID)
	return fmt.Sprintf("Deleted %s. Send /undo right away to restore it.", describeTransaction(*target, s.currency)), nil
}

func tradeDraft(cmd models.Command) (models.TransactionDraft, error) {
	if len(cmd.Args) < 3 {
		return models.TransactionDraft{}, fmt.Errorf("%w: %s", ErrInvalidArguments, usage[cmd.Type])
	}

	qty, err := decimal.NewFromString(cmd.Args[0])
	if err != nil {
		return models.TransactionDraft{}, fmt.Errorf("%w: quantity %q is not a number", ErrInvalidArguments, cmd.Args[0])
	}
	last := len(cmd.Args) - 1
	price, err := decimal.NewFromString(strings.TrimPrefix(cmd.Args[last], "@"))
	if err != nil {
		return models.TransactionDraft{}, fmt.Errorf("%w: price %q is not a number", ErrInvalidArguments, cmd.Args[last])
	}

	draft := models.TransactionDraft{
		Item:      strings.Join(cmd.Args[1:last], " "),
		Quantity:  &qty,
		UnitPrice: &price,
		Source:    models.SourceWhatsApp,
	}
	if cmd.Type == models.CommandSell {
		draft.Type, draft.Category = models.Income, models.CategorySales
	} else {
		draft.Type, draft.Category = models.Expense, models.CategoryInventory
	}
	return draft, nil
}

func expenseDraft(cmd models.Command) (models.TransactionDraft, error) {
	if len(cmd.Args) < 2 {
		return models.TransactionDraft{}, fmt.Errorf("%w: %s", ErrInvalidArguments, usage[models.CommandExpense])
	}

	category, ok := expenseCategories[strings.ToLower(cmd.Args[0])]
	if !ok {
		return models.TransactionDraft{}, fmt.Errorf("%w: unknown expense category %q", ErrInvalidArguments, cmd.Args[0])
	}
	amount, err := decimal.NewFromString(cmd.Args[1])
	if err != nil {
		return models.TransactionDraft{}, fmt.Errorf("%w: amount %q is not a number", ErrInvalidArguments, cmd.Args[1])
	}

	item := string(category)
	if len(cmd.Args) > 2 {
		item = strings.Join(cmd.Args[2:], " ")
	}
	return models.TransactionDraft{
		Item:     item,
		BaseItem: string(category),
		Type:     models.Expense,
		Category: category,
		Amount:   &amount,
		Source:   models.SourceWhatsApp,
	}, nil
}

// Usage returns the syntax hint for a command type.
func Usage(t models.CommandType) string {
	return usage[t]
}

func helpText() string {
	order := []models.CommandType{
		models.CommandSell, models.CommandBuy, models.CommandExpense, models.CommandStock,
		models.CommandBalance, models.CommandDelete, models.CommandUndo, models.CommandReport,
	}
	lines := make([]string, 0, len(order)+2)
	lines = append(lines, "Commands:")
	for _, t := range order {
		lines = append(lines, "- "+usage[t])
	}
	lines = append(lines, "Or just describe the trade, e.g. \"nimeuza mchele kilo 2 kwa 190\", send a receipt photo or a voice note.")
	return strings.Join(lines, "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
