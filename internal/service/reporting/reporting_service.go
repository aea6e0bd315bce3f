package reporting

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/marketminder/internal/config"
	"github.com/mamadbah2/marketminder/internal/domain/models"
	repo "github.com/mamadbah2/marketminder/internal/repository/sheets"
)

const (
	dateLayout   = "2006-01-02"
	timeLayout   = "15:04"
	recentLimit  = 5

	// Credit score bounds: every record on file adds scorePerRecord to the base.
	scoreBase      = 450
	scorePerRecord = 10
	scoreMax       = 850
	ReportWeekly = "weekly"
)

// LedgerReader is the read side of the bookkeeping service used by reports.
type LedgerReader interface {
	Transactions() []models.Transaction
	GetInventoryLevels() map[string]decimal.Decimal
}

// InsightGenerator produces short business advice from a summary.
type InsightGenerator interface {
	GenerateInsights(ctx context.Context, summary models.Summary, txs []models.Transaction) (string, error)
}

// Options configure the reporting service.
type Options struct {
	Shop              config.ShopConfig
	Currency          string
	LowStockThreshold decimal.Decimal
	Location          *time.Location
	SheetTab          string
	Now               func() time.Time
}

// Service exposes dashboard analytics, periodic reports and exports.
type Service struct {
	ledger   LedgerReader
	sheets   repo.Repository
	insights InsightGenerator
	opts     Options
	logger   *zap.Logger
}

// NewService wires a new reporting service instance. sheets and insights are optional.
func NewService(ledger LedgerReader, sheets repo.Repository, insights InsightGenerator, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Currency == "" {
		opts.Currency = "KES"
	}
	if opts.SheetTab == "" {
		opts.SheetTab = "Ledger"
	}
	if opts.LowStockThreshold.IsZero() {
		opts.LowStockThreshold = decimal.NewFromInt(5)
	}
	return &Service{ledger: ledger, sheets: sheets, insights: insights, opts: opts, logger: logger}
}

// Summary aggregates the records with from <= time < to. Zero bounds are open.
// Stock figures always describe the current inventory.
func (s *Service) Summary(from, to time.Time) models.Summary {
	summary := models.Summary{
		From:          from,
		To:            to,
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
		CostOfGoods:   decimal.Zero,
		GrossProfit:   decimal.Zero,
	}

	all := s.ledger.Transactions()
	summary.CreditScore = CreditScore(len(all))
	for _, tx := range all {
		at := tx.Time()
		if (!from.IsZero() && at.Before(from)) || (!to.IsZero() && !at.Before(to)) {
			continue
		}
		summary.Transactions++
		if len(summary.Recent) < recentLimit {
			summary.Recent = append(summary.Recent, tx)
		}

		switch tx.Type {
		case models.Income:
			summary.TotalIncome = summary.TotalIncome.Add(tx.Amount)
			if tx.CostPrice.IsPositive() {
				cogs := tx.Quantity.Mul(tx.CostPrice)
				summary.CostOfGoods = summary.CostOfGoods.Add(cogs)
				summary.GrossProfit = summary.GrossProfit.Add(tx.Amount.Sub(cogs))
			}
		case models.Expense:
			summary.TotalExpenses = summary.TotalExpenses.Add(tx.Amount)
		}
	}
	summary.Balance = summary.TotalIncome.Sub(summary.TotalExpenses)

	levels := s.ledger.GetInventoryLevels()
	summary.ItemsTracked = len(levels)
	summary.LowStock = s.lowStock(levels)
	return summary
}

// DailyCashFlow returns the net movement of each of the last days calendar days,
// oldest first, in the configured time zone.
func (s *Service) DailyCashFlow(days int) []models.CashFlowPoint {
	if days <= 0 {
		return nil
	}

	loc := s.opts.Location
	now := s.opts.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	points := make([]models.CashFlowPoint, days)
	index := make(map[string]int, days)
	for i := range points {
		date := today.AddDate(0, 0, i-days+1).Format(dateLayout)
		points[i] = models.CashFlowPoint{Date: date, Net: decimal.Zero}
		index[date] = i
	}

	for _, tx := range s.ledger.Transactions() {
		i, ok := index[tx.Time().In(loc).Format(dateLayout)]
		if !ok {
			continue
		}
		switch tx.Type {
		case models.Income:
			points[i].Net = points[i].Net.Add(tx.Amount)
		case models.Expense:
			points[i].Net = points[i].Net.Sub(tx.Amount)
		}
	}
	return points
}

// GenerateWeeklyReport summarises the seven days ending at now and renders the chat
// message. Insight generation failures only drop the insight line.
func (s *Service) GenerateWeeklyReport(ctx context.Context, now time.Time) (models.PeriodReport, error) {
	if err := ctx.Err(); err != nil {
		return models.PeriodReport{}, err
	}

	to := now.In(s.opts.Location)
	from := to.AddDate(0, 0, -7)
	summary := s.Summary(from, to)

	message := s.FormatSummary(fmt.Sprintf("Weekly report %s to %s", from.Format(dateLayout), to.Format(dateLayout)), summary)

	if s.insights != nil && summary.Transactions > 0 {
		insight, err := s.insights.GenerateInsights(ctx, summary, s.ledger.Transactions())
		switch {
		case err != nil:
			s.logger.Warn("insight generation failed", zap.Error(err))
		case strings.TrimSpace(insight) != "":
			message += "\n\nTip: " + strings.TrimSpace(insight)
		}
	}

	s.logger.Info("weekly report generated",
		zap.Int("transactions", summary.Transactions),
		zap.Stringer("balance", summary.Balance))

	return models.PeriodReport{
		Kind:      ReportWeekly,
		ShopName:  s.opts.Shop.Name,
		Summary:   summary,
		Message:   message,
		CreatedAt: now.UTC(),
	}, nil
}

// FormatSummary renders a summary as a WhatsApp message.
func (s *Service) FormatSummary(title string, summary models.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s\n", s.opts.Shop.Name, title)
	fmt.Fprintf(&b, "Sales: %s\n", FormatMoney(s.opts.Currency, summary.TotalIncome))
	fmt.Fprintf(&b, "Expenses: %s\n", FormatMoney(s.opts.Currency, summary.TotalExpenses))
	fmt.Fprintf(&b, "Balance: %s\n", FormatMoney(s.opts.Currency, summary.Balance))
	if summary.CostOfGoods.IsPositive() {
		fmt.Fprintf(&b, "Gross profit: %s\n", FormatMoney(s.opts.Currency, summary.GrossProfit))
	}
	fmt.Fprintf(&b, "Records: %d\n", summary.Transactions)
	fmt.Fprintf(&b, "Credit score: %d", summary.CreditScore)

	if len(summary.LowStock) > 0 {
		lines := make([]string, len(summary.LowStock))
		for i, level := range summary.LowStock {
			lines[i] = fmt.Sprintf("%s (%s)", level.Item, level.Quantity.String())
		}
		fmt.Fprintf(&b, "\nLow stock: %s", strings.Join(lines, ", "))
	}
	return b.String()
}

func (s *Service) lowStock(levels map[string]decimal.Decimal) []models.StockLevel {
	var out []models.StockLevel
	for item, level := range levels {
		if level.LessThanOrEqual(s.opts.LowStockThreshold) {
			out = append(out, models.StockLevel{Item: item, Quantity: level})
		}
	}
	slices.SortFunc(out, func(a, b models.StockLevel) int {
		if c := a.Quantity.Cmp(b.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.Item, b.Item)
	})
	return out
}

// CreditScore rates the bookkeeping track record from the number of records kept.
func CreditScore(records int) int {
	return min(scoreMax, scoreBase+scorePerRecord*records)
}

// FormatMoney renders an amount with thousands separators and the currency's
// minor-unit precision. Unknown codes use two decimals.
func FormatMoney(currency string, amount decimal.Decimal) string {
	fraction := 2
	if cur := money.GetCurrency(currency); cur != nil {
		fraction = cur.Fraction
	}

	minor := amount.Abs().Round(int32(fraction)).Shift(int32(fraction)).IntPart()
	body := money.NewFormatter(fraction, ".", ",", "", "1").Format(minor)

	sign := ""
	if amount.Round(int32(fraction)).IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%s %s%s", currency, sign, body)
}
