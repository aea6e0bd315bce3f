package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/marketminder/internal/domain/models"
	"github.com/mamadbah2/marketminder/internal/ledger"
	"github.com/mamadbah2/marketminder/internal/service/bookkeeping"
	"github.com/mamadbah2/marketminder/internal/service/reporting"
)

const (
	dateLayout          = "2006-01-02"
	defaultCashFlowDays = 14
	maxCashFlowDays     = 366
	defaultReportLimit  = 10
)

// LedgerService is the bookkeeping surface exposed over HTTP.
type LedgerService interface {
	AddTransaction(ctx context.Context, draft models.TransactionDraft) bookkeeping.Result
	UpdateTransaction(ctx context.Context, tx models.Transaction) bookkeeping.Result
	DeleteTransaction(ctx context.Context, id string)
	UndoDelete(ctx context.Context) bool
	GetInventoryLevels() map[string]decimal.Decimal
	GetCostBasis() map[string]decimal.Decimal
	GetTransactionsWithRunningBalance() []models.Transaction
}

// ReportService provides dashboard figures and exports.
type ReportService interface {
	Summary(from, to time.Time) models.Summary
	DailyCashFlow(days int) []models.CashFlowPoint
	ExportCSV(w io.Writer, txs []models.Transaction) error
	ExportBackup(w io.Writer) error
	ExportToSheets(ctx context.Context) (int, error)
}

// ReportArchive lists archived periodic reports.
type ReportArchive interface {
	LatestReports(ctx context.Context, kind string, limit int64) ([]models.PeriodReport, error)
}

// LedgerHandlerOptions tune query defaults.
type LedgerHandlerOptions struct {
	Location     *time.Location
	CashFlowDays int
}

// LedgerHandler serves the bookkeeping JSON API.
type LedgerHandler struct {
	ledger  LedgerService
	reports ReportService
	archive ReportArchive
	opts    LedgerHandlerOptions
	logger  *zap.Logger
}

// NewLedgerHandler constructs the HTTP handler adapter. archive may be nil.
func NewLedgerHandler(ledger LedgerService, reports ReportService, archive ReportArchive, opts LedgerHandlerOptions, logger *zap.Logger) *LedgerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CashFlowDays <= 0 {
		opts.CashFlowDays = defaultCashFlowDays
	}
	return &LedgerHandler{ledger: ledger, reports: reports, archive: archive, opts: opts, logger: logger}
}

// HasArchive reports whether the report archive routes should be mounted.
func (h *LedgerHandler) HasArchive() bool {
	return h.archive != nil
}

// AddTransaction records a draft. Guardrail refusals return 422 with the result body.
func (h *LedgerHandler) AddTransaction(c *gin.Context) {
	var draft models.TransactionDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		h.logger.Warn("invalid transaction payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res := h.ledger.AddTransaction(c.Request.Context(), draft)
	if !res.Success {
		c.JSON(statusFor(res), res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// UpdateTransaction replaces the record named in the path.
func (h *LedgerHandler) UpdateTransaction(c *gin.Context) {
	var tx models.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		h.logger.Warn("invalid transaction payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	tx.ID = c.Param("id")

	res := h.ledger.UpdateTransaction(c.Request.Context(), tx)
	if !res.Success {
		c.JSON(statusFor(res), res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DeleteTransaction removes a record; unknown ids are not an error.
func (h *LedgerHandler) DeleteTransaction(c *gin.Context) {
	h.ledger.DeleteTransaction(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

// UndoDelete restores the most recently deleted record while the undo window is open.
func (h *LedgerHandler) UndoDelete(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"restored": h.ledger.UndoDelete(c.Request.Context())})
}

// ListTransactions returns the running-balance view, newest first, narrowed by q, type
// and currency.
func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	var filter reporting.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter"})
		return
	}
	c.JSON(http.StatusOK, filter.Apply(h.ledger.GetTransactionsWithRunningBalance()))
}

// Inventory returns stock levels per item key.
func (h *LedgerHandler) Inventory(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.GetInventoryLevels())
}

// CostBasis returns the last purchase price per item key.
func (h *LedgerHandler) CostBasis(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.GetCostBasis())
}

// Summary returns the dashboard aggregate. from and to are optional YYYY-MM-DD dates;
// to is inclusive.
func (h *LedgerHandler) Summary(c *gin.Context) {
	from, err := h.parseDate(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to, err := h.parseDate(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}
	c.JSON(http.StatusOK, h.reports.Summary(from, to))
}

// CashFlow returns the daily net movement for the last days days.
func (h *LedgerHandler) CashFlow(c *gin.Context) {
	days := h.opts.CashFlowDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxCashFlowDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("days must be between 1 and %d", maxCashFlowDays)})
			return
		}
		days = n
	}
	c.JSON(http.StatusOK, h.reports.DailyCashFlow(days))
}

// Export streams the ledger as CSV (filters apply) or as a JSON backup.
func (h *LedgerHandler) Export(c *gin.Context) {
	stamp := time.Now().In(h.opts.Location).Format(dateLayout)

	switch format := c.DefaultQuery("format", "csv"); format {
	case "csv":
		var filter reporting.Filter
		if err := c.ShouldBindQuery(&filter); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter"})
			return
		}
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="marketminder-%s.csv"`, stamp))
		c.Status(http.StatusOK)
		if err := h.reports.ExportCSV(c.Writer, filter.Apply(h.ledger.GetTransactionsWithRunningBalance())); err != nil {
			h.logger.Error("csv export failed", zap.Error(err))
		}
	case "json":
		c.Header("Content-Type", "application/json; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="marketminder-backup-%s.json"`, stamp))
		c.Status(http.StatusOK)
		if err := h.reports.ExportBackup(c.Writer); err != nil {
			h.logger.Error("backup export failed", zap.Error(err))
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format %q", format)})
	}
}

// ExportToSheets pushes the ledger to the configured spreadsheet.
func (h *LedgerHandler) ExportToSheets(c *gin.Context) {
	n, err := h.reports.ExportToSheets(c.Request.Context())
	switch {
	case errors.Is(err, reporting.ErrSheetsDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Error("sheets export failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "unable to export to google sheets"})
	default:
		c.JSON(http.StatusOK, gin.H{"exported": n})
	}
}

// Reports lists archived reports, newest first.
func (h *LedgerHandler) Reports(c *gin.Context) {
	limit := int64(defaultReportLimit)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	reports, err := h.archive.LatestReports(c.Request.Context(), c.DefaultQuery("kind", reporting.ReportWeekly), limit)
	if err != nil {
		h.logger.Error("failed to list reports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to load reports"})
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (h *LedgerHandler) parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, h.opts.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}

func statusFor(res bookkeeping.Result) int {
	if res.Reason == ledger.ReasonNotFound {
		return http.StatusNotFound
	}
	return http.StatusUnprocessableEntity
}
