package reporting

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/marketminder/internal/config"
	"github.com/mamadbah2/marketminder/internal/domain/models"
)

// ErrSheetsDisabled is returned by ExportToSheets when no spreadsheet is configured.
var ErrSheetsDisabled = errors.New("google sheets export is not configured")

var exportHeader = []string{
	"ID", "Date", "Time", "Item", "Type", "Category", "Quantity",
	"Unit Price", "Total Amount", "Currency", "Source", "Original Message",
}

// Backup is the JSON export: the shop settings and the full ledger.
type Backup struct {
	Settings     BackupSettings       `json:"settings"`
	Transactions []models.Transaction `json:"transactions"`
	ExportedAt   time.Time            `json:"exportedAt"`
}

// BackupSettings extends the shop profile with the ledger currency.
type BackupSettings struct {
	config.ShopConfig
	Currency string `json:"currency"`
}

// ExportCSV writes txs as CSV with a header row.
func (s *Service) ExportCSV(w io.Writer, txs []models.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, tx := range txs {
		if err := cw.Write(s.exportRow(tx)); err != nil {
			return fmt.Errorf("write csv row %s: %w", tx.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ExportBackup writes the JSON backup of the whole ledger.
func (s *Service) ExportBackup(w io.Writer) error {
	txs := s.ledger.Transactions()
	if txs == nil {
		txs = []models.Transaction{}
	}
	backup := Backup{
		Settings:     BackupSettings{ShopConfig: s.opts.Shop, Currency: s.opts.Currency},
		Transactions: txs,
		ExportedAt:   s.opts.Now().UTC(),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(backup); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}

// ExportToSheets replaces the ledger tab of the configured spreadsheet with the
// current records and returns how many were written.
func (s *Service) ExportToSheets(ctx context.Context) (int, error) {
	if s.sheets == nil {
		return 0, ErrSheetsDisabled
	}

	txs := s.ledger.Transactions()
	rows := make([][]interface{}, 0, len(txs)+1)
	rows = append(rows, toCells(exportHeader))
	for _, tx := range txs {
		rows = append(rows, toCells(s.exportRow(tx)))
	}

	if err := s.sheets.ClearRange(ctx, s.opts.SheetTab+"!A:L"); err != nil {
		return 0, fmt.Errorf("clear ledger tab: %w", err)
	}
	if err := s.sheets.WriteRows(ctx, s.opts.SheetTab+"!A1", rows); err != nil {
		return 0, fmt.Errorf("write ledger tab: %w", err)
	}

	s.logger.Info("ledger exported to google sheets", zap.String("tab", s.opts.SheetTab), zap.Int("transactions", len(txs)))
	return len(txs), nil
}

func (s *Service) exportRow(tx models.Transaction) []string {
	at := tx.Time().In(s.opts.Location)
	return []string{
		tx.ID,
		at.Format(dateLayout),
		at.Format(timeLayout),
		tx.Item,
		string(tx.Type),
		string(tx.Category),
		tx.Quantity.String(),
		tx.UnitPrice.StringFixed(2),
		tx.Amount.StringFixed(2),
		tx.Currency,
		string(tx.Source),
		tx.OriginalMessage,
	}
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
