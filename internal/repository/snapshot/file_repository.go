package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/marketminder/internal/domain/models"
)

// formatVersion is written into every snapshot and checked on load.
const formatVersion = 1

// ErrUnsupportedVersion is returned when a snapshot was written by an incompatible build.
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// Repository persists the ledger of a single merchant between restarts.
type Repository interface {
	Load(ctx context.Context) ([]models.Transaction, error)
	Save(ctx context.Context, txs []models.Transaction) error
}

type document struct {
	Version      int                  `json:"version"`
	SavedAt      time.Time            `json:"savedAt"`
	Transactions []models.Transaction `json:"transactions"`
}

// FileRepository keeps the ledger as one JSON document on local disk.
type FileRepository struct {
	path   string
	now    func() time.Time
	logger *zap.Logger
}

// NewFileRepository returns a repository writing to path. The parent directory is
// created on first save.
func NewFileRepository(path string, logger *zap.Logger) *FileRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileRepository{path: path, now: time.Now, logger: logger}
}

// Load reads the snapshot in display order. A missing file is an empty ledger.
func (r *FileRepository) Load(ctx context.Context) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Info("no ledger snapshot found, starting empty", zap.String("path", r.path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", r.path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", r.path, err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}

	r.logger.Info("ledger snapshot loaded",
		zap.String("path", r.path),
		zap.Int("transactions", len(doc.Transactions)),
		zap.Time("saved_at", doc.SavedAt))
	return doc.Transactions, nil
}

// Save replaces the snapshot with txs. The file is written next to the target and
// renamed into place so a crash never leaves a truncated ledger.
func (r *FileRepository) Save(ctx context.Context, txs []models.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if txs == nil {
		txs = []models.Transaction{}
	}

	raw, err := json.MarshalIndent(document{Version: formatVersion, SavedAt: r.now().UTC(), Transactions: txs}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace snapshot %s: %w", r.path, err)
	}

	r.logger.Debug("ledger snapshot saved", zap.String("path", r.path), zap.Int("transactions", len(txs)))
	return nil
}
