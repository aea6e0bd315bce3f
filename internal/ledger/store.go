package ledger

import (
	"slices"

	"github.com/mamadbah2/marketminder/internal/domain/models"
)

// Store holds the transaction records in display order, newest first. It is keyed by
// id semantically; the physical order only matters for presentation and undo.
type Store struct {
	records []models.Transaction
}

// NewStore builds a store from records already in display order, e.g. a loaded snapshot.
func NewStore(records ...models.Transaction) *Store {
	s := &Store{records: make([]models.Transaction, 0, len(records))}
	for _, r := range records {
		s.records = append(s.records, r.Clone())
	}
	return s
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Records returns a copy of the records in display order.
func (s *Store) Records() []models.Transaction {
	out := make([]models.Transaction, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// Find returns the record with id and its display index.
func (s *Store) Find(id string) (models.Transaction, int, bool) {
	i := slices.IndexFunc(s.records, func(r models.Transaction) bool { return r.ID == id })
	if i < 0 {
		return models.Transaction{}, -1, false
	}
	return s.records[i].Clone(), i, true
}

func (s *Store) prepend(tx models.Transaction) {
	s.records = slices.Insert(s.records, 0, tx.Clone())
}

func (s *Store) replace(tx models.Transaction) bool {
	_, i, ok := s.Find(tx.ID)
	if !ok {
		return false
	}
	s.records[i] = tx.Clone()
	return true
}

func (s *Store) remove(id string) (models.Transaction, int, bool) {
	tx, i, ok := s.Find(id)
	if !ok {
		return models.Transaction{}, -1, false
	}
	s.records = slices.Delete(s.records, i, i+1)
	return tx, i, true
}

func (s *Store) insertAt(i int, tx models.Transaction) {
	i = max(0, min(i, len(s.records)))
	s.records = slices.Insert(s.records, i, tx.Clone())
}
