package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicate indicates a matching record already exists inside the look-back window.
	ErrDuplicate = errors.New("duplicate transaction")
	// ErrInsufficientStock indicates a sale asks for more than is on hand.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrSellingAtLoss indicates a sale priced below the known cost basis.
	ErrSellingAtLoss = errors.New("selling at loss")
	// ErrValidation indicates a malformed draft or record.
	ErrValidation = errors.New("validation error")
	// ErrNotFound indicates an update referenced an unknown transaction id.
	ErrNotFound = errors.New("transaction not found")
)

// Reason is the machine-readable name of a rejection.
type Reason string

const (
	ReasonDuplicate         Reason = "DuplicateTransaction"
	ReasonInsufficientStock Reason = "InsufficientStock"
	ReasonSellingAtLoss     Reason = "SellingAtLoss"
	ReasonValidation        Reason = "ValidationError"
	ReasonNotFound          Reason = "NotFound"
)

var reasonErrors = map[Reason]error{
	ReasonDuplicate:         ErrDuplicate,
	ReasonInsufficientStock: ErrInsufficientStock,
	ReasonSellingAtLoss:     ErrSellingAtLoss,
	ReasonValidation:        ErrValidation,
	ReasonNotFound:          ErrNotFound,
}

// Rejection is the structured refusal returned by the guardrails and the ledger.
// It unwraps to one of the package sentinels so callers can use errors.Is.
type Rejection struct {
	Reason     Reason
	Message    string
	Suggestion string

	// Populated for InsufficientStock.
	Available    decimal.Decimal
	Alternatives []string

	// Populated for SellingAtLoss.
	CostBasis decimal.Decimal
	UnitPrice decimal.Decimal
}

func (r *Rejection) Error() string {
	return r.Message
}

func (r *Rejection) Unwrap() error {
	return reasonErrors[r.Reason]
}

// AsRejection extracts a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

func validationError(message string) *Rejection {
	return &Rejection{Reason: ReasonValidation, Message: message}
}
