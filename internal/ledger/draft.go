package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/marketminder/internal/domain/models"
)

// DefaultCurrency is used when neither the draft nor the options name one.
const DefaultCurrency = "KES"

var validate = validator.New(validator.WithRequiredStructEnabled())

// NormalizeKey is the canonical form used to match items across records.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// quantityOf applies the "absent means one" rule for stored records.
func quantityOf(tx models.Transaction) decimal.Decimal {
	if tx.Quantity.IsZero() {
		return decimal.NewFromInt(1)
	}
	return tx.Quantity
}

// fromDraft validates a draft and materialises the record it describes. Guardrail
// fields (id, costPrice, sellingPrice for sales) are filled later.
// A total given without a unit price is split at the currency's minor-unit precision;
// a total that cannot be split within tolerance is rejected rather than altered.
func fromDraft(draft models.TransactionDraft, currency string, tolerance decimal.Decimal, now time.Time) (models.Transaction, error) {
	draft.Item = strings.TrimSpace(draft.Item)
	if err := validate.Struct(draft); err != nil {
		return models.Transaction{}, validationFromValidator(err)
	}

	quantity := decimal.NewFromInt(1)
	if draft.Quantity != nil {
		quantity = *draft.Quantity
	}
	if !quantity.IsPositive() {
		return models.Transaction{}, validationError(fmt.Sprintf("quantity for %s must be greater than zero", draft.Item))
	}

	if draft.Currency != "" {
		currency = strings.ToUpper(draft.Currency)
	}

	var unitPrice decimal.Decimal
	switch {
	case draft.UnitPrice != nil:
		unitPrice = *draft.UnitPrice
	case draft.Amount != nil:
		unitPrice = draft.Amount.DivRound(quantity, minorUnits(currency))
	default:
		return models.Transaction{}, validationError(fmt.Sprintf("price for %s is missing", draft.Item))
	}
	if !unitPrice.IsPositive() {
		return models.Transaction{}, validationError(fmt.Sprintf("price for %s must be greater than zero", draft.Item))
	}
	if draft.UnitPrice == nil {
		if drift := quantity.Mul(unitPrice).Sub(*draft.Amount).Abs(); drift.GreaterThan(tolerance) {
			return models.Transaction{}, &Rejection{
				Reason:     ReasonValidation,
				Message:    fmt.Sprintf("total %s for %s does not split evenly over %s units", draft.Amount.String(), draft.Item, quantity.String()),
				Suggestion: "Give the unit price instead of the total.",
			}
		}
	}

	baseItem := NormalizeKey(draft.BaseItem)
	if baseItem == "" {
		baseItem = NormalizeKey(draft.Item)
	}

	timestamp := draft.Timestamp
	if timestamp == 0 {
		timestamp = now.UnixMilli()
	}

	tx := models.Transaction{
		Timestamp:       timestamp,
		Type:            draft.Type,
		Category:        draft.Category,
		Item:            draft.Item,
		BaseItem:        baseItem,
		Quantity:        quantity,
		Unit:            draft.Unit,
		UnitPrice:       unitPrice,
		Amount:          quantity.Mul(unitPrice),
		Currency:        currency,
		PaymentMethod:   draft.PaymentMethod,
		Source:          draft.Source,
		OriginalMessage: draft.OriginalMessage,
		Tags:            append([]string(nil), draft.Tags...),
	}
	if tx.Unit == "" {
		tx.Unit = models.UnitPiece
	}
	if tx.PaymentMethod == "" {
		tx.PaymentMethod = models.PaymentCash
	}
	if tx.Source == "" {
		tx.Source = models.SourceManual
	}
	if draft.SellingPrice != nil && tx.Type == models.Expense {
		tx.SellingPrice = *draft.SellingPrice
	}
	return tx, nil
}

// minorUnits is the number of decimals the currency is quoted in; unknown codes use two.
func minorUnits(currency string) int32 {
	if cur := money.GetCurrency(currency); cur != nil {
		return int32(cur.Fraction)
	}
	return 2
}

// checkRecord validates an edited record before it replaces the stored one.
func checkRecord(tx models.Transaction) error {
	switch {
	case strings.TrimSpace(tx.Item) == "":
		return validationError("item name is required")
	case tx.Type != models.Income && tx.Type != models.Expense:
		return validationError(fmt.Sprintf("unknown transaction type %q", tx.Type))
	case tx.Category == "":
		return validationError("category is required")
	case !tx.Quantity.IsPositive():
		return validationError(fmt.Sprintf("quantity for %s must be greater than zero", tx.Item))
	case !tx.UnitPrice.IsPositive():
		return validationError(fmt.Sprintf("price for %s must be greater than zero", tx.Item))
	case tx.Timestamp <= 0:
		return validationError("timestamp is required")
	}
	return nil
}

func validationFromValidator(err error) *Rejection {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return validationError(err.Error())
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return validationError(fmt.Sprintf("%s is required", strings.ToLower(fe.Field())))
	case "oneof":
		return validationError(fmt.Sprintf("%s %q is not one of [%s]", strings.ToLower(fe.Field()), fe.Value(), fe.Param()))
	default:
		return validationError(fmt.Sprintf("%s is invalid (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
}
