// Package llm holds what the language-model parsers share: the extraction
// instructions, the recent-history context and the decoding of model output into
// a ParsingResult.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mamadbah2/marketminder/internal/domain/models"
)

// recentLimit bounds how much history is sent with each request.
const recentLimit = 20

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Shop describes the merchant the parser works for.
type Shop struct {
	Name     string
	Location string
	Language string
	Currency string
}

// SystemPrompt returns the extraction instructions for shop.
func SystemPrompt(shop Shop) string {
	currency := shop.Currency
	if currency == "" {
		currency = "KES"
	}
	language := shop.Language
	if language == "" {
		language = "English"
	}
	where := "a market stall"
	if shop.Location != "" {
		where = "a market stall in " + shop.Location
	}

	return fmt.Sprintf(`You are the bookkeeping assistant of %q, %s. You understand English, Swahili and Sheng.
Turn the trader's message, voice note or receipt into ledger transactions.

Rules:
- One message may describe several transactions; return each one.
- "Nimeuza", "nime-sell", "sold" mean type Income with category Sales.
- "Nimenunua", "nimelipa", "bought", "paid" mean type Expense. Stock bought for resale is category Inventory; otherwise use Rent, Transport, Food, Credit or Other.
- Bulk pricing: "5 bags at 400 each" is quantity 5, unitPrice 400, amount 2000.
- If only a total is given, set amount and leave unitPrice null. Never invent a price.
- Keep the unit the trader used. Do not convert bags to kilograms or similar.
- baseItem is the canonical product name in upper case. Reuse one of the known items when the message refers to the same product.
- currency is an ISO code; default %s.
- Set isDuplicate to true when a transaction repeats one of the recent transactions (same item, quantity and amount).
- status is "complete" when every transaction has an item, a type and a price; "incomplete" with a short followUpQuestion when a price or quantity is missing; "error" when the message is not about trading.
- followUpQuestion and insight are written in %s. insight is one optional short observation about the trade.

Return ONLY a JSON object of the form:
{"status":"complete|incomplete|error","transactions":[{"type":"Income|Expense","category":"Inventory|Rent|Transport|Food|Sales|Credit|Other","item":"string","baseItem":"STRING","quantity":number,"unit":"string","unitPrice":number|null,"amount":number|null,"currency":"XXX","paymentMethod":"Cash|M-Pesa|Bank|Credit","isDuplicate":false}],"followUpQuestion":"string","insight":"string"}`,
		shop.Name, where, currency, language)
}

// HistoryContext renders the known item keys and the newest records so the model can
// reuse names and flag duplicates. recent is in display order, newest first.
func HistoryContext(recent []models.Transaction) string {
	if len(recent) == 0 {
		return "Known items: none yet.\nRecent transactions: none."
	}

	var items []string
	for _, tx := range recent {
		if tx.BaseItem != "" && !slices.Contains(items, tx.BaseItem) {
			items = append(items, tx.BaseItem)
		}
	}
	slices.Sort(items)

	var b strings.Builder
	fmt.Fprintf(&b, "Known items: %s.\nRecent transactions:\n", strings.Join(items, ", "))
	for i, tx := range recent {
		if i == recentLimit {
			break
		}
		fmt.Fprintf(&b, "- %s %s %s x%s @ %s = %s %s\n",
			tx.Time().UTC().Format("2006-01-02 15:04"), tx.Type, tx.BaseItem,
			tx.Quantity.String(), tx.UnitPrice.String(), tx.Amount.String(), tx.Currency)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Decode parses raw model output. Code fences and text around the JSON object are
// tolerated.
func Decode(raw string) (models.ParsingResult, error) {
	clean := CleanJSON(raw)
	if clean == "" {
		return models.ParsingResult{}, ErrEmptyResponse
	}

	var result models.ParsingResult
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return models.ParsingResult{}, fmt.Errorf("decode model response: %w", err)
	}

	switch result.Status {
	case models.ParseComplete, models.ParseIncomplete, models.ParseError:
	case "":
		result.Status = models.ParseError
		if len(result.Transactions) > 0 {
			result.Status = models.ParseComplete
		}
	default:
		return models.ParsingResult{}, fmt.Errorf("decode model response: unknown status %q", result.Status)
	}
	if result.Status == models.ParseComplete && len(result.Transactions) == 0 {
		result.Status = models.ParseIncomplete
	}
	return result, nil
}

// Finalize stamps provenance on every draft the model returned.
func Finalize(result models.ParsingResult, source models.Source, original string) models.ParsingResult {
	for i := range result.Transactions {
		d := &result.Transactions[i]
		if d.Source == "" {
			d.Source = source
		}
		if d.OriginalMessage == "" {
			d.OriginalMessage = original
		}
		d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	}
	return result
}

// CleanJSON strips Markdown fences and keeps the outermost JSON object.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return strings.TrimSpace(s)
	}
	return s[start : end+1]
}

// SourceForMime maps an attachment type to the record source.
func SourceForMime(mimeType string) models.Source {
	if strings.HasPrefix(mimeType, "audio/") {
		return models.SourceVoice
	}
	return models.SourceReceipt
}
