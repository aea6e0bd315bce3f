package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/mamadbah2/marketminder/internal/domain/models"
	"github.com/mamadbah2/marketminder/pkg/clients/llm"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.5-flash"

// Client parses trader messages and attachments with the Gemini API.
type Client struct {
	genai   *genai.Client
	model   string
	shop    llm.Shop
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a Gemini-backed parser.
func NewClient(ctx context.Context, apiKey, model string, shop llm.Shop, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{genai: client, model: model, shop: shop, timeout: timeout, logger: logger}, nil
}

// ParseMessage extracts transactions from a chat message.
func (c *Client) ParseMessage(ctx context.Context, text string, recent []models.Transaction) (models.ParsingResult, error) {
	parts := []*genai.Part{
		{Text: llm.HistoryContext(recent)},
		{Text: "Message: " + text},
	}
	result, err := c.extract(ctx, parts)
	if err != nil {
		return models.ParsingResult{}, err
	}
	return llm.Finalize(result, models.SourceWhatsApp, text), nil
}

// ParseAttachment extracts transactions from a voice note or a receipt photo.
func (c *Client) ParseAttachment(ctx context.Context, data []byte, mimeType string, recent []models.Transaction) (models.ParsingResult, error) {
	if len(data) == 0 {
		return models.ParsingResult{}, fmt.Errorf("attachment is empty")
	}

	instruction := "The attachment is a photo of a receipt. Read every line item."
	if strings.HasPrefix(mimeType, "audio/") {
		instruction = "The attachment is a voice note. Transcribe it, then extract the transactions."
	}

	parts := []*genai.Part{
		{Text: llm.HistoryContext(recent)},
		{Text: instruction},
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
	}
	result, err := c.extract(ctx, parts)
	if err != nil {
		return models.ParsingResult{}, err
	}
	return llm.Finalize(result, llm.SourceForMime(mimeType), ""), nil
}

// GenerateInsights asks for short growth tips based on the period summary.
func (c *Client) GenerateInsights(ctx context.Context, summary models.Summary, txs []models.Transaction) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Period: %d transactions, sales %s, expenses %s, gross profit %s.\n%s\n\n"+
		"Give two specific, practical tips for this trader in %s, at most 60 words in total. Plain text, no lists.",
		summary.Transactions, summary.TotalIncome, summary.TotalExpenses, summary.GrossProfit,
		llm.HistoryContext(txs), c.language())

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: "You are a business consultant for small market traders. You know local market prices and focus on bulk purchase efficiency."}}},
	}
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("generate insights: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (c *Client) extract(ctx context.Context, parts []*genai.Part) (models.ParsingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: llm.SystemPrompt(c.shop)}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    parsingSchema,
	}

	started := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return models.ParsingResult{}, fmt.Errorf("gemini generate content: %w", err)
	}

	raw := resp.Text()
	c.logger.Debug("gemini response received", zap.Duration("elapsed", time.Since(started)), zap.Int("bytes", len(raw)))

	result, err := llm.Decode(raw)
	if err != nil {
		return models.ParsingResult{}, fmt.Errorf("gemini: %w", err)
	}
	return result, nil
}

func (c *Client) language() string {
	if c.shop.Language == "" {
		return "English"
	}
	return c.shop.Language
}

var parsingSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"status": {Type: genai.TypeString, Enum: []string{"complete", "incomplete", "error"}},
		"transactions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"type":          {Type: genai.TypeString, Enum: []string{"Income", "Expense"}},
					"category":      {Type: genai.TypeString, Enum: []string{"Inventory", "Rent", "Transport", "Food", "Sales", "Credit", "Other"}},
					"item":          {Type: genai.TypeString},
					"baseItem":      {Type: genai.TypeString, Description: "Canonical upper-case product name"},
					"quantity":      {Type: genai.TypeNumber},
					"unit":          {Type: genai.TypeString},
					"unitPrice":     {Type: genai.TypeNumber, Nullable: genai.Ptr(true)},
					"amount":        {Type: genai.TypeNumber, Nullable: genai.Ptr(true), Description: "Total value when no unit price is given"},
					"currency":      {Type: genai.TypeString},
					"paymentMethod": {Type: genai.TypeString, Enum: []string{"Cash", "M-Pesa", "Bank", "Credit"}},
					"isDuplicate":   {Type: genai.TypeBoolean},
				},
				Required: []string{"type", "category", "item"},
			},
		},
		"followUpQuestion": {Type: genai.TypeString},
		"insight":          {Type: genai.TypeString},
	},
	Required: []string{"status"},
}
