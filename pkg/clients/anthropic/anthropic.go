package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/mamadbah2/marketminder/internal/domain/models"
	"github.com/mamadbah2/marketminder/pkg/clients/llm"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	defaultModel   = "claude-3-5-haiku-latest"
	maxTokens      = 1024
)

// ErrUnsupportedMedia is returned for attachments the Messages API cannot read.
var ErrUnsupportedMedia = errors.New("unsupported attachment type")

// Options configure the client. Zero values select the defaults.
type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Shop    llm.Shop
}

// Client parses trader messages and receipt photos with the Anthropic Messages API.
type Client struct {
	httpClient *resty.Client
	model      string
	shop       llm.Shop
	logger     *zap.Logger
}

// NewClient creates a configured Anthropic client.
func NewClient(apiKey string, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/")).
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", apiVersion).
		SetHeader("content-type", "application/json").
		SetTimeout(opts.Timeout)

	return &Client{httpClient: client, model: opts.Model, shop: opts.Shop, logger: logger}
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseMessage extracts transactions from a chat message.
func (c *Client) ParseMessage(ctx context.Context, text string, recent []models.Transaction) (models.ParsingResult, error) {
	blocks := []contentBlock{
		{Type: "text", Text: llm.HistoryContext(recent)},
		{Type: "text", Text: "Message: " + text},
	}
	result, err := c.extract(ctx, blocks)
	if err != nil {
		return models.ParsingResult{}, err
	}
	return llm.Finalize(result, models.SourceWhatsApp, text), nil
}

// ParseAttachment extracts transactions from a receipt photo. Voice notes are not
// supported by the Messages API and return ErrUnsupportedMedia.
func (c *Client) ParseAttachment(ctx context.Context, data []byte, mimeType string, recent []models.Transaction) (models.ParsingResult, error) {
	mediaType, _, _ := strings.Cut(mimeType, ";")
	switch mediaType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
	default:
		return models.ParsingResult{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mimeType)
	}
	if len(data) == 0 {
		return models.ParsingResult{}, fmt.Errorf("attachment is empty")
	}

	blocks := []contentBlock{
		{Type: "text", Text: llm.HistoryContext(recent)},
		{Type: "image", Source: &imageSource{Type: "base64", MediaType: mediaType, Data: base64.StdEncoding.EncodeToString(data)}},
		{Type: "text", Text: "The image is a photo of a receipt. Read every line item."},
	}
	result, err := c.extract(ctx, blocks)
	if err != nil {
		return models.ParsingResult{}, err
	}
	return llm.Finalize(result, models.SourceReceipt, ""), nil
}

// GenerateInsights asks for short growth tips based on the period summary.
func (c *Client) GenerateInsights(ctx context.Context, summary models.Summary, txs []models.Transaction) (string, error) {
	language := c.shop.Language
	if language == "" {
		language = "English"
	}
	prompt := fmt.Sprintf("Period: %d transactions, sales %s, expenses %s, gross profit %s.\n%s\n\n"+
		"Give two specific, practical tips for this trader in %s, at most 60 words in total. Plain text, no lists.",
		summary.Transactions, summary.TotalIncome, summary.TotalExpenses, summary.GrossProfit,
		llm.HistoryContext(txs), language)

	return c.send(ctx, messageRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    "You are a business consultant for small market traders. You know local market prices and focus on bulk purchase efficiency.",
		Messages:  []message{{Role: "user", Content: []contentBlock{{Type: "text", Text: prompt}}}},
	})
}

func (c *Client) extract(ctx context.Context, blocks []contentBlock) (models.ParsingResult, error) {
	raw, err := c.send(ctx, messageRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    llm.SystemPrompt(c.shop),
		Messages: []message{
			{Role: "user", Content: blocks},
			// Prefill the assistant turn to force a JSON object.
			{Role: "assistant", Content: []contentBlock{{Type: "text", Text: "{"}}},
		},
	})
	if err != nil {
		return models.ParsingResult{}, err
	}

	result, err := llm.Decode("{" + raw)
	if err != nil {
		c.logger.Debug("unparseable anthropic response", zap.String("response", raw))
		return models.ParsingResult{}, fmt.Errorf("anthropic: %w", err)
	}
	return result, nil
}

func (c *Client) send(ctx context.Context, req messageRequest) (string, error) {
	var respBody messageResponse
	var errBody apiError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&respBody).
		SetError(&errBody).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("anthropic api call: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("anthropic api error: status=%d type=%s message=%s", resp.StatusCode(), errBody.Error.Type, errBody.Error.Message)
	}

	var b strings.Builder
	for _, block := range respBody.Content {
		if block.Type == "" || block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", llm.ErrEmptyResponse
	}
	return strings.TrimSpace(b.String()), nil
}
