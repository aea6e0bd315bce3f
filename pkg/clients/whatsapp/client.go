package whatsapp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/marketminder/internal/config"
)

// Client exposes WhatsApp Cloud API operations used by the application.
type Client interface {
	SendTextMessage(ctx context.Context, req SendTextMessageRequest) (*SendTextMessageResponse, error)
	DownloadMedia(ctx context.Context, mediaID string) (*Media, error)
}

// maxMediaBytes caps attachment downloads; WhatsApp itself limits images to 5 MB and audio to 16 MB.
const maxMediaBytes = 16 << 20

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient    *resty.Client
	accessToken   string
	phoneNumberID string
}

// NewClient builds a WhatsApp API client using the provided configuration values.
func NewClient(cfg config.WhatsAppConfig) *APIClient {
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	restyClient := resty.New()
	restyClient.
		SetBaseURL(fmt.Sprintf("%s/%s", base, cfg.APIVersion)).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.AccessToken)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	return &APIClient{
		httpClient:    restyClient,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
	}
}

// SendTextMessageRequest represents a simplified text message payload.
type SendTextMessageRequest struct {
	To         string
	Body       string
	PreviewURL bool
}

// SendTextMessageResponse mirrors the successful response from Meta.
type SendTextMessageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Media is a downloaded attachment.
type Media struct {
	Data     []byte
	MimeType string
}

type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// apiError represents a WhatsApp Cloud API error payload.
type apiError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorData    any    `json:"error_data"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

// SendTextMessage sends a plain text message to a WhatsApp user.
func (c *APIClient) SendTextMessage(ctx context.Context, req SendTextMessageRequest) (*SendTextMessageResponse, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                req.To,
		"type":              "text",
		"text": map[string]any{
			"body":        req.Body,
			"preview_url": req.PreviewURL,
		},
	}

	result := new(SendTextMessageResponse)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(result).
		SetError(apiErr).
		Post(fmt.Sprintf("%s/messages", c.phoneNumberID))
	if err != nil {
		return nil, fmt.Errorf("send whatsapp message: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, apiErr.wrap(resp.StatusCode())
	}

	return result, nil
}

// DownloadMedia resolves a media id to its short-lived URL and fetches the bytes.
func (c *APIClient) DownloadMedia(ctx context.Context, mediaID string) (*Media, error) {
	if mediaID == "" {
		return nil, fmt.Errorf("media id must not be empty")
	}

	info := new(mediaInfo)
	apiErr := new(apiError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(info).
		SetError(apiErr).
		Get(mediaID)
	if err != nil {
		return nil, fmt.Errorf("lookup whatsapp media %s: %w", mediaID, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, apiErr.wrap(resp.StatusCode())
	}
	if info.URL == "" {
		return nil, fmt.Errorf("whatsapp media %s has no download url", mediaID)
	}
	if info.FileSize > maxMediaBytes {
		return nil, fmt.Errorf("whatsapp media %s is too large: %d bytes", mediaID, info.FileSize)
	}

	// The download URL is absolute and lives outside the versioned Graph base URL.
	download, err := resty.New().
		SetTimeout(c.httpClient.GetClient().Timeout).
		R().
		SetContext(ctx).
		SetAuthToken(c.accessToken).
		SetDoNotParseResponse(true).
		Get(info.URL)
	if err != nil {
		return nil, fmt.Errorf("download whatsapp media %s: %w", mediaID, err)
	}
	body := download.RawBody()
	defer body.Close()
	if download.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("download whatsapp media %s: status %d", mediaID, download.StatusCode())
	}

	// file_size is only declared by the lookup; the body itself is capped too.
	data, err := io.ReadAll(io.LimitReader(body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read whatsapp media %s: %w", mediaID, err)
	}
	if len(data) > maxMediaBytes {
		return nil, fmt.Errorf("whatsapp media %s is too large: more than %d bytes", mediaID, maxMediaBytes)
	}

	mimeType := info.MimeType
	if mimeType == "" {
		mimeType = download.Header().Get("Content-Type")
	}
	return &Media{Data: data, MimeType: mimeType}, nil
}

func (e *apiError) wrap(status int) error {
	code := status
	message := ""
	if e != nil {
		message = e.Error.Message
		if e.Error.Code != 0 {
			code = e.Error.Code
		}
	}
	return fmt.Errorf("whatsapp api error: code=%d, message=%s", code, message)
}
