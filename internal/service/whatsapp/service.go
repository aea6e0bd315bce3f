package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/marketminder/internal/config"
	"github.com/mamadbah2/marketminder/internal/domain/models"
	"github.com/mamadbah2/marketminder/internal/service/commands"
	"github.com/mamadbah2/marketminder/pkg/clients/anthropic"
	client "github.com/mamadbah2/marketminder/pkg/clients/whatsapp"
)

const (
	sendTimeout = 10 * time.Second
	// historySize is how many recent records the parser sees for duplicate detection.
	historySize = 20
)

var errEmptyMessage = errors.New("empty message body")

const (
	replyNoParser   = "I only understand commands for now. Send /help to see them."
	replyNothing    = "I could not find a sale, purchase or expense in that message. Send /help for examples."
	replyParseError = "Sorry, I could not read that message. Please try again or use a command like /sell 2 rice 95."
	replyFollowUp   = "Could you give me the missing details (item, quantity and price)?"
	replyUnreadable = "Sorry, I can only read text, voice notes and receipt photos."
	replyTypeIt     = "I cannot read this kind of attachment yet. Please type the trade, e.g. \"sold 2 rice at 95\"."
)

// MessagingService describes the operations the HTTP layer can perform.
type MessagingService interface {
	VerifyWebhookToken(mode, verifyToken, challenge string) (string, error)
	HandleWebhook(ctx context.Context, payload models.WebhookPayload) error
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// TransactionParser turns free text and attachments into transaction drafts.
type TransactionParser interface {
	ParseMessage(ctx context.Context, text string, recent []models.Transaction) (models.ParsingResult, error)
	ParseAttachment(ctx context.Context, data []byte, mimeType string, recent []models.Transaction) (models.ParsingResult, error)
}

// HistoryReader supplies recent records as parser context.
type HistoryReader interface {
	Recent(n int) []models.Transaction
}

// MetaWhatsAppService is the production implementation backed by WhatsApp Cloud API.
type MetaWhatsAppService struct {
	cfg        config.WhatsAppConfig
	client     client.Client
	dispatcher commands.Dispatcher
	parser     TransactionParser
	history    HistoryReader
	sessions   *SessionManager
	logger     *zap.Logger
}

// NewMetaWhatsAppService wires a new service instance. parser may be nil, in which case
// only slash commands are understood.
func NewMetaWhatsAppService(cfg config.WhatsAppConfig, client client.Client, dispatcher commands.Dispatcher, parser TransactionParser, history HistoryReader, sessions *SessionManager, logger *zap.Logger) *MetaWhatsAppService {
	svc := &MetaWhatsAppService{
		cfg:        cfg,
		client:     client,
		dispatcher: dispatcher,
		parser:     parser,
		history:    history,
		sessions:   sessions,
		logger:     logger,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.sessions == nil {
		svc.sessions = NewSessionManager(0)
	}
	return svc
}

// VerifyWebhookToken validates the callback verification token.
func (s *MetaWhatsAppService) VerifyWebhookToken(mode, verifyToken, challenge string) (string, error) {
	if mode == "" || verifyToken == "" {
		return "", errors.New("missing mode or verify token")
	}

	if !strings.EqualFold(mode, "subscribe") {
		return "", fmt.Errorf("unsupported hub.mode %s", mode)
	}

	if verifyToken != s.cfg.VerifyToken {
		return "", errors.New("invalid verify token")
	}

	return challenge, nil
}

// HandleWebhook processes inbound webhook payloads. Every message is attempted; the
// first failure is returned.
func (s *MetaWhatsAppService) HandleWebhook(ctx context.Context, payload models.WebhookPayload) error {
	if len(payload.Entry) == 0 {
		return nil
	}

	var firstErr error

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) == 0 {
				continue
			}

			for _, msg := range change.Value.Messages {
				if err := s.handleInboundMessage(ctx, msg); err != nil {
					s.logger.Error("failed to handle inbound message", zap.Error(err), zap.String("message_id", msg.ID))
					if firstErr == nil {
						firstErr = err
					}
				}
			}
		}
	}

	return firstErr
}

func (s *MetaWhatsAppService) handleInboundMessage(ctx context.Context, msg models.InboundMessage) error {
	if s.cfg.OwnerNumber != "" && msg.From != s.cfg.OwnerNumber {
		s.logger.Warn("ignoring message from unknown sender", zap.String("from", msg.From))
		return nil
	}

	if media := attachmentOf(msg); media != nil {
		return s.handleAttachment(ctx, msg.From, media)
	}

	text := strings.TrimSpace(extractMessageText(msg))
	if text == "" {
		if msg.Type != "" && msg.Type != "text" {
			return s.reply(ctx, msg.From, replyUnreadable)
		}
		return errEmptyMessage
	}

	if models.IsCommand(text) {
		return s.handleCommand(ctx, msg.From, text)
	}
	return s.handleFreeText(ctx, msg.From, text)
}

func (s *MetaWhatsAppService) handleCommand(ctx context.Context, from, text string) error {
	s.sessions.ClearSession(from)

	cmd := models.ParseCommand(text)
	s.logger.Info("parsed inbound command",
		zap.String("from", from),
		zap.String("command", string(cmd.Type)),
		zap.Any("args", cmd.Args))

	reply, err := s.dispatcher.HandleCommand(ctx, cmd, from)
	switch {
	case errors.Is(err, commands.ErrInvalidArguments):
		reply = fmt.Sprintf("%s\nUsage: %s", capitalize(err.Error()), commands.Usage(cmd.Type))
	case errors.Is(err, commands.ErrUnsupportedCommand):
		reply = "Unknown command. Send /help to see what I understand."
	case err != nil:
		if sendErr := s.reply(ctx, from, "Something went wrong, please try again."); sendErr != nil {
			s.logger.Warn("failed to send error reply", zap.Error(sendErr))
		}
		return fmt.Errorf("handle command %s: %w", cmd.Type, err)
	}
	return s.reply(ctx, from, reply)
}

func (s *MetaWhatsAppService) handleFreeText(ctx context.Context, from, text string) error {
	if s.parser == nil {
		return s.reply(ctx, from, replyNoParser)
	}

	message := text
	if pending, ok := s.sessions.Pending(from); ok {
		message = pending.Message + "\n" + text
	}

	result, err := s.parser.ParseMessage(ctx, message, s.history.Recent(historySize))
	if err != nil {
		s.sessions.ClearSession(from)
		if sendErr := s.reply(ctx, from, replyParseError); sendErr != nil {
			s.logger.Warn("failed to send error reply", zap.Error(sendErr))
		}
		return fmt.Errorf("parse message: %w", err)
	}
	return s.handleParsingResult(ctx, from, message, result)
}

func (s *MetaWhatsAppService) handleAttachment(ctx context.Context, from string, media *models.MediaContent) error {
	if s.parser == nil {
		return s.reply(ctx, from, replyNoParser)
	}

	downloaded, err := s.client.DownloadMedia(ctx, media.ID)
	if err != nil {
		if sendErr := s.reply(ctx, from, replyParseError); sendErr != nil {
			s.logger.Warn("failed to send error reply", zap.Error(sendErr))
		}
		return fmt.Errorf("download media %s: %w", media.ID, err)
	}

	mimeType := downloaded.MimeType
	if mimeType == "" {
		mimeType = media.MimeType
	}
	s.logger.Info("parsing attachment", zap.String("from", from), zap.String("mime_type", mimeType), zap.Int("bytes", len(downloaded.Data)))

	result, err := s.parser.ParseAttachment(ctx, downloaded.Data, mimeType, s.history.Recent(historySize))
	if errors.Is(err, anthropic.ErrUnsupportedMedia) {
		return s.reply(ctx, from, replyTypeIt)
	}
	if err != nil {
		if sendErr := s.reply(ctx, from, replyParseError); sendErr != nil {
			s.logger.Warn("failed to send error reply", zap.Error(sendErr))
		}
		return fmt.Errorf("parse attachment: %w", err)
	}
	return s.handleParsingResult(ctx, from, media.Caption, result)
}

// handleParsingResult records a complete result or stores an incomplete one so the
// sender's next message is parsed together with it.
func (s *MetaWhatsAppService) handleParsingResult(ctx context.Context, from, message string, result models.ParsingResult) error {
	s.logger.Debug("parsing result",
		zap.String("from", from),
		zap.String("status", string(result.Status)),
		zap.Int("drafts", len(result.Transactions)))

	switch {
	case result.Ready():
		s.sessions.ClearSession(from)
		reply := s.dispatcher.RecordDrafts(ctx, result.Transactions)
		if insight := strings.TrimSpace(result.Insight); insight != "" {
			reply += "\n\n" + insight
		}
		return s.reply(ctx, from, reply)
	case result.Status == models.ParseIncomplete:
		question := strings.TrimSpace(result.FollowUpQuestion)
		if question == "" {
			question = replyFollowUp
		}
		if message != "" {
			s.sessions.Remember(from, message, question)
		}
		return s.reply(ctx, from, question)
	default:
		s.sessions.ClearSession(from)
		return s.reply(ctx, from, replyNothing)
	}
}

// SendOutbound lets internal operators push quick notifications via HTTP.
func (s *MetaWhatsAppService) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := s.client.SendTextMessage(ctxWithTimeout, client.SendTextMessageRequest{
		To:         req.To,
		Body:       req.Message,
		PreviewURL: req.PreviewURL,
	})
	return err
}

func (s *MetaWhatsAppService) reply(ctx context.Context, to, body string) error {
	return s.SendOutbound(ctx, models.OutboundMessageRequest{To: to, Message: body})
}

func extractMessageText(msg models.InboundMessage) string {
	if msg.Text != nil {
		return msg.Text.Body
	}

	if msg.Interactive != nil {
		if msg.Interactive.ButtonReply != nil {
			return msg.Interactive.ButtonReply.ID
		}
		if msg.Interactive.ListReply != nil {
			return msg.Interactive.ListReply.ID
		}
	}

	return ""
}

func attachmentOf(msg models.InboundMessage) *models.MediaContent {
	switch {
	case msg.Image != nil:
		return msg.Image
	case msg.Audio != nil:
		return msg.Audio
	case msg.Document != nil:
		return msg.Document
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
