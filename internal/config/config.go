package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// AI providers understood by AI_PROVIDER.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Ledger    LedgerConfig
	Shop      ShopConfig
	WhatsApp  WhatsAppConfig
	Sheets    SheetsConfig
	Reporting ReportingConfig
	AI        AIConfig
	MongoDB   MongoDBConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port           string
	LogLevel       string
	AllowedOrigins []string
}

// LedgerConfig tunes the guardrails and where the ledger snapshot lives.
type LedgerConfig struct {
	DefaultCurrency   string
	DuplicateWindow   time.Duration
	AmountTolerance   decimal.Decimal
	UndoTTL           time.Duration
	LowStockThreshold decimal.Decimal
	SnapshotPath      string
}

// ShopConfig describes the merchant; it is echoed into reports and backups.
type ShopConfig struct {
	Name              string `json:"shopName"`
	Location          string `json:"location"`
	PreferredLanguage string `json:"preferredLanguage"`
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	BaseURL       string
	APIVersion    string
	OwnerNumber   string
}

// Enabled reports whether the chat front end is configured.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != "" && c.VerifyToken != ""
}

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	LedgerSheet     string
}

// Enabled reports whether ledger export to Google Sheets is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule string
	Timezone     string
	CashFlowDays int
}

// Location resolves Timezone, falling back to UTC.
func (c ReportingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AIConfig holds settings for LLM providers.
type AIConfig struct {
	Provider       string
	GeminiKey      string
	GeminiModel    string
	AnthropicKey   string
	AnthropicModel string
	Timeout        time.Duration
}

// Enabled reports whether a transaction parser can be built.
func (c AIConfig) Enabled() bool {
	return c.Provider != ""
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// Enabled reports whether report archiving is configured.
func (c MongoDBConfig) Enabled() bool {
	return c.URI != ""
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	var p parser
	cfg := &Config{
		Server: ServerConfig{
			Port:           getenvWithDefault("APP_PORT", "8080"),
			LogLevel:       getenvWithDefault("LOG_LEVEL", "info"),
			AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		},
		Ledger: LedgerConfig{
			DefaultCurrency:   strings.ToUpper(getenvWithDefault("DEFAULT_CURRENCY", "KES")),
			DuplicateWindow:   p.duration("DUPLICATE_WINDOW", time.Hour),
			AmountTolerance:   p.decimal("DUPLICATE_AMOUNT_TOLERANCE", "0.1"),
			UndoTTL:           p.duration("UNDO_TTL", 5*time.Second),
			LowStockThreshold: p.decimal("LOW_STOCK_THRESHOLD", "5"),
			SnapshotPath:      getenvWithDefault("LEDGER_SNAPSHOT_PATH", "data/ledger.json"),
		},
		Shop: ShopConfig{
			Name:              getenvWithDefault("SHOP_NAME", "My Shop"),
			Location:          os.Getenv("SHOP_LOCATION"),
			PreferredLanguage: getenvWithDefault("PREFERRED_LANGUAGE", "English"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:   os.Getenv("META_VERIFY_TOKEN"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			OwnerNumber:   os.Getenv("WHATSAPP_OWNER_NUMBER"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
			LedgerSheet:     getenvWithDefault("GOOGLE_SHEET_LEDGER_TAB", "Ledger"),
		},
		Reporting: ReportingConfig{
			CronSchedule: getenvWithDefault("REPORT_CRON_SCHEDULE", "0 20 * * 5"),
			Timezone:     getenvWithDefault("TIMEZONE", "Africa/Nairobi"),
			CashFlowDays: p.int("CASHFLOW_DAYS", 14),
		},
		AI: AIConfig{
			Provider:       strings.ToLower(os.Getenv("AI_PROVIDER")),
			GeminiKey:      os.Getenv("GEMINI_API_KEY"),
			GeminiModel:    getenvWithDefault("GEMINI_MODEL", "gemini-2.5-flash"),
			AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicModel: getenvWithDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			Timeout:        p.duration("AI_TIMEOUT", 30*time.Second),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "marketminder"),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	if cfg.AI.Provider == "" {
		switch {
		case cfg.AI.GeminiKey != "":
			cfg.AI.Provider = ProviderGemini
		case cfg.AI.AnthropicKey != "":
			cfg.AI.Provider = ProviderAnthropic
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated. Integrations
// are optional, but a half-configured one is an error.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if len(c.Ledger.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code, got %q", c.Ledger.DefaultCurrency)
	}
	if c.Ledger.DuplicateWindow <= 0 {
		return errors.New("DUPLICATE_WINDOW must be positive")
	}
	if c.Ledger.UndoTTL <= 0 {
		return errors.New("UNDO_TTL must be positive")
	}
	if c.Ledger.AmountTolerance.IsNegative() {
		return errors.New("DUPLICATE_AMOUNT_TOLERANCE must not be negative")
	}
	if c.Ledger.SnapshotPath == "" {
		return errors.New("LEDGER_SNAPSHOT_PATH must not be empty")
	}

	wa := c.WhatsApp
	if (wa.AccessToken != "" || wa.PhoneNumberID != "" || wa.VerifyToken != "") && !wa.Enabled() {
		switch {
		case wa.AccessToken == "":
			return errors.New("WHATSAPP_TOKEN must be provided")
		case wa.PhoneNumberID == "":
			return errors.New("WHATSAPP_PHONE_NUMBER_ID must be provided")
		default:
			return errors.New("META_VERIFY_TOKEN must be provided")
		}
	}
	if wa.Enabled() && (wa.BaseURL == "" || wa.APIVersion == "") {
		return errors.New("WHATSAPP_BASE_URL and WHATSAPP_API_VERSION must not be empty")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}
	if _, err := cron.ParseStandard(c.Reporting.CronSchedule); err != nil {
		return fmt.Errorf("REPORT_CRON_SCHEDULE is invalid: %w", err)
	}
	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}
	if c.Reporting.CashFlowDays <= 0 {
		return errors.New("CASHFLOW_DAYS must be positive")
	}

	switch c.AI.Provider {
	case "":
	case ProviderGemini:
		if c.AI.GeminiKey == "" {
			return errors.New("GEMINI_API_KEY must be provided when AI_PROVIDER is gemini")
		}
	case ProviderAnthropic:
		if c.AI.AnthropicKey == "" {
			return errors.New("ANTHROPIC_API_KEY must be provided when AI_PROVIDER is anthropic")
		}
	default:
		return fmt.Errorf("AI_PROVIDER %q is not supported", c.AI.Provider)
	}

	if c.MongoDB.Enabled() && c.MongoDB.DBName == "" {
		return errors.New("MONGODB_DB_NAME must not be empty")
	}

	return nil
}

// splitList parses a comma separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s must be a duration like 1h or 5s: %w", key, err)
	}
	return d
}

func (p *parser) decimal(key, fallback string) decimal.Decimal {
	value := getenvWithDefault(key, fallback)
	d, err := decimal.NewFromString(value)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s must be a number: %w", key, err)
	}
	return d
}

func (p *parser) int(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n
}
