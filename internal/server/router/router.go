package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/marketminder/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares. webhook is nil when
// WhatsApp is not configured; CORS is only enabled for a non-empty origin list.
func New(webhook *handlers.WebhookHandler, ledger *handlers.LedgerHandler, allowedOrigins []string, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))
	if len(allowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  allowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders: []string{"Content-Disposition"},
			MaxAge:        12 * time.Hour,
		}))
	}

	if webhook != nil {
		r.GET("/webhook", webhook.Verify)
		r.POST("/webhook", webhook.Receive)
		r.POST("/send-message", webhook.SendMessage)
	}

	api := r.Group("/api")
	{
		api.GET("/transactions", ledger.ListTransactions)
		api.POST("/transactions", ledger.AddTransaction)
		api.POST("/transactions/undo", ledger.UndoDelete)
		api.PUT("/transactions/:id", ledger.UpdateTransaction)
		api.DELETE("/transactions/:id", ledger.DeleteTransaction)
		api.GET("/inventory", ledger.Inventory)
		api.GET("/cost-basis", ledger.CostBasis)
		api.GET("/summary", ledger.Summary)
		api.GET("/cashflow", ledger.CashFlow)
		api.GET("/export", ledger.Export)
		api.POST("/export/sheets", ledger.ExportToSheets)
		if ledger.HasArchive() {
			api.GET("/reports", ledger.Reports)
		}
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if logger != nil {
		logger.Info("router initialized", zap.Bool("whatsapp", webhook != nil))
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
