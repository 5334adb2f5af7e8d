package http

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/cryptofather/crypto-bot/internal/state"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// UpdateSink receives Telegram updates posted to the webhook.
type UpdateSink interface {
	Enqueue(update tgbotapi.Update) bool
}

// MarketPage produces the texts of the /test page.
type MarketPage interface {
	PriceQuotes(ctx context.Context, symbol string) (string, error)
	MarketStats(ctx context.Context, symbol string) (string, error)
	MarketOverview(ctx context.Context) (string, error)
}

type HTTPServer struct {
	port   string
	secret string
	health state.HealthChecker
	bot    UpdateSink
	market MarketPage
}

func NewHTTPServer(port, secret string, health state.HealthChecker, bot UpdateSink, market MarketPage) *HTTPServer {
	return &HTTPServer{
		port:   port,
		secret: secret,
		health: health,
		bot:    bot,
		market: market,
	}
}

// WebhookPath is the route Telegram posts updates to.
func (hs *HTTPServer) WebhookPath() string {
	return "/telegram/bot" + hs.secret
}

func (hs *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", handleWelcome)
	r.GET("/about", handleAbout)
	r.GET("/health", hs.handleHealth)
	r.GET("/test", hs.handleTestPage)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST(hs.WebhookPath(), hs.handleTelegramUpdate)
	return r
}

// Start serves until ctx is done and then shuts down gracefully.
func (hs *HTTPServer) Start(ctx context.Context) {
	srv := &http.Server{
		Addr:              ":" + hs.port,
		Handler:           hs.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("HTTP server is running on port %s", hs.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("HTTP server is stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown: %v", err)
	}
}

func handleWelcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to Crypto bot father"})
}

func handleAbout(c *gin.Context) {
	c.JSON(http.StatusOK, about)
}

func (hs *HTTPServer) handleHealth(c *gin.Context) {
	if hs.health.IsHealthy() {
		c.JSON(http.StatusOK, HealthResponse{Result: "OK"})
		return
	}
	c.JSON(http.StatusInternalServerError, HealthResponse{Result: "NOK"})
}

func (hs *HTTPServer) handleTelegramUpdate(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		log.Warnf("Invalid Telegram update: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}
	hs.bot.Enqueue(update)
	c.Status(http.StatusOK)
}

func (hs *HTTPServer) handleTestPage(c *gin.Context) {
	ctx := c.Request.Context()
	sections := []struct {
		title string
		fetch func() (string, error)
	}{
		{"Quote BCH", func() (string, error) { return hs.market.PriceQuotes(ctx, "BCH") }},
		{"Quote BTC", func() (string, error) { return hs.market.PriceQuotes(ctx, "BTC") }},
		{"Market statistics BCH", func() (string, error) { return hs.market.MarketStats(ctx, "BCH") }},
		{"Market Overview", func() (string, error) { return hs.market.MarketOverview(ctx) }},
	}

	var b strings.Builder
	for _, s := range sections {
		text, err := s.fetch()
		if err != nil {
			log.Errorf("Test page %s: %v", s.title, err)
			c.String(http.StatusInternalServerError, "Internal error")
			return
		}
		fmt.Fprintf(&b, "<h2>%s</h2>\n<pre><code>%s</code></pre>\n", s.title, html.EscapeString(text))
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(b.String()))
}
