package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cryptofather/crypto-bot/internal/bot"
	"github.com/cryptofather/crypto-bot/internal/btc"
	"github.com/cryptofather/crypto-bot/internal/config"
	"github.com/cryptofather/crypto-bot/internal/exchange"
	"github.com/cryptofather/crypto-bot/internal/fetcher"
	"github.com/cryptofather/crypto-bot/internal/http"
	"github.com/cryptofather/crypto-bot/internal/indexer"
	"github.com/cryptofather/crypto-bot/internal/metrics"
	"github.com/cryptofather/crypto-bot/internal/state"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	State            *state.State
	IndexerClient    *indexer.Client
	MetricsCollector *metrics.Collector
	HTTPServer       *http.HTTPServer
	Bot              *bot.Bot
}

func NewApplication() *Application {
	config.InitConfig()
	if config.AppConfig.TelegramToken == "" {
		log.Fatal("Provide your Telegram token, by setting the TELEGRAM_TOKEN environment variable first!")
	}

	// create bitcoin client using bitcoind json-rpc
	btcClient, err := btc.NewNodeClient(config.AppConfig.BTCRPCAddr(), config.AppConfig.BTCRPC_USER, config.AppConfig.BTCRPC_PASS)
	if err != nil {
		log.Fatalf("Failed to start bitcoin client: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(config.AppConfig.TelegramToken)
	if err != nil {
		log.Fatalf("Failed to create Telegram bot: %v", err)
	}
	log.Infof("Authorized on Telegram account %s", botAPI.Self.UserName)

	appState := state.InitializeState()
	network := config.AppConfig.BTCNetwork()

	indexerClient := indexer.NewClient(config.AppConfig.FulcrumAddr(),
		indexer.WithCallTimeout(config.AppConfig.IndexerCallTimeout),
		indexer.WithDialTimeout(config.AppConfig.IndexerDialTimeout),
		indexer.WithErrorReporter(appState),
		indexer.WithPublisher(appState.EventBus),
	)
	btcRPCService := btc.NewBTCRPCService(btcClient)
	feeFetcher := btc.NewMemPoolFeeFetcher(btcRPCService, network)
	exchangeClient := exchange.NewClient(config.AppConfig.CoinMarketCapToken,
		exchange.WithTimeout(config.AppConfig.MarketRequestTimeout),
		exchange.WithRateLimit(config.AppConfig.MarketRateLimit, config.AppConfig.MarketRateBurst),
	)
	dataFetcher := fetcher.NewFetcher(btcRPCService, feeFetcher, exchangeClient, indexerClient, network)

	webhookPath := "/telegram/bot" + appState.TelegramSecret()
	telegramBot := bot.NewBot(botAPI, dataFetcher, appState, appState.EventBus, config.AppConfig.TelegramBotURL+webhookPath)
	httpServer := http.NewHTTPServer(config.AppConfig.HTTPPort, appState.TelegramSecret(), appState, telegramBot, dataFetcher)

	return &Application{
		State:            appState,
		IndexerClient:    indexerClient,
		MetricsCollector: metrics.NewCollector(appState.EventBus),
		HTTPServer:       httpServer,
		Bot:              telegramBot,
	}
}

func (app *Application) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.MetricsCollector.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.IndexerClient.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Bot.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.HTTPServer.Start(ctx)
	}()

	<-stop
	log.Info("Receiving exit signal...")

	cancel()

	wg.Wait()
	log.Info("Server stopped")
}

func main() {
	app := NewApplication()
	app.Run()
}
