package config

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var AppConfig Config

func InitConfig() {
	// .env is optional, real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("Failed to load .env file: %v", err)
	}

	viper.AutomaticEnv()

	// Default config
	viper.SetDefault("TELEGRAM_TOKEN", "")
	viper.SetDefault("TELEGRAM_BOT_URL", "https://cryptofather.melroy.org")
	viper.SetDefault("PORT", "3007")
	viper.SetDefault("HTTP_PORT", "")
	viper.SetDefault("BITCOIN_RPC_HOST", "localhost")
	viper.SetDefault("BITCOIN_RPC_PORT", "8332")
	viper.SetDefault("BITCOIN_RPC_USERNAME", "bitcoin")
	viper.SetDefault("BITCOIN_RPC_PASSWORD", "xyz")
	viper.SetDefault("BTC_NETWORK_TYPE", "mainnet")
	viper.SetDefault("FULCRUM_HOST", "localhost")
	viper.SetDefault("FULCRUM_PORT", "50001")
	viper.SetDefault("INDEXER_CALL_TIMEOUT", "10s")
	viper.SetDefault("INDEXER_DIAL_TIMEOUT", "5s")
	viper.SetDefault("COINMARKETCAP_API_TOKEN", "")
	viper.SetDefault("MARKET_REQUEST_TIMEOUT", "10s")
	viper.SetDefault("MARKET_RATE_LIMIT", 1.0)
	viper.SetDefault("MARKET_RATE_BURST", 5)
	viper.SetDefault("LOG_LEVEL", "info")

	logLevel, err := logrus.ParseLevel(strings.ToLower(viper.GetString("LOG_LEVEL")))
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}

	httpPort := viper.GetString("HTTP_PORT")
	if httpPort == "" {
		httpPort = viper.GetString("PORT")
	}

	AppConfig = Config{
		TelegramToken:        viper.GetString("TELEGRAM_TOKEN"),
		TelegramBotURL:       strings.TrimRight(viper.GetString("TELEGRAM_BOT_URL"), "/"),
		HTTPPort:             httpPort,
		BTCRPCHost:           viper.GetString("BITCOIN_RPC_HOST"),
		BTCRPCPort:           viper.GetString("BITCOIN_RPC_PORT"),
		BTCRPC_USER:          viper.GetString("BITCOIN_RPC_USERNAME"),
		BTCRPC_PASS:          viper.GetString("BITCOIN_RPC_PASSWORD"),
		BTCNetworkType:       viper.GetString("BTC_NETWORK_TYPE"),
		FulcrumHost:          viper.GetString("FULCRUM_HOST"),
		FulcrumPort:          viper.GetString("FULCRUM_PORT"),
		IndexerCallTimeout:   viper.GetDuration("INDEXER_CALL_TIMEOUT"),
		IndexerDialTimeout:   viper.GetDuration("INDEXER_DIAL_TIMEOUT"),
		CoinMarketCapToken:   viper.GetString("COINMARKETCAP_API_TOKEN"),
		MarketRequestTimeout: viper.GetDuration("MARKET_REQUEST_TIMEOUT"),
		MarketRateLimit:      viper.GetFloat64("MARKET_RATE_LIMIT"),
		MarketRateBurst:      viper.GetInt("MARKET_RATE_BURST"),
		LogLevel:             logLevel,
	}

	if AppConfig.IndexerCallTimeout <= 0 {
		logrus.Warnf("Indexer call timeout %v is invalid, set to 10s", AppConfig.IndexerCallTimeout)
		AppConfig.IndexerCallTimeout = 10 * time.Second
	}
	if AppConfig.IndexerDialTimeout <= 0 {
		logrus.Warnf("Indexer dial timeout %v is invalid, set to 5s", AppConfig.IndexerDialTimeout)
		AppConfig.IndexerDialTimeout = 5 * time.Second
	}
	if AppConfig.CoinMarketCapToken == "" {
		logrus.Warnf("COINMARKETCAP_API_TOKEN is empty, price commands will fail")
	}

	logrus.Infof("Init config, HTTPPort %s, BTCRPC %s, Fulcrum %s, IndexerCallTimeout %v",
		AppConfig.HTTPPort, AppConfig.BTCRPCAddr(), AppConfig.FulcrumAddr(), AppConfig.IndexerCallTimeout)

	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(AppConfig.LogLevel)
	gin.SetMode(GinMode(AppConfig.LogLevel))
}

// GinMode keeps gin's route dump and request debugging for debug and trace logging only.
func GinMode(level logrus.Level) string {
	if level >= logrus.DebugLevel {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}

type Config struct {
	TelegramToken        string
	TelegramBotURL       string
	HTTPPort             string
	BTCRPCHost           string
	BTCRPCPort           string
	BTCRPC_USER          string
	BTCRPC_PASS          string
	BTCNetworkType       string
	FulcrumHost          string
	FulcrumPort          string
	IndexerCallTimeout   time.Duration
	IndexerDialTimeout   time.Duration
	CoinMarketCapToken   string
	MarketRequestTimeout time.Duration
	MarketRateLimit      float64
	MarketRateBurst      int
	LogLevel             logrus.Level
}

// BTCRPCAddr is the host:port of the bitcoind JSON-RPC endpoint.
func (c Config) BTCRPCAddr() string {
	return net.JoinHostPort(c.BTCRPCHost, c.BTCRPCPort)
}

// FulcrumAddr is the host:port of the indexer TCP endpoint.
func (c Config) FulcrumAddr() string {
	return net.JoinHostPort(c.FulcrumHost, c.FulcrumPort)
}

// BTCNetwork maps BTC_NETWORK_TYPE to chain parameters, defaulting to mainnet.
func (c Config) BTCNetwork() *chaincfg.Params {
	return GetBTCNetwork(c.BTCNetworkType)
}

func GetBTCNetwork(networkType string) *chaincfg.Params {
	switch strings.ToLower(networkType) {
	case "", "mainnet":
		return &chaincfg.MainNetParams
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	case "signet":
		return &chaincfg.SigNetParams
	default:
		logrus.Warnf("Unknown BTC network type %q, fall back to mainnet", networkType)
		return &chaincfg.MainNetParams
	}
}
