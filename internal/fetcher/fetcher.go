// Package fetcher gathers data from the node, the indexer and the market APIs
// and turns it into chat messages.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cryptofather/crypto-bot/internal/btc"
	"github.com/cryptofather/crypto-bot/internal/exchange"
	"github.com/cryptofather/crypto-bot/internal/format"
	"github.com/cryptofather/crypto-bot/internal/indexer"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	// genesisTimestampMs is the time the genesis block was created, in milliseconds.
	genesisTimestampMs = 1231002905000

	LastBlocksCount   = 10
	HistoryCount      = 10
	ClientName        = "Crypto Bot Father"
	ProtocolVersion   = "1.4"
	invalidSymbolText = "Error: Invalid currency symbol"
)

type ChainService interface {
	GetNetworkInfo() (*btcjson.GetNetworkInfoResult, error)
	GetPeerInfo() ([]btcjson.GetPeerInfoResult, error)
	GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error)
	GetMiningInfo() (*btcjson.GetMiningInfoResult, error)
	GetRawTransactionVerbose(hash string) (*btcjson.TxRawResult, error)
	GetBlockVerbose(hash string) (*btcjson.GetBlockVerboseResult, error)
	BlockByHashOrHeight(hashOrHeight string) (*btcjson.GetBlockVerboseResult, error)
	LastBlocks(n int) ([]*btcjson.GetBlockVerboseResult, error)
}

type MarketService interface {
	LatestQuote(ctx context.Context, symbol string) (*exchange.Quote, error)
	Listings(ctx context.Context) ([]exchange.Quote, error)
	ExchangeRates(ctx context.Context, symbol string) (map[string]decimal.Decimal, error)
	MiningStats(ctx context.Context, id int) (*exchange.MiningStats, error)
}

type IndexerService interface {
	GetBalance(ctx context.Context, address string) (*indexer.Balance, error)
	GetHistory(ctx context.Context, address string, params *chaincfg.Params) ([]indexer.HistoryItem, error)
	ServerVersion(ctx context.Context, clientName, protocolVersion string) (string, error)
}

var (
	_ ChainService   = (*btc.BTCRPCService)(nil)
	_ MarketService  = (*exchange.Client)(nil)
	_ IndexerService = (*indexer.Client)(nil)
)

type Fetcher struct {
	chain   ChainService
	fees    btc.NetworkFeeFetcher
	market  MarketService
	indexer IndexerService
	network *chaincfg.Params
}

func NewFetcher(chain ChainService, fees btc.NetworkFeeFetcher, market MarketService, idx IndexerService, network *chaincfg.Params) *Fetcher {
	return &Fetcher{
		chain:   chain,
		fees:    fees,
		market:  market,
		indexer: idx,
		network: network,
	}
}

// BitcoinAge tells how long Bitcoin exists, counted from the genesis block.
func (f *Fetcher) BitcoinAge(now time.Time) string {
	age := format.TimestampToAge(now.UnixMilli() - genesisTimestampMs)
	return fmt.Sprintf("Bitcoin age: %d years, %d months, %d days, %dh %dm %ds, since the first mined block.",
		age.Years, age.Months, age.Days, age.Hours, age.Minutes, age.Seconds)
}

// BitcoinStatus never fails; unreachable parts are reported inline.
func (f *Fetcher) BitcoinStatus(ctx context.Context) string {
	var report format.StatusReport

	network, err := f.chain.GetNetworkInfo()
	if err != nil {
		log.Errorf("Status: %v", err)
	} else {
		report.Network = network
	}

	report.Peers, report.PeersErr = f.chain.GetPeerInfo()
	if report.PeersErr != nil {
		log.Errorf("Status: %v", report.PeersErr)
	}

	report.IndexerVersion, report.IndexerErr = f.indexer.ServerVersion(ctx, ClientName, ProtocolVersion)
	if report.IndexerErr != nil {
		log.Errorf("Status: indexer server version: %v", report.IndexerErr)
	}
	return format.Status(report)
}

func (f *Fetcher) BitcoinNetworkInfo() (string, error) {
	info, err := f.chain.GetNetworkInfo()
	if err != nil {
		return "", err
	}
	return format.NetworkInfo(info), nil
}

func (f *Fetcher) BitcoinInfo(ctx context.Context) (string, error) {
	chain, err := f.chain.GetBlockChainInfo()
	if err != nil {
		return "", err
	}
	mining, err := f.chain.GetMiningInfo()
	if err != nil {
		return "", err
	}
	stats, err := f.market.MiningStats(ctx, exchange.WhatToMineBitcoinID)
	if err != nil {
		return "", err
	}
	best, err := f.chain.GetBlockVerbose(chain.BestBlockHash)
	if err != nil {
		return "", err
	}
	return format.ChainStats(chain, mining, stats, best), nil
}

func (f *Fetcher) EstimateFee() (string, error) {
	fee, err := f.fees.GetNetworkFee()
	if err != nil {
		return "", err
	}
	return format.Fees(fee), nil
}

func (f *Fetcher) Transaction(hash string) (string, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !btc.IsSha256(hash) {
		return "Error: Invalid transaction hash", nil
	}
	tx, err := f.chain.GetRawTransactionVerbose(hash)
	if err != nil {
		return "", err
	}
	if tx.BlockHash == "" {
		return format.Transaction(hash, tx, nil), nil
	}
	block, err := f.chain.GetBlockVerbose(tx.BlockHash)
	if err != nil {
		return "", err
	}
	return format.Transaction(hash, tx, block), nil
}

func (f *Fetcher) Block(hashOrHeight string) (string, error) {
	block, err := f.chain.BlockByHashOrHeight(strings.ToLower(hashOrHeight))
	if err != nil {
		return "", err
	}
	return format.Block(block), nil
}

func (f *Fetcher) LastBlocks() (string, error) {
	blocks, err := f.chain.LastBlocks(LastBlocksCount)
	if err != nil {
		return "", err
	}
	return format.LastBlocks(blocks), nil
}

// Address shows the balance of address as reported by the indexer.
func (f *Fetcher) Address(ctx context.Context, address string) (string, error) {
	address = strings.TrimSpace(address)
	balance, err := f.indexer.GetBalance(ctx, address)
	if err != nil {
		if text, ok := indexerErrorText(err); ok {
			return text, nil
		}
		return "", err
	}
	return format.AddressBalance(address, balance), nil
}

// AddressHistory shows the most recent transactions of address.
func (f *Fetcher) AddressHistory(ctx context.Context, address string) (string, error) {
	address = strings.TrimSpace(address)
	history, err := f.indexer.GetHistory(ctx, address, f.network)
	if err != nil {
		if text, ok := indexerErrorText(err); ok {
			return text, nil
		}
		return "", err
	}
	if len(history) > HistoryCount {
		history = history[len(history)-HistoryCount:]
	}
	return format.AddressHistory(address, history), nil
}

func indexerErrorText(err error) (string, bool) {
	var rpcErr *indexer.RPCError
	switch {
	case errors.As(err, &rpcErr):
		return "Error: " + rpcErr.Message, true
	case errors.Is(err, indexer.ErrInvalidAddress):
		return "Error: Invalid address", true
	case errors.Is(err, indexer.ErrTimeout):
		return "Error: The indexer did not respond in time, please try again later", true
	default:
		return "", false
	}
}

// PriceQuotes shows the latest price of symbol in fiat and crypto.
func (f *Fetcher) PriceQuotes(ctx context.Context, symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	quote, rates, err := f.quoteAndRates(ctx, symbol)
	if err != nil {
		return marketErrorText(err)
	}
	return format.PriceOverview(symbol, quote, rates), nil
}

func (f *Fetcher) MarketStats(ctx context.Context, symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	quote, rates, err := f.quoteAndRates(ctx, symbol)
	if err != nil {
		return marketErrorText(err)
	}
	return format.MarketStats(symbol, quote, rates), nil
}

func (f *Fetcher) MarketOverview(ctx context.Context) (string, error) {
	quotes, err := f.market.Listings(ctx)
	if err != nil {
		return marketErrorText(err)
	}
	return format.MarketOverview(quotes), nil
}

func (f *Fetcher) quoteAndRates(ctx context.Context, symbol string) (*exchange.Quote, map[string]decimal.Decimal, error) {
	quote, err := f.market.LatestQuote(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	rates, err := f.market.ExchangeRates(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	return quote, rates, nil
}

// marketErrorText renders the errors a user can act on, other errors are returned as is.
func marketErrorText(err error) (string, error) {
	var apiErr *exchange.APIError
	var statusErr *exchange.StatusError
	switch {
	case errors.Is(err, exchange.ErrInvalidSymbol):
		return invalidSymbolText, nil
	case errors.As(err, &statusErr) && statusErr.StatusCode == 400:
		return invalidSymbolText, nil
	case errors.Is(err, exchange.ErrSymbolNotFound):
		return "Error: Symbol you searched for is not found.", nil
	case errors.As(err, &apiErr):
		return "Error: " + apiErr.Error(), nil
	default:
		return "", err
	}
}
