package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cryptofather/crypto-bot/internal/btc"
	"github.com/cryptofather/crypto-bot/internal/exchange"
	"github.com/cryptofather/crypto-bot/internal/indexer"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTxHash = "f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16"

type fakeChain struct {
	networkErr error
	blocks     map[string]*btcjson.GetBlockVerboseResult
	txs        map[string]*btcjson.TxRawResult
	lastBlocks int
}

func (c *fakeChain) GetNetworkInfo() (*btcjson.GetNetworkInfoResult, error) {
	if c.networkErr != nil {
		return nil, c.networkErr
	}
	return &btcjson.GetNetworkInfoResult{SubVersion: "/Satoshi:27.0.0/", Version: 270000, Connections: 4}, nil
}

func (c *fakeChain) GetPeerInfo() ([]btcjson.GetPeerInfoResult, error) {
	return []btcjson.GetPeerInfoResult{{PingTime: 0.05}}, nil
}

func (c *fakeChain) GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error) {
	return &btcjson.GetBlockChainInfoResult{BestBlockHash: "best", MedianTime: 1700000000}, nil
}

func (c *fakeChain) GetMiningInfo() (*btcjson.GetMiningInfoResult, error) {
	return &btcjson.GetMiningInfoResult{PooledTx: 12}, nil
}

func (c *fakeChain) GetRawTransactionVerbose(hash string) (*btcjson.TxRawResult, error) {
	tx, ok := c.txs[hash]
	if !ok {
		return nil, errors.New("failed to get raw transaction")
	}
	return tx, nil
}

func (c *fakeChain) GetBlockVerbose(hash string) (*btcjson.GetBlockVerboseResult, error) {
	block, ok := c.blocks[hash]
	if !ok {
		return nil, errors.New("failed to get block")
	}
	return block, nil
}

func (c *fakeChain) BlockByHashOrHeight(hashOrHeight string) (*btcjson.GetBlockVerboseResult, error) {
	return c.GetBlockVerbose(hashOrHeight)
}

func (c *fakeChain) LastBlocks(n int) ([]*btcjson.GetBlockVerboseResult, error) {
	c.lastBlocks = n
	return []*btcjson.GetBlockVerboseResult{{Height: 2}, {Height: 1}}, nil
}

type fakeFees struct{}

func (fakeFees) GetNetworkFee() (*btc.NetworkFee, error) {
	return &btc.NetworkFee{FastestFee: 9, HalfHourFee: 5, HourFee: 2, Source: "bitcoind"}, nil
}

type fakeMarket struct {
	quoteErr error
	ratesErr error
}

func (m *fakeMarket) LatestQuote(_ context.Context, symbol string) (*exchange.Quote, error) {
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	return &exchange.Quote{Name: "Bitcoin Cash", Symbol: symbol, CMCRank: 18,
		Quote: map[string]exchange.PriceDetail{"USD": {Price: decimal.NewFromInt(250)}}}, nil
}

func (m *fakeMarket) Listings(context.Context) ([]exchange.Quote, error) {
	return []exchange.Quote{{Name: "Bitcoin", Symbol: "BTC", CMCRank: 1}}, nil
}

func (m *fakeMarket) ExchangeRates(context.Context, string) (map[string]decimal.Decimal, error) {
	if m.ratesErr != nil {
		return nil, m.ratesErr
	}
	return map[string]decimal.Decimal{"EUR": decimal.RequireFromString("230.5")}, nil
}

func (m *fakeMarket) MiningStats(_ context.Context, id int) (*exchange.MiningStats, error) {
	if id != exchange.WhatToMineBitcoinID {
		return nil, fmt.Errorf("unexpected coin id %d", id)
	}
	return &exchange.MiningStats{BlockTime: decimal.NewFromInt(600), MarketCap: []byte(`"$1"`)}, nil
}

type fakeIndexer struct {
	balanceErr error
	history    []indexer.HistoryItem
	versionErr error
}

func (i *fakeIndexer) GetBalance(_ context.Context, address string) (*indexer.Balance, error) {
	if i.balanceErr != nil {
		return nil, i.balanceErr
	}
	return &indexer.Balance{Confirmed: 123456789, Unconfirmed: 0}, nil
}

func (i *fakeIndexer) GetHistory(_ context.Context, address string, params *chaincfg.Params) ([]indexer.HistoryItem, error) {
	if _, err := indexer.ScriptHash(address, params); err != nil {
		return nil, err
	}
	return i.history, nil
}

func (i *fakeIndexer) ServerVersion(context.Context, string, string) (string, error) {
	if i.versionErr != nil {
		return "", i.versionErr
	}
	return "Fulcrum 1.9.8", nil
}

func newTestFetcher() (*Fetcher, *fakeChain, *fakeMarket, *fakeIndexer) {
	chain := &fakeChain{
		blocks: map[string]*btcjson.GetBlockVerboseResult{
			"best":  {Height: 840000},
			"00aa":  {Height: 170, Hash: "00aa", Tx: []string{"a", "b", "c"}},
			"00bad": {Height: 1},
		},
		txs: map[string]*btcjson.TxRawResult{
			testTxHash: {Confirmations: 100, BlockHash: "00aa", Time: 1231731025},
		},
	}
	market := &fakeMarket{}
	idx := &fakeIndexer{}
	return NewFetcher(chain, fakeFees{}, market, idx, &chaincfg.MainNetParams), chain, market, idx
}

func TestBitcoinAge(t *testing.T) {
	f, _, _, _ := newTestFetcher()
	now := time.UnixMilli(genesisTimestampMs + ((((365*24)+1)*60+2)*60+3)*1000)
	assert.Equal(t, "Bitcoin age: 1 years, 0 months, 5 days, 1h 2m 3s, since the first mined block.", f.BitcoinAge(now))
}

func TestBitcoinStatus(t *testing.T) {
	f, chain, _, idx := newTestFetcher()
	text := f.BitcoinStatus(context.Background())
	assert.Contains(t, text, "Bitcoin Core version: /Satoshi:27.0.0/")
	assert.Contains(t, text, "Server version: Fulcrum 1.9.8")

	chain.networkErr = errors.New("connection refused")
	idx.versionErr = indexer.ErrTimeout
	text = f.BitcoinStatus(context.Background())
	assert.Contains(t, text, "Error: Could not fetch network info!")
	assert.Contains(t, text, "Error: Could not fetch indexer info!")
	assert.Contains(t, text, "Ping: 50.00 ms")
}

func TestBitcoinNetworkInfo(t *testing.T) {
	f, chain, _, _ := newTestFetcher()
	text, err := f.BitcoinNetworkInfo()
	require.NoError(t, err)
	assert.Contains(t, text, "Bitcoin server version: 270000")

	chain.networkErr = errors.New("connection refused")
	_, err = f.BitcoinNetworkInfo()
	assert.Error(t, err)
}

func TestBitcoinInfo(t *testing.T) {
	f, _, _, _ := newTestFetcher()
	text, err := f.BitcoinInfo(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "Best block height: [840000]")
	assert.Contains(t, text, "Mempool size: 12")
	assert.Contains(t, text, "Block time: 10m 0s")
}

func TestEstimateFee(t *testing.T) {
	f, _, _, _ := newTestFetcher()
	text, err := f.EstimateFee()
	require.NoError(t, err)
	assert.Contains(t, text, "Next block: 9 sat/vB")
}

func TestTransaction(t *testing.T) {
	f, _, _, _ := newTestFetcher()
	text, err := f.Transaction(" " + testTxHash + " ")
	require.NoError(t, err)
	assert.Contains(t, text, "Confirmations: 100")
	assert.Contains(t, text, "with 3 transactions")

	text, err = f.Transaction("xyz")
	require.NoError(t, err)
	assert.Equal(t, "Error: Invalid transaction hash", text)

	_, err = f.Transaction("0000000000000000000000000000000000000000000000000000000000000000")
	assert.Error(t, err)
}

func TestBlockAndLastBlocks(t *testing.T) {
	f, chain, _, _ := newTestFetcher()
	text, err := f.Block("00AA")
	require.NoError(t, err)
	assert.Contains(t, text, "*🧱 Height:* 170")

	text, err = f.LastBlocks()
	require.NoError(t, err)
	assert.Contains(t, text, "*Last 2 blocks*")
	assert.Equal(t, LastBlocksCount, chain.lastBlocks)
}

func TestAddress(t *testing.T) {
	f, _, _, idx := newTestFetcher()
	text, err := f.Address(context.Background(), "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	require.NoError(t, err)
	assert.Contains(t, text, "*Confirmed balance:* 1.23456789 BTC")

	idx.balanceErr = &indexer.RPCError{Code: 1, Message: "invalid address"}
	text, err = f.Address(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, "Error: invalid address", text)

	idx.balanceErr = fmt.Errorf("call: %w", indexer.ErrTimeout)
	text, err = f.Address(context.Background(), "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	require.NoError(t, err)
	assert.Contains(t, text, "did not respond in time")

	idx.balanceErr = errors.New("connection refused")
	_, err = f.Address(context.Background(), "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	assert.Error(t, err)
}

func TestAddressHistory(t *testing.T) {
	f, _, _, idx := newTestFetcher()
	for i := 0; i < 15; i++ {
		idx.history = append(idx.history, indexer.HistoryItem{Height: int64(100 + i), TxHash: fmt.Sprintf("tx%02d", i)})
	}

	text, err := f.AddressHistory(context.Background(), "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	require.NoError(t, err)
	assert.Contains(t, text, "*Last 10 transactions*")
	assert.Contains(t, text, "tx14")
	assert.NotContains(t, text, "tx04")

	text, err = f.AddressHistory(context.Background(), "not-an-address")
	require.NoError(t, err)
	assert.Equal(t, "Error: Invalid address", text)
}

func TestPriceQuotes(t *testing.T) {
	f, _, market, _ := newTestFetcher()
	text, err := f.PriceQuotes(context.Background(), "bch")
	require.NoError(t, err)
	assert.Contains(t, text, "*Current prices of Bitcoin Cash (BCH) in fiat*")
	assert.Contains(t, text, "230.50 EUR")

	market.quoteErr = exchange.ErrInvalidSymbol
	text, err = f.PriceQuotes(context.Background(), "b$c")
	require.NoError(t, err)
	assert.Equal(t, "Error: Invalid currency symbol", text)

	market.quoteErr = exchange.ErrSymbolNotFound
	text, err = f.MarketStats(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Equal(t, "Error: Symbol you searched for is not found.", text)

	market.quoteErr = &exchange.APIError{Message: "API key missing."}
	text, err = f.PriceQuotes(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, "Error: Something went wrong with getting the data from CoinMarketCap. With error message: API key missing.", text)

	market.quoteErr = nil
	market.ratesErr = &exchange.StatusError{Upstream: "coinbase", StatusCode: 400}
	text, err = f.PriceQuotes(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, "Error: Invalid currency symbol", text)

	market.ratesErr = errors.New("dial tcp: i/o timeout")
	_, err = f.PriceQuotes(context.Background(), "btc")
	assert.Error(t, err)
}

func TestMarketStatsAndOverview(t *testing.T) {
	f, _, _, _ := newTestFetcher()
	text, err := f.MarketStats(context.Background(), "BCH")
	require.NoError(t, err)
	assert.Contains(t, text, "Rank: #18")

	text, err = f.MarketOverview(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "(BTC)")
}
