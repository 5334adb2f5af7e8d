package format

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/cryptofather/crypto-bot/internal/btc"
	"github.com/cryptofather/crypto-bot/internal/exchange"
	"github.com/cryptofather/crypto-bot/internal/indexer"
	"github.com/shopspring/decimal"
)

const maxStatusPeers = 3

// StatusReport collects the parts of the status message; a nil part renders its error line.
type StatusReport struct {
	Network        *btcjson.GetNetworkInfoResult
	Peers          []btcjson.GetPeerInfoResult
	PeersErr       error
	IndexerVersion string
	IndexerErr     error
}

func Status(r StatusReport) string {
	var b strings.Builder
	if r.Network != nil {
		fmt.Fprintf(&b, "\nBitcoin Core version: %s\nProtocol version: %d\n\n*Peer info*\nPeers connected: %d",
			r.Network.SubVersion, r.Network.ProtocolVersion, r.Network.Connections)
	} else {
		b.WriteString("Error: Could not fetch network info!\n")
	}

	if r.PeersErr != nil {
		b.WriteString("Error: Could not fetch peer info!\n")
	} else {
		b.WriteString("\nFirst three peers:")
		if len(r.Peers) == 0 {
			b.WriteString("Warning: No peers connected...")
		}
		for i := 0; i < len(r.Peers) && i < maxStatusPeers; i++ {
			peer := r.Peers[i]
			fmt.Fprintf(&b, "\nPing: %s ms\nLast send: %s\nLast receive: %s\n---",
				Float(peer.PingTime*1000, 2, 2), PrintUnix(peer.LastSend), PrintUnix(peer.LastRecv))
		}
	}

	if r.IndexerErr != nil {
		b.WriteString("\nError: Could not fetch indexer info!")
	} else {
		fmt.Fprintf(&b, "\n\n*Indexer*\nServer version: %s", r.IndexerVersion)
	}
	return b.String()
}

func NetworkInfo(info *btcjson.GetNetworkInfoResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, `
*Bitcoin Network Info*
Bitcoin server version: %d
Protocol version: %d
Connections: %d
P2P active: %t
Minimum relay fee:  %s BTC/kB
Minimum incremental fee: %s BTC/kB
Networks:`,
		info.Version, info.ProtocolVersion, info.Connections, info.NetworkActive,
		Float(info.RelayFee, 0, 8), Float(info.IncrementalFee, 0, 8))
	for _, network := range info.Networks {
		fmt.Fprintf(&b, "\nName: %s\nOnly net: %t\nReachable: %t\n-----------------------",
			network.Name, network.Limited, network.Reachable)
	}
	return b.String()
}

// ChainStats combines chain, mining and WhatToMine figures.
func ChainStats(chain *btcjson.GetBlockChainInfoResult, mining *btcjson.GetMiningInfoResult,
	stats *exchange.MiningStats, best *btcjson.GetBlockVerboseResult) string {
	hashrate := decimal.NewFromFloat(float64(mining.NetworkHashPS)).Div(decimal.New(1, 12))
	blockTime := stats.BlockTime.IntPart()

	return fmt.Sprintf(`*General* 🖥
Last block: %s
Median time current best block: %d
Best block height: [%d](%s/block/%s)
Net Hashrate: %s Thash/s
Mempool size: %d
Market capital: %s

*Difficulty* 🤯
Difficulty: %s
Difficulty 24 hours avg: %s
Difficulty 3 days avg: %s
Difficulty 7 days avg: %s

*Reward* 🤑
Block time: %dm %ds
Block reward: %s BTC
Block reward 24H avg: %s BTC
Block reward 3D avg: %s BTC

*Exchange* 💱
Exchange rate: %s BTC/USD
Exchange rate 24H avg: %s BTC/USD
Exchange rate 3D avg: %s BTC/USD
Exchange rate 7D avg: %s BTC/USD`,
		PrintUnix(chain.MedianTime),
		chain.MedianTime,
		best.Height, ExplorerURL, chain.BestBlockHash,
		Fixed(hashrate, 2),
		mining.PooledTx,
		stats.MarketCapText(),
		Float(chain.Difficulty, 0, 0),
		Number(stats.Difficulty24, 0, 0),
		Number(stats.Difficulty3, 0, 0),
		Number(stats.Difficulty7, 0, 0),
		blockTime/60, blockTime%60,
		stats.BlockReward.String(),
		stats.BlockReward24.String(),
		stats.BlockReward3.String(),
		Fixed(stats.ExchangeRate, 2),
		Fixed(stats.ExchangeRate24, 2),
		Fixed(stats.ExchangeRate3, 2),
		Fixed(stats.ExchangeRate7, 2),
	)
}

// Transaction describes a transaction and the block it was mined in; block is nil for mempool transactions.
func Transaction(hash string, tx *btcjson.TxRawResult, block *btcjson.GetBlockVerboseResult) string {
	text := fmt.Sprintf("*Transaction details for* [%s](%s/tx/%s)\nConfirmations: %d",
		hash, ExplorerURL, hash, tx.Confirmations)
	if block == nil {
		return text + "\nStatus: unconfirmed (in mempool)"
	}
	return text + fmt.Sprintf("\nDate: %s\nIn Block Height: [%d](%s/block/%s) with %d transactions",
		PrintUnix(tx.Time), block.Height, ExplorerURL, tx.BlockHash, len(block.Tx))
}

func Block(block *btcjson.GetBlockVerboseResult) string {
	return fmt.Sprintf(`
*🧱 Height:* %d
*Hash:* %s
*Confirmations:* %d
*Size:* %d bytes
*Transactions:* %d
*Bits:* %s
*Nonce:* %d
*Time:* %s
*Version:* %d
*Difficulty:* %s
*MerkleRoot:* %s
[View Block](%s/block/%s)`,
		block.Height, block.Hash, block.Confirmations, block.Size, len(block.Tx), block.Bits,
		block.Nonce, PrintUnix(block.Time), block.Version, Float(block.Difficulty, 0, 2),
		block.MerkleRoot, ExplorerURL, block.Hash)
}

func LastBlocks(blocks []*btcjson.GetBlockVerboseResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Last %d blocks* 🧱", len(blocks))
	for _, block := range blocks {
		fmt.Fprintf(&b, "\n*Height:* %d\n*Time:* %s\n*Size:* %d bytes\n*Difficulty:* %s\n[View Block](%s/block/%s)\n------------------------------------------",
			block.Height, PrintUnix(block.Time), block.Size, Float(block.Difficulty, 0, 3), ExplorerURL, block.Hash)
	}
	return b.String()
}

func AddressBalance(address string, balance *indexer.Balance) string {
	return fmt.Sprintf("*Address* [%s](%s/address/%s)\n*Confirmed balance:* %s BTC\n*Unconfirmed balance:* %s BTC",
		address, ExplorerURL, address, Satoshis(balance.Confirmed), Satoshis(balance.Unconfirmed))
}

// AddressHistory lists history newest first.
func AddressHistory(address string, history []indexer.HistoryItem) string {
	if len(history) == 0 {
		return "No transactions found (yet)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Last %d transactions*", len(history))
	for i := len(history) - 1; i >= 0; i-- {
		item := history[i]
		height := "unconfirmed"
		if item.Height > 0 {
			height = fmt.Sprint(item.Height)
		}
		fmt.Fprintf(&b, "\nHash: %s\nHeight: %s\n[View transaction](%s/tx/%s)\n-----------------------------",
			item.TxHash, height, ExplorerURL, item.TxHash)
	}
	return b.String()
}

func Fees(fee *btc.NetworkFee) string {
	return fmt.Sprintf("*Estimated fees* (%s)\nNext block: %d sat/vB\nHalf hour (3 blocks): %d sat/vB\nHour (6 blocks): %d sat/vB",
		fee.Source, fee.FastestFee, fee.HalfHourFee, fee.HourFee)
}
