package btc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	log "github.com/sirupsen/logrus"
)

var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// NodeClient is the subset of the bitcoind JSON-RPC API the bot uses.
// *rpcclient.Client satisfies it.
type NodeClient interface {
	GetNetworkInfo() (*btcjson.GetNetworkInfoResult, error)
	GetPeerInfo() ([]btcjson.GetPeerInfoResult, error)
	GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error)
	GetMiningInfo() (*btcjson.GetMiningInfoResult, error)
	GetRawTransactionVerbose(txHash *chainhash.Hash) (*btcjson.TxRawResult, error)
	GetBlockVerbose(blockHash *chainhash.Hash) (*btcjson.GetBlockVerboseResult, error)
	GetBlockHash(blockHeight int64) (*chainhash.Hash, error)
	GetBlockCount() (int64, error)
	EstimateSmartFee(confTarget int64, mode *btcjson.EstimateSmartFeeMode) (*btcjson.EstimateSmartFeeResult, error)
}

var _ NodeClient = (*rpcclient.Client)(nil)

// NewNodeClient connects to bitcoind over HTTP POST mode, the only mode bitcoind supports.
func NewNodeClient(host, user, pass string) (*rpcclient.Client, error) {
	connConfig := &rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	return rpcclient.New(connConfig, nil)
}

// BTCRPCService provides functionality to query Bitcoin data directly via RPC
type BTCRPCService struct {
	client NodeClient
}

// NewBTCRPCService creates a new instance of the RPC service
func NewBTCRPCService(client NodeClient) *BTCRPCService {
	return &BTCRPCService{
		client: client,
	}
}

func (s *BTCRPCService) GetNetworkInfo() (*btcjson.GetNetworkInfoResult, error) {
	info, err := s.client.GetNetworkInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get network info: %w", err)
	}
	return info, nil
}

func (s *BTCRPCService) GetPeerInfo() ([]btcjson.GetPeerInfoResult, error) {
	peers, err := s.client.GetPeerInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get peer info: %w", err)
	}
	return peers, nil
}

func (s *BTCRPCService) GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error) {
	info, err := s.client.GetBlockChainInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get blockchain info: %w", err)
	}
	return info, nil
}

func (s *BTCRPCService) GetMiningInfo() (*btcjson.GetMiningInfoResult, error) {
	info, err := s.client.GetMiningInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get mining info: %w", err)
	}
	return info, nil
}

// GetRawTransactionVerbose retrieves detailed information of a transaction
func (s *BTCRPCService) GetRawTransactionVerbose(txHashStr string) (*btcjson.TxRawResult, error) {
	txHash, err := chainhash.NewHashFromStr(txHashStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction hash %s: %w", txHashStr, err)
	}
	tx, err := s.client.GetRawTransactionVerbose(txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get raw transaction %s: %w", txHashStr, err)
	}
	return tx, nil
}

// GetBlockVerbose retrieves detailed information of a block
func (s *BTCRPCService) GetBlockVerbose(blockHashStr string) (*btcjson.GetBlockVerboseResult, error) {
	blockHash, err := chainhash.NewHashFromStr(blockHashStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse block hash %s: %w", blockHashStr, err)
	}
	block, err := s.client.GetBlockVerbose(blockHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get block with hash %s: %w", blockHashStr, err)
	}
	return block, nil
}

// GetBlockByHeight retrieves the verbose block at height
func (s *BTCRPCService) GetBlockByHeight(height int64) (*btcjson.GetBlockVerboseResult, error) {
	blockHash, err := s.client.GetBlockHash(height)
	if err != nil {
		return nil, fmt.Errorf("failed to get block hash at height %d: %w", height, err)
	}
	block, err := s.client.GetBlockVerbose(blockHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get block at height %d: %w", height, err)
	}
	return block, nil
}

// BlockByHashOrHeight accepts either a 64 char hex block hash or a decimal block height.
func (s *BTCRPCService) BlockByHashOrHeight(hashOrHeight string) (*btcjson.GetBlockVerboseResult, error) {
	hashOrHeight = strings.TrimSpace(hashOrHeight)
	if IsSha256(hashOrHeight) {
		return s.GetBlockVerbose(hashOrHeight)
	}
	height, err := strconv.ParseInt(hashOrHeight, 10, 64)
	if err != nil || height < 0 {
		return nil, fmt.Errorf("invalid block hash or height: %s", hashOrHeight)
	}
	return s.GetBlockByHeight(height)
}

// LastBlocks returns up to n blocks, newest first.
func (s *BTCRPCService) LastBlocks(n int) ([]*btcjson.GetBlockVerboseResult, error) {
	tip, err := s.client.GetBlockCount()
	if err != nil {
		return nil, fmt.Errorf("failed to get block count: %w", err)
	}
	blocks := make([]*btcjson.GetBlockVerboseResult, 0, n)
	for height := tip; height >= 0 && len(blocks) < n; height-- {
		block, err := s.GetBlockByHeight(height)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	log.Debugf("RPC fetched %d blocks from tip %d", len(blocks), tip)
	return blocks, nil
}

// EstimateFee returns the estimated fee rate in BTC/kB for confirmation within target blocks.
func (s *BTCRPCService) EstimateFee(target int64) (float64, error) {
	feeEstimate, err := s.client.EstimateSmartFee(target, &btcjson.EstimateModeConservative)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate smart fee %d: %w", target, err)
	}
	if feeEstimate == nil || feeEstimate.FeeRate == nil {
		if feeEstimate != nil && len(feeEstimate.Errors) > 0 {
			return 0, fmt.Errorf("failed to estimate smart fee %d: %s", target, strings.Join(feeEstimate.Errors, ", "))
		}
		return 0, fmt.Errorf("failed to estimate smart fee %d: no fee rate", target)
	}
	return *feeEstimate.FeeRate, nil
}

// IsSha256 reports whether s is a lower case hex encoded 32 byte hash.
func IsSha256(s string) bool {
	return sha256Pattern.MatchString(s)
}
