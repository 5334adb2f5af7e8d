package btc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
)

const (
	mempoolMainnetURL = "https://mempool.space/api/v1/fees/recommended"
	mempoolTestnetURL = "https://mempool.space/testnet/api/v1/fees/recommended"
)

// NetworkFee holds recommended fee rates in sat/vB.
type NetworkFee struct {
	FastestFee  uint64
	HalfHourFee uint64
	HourFee     uint64
	Source      string
}

type NetworkFeeFetcher interface {
	GetNetworkFee() (*NetworkFee, error)
}

type MempoolFeesResp struct {
	FastestFee  uint64 `json:"fastestFee"`
	HalfHourFee uint64 `json:"halfHourFee"`
	HourFee     uint64 `json:"hourFee"`
	EconomyFee  uint64 `json:"economyFee"`
	MinimumFee  uint64 `json:"minimumFee"`
}

type MemPoolFeeFetcher struct {
	rpc        *BTCRPCService
	network    *chaincfg.Params
	httpClient *http.Client
	url        string
}

func NewMemPoolFeeFetcher(rpc *BTCRPCService, network *chaincfg.Params) *MemPoolFeeFetcher {
	var url string
	if network == &chaincfg.MainNetParams {
		url = mempoolMainnetURL
	} else if network == &chaincfg.TestNet3Params {
		url = mempoolTestnetURL
	}
	return &MemPoolFeeFetcher{
		rpc:        rpc,
		network:    network,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        url,
	}
}

// GetNetworkFee asks mempool.space first and falls back to the node's smart fee estimate.
func (f *MemPoolFeeFetcher) GetNetworkFee() (*NetworkFee, error) {
	if len(f.url) == 0 {
		return f.getFeeRateFromBtcNode()
	}
	fee, err := f.getFeeRate(f.url)
	if err != nil {
		log.Errorf("Failed to get fee rate from mempool, using btc node: %v", err)
		return f.getFeeRateFromBtcNode()
	}
	return fee, nil
}

func (f *MemPoolFeeFetcher) getFeeRate(url string) (*NetworkFee, error) {
	resp, err := f.httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mempool returned status %d", resp.StatusCode)
	}

	var feeResp MempoolFeesResp
	if err := json.NewDecoder(resp.Body).Decode(&feeResp); err != nil {
		return nil, err
	}

	return &NetworkFee{
		FastestFee:  feeResp.FastestFee,
		HalfHourFee: feeResp.HalfHourFee,
		HourFee:     feeResp.HourFee,
		Source:      "mempool.space",
	}, nil
}

// get fee rate from btc node
func (f *MemPoolFeeFetcher) getFeeRateFromBtcNode() (*NetworkFee, error) {
	if f.rpc == nil {
		return nil, errors.New("btc client is not set")
	}
	fastestFee, err := f.satPerVByte(1)
	if err != nil {
		return nil, err
	}
	halfHourFee, err := f.satPerVByte(3)
	if err != nil {
		return nil, err
	}
	hourFee, err := f.satPerVByte(6)
	if err != nil {
		return nil, err
	}
	return &NetworkFee{
		FastestFee:  fastestFee,
		HalfHourFee: halfHourFee,
		HourFee:     hourFee,
		Source:      "bitcoind",
	}, nil
}

// BTC/kB to sat/vB
func (f *MemPoolFeeFetcher) satPerVByte(target int64) (uint64, error) {
	rate, err := f.rpc.EstimateFee(target)
	if err != nil {
		return 0, err
	}
	return uint64((rate * 1e8) / 1000), nil
}
