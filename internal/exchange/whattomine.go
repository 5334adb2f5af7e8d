package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// WhatToMineBitcoinID is the WhatToMine coin id of Bitcoin.
const WhatToMineBitcoinID = 1

type MiningStats struct {
	Tag            string          `json:"tag"`
	BlockTime      decimal.Decimal `json:"block_time"`
	BlockReward    decimal.Decimal `json:"block_reward"`
	BlockReward24  decimal.Decimal `json:"block_reward24"`
	BlockReward3   decimal.Decimal `json:"block_reward3"`
	Difficulty     decimal.Decimal `json:"difficulty"`
	Difficulty24   decimal.Decimal `json:"difficulty24"`
	Difficulty3    decimal.Decimal `json:"difficulty3"`
	Difficulty7    decimal.Decimal `json:"difficulty7"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	ExchangeRate24 decimal.Decimal `json:"exchange_rate24"`
	ExchangeRate3  decimal.Decimal `json:"exchange_rate3"`
	ExchangeRate7  decimal.Decimal `json:"exchange_rate7"`
	MarketCap      json.RawMessage `json:"market_cap"`
}

// MarketCapText returns market_cap as sent, which WhatToMine formats as a string like "$1,234".
func (s *MiningStats) MarketCapText() string {
	var text string
	if err := json.Unmarshal(s.MarketCap, &text); err == nil {
		return text
	}
	return strings.TrimSpace(string(s.MarketCap))
}

func (c *Client) MiningStats(ctx context.Context, id int) (*MiningStats, error) {
	var stats MiningStats
	if err := c.getJSON(ctx, upstreamWhatToMine, fmt.Sprintf("%s/%d.json", c.whatToMineURL, id), nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
