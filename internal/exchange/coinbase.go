package exchange

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"
)

type exchangeRatesResp struct {
	Data struct {
		Currency string                     `json:"currency"`
		Rates    map[string]decimal.Decimal `json:"rates"`
	} `json:"data"`
}

// ExchangeRates returns how much of every currency one unit of symbol buys, keyed by currency code.
func (c *Client) ExchangeRates(ctx context.Context, symbol string) (map[string]decimal.Decimal, error) {
	query := url.Values{}
	query.Set("currency", symbol)

	var resp exchangeRatesResp
	if err := c.getJSON(ctx, upstreamCoinbase, c.coinbaseURL+"/exchange-rates", query, &resp); err != nil {
		return nil, err
	}
	if resp.Data.Rates == nil {
		return map[string]decimal.Decimal{}, nil
	}
	return resp.Data.Rates, nil
}
