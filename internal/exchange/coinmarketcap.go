package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const (
	quotesAux   = "num_market_pairs,cmc_rank,date_added,tags,platform,max_supply,circulating_supply,total_supply,market_cap_by_total_supply,volume_24h_reported,volume_7d,volume_7d_reported,volume_30d,volume_30d_reported,is_active,is_fiat"
	listingsAux = "num_market_pairs,cmc_rank,date_added,tags,platform,max_supply,circulating_supply,total_supply,market_cap_by_total_supply,volume_24h_reported,volume_7d,volume_7d_reported,volume_30d,volume_30d_reported,is_market_cap_included_in_calc"

	// ListingLimit is the number of coins in the market overview.
	ListingLimit = 30
)

var (
	ErrInvalidSymbol  = errors.New("invalid currency symbol")
	ErrSymbolNotFound = errors.New("symbol you searched for is not found")
)

// APIError is a CoinMarketCap response without data.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := "Something went wrong with getting the data from CoinMarketCap."
	if e.Message != "" {
		msg += " With error message: " + e.Message
	}
	return msg
}

type Quote struct {
	ID                int                    `json:"id"`
	Name              string                 `json:"name"`
	Symbol            string                 `json:"symbol"`
	Slug              string                 `json:"slug"`
	CMCRank           int                    `json:"cmc_rank"`
	CirculatingSupply decimal.NullDecimal    `json:"circulating_supply"`
	TotalSupply       decimal.NullDecimal    `json:"total_supply"`
	MaxSupply         decimal.NullDecimal    `json:"max_supply"`
	Quote             map[string]PriceDetail `json:"quote"`
}

// USD returns the USD price detail; the zero value when missing.
func (q *Quote) USD() PriceDetail {
	return q.Quote["USD"]
}

type PriceDetail struct {
	Price            decimal.Decimal `json:"price"`
	Volume24h        decimal.Decimal `json:"volume_24h"`
	Volume7d         decimal.Decimal `json:"volume_7d"`
	Volume30d        decimal.Decimal `json:"volume_30d"`
	PercentChange1h  decimal.Decimal `json:"percent_change_1h"`
	PercentChange24h decimal.Decimal `json:"percent_change_24h"`
	PercentChange7d  decimal.Decimal `json:"percent_change_7d"`
	PercentChange30d decimal.Decimal `json:"percent_change_30d"`
	PercentChange90d decimal.Decimal `json:"percent_change_90d"`
	MarketCap        decimal.Decimal `json:"market_cap"`
	LastUpdated      time.Time       `json:"last_updated"`
}

type cmcStatus struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type cmcResponse struct {
	Status *cmcStatus      `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// LatestQuote returns the latest CoinMarketCap quote of symbol (upper case).
func (c *Client) LatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("aux", quotesAux)

	data, err := c.coinMarketCap(ctx, "/cryptocurrency/quotes/latest", query)
	if err != nil {
		return nil, err
	}
	var quotes map[string]Quote
	if err := json.Unmarshal(data, &quotes); err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	quote, ok := quotes[symbol]
	if !ok {
		return nil, ErrSymbolNotFound
	}
	return &quote, nil
}

// Listings returns the top coins (no tokens) by market cap.
func (c *Client) Listings(ctx context.Context) ([]Quote, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprint(ListingLimit))
	query.Set("cryptocurrency_type", "coins")
	query.Set("aux", listingsAux)

	data, err := c.coinMarketCap(ctx, "/cryptocurrency/listings/latest", query)
	if err != nil {
		return nil, err
	}
	var quotes []Quote
	if err := json.Unmarshal(data, &quotes); err != nil {
		return nil, &APIError{Message: "listing data is not a list"}
	}
	return quotes, nil
}

func (c *Client) coinMarketCap(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	header := http.Header{}
	header.Set("X-CMC_PRO_API_KEY", c.apiToken)

	status, body, err := c.get(ctx, upstreamCoinMarketCap, c.coinMarketCapURL+path, query, header)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest {
		return nil, ErrInvalidSymbol
	}

	var resp cmcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{StatusCode: status, Message: fmt.Sprintf("status %d", status)}
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		apiErr := &APIError{StatusCode: status}
		if resp.Status != nil {
			apiErr.Message = resp.Status.ErrorMessage
		}
		return nil, apiErr
	}
	return resp.Data, nil
}
