package format

import (
	"fmt"
	"strings"

	"github.com/cryptofather/crypto-bot/internal/exchange"
	"github.com/shopspring/decimal"
)

const dollarPriceFractionDigits = 2

type rateLine struct {
	code   string
	digits int
	slug   string
}

var (
	fiatRates = []rateLine{
		{code: "EUR", digits: 2}, {code: "GBP", digits: 2}, {code: "JPY", digits: 2},
		{code: "CHF", digits: 2}, {code: "AUD", digits: 2}, {code: "CAD", digits: 2},
		{code: "CNH", digits: 2}, {code: "HKD", digits: 2},
	}
	cryptoRates = []rateLine{
		{"BTC", 8, "bitcoin"}, {"USDC", 2, "usd-coin"}, {"USDT", 2, "tether"},
		{"ETH", 5, "ethereum"}, {"SOL", 5, "solana"}, {"ADA", 2, "cardano"},
		{"DOT", 5, "polkadot-new"}, {"AVAX", 5, "avalanche"}, {"LINK", 5, "chainlink"},
		{"LTC", 5, "litecoin"}, {"BCH", 5, "bitcoin-cash"}, {"DOGE", 2, "dogecoin"},
	}
)

func coinName(symbol string, quote *exchange.Quote) string {
	if quote.Name != "" {
		return quote.Name
	}
	return symbol
}

func rate(rates map[string]decimal.Decimal, code string, digits int) string {
	r, ok := rates[code]
	if !ok {
		return "N/A"
	}
	return Fixed(r, digits)
}

func supply(d decimal.NullDecimal) string {
	if !d.Valid || d.Decimal.IsZero() {
		return "N/A"
	}
	return Number(d.Decimal, 0, 3)
}

// PriceOverview lists the price of symbol in fiat and in other crypto currencies.
func PriceOverview(symbol string, quote *exchange.Quote, rates map[string]decimal.Decimal) string {
	name := coinName(symbol, quote)
	usd := quote.USD()

	var b strings.Builder
	fmt.Fprintf(&b, "*Current prices of %s (%s) in fiat*\n", name, symbol)
	fmt.Fprintf(&b, " • %s USD\n", Number(usd.Price, 0, dollarPriceFractionDigits))
	for _, r := range fiatRates {
		fmt.Fprintf(&b, " • %s %s\n", rate(rates, r.code, r.digits), r.code)
	}
	fmt.Fprintf(&b, "\n*Current prices of %s in crypto valuta*", name)
	for _, r := range cryptoRates {
		fmt.Fprintf(&b, "\n• %s [%s](%s/currencies/%s)", rate(rates, r.code, r.digits), r.code, CoinMarketCapURL, r.slug)
	}
	return b.String()
}

// MarketStats shows supply, price, volume and change figures of one coin.
func MarketStats(symbol string, quote *exchange.Quote, rates map[string]decimal.Decimal) string {
	name := coinName(symbol, quote)
	usd := quote.USD()
	change := func(d decimal.Decimal) string {
		return Number(d, 2, 2) + "% " + ChangeIcon(d)
	}

	return fmt.Sprintf(`*General coin data for %s*
Rank: #%d
Circulating supply: %s %ss
Total supply: %s %ss
Max. supply: %s %ss
Market Cap: $%s
Visit on: [CoinMarketCap](%s/currencies/%s)

*Price* 💱
Price: 1 %s = %s USD
Price: 1 %s = %s EUR
Price: 1 %s = %s BTC
Price: 1 %s = %s ETH
Last updated: %s

*Trading Volume* 📊
Volume 24H: %s USD
Volume 7D: %s USD
Volume 30D: %s USD

*Change* 📈
Last Hour: %s
Last 24H: %s
Last 7D:  %s
Last 30D: %s
Last 90D: %s`,
		name,
		quote.CMCRank,
		supply(quote.CirculatingSupply), symbol,
		supply(quote.TotalSupply), symbol,
		supply(quote.MaxSupply), symbol,
		Number(usd.MarketCap, 0, 0),
		CoinMarketCapURL, quote.Slug,
		symbol, Number(usd.Price, 0, dollarPriceFractionDigits),
		symbol, rate(rates, "EUR", 2),
		symbol, rate(rates, "BTC", 5),
		symbol, rate(rates, "ETH", 5),
		PrintDate(usd.LastUpdated),
		Number(usd.Volume24h, 0, 0),
		Number(usd.Volume7d, 0, 0),
		Number(usd.Volume30d, 0, 0),
		change(usd.PercentChange1h),
		change(usd.PercentChange24h),
		change(usd.PercentChange7d),
		change(usd.PercentChange30d),
		change(usd.PercentChange90d),
	)
}

// MarketOverview lists the top coins by market cap.
func MarketOverview(quotes []exchange.Quote) string {
	if len(quotes) == 0 {
		return "No market data available"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Top %d coins by market cap* 🏆", len(quotes))
	for i := range quotes {
		q := &quotes[i]
		usd := q.USD()
		fmt.Fprintf(&b, "\n#%d [%s](%s/currencies/%s) (%s): $%s %s%% %s",
			q.CMCRank, q.Name, CoinMarketCapURL, q.Slug, q.Symbol,
			Number(usd.Price, 0, dollarPriceFractionDigits),
			Number(usd.PercentChange24h, 2, 2), ChangeIcon(usd.PercentChange24h))
	}
	return b.String()
}
