// Package format renders chain and market data as Telegram Markdown messages.
package format

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ExplorerURL      = "https://blockstream.info"
	CoinMarketCapURL = "https://coinmarketcap.com"

	dateLayout = "2 January 2006 at 15:04:05"
)

var satoshisPerBitcoin = decimal.New(1, 8)

// Number formats d with thousands separators, rounding to maxFrac fraction
// digits and keeping at least minFrac of them.
func Number(d decimal.Decimal, minFrac, maxFrac int) string {
	if maxFrac < minFrac {
		maxFrac = minFrac
	}
	s := d.StringFixed(int32(maxFrac))
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	for len(frac) > minFrac && strings.HasSuffix(frac, "0") {
		frac = frac[:len(frac)-1]
	}

	out := groupThousands(intPart)
	if frac != "" {
		out += "." + frac
	}
	if negative && strings.Trim(out, "0.,") != "" {
		out = "-" + out
	}
	return out
}

func Float(f float64, minFrac, maxFrac int) string {
	return Number(decimal.NewFromFloat(f), minFrac, maxFrac)
}

// Fixed formats d with exactly n fraction digits and no separators.
func Fixed(d decimal.Decimal, n int) string {
	return d.StringFixed(int32(n))
}

// Satoshis formats an amount in satoshis as BTC.
func Satoshis(sats int64) string {
	return Number(decimal.NewFromInt(sats).Div(satoshisPerBitcoin), 0, 8)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func ChangeIcon(change decimal.Decimal) string {
	if change.IsPositive() {
		return "🔼"
	}
	return "🔽"
}

// PrintDate formats t like "3 January 2009 at 18:15:05" in UTC.
func PrintDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func PrintUnix(sec int64) string {
	return PrintDate(time.Unix(sec, 0))
}

// Age is an approximate duration using 30 day months and 12 month years.
type Age struct {
	Years   int64
	Months  int64
	Days    int64
	Hours   int64
	Minutes int64
	Seconds int64
}

func TimestampToAge(ms int64) Age {
	seconds := ms / 1000
	minutes := seconds / 60
	seconds %= 60
	hours := minutes / 60
	minutes %= 60
	days := hours / 24
	hours %= 24
	months := days / 30
	days %= 30
	years := months / 12
	months %= 12
	return Age{Years: years, Months: months, Days: days, Hours: hours, Minutes: minutes, Seconds: seconds}
}
