package prices

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PartialRates carries whatever EUR rates one source provided; a zero value
// means "not provided by this source", never a failure of the whole fetch.
type PartialRates struct {
	BTC decimal.Decimal
	LTC decimal.Decimal
	XMR decimal.Decimal
}

// Source is one upstream price feed. Parse must tolerate missing fields and
// return partial data instead of erroring.
type Source struct {
	Name  string
	URL   string
	Parse func(body []byte) PartialRates
}

// coincap quotes USD; the original platform approximated EUR with a fixed
// conversion pending a proper FX feed.
var usdToEUR = decimal.RequireFromString("0.92")

// DefaultSources returns the feeds in fallback order: the first source that
// provides a currency wins, later sources fill remaining gaps.
func DefaultSources() []Source {
	return []Source{
		{
			Name:  "coingecko",
			URL:   "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin,litecoin,monero&vs_currencies=eur",
			Parse: parseCoinGecko,
		},
		{
			Name:  "coincap",
			URL:   "https://api.coincap.io/v2/assets?ids=bitcoin,litecoin,monero",
			Parse: parseCoinCap,
		},
		{
			Name:  "binance",
			URL:   `https://api.binance.com/api/v3/ticker/price?symbols=["BTCEUR","LTCEUR","XMREUR"]`,
			Parse: parseBinance,
		},
	}
}

func parseCoinGecko(body []byte) PartialRates {
	var payload map[string]struct {
		EUR decimal.Decimal `json:"eur"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return PartialRates{}
	}
	return PartialRates{
		BTC: positiveOrZero(payload["bitcoin"].EUR),
		LTC: positiveOrZero(payload["litecoin"].EUR),
		XMR: positiveOrZero(payload["monero"].EUR),
	}
}

func parseCoinCap(body []byte) PartialRates {
	var payload struct {
		Data []struct {
			ID       string `json:"id"`
			PriceUSD string `json:"priceUsd"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return PartialRates{}
	}
	var rates PartialRates
	for _, asset := range payload.Data {
		price, err := decimal.NewFromString(asset.PriceUSD)
		if err != nil {
			continue
		}
		eur := positiveOrZero(price.Mul(usdToEUR))
		switch asset.ID {
		case "bitcoin":
			rates.BTC = eur
		case "litecoin":
			rates.LTC = eur
		case "monero":
			rates.XMR = eur
		}
	}
	return rates
}

func parseBinance(body []byte) PartialRates {
	var payload []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return PartialRates{}
	}
	var rates PartialRates
	for _, ticker := range payload {
		price, err := decimal.NewFromString(ticker.Price)
		if err != nil {
			continue
		}
		eur := positiveOrZero(price)
		switch ticker.Symbol {
		case "BTCEUR":
			rates.BTC = eur
		case "LTCEUR":
			rates.LTC = eur
		case "XMREUR":
			rates.XMR = eur
		}
	}
	return rates
}

func positiveOrZero(value decimal.Decimal) decimal.Decimal {
	if value.IsPositive() {
		return value
	}
	return decimal.Zero
}
