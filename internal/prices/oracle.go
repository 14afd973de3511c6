package prices

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrUpstreamUnavailable = errors.New("no price source available")

// Conservative estimates used when every source fails to provide a currency.
// They keep read endpoints serving but are never used to price a withdrawal.
var fallbackRates = map[string]decimal.Decimal{
	"BTC": decimal.RequireFromString("50000"),
	"LTC": decimal.RequireFromString("60"),
	"XMR": decimal.RequireFromString("120"),
}

// Snapshot is the oracle's last known state. FromFallback lists currencies
// whose value is a hardcoded estimate rather than live data.
type Snapshot struct {
	BTC          decimal.Decimal `json:"btc"`
	LTC          decimal.Decimal `json:"ltc"`
	XMR          decimal.Decimal `json:"xmr"`
	Degraded     bool            `json:"degraded"`
	FromFallback []string        `json:"from_fallback,omitempty"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

// Oracle fetches BTC/LTC/XMR→EUR rates from an ordered list of sources and
// serves the last good snapshot to any number of concurrent readers without
// blocking them on upstream calls.
type Oracle struct {
	client  *resty.Client
	sources []Source
	timeout time.Duration

	mu       sync.RWMutex
	snapshot Snapshot
	fetched  bool
}

func NewOracle(sources []Source, timeout time.Duration) *Oracle {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Oracle{
		client:  client,
		sources: sources,
		timeout: timeout,
	}
}

// Fetch polls sources in order, filling any still-missing currency from each
// source's partial result and stopping early once all three are filled.
// Source failures are absorbed; the returned snapshot is degraded only for
// currencies no source provided.
func (o *Oracle) Fetch(ctx context.Context) Snapshot {
	var result PartialRates
	for _, source := range o.sources {
		if filled(result) {
			break
		}
		body, err := o.get(ctx, source.URL)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"source": source.Name,
			}).WithError(err).Warn("price source unavailable")
			continue
		}
		partial := source.Parse(body)
		if result.BTC.IsZero() {
			result.BTC = partial.BTC
		}
		if result.LTC.IsZero() {
			result.LTC = partial.LTC
		}
		if result.XMR.IsZero() {
			result.XMR = partial.XMR
		}
	}

	snapshot := Snapshot{
		BTC:       result.BTC,
		LTC:       result.LTC,
		XMR:       result.XMR,
		FetchedAt: time.Now().UTC(),
	}
	if snapshot.BTC.IsZero() {
		snapshot.BTC = fallbackRates["BTC"]
		snapshot.FromFallback = append(snapshot.FromFallback, "BTC")
	}
	if snapshot.LTC.IsZero() {
		snapshot.LTC = fallbackRates["LTC"]
		snapshot.FromFallback = append(snapshot.FromFallback, "LTC")
	}
	if snapshot.XMR.IsZero() {
		snapshot.XMR = fallbackRates["XMR"]
		snapshot.FromFallback = append(snapshot.FromFallback, "XMR")
	}
	snapshot.Degraded = len(snapshot.FromFallback) > 0

	o.mu.Lock()
	o.snapshot = snapshot
	o.fetched = true
	o.mu.Unlock()
	return snapshot
}

// Start runs the refresh loop until ctx is cancelled. The first fetch happens
// immediately so the cache is warm before the HTTP server accepts traffic.
func (o *Oracle) Start(ctx context.Context, interval time.Duration) {
	o.Fetch(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.Fetch(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Snapshot returns the last fetched state without blocking on upstreams.
func (o *Oracle) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshot
}

// Rate returns the live EUR rate for a currency. Fallback estimates are
// refused here: a withdrawal must block rather than convert against a
// guessed price.
func (o *Oracle) Rate(currency string) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.fetched {
		return decimal.Zero, ErrUpstreamUnavailable
	}
	for _, fromFallback := range o.snapshot.FromFallback {
		if fromFallback == currency {
			return decimal.Zero, ErrUpstreamUnavailable
		}
	}
	switch currency {
	case "BTC":
		return o.snapshot.BTC, nil
	case "LTC":
		return o.snapshot.LTC, nil
	case "XMR":
		return o.snapshot.XMR, nil
	}
	return decimal.Zero, ErrUpstreamUnavailable
}

func (o *Oracle) get(ctx context.Context, url string) ([]byte, error) {
	resp, err := o.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errors.New(resp.Status())
	}
	return resp.Body(), nil
}

func filled(rates PartialRates) bool {
	return rates.BTC.IsPositive() && rates.LTC.IsPositive() && rates.XMR.IsPositive()
}
