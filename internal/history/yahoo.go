package history

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"btc-direction/internal/market"

	"github.com/go-resty/resty/v2"
)

// DefaultYahooBaseURL is the public Yahoo Finance chart API host.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource reads daily closes from the Yahoo Finance chart endpoint.
type YahooSource struct {
	symbol string
	base   string
	rest   *resty.Client
}

func NewYahoo(symbol, base string, timeout time.Duration) *YahooSource {
	if base == "" {
		base = DefaultYahooBaseURL
	}
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second) // default fallback
	}
	r.SetHeader("User-Agent", "Mozilla/5.0 (btc-direction)")
	return &YahooSource{symbol: symbol, base: base, rest: r}
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Currency string `json:"currency"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// History fetches the full daily history. An explicit period1/period2 window
// is used because "range=max" can come back with coarser than daily bars.
func (y *YahooSource) History(ctx context.Context) ([]market.Observation, error) {
	path := "/v8/finance/chart/" + url.PathEscape(y.symbol)

	var result chartResponse
	resp, err := y.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"period1":  "0",
			"period2":  strconv.FormatInt(time.Now().Unix(), 10),
			"interval": "1d",
			"events":   "history",
		}).
		SetResult(&result).
		SetError(&result).
		Get(y.base + path)
	if err != nil {
		return nil, unavailable("yahoo %s: request failed: %v", y.symbol, err)
	}

	if ce := result.Chart.Error; ce != nil {
		return nil, unavailable("yahoo %s: %s: %s", y.symbol, ce.Code, ce.Description)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, unavailable("yahoo %s: status %d", y.symbol, resp.StatusCode())
	}
	if len(result.Chart.Result) == 0 {
		return nil, unavailable("yahoo %s: empty result", y.symbol)
	}

	obs := parseChart(result.Chart.Result[0])
	if len(obs) == 0 {
		return nil, unavailable("yahoo %s: no closing prices", y.symbol)
	}
	return obs, nil
}

// parseChart pairs timestamps with closes, dropping bars without a close.
func parseChart(r chartResult) []market.Observation {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	closes := r.Indicators.Quote[0].Close

	n := len(r.Timestamp)
	if len(closes) < n {
		n = len(closes)
	}

	obs := make([]market.Observation, 0, n)
	for i := 0; i < n; i++ {
		c := closes[i]
		if c == nil || math.IsNaN(*c) {
			continue
		}
		obs = append(obs, market.Observation{Timestamp: r.Timestamp[i], Price: *c})
	}
	return market.Normalize(obs)
}
