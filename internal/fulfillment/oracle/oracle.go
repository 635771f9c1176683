// Package oracle quotes live crypto/EUR rates from a public price API, with
// an optional Redis cache in front so every tick does not hit the upstream.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	dErrors "veil/pkg/domain-errors"
)

const defaultTimeout = 10 * time.Second

// tickers maps asset tickers to the upstream's coin identifiers.
var tickers = map[string]string{
	"xmr": "monero",
	"btc": "bitcoin",
	"eth": "ethereum",
	"ltc": "litecoin",
}

// Client fetches EUR rates from a CoinGecko-compatible API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("oracle base URL is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PriceInEUR returns the EUR price of one unit of the asset. A missing,
// zero, or negative upstream value is an error, never a zero rate.
func (c *Client) PriceInEUR(ctx context.Context, ticker string) (decimal.Decimal, error) {
	coin, ok := tickers[strings.ToLower(ticker)]
	if !ok {
		return decimal.Decimal{}, dErrors.New(dErrors.CodeInvalidInput, "unsupported asset ticker: "+ticker)
	}

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=eur", c.baseURL, url.QueryEscape(coin))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, dErrors.Wrap(err, dErrors.CodeInternal, "build oracle request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Decimal{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "oracle unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("oracle returned %d", resp.StatusCode))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return decimal.Decimal{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "read oracle response")
	}

	var decoded map[string]map[string]json.Number
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return decimal.Decimal{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode oracle response")
	}

	raw, ok := decoded[coin]["eur"]
	if !ok {
		return decimal.Decimal{}, dErrors.New(dErrors.CodeUnavailable, "oracle returned no EUR rate for "+coin)
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Decimal{}, dErrors.Wrap(err, dErrors.CodeInternal, "parse oracle rate")
	}
	if rate.Sign() <= 0 {
		return decimal.Decimal{}, dErrors.New(dErrors.CodeUnavailable, "oracle returned a nonpositive rate")
	}
	return rate, nil
}
