package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"norvia-broker/internal/apperr"

	"github.com/shopspring/decimal"
)

// PriceSource returns the last traded price for a symbol. Errors are ExternalServiceFailure.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// TickerClient reads spot prices from a Binance-compatible ticker endpoint.
// There is no caching and no fallback: a failed lookup is returned to the caller.
type TickerClient struct {
	endpoint string
	client   *http.Client
}

func NewTickerClient(endpoint string, timeout time.Duration) *TickerClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TickerClient{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (c *TickerClient) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	pair := NormalizeSymbol(symbol)
	if pair == "" {
		return decimal.Zero, apperr.InvalidInput("symbol is required")
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return decimal.Zero, apperr.ExternalService("price feed misconfigured", err)
	}
	q := u.Query()
	q.Set("symbol", pair)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, apperr.ExternalService("price feed request failed", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, apperr.ExternalService("price feed unavailable", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return decimal.Zero, apperr.ExternalService("price feed read failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, apperr.ExternalService(fmt.Sprintf("price feed returned %d for %s", resp.StatusCode, pair), nil)
	}
	var parsed tickerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, apperr.ExternalService("price feed returned malformed data", err)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(parsed.Price))
	if err != nil || !price.IsPositive() {
		return decimal.Zero, apperr.ExternalService(fmt.Sprintf("price feed returned invalid price %q", parsed.Price), nil)
	}
	return price, nil
}

var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "FDUSD"}

// NormalizeSymbol turns "btc", "BTC/USDT" or "btc-usdt" into "BTCUSDT".
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(s)
	if s == "" {
		return ""
	}
	for _, q := range quoteSuffixes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s
		}
	}
	return s + "USDT"
}
