package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"emastream/internal/model"
)

// RESTClient calls Binance futures market-data endpoints. All endpoints
// used here are public and need no credentials.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a REST client for the given base URL, e.g.
// "https://fapi.binance.com".
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// HTTPClient returns the underlying HTTP client.
func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// GetKlines fetches up to limit most-recent klines for symbol+interval,
// oldest first. Used to warm up indicator state at startup.
func (c *RESTClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Bar, error) {
	endpoint := fmt.Sprintf(
		"%s/fapi/v1/klines?symbol=%s&interval=%s&limit=%d",
		c.baseURL,
		url.QueryEscape(symbol),
		url.QueryEscape(interval),
		limit,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: create klines request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance: klines request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("binance: klines status %d: %s", resp.StatusCode, body)
	}

	var rows []RawKline
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}

	return ParseKlineRows(rows)
}

// GetPrice fetches the latest traded price for symbol.
func (c *RESTClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	endpoint := c.baseURL + "/fapi/v1/ticker/price?symbol=" + url.QueryEscape(symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("binance: create price request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("binance: price request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("binance: price status %d: %s", resp.StatusCode, body)
	}

	var tp tickerPrice
	if err := json.NewDecoder(resp.Body).Decode(&tp); err != nil {
		return 0, fmt.Errorf("binance: decode price: %w", err)
	}

	price, err := strconv.ParseFloat(tp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: parse price %q: %w", tp.Price, err)
	}
	return price, nil
}
