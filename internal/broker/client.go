package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketgw/internal/market"
)

// MarketData is the upstream collaborator as the services see it.
type MarketData interface {
	FetchHistoricalBars(ctx context.Context, spec market.ContractSpec, timeframe market.Timeframe, start, end time.Time) ([]market.BarData, error)
	FetchQuote(ctx context.Context, symbol string) (market.Quote, error)
	SearchContracts(ctx context.Context, query string) ([]market.ContractSpec, error)
}

// Client talks to the upstream market-data bridge over REST.
type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	if host == "" {
		host = "http://localhost:8000"
	}
	host = strings.TrimRight(host, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

func (c *Client) doRequest(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, market.E(market.KindUpstreamUnavailable, op, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, market.E(market.KindUpstreamUnavailable, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(op, resp.StatusCode, string(body))
	}
	return body, nil
}

func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return market.E(market.KindUpstreamTimeout, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return market.E(market.KindUpstreamTimeout, op, err)
	}
	return market.E(market.KindUpstreamUnavailable, op, err)
}

func classifyStatus(op string, status int, body string) error {
	apiErr := &APIError{Status: status, Body: body}
	switch {
	case status == http.StatusTooManyRequests:
		return market.E(market.KindUpstreamRateLimited, op, apiErr)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return market.E(market.KindUpstreamTimeout, op, apiErr)
	default:
		return market.E(market.KindUpstreamUnavailable, op, apiErr)
	}
}

func (c *Client) FetchHistoricalBars(ctx context.Context, spec market.ContractSpec, timeframe market.Timeframe, start, end time.Time) ([]market.BarData, error) {
	const op = "broker.FetchHistoricalBars"
	if spec.Symbol == "" {
		return nil, market.Ef(market.KindUpstreamUnavailable, op, "symbol is required")
	}
	query := url.Values{}
	query.Set("timeframe", timeframe.String())
	query.Set("bar_size", timeframe.BarSize())
	query.Set("start", start.UTC().Format(time.RFC3339))
	query.Set("end", end.UTC().Format(time.RFC3339))
	query.Set("sec_type", spec.SecType)
	query.Set("exchange", spec.Exchange)
	query.Set("currency", spec.Currency)
	if spec.Expiry != "" {
		query.Set("expiry", spec.Expiry)
	}
	body, err := c.doRequest(ctx, op, "/historical/"+url.PathEscape(spec.Symbol), query)
	if err != nil {
		return nil, err
	}
	bars, err := parseHistorical(body)
	if err != nil {
		return nil, market.E(market.KindUpstreamUnavailable, op, err)
	}
	return bars, nil
}

func (c *Client) FetchQuote(ctx context.Context, symbol string) (market.Quote, error) {
	const op = "broker.FetchQuote"
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return market.Quote{}, market.Ef(market.KindUpstreamUnavailable, op, "symbol is required")
	}
	body, err := c.doRequest(ctx, op, "/market-data/"+url.PathEscape(symbol), nil)
	if err != nil {
		return market.Quote{}, err
	}
	quote, err := parseQuote(body)
	if err != nil {
		return market.Quote{}, market.E(market.KindUpstreamUnavailable, op, err)
	}
	return quote, nil
}

func (c *Client) SearchContracts(ctx context.Context, q string) ([]market.ContractSpec, error) {
	const op = "broker.SearchContracts"
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, market.Ef(market.KindUpstreamUnavailable, op, "query is required")
	}
	query := url.Values{}
	query.Set("q", q)
	body, err := c.doRequest(ctx, op, "/contracts/search", query)
	if err != nil {
		return nil, err
	}
	specs, err := parseSearch(body)
	if err != nil {
		return nil, market.E(market.KindUpstreamUnavailable, op, err)
	}
	return specs, nil
}
