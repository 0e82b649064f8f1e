// Package strike implements the venue.Venue interface against the Strike
// Finance perpetuals REST API.
package strike

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"adapilot/internal/config"
	"adapilot/internal/gateway/venue"
	"adapilot/internal/pkg/circuit"
	"adapilot/internal/pkg/convert"
)

// Client wraps the Strike Finance REST endpoints required by the pipeline.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	asset       string
	constraints venue.Constraints
	breaker     *circuit.Breaker
}

func NewClient(cfg config.VenueConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("venue.api_url cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing venue.api_url failed: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
		asset:      cfg.Asset,
		constraints: venue.Constraints{
			MinTradeAmount: cfg.MinTradeAmount,
			MaxLeverage:    cfg.MaxLeverage,
		},
		breaker: circuit.NewBreaker("strike-finance",
			cfg.BreakerThreshold,
			time.Duration(cfg.BreakerCooldownSeconds)*time.Second),
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) Name() string { return "strike-finance" }

func (c *Client) Constraints() venue.Constraints { return c.constraints }

type openPayload struct {
	Address          string  `json:"address"`
	Asset            string  `json:"asset"`
	CollateralAmount float64 `json:"collateralAmount"`
	LeverageFactor   float64 `json:"leverage"`
	Position         string  `json:"position"` // "Long" | "Short"
	StopLossPrice    float64 `json:"stopLossPrice,omitempty"`
	TakeProfitPrice  float64 `json:"takeProfitPrice,omitempty"`
}

type openResponse struct {
	TransactionID string `json:"transactionId"`
	TxHash        string `json:"txHash"`
}

func (c *Client) OpenPosition(ctx context.Context, req venue.OpenRequest) (*venue.OpenResult, error) {
	payload := openPayload{
		Address:          req.Address,
		Asset:            orDefault(req.Asset, c.asset),
		CollateralAmount: req.Collateral,
		LeverageFactor:   req.Leverage,
		Position:         titleSide(req.Side),
		StopLossPrice:    req.StopLoss,
		TakeProfitPrice:  req.TakeProfit,
	}
	var resp openResponse
	if err := c.doRequest(ctx, http.MethodPost, "/perpetuals/open", payload, &resp); err != nil {
		return nil, err
	}
	txID := resp.TransactionID
	if txID == "" {
		txID = resp.TxHash
	}
	if txID == "" {
		return nil, fmt.Errorf("venue did not return a transaction id")
	}
	return &venue.OpenResult{TransactionID: txID, SubmittedAt: time.Now()}, nil
}

func (c *Client) ClosePosition(ctx context.Context, positionID string) error {
	if strings.TrimSpace(positionID) == "" {
		return fmt.Errorf("position id cannot be empty")
	}
	payload := map[string]string{"positionId": positionID}
	return c.doRequest(ctx, http.MethodPost, "/perpetuals/close", payload, nil)
}

type positionDTO struct {
	ID               string  `json:"positionId"`
	Asset            string  `json:"asset"`
	Position         string  `json:"position"`
	CollateralAmount float64 `json:"collateralAmount"`
	LeverageFactor   float64 `json:"leverage"`
	EntryPrice       float64 `json:"entryPrice"`
	CurrentPrice     float64 `json:"currentPrice"`
	LiquidationPrice float64 `json:"liquidationPrice"`
	StopLossPrice    float64 `json:"stopLossPrice"`
	TakeProfitPrice  float64 `json:"takeProfitPrice"`
	UnrealizedPnL    float64 `json:"unrealizedPnl"`
	OpenedAtMs       int64   `json:"openedAt"`
}

func (c *Client) GetPositions(ctx context.Context, address string) ([]venue.Position, error) {
	var raw json.RawMessage
	path := "/perpetuals/positions?address=" + url.QueryEscape(address)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	dtos, err := decodePositionList(raw)
	if err != nil {
		return nil, err
	}
	out := make([]venue.Position, 0, len(dtos))
	now := time.Now()
	for _, dto := range dtos {
		out = append(out, venue.Position{
			ID:               dto.ID,
			Asset:            dto.Asset,
			Side:             strings.ToLower(dto.Position),
			CollateralAmount: dto.CollateralAmount,
			LeverageFactor:   dto.LeverageFactor,
			EntryPrice:       dto.EntryPrice,
			CurrentPrice:     dto.CurrentPrice,
			LiquidationPrice: dto.LiquidationPrice,
			StopLoss:         dto.StopLossPrice,
			TakeProfit:       dto.TakeProfitPrice,
			UnrealizedPnL:    dto.UnrealizedPnL,
			OpenedAt:         time.UnixMilli(dto.OpenedAtMs),
			UpdatedAt:        now,
		})
	}
	return out, nil
}

// decodePositionList tolerates both a bare array and the documented
// {"positions": [...]} envelope.
func decodePositionList(raw json.RawMessage) ([]positionDTO, error) {
	if len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, nil
	}
	var dtos []positionDTO
	if err := json.Unmarshal(raw, &dtos); err == nil {
		return dtos, nil
	}
	var env struct {
		Positions []positionDTO `json:"positions"`
		Data      []positionDTO `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("cannot decode positions response: %w", err)
	}
	if len(env.Positions) > 0 {
		return env.Positions, nil
	}
	return env.Data, nil
}

func (c *Client) GetBalance(ctx context.Context, address string) (venue.Balance, error) {
	var resp map[string]any
	path := "/wallet/balance?address=" + url.QueryEscape(address)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return venue.Balance{}, err
	}
	return venue.Balance{
		Address:   address,
		Available: convert.ToFloat64(resp["available"]),
		Total:     convert.ToFloat64(resp["total"]),
		UpdatedAt: time.Now(),
	}, nil
}

func (c *Client) GetPrice(ctx context.Context, asset string) (venue.PriceQuote, error) {
	asset = orDefault(asset, c.asset)
	var resp map[string]any
	path := "/market/price?asset=" + url.QueryEscape(asset)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return venue.PriceQuote{}, err
	}
	price := convert.ToFloat64(resp["price"])
	if price <= 0 {
		price = convert.ToFloat64(resp["last"])
	}
	if price <= 0 {
		return venue.PriceQuote{}, fmt.Errorf("venue returned no usable price for %s", asset)
	}
	return venue.PriceQuote{Asset: asset, Last: price, UpdatedAt: time.Now()}, nil
}

func (c *Client) GetTransaction(ctx context.Context, txID string) (venue.TransactionStatus, error) {
	if strings.TrimSpace(txID) == "" {
		return venue.TxStatusUnknown, fmt.Errorf("transaction id cannot be empty")
	}
	var resp map[string]any
	if err := c.doRequest(ctx, http.MethodGet, "/transactions/"+url.PathEscape(txID), nil, &resp); err != nil {
		return venue.TxStatusUnknown, err
	}
	status, _ := resp["status"].(string)
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "pending", "submitted", "mempool":
		return venue.TxStatusPending, nil
	case "confirmed", "onchain", "success":
		return venue.TxStatusConfirmed, nil
	case "failed", "rejected", "expired":
		return venue.TxStatusFailed, nil
	default:
		return venue.TxStatusUnknown, fmt.Errorf("venue returned unknown transaction status %q", status)
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	if c.breaker != nil && !c.breaker.Allow() {
		return venue.Transient(fmt.Errorf("venue circuit open, skipping call to %s", path))
	}
	err := c.doRequestInner(ctx, method, path, body, out)
	if c.breaker != nil {
		if err != nil && errors.Is(err, venue.ErrTransient) {
			c.breaker.RecordFailure()
		} else if err == nil {
			c.breaker.RecordSuccess()
		}
	}
	return err
}

func (c *Client) doRequestInner(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	endpoint := c.baseURL.ResolveReference(&url.URL{Path: joinPath(c.baseURL.Path, path)})
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		endpoint = c.baseURL.ResolveReference(&url.URL{
			Path:     joinPath(c.baseURL.Path, path[:idx]),
			RawQuery: path[idx+1:],
		})
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeoutErr(err) || errors.Is(err, context.DeadlineExceeded) {
			return venue.Transient(err)
		}
		return venue.Transient(err) // connection-level failures are retryable
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return venue.Transient(err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return venue.Transient(fmt.Errorf("venue returned status %d: %s", resp.StatusCode, snippet(raw)))
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("venue returned status %d: %s", resp.StatusCode, snippet(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("cannot decode venue response: %w", err)
	}
	return nil
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func joinPath(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func titleSide(side string) string {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "short":
		return "Short"
	default:
		return "Long"
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
