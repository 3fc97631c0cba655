package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/vbfalcao/finassist/agent/contract"
)

type MarketDataConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// MarketDataClient is the market-data capability: quote and analysis lookups
// against an external quote service over REST.
type MarketDataClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewMarketDataClient(cfg MarketDataConfig) (*MarketDataClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("market data url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid market data url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &MarketDataClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *MarketDataClient) Invoke(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error) {
	symbol, _ := args["symbol"].(string)
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return toolError(tool, "symbol is required"), nil
	}

	var path string
	switch tool {
	case ToolGetQuote:
		path = "/v1/quote"
	case ToolGetAnalysis:
		path = "/v1/analysis"
	default:
		return toolError(tool, fmt.Sprintf("tool=%s is not provided by market data", tool)), nil
	}

	payload := map[string]any{"symbol": symbol}
	if date, _ := args["date"].(string); strings.TrimSpace(date) != "" {
		payload["date"] = strings.TrimSpace(date)
	}

	result, err := c.post(ctx, path, payload)
	if err != nil {
		return contractx.ToolResult{}, err
	}
	return contractx.ToolResult{Tool: tool, Result: result}, nil
}

func (c *MarketDataClient) post(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal market data request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build market data request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute market data request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read market data response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("market data http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode market data response: %w", err)
	}
	return parsed, nil
}

const maxResponseBytes = 2 << 20
