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

type ChartRenderConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// ChartRenderClient is the rendering capability. The renderer itself lives
// outside this core; the adapter only relays aggregated category data and
// returns the persisted artifact names.
type ChartRenderClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewChartRenderClient(cfg ChartRenderConfig) (*ChartRenderClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("chart render url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid chart render url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ChartRenderClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type chartRenderResponse struct {
	Files []string `json:"files"`
	Error string   `json:"error"`
}

func (c *ChartRenderClient) Invoke(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error) {
	if tool != ToolRenderCategoryChart {
		return toolError(tool, fmt.Sprintf("tool=%s is not provided by the chart renderer", tool)), nil
	}

	body, err := json.Marshal(args)
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("marshal chart render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/render", bytes.NewReader(body))
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("build chart render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("execute chart render request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("read chart render response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return contractx.ToolResult{}, fmt.Errorf("chart render http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed chartRenderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return contractx.ToolResult{}, fmt.Errorf("decode chart render response: %w", err)
	}
	if parsed.Error != "" {
		return toolError(tool, parsed.Error), nil
	}
	if len(parsed.Files) == 0 {
		return toolError(tool, "renderer produced no artifacts"), nil
	}

	return contractx.ToolResult{
		Tool:   tool,
		Result: map[string]any{"files": parsed.Files},
	}, nil
}
