package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contractx "github.com/vbfalcao/finassist/agent/contract"
)

func TestBuildSetSkipsFailedAdapters(t *testing.T) {
	t.Parallel()

	bootstraps := []Bootstrap{
		{
			Name: NameDates,
			Build: func(context.Context) (contractx.Invoker, error) {
				return NewDateResolver(fixedNow), nil
			},
		},
		{
			Name: NameMarketData,
			Build: func(context.Context) (contractx.Invoker, error) {
				return nil, errors.New("provider offline")
			},
		},
	}

	set, release := BuildSet(context.Background(), bootstraps)
	defer release(context.Background())

	if !set.Has(NameDates) {
		t.Fatal("dates adapter should be present")
	}
	if set.Has(NameMarketData) {
		t.Fatal("failed adapter must be omitted from the set")
	}
}

type closingInvoker struct {
	closed int
}

func (c *closingInvoker) Invoke(context.Context, string, map[string]any) (contractx.ToolResult, error) {
	return contractx.ToolResult{}, nil
}

func (c *closingInvoker) Close(context.Context) error {
	c.closed++
	return nil
}

func TestBuildSetReleaseClosesAdapters(t *testing.T) {
	t.Parallel()

	adapter := &closingInvoker{}
	set, release := BuildSet(context.Background(), []Bootstrap{
		{
			Name:  NameDataStore,
			Build: func(context.Context) (contractx.Invoker, error) { return adapter, nil },
		},
	})
	if !set.Has(NameDataStore) {
		t.Fatal("adapter should be present")
	}

	release(context.Background())
	release(context.Background())
	if adapter.closed != 2 {
		t.Fatalf("expected idempotent close calls to reach adapter, got %d", adapter.closed)
	}
}

func TestMarketDataClientGetQuote(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		fmt.Fprint(w, `{"symbol":"PETR4","price":32.70,"currency":"BRL"}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewMarketDataClient(MarketDataConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewMarketDataClient() error = %v", err)
	}

	out, err := client.Invoke(context.Background(), ToolGetQuote, map[string]any{"symbol": "petr4"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if gotPath != "/v1/quote" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotPayload["symbol"] != "PETR4" {
		t.Fatalf("symbol must be normalized upper-case, got %v", gotPayload["symbol"])
	}

	result, ok := out.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type %T", out.Result)
	}
	if result["price"] != 32.70 {
		t.Fatalf("price = %v", result["price"])
	}
}

func TestMarketDataClientMissingSymbol(t *testing.T) {
	t.Parallel()

	client, err := NewMarketDataClient(MarketDataConfig{URL: "http://localhost:1"})
	if err != nil {
		t.Fatalf("NewMarketDataClient() error = %v", err)
	}
	out, err := client.Invoke(context.Background(), ToolGetQuote, map[string]any{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out.Error == "" {
		t.Fatal("expected tool-level error for missing symbol")
	}
}

func TestChartRenderClientReturnsFiles(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/render" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"files":["grafico_receitas.png","grafico_despesas.png"]}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewChartRenderClient(ChartRenderConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewChartRenderClient() error = %v", err)
	}

	out, err := client.Invoke(context.Background(), ToolRenderCategoryChart, map[string]any{
		"receitas": map[string]any{"Salário": 3000.0},
		"despesas": map[string]any{"Alimentação": 800.0},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	result, ok := out.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type %T", out.Result)
	}
	files, ok := result["files"].([]string)
	if !ok || len(files) != 2 {
		t.Fatalf("files = %v", result["files"])
	}
}

func TestChartRenderClientEmptyArtifacts(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"files":[]}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewChartRenderClient(ChartRenderConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewChartRenderClient() error = %v", err)
	}
	out, err := client.Invoke(context.Background(), ToolRenderCategoryChart, nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out.Error == "" {
		t.Fatal("expected tool-level error for empty artifact list")
	}
}

func TestPeriodStart(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 7, 20, 12, 0, 0, 0, time.UTC)

	start, err := periodStart(contractx.PeriodCurrentYear, now)
	if err != nil {
		t.Fatalf("periodStart() error = %v", err)
	}
	if start.Month() != time.January || start.Day() != 1 || start.Year() != 2025 {
		t.Fatalf("current_year start = %v", start)
	}

	start, err = periodStart(contractx.PeriodLast3Months, now)
	if err != nil {
		t.Fatalf("periodStart() error = %v", err)
	}
	if start.Month() != time.April {
		t.Fatalf("last_3_months start = %v", start)
	}

	if _, err := periodStart("fortnight", now); err == nil {
		t.Fatal("expected error for unsupported period")
	}
}
