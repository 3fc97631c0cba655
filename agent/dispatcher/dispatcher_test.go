package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	capabilityx "github.com/vbfalcao/finassist/agent/capability"
	contractx "github.com/vbfalcao/finassist/agent/contract"
	sessionx "github.com/vbfalcao/finassist/agent/session"
)

type fakeClassifier struct {
	cls contractx.Classification
	err error
}

func (f *fakeClassifier) Classify(context.Context, string, contractx.CapabilitySet) (contractx.Classification, error) {
	return f.cls, f.err
}

type fakeComposer struct {
	message string
	err     error
}

func (f *fakeComposer) Compose(context.Context, contractx.ComposeRequest) (string, error) {
	return f.message, f.err
}

type fakeRegistry struct {
	classifier contractx.Classifier
	composer   contractx.Composer
}

func (f *fakeRegistry) Classifier() contractx.Classifier { return f.classifier }
func (f *fakeRegistry) Composer() contractx.Composer     { return f.composer }

type fakeInvoker struct {
	mu      sync.Mutex
	results map[string]contractx.ToolResult
	err     error
	calls   []string
}

func (f *fakeInvoker) Invoke(_ context.Context, tool string, _ map[string]any) (contractx.ToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, tool)
	f.mu.Unlock()
	if f.err != nil {
		return contractx.ToolResult{}, f.err
	}
	if res, ok := f.results[tool]; ok {
		return res, nil
	}
	return contractx.ToolResult{Tool: tool, Error: "unexpected tool " + tool}, nil
}

func bootstrapFor(name string, inv contractx.Invoker) capabilityx.Bootstrap {
	return capabilityx.Bootstrap{
		Name:  name,
		Build: func(context.Context) (contractx.Invoker, error) { return inv, nil },
	}
}

func failingBootstrap(name string) capabilityx.Bootstrap {
	return capabilityx.Bootstrap{
		Name:  name,
		Build: func(context.Context) (contractx.Invoker, error) { return nil, errors.New("provider down") },
	}
}

func newDispatcher(t *testing.T, registry contractx.Registry, bootstraps []capabilityx.Bootstrap) *Dispatcher {
	t.Helper()
	d, err := New(context.Background(), registry, sessionx.NewInMemoryFactory(), bootstraps, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func insertClassification() contractx.Classification {
	return contractx.Classification{
		Kind:   contractx.KindRecordTransactionInsert,
		Status: contractx.StatusComplete,
		Insert: &contractx.InsertPayload{
			Amount:          50,
			Direction:       contractx.DirectionExpense,
			AccountID:       5,
			Category:        "Mercado",
			TransactionDate: "2025-07-20",
			Description:     "compras no mercado",
		},
	}
}

func TestAnswerInsertEndToEnd(t *testing.T) {
	t.Parallel()

	store := &fakeInvoker{results: map[string]contractx.ToolResult{
		capabilityx.ToolInsertTransaction: {
			Tool: capabilityx.ToolInsertTransaction,
			Result: map[string]any{
				"id":               int64(1),
				"amount":           50.0,
				"direction":        "expense",
				"account_id":       5,
				"category":         "Mercado",
				"transaction_date": "2025-07-20",
				"description":      "compras no mercado",
			},
		},
	}}

	registry := &fakeRegistry{
		classifier: &fakeClassifier{cls: insertClassification()},
		composer:   &fakeComposer{message: "unused"},
	}
	d := newDispatcher(t, registry, []capabilityx.Bootstrap{
		bootstrapFor(capabilityx.NameDataStore, store),
	})

	out := d.Answer(context.Background(), "gastei 50 no mercado", "user-1")

	if !strings.Contains(out, "💸") {
		t.Errorf("reply missing expense icon: %q", out)
	}
	if !strings.Contains(out, "R$ 50,00") {
		t.Errorf("reply missing formatted amount: %q", out)
	}
	if !strings.Contains(out, "20/07/2025") {
		t.Errorf("reply missing formatted date: %q", out)
	}
	for _, raw := range []string{"amount", "direction", "transaction_date"} {
		if strings.Contains(out, raw) {
			t.Errorf("reply leaks raw field name %q: %q", raw, out)
		}
	}
}

func TestAnswerIncomeUsesIncomeIcon(t *testing.T) {
	t.Parallel()

	cls := insertClassification()
	cls.Insert.Direction = contractx.DirectionIncome
	store := &fakeInvoker{results: map[string]contractx.ToolResult{
		capabilityx.ToolInsertTransaction: {
			Tool: capabilityx.ToolInsertTransaction,
			Result: map[string]any{
				"amount":           120.0,
				"direction":        "income",
				"account_id":       5,
				"transaction_date": "2025-07-20",
			},
		},
	}}

	registry := &fakeRegistry{
		classifier: &fakeClassifier{cls: cls},
		composer:   &fakeComposer{message: "unused"},
	}
	d := newDispatcher(t, registry, []capabilityx.Bootstrap{
		bootstrapFor(capabilityx.NameDataStore, store),
	})

	out := d.Answer(context.Background(), "recebi 120", "user-1")
	if !strings.Contains(out, "💰") {
		t.Errorf("income reply missing 💰: %q", out)
	}
}

func TestAnswerClassifierErrorYieldsFixedReply(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{
		classifier: &fakeClassifier{err: fmt.Errorf("%w: bad json", contractx.ErrClassification)},
		composer:   &fakeComposer{},
	}
	d := newDispatcher(t, registry, nil)

	if out := d.Answer(context.Background(), "gastei 50", "user-1"); out != msgClassifierError {
		t.Errorf("reply = %q, want %q", out, msgClassifierError)
	}
}

func TestAnswerUnknownKindYieldsFixedReply(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{
		classifier: &fakeClassifier{cls: contractx.Classification{
			Kind:   contractx.Kind("WEATHER_FORECAST"),
			Status: contractx.StatusComplete,
		}},
		composer: &fakeComposer{},
	}
	d := newDispatcher(t, registry, nil)

	if out := d.Answer(context.Background(), "vai chover?", "user-1"); out != msgUnknownKind {
		t.Errorf("reply = %q, want %q", out, msgUnknownKind)
	}
}

func TestPipelineForUnknownKindReturnsSentinel(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{
		classifier: &fakeClassifier{},
		composer:   &fakeComposer{},
	}
	d := newDispatcher(t, registry, nil)

	if _, err := d.pipelineFor(contractx.Kind("WEATHER_FORECAST")); !errors.Is(err, contractx.ErrUnknownClassification) {
		t.Errorf("expected unknown-classification sentinel, got %v", err)
	}
	for kind := range contractx.KnownKinds {
		if _, err := d.pipelineFor(kind); err != nil {
			t.Errorf("pipelineFor(%s) error = %v", kind, err)
		}
	}
}

func TestAnswerDegradedWhenRequiredCapabilityMissing(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{
		classifier: &fakeClassifier{cls: insertClassification()},
		composer:   &fakeComposer{},
	}
	d := newDispatcher(t, registry, []capabilityx.Bootstrap{
		failingBootstrap(capabilityx.NameDataStore),
	})

	if out := d.Answer(context.Background(), "gastei 50", "user-1"); out != msgDegraded {
		t.Errorf("reply = %q, want %q", out, msgDegraded)
	}
}

func TestAnswerAllBootstrapsFailStillReturnsText(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{
		classifier: &fakeClassifier{cls: insertClassification()},
		composer:   &fakeComposer{},
	}
	d := newDispatcher(t, registry, []capabilityx.Bootstrap{
		failingBootstrap(capabilityx.NameDataStore),
		failingBootstrap(capabilityx.NameMarketData),
		failingBootstrap(capabilityx.NameCharts),
		failingBootstrap(capabilityx.NameDates),
	})

	out := d.Answer(context.Background(), "gastei 50", "user-1")
	if out == "" {
		t.Fatal("reply must never be empty")
	}
	if out != msgDegraded {
		t.Errorf("reply = %q, want %q", out, msgDegraded)
	}
}

func TestAnswerStageErrorYieldsGenericFailure(t *testing.T) {
	t.Parallel()

	store := &fakeInvoker{err: errors.New("connection refused")}
	registry := &fakeRegistry{
		classifier: &fakeClassifier{cls: insertClassification()},
		composer:   &fakeComposer{},
	}
	d := newDispatcher(t, registry, []capabilityx.Bootstrap{
		bootstrapFor(capabilityx.NameDataStore, store),
	})

	if out := d.Answer(context.Background(), "gastei 50", "user-1"); out != msgStageFailure {
		t.Errorf("reply = %q, want %q", out, msgStageFailure)
	}
}

func TestAnswerQueryRoutesThroughComposer(t *testing.T) {
	t.Parallel()

	store := &fakeInvoker{results: map[string]contractx.ToolResult{
		capabilityx.ToolQueryTransactions: {
			Tool:   capabilityx.ToolQueryTransactions,
			Result: []map[string]any{{"amount": 50.0, "category": "Mercado"}},
		},
	}}
	registry := &fakeRegistry{
		classifier: &fakeClassifier{cls: contractx.Classification{
			Kind:   contractx.KindRecordTransactionQuery,
			Status: contractx.StatusComplete,
			Query:  &contractx.QueryPayload{Request: "liste meus gastos com mercado"},
		}},
		composer: &fakeComposer{message: "Você gastou R$ 50,00 com Mercado."},
	}
	d := newDispatcher(t, registry, []capabilityx.Bootstrap{
		bootstrapFor(capabilityx.NameDataStore, store),
	})

	out := d.Answer(context.Background(), "liste meus gastos com mercado", "user-1")
	if out != "Você gastou R$ 50,00 com Mercado." {
		t.Errorf("reply = %q", out)
	}
	if got := store.calls; len(got) != 1 || got[0] != capabilityx.ToolQueryTransactions {
		t.Errorf("store calls = %v", got)
	}
}

func TestAnswerAggregateQueryUsesAggregateTool(t *testing.T) {
	t.Parallel()

	store := &fakeInvoker{results: map[string]contractx.ToolResult{
		capabilityx.ToolAggregateByCategory: {
			Tool:   capabilityx.ToolAggregateByCategory,
			Result: map[string]any{"despesas": map[string]float64{"Mercado": 320}},
		},
	}}
	registry := &fakeRegistry{
		classifier: &fakeClassifier{cls: contractx.Classification{
			Kind:   contractx.KindRecordTransactionQuery,
			Status: contractx.StatusComplete,
			Query:  &contractx.QueryPayload{Request: "quanto gastei este ano"},
		}},
		composer: &fakeComposer{message: "Total de R$ 320,00 este ano."},
	}
	d := newDispatcher(t, registry, []capabilityx.Bootstrap{
		bootstrapFor(capabilityx.NameDataStore, store),
	})

	d.Answer(context.Background(), "quanto gastei este ano", "user-1")
	if got := store.calls; len(got) != 1 || got[0] != capabilityx.ToolAggregateByCategory {
		t.Errorf("store calls = %v", got)
	}
}

func TestAnswerQuoteIsDeterministic(t *testing.T) {
	t.Parallel()

	marketData := &fakeInvoker{results: map[string]contractx.ToolResult{
		capabilityx.ToolGetQuote: {
			Tool:   capabilityx.ToolGetQuote,
			Result: map[string]any{"symbol": "PETR4", "price": 32.7},
		},
	}}
	registry := &fakeRegistry{
		classifier: &fakeClassifier{cls: contractx.Classification{
			Kind:   contractx.KindAssetLookup,
			Status: contractx.StatusComplete,
			Asset:  &contractx.AssetPayload{Symbol: "PETR4", QueryKind: contractx.QueryKindQuote},
		}},
		composer: &fakeComposer{message: "unused"},
	}
	d := newDispatcher(t, registry, []capabilityx.Bootstrap{
		bootstrapFor(capabilityx.NameMarketData, marketData),
	})

	out := d.Answer(context.Background(), "cotação da PETR4", "user-1")
	if out != "📈 A cotação atual de PETR4 é R$ 32,70." {
		t.Errorf("reply = %q", out)
	}
}

func TestAnswerDatedQuoteMentionsDate(t *testing.T) {
	t.Parallel()

	marketData := &fakeInvoker{results: map[string]contractx.ToolResult{
		capabilityx.ToolGetQuote: {
			Tool:   capabilityx.ToolGetQuote,
			Result: map[string]any{"symbol": "PETR4", "price": 30.15},
		},
	}}
	registry := &fakeRegistry{
		classifier: &fakeClassifier{cls: contractx.Classification{
			Kind:   contractx.KindAssetLookup,
			Status: contractx.StatusComplete,
			Asset:  &contractx.AssetPayload{Symbol: "PETR4", QueryKind: contractx.QueryKindQuote, Date: "2025-07-15"},
		}},
		composer: &fakeComposer{message: "unused"},
	}
	d := newDispatcher(t, registry, []capabilityx.Bootstrap{
		bootstrapFor(capabilityx.NameMarketData, marketData),
	})

	out := d.Answer(context.Background(), "cotação da PETR4 em 15/07/2025", "user-1")
	if out != "📈 A cotação de PETR4 em 15/07/2025 era R$ 30,15." {
		t.Errorf("reply = %q", out)
	}
}

func TestAnswerChartReportsArtifacts(t *testing.T) {
	t.Parallel()

	store := &fakeInvoker{results: map[string]contractx.ToolResult{
		capabilityx.ToolAggregateByCategory: {
			Tool:   capabilityx.ToolAggregateByCategory,
			Result: map[string]any{"despesas": map[string]float64{"Mercado": 320}},
		},
	}}
	charts := &fakeInvoker{results: map[string]contractx.ToolResult{
		capabilityx.ToolRenderCategoryChart: {
			Tool:   capabilityx.ToolRenderCategoryChart,
			Result: map[string]any{"files": []string{"grafico_julho.png"}},
		},
	}}
	registry := &fakeRegistry{
		classifier: &fakeClassifier{cls: contractx.Classification{
			Kind:   contractx.KindChartRequest,
			Status: contractx.StatusComplete,
			Chart:  &contractx.ChartPayload{ChartKind: "income_expense_by_category", Period: contractx.PeriodLastMonth},
		}},
		composer: &fakeComposer{message: "unused"},
	}
	d := newDispatcher(t, registry, []capabilityx.Bootstrap{
		bootstrapFor(capabilityx.NameDataStore, store),
		bootstrapFor(capabilityx.NameCharts, charts),
	})

	out := d.Answer(context.Background(), "gera um gráfico do último mês", "user-1")
	if !strings.Contains(out, "📊") {
		t.Errorf("reply missing chart icon: %q", out)
	}
	if !strings.Contains(out, "grafico_julho.png") {
		t.Errorf("reply missing artifact name: %q", out)
	}
}

func TestAnswerConcurrentUsersAreIsolated(t *testing.T) {
	t.Parallel()

	store := &fakeInvoker{results: map[string]contractx.ToolResult{
		capabilityx.ToolQueryTransactions: {
			Tool:   capabilityx.ToolQueryTransactions,
			Result: []map[string]any{},
		},
	}}
	registry := &fakeRegistry{
		classifier: &fakeClassifier{cls: contractx.Classification{
			Kind:   contractx.KindRecordTransactionQuery,
			Status: contractx.StatusComplete,
			Query:  &contractx.QueryPayload{Request: "liste minhas despesas"},
		}},
		composer: &fakeComposer{message: "Nada encontrado."},
	}
	d := newDispatcher(t, registry, []capabilityx.Bootstrap{
		bootstrapFor(capabilityx.NameDataStore, store),
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := d.Answer(context.Background(), "liste minhas despesas", fmt.Sprintf("user-%d", i))
			if out == "" {
				t.Error("empty reply under concurrency")
			}
		}(i)
	}
	wg.Wait()
}
