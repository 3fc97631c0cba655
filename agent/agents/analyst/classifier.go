package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	capabilityx "github.com/vbfalcao/finassist/agent/capability"
	contractx "github.com/vbfalcao/finassist/agent/contract"
)

type classifierImpl struct {
	runner compose.Runnable[map[string]any, classifierLLMOutput]
}

type classifierLLMOutput struct {
	Classification string          `json:"classification"`
	Status         string          `json:"status"`
	Data           json.RawMessage `json:"data,omitempty"`
}

func newClassifier(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*classifierImpl, error) {
	runner, err := compileClassifierGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile classifier graph: %v", contractx.ErrModelInvoke, err)
	}
	return &classifierImpl{runner: runner}, nil
}

func (c *classifierImpl) Classify(ctx context.Context, question string, caps contractx.CapabilitySet) (contractx.Classification, error) {
	if strings.TrimSpace(question) == "" {
		return contractx.Classification{}, fmt.Errorf("%w: question is required", contractx.ErrValidation)
	}

	out, err := c.runner.Invoke(ctx, map[string]any{
		"input": question,
	})
	if err != nil {
		return contractx.Classification{}, fmt.Errorf("%w: classifier invoke: %v", contractx.ErrClassification, err)
	}

	status := contractx.Status(strings.ToUpper(strings.TrimSpace(out.Status)))
	if status != contractx.StatusComplete {
		return contractx.Classification{}, fmt.Errorf("%w: classifier status=%q", contractx.ErrSchemaViolation, out.Status)
	}

	kind := contractx.Kind(strings.TrimSpace(out.Classification))
	cls := contractx.Classification{Kind: kind, Status: status}
	if !contractx.KnownKinds[kind] {
		// Not an error here: the dispatcher owns the reply for kinds it
		// cannot route.
		return cls, nil
	}

	switch kind {
	case contractx.KindRecordTransactionInsert:
		payload, err := parseInsertPayload(ctx, out.Data, question, caps)
		if err != nil {
			return contractx.Classification{}, err
		}
		cls.Insert = payload
	case contractx.KindRecordTransactionQuery:
		payload, err := parseQueryPayload(out.Data)
		if err != nil {
			return contractx.Classification{}, err
		}
		cls.Query = payload
	case contractx.KindAssetLookup:
		payload, err := parseAssetPayload(out.Data)
		if err != nil {
			return contractx.Classification{}, err
		}
		cls.Asset = payload
	case contractx.KindChartRequest:
		payload, err := parseChartPayload(out.Data)
		if err != nil {
			return contractx.Classification{}, err
		}
		cls.Chart = payload
	}

	return cls, nil
}

const defaultAccountID = 5

func parseInsertPayload(ctx context.Context, data json.RawMessage, question string, caps contractx.CapabilitySet) (*contractx.InsertPayload, error) {
	var p contractx.InsertPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decode insert payload: %v", contractx.ErrSchemaViolation, err)
	}

	if p.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be > 0", contractx.ErrSchemaViolation)
	}
	switch p.Direction {
	case contractx.DirectionIncome, contractx.DirectionExpense:
	case "receita":
		p.Direction = contractx.DirectionIncome
	case "despesa":
		p.Direction = contractx.DirectionExpense
	default:
		return nil, fmt.Errorf("%w: direction=%q", contractx.ErrSchemaViolation, p.Direction)
	}
	if p.AccountID <= 0 {
		p.AccountID = defaultAccountID
	}
	p.Category = strings.TrimSpace(p.Category)
	p.Description = strings.TrimSpace(p.Description)
	if p.Description == "" {
		p.Description = strings.TrimSpace(question)
	}

	date, err := normalizeTransactionDate(ctx, p.TransactionDate, caps)
	if err != nil {
		return nil, err
	}
	p.TransactionDate = date

	return &p, nil
}

// normalizeTransactionDate resolves relative or numeric date expressions to
// ISO YYYY-MM-DD through the date capability. A sentinel answer means the
// classifier emitted an unusable date; a missing date capability keeps the raw
// expression so the run can still proceed.
func normalizeTransactionDate(ctx context.Context, raw string, caps contractx.CapabilitySet) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "hoje"
	}
	if isISODate(raw) {
		return raw, nil
	}

	dates, ok := caps[capabilityx.NameDates]
	if !ok {
		log.Warn().Str("transaction_date", raw).Msg("date capability unavailable, keeping raw expression")
		return raw, nil
	}

	res, err := dates.Invoke(ctx, capabilityx.ToolResolveRelativeDate, map[string]any{"input": raw})
	if err != nil {
		return "", fmt.Errorf("%w: resolve transaction date: %v", contractx.ErrSchemaViolation, err)
	}
	resolved, _ := res.Result.(string)
	if resolved == capabilityx.SentinelInvalidDate || resolved == capabilityx.SentinelUnrecognizedForm || !isISODate(resolved) {
		return "", fmt.Errorf("%w: transaction_date=%q resolved to %q", contractx.ErrSchemaViolation, raw, resolved)
	}
	return resolved, nil
}

func isISODate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func parseQueryPayload(data json.RawMessage) (*contractx.QueryPayload, error) {
	var p contractx.QueryPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decode query payload: %v", contractx.ErrSchemaViolation, err)
	}
	p.Request = strings.TrimSpace(p.Request)
	if p.Request == "" {
		return nil, fmt.Errorf("%w: query request is required", contractx.ErrSchemaViolation)
	}
	return &p, nil
}

func parseAssetPayload(data json.RawMessage) (*contractx.AssetPayload, error) {
	var p contractx.AssetPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decode asset payload: %v", contractx.ErrSchemaViolation, err)
	}
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" {
		return nil, fmt.Errorf("%w: asset symbol is required", contractx.ErrSchemaViolation)
	}
	switch strings.ToLower(strings.TrimSpace(p.QueryKind)) {
	case contractx.QueryKindQuote, "cotacao", "cotação", "":
		p.QueryKind = contractx.QueryKindQuote
	case contractx.QueryKindAnalysis, "analise", "análise":
		p.QueryKind = contractx.QueryKindAnalysis
	default:
		return nil, fmt.Errorf("%w: query_kind=%q", contractx.ErrSchemaViolation, p.QueryKind)
	}
	return &p, nil
}

func parseChartPayload(data json.RawMessage) (*contractx.ChartPayload, error) {
	var p contractx.ChartPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decode chart payload: %v", contractx.ErrSchemaViolation, err)
	}
	if strings.TrimSpace(p.ChartKind) == "" {
		p.ChartKind = "income_expense_by_category"
	}
	switch strings.ToLower(strings.TrimSpace(p.Period)) {
	case contractx.PeriodLastMonth, "ultimo_mes", "último_mês", "":
		p.Period = contractx.PeriodLastMonth
	case contractx.PeriodLast3Months, "ultimos_3_meses", "últimos_3_meses":
		p.Period = contractx.PeriodLast3Months
	case contractx.PeriodCurrentYear, "ano_atual":
		p.Period = contractx.PeriodCurrentYear
	default:
		return nil, fmt.Errorf("%w: period=%q", contractx.ErrSchemaViolation, p.Period)
	}
	return &p, nil
}
