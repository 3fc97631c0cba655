package capability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/vbfalcao/finassist/agent/contract"
)

// Transaction is one row of the transacoes table in Supabase.
type Transaction struct {
	bun.BaseModel `bun:"table:transacoes,alias:t"`

	ID            int64     `bun:"id,pk,autoincrement"`
	Valor         float64   `bun:"valor"`
	Tipo          string    `bun:"tipo"` // receita | despesa
	ContaID       int       `bun:"conta_id"`
	Categoria     string    `bun:"categoria"`
	DataTransacao time.Time `bun:"data_transacao"`
	Descricao     string    `bun:"descricao"`
}

type SupabaseConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
	QueryHorizon time.Duration `envconfig:"QUERY_HORIZON" split_words:"true" default:"2160h"` // 90 days
	QueryLimit   int           `envconfig:"QUERY_LIMIT" split_words:"true" default:"200"`
}

// SupabaseStore is the data-store capability: inserts, lookups and category
// aggregates over the transactions table.
type SupabaseStore struct {
	db      *bun.DB
	horizon time.Duration
	limit   int
	now     func() time.Time
}

func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("supabase dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(timeout),
	))
	db := bun.NewDB(sqldb, pgdialect.New())

	limit := cfg.QueryLimit
	if limit <= 0 {
		limit = 200
	}
	horizon := cfg.QueryHorizon
	if horizon <= 0 {
		horizon = 90 * 24 * time.Hour
	}

	return &SupabaseStore{db: db, horizon: horizon, limit: limit, now: time.Now}, nil
}

func (s *SupabaseStore) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SupabaseStore) Invoke(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error) {
	switch tool {
	case ToolInsertTransaction:
		return s.insertTransaction(ctx, args)
	case ToolQueryTransactions:
		return s.queryTransactions(ctx, args)
	case ToolAggregateByCategory:
		return s.aggregateByCategory(ctx, args)
	default:
		return contractx.ToolResult{
			Tool:  tool,
			Error: fmt.Sprintf("tool=%s is not provided by the data store", tool),
		}, nil
	}
}

func (s *SupabaseStore) insertTransaction(ctx context.Context, args map[string]any) (contractx.ToolResult, error) {
	amount, ok := asFloat(args["amount"])
	if !ok || amount <= 0 {
		return toolError(ToolInsertTransaction, "amount must be a positive number"), nil
	}
	direction, _ := args["direction"].(string)
	tipo, err := tipoFor(contractx.Direction(direction))
	if err != nil {
		return toolError(ToolInsertTransaction, err.Error()), nil
	}

	rawDate, _ := args["transaction_date"].(string)
	date, err := time.Parse("2006-01-02", rawDate)
	if err != nil {
		return toolError(ToolInsertTransaction, fmt.Sprintf("transaction_date %q is not ISO", rawDate)), nil
	}

	accountID := 5
	if v, ok := asFloat(args["account_id"]); ok && v > 0 {
		accountID = int(v)
	}
	category, _ := args["category"].(string)
	description, _ := args["description"].(string)

	tx := &Transaction{
		Valor:         amount,
		Tipo:          tipo,
		ContaID:       accountID,
		Categoria:     strings.TrimSpace(category),
		DataTransacao: date,
		Descricao:     strings.TrimSpace(description),
	}
	if _, err := s.db.NewInsert().Model(tx).Exec(ctx); err != nil {
		return contractx.ToolResult{}, fmt.Errorf("insert transaction: %w", err)
	}

	// Echo the persisted row: reply composition must reference confirmed
	// values only, never the pre-insert payload.
	return contractx.ToolResult{
		Tool:   ToolInsertTransaction,
		Result: rowToMap(tx),
	}, nil
}

func (s *SupabaseStore) queryTransactions(ctx context.Context, args map[string]any) (contractx.ToolResult, error) {
	request, _ := args["request"].(string)

	q := s.db.NewSelect().
		Model((*Transaction)(nil)).
		Where("data_transacao >= ?", s.now().Add(-s.horizon)).
		OrderExpr("data_transacao DESC").
		Limit(s.limit)

	// Narrow by direction when the request clearly names one.
	lower := strings.ToLower(request)
	switch {
	case mentionsAny(lower, "despesa", "gastei", "gasto", "paguei"):
		q = q.Where("tipo = ?", "despesa")
	case mentionsAny(lower, "receita", "recebi", "ganhei"):
		q = q.Where("tipo = ?", "receita")
	}

	var rows []Transaction
	if err := q.Scan(ctx, &rows); err != nil {
		return contractx.ToolResult{}, fmt.Errorf("query transactions: %w", err)
	}

	out := make([]map[string]any, 0, len(rows))
	for i := range rows {
		out = append(out, rowToMap(&rows[i]))
	}
	return contractx.ToolResult{Tool: ToolQueryTransactions, Result: out}, nil
}

func (s *SupabaseStore) aggregateByCategory(ctx context.Context, args map[string]any) (contractx.ToolResult, error) {
	period, _ := args["period"].(string)
	start, err := periodStart(period, s.now())
	if err != nil {
		return toolError(ToolAggregateByCategory, err.Error()), nil
	}

	var totals []struct {
		Categoria string  `bun:"categoria"`
		Tipo      string  `bun:"tipo"`
		Total     float64 `bun:"total"`
	}
	err = s.db.NewSelect().
		Model((*Transaction)(nil)).
		Column("categoria", "tipo").
		ColumnExpr("SUM(valor) AS total").
		Where("data_transacao >= ?", start).
		GroupExpr("categoria, tipo").
		Scan(ctx, &totals)
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("aggregate by category: %w", err)
	}

	receitas := map[string]float64{}
	despesas := map[string]float64{}
	for _, row := range totals {
		switch row.Tipo {
		case "receita":
			receitas[row.Categoria] += row.Total
		case "despesa":
			despesas[row.Categoria] += row.Total
		}
	}

	return contractx.ToolResult{
		Tool: ToolAggregateByCategory,
		Result: map[string]any{
			"receitas": receitas,
			"despesas": despesas,
		},
	}, nil
}

// periodStart maps a chart period to its inclusive lower bound.
func periodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case contractx.PeriodLastMonth:
		return now.AddDate(0, -1, 0), nil
	case contractx.PeriodLast3Months:
		return now.AddDate(0, -3, 0), nil
	case contractx.PeriodCurrentYear:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported period=%q", period)
	}
}

func tipoFor(direction contractx.Direction) (string, error) {
	switch direction {
	case contractx.DirectionIncome:
		return "receita", nil
	case contractx.DirectionExpense:
		return "despesa", nil
	default:
		return "", fmt.Errorf("unsupported direction=%q", direction)
	}
}

func rowToMap(tx *Transaction) map[string]any {
	direction := contractx.DirectionExpense
	if tx.Tipo == "receita" {
		direction = contractx.DirectionIncome
	}
	return map[string]any{
		"id":               tx.ID,
		"amount":           tx.Valor,
		"direction":        string(direction),
		"account_id":       tx.ContaID,
		"category":         tx.Categoria,
		"transaction_date": tx.DataTransacao.Format("2006-01-02"),
		"description":      tx.Descricao,
	}
}

func toolError(tool, msg string) contractx.ToolResult {
	return contractx.ToolResult{Tool: tool, Error: msg}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func mentionsAny(s string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
