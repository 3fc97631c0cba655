package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	capabilityx "github.com/vbfalcao/finassist/agent/capability"
	contractx "github.com/vbfalcao/finassist/agent/contract"
	pipelinex "github.com/vbfalcao/finassist/agent/pipeline"
)

const queryInstructions = "Responda à consulta financeira do usuário usando somente os dados " +
	"fornecidos. Valores monetários no formato R$ 1.234,56 e datas no formato DD/MM/AAAA. " +
	"Se não houver dados, diga que nada foi encontrado no período."

// queryStages answers lookups and aggregates over recorded transactions. A
// question about totals goes through the category aggregate; everything else
// lists matching rows. Either way the composer writes the final prose.
func queryStages() []pipelinex.Stage {
	return []pipelinex.Stage{
		{Name: "lookup", Run: lookupTransactions},
		{Name: "compose", Run: composeQueryReply},
	}
}

func lookupTransactions(ctx context.Context, pc *pipelinex.Context) error {
	q := pc.Classification.Query
	if q == nil {
		return fmt.Errorf("%w: query payload is missing", contractx.ErrValidation)
	}
	store, err := capOf(pc, capabilityx.NameDataStore)
	if err != nil {
		return err
	}

	var res contractx.ToolResult
	if wantsAggregate(q.Request) {
		res, err = store.Invoke(ctx, capabilityx.ToolAggregateByCategory, map[string]any{
			"period": periodFromRequest(q.Request),
		})
	} else {
		res, err = store.Invoke(ctx, capabilityx.ToolQueryTransactions, map[string]any{
			"request": q.Request,
		})
	}
	if err != nil {
		return err
	}
	if res.Error != "" {
		return fmt.Errorf("%s: %s", res.Tool, res.Error)
	}

	pc.Set("data", res.Result)
	return nil
}

func composeQueryReply(ctx context.Context, pc *pipelinex.Context) error {
	data, _ := pc.Get("data")

	var snippets []string
	if pc.Memory != nil {
		found, err := pc.Memory.Search(ctx, pc.Question, 5)
		if err != nil {
			log.Warn().Err(err).Msg("memory search failed, composing without context")
		} else {
			snippets = found
		}
	}

	message, err := pc.Composer.Compose(ctx, contractx.ComposeRequest{
		Question:     pc.Question,
		Instructions: queryInstructions,
		Data:         data,
		Context:      snippets,
	})
	if err != nil {
		return err
	}
	pc.Output = message
	return nil
}

func wantsAggregate(request string) bool {
	lower := strings.ToLower(request)
	return containsAny(lower, "total", "saldo", "quanto", "soma")
}

func periodFromRequest(request string) string {
	lower := strings.ToLower(request)
	switch {
	case containsAny(lower, "ano", "este ano", "anual"):
		return contractx.PeriodCurrentYear
	case containsAny(lower, "3 meses", "três meses", "tres meses", "trimestre"):
		return contractx.PeriodLast3Months
	default:
		return contractx.PeriodLastMonth
	}
}

func containsAny(s string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
