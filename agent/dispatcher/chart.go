package dispatcher

import (
	"context"
	"fmt"
	"strings"

	capabilityx "github.com/vbfalcao/finassist/agent/capability"
	contractx "github.com/vbfalcao/finassist/agent/contract"
	pipelinex "github.com/vbfalcao/finassist/agent/pipeline"
)

// chartStages aggregates category totals and hands them to the external
// renderer. The terminal output is a status payload; the user-facing prose is
// carried in its message field.
func chartStages() []pipelinex.Stage {
	return []pipelinex.Stage{
		{Name: "aggregate", Run: aggregateForChart},
		{Name: "render", Run: renderChart},
		{Name: "report", Run: reportChart},
	}
}

func aggregateForChart(ctx context.Context, pc *pipelinex.Context) error {
	c := pc.Classification.Chart
	if c == nil {
		return fmt.Errorf("%w: chart payload is missing", contractx.ErrValidation)
	}
	store, err := capOf(pc, capabilityx.NameDataStore)
	if err != nil {
		return err
	}

	res, err := store.Invoke(ctx, capabilityx.ToolAggregateByCategory, map[string]any{
		"period": c.Period,
	})
	if err != nil {
		return err
	}
	if res.Error != "" {
		return fmt.Errorf("%s: %s", res.Tool, res.Error)
	}

	pc.Set("totals", res.Result)
	return nil
}

func renderChart(ctx context.Context, pc *pipelinex.Context) error {
	c := pc.Classification.Chart
	totals, _ := pc.Get("totals")

	charts, err := capOf(pc, capabilityx.NameCharts)
	if err != nil {
		return err
	}

	res, err := charts.Invoke(ctx, capabilityx.ToolRenderCategoryChart, map[string]any{
		"chart_kind": c.ChartKind,
		"period":     c.Period,
		"data":       totals,
	})
	if err != nil {
		return err
	}
	if res.Error != "" {
		return fmt.Errorf("%s: %s", res.Tool, res.Error)
	}

	var files []string
	if data, ok := res.Result.(map[string]any); ok {
		switch v := data["files"].(type) {
		case []string:
			files = v
		case []any:
			for _, f := range v {
				if s, ok := f.(string); ok {
					files = append(files, s)
				}
			}
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("%s produced no artifacts", capabilityx.ToolRenderCategoryChart)
	}

	pc.Set("files", files)
	return nil
}

func reportChart(_ context.Context, pc *pipelinex.Context) error {
	v, _ := pc.Get("files")
	files, _ := v.([]string)

	pc.Output = map[string]any{
		"status":   "ok",
		"message":  fmt.Sprintf("📊 Gráfico gerado com sucesso! Arquivos: %s", strings.Join(files, ", ")),
		"arquivos": files,
	}
	return nil
}
