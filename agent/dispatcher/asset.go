package dispatcher

import (
	"context"
	"fmt"

	capabilityx "github.com/vbfalcao/finassist/agent/capability"
	contractx "github.com/vbfalcao/finassist/agent/contract"
	pipelinex "github.com/vbfalcao/finassist/agent/pipeline"
)

const analysisInstructions = "Apresente a análise do ativo em poucas frases, citando apenas os " +
	"indicadores presentes nos dados. Valores monetários no formato R$ 1.234,56."

// assetStages fetches a quote or analysis from the market-data provider.
// Quotes get a fixed one-line reply; analyses go through the composer.
func assetStages() []pipelinex.Stage {
	return []pipelinex.Stage{
		{Name: "fetch", Run: fetchAssetData},
		{Name: "present", Run: presentAssetData},
	}
}

func fetchAssetData(ctx context.Context, pc *pipelinex.Context) error {
	a := pc.Classification.Asset
	if a == nil {
		return fmt.Errorf("%w: asset payload is missing", contractx.ErrValidation)
	}
	marketData, err := capOf(pc, capabilityx.NameMarketData)
	if err != nil {
		return err
	}

	tool := capabilityx.ToolGetQuote
	if a.QueryKind == contractx.QueryKindAnalysis {
		tool = capabilityx.ToolGetAnalysis
	}
	args := map[string]any{"symbol": a.Symbol}
	if a.Date != "" {
		args["date"] = a.Date
	}

	res, err := marketData.Invoke(ctx, tool, args)
	if err != nil {
		return err
	}
	if res.Error != "" {
		return fmt.Errorf("%s: %s", res.Tool, res.Error)
	}

	pc.Set("asset", res.Result)
	return nil
}

func presentAssetData(ctx context.Context, pc *pipelinex.Context) error {
	a := pc.Classification.Asset
	v, _ := pc.Get("asset")

	if a.QueryKind == contractx.QueryKindQuote {
		if data, ok := v.(map[string]any); ok {
			if price, ok := floatFrom(data["price"]); ok {
				if a.Date != "" {
					pc.Output = fmt.Sprintf("📈 A cotação de %s em %s era %s.", a.Symbol, DateBR(a.Date), Currency(price))
				} else {
					pc.Output = fmt.Sprintf("📈 A cotação atual de %s é %s.", a.Symbol, Currency(price))
				}
				return nil
			}
		}
	}

	message, err := pc.Composer.Compose(ctx, contractx.ComposeRequest{
		Question:     pc.Question,
		Instructions: analysisInstructions,
		Data:         v,
	})
	if err != nil {
		return err
	}
	pc.Output = message
	return nil
}
