package dispatcher

import (
	"context"
	"fmt"
	"strings"

	capabilityx "github.com/vbfalcao/finassist/agent/capability"
	contractx "github.com/vbfalcao/finassist/agent/contract"
	pipelinex "github.com/vbfalcao/finassist/agent/pipeline"
)

// insertStages persists one transaction and confirms it back to the user. The
// confirmation is rendered from the persisted row echo, never from the
// classifier payload, so the user only ever sees what the store accepted.
func insertStages() []pipelinex.Stage {
	return []pipelinex.Stage{
		{Name: "persist", Run: persistTransaction},
		{Name: "confirm", Run: confirmTransaction},
	}
}

func persistTransaction(ctx context.Context, pc *pipelinex.Context) error {
	p := pc.Classification.Insert
	if p == nil {
		return fmt.Errorf("%w: insert payload is missing", contractx.ErrValidation)
	}
	store, err := capOf(pc, capabilityx.NameDataStore)
	if err != nil {
		return err
	}

	res, err := store.Invoke(ctx, capabilityx.ToolInsertTransaction, map[string]any{
		"amount":           p.Amount,
		"direction":        string(p.Direction),
		"account_id":       p.AccountID,
		"category":         p.Category,
		"transaction_date": p.TransactionDate,
		"description":      p.Description,
	})
	if err != nil {
		return err
	}
	if res.Error != "" {
		return fmt.Errorf("%s: %s", res.Tool, res.Error)
	}

	row, ok := res.Result.(map[string]any)
	if !ok {
		return fmt.Errorf("%s returned no persisted row", capabilityx.ToolInsertTransaction)
	}
	pc.Set("row", row)
	return nil
}

func confirmTransaction(_ context.Context, pc *pipelinex.Context) error {
	v, ok := pc.Get("row")
	if !ok {
		return fmt.Errorf("persisted row is missing")
	}
	row := v.(map[string]any)

	icon := "💸"
	if direction, _ := row["direction"].(string); direction == string(contractx.DirectionIncome) {
		icon = "💰"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Sua transação foi registrada com sucesso:\n", icon)
	if amount, ok := floatFrom(row["amount"]); ok {
		fmt.Fprintf(&b, "- Valor: %s\n", Currency(amount))
	}
	if category, _ := row["category"].(string); category != "" {
		fmt.Fprintf(&b, "- Categoria: %s\n", category)
	}
	if date, _ := row["transaction_date"].(string); date != "" {
		fmt.Fprintf(&b, "- Data: %s\n", DateBR(date))
	}
	if account, ok := floatFrom(row["account_id"]); ok {
		fmt.Fprintf(&b, "- Conta: %d\n", int(account))
	}
	if description, _ := row["description"].(string); description != "" {
		fmt.Fprintf(&b, "- 📝 Descrição: %s\n", description)
	}

	pc.Output = strings.TrimRight(b.String(), "\n")
	return nil
}
