// Package capability wraps each external tool provider behind the uniform
// invocation interface. Adapters initialize independently; a failed adapter is
// logged and omitted from the set instead of aborting the dispatch.
package capability

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/vbfalcao/finassist/agent/contract"
)

// Capability names used as keys in the capability set.
const (
	NameDates      = "dates"
	NameDataStore  = "datastore"
	NameMarketData = "marketdata"
	NameCharts     = "charts"
)

// Tool names spoken through the invocation protocol.
const (
	ToolResolveRelativeDate = "resolve_relative_date"
	ToolInsertTransaction   = "insert_transaction"
	ToolQueryTransactions   = "query_transactions"
	ToolAggregateByCategory = "aggregate_by_category"
	ToolGetQuote            = "get_quote"
	ToolGetAnalysis         = "get_analysis"
	ToolRenderCategoryChart = "render_category_chart"
)

// Bootstrap constructs one named adapter. Construction may fail without
// invalidating the rest of the set.
type Bootstrap struct {
	Name  string
	Build func(ctx context.Context) (contractx.Invoker, error)
}

// BuildSet runs every bootstrap, collecting the adapters that initialized.
// Failures are logged and skipped; the returned closers release whatever did
// initialize and must be invoked on every exit path of the dispatch cycle.
func BuildSet(ctx context.Context, bootstraps []Bootstrap) (contractx.CapabilitySet, func(context.Context)) {
	set := make(contractx.CapabilitySet, len(bootstraps))
	var closers []contractx.Closer

	for _, b := range bootstraps {
		if b.Build == nil {
			continue
		}
		adapter, err := b.Build(ctx)
		if err != nil {
			log.Warn().Err(err).Str("capability", b.Name).Msg("capability adapter failed to initialize")
			continue
		}
		set[b.Name] = adapter
		if closer, ok := adapter.(contractx.Closer); ok {
			closers = append(closers, closer)
		}
	}

	release := func(ctx context.Context) {
		for _, closer := range closers {
			if err := closer.Close(ctx); err != nil {
				log.Warn().Err(err).Msg("capability adapter close failed")
			}
		}
	}
	return set, release
}
