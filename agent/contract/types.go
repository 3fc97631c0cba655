package contract

import "context"

// Kind identifies which pipeline a classified request belongs to.
type Kind string

const (
	KindRecordTransactionInsert Kind = "RECORD_TRANSACTION_INSERT"
	KindRecordTransactionQuery  Kind = "RECORD_TRANSACTION_QUERY"
	KindAssetLookup             Kind = "ASSET_LOOKUP"
	KindChartRequest            Kind = "CHART_REQUEST"
)

// KnownKinds lists every kind the dispatcher can route. Anything else is an
// unknown classification and yields the fixed "can't handle this" reply.
var KnownKinds = map[Kind]bool{
	KindRecordTransactionInsert: true,
	KindRecordTransactionQuery:  true,
	KindAssetLookup:             true,
	KindChartRequest:            true,
}

// AgentType names the LLM role a model configuration applies to.
type AgentType string

const (
	AgentTypeClassifier AgentType = "classifier"
	AgentTypeComposer   AgentType = "composer"
)

type Status string

const (
	StatusComplete   Status = "COMPLETE"
	StatusIncomplete Status = "INCOMPLETE"
)

type Direction string

const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
)

const (
	QueryKindQuote    = "quote"
	QueryKindAnalysis = "analysis"
)

const (
	PeriodLastMonth   = "last_month"
	PeriodLast3Months = "last_3_months"
	PeriodCurrentYear = "current_year"
)

// InsertPayload carries one financial transaction to persist.
// TransactionDate is an ISO YYYY-MM-DD string, already resolved through the
// date-normalizer capability; the classifier never computes dates itself.
type InsertPayload struct {
	Amount          float64   `json:"amount"`
	Direction       Direction `json:"direction"`
	AccountID       int       `json:"account_id"`
	Category        string    `json:"category"`
	TransactionDate string    `json:"transaction_date"`
	Description     string    `json:"description"`
}

// QueryPayload is a free-text description of the requested lookup or aggregate.
type QueryPayload struct {
	Request string `json:"request"`
}

type AssetPayload struct {
	Symbol    string `json:"symbol"`
	QueryKind string `json:"query_kind"`
	Date      string `json:"date,omitempty"`
}

type ChartPayload struct {
	ChartKind string `json:"chart_kind"`
	Period    string `json:"period"`
}

// Classification is the structured decision produced by the classifier stage.
// Exactly one payload pointer is set for a known kind; all are nil when Kind is
// outside KnownKinds. Immutable once produced.
type Classification struct {
	Kind   Kind
	Status Status

	Insert *InsertPayload
	Query  *QueryPayload
	Asset  *AssetPayload
	Chart  *ChartPayload
}

// ToolResult is the outcome of one capability invocation. Error is a
// provider-level failure message; an empty Error with a nil Result is valid for
// tools that only produce side effects.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CapabilitySet maps capability name to its adapter. Built once per dispatch
// cycle; entries may be absent without invalidating the set.
type CapabilitySet map[string]Invoker

// Has reports whether every named capability is present.
func (s CapabilitySet) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := s[name]; !ok {
			return false
		}
	}
	return true
}

// ComposeRequest asks the completion capability for user-facing prose built
// from structured data. Instructions carry the formatting policy for the
// pipeline at hand; Context carries session memory snippets.
type ComposeRequest struct {
	Question     string   `json:"question"`
	Instructions string   `json:"instructions"`
	Data         any      `json:"data,omitempty"`
	Context      []string `json:"context,omitempty"`
}

// Closer is implemented by adapters that hold releasable resources. Shutdown
// must be idempotent; the dispatcher closes every adapter on every exit path.
type Closer interface {
	Close(ctx context.Context) error
}
