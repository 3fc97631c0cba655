// Package dispatcher is the orchestration core: it classifies every incoming
// question, routes it to one of four compiled pipelines and extracts the final
// text. Answer never returns an error; every failure mode maps to a fixed
// user-facing reply.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	capabilityx "github.com/vbfalcao/finassist/agent/capability"
	contractx "github.com/vbfalcao/finassist/agent/contract"
	extractx "github.com/vbfalcao/finassist/agent/extract"
	pipelinex "github.com/vbfalcao/finassist/agent/pipeline"
	sessionx "github.com/vbfalcao/finassist/agent/session"
)

const (
	msgClassifierError = "Erro ao interpretar a resposta do classificador."
	msgUnknownKind     = "Classificação desconhecida. Não sei o que fazer com isso."
	msgStageFailure    = "❌ Não consegui concluir sua solicitação. Tente novamente em instantes."
	msgDegraded        = "⚠️ Os serviços necessários para responder estão indisponíveis no momento. Tente novamente mais tarde."
)

const defaultTimeout = 2 * time.Minute

type Config struct {
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"2m"`
}

// Dispatcher owns one dispatch cycle per question: session resolution,
// capability bootstrap, classification, pipeline run and memory write-back.
type Dispatcher struct {
	registry   contractx.Registry
	sessions   sessionx.Factory
	bootstraps []capabilityx.Bootstrap
	timeout    time.Duration
	now        func() time.Time

	pipelines map[contractx.Kind]*pipelinex.Pipeline
}

func New(
	ctx context.Context,
	registry contractx.Registry,
	sessions sessionx.Factory,
	bootstraps []capabilityx.Bootstrap,
	cfg Config,
) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("model registry is required")
	}
	if sessions == nil {
		return nil, errors.New("session factory is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	pipelines := make(map[contractx.Kind]*pipelinex.Pipeline, 4)
	for kind, stages := range map[contractx.Kind][]pipelinex.Stage{
		contractx.KindRecordTransactionInsert: insertStages(),
		contractx.KindRecordTransactionQuery:  queryStages(),
		contractx.KindAssetLookup:             assetStages(),
		contractx.KindChartRequest:            chartStages(),
	} {
		p, err := pipelinex.New(ctx, string(kind), stages)
		if err != nil {
			return nil, fmt.Errorf("compile %s pipeline: %w", kind, err)
		}
		pipelines[kind] = p
	}

	return &Dispatcher{
		registry:   registry,
		sessions:   sessions,
		bootstraps: bootstraps,
		timeout:    timeout,
		now:        time.Now,
		pipelines:  pipelines,
	}, nil
}

// requiredCaps lists the capabilities a pipeline cannot run without. The date
// capability is deliberately absent: classification degrades gracefully when
// it is gone.
var requiredCaps = map[contractx.Kind][]string{
	contractx.KindRecordTransactionInsert: {capabilityx.NameDataStore},
	contractx.KindRecordTransactionQuery:  {capabilityx.NameDataStore},
	contractx.KindAssetLookup:             {capabilityx.NameMarketData},
	contractx.KindChartRequest:            {capabilityx.NameDataStore, capabilityx.NameCharts},
}

// Answer runs one full dispatch cycle. It always returns user-facing text,
// never an error: failures inside the cycle map to fixed replies.
func (d *Dispatcher) Answer(ctx context.Context, question, userID string) string {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	now := d.now()
	sessionID := sessionx.NewID(now)
	memory := d.sessions.Memory(userID, sessionID)

	if sessionx.IsNewConversation(question) {
		if err := memory.Clear(ctx); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("memory clear failed, continuing")
		}
	}

	caps, release := capabilityx.BuildSet(ctx, d.bootstraps)
	defer release(ctx)

	cls, err := d.registry.Classifier().Classify(ctx, question, caps)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("session_id", sessionID).Msg("classification failed")
		return msgClassifierError
	}

	pipe, err := d.pipelineFor(cls.Kind)
	if err != nil {
		log.Info().Err(err).Str("session_id", sessionID).Msg("unroutable classification")
		return msgUnknownKind
	}

	if !caps.Has(requiredCaps[cls.Kind]...) {
		log.Warn().
			Str("kind", string(cls.Kind)).
			Strs("required", requiredCaps[cls.Kind]).
			Msg("required capabilities unavailable")
		return msgDegraded
	}

	out, err := pipe.Run(ctx, &pipelinex.Context{
		Question:       question,
		UserID:         userID,
		SessionID:      sessionID,
		Classification: cls,
		Caps:           caps,
		Memory:         memory,
		Composer:       d.registry.Composer(),
		Now:            now,
	})
	if err != nil {
		log.Error().Err(err).Str("kind", string(cls.Kind)).Str("session_id", sessionID).Msg("pipeline run failed")
		return msgStageFailure
	}

	answer := extractx.Extract(out)
	if answer.Text == "" {
		log.Error().Str("kind", string(cls.Kind)).Msg("pipeline produced no extractable output")
		return msgStageFailure
	}

	if err := memory.Append(ctx, fmt.Sprintf("Pergunta: %s\nResposta: %s", question, answer.Text)); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("memory append failed")
	}

	return answer.Text
}

// pipelineFor resolves the pipeline for a classification kind. A kind outside
// the routing table is an unknown classification.
func (d *Dispatcher) pipelineFor(kind contractx.Kind) (*pipelinex.Pipeline, error) {
	pipe, ok := d.pipelines[kind]
	if !ok {
		return nil, fmt.Errorf("%w: kind=%q", contractx.ErrUnknownClassification, kind)
	}
	return pipe, nil
}

func capOf(pc *pipelinex.Context, name string) (contractx.Invoker, error) {
	inv, ok := pc.Caps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrCapabilityUnavailable, name)
	}
	return inv, nil
}

func floatFrom(v any) (float64, bool) {
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
