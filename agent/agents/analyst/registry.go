// Package analyst provides the completion-backed collaborators: the request
// classifier and the reply composer, both compiled eino graphs over the same
// OpenRouter chat models.
package analyst

import (
	"context"
	"fmt"

	contractx "github.com/vbfalcao/finassist/agent/contract"
	llmx "github.com/vbfalcao/finassist/agent/llm"
	promptx "github.com/vbfalcao/finassist/agent/prompt"
	openrouterx "github.com/vbfalcao/finassist/pkg/openrouter"
)

type registryImpl struct {
	classifier contractx.Classifier
	composer   contractx.Composer
}

func (r *registryImpl) Classifier() contractx.Classifier {
	return r.classifier
}

func (r *registryImpl) Composer() contractx.Composer {
	return r.composer
}

func NewRegistry(ctx context.Context, cfg llmx.Config) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts := promptx.LoadPromptSet()

	classifierModelCfg := cfg.OpenRouterFor(contractx.AgentTypeClassifier)
	classifierModel, err := classifierModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create classifier model: %v", contractx.ErrModelInvoke, err)
	}
	composerModelCfg := cfg.OpenRouterFor(contractx.AgentTypeComposer)
	composerModel, err := composerModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create composer model: %v", contractx.ErrModelInvoke, err)
	}

	classifier, err := newClassifier(ctx, classifierModel, prompts.Classifier)
	if err != nil {
		return nil, err
	}
	composer, err := newComposer(ctx, composerModel, prompts.Composer)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		classifier: classifier,
		composer:   composer,
	}, nil
}

// Probe verifies the classifier model is reachable before the registry is put
// in front of live traffic.
func Probe(ctx context.Context, cfg llmx.Config) error {
	orCfg := cfg.OpenRouterFor(contractx.AgentTypeClassifier)
	client := openrouterx.NewClient(orCfg)
	if client == nil {
		return fmt.Errorf("%w: completion provider is not configured", contractx.ErrCapabilityUnavailable)
	}
	if err := openrouterx.Ping(ctx, client, orCfg.Model); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrCapabilityUnavailable, err)
	}
	return nil
}
