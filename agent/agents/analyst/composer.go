package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/vbfalcao/finassist/agent/contract"
)

type composerImpl struct {
	runner compose.Runnable[map[string]any, composerLLMOutput]
}

type composerLLMOutput struct {
	Message string `json:"message"`
}

func newComposer(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*composerImpl, error) {
	runner, err := compileComposerGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile composer graph: %v", contractx.ErrModelInvoke, err)
	}
	return &composerImpl{runner: runner}, nil
}

func (c *composerImpl) Compose(ctx context.Context, req contractx.ComposeRequest) (string, error) {
	if strings.TrimSpace(req.Question) == "" {
		return "", fmt.Errorf("%w: question is required", contractx.ErrValidation)
	}

	inputBytes, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: marshal compose payload: %v", contractx.ErrValidation, err)
	}

	out, err := c.runner.Invoke(ctx, map[string]any{
		"input": string(inputBytes),
	})
	if err != nil {
		return "", fmt.Errorf("%w: composer invoke: %v", contractx.ErrModelInvoke, err)
	}

	message := strings.TrimSpace(out.Message)
	if message == "" {
		return "", fmt.Errorf("%w: composer returned an empty message", contractx.ErrSchemaViolation)
	}
	return message, nil
}
