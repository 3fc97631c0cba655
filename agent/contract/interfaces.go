package contract

import "context"

// Classifier maps free text to a Classification using the completion
// capability. It fails when the model output cannot be parsed as one of the
// declared payload shapes or lacks status=COMPLETE; it does not fail on an
// unknown kind, which the dispatcher turns into the fixed unknown reply.
type Classifier interface {
	Classify(ctx context.Context, question string, caps CapabilitySet) (Classification, error)
}

// Composer turns structured pipeline data into the final user-facing prose.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) (string, error)
}

// Registry exposes the completion-backed collaborators.
type Registry interface {
	Classifier() Classifier
	Composer() Composer
}

// Invoker is the uniform tool invocation surface every capability adapter
// implements.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (ToolResult, error)
}

// Memory is one isolated conversational store, scoped to a single
// (user_id, session_id) pair. It is never shared across sessions.
type Memory interface {
	Append(ctx context.Context, entry string) error
	Search(ctx context.Context, query string, limit int) ([]string, error)
	Clear(ctx context.Context) error
}
