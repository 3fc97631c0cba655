// Package pipeline is a generic sequential stage runner. A pipeline is a
// fixed, ordered list of stages compiled once into an eino graph of lambda
// nodes; each stage consumes the accumulated context plus the previous stage's
// output and either extends the context or fails the whole run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/vbfalcao/finassist/agent/contract"
)

// Context is the shared state threaded through every stage of one run.
type Context struct {
	Question       string
	UserID         string
	SessionID      string
	Classification contractx.Classification

	Caps     contractx.CapabilitySet
	Memory   contractx.Memory
	Composer contractx.Composer
	Now      time.Time

	// Values accumulates intermediate stage outputs by name; Output is the
	// terminal stage's result handed to the result extractor.
	Values map[string]any
	Output any
}

// Set records a named intermediate output.
func (c *Context) Set(key string, value any) {
	if c.Values == nil {
		c.Values = make(map[string]any, 4)
	}
	c.Values[key] = value
}

// Get returns a previously recorded intermediate output.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.Values[key]
	return v, ok
}

// Stage is one unit of work: a pure function of the run context and the
// capabilities it carries. Stages must not retry side-effecting work.
type Stage struct {
	Name string
	Run  func(ctx context.Context, pc *Context) error
}

// Pipeline executes its stages strictly in order, at most once each. Any
// stage error aborts the run.
type Pipeline struct {
	name   string
	runner compose.Runnable[*Context, *Context]
}

// New compiles the ordered stage list into a runnable graph. The stage list
// is fixed at compile time; no stage may be skipped or reordered afterwards.
func New(ctx context.Context, name string, stages []Stage) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: pipeline %s has no stages", contractx.ErrValidation, name)
	}

	graph := compose.NewGraph[*Context, *Context]()

	for _, st := range stages {
		st := st
		if st.Name == "" || st.Run == nil {
			return nil, fmt.Errorf("%w: pipeline %s has an unnamed or empty stage", contractx.ErrValidation, name)
		}
		node := compose.InvokableLambda(func(ctx context.Context, pc *Context) (*Context, error) {
			if pc == nil {
				return nil, fmt.Errorf("%w: pipeline context is nil", contractx.ErrValidation)
			}
			if err := st.Run(ctx, pc); err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %v", contractx.ErrStage, name, st.Name, err)
			}
			return pc, nil
		})
		if err := graph.AddLambdaNode(st.Name, node); err != nil {
			return nil, fmt.Errorf("add stage %s: %w", st.Name, err)
		}
	}

	prev := compose.START
	for _, st := range stages {
		if err := graph.AddEdge(prev, st.Name); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", prev, st.Name, err)
		}
		prev = st.Name
	}
	if err := graph.AddEdge(prev, compose.END); err != nil {
		return nil, fmt.Errorf("add edge %s->end: %w", prev, err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("pipeline."+name))
	if err != nil {
		return nil, fmt.Errorf("compile pipeline %s: %w", name, err)
	}

	return &Pipeline{name: name, runner: runner}, nil
}

func (p *Pipeline) Name() string {
	return p.name
}

// Run executes the stage sequence and returns the terminal stage's output.
func (p *Pipeline) Run(ctx context.Context, pc *Context) (any, error) {
	if pc == nil {
		return nil, fmt.Errorf("%w: pipeline context is nil", contractx.ErrValidation)
	}
	out, err := p.runner.Invoke(ctx, pc)
	if err != nil {
		return nil, err
	}
	return out.Output, nil
}
