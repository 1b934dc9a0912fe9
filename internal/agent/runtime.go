package agent

import (
	"context"
	"encoding/json"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/authgate"
	"github.com/devmesh/retrieval-orchestrator/internal/collab"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
)

const defaultStepBudget = 5

// Step records one iteration of the tool-call loop for observability and
// for the request API's SSE frames (C9).
type Step struct {
	Assistant *collab.ChatResponse `json:"assistant,omitempty"`
	ToolName  string               `json:"tool_name,omitempty"`
	ToolInput map[string]any       `json:"tool_input,omitempty"`
	ToolError string               `json:"tool_error,omitempty"`
}

// Result is the final outcome of Run/RunStreaming.
type Result struct {
	Text  string `json:"text"`
	Steps []Step `json:"steps"`
}

// Sink receives one named frame per loop event: "status", "text",
// "tool_call", "tool_result" — matching the request API's SSE taxonomy.
// The caller (C9) owns how frames are transported.
type Sink func(frame string, payload any)

func noopSink(string, any) {}

// Runtime drives the tool-call loop of spec §4.8: assemble messages, call
// the LLM, execute any tool calls it requests against Services and the
// caller's AuthContext, append the tool results, and repeat until the LLM
// returns a terminal text message or the step budget is exhausted.
type Runtime struct {
	registry   *Registry
	services   *Services
	stepBudget int
	logger     obs.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithStepBudget overrides the default step budget of 5.
func WithStepBudget(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.stepBudget = n
		}
	}
}

func New(registry *Registry, services *Services, logger obs.Logger, opts ...Option) *Runtime {
	r := &Runtime{registry: registry, services: services, stepBudget: defaultStepBudget, logger: logger.WithPrefix("agent")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the agent loop for one user message. Cancellation via ctx
// propagates into every LLM and tool call, per spec §5.
func (r *Runtime) Run(ctx context.Context, auth *authgate.AuthContext, systemPrompt, userMessage string) (*Result, error) {
	return r.run(ctx, auth, systemPrompt, userMessage, noopSink)
}

// RunStreaming is Run with a Sink invoked at each step boundary, so a
// caller can relay progress before the loop completes. The returned
// Result is identical to what Run would have produced for the same inputs.
func (r *Runtime) RunStreaming(ctx context.Context, auth *authgate.AuthContext, systemPrompt, userMessage string, sink Sink) (*Result, error) {
	return r.run(ctx, auth, systemPrompt, userMessage, sink)
}

func (r *Runtime) run(ctx context.Context, auth *authgate.AuthContext, systemPrompt, userMessage string, sink Sink) (*Result, error) {
	const op = "agent.Runtime.Run"

	messages := []collab.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userMessage},
	}
	specs := r.registry.Specs()
	result := &Result{}

	for step := 0; step < r.stepBudget; step++ {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.Internal, op, err)
		}

		sink("status", map[string]any{"step": step})
		resp, err := r.services.LLM.Chat(ctx, messages, specs)
		if err != nil {
			return nil, apperr.Wrap(apperr.BackendTransient, op, err)
		}
		result.Steps = append(result.Steps, Step{Assistant: &resp})

		if len(resp.ToolCalls) == 0 {
			result.Text = resp.Text
			sink("text", map[string]any{"text": resp.Text})
			return result, nil
		}

		messages = append(messages, collab.ChatMessage{Role: "assistant", Content: resp.Text})
		for _, call := range resp.ToolCalls {
			sink("tool_call", map[string]any{"name": call.Name, "arguments": call.Arguments})
			toolOut, toolErr := r.registry.Invoke(ctx, auth, r.services, call)
			entry := Step{ToolName: call.Name, ToolInput: call.Arguments}

			var observation string
			if toolErr != nil {
				entry.ToolError = toolErr.Error()
				observation = "error: " + toolErr.Error()
				sink("tool_result", map[string]any{"name": call.Name, "error": toolErr.Error()})
				r.logger.Warn("tool call failed", map[string]any{"tool": call.Name, "error": toolErr.Error()})
			} else {
				b, err := json.Marshal(toolOut)
				if err != nil {
					observation = "error: result could not be encoded"
				} else {
					observation = string(b)
				}
				sink("tool_result", map[string]any{"name": call.Name, "result": toolOut})
			}
			result.Steps = append(result.Steps, entry)
			messages = append(messages, collab.ChatMessage{Role: "tool", Content: observation})
		}
	}

	r.logger.Warn("agent step budget exhausted", map[string]any{"tenant_id": auth.TenantID, "steps": r.stepBudget})
	result.Text = "I wasn't able to finish answering this within the allotted steps."
	return result, nil
}
