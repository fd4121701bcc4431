// Package modelhost adapts the teacher's streaming LLM providers to the
// scheduler's two-operation ModelCapability interface.
package modelhost

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agent/providers"
	"github.com/haasonsaas/nexus/internal/scheduler"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Anthropic wraps providers.AnthropicProvider as a scheduler.ModelCapability.
type Anthropic struct {
	provider *providers.AnthropicProvider
}

// NewAnthropic constructs an adapter around a configured Anthropic client.
func NewAnthropic(cfg providers.AnthropicConfig) (*Anthropic, error) {
	p, err := providers.NewAnthropicProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Anthropic{provider: p}, nil
}

// Complete drains a full streaming response and folds it into one
// scheduler.ChatResponse.
func (a *Anthropic) Complete(ctx context.Context, req scheduler.ChatRequest) (scheduler.ChatResponse, error) {
	return a.CompleteStreaming(ctx, req, nil)
}

// CompleteStreaming streams text deltas to onChunk (when non-nil) while
// accumulating the full response.
func (a *Anthropic) CompleteStreaming(ctx context.Context, req scheduler.ChatRequest, onChunk scheduler.ChunkCallback) (scheduler.ChatResponse, error) {
	creq := toCompletionRequest(req)

	chunks, err := a.provider.Complete(ctx, creq)
	if err != nil {
		return scheduler.ChatResponse{}, fmt.Errorf("modelhost: anthropic complete: %w", err)
	}

	var resp scheduler.ChatResponse
	for chunk := range chunks {
		if chunk.Error != nil {
			return scheduler.ChatResponse{}, chunk.Error
		}
		if chunk.Text != "" {
			resp.Text += chunk.Text
			if onChunk != nil {
				onChunk(chunk.Text)
			}
		}
		if chunk.ToolCall != nil {
			resp.ToolCalls = append(resp.ToolCalls, scheduler.ToolCallRequest{
				ID:      chunk.ToolCall.ID,
				Name:    chunk.ToolCall.Name,
				RawArgs: string(chunk.ToolCall.Input),
			})
		}
		if chunk.Done {
			resp.Usage = scheduler.Usage{
				PromptTokens:     chunk.InputTokens,
				CompletionTokens: chunk.OutputTokens,
			}
		}
	}

	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = "tool_calls"
	} else {
		resp.FinishReason = "stop"
	}
	return resp, nil
}

func toCompletionRequest(req scheduler.ChatRequest) *agent.CompletionRequest {
	creq := &agent.CompletionRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}

	for _, m := range req.Messages {
		if m.Role == "system" {
			if creq.System != "" {
				creq.System += "\n\n" + m.Content
			} else {
				creq.System = m.Content
			}
			continue
		}
		if m.Role == "tool" {
			creq.Messages = append(creq.Messages, agent.CompletionMessage{
				Role: "tool",
				ToolResults: []models.ToolResult{{
					ToolCallID: m.ToolCallID,
					Content:    m.Content,
				}},
			})
			continue
		}
		creq.Messages = append(creq.Messages, agent.CompletionMessage{Role: m.Role, Content: m.Content})
	}

	for _, spec := range req.Tools {
		creq.Tools = append(creq.Tools, toolSpecShim{spec: spec})
	}
	return creq
}

// toolSpecShim satisfies agent.Tool for declaration purposes only; the
// scheduler dispatches actual execution through the Tool Host, never
// through this shim's Execute.
type toolSpecShim struct {
	spec scheduler.ToolSpec
}

func (s toolSpecShim) Name() string        { return s.spec.Name }
func (s toolSpecShim) Description() string { return s.spec.Description }

func (s toolSpecShim) Schema() json.RawMessage {
	payload, err := json.Marshal(s.spec.Parameters)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (s toolSpecShim) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return nil, fmt.Errorf("modelhost: tool %q must be executed through the tool host, not the model adapter", s.spec.Name)
}
