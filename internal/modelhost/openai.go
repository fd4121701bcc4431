package modelhost

import (
	"context"
	"fmt"

	"github.com/haasonsaas/nexus/internal/agent/providers"
	"github.com/haasonsaas/nexus/internal/scheduler"
)

// OpenAI wraps providers.OpenAIProvider as a scheduler.ModelCapability.
type OpenAI struct {
	provider *providers.OpenAIProvider
}

// NewOpenAI constructs an adapter around a configured OpenAI client.
func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{provider: providers.NewOpenAIProvider(apiKey)}
}

// Complete drains a full streaming response and folds it into one
// scheduler.ChatResponse.
func (o *OpenAI) Complete(ctx context.Context, req scheduler.ChatRequest) (scheduler.ChatResponse, error) {
	return o.CompleteStreaming(ctx, req, nil)
}

// CompleteStreaming streams text deltas to onChunk (when non-nil) while
// accumulating the full response.
func (o *OpenAI) CompleteStreaming(ctx context.Context, req scheduler.ChatRequest, onChunk scheduler.ChunkCallback) (scheduler.ChatResponse, error) {
	creq := toCompletionRequest(req)

	chunks, err := o.provider.Complete(ctx, creq)
	if err != nil {
		return scheduler.ChatResponse{}, fmt.Errorf("modelhost: openai complete: %w", err)
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
