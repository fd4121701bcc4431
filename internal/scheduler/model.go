package scheduler

import "context"

// ToolSpec describes one callable tool as advertised to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCallRequest is one tool invocation the model asked for in its response.
type ToolCallRequest struct {
	ID       string
	Name     string
	RawArgs  string
}

// ChatMessage is one entry in the request sent to the model.
type ChatMessage struct {
	Role       string // "system" | "user" | "assistant" | "tool"
	Content    string
	ToolCallID string // set when Role == "tool"
}

// ChatRequest is the blocking/streaming completion request, matching the
// model capability interface every scheduler depends on.
type ChatRequest struct {
	Model      string
	Messages   []ChatMessage
	Tools      []ToolSpec
	MaxTokens  int
}

// ChatResponse is what a model call returns.
type ChatResponse struct {
	Text         string
	FinishReason string
	ToolCalls    []ToolCallRequest
	Usage        Usage
}

// ChunkCallback is invoked for each streamed delta; it must not block.
type ChunkCallback func(delta string)

// ModelCapability is the two-operation interface the scheduler consumes. It
// never depends on any particular wire format; concrete adapters for
// anthropic-sdk-go and go-openai live outside this package.
type ModelCapability interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
	CompleteStreaming(ctx context.Context, req ChatRequest, onChunk ChunkCallback) (ChatResponse, error)
}
