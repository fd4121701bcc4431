package modelhost

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus/internal/scheduler"
)

func TestNewOpenAISatisfiesModelCapability(t *testing.T) {
	var _ scheduler.ModelCapability = NewOpenAI("")
}

func TestOpenAICompleteWithoutAPIKeyFails(t *testing.T) {
	o := NewOpenAI("")
	if _, err := o.Complete(context.Background(), scheduler.ChatRequest{Model: "gpt-4o"}); err == nil {
		t.Fatal("expected an error when no OpenAI API key is configured")
	}
}
