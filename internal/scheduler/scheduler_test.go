package scheduler

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/nexus/internal/checkpoint"
	"github.com/haasonsaas/nexus/internal/ctxmgr"
	"github.com/haasonsaas/nexus/internal/journal"
	"github.com/haasonsaas/nexus/internal/policy"
	"github.com/haasonsaas/nexus/internal/toolhost"
)

// fakeModel is a scripted ModelCapability: each call pops the next response
// off the queue, letting tests drive a multi-turn conversation deterministically.
type fakeModel struct {
	responses []ChatResponse
	calls     int
}

func (f *fakeModel) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if f.calls >= len(f.responses) {
		return ChatResponse{Text: "done"}, nil
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func (f *fakeModel) CompleteStreaming(ctx context.Context, req ChatRequest, onChunk ChunkCallback) (ChatResponse, error) {
	return f.Complete(ctx, req)
}

type echoTool struct {
	name     string
	readOnly bool
	output   string
}

func (t *echoTool) Name() string     { return t.name }
func (t *echoTool) IsReadOnly() bool { return t.readOnly }
func (t *echoTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.output, nil
}

func newTestScheduler(t *testing.T, model ModelCapability) *Scheduler {
	t.Helper()
	dir := t.TempDir()

	j, err := journal.Open(filepath.Join(dir, "journal"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	cpStore, err := checkpoint.NewStore(filepath.Join(dir, "checkpoints"))
	if err != nil {
		t.Fatalf("checkpoint.NewStore: %v", err)
	}

	host := toolhost.New(toolhost.Config{
		Mode:      policy.ModeBypassPermission,
		Workspace: dir,
		Journal:   j,
		SessionID: "sess-1",
		Checkpoint: cpStore,
	})
	host.Register(&echoTool{name: "fs_read", readOnly: true, output: "file contents"})
	host.Register(&echoTool{name: "fs_write", readOnly: false, output: "wrote ok"})

	cm := ctxmgr.New(ctxmgr.Config{SystemPrompt: "you are a coding assistant"})

	return New(model, host, cm, j, "sess-1")
}

func TestSchedulerSimpleOneShotNoTools(t *testing.T) {
	model := &fakeModel{responses: []ChatResponse{
		{Text: "The answer is 4."},
	}}
	s := newTestScheduler(t, model)

	out, err := s.Run(context.Background(), "what is 2+2?", Options{Mode: policy.ChatModeCode})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "The answer is 4." {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestSchedulerSingleReadToolThenAnswer(t *testing.T) {
	model := &fakeModel{responses: []ChatResponse{
		{ToolCalls: []ToolCallRequest{{ID: "call-1", Name: "fs_read", RawArgs: `{"path":"a.go"}`}}},
		{Text: "a.go contains file contents."},
	}}
	s := newTestScheduler(t, model)

	out, err := s.Run(context.Background(), "what's in a.go?", Options{Mode: policy.ChatModeCode})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "a.go contains file contents." {
		t.Fatalf("unexpected output: %q", out)
	}
	if model.calls != 2 {
		t.Fatalf("expected 2 model calls, got %d", model.calls)
	}
}

func TestSchedulerWriteToolTriggersCheckpoint(t *testing.T) {
	model := &fakeModel{responses: []ChatResponse{
		{ToolCalls: []ToolCallRequest{{ID: "call-1", Name: "fs_write", RawArgs: `{"path":"b.go"}`}}},
		{Text: "wrote b.go."},
	}}
	s := newTestScheduler(t, model)

	_, err := s.Run(context.Background(), "write b.go", Options{Mode: policy.ChatModeCode})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	events, err := s.journal.ListEvents("sess-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	var sawExecuted bool
	for _, e := range events {
		if e.Kind == journal.KindToolExecuted {
			sawExecuted = true
		}
	}
	if !sawExecuted {
		t.Fatalf("expected a tool_executed event to be journaled")
	}
}

func TestSchedulerMaxTurnsExceeded(t *testing.T) {
	// Always asks for another tool call; never settles. With MaxTurns capped
	// low, the scheduler must stop rather than loop forever.
	responses := make([]ChatResponse, 0, 10)
	for i := 0; i < 10; i++ {
		responses = append(responses, ChatResponse{
			ToolCalls: []ToolCallRequest{{ID: "call", Name: "fs_read", RawArgs: `{"path":"a.go"}`}},
		})
	}
	model := &fakeModel{responses: responses}
	s := newTestScheduler(t, model)

	_, err := s.Run(context.Background(), "loop forever", Options{Mode: policy.ChatModeCode, MaxTurns: 2})
	if err == nil {
		t.Fatalf("expected an error when max turns is exceeded")
	}
	var schedErr *Error
	if !isSchedulerError(err, &schedErr) {
		t.Fatalf("expected a *scheduler.Error, got %v", err)
	}
	if schedErr.Kind != KindMaxTurnsExceeded {
		t.Fatalf("expected KindMaxTurnsExceeded, got %v", schedErr.Kind)
	}
}

func TestSchedulerDoomLoopDetected(t *testing.T) {
	// The same identical fs_read call, forever: doom loop guidance fires once,
	// then a second identical cycle terminates the run.
	responses := make([]ChatResponse, 0, 10)
	for i := 0; i < 8; i++ {
		responses = append(responses, ChatResponse{
			ToolCalls: []ToolCallRequest{{ID: "call", Name: "fs_read", RawArgs: `{"path":"same.go"}`}},
		})
	}
	model := &fakeModel{responses: responses}
	s := newTestScheduler(t, model)

	_, err := s.Run(context.Background(), "read same.go repeatedly", Options{Mode: policy.ChatModeCode, MaxTurns: 8})
	if err == nil {
		t.Fatalf("expected a doom loop error")
	}
	var schedErr *Error
	if !isSchedulerError(err, &schedErr) {
		t.Fatalf("expected a *scheduler.Error, got %v", err)
	}
	if schedErr.Kind != KindDoomLoop {
		t.Fatalf("expected KindDoomLoop, got %v", schedErr.Kind)
	}
}

func isSchedulerError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
