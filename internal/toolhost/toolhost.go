// Package toolhost is the execution edge of the agent loop: it proposes tool
// calls for approval, checkpoints the workspace before destructive tools,
// executes approved calls, and never lets a tool panic escape to the caller.
package toolhost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/checkpoint"
	"github.com/haasonsaas/nexus/internal/journal"
	"github.com/haasonsaas/nexus/internal/policy"
)

// ToolCall is a model-issued request to invoke one named tool with a raw
// JSON argument object.
type ToolCall struct {
	Name string
	Args json.RawMessage
}

// Proposal attaches an invocation id to a ToolCall and records whether the
// policy engine auto-approved it.
type Proposal struct {
	InvocationID string
	Call         ToolCall
	Approved     bool
}

// Result is what a Tool execution observes: either a successful output or a
// failed one. Failure is a normal, successful observation from the Tool
// Host's point of view — it is never an error return from Execute.
type Result struct {
	InvocationID string
	Success      bool
	Output       string
}

// Tool is the contract every tool implementation must satisfy.
type Tool interface {
	Name() string
	IsReadOnly() bool
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// ApprovalHandler is consulted when a proposal is not auto-approved by
// policy; in non-interactive contexts it is expected to deny.
type ApprovalHandler func(ctx context.Context, p Proposal) bool

// Host dispatches tool calls under a permission mode, checkpointing the
// workspace before any write-class tool whose target paths already exist.
type Host struct {
	mu         sync.Mutex
	tools      map[string]Tool
	mode       policy.Mode
	workspace  string
	journal    *journal.Journal
	sessionID  string
	checkpoint *checkpoint.Store
	approve    ApprovalHandler
}

// Config bundles the Host's fixed collaborators.
type Config struct {
	Workspace  string
	Mode       policy.Mode
	Journal    *journal.Journal
	SessionID  string
	Checkpoint *checkpoint.Store
	Approve    ApprovalHandler
}

// New constructs a Host with no tools registered; call Register for each
// tool in the catalog.
func New(cfg Config) *Host {
	return &Host{
		tools:      make(map[string]Tool),
		mode:       cfg.Mode,
		workspace:  cfg.Workspace,
		journal:    cfg.Journal,
		sessionID:  cfg.SessionID,
		checkpoint: cfg.Checkpoint,
		approve:    cfg.Approve,
	}
}

// Register adds t to the catalog, keyed by its own Name().
func (h *Host) Register(t Tool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools[t.Name()] = t
}

// Catalog returns the names of every registered tool.
func (h *Host) Catalog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.tools))
	for name := range h.tools {
		names = append(names, name)
	}
	return names
}

// Propose attaches a fresh invocation id to call and decides, from the
// active permission mode alone, whether it may run without an interactive
// approval step.
func (h *Host) Propose(call ToolCall) Proposal {
	return Proposal{
		InvocationID: uuid.Must(uuid.NewV7()).String(),
		Call:         call,
		Approved:     policy.AutoApprove(h.mode, call.Name),
	}
}

// RequestApproval resolves an unapproved proposal via the configured
// ApprovalHandler, journaling the decision either way.
func (h *Host) RequestApproval(ctx context.Context, p Proposal) (bool, error) {
	if p.Approved {
		if _, err := h.journal.Append(h.sessionID, journal.KindToolApproved, map[string]any{
			"invocation_id": p.InvocationID, "tool": p.Call.Name, "auto": true,
		}); err != nil {
			return false, err
		}
		return true, nil
	}
	approved := false
	if h.approve != nil {
		approved = h.approve(ctx, p)
	}
	if approved {
		if _, err := h.journal.Append(h.sessionID, journal.KindToolApproved, map[string]any{
			"invocation_id": p.InvocationID, "tool": p.Call.Name, "auto": false,
		}); err != nil {
			return false, err
		}
	}
	return approved, nil
}

// Execute runs an approved call: it confines any path arguments to the
// workspace root, checkpoints existing targets of write-class tools, and
// recovers from a panicking tool implementation by converting it into a
// failed Result rather than propagating.
func (h *Host) Execute(ctx context.Context, p Proposal) (result Result, execErr error) {
	h.mu.Lock()
	tool, ok := h.tools[p.Call.Name]
	h.mu.Unlock()
	if !ok {
		return Result{InvocationID: p.InvocationID, Success: false, Output: fmt.Sprintf("unknown tool %q", p.Call.Name)}, nil
	}

	var args map[string]any
	_ = json.Unmarshal(p.Call.Args, &args)

	if policy.IsWriteClass(p.Call.Name) && h.checkpoint != nil {
		paths := checkpoint.PathsForToolCall(args)
		confined := make([]string, 0, len(paths))
		for _, path := range paths {
			abs, err := policy.ConfinePath(h.workspace, path)
			if err != nil {
				return Result{InvocationID: p.InvocationID, Success: false, Output: err.Error()}, nil
			}
			if policy.IsGitMutation(h.workspace, abs) {
				return Result{InvocationID: p.InvocationID, Success: false, Output: policy.ErrGitMutationForbidden.Error()}, nil
			}
			confined = append(confined, abs)
		}
		ckpt, err := h.checkpoint.Create("pre-"+p.Call.Name, confined)
		if err != nil {
			return Result{}, fmt.Errorf("toolhost: checkpointing: %w", err)
		}
		if ckpt.FileCount > 0 {
			if _, err := h.journal.Append(h.sessionID, journal.KindCheckpointCreated, map[string]any{
				"checkpoint_id": ckpt.ID, "reason": ckpt.Reason, "file_count": ckpt.FileCount,
			}); err != nil {
				return Result{}, fmt.Errorf("toolhost: journaling checkpoint: %w", err)
			}
		}
	}

	output, err := h.safeExecute(ctx, tool, p.Call.Args)
	success := err == nil
	if err != nil {
		output = err.Error()
	}

	res := Result{InvocationID: p.InvocationID, Success: success, Output: output}
	if _, jerr := h.journal.Append(h.sessionID, journal.KindToolExecuted, map[string]any{
		"invocation_id": p.InvocationID, "tool": p.Call.Name, "success": success,
		"output_digest": journal.Digest(output),
	}); jerr != nil {
		return Result{}, fmt.Errorf("toolhost: journaling execution: %w", jerr)
	}

	if success {
		if kind, ok := backgroundJobKind(p.Call.Name, args); ok {
			if _, jerr := h.journal.Append(h.sessionID, kind, map[string]any{
				"invocation_id": p.InvocationID, "process_id": args["process_id"],
			}); jerr != nil {
				return Result{}, fmt.Errorf("toolhost: journaling background job: %w", jerr)
			}
		}
	}
	return res, nil
}

// backgroundJobKind recognizes tool calls that start, stop, or resume a
// background process and maps them to the matching journal Kind. name is
// the exec tool's background-capable run command and the process
// management tool's action field.
func backgroundJobKind(name string, args map[string]any) (journal.Kind, bool) {
	switch name {
	case "bash_run":
		if background, _ := args["background"].(bool); background {
			return journal.KindBackgroundJobStarted, true
		}
	case "bash_process":
		switch action, _ := args["action"].(string); action {
		case "kill", "remove":
			return journal.KindBackgroundJobStopped, true
		case "write":
			return journal.KindBackgroundJobResumed, true
		}
	}
	return "", false
}

// safeExecute recovers from a panicking tool so the scheduler always
// observes a ToolResult instead of a crash.
func (h *Host) safeExecute(ctx context.Context, tool Tool, args json.RawMessage) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %q panicked: %v", tool.Name(), r)
		}
	}()
	return tool.Execute(ctx, args)
}

// Restore rolls the workspace back to checkpoint id and journals the rewind.
func (h *Host) Restore(checkpointID string) error {
	if h.checkpoint == nil {
		return fmt.Errorf("toolhost: no checkpoint store configured")
	}
	if err := h.checkpoint.Restore(checkpointID); err != nil {
		return err
	}
	_, err := h.journal.Append(h.sessionID, journal.KindCheckpointRewound, map[string]any{"checkpoint_id": checkpointID})
	return err
}
