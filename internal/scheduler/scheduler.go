// Package scheduler implements the turn scheduler: the heart of the agent
// loop. It alternates model calls and tool executions, enforces turn and
// cost budgets, filters the tool catalog by agent profile, and detects
// doom loops and persistently failing tools.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/nexus/internal/ctxmgr"
	"github.com/haasonsaas/nexus/internal/journal"
	"github.com/haasonsaas/nexus/internal/policy"
	"github.com/haasonsaas/nexus/internal/scanner"
	"github.com/haasonsaas/nexus/internal/toolhost"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Options configure one scheduler Run invocation.
type Options struct {
	Mode           policy.ChatMode
	MaxTurns       int
	Model          string
	MaxTokens      int
	OnChunk        ChunkCallback
	// AllowedToolsOverride, if non-empty, replaces the selected profile's
	// allowlist entirely (the "allowed_tools" chat-option field).
	AllowedToolsOverride []string
	// DisallowedToolsExtra extends the selected profile's blocklist.
	DisallowedToolsExtra []string
}

// DefaultMaxTurns bounds a run when Options.MaxTurns is unset.
const DefaultMaxTurns = 50

// Scheduler drives one session's agent loop.
type Scheduler struct {
	model     ModelCapability
	host      *toolhost.Host
	ctx       *ctxmgr.Manager
	journal   *journal.Journal
	sessionID string

	doomLoop *DoomLoopTracker
	breaker  *CircuitBreaker
	cost     *CostTracker

	recentErrors []string
	errorGuidanceSent bool
}

// New constructs a Scheduler from its collaborators.
func New(model ModelCapability, host *toolhost.Host, cm *ctxmgr.Manager, j *journal.Journal, sessionID string) *Scheduler {
	return &Scheduler{
		model:     model,
		host:      host,
		ctx:       cm,
		journal:   j,
		sessionID: sessionID,
		doomLoop:  NewDoomLoopTracker(),
		breaker:   NewCircuitBreaker(),
		cost:      DefaultCostTracker(),
	}
}

// Run drives the agent loop for one user prompt to completion.
func (s *Scheduler) Run(ctx context.Context, userPrompt string, opts Options) (string, error) {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.MaxTurns == 0 {
		return "", newError(KindMaxTurnsExceeded, "max_turns is zero", nil)
	}

	s.ctx.Append(&models.Message{Role: models.RoleUser, Content: userPrompt})
	if _, err := s.journal.Append(s.sessionID, journal.KindTurnAdded, map[string]any{
		"role": "user", "content_digest": journal.Digest(userPrompt),
	}); err != nil {
		return "", newError(KindJournalFailure, "journaling user turn", err)
	}

	profile := s.resolveProfile(opts, userPrompt)

	for turn := 1; turn <= opts.MaxTurns; turn++ {
		select {
		case <-ctx.Done():
			return "", newError(KindCancelled, "context cancelled", ctx.Err())
		default:
		}

		if s.cost.OverBudget() {
			return "", newError(KindBudgetExceeded, "cost tracker over budget", nil)
		}

		catalog := profile.FilterTools(s.host.Catalog())
		req, err := s.assembleRequest(ctx, userPrompt, catalog, opts)
		if err != nil {
			return "", err
		}

		resp, err := s.complete(ctx, req, opts)
		if err != nil {
			return "", newError(KindInvalidModelResponse, "model call failed", err)
		}
		s.cost.Record(resp.Usage)

		assistantMsg := &models.Message{Role: models.RoleAssistant, Content: resp.Text}
		for _, tc := range resp.ToolCalls {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, models.ToolCall{
				ID: tc.ID, Name: tc.Name, Input: json.RawMessage(tc.RawArgs),
			})
		}
		s.ctx.Append(assistantMsg)
		if _, err := s.journal.Append(s.sessionID, journal.KindTurnAdded, map[string]any{
			"role": "assistant", "content_digest": journal.Digest(resp.Text),
		}); err != nil {
			return "", newError(KindJournalFailure, "journaling assistant turn", err)
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Text == "" {
				return "", newError(KindInvalidModelResponse, "empty response with no tool calls", nil)
			}
			return resp.Text, nil
		}

		terminate, err := s.executeToolCalls(ctx, resp.ToolCalls)
		if err != nil {
			return "", err
		}
		if terminate {
			return "", newError(KindDoomLoop, "repeated identical tool call not resolved after guidance", nil)
		}

		s.breaker.Tick()

		if s.ctx.MayCompact() {
			result, err := s.ctx.Compact(ctx)
			if err != nil {
				return "", fmt.Errorf("scheduler: compaction failed: %w", err)
			}
			replayPointer, err := s.journal.NextSequence(s.sessionID)
			if err != nil {
				return "", newError(KindJournalFailure, "resolving compaction replay pointer", err)
			}
			if _, err := s.journal.Append(s.sessionID, journal.KindContextCompacted, map[string]any{
				"summary_id":           result.SummaryID,
				"from_turn":            result.FromIndex,
				"to_turn":              result.ToIndex,
				"token_delta_estimate": result.TokenDeltaEstimate,
				"replay_pointer":       replayPointer,
			}); err != nil {
				return "", newError(KindJournalFailure, "journaling compaction", err)
			}
		}
	}

	return "", newError(KindMaxTurnsExceeded, fmt.Sprintf("exceeded %d turns", opts.MaxTurns), nil)
}

func (s *Scheduler) resolveProfile(opts Options, prompt string) policy.Profile {
	p := policy.SelectProfile(opts.Mode, prompt)
	if len(opts.AllowedToolsOverride) > 0 {
		p.Allow = opts.AllowedToolsOverride
	}
	if len(opts.DisallowedToolsExtra) > 0 {
		p.Deny = append(append([]string{}, p.Deny...), opts.DisallowedToolsExtra...)
	}
	return p
}

func (s *Scheduler) assembleRequest(ctx context.Context, userPrompt string, catalog []string, opts Options) (ChatRequest, error) {
	history, err := s.ctx.BuildRequest(ctx, userPrompt)
	if err != nil {
		return ChatRequest{}, fmt.Errorf("scheduler: building request: %w", err)
	}

	messages := make([]ChatMessage, 0, len(history))
	for _, m := range history {
		cm := ChatMessage{Role: string(m.Role), Content: m.Content}
		for _, tr := range m.ToolResults {
			messages = append(messages, ChatMessage{Role: "tool", Content: tr.Content, ToolCallID: tr.ToolCallID})
		}
		if m.Role != models.RoleTool || len(m.ToolResults) == 0 {
			messages = append(messages, cm)
		}
	}

	tools := make([]ToolSpec, 0, len(catalog))
	for _, name := range catalog {
		tools = append(tools, ToolSpec{Name: name})
	}

	return ChatRequest{
		Model:     opts.Model,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: opts.MaxTokens,
	}, nil
}

func (s *Scheduler) complete(ctx context.Context, req ChatRequest, opts Options) (ChatResponse, error) {
	if opts.OnChunk != nil {
		return s.model.CompleteStreaming(ctx, req, opts.OnChunk)
	}
	return s.model.Complete(ctx, req)
}

// executeToolCalls runs every tool call from one model response in order,
// returning terminate=true if a doom loop guidance was already injected for
// this exact repeated call and it has recurred again.
func (s *Scheduler) executeToolCalls(ctx context.Context, calls []ToolCallRequest) (terminate bool, err error) {
	for _, tc := range calls {
		select {
		case <-ctx.Done():
			return false, newError(KindCancelled, "context cancelled mid tool execution", ctx.Err())
		default:
		}

		if s.doomLoop.Record(tc.Name, tc.RawArgs) {
			// First time this streak crosses the threshold: warn and give the
			// model a chance to change course.
			s.ctx.Append(&models.Message{Role: models.RoleUser, Content: DoomLoopGuidance})
			s.doomLoop.MarkWarned()
			continue
		}
		if s.doomLoop.warned {
			// Still warned means the exact same call recurred again after
			// guidance was already injected once: the model did not change
			// course, so stop the run instead of looping forever.
			terminate = true
			continue
		}

		if s.breaker.InCooldown(tc.Name) {
			s.appendToolResult(tc.ID, fmt.Sprintf("tool %q is in cooldown after repeated failures", tc.Name), false)
			continue
		}

		call := toolhost.ToolCall{Name: tc.Name, Args: json.RawMessage(tc.RawArgs)}
		proposal := s.host.Propose(call)
		if _, jerr := s.journal.Append(s.sessionID, journal.KindToolProposed, map[string]any{
			"invocation_id": proposal.InvocationID, "tool": tc.Name,
		}); jerr != nil {
			return false, newError(KindJournalFailure, "journaling proposal", jerr)
		}

		approved, aerr := s.host.RequestApproval(ctx, proposal)
		if aerr != nil {
			return false, newError(KindJournalFailure, "journaling approval", aerr)
		}
		if !approved {
			s.appendToolResult(tc.ID, "denied by policy or user", false)
			continue
		}
		proposal.Approved = true

		result, xerr := s.host.Execute(ctx, proposal)
		if xerr != nil {
			return false, newError(KindToolExecutionError, "tool host execution failure", xerr)
		}

		scanResult := scanner.Scan(result.Output)
		for _, w := range scanResult.Warnings {
			if _, jerr := s.journal.Append(s.sessionID, journal.KindSecurityWarning, map[string]any{
				"name": w.Name, "severity": string(w.Severity),
			}); jerr != nil {
				return false, newError(KindJournalFailure, "journaling security warning", jerr)
			}
		}

		s.breaker.RecordResult(tc.Name, result.Success)
		if !result.Success {
			s.recordError(scanResult.Redacted)
		}

		s.appendToolResult(tc.ID, scanResult.Redacted, !result.Success)
	}
	return terminate, nil
}

func (s *Scheduler) appendToolResult(toolCallID, content string, isError bool) {
	s.ctx.Append(&models.Message{
		Role: models.RoleTool,
		ToolResults: []models.ToolResult{{ToolCallID: toolCallID, Content: content, IsError: isError}},
	})
}

// recordError tracks recent tool failures for the repeated-error guidance,
// keeping at most MaxRecentErrors and injecting escalating guidance.
func (s *Scheduler) recordError(msg string) {
	s.recentErrors = append(s.recentErrors, msg)
	if len(s.recentErrors) > MaxRecentErrors {
		s.recentErrors = s.recentErrors[len(s.recentErrors)-MaxRecentErrors:]
	}

	if !s.errorGuidanceSent {
		s.ctx.Append(&models.Message{Role: models.RoleUser, Content: ErrorRecoveryGuidance})
		s.errorGuidanceSent = true
		return
	}

	count := 0
	for _, e := range s.recentErrors {
		if e == msg {
			count++
		}
	}
	if count >= 3 {
		s.ctx.Append(&models.Message{Role: models.RoleUser, Content: StuckDetectionGuidance})
	}
}
