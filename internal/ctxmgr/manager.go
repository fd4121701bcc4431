// Package ctxmgr maintains the scheduler's running message history: it
// decides when the estimated token count is approaching the model's context
// window, compacts by summarization (falling back to a deterministic
// extractive summary), prunes stale history, and injects retrieval context.
package ctxmgr

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/nexus/internal/compaction"
	"github.com/haasonsaas/nexus/pkg/models"
)

// DefaultThresholdPercent is the fraction of the context window, expressed
// as 0-100, above which May Compact reports true.
const DefaultThresholdPercent = 80

// RankedChunk is one retrieval result ready for injection as context.
type RankedChunk struct {
	Text       string
	Score      float64
	TokenCount int
}

// Retriever is the sole seam to the embeddings/retrieval subsystem, which is
// out of scope for this module. A nil Retriever disables retrieval
// injection entirely.
type Retriever interface {
	Retrieve(ctx context.Context, query string, tokenBudget int) ([]RankedChunk, error)
}

// Summarizer asks a model to summarize a block of history under the
// Goal/Completed/In Progress/Key Facts/Key Findings/Modified Files template.
type Summarizer interface {
	Summarize(ctx context.Context, messages []*models.Message, instructions string) (string, error)
}

// Manager owns one session's running message history.
type Manager struct {
	systemPrompt  string
	contextWindow int
	threshold     int
	history       []*models.Message
	summarizer    Summarizer
	retriever     Retriever
	pruneTailTurns int
}

// Config configures a Manager.
type Config struct {
	SystemPrompt   string
	ContextWindow  int
	ThresholdPercent int
	Summarizer     Summarizer
	Retriever      Retriever
	// PruneTailTurns is how many trailing turn-groups a compaction always
	// keeps verbatim regardless of size.
	PruneTailTurns int
}

// New constructs a Manager with sensible defaults filled in.
func New(cfg Config) *Manager {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = compaction.DefaultContextWindow
	}
	if cfg.ThresholdPercent <= 0 {
		cfg.ThresholdPercent = DefaultThresholdPercent
	}
	if cfg.PruneTailTurns <= 0 {
		cfg.PruneTailTurns = 4
	}
	return &Manager{
		systemPrompt:   cfg.SystemPrompt,
		contextWindow:  cfg.ContextWindow,
		threshold:      cfg.ThresholdPercent,
		summarizer:     cfg.Summarizer,
		retriever:      cfg.Retriever,
		pruneTailTurns: cfg.PruneTailTurns,
	}
}

// Append adds msg to the end of the running history.
func (m *Manager) Append(msg *models.Message) {
	m.history = append(m.history, msg)
}

// History returns the current message history (not a copy; callers must not
// mutate it directly except through Append/Compact).
func (m *Manager) History() []*models.Message {
	return m.history
}

func toCompactionMessages(msgs []*models.Message) []*compaction.Message {
	out := make([]*compaction.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, &compaction.Message{
			Role:      string(msg.Role),
			Content:   msg.Content,
			Timestamp: msg.CreatedAt.Unix(),
			ID:        msg.ID,
		})
	}
	return out
}

// EstimatedTokens returns the chars/4 token-estimate heuristic over the
// current history plus system prompt. This is a non-contractual estimate,
// not an exact count from the model provider.
func (m *Manager) EstimatedTokens() int {
	total := (len(m.systemPrompt) + compaction.CharsPerToken - 1) / compaction.CharsPerToken
	total += compaction.EstimateMessagesTokens(toCompactionMessages(m.history))
	return total
}

// MayCompact reports whether the estimated token count has crossed the
// configured threshold fraction of the context window.
func (m *Manager) MayCompact() bool {
	if m.contextWindow <= 0 {
		return false
	}
	usagePercent := (m.EstimatedTokens() * 100) / m.contextWindow
	return usagePercent >= m.threshold
}

// CompactResult reports what a Compact call changed.
type CompactResult struct {
	SummaryID        string
	FromIndex        int
	ToIndex          int
	TokenDeltaEstimate int
	UsedFallback     bool
}

// summaryTemplate is the fixed structure asked of the LLM summarizer.
const summaryTemplate = "Summarize the conversation so far under exactly these headings: " +
	"Goal, Completed, In Progress, Key Facts, Key Findings, Modified Files."

// Compact replaces a contiguous prefix of the history with a single summary
// message, always preserving: the system prompt (held outside history), the
// last user message, and the trailing pruneTailTurns messages.
func (m *Manager) Compact(ctx context.Context) (CompactResult, error) {
	if len(m.history) == 0 {
		return CompactResult{}, nil
	}

	keepFrom := m.tailBoundary()
	toSummarize := m.history[:keepFrom]
	if len(toSummarize) == 0 {
		return CompactResult{}, nil
	}

	before := m.EstimatedTokens()

	var summaryText string
	usedFallback := false
	if m.summarizer != nil {
		var err error
		summaryText, err = m.summarizer.Summarize(ctx, toSummarize, summaryTemplate)
		if err != nil {
			summaryText = extractiveSummary(toSummarize)
			usedFallback = true
		}
	} else {
		summaryText = extractiveSummary(toSummarize)
		usedFallback = true
	}

	summaryMsg := &models.Message{
		ID:      "summary-" + toSummarize[len(toSummarize)-1].ID,
		Role:    models.RoleSystem,
		Content: summaryText,
	}

	newHistory := make([]*models.Message, 0, 1+len(m.history)-keepFrom)
	newHistory = append(newHistory, summaryMsg)
	newHistory = append(newHistory, m.history[keepFrom:]...)
	m.history = newHistory

	after := m.EstimatedTokens()

	return CompactResult{
		SummaryID:          summaryMsg.ID,
		FromIndex:          0,
		ToIndex:            keepFrom,
		TokenDeltaEstimate: before - after,
		UsedFallback:       usedFallback,
	}, nil
}

// tailBoundary returns the index at which the always-kept tail begins: the
// last pruneTailTurns messages, but never fewer than 1 so the most recent
// user message always survives.
func (m *Manager) tailBoundary() int {
	n := len(m.history)
	keep := m.pruneTailTurns
	if keep >= n {
		return 0
	}
	return n - keep
}

// extractiveSummary is the deterministic fallback used when no Summarizer is
// configured, or the configured one fails: it scans for file paths and error
// lines and renders a tool-usage histogram, rather than failing the turn.
func extractiveSummary(msgs []*models.Message) string {
	var filePaths []string
	var errorLines []string
	toolCounts := map[string]int{}

	for _, msg := range msgs {
		if msg.Role == models.RoleTool {
			for _, tr := range msg.ToolResults {
				if tr.IsError {
					errorLines = append(errorLines, firstLine(tr.Content))
				}
			}
		}
		for _, tc := range msg.ToolCalls {
			toolCounts[tc.Name]++
		}
		for _, word := range strings.Fields(msg.Content) {
			if looksLikePath(word) {
				filePaths = append(filePaths, word)
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("Goal: (unavailable — extractive fallback summary)\n")
	sb.WriteString("Completed: see tool usage below\n")
	sb.WriteString("In Progress: unknown\n")
	sb.WriteString("Key Facts: none extracted\n")

	if len(errorLines) > 0 {
		sb.WriteString("Key Findings:\n")
		for _, e := range dedupeStrings(errorLines) {
			sb.WriteString("  - error: " + e + "\n")
		}
	} else {
		sb.WriteString("Key Findings: none\n")
	}

	if len(filePaths) > 0 {
		sb.WriteString("Modified Files:\n")
		for _, p := range dedupeStrings(filePaths) {
			sb.WriteString("  - " + p + "\n")
		}
	} else {
		sb.WriteString("Modified Files: none observed\n")
	}

	if len(toolCounts) > 0 {
		names := make([]string, 0, len(toolCounts))
		for name := range toolCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		sb.WriteString("Tool usage:\n")
		for _, name := range names {
			sb.WriteString(fmt.Sprintf("  - %s: %d\n", name, toolCounts[name]))
		}
	}

	return sb.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func looksLikePath(word string) bool {
	word = strings.Trim(word, ".,:;()[]\"'")
	return strings.Contains(word, "/") && strings.ContainsAny(word, ".") && !strings.HasPrefix(word, "http")
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// BuildRequest returns the ordered messages to send for the next model call:
// system prompt, optional retrieval-context system message, then history.
func (m *Manager) BuildRequest(ctx context.Context, lastUserPrompt string) ([]*models.Message, error) {
	var out []*models.Message
	if m.systemPrompt != "" {
		out = append(out, &models.Message{Role: models.RoleSystem, Content: m.systemPrompt})
	}

	if m.retriever != nil {
		budget := m.contextWindow / 5
		chunks, err := m.retriever.Retrieve(ctx, lastUserPrompt, budget)
		if err != nil {
			return nil, fmt.Errorf("ctxmgr: retrieval failed: %w", err)
		}
		if injected := injectRetrieval(chunks, budget); injected != "" {
			out = append(out, &models.Message{Role: models.RoleSystem, Content: "RETRIEVAL_CONTEXT\n" + injected})
		}
	}

	out = append(out, m.history...)
	return out, nil
}

// injectRetrieval greedily includes chunks in descending score order until
// the token budget is exhausted.
func injectRetrieval(chunks []RankedChunk, tokenBudget int) string {
	sorted := make([]RankedChunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var sb strings.Builder
	used := 0
	for _, c := range sorted {
		if used+c.TokenCount > tokenBudget && used > 0 {
			break
		}
		sb.WriteString(c.Text)
		sb.WriteString("\n\n")
		used += c.TokenCount
	}
	return strings.TrimSpace(sb.String())
}
