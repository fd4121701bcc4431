package scheduler

import (
	"container/list"
	"hash/fnv"
)

// Doom-loop and circuit-breaker constants, matching the source engine's
// tool_loop safety module exactly.
const (
	DoomLoopThreshold   = 3
	DoomLoopHistorySize = 10

	CircuitBreakerThreshold     = 3
	CircuitBreakerCooldownTurns = 2

	MaxRecentErrors = 10
)

// DoomLoopGuidance is injected as a User-visible message the first time a
// repeated call is detected within the rolling window.
const DoomLoopGuidance = "It looks like the same tool call is being repeated without making progress. " +
	"Try a different approach: re-read the current state, reconsider the plan, or ask a clarifying question " +
	"instead of repeating the identical call."

// ErrorRecoveryGuidance is injected after the first tool failure in a turn.
const ErrorRecoveryGuidance = "The last tool call failed. Re-check the arguments for typos or incorrect paths, " +
	"re-read any relevant file or command output, and consider a different approach before retrying."

// StuckDetectionGuidance is injected once the same error has recurred three
// times within the rolling error window.
const StuckDetectionGuidance = "The same error has now occurred multiple times. Stop retrying the same approach: " +
	"gather more information (list files, check versions, read documentation) before trying again."

type doomLoopEntry struct {
	key string
	hash uint64
}

// DoomLoopTracker detects a model repeating the same tool call without
// making progress: a rolling window of the last DoomLoopHistorySize
// (name, args) pairs, flagging when the latest entry recurs at least
// DoomLoopThreshold times and a warning has not yet been injected for this
// streak.
type DoomLoopTracker struct {
	window  *list.List
	warned  bool
}

// NewDoomLoopTracker returns an empty tracker.
func NewDoomLoopTracker() *DoomLoopTracker {
	return &DoomLoopTracker{window: list.New()}
}

func hashArgs(name, rawArgs string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(rawArgs))
	return h.Sum64()
}

// Record adds (toolName, rawArgs) to the rolling window and reports whether
// the caller should treat this as a detected doom loop (Invariant I6: the
// warned flag clears whenever the latest entry differs from the previous
// one).
func (t *DoomLoopTracker) Record(toolName, rawArgs string) bool {
	key := toolName
	hash := hashArgs(toolName, rawArgs)

	if back := t.window.Back(); back != nil {
		prev := back.Value.(doomLoopEntry)
		if prev.hash != hash {
			t.warned = false
		}
	}

	t.window.PushBack(doomLoopEntry{key: key, hash: hash})
	for t.window.Len() > DoomLoopHistorySize {
		t.window.Remove(t.window.Front())
	}

	count := 0
	for e := t.window.Front(); e != nil; e = e.Next() {
		if e.Value.(doomLoopEntry).hash == hash {
			count++
		}
	}

	return count >= DoomLoopThreshold && !t.warned
}

// MarkWarned records that guidance has been injected for the current streak.
func (t *DoomLoopTracker) MarkWarned() {
	t.warned = true
}

// CircuitBreaker tracks per-tool consecutive failures and imposes a cooldown
// once the threshold is crossed.
type CircuitBreaker struct {
	failures map[string]int
	cooldown map[string]int
}

// NewCircuitBreaker returns an empty breaker.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{failures: map[string]int{}, cooldown: map[string]int{}}
}

// RecordResult updates the failure count for toolName; a success clears it.
func (c *CircuitBreaker) RecordResult(toolName string, success bool) {
	if success {
		c.failures[toolName] = 0
		return
	}
	c.failures[toolName]++
	if c.failures[toolName] >= CircuitBreakerThreshold {
		c.cooldown[toolName] = CircuitBreakerCooldownTurns
	}
}

// InCooldown reports whether toolName is currently disabled.
func (c *CircuitBreaker) InCooldown(toolName string) bool {
	return c.cooldown[toolName] > 0
}

// Tick decrements every active cooldown by one turn; call once per
// completed turn.
func (c *CircuitBreaker) Tick() {
	for name, n := range c.cooldown {
		if n > 0 {
			c.cooldown[name] = n - 1
		}
	}
}

// CostTracker accumulates token usage and estimates spend in USD.
type CostTracker struct {
	PromptTokens     int
	CompletionTokens int
	CacheHitTokens   int

	CostPerMillionInput  float64
	CostPerMillionOutput float64
	CacheDiscount        float64

	WarningThresholdUSD float64
	BudgetCapUSD         float64 // 0 means no cap
	warned               bool
}

// DefaultCostTracker returns a tracker with the source engine's default
// pricing and warning threshold.
func DefaultCostTracker() *CostTracker {
	return &CostTracker{
		CostPerMillionInput:  0.27,
		CostPerMillionOutput: 1.10,
		CacheDiscount:        0.1,
		WarningThresholdUSD:  0.50,
	}
}

// Usage is one model response's token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CacheHitTokens   int
}

// Record folds one response's usage into the running totals.
func (c *CostTracker) Record(u Usage) {
	c.PromptTokens += u.PromptTokens
	c.CompletionTokens += u.CompletionTokens
	c.CacheHitTokens += u.CacheHitTokens
}

// EstimatedCostUSD computes the running cost estimate: effective input
// tokens (non-cache-hit tokens at full price, cache-hit tokens discounted)
// priced per million, plus completion tokens priced per million.
func (c *CostTracker) EstimatedCostUSD() float64 {
	effectiveInput := float64(c.PromptTokens-c.CacheHitTokens) + float64(c.CacheHitTokens)*c.CacheDiscount
	return effectiveInput/1_000_000*c.CostPerMillionInput + float64(c.CompletionTokens)/1_000_000*c.CostPerMillionOutput
}

// OverBudget reports whether a hard budget cap is set and has been crossed.
func (c *CostTracker) OverBudget() bool {
	return c.BudgetCapUSD > 0 && c.EstimatedCostUSD() >= c.BudgetCapUSD
}

// ShouldWarn reports true exactly once, the first time the running cost
// crosses WarningThresholdUSD.
func (c *CostTracker) ShouldWarn() bool {
	if c.warned || c.WarningThresholdUSD <= 0 {
		return false
	}
	if c.EstimatedCostUSD() >= c.WarningThresholdUSD {
		c.warned = true
		return true
	}
	return false
}
