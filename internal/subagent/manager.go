package subagent

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/haasonsaas/nexus/internal/journal"
)

// DefaultMaxConcurrency bounds how many tasks in one lane run at once.
const DefaultMaxConcurrency = 7

// DefaultMaxRetriesPerTask bounds read-only-fallback retries per task.
const DefaultMaxRetriesPerTask = 1

// retryableDenials are substrings that mark a worker failure as a policy
// rejection worth retrying under a read-only profile, rather than a
// transient or unrecoverable error.
var retryableDenials = []string{
	"permission denied",
	"approval denied",
	"locked mode",
	"policy blocked",
	"not allowed",
}

func isRetryableDenial(msg string) bool {
	lower := strings.ToLower(msg)
	for _, s := range retryableDenials {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Worker runs one task to completion, honoring task.ReadOnlyFallback by
// restricting itself to read-only tools when set. The caller supplies this
// (typically a closure constructing and running a nested scheduler bound to
// a tool host scoped to task.Role, or the Explore profile when
// ReadOnlyFallback is set).
type Worker func(ctx context.Context, task Task) (string, error)

// Config configures a Manager.
type Config struct {
	Journal           *journal.Journal
	SessionID         string
	Worker            Worker
	MaxConcurrency    int
	MaxRetriesPerTask int
}

// Manager runs batches of subagent tasks with bounded concurrency per lane.
type Manager struct {
	journal           *journal.Journal
	sessionID         string
	worker            Worker
	maxConcurrency    int
	maxRetriesPerTask int
}

// New constructs a Manager, filling in defaults for unset Config fields.
func New(cfg Config) *Manager {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.MaxRetriesPerTask <= 0 {
		cfg.MaxRetriesPerTask = DefaultMaxRetriesPerTask
	}
	return &Manager{
		journal:           cfg.Journal,
		sessionID:         cfg.SessionID,
		worker:            cfg.Worker,
		maxConcurrency:    cfg.MaxConcurrency,
		maxRetriesPerTask: cfg.MaxRetriesPerTask,
	}
}

// RunBatch drains tasks stage by stage (dependency-ordered lanes), running
// each stage's tasks concurrently up to maxConcurrency, and returns every
// task's result sorted into the deterministic merge order: role rank, team,
// name, run id.
func (m *Manager) RunBatch(ctx context.Context, tasks []Task) ([]Result, error) {
	lanes, err := BuildLanes(tasks)
	if err != nil {
		return nil, err
	}

	var all []Result
	for _, lane := range lanes {
		all = append(all, m.runLane(ctx, lane)...)
	}

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if roleRank(a.Role) != roleRank(b.Role) {
			return roleRank(a.Role) < roleRank(b.Role)
		}
		if a.Team != b.Team {
			return a.Team < b.Team
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.RunID < b.RunID
	})
	return all, nil
}

// runLane executes one stage's tasks concurrently, bounded by
// maxConcurrency; a failing task does not cancel its siblings.
func (m *Manager) runLane(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	sem := make(chan struct{}, m.maxConcurrency)
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = Result{RunID: task.RunID, Name: task.Name, Role: task.Role, Team: task.Team, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			results[i] = m.runTask(ctx, task)
		}(i, task)
	}
	wg.Wait()
	return results
}

// runTask runs a single task, retrying once under a forced read-only
// profile if the failure looks like a policy rejection.
func (m *Manager) runTask(ctx context.Context, task Task) Result {
	m.appendEvent(journal.KindSubagentSpawned, task, nil)

	out, err := m.worker(ctx, task)
	if err == nil {
		m.appendEvent(journal.KindSubagentCompleted, task, nil)
		return Result{RunID: task.RunID, Name: task.Name, Role: task.Role, Team: task.Team, Output: out}
	}

	if m.maxRetriesPerTask > 0 && isRetryableDenial(err.Error()) {
		fallback := task
		fallback.ReadOnlyFallback = true
		out2, err2 := m.worker(ctx, fallback)
		if err2 == nil {
			m.appendEvent(journal.KindSubagentCompleted, task, nil)
			return Result{
				RunID: task.RunID, Name: task.Name, Role: task.Role, Team: task.Team,
				Output: out2, UsedReadOnlyFallback: true,
			}
		}
		m.appendEvent(journal.KindSubagentFailed, task, err2)
		return Result{
			RunID: task.RunID, Name: task.Name, Role: task.Role, Team: task.Team,
			Err: err2, UsedReadOnlyFallback: true,
		}
	}

	m.appendEvent(journal.KindSubagentFailed, task, err)
	return Result{RunID: task.RunID, Name: task.Name, Role: task.Role, Team: task.Team, Err: err}
}

func (m *Manager) appendEvent(kind journal.Kind, task Task, taskErr error) {
	if m.journal == nil {
		return
	}
	fields := map[string]any{"run_id": task.RunID, "name": task.Name, "team": task.Team}
	if taskErr != nil {
		fields["error"] = taskErr.Error()
	}
	_, _ = m.journal.Append(m.sessionID, kind, fields)
}

// Summarize renders a deterministic line-per-task report in merge order.
func Summarize(results []Result) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "failed: " + r.Err.Error()
		}
		fallback := ""
		if r.UsedReadOnlyFallback {
			fallback = " (read-only fallback)"
		}
		lines = append(lines, r.Team+"/"+r.Name+" ["+string(r.Role)+"]"+fallback+": "+status)
	}
	return strings.Join(lines, "\n")
}
