// Package main is a thin command-line driver over the agent loop core: it
// wires the journal, policy engine, output scanner, checkpoint store, tool
// host, context manager, turn scheduler, and subagent manager together and
// runs a single turn or replays a session's journaled history.
//
// Nexus connects a workspace, an Anthropic model, and a small built-in tool
// catalog (fs_read, fs_write, fs_edit, bash_run) through the turn scheduler.
//
// Usage:
//
//	nexus run --workspace . --prompt "summarize internal/scheduler"
//	nexus replay --workspace . --session sess-1
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/agent/providers"
	"github.com/haasonsaas/nexus/internal/checkpoint"
	"github.com/haasonsaas/nexus/internal/ctxmgr"
	"github.com/haasonsaas/nexus/internal/journal"
	"github.com/haasonsaas/nexus/internal/modelhost"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/policy"
	"github.com/haasonsaas/nexus/internal/scheduler"
	"github.com/haasonsaas/nexus/internal/toolhost"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "nexus",
		Short:         "Run and inspect tool-use agent sessions",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCommand(), newReplayCommand())
	return root
}

func newRunCommand() *cobra.Command {
	var (
		workspace string
		sessionID string
		prompt    string
		model     string
		mode      string
		provider  string
		maxTurns  int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one user turn to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				sessionID = uuid.Must(uuid.NewV7()).String()
			}
			workspace, err := filepath.Abs(workspace)
			if err != nil {
				return err
			}

			logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "text"})
			logger.Info(cmd.Context(), "starting run", "session_id", sessionID, "workspace", workspace, "provider", provider)

			capability, err := buildModelCapability(provider, model)
			if err != nil {
				return err
			}

			sched, cleanup, err := buildScheduler(workspace, sessionID, capability)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := sched.Run(cmd.Context(), prompt, scheduler.Options{
				Mode:     policy.ChatMode(mode),
				MaxTurns: maxTurns,
				Model:    model,
				OnChunk: func(delta string) {
					fmt.Fprint(os.Stdout, delta)
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout)
			fmt.Fprintln(os.Stdout, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", ".", "workspace root the tool host is confined to")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to append to (default: a new UUIDv7)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "user prompt for this turn")
	cmd.Flags().StringVar(&model, "model", "claude-sonnet-4-20250514", "model id")
	cmd.Flags().StringVar(&mode, "mode", string(policy.ChatModeCode), "chat mode: code, ask, or context")
	cmd.Flags().StringVar(&provider, "provider", "anthropic", "model backend: anthropic or openai")
	cmd.Flags().IntVar(&maxTurns, "max-turns", scheduler.DefaultMaxTurns, "maximum scheduler turns before aborting")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func newReplayCommand() *cobra.Command {
	var (
		workspace string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Print a session's journaled events in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := filepath.Abs(workspace)
			if err != nil {
				return err
			}
			j, err := journal.Open(journalDir(workspace))
			if err != nil {
				return err
			}
			defer j.Close()

			events, err := j.ListEvents(sessionID)
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Printf("%06d  %-24s  %s\n", e.SeqNo, e.Kind, e.Fields)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", ".", "workspace root the journal lives under")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to replay")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func journalDir(workspace string) string {
	return filepath.Join(workspace, ".nexus", "journal")
}

// buildModelCapability resolves the --provider flag to a concrete
// scheduler.ModelCapability backend.
func buildModelCapability(provider, model string) (scheduler.ModelCapability, error) {
	switch provider {
	case "", "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", "anthropic")
		}
		return modelhost.NewAnthropic(providers.AnthropicConfig{APIKey: apiKey, DefaultModel: model})
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for provider %q", "openai")
		}
		return modelhost.NewOpenAI(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown provider %q: want anthropic or openai", provider)
	}
}

// buildScheduler wires C1-C7's concrete collaborators for one CLI
// invocation: a journal rooted at the workspace, a checkpoint store, a tool
// host running in bypass-permission mode (the CLI has no interactive
// approval surface), a context manager, and the selected model adapter.
func buildScheduler(workspace, sessionID string, capability scheduler.ModelCapability) (*scheduler.Scheduler, func(), error) {
	j, err := journal.Open(journalDir(workspace))
	if err != nil {
		return nil, nil, err
	}

	store, err := checkpoint.NewStore(filepath.Join(workspace, ".nexus", "checkpoints"))
	if err != nil {
		j.Close()
		return nil, nil, err
	}

	host := toolhost.New(toolhost.Config{
		Workspace:  workspace,
		Mode:       policy.ModeBypassPermission,
		Journal:    j,
		SessionID:  sessionID,
		Checkpoint: store,
	})
	registerWorkspaceTools(host, workspace)

	cm := ctxmgr.New(ctxmgr.Config{
		SystemPrompt: defaultSystemPrompt,
	})

	sched := scheduler.New(capability, host, cm, j, sessionID)
	cleanup := func() { j.Close() }
	return sched, cleanup, nil
}

const defaultSystemPrompt = `You are a careful coding assistant with direct access to this workspace ` +
	`through a small set of tools: fs_read, fs_write, fs_edit, and bash_run. ` +
	`Prefer the smallest correct change, read before you write, and explain ` +
	`what you changed once a task is complete.`
