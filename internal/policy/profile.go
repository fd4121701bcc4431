// Package policy decides whether a proposed tool call may execute: it
// selects the active agent profile, filters the tool catalog against it,
// confines filesystem paths to the workspace root, and rejects dangerous
// shell constructs. Decisions are pure functions of their inputs.
package policy

import "strings"

// Mode is the permission mode governing auto-approval of write-class tools.
type Mode string

const (
	ModeAcceptEdits      Mode = "acceptEdits"
	ModePlan             Mode = "plan"
	ModeBypassPermission Mode = "bypassPermissions"
	ModeDefault          Mode = "default"
)

// ChatMode is the user-facing conversation mode that feeds profile selection.
type ChatMode string

const (
	ChatModeCode    ChatMode = "code"
	ChatModeAsk     ChatMode = "ask"
	ChatModeContext ChatMode = "context"
)

// ProfileName identifies one of the three built-in agent profiles.
type ProfileName string

const (
	ProfileExplore ProfileName = "explore"
	ProfilePlan    ProfileName = "plan"
	ProfileBuild   ProfileName = "build"
)

// Profile is an (allowlist, blocklist) pair applied to the tool catalog
// before each model call. An empty Allow means "every tool not blocked";
// Deny always wins over Allow. Tools named with the "mcp__" prefix bypass
// both lists.
type Profile struct {
	Name  ProfileName
	Allow []string
	Deny  []string
}

// explore is read-only: filesystem/VCS inspection and meta-reasoning tools,
// no shell and no writes.
var explore = Profile{
	Name: ProfileExplore,
	Allow: []string{
		"fs_read", "fs_glob", "fs_grep", "fs_list",
		"bash_run", "bash_process",
		"git_status", "git_diff", "git_show",
		"notebook_read", "index_query",
		"extended_thinking", "think_deeply", "user_question", "diagnostics_check",
	},
}

// plan is explore minus shell execution, for architecture/analysis work that
// must not mutate the workspace or run arbitrary commands.
var plan = Profile{
	Name: ProfilePlan,
	Allow: []string{
		"fs_read", "fs_glob", "fs_grep", "fs_list",
		"git_status", "git_diff", "git_show",
		"notebook_read", "index_query",
		"extended_thinking", "think_deeply", "user_question", "diagnostics_check",
	},
}

// build allows everything (empty allowlist) except browser/web automation,
// which a coding session should never reach for implicitly.
var build = Profile{
	Name: ProfileBuild,
	Deny: []string{
		"web_search", "web_fetch",
		"chrome_navigate", "chrome_screenshot", "chrome_click", "chrome_type",
		"chrome_evaluate", "chrome_find_text",
	},
}

// Profiles returns a fresh copy of the named built-in profile.
func Profiles(name ProfileName) Profile {
	switch name {
	case ProfileExplore:
		return explore
	case ProfilePlan:
		return plan
	default:
		return build
	}
}

// planningKeywords and implementKeywords drive SelectProfile's guess at
// whether a Code-mode prompt is asking to plan/analyze versus to act.
var planningKeywords = []string{
	"plan", "design", "architect", "propose", "outline", "strategy", "approach",
	"how would", "how should", "what's the best way",
	"review", "analyze", "assess", "audit", "evaluate",
}

var implementKeywords = []string{
	"implement", "fix", "write", "create", "build", "add", "change", "modify",
	"update", "refactor", "delete", "remove", "replace", "do it", "go ahead", "make it",
}

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// SelectProfile picks the agent profile for a turn from the chat mode and the
// user's prompt text, matching the source policy exactly:
//
//	Ask/Context          -> Explore (read-only)
//	Code + planning, !implement -> Plan (read-only minus shell)
//	Code otherwise        -> Build (unrestricted minus web/browser)
func SelectProfile(mode ChatMode, prompt string) Profile {
	switch mode {
	case ChatModeAsk, ChatModeContext:
		return explore
	case ChatModeCode:
		hasPlanning := containsAny(prompt, planningKeywords)
		hasImplement := containsAny(prompt, implementKeywords)
		if hasPlanning && !hasImplement {
			return plan
		}
		return build
	default:
		return build
	}
}

// IsMCPTool reports whether name is a third-party MCP tool, which always
// bypasses profile allow/deny filtering.
func IsMCPTool(name string) bool {
	return strings.HasPrefix(name, "mcp__")
}

// Allowed reports whether name passes this profile's allow/deny filter.
func (p Profile) Allowed(name string) bool {
	if IsMCPTool(name) {
		return true
	}
	for _, d := range p.Deny {
		if d == name {
			return false
		}
	}
	if len(p.Allow) == 0 {
		return true
	}
	for _, a := range p.Allow {
		if a == name {
			return true
		}
	}
	return false
}

// FilterTools returns the subset of catalog permitted by this profile.
func (p Profile) FilterTools(catalog []string) []string {
	out := make([]string, 0, len(catalog))
	for _, name := range catalog {
		if p.Allowed(name) {
			out = append(out, name)
		}
	}
	return out
}
