package policy

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a resolved path falls outside the workspace
// root.
var ErrPathEscape = errors.New("policy: path escapes workspace root")

// ErrGitMutationForbidden is returned for any write targeting .git/**,
// regardless of permission mode.
var ErrGitMutationForbidden = errors.New("policy: writes to .git are always forbidden")

// ConfinePath resolves candidate against root and verifies the result stays
// within root. candidate may be relative (resolved against root) or
// absolute. Returns the cleaned absolute path on success.
func ConfinePath(root, candidate string) (string, error) {
	root = filepath.Clean(root)

	var resolved string
	if filepath.IsAbs(candidate) {
		resolved = filepath.Clean(candidate)
	} else {
		resolved = filepath.Clean(filepath.Join(root, candidate))
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return "", ErrPathEscape
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return resolved, nil
}

// IsGitMutation reports whether path (already confined to the workspace)
// falls inside a .git directory.
func IsGitMutation(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	return len(parts) > 0 && parts[0] == ".git"
}

// WriteClassTools is the closed set of tools the Tool Host checkpoints
// before executing, matching the source engine's is_file_modifying_tool.
var WriteClassTools = map[string]bool{
	"fs_write":     true,
	"fs_edit":      true,
	"multi_edit":   true,
	"patch_apply":  true,
	"notebook_edit": true,
}

// IsWriteClass reports whether toolName is one of the write-class tools that
// require checkpointing and approval under modes other than bypassPermissions.
func IsWriteClass(toolName string) bool {
	return WriteClassTools[toolName]
}

// AutoApprove decides whether a write-class tool call may proceed without an
// interactive approval prompt under the given permission mode. Read-only
// tools are always auto-approved regardless of mode.
func AutoApprove(mode Mode, toolName string) bool {
	if !IsWriteClass(toolName) {
		return true
	}
	switch mode {
	case ModeBypassPermission, ModeAcceptEdits:
		return true
	case ModePlan:
		return false
	default:
		return false
	}
}

// ReadOnlyBlockedByPlan reports whether toolName is a write-class tool denied
// outright under plan mode (plan mode never prompts for writes; it refuses).
func ReadOnlyBlockedByPlan(mode Mode, toolName string) bool {
	return mode == ModePlan && IsWriteClass(toolName)
}
