// Package checkpoint snapshots files before a destructive tool executes so
// the Tool Host can roll a workspace back to its pre-execution state.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Checkpoint describes one snapshot: the set of files captured immediately
// before a write-class tool executed.
type Checkpoint struct {
	ID        string    `json:"id"`
	Reason    string    `json:"reason"`
	FileCount int       `json:"file_count"`
	CreatedAt time.Time `json:"created_at"`
	Dir       string    `json:"-"`
}

// Store manages on-disk checkpoints under a root directory, typically
// "<workspace>/.nexus/checkpoints".
type Store struct {
	root string
}

// NewStore returns a Store rooted at root, creating it if necessary.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: creating store root: %w", err)
	}
	return &Store{root: root}, nil
}

func snapshotName(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])
}

// Create snapshots every existing file in paths (non-existent paths are
// silently skipped, matching a fresh-file write that has nothing to roll
// back to) under a fresh checkpoint id, tagged with reason (conventionally
// "pre-<tool_name>"). Returns a zero-file-count Checkpoint (FileCount == 0)
// when none of paths existed; callers should not emit a CheckpointCreated
// journal event in that case.
func (s *Store) Create(reason string, paths []string) (Checkpoint, error) {
	id := uuid.Must(uuid.NewV7()).String()
	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: creating %s: %w", dir, err)
	}

	saved := 0
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			continue
		}
		name := snapshotName(abs)
		if err := copyFile(abs, filepath.Join(dir, name)); err != nil {
			return Checkpoint{}, fmt.Errorf("checkpoint: snapshotting %s: %w", abs, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name+".path"), []byte(abs), 0o644); err != nil {
			return Checkpoint{}, fmt.Errorf("checkpoint: writing path companion for %s: %w", abs, err)
		}
		saved++
	}

	ckpt := Checkpoint{
		ID:        id,
		Reason:    reason,
		FileCount: saved,
		CreatedAt: time.Now().UTC(),
		Dir:       dir,
	}
	if saved > 0 {
		meta, err := json.Marshal(ckpt)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("checkpoint: marshaling metadata: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "metadata.json"), meta, 0o644); err != nil {
			return Checkpoint{}, fmt.Errorf("checkpoint: writing metadata: %w", err)
		}
	}
	return ckpt, nil
}

// Restore copies every snapshotted file in checkpoint id back over its
// original location, recovered from the companion ".path" file.
func (s *Store) Restore(id string) error {
	dir := filepath.Join(s.root, id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("checkpoint: reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".path") || name == "metadata.json" {
			continue
		}
		pathFile := filepath.Join(dir, name+".path")
		origBytes, err := os.ReadFile(pathFile)
		if err != nil {
			return fmt.Errorf("checkpoint: missing path companion for %s: %w", name, err)
		}
		orig := string(origBytes)
		if err := copyFile(filepath.Join(dir, name), orig); err != nil {
			return fmt.Errorf("checkpoint: restoring %s: %w", orig, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// PathsForToolCall extracts the candidate filesystem paths from a tool's
// decoded arguments, following the same field-name conventions the Tool Host
// uses for checkpointing: "path", "file_path", or an "edits" array whose
// elements each carry a "path" field (multi_edit).
func PathsForToolCall(args map[string]any) []string {
	var paths []string
	if v, ok := args["path"].(string); ok && v != "" {
		paths = append(paths, v)
	}
	if v, ok := args["file_path"].(string); ok && v != "" {
		paths = append(paths, v)
	}
	if edits, ok := args["edits"].([]any); ok {
		for _, e := range edits {
			if em, ok := e.(map[string]any); ok {
				if v, ok := em["path"].(string); ok && v != "" {
					paths = append(paths, v)
				}
			}
		}
	}
	return paths
}
