package main

import "testing"

func TestNewRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	if !names["run"] || !names["replay"] {
		t.Fatalf("expected run and replay subcommands, got %+v", names)
	}
}

func TestRunCommandRequiresPrompt(t *testing.T) {
	cmd := newRunCommand()
	if err := cmd.Flags().Set("prompt", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if found := cmd.Flag("prompt"); found == nil {
		t.Fatalf("expected a prompt flag to be registered")
	}
}

func TestJournalDirIsScopedUnderWorkspace(t *testing.T) {
	got := journalDir("/tmp/workspace")
	want := "/tmp/workspace/.nexus/journal"
	if got != want {
		t.Fatalf("journalDir(%q) = %q, want %q", "/tmp/workspace", got, want)
	}
}
