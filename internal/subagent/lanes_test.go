package subagent

import "testing"

func TestTargetsOverlapExactAndPrefix(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"internal/scheduler", "internal/scheduler", true},
		{"internal/scheduler", "internal/scheduler/safety.go", true},
		{"internal/scheduler/safety.go", "internal/scheduler", true},
		{".", "anything", true},
		{"internal/scheduler", "internal/journal", false},
		{"internal/*", "internal/journal/journal.go", true},
		{"", "internal/journal", false},
	}
	for _, c := range cases {
		if got := targetsOverlap(c.a, c.b); got != c.want {
			t.Errorf("targetsOverlap(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestBuildLanesImplicitPhasesFromTargetOverlap(t *testing.T) {
	tasks := []Task{
		{Name: "implement", Team: "execution", Targets: []string{"internal/scheduler"}},
		{Name: "verify", Team: "verification", Targets: []string{"internal/scheduler/safety.go"}},
		{Name: "unrelated", Team: "docs", Targets: []string{"README.md"}},
	}
	lanes, err := BuildLanes(tasks)
	if err != nil {
		t.Fatalf("BuildLanes: %v", err)
	}
	if len(lanes) != 2 {
		t.Fatalf("expected 2 phases, got %d: %+v", len(lanes), lanes)
	}
	phase0Names := map[string]bool{}
	for _, t := range lanes[0] {
		phase0Names[t.Name] = true
	}
	if !phase0Names["implement"] || !phase0Names["unrelated"] {
		t.Fatalf("expected implement and unrelated in phase 0, got %+v", lanes[0])
	}
	if len(lanes[1]) != 1 || lanes[1][0].Name != "verify" {
		t.Fatalf("expected verify alone in phase 1, got %+v", lanes[1])
	}
}

func TestBuildLanesExplicitDependsOn(t *testing.T) {
	tasks := []Task{
		{Name: "b", DependsOn: []string{"a"}},
		{Name: "a"},
		{Name: "c", DependsOn: []string{"b"}},
	}
	lanes, err := BuildLanes(tasks)
	if err != nil {
		t.Fatalf("BuildLanes: %v", err)
	}
	if len(lanes) != 3 {
		t.Fatalf("expected 3 stages for a linear chain, got %d", len(lanes))
	}
	if lanes[0][0].Name != "a" || lanes[1][0].Name != "b" || lanes[2][0].Name != "c" {
		t.Fatalf("unexpected stage ordering: %+v", lanes)
	}
}

func TestBuildLanesDetectsCycle(t *testing.T) {
	tasks := []Task{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}
	if _, err := BuildLanes(tasks); err == nil {
		t.Fatalf("expected a cyclic dependency error")
	}
}
