package subagent

import (
	"sort"
	"strings"
)

// targetsOverlap reports whether two workspace-relative target patterns
// could touch the same files: exact match, one a prefix directory of the
// other, "." matching everything, or a "*"-glob prefix containing the other.
func targetsOverlap(a, b string) bool {
	normalize := func(v string) string {
		return strings.ToLower(strings.TrimRight(strings.TrimSpace(v), "/"))
	}
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return false
	}
	if a == "." || b == "." || a == b {
		return true
	}
	if strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/") {
		return true
	}
	wildcardPrefix := func(v string) string {
		if i := strings.IndexByte(v, '*'); i >= 0 {
			return strings.TrimRight(v[:i], "/")
		}
		return ""
	}
	if p := wildcardPrefix(a); p != "" && (b == p || strings.HasPrefix(b, p+"/")) {
		return true
	}
	if p := wildcardPrefix(b); p != "" && (a == p || strings.HasPrefix(a, p+"/")) {
		return true
	}
	return false
}

// assignImplicitPhases computes a phase number per task from target overlap
// alone, the same way a planner without explicit DependsOn data would:
// a task touching a target some earlier task already owns moves to that
// task's phase + 1.
func assignImplicitPhases(tasks []Task) []int {
	phases := make([]int, len(tasks))
	targetLastPhase := map[string]int{}

	for i, t := range tasks {
		phase := 0
		for _, target := range t.Targets {
			for knownTarget, previousPhase := range targetLastPhase {
				if !targetsOverlap(target, knownTarget) {
					continue
				}
				if previousPhase+1 > phase {
					phase = previousPhase + 1
				}
			}
		}
		phases[i] = phase
		for _, target := range t.Targets {
			if cur, ok := targetLastPhase[target]; !ok || phase > cur {
				targetLastPhase[target] = phase
			}
		}
	}
	return phases
}

// BuildLanes groups tasks into stage-ordered batches. Tasks with explicit
// DependsOn names are ordered topologically (grounded on the same
// dependency-graph shape the multi-agent swarm executor uses); tasks with no
// explicit dependencies fall back to implicit phase assignment by target
// overlap. The two schemes do not mix within one call: if any task declares
// DependsOn, every task is treated as part of the explicit graph (tasks with
// no dependencies of their own simply start at stage 0).
func BuildLanes(tasks []Task) ([][]Task, error) {
	hasExplicit := false
	for _, t := range tasks {
		if len(t.DependsOn) > 0 {
			hasExplicit = true
			break
		}
	}

	var phases []int
	if hasExplicit {
		p, err := assignExplicitPhases(tasks)
		if err != nil {
			return nil, err
		}
		phases = p
	} else {
		phases = assignImplicitPhases(tasks)
	}

	maxPhase := 0
	for _, p := range phases {
		if p > maxPhase {
			maxPhase = p
		}
	}

	lanes := make([][]Task, maxPhase+1)
	for i, t := range tasks {
		lanes[phases[i]] = append(lanes[phases[i]], t)
	}
	for _, lane := range lanes {
		sort.Slice(lane, func(i, j int) bool {
			if lane[i].Team != lane[j].Team {
				return lane[i].Team < lane[j].Team
			}
			return lane[i].Name < lane[j].Name
		})
	}
	return lanes, nil
}

func assignExplicitPhases(tasks []Task) ([]int, error) {
	byName := make(map[string]int, len(tasks))
	for i, t := range tasks {
		byName[t.Name] = i
	}

	phases := make([]int, len(tasks))
	visiting := make([]bool, len(tasks))
	resolved := make([]bool, len(tasks))

	var resolve func(i int) error
	resolve = func(i int) error {
		if resolved[i] {
			return nil
		}
		if visiting[i] {
			return errCyclicDependency{name: tasks[i].Name}
		}
		visiting[i] = true
		phase := 0
		for _, dep := range tasks[i].DependsOn {
			j, ok := byName[dep]
			if !ok {
				continue
			}
			if err := resolve(j); err != nil {
				return err
			}
			if phases[j]+1 > phase {
				phase = phases[j] + 1
			}
		}
		phases[i] = phase
		resolved[i] = true
		visiting[i] = false
		return nil
	}

	for i := range tasks {
		if err := resolve(i); err != nil {
			return nil, err
		}
	}
	return phases, nil
}

type errCyclicDependency struct{ name string }

func (e errCyclicDependency) Error() string {
	return "subagent: cyclic dependency detected at task " + e.name
}
