package resource

import (
	"fmt"
	"sort"
)

// sortSteps topologically orders a step graph using Kahn's algorithm.
// Ties break alphabetically so the order is deterministic. A cycle
// returns an error naming the steps left unordered.
func sortSteps(steps map[string]WorkflowStep) ([]string, error) {
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for name, step := range steps {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for dep := range step.Dependencies() {
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := make([]string, 0, len(steps))
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	sorted := make([]string, 0, len(steps))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		sorted = append(sorted, name)

		next := dependents[name]
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Strings(ready)
	}

	if len(sorted) != len(steps) {
		remaining := make([]string, 0)
		for name, deg := range indegree {
			if deg > 0 {
				remaining = append(remaining, name)
			}
		}
		sort.Strings(remaining)
		return nil, fmt.Errorf("%w: step graph contains a cycle involving %v", ErrInvalidResource, remaining)
	}
	return sorted, nil
}
