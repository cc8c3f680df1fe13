package pass

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
)

// Validate checks the image dependencies of passes declared in order. deps[i]
// lists what pass i consumes. It returns a topological order of the passes,
// which for a valid declaration is the declaration order itself.
//
// Edges are checked in three steps: unknown producers, then cycles (a pass
// depending on itself included), then producers declared after their
// consumer.
func Validate(deps [][]ImageDependency) ([]int, error) {
	n := len(deps)
	indegree := make([]int, n)
	consumers := make([][]int, n)
	for consumer, list := range deps {
		for _, d := range list {
			if d.Producer < 0 || d.Producer >= n {
				return nil, fmt.Errorf("pass %d depends on pass %d of %d: %w", consumer, d.Producer, n, core.ErrUnknownDependency)
			}
			consumers[d.Producer] = append(consumers[d.Producer], consumer)
			indegree[consumer]++
		}
	}

	// Kahn's algorithm, always taking the lowest ready index so the result
	// is stable.
	order := make([]int, 0, n)
	ready := make([]bool, n)
	for i := range indegree {
		ready[i] = indegree[i] == 0
	}
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if ready[i] {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []int
			for i := range indegree {
				if indegree[i] > 0 {
					stuck = append(stuck, i)
				}
			}
			return nil, fmt.Errorf("passes %v: %w", stuck, core.ErrDependencyCycle)
		}
		ready[next] = false
		order = append(order, next)
		for _, c := range consumers[next] {
			indegree[c]--
			if indegree[c] == 0 {
				ready[c] = true
			}
		}
		indegree[next] = -1
	}

	for consumer, list := range deps {
		for _, d := range list {
			if d.Producer > consumer {
				return nil, fmt.Errorf("pass %d depends on later pass %d: %w", consumer, d.Producer, core.ErrForwardDependency)
			}
		}
	}
	return order, nil
}
