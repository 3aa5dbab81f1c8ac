// dag.go generalizes orchestration/workflow_dag.go's WorkflowDAG/DAGNode
// DFS cycle detection by reusing the same algorithm directly over
// core.ExecutionStep's Dependencies field instead of a separately
// populated node graph.
package executor

import "github.com/itsneelabh/agentcore/core"

// dag is a minimal dependency graph view over a plan's steps, used
// only to detect cycles and compute the ready set each scheduling
// iteration, a lighter-weight reuse of the WorkflowDAG idea scoped to
// this package's actual needs.
type dag struct {
	steps map[string]core.ExecutionStep
}

func newDAG(steps []core.ExecutionStep) *dag {
	d := &dag{steps: make(map[string]core.ExecutionStep, len(steps))}
	for _, s := range steps {
		d.steps[s.ID] = s
	}
	return d
}

// detectCycle runs DFS with a three-color mark (white/grey/black) over
// the dependency edges, following the hasCycleDFS pattern.
func (d *dag) detectCycle() bool {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(d.steps))

	var visit func(id string) bool
	visit = func(id string) bool {
		switch color[id] {
		case black:
			return false
		case grey:
			return true
		}
		color[id] = grey
		for _, dep := range d.steps[id].Dependencies {
			if visit(dep) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for id := range d.steps {
		if color[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// ready returns the ids in remaining whose dependencies are all in
// completed.
func (d *dag) ready(remaining, completed map[string]bool) []string {
	var out []string
	for id := range remaining {
		step := d.steps[id]
		allSatisfied := true
		for _, dep := range step.Dependencies {
			if !completed[dep] {
				allSatisfied = false
				break
			}
		}
		if allSatisfied {
			out = append(out, id)
		}
	}
	return out
}
