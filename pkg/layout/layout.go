// Package layout ranks jobs of a dependency graph into rendering levels.
package layout

import "github.com/kiranshivaraju/cronbat/pkg/models"

// Layout is the result of Compute. Zero value is an empty graph.
type Layout struct {
	// Levels holds job ids grouped by level, ascending. Within a level ids
	// keep the order of the input job list.
	Levels [][]string
	// Level maps each job id to its level.
	Level map[string]int
	// Degraded lists jobs that could not be ranked from a root (cycles,
	// parents missing from the snapshot) and were placed at level 0.
	Degraded []string
	// Connectors are the edges to draw: both ends present and the child
	// exactly one level below the parent.
	Connectors []models.DependencyEdge
}

// node is an arena slot; edges refer to nodes by index.
type node struct {
	id        string
	hasParent bool
	level     int
	children  []int
}

// Compute assigns every job exactly one level. It never fails and always
// terminates: each job enters the worklist at most once, so cycles only
// leave their members unassigned until the final fallback pass.
func Compute(jobs []models.Job, edges []models.DependencyEdge) Layout {
	nodes := make([]node, 0, len(jobs))
	index := make(map[string]int, len(jobs))
	for _, j := range jobs {
		if _, dup := index[j.ID]; dup {
			continue
		}
		index[j.ID] = len(nodes)
		nodes = append(nodes, node{id: j.ID, level: -1})
	}

	type link struct{ parent, child int }
	seen := make(map[link]bool, len(edges))
	links := make([]link, 0, len(edges))
	for _, e := range edges {
		c, ok := index[e.ChildJobID]
		if !ok {
			continue
		}
		// A child counts as having a parent even if the parent is missing.
		nodes[c].hasParent = true
		p, ok := index[e.ParentJobID]
		if !ok {
			continue
		}
		l := link{parent: p, child: c}
		if seen[l] {
			continue
		}
		seen[l] = true
		links = append(links, l)
		nodes[p].children = append(nodes[p].children, c)
	}

	queue := make([]int, 0, len(nodes))
	for i := range nodes {
		if !nodes[i].hasParent {
			nodes[i].level = 0
			queue = append(queue, i)
		}
	}

	// Breadth-first relaxation: a child takes its level from the first
	// assigned parent that reaches it.
	for head := 0; head < len(queue); head++ {
		p := queue[head]
		for _, c := range nodes[p].children {
			if nodes[c].level >= 0 {
				continue
			}
			nodes[c].level = nodes[p].level + 1
			queue = append(queue, c)
		}
	}

	out := Layout{Level: make(map[string]int, len(nodes))}
	for i := range nodes {
		if nodes[i].level < 0 {
			nodes[i].level = 0
			out.Degraded = append(out.Degraded, nodes[i].id)
		}
		out.Level[nodes[i].id] = nodes[i].level
	}

	depth := 0
	for i := range nodes {
		if nodes[i].level+1 > depth {
			depth = nodes[i].level + 1
		}
	}
	out.Levels = make([][]string, depth)
	for i := range nodes {
		lvl := nodes[i].level
		out.Levels[lvl] = append(out.Levels[lvl], nodes[i].id)
	}

	for _, l := range links {
		if nodes[l.child].level == nodes[l.parent].level+1 {
			out.Connectors = append(out.Connectors, models.DependencyEdge{
				ParentJobID: nodes[l.parent].id,
				ChildJobID:  nodes[l.child].id,
			})
		}
	}

	return out
}

// Depth returns the number of levels.
func (l Layout) Depth() int {
	return len(l.Levels)
}
