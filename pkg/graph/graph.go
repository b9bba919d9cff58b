// Package graph builds an indexed arena over a workflow's nodes and edges and
// validates that the result is an executable DAG. Validation is pure: it
// never touches storage and is always run before an execution is accepted.
package graph

import (
	"github.com/flowmesh/flowmesh/pkg/models"
)

// Edge is a dependency edge resolved to arena indexes.
type Edge struct {
	Index     int // Position in the workflow's edge list
	Source    int
	Target    int
	Condition models.EdgeCondition
}

// Graph is an immutable arena over a workflow: interned node indexes with
// adjacency lists built once, so the scheduler never scans the raw workflow.
type Graph struct {
	nodes []*models.NodeSpec
	index map[string]int
	out   [][]Edge
	in    [][]Edge
}

// New builds the arena. It fails with DuplicateNodeError, EmptyWorkflowError,
// InvalidConditionError or DanglingEdgeError; acyclicity and reachability are
// checked separately by Validate.
func New(workflow *models.Workflow) (*Graph, error) {
	if len(workflow.Nodes) == 0 {
		return nil, &EmptyWorkflowError{}
	}

	g := &Graph{
		nodes: workflow.Nodes,
		index: make(map[string]int, len(workflow.Nodes)),
		out:   make([][]Edge, len(workflow.Nodes)),
		in:    make([][]Edge, len(workflow.Nodes)),
	}

	for i, node := range workflow.Nodes {
		if _, exists := g.index[node.ID]; exists {
			return nil, &DuplicateNodeError{NodeID: node.ID}
		}

		g.index[node.ID] = i
	}

	for i, edge := range workflow.Edges {
		condition := edge.Condition
		if condition == "" {
			condition = models.EdgeConditionAlways
		}

		if !condition.Valid() {
			return nil, &InvalidConditionError{EdgeIndex: i, Condition: string(edge.Condition)}
		}

		source, ok := g.index[edge.SourceID]
		if !ok {
			return nil, &DanglingEdgeError{EdgeIndex: i, MissingID: edge.SourceID}
		}

		target, ok := g.index[edge.TargetID]
		if !ok {
			return nil, &DanglingEdgeError{EdgeIndex: i, MissingID: edge.TargetID}
		}

		resolved := Edge{Index: i, Source: source, Target: target, Condition: condition}
		g.out[source] = append(g.out[source], resolved)
		g.in[target] = append(g.in[target], resolved)
	}

	return g, nil
}

// Validate builds the arena and checks, in order: edge integrity, acyclicity
// and reachability. It is the single entry point used at workflow creation.
func Validate(workflow *models.Workflow) error {
	g, err := New(workflow)
	if err != nil {
		return err
	}

	return g.Validate()
}

// Validate checks acyclicity and reachability on an already built arena.
func (g *Graph) Validate() error {
	if cycle := g.findCycle(); cycle != nil {
		return &CycleError{Cycle: cycle}
	}

	if unreachable := g.unreachable(); len(unreachable) > 0 {
		return &UnreachableNodeError{NodeID: g.nodes[unreachable[0]].ID}
	}

	return nil
}

// Len returns the number of nodes in the arena.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node spec at the given arena index.
func (g *Graph) Node(i int) *models.NodeSpec {
	return g.nodes[i]
}

// Index returns the arena index for a node id.
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]

	return i, ok
}

// Out returns the outgoing edges of the node at index i.
func (g *Graph) Out(i int) []Edge {
	return g.out[i]
}

// In returns the incoming edges of the node at index i.
func (g *Graph) In(i int) []Edge {
	return g.in[i]
}

// Roots returns the indexes of nodes with no incoming edges.
func (g *Graph) Roots() []int {
	var roots []int

	for i := range g.nodes {
		if len(g.in[i]) == 0 {
			roots = append(roots, i)
		}
	}

	return roots
}

const (
	colorWhite = iota // Unvisited
	colorGray         // On the DFS stack
	colorBlack        // Fully explored
)

// findCycle runs an iterative DFS tracking an on-stack set. A back edge to a
// gray node closes a cycle. Runs in O(nodes + edges).
func (g *Graph) findCycle() []string {
	colors := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))

	for i := range parent {
		parent[i] = -1
	}

	type frame struct {
		node int
		next int
	}

	for start := range g.nodes {
		if colors[start] != colorWhite {
			continue
		}

		stack := []frame{{node: start}}
		colors[start] = colorGray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]

			if top.next < len(g.out[top.node]) {
				edge := g.out[top.node][top.next]
				top.next++

				switch colors[edge.Target] {
				case colorWhite:
					colors[edge.Target] = colorGray
					parent[edge.Target] = top.node
					stack = append(stack, frame{node: edge.Target})
				case colorGray:
					return g.buildCycle(parent, top.node, edge.Target)
				}

				continue
			}

			colors[top.node] = colorBlack
			stack = stack[:len(stack)-1]
		}
	}

	return nil
}

// buildCycle walks parent links from `from` back to `to` and returns the
// cycle as node ids with the entry node repeated at the end.
func (g *Graph) buildCycle(parent []int, from, to int) []string {
	var reversed []int

	for n := from; n != to; n = parent[n] {
		reversed = append(reversed, n)
	}

	reversed = append(reversed, to)

	cycle := make([]string, 0, len(reversed)+1)
	for i := len(reversed) - 1; i >= 0; i-- {
		cycle = append(cycle, g.nodes[reversed[i]].ID)
	}

	return append(cycle, g.nodes[to].ID)
}

// unreachable returns indexes of nodes not reachable from any root via BFS.
func (g *Graph) unreachable() []int {
	visited := make([]bool, len(g.nodes))
	queue := g.Roots()

	for _, root := range queue {
		visited[root] = true
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, edge := range g.out[node] {
			if !visited[edge.Target] {
				visited[edge.Target] = true
				queue = append(queue, edge.Target)
			}
		}
	}

	var unreachable []int

	for i, ok := range visited {
		if !ok {
			unreachable = append(unreachable, i)
		}
	}

	return unreachable
}
