// Package supersede models the directed "update A supersedes update B"
// relation and answers logical-presence queries over it.
package supersede

import (
	"sort"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/log"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/set"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

// Graph is the supersedence relation built from aggregated update
// records. It is rebuilt from scratch for every correlation run.
type Graph struct {
	edges  map[types.KBID][]types.KBID
	cycles int
	logger *log.Logger
}

// New builds the graph from the aggregated record mapping.
func New(records map[types.KBID]types.UpdateRecord) *Graph {
	edges := make(map[types.KBID][]types.KBID, len(records))
	for id, rec := range records {
		if len(rec.Supersedes) > 0 {
			edges[id] = rec.Supersedes
		}
	}
	return &Graph{
		edges:  edges,
		logger: log.WithPrefix("supersede"),
	}
}

// DirectlySupersedes returns the raw edge set for id.
func (g *Graph) DirectlySupersedes(id types.KBID) []types.KBID {
	return g.edges[id]
}

// TransitiveClosure returns every update reachable from id by following
// supersedes edges, sorted. The traversal carries a visited set so
// malformed cyclic data terminates instead of recursing forever; id
// itself is only included if the data contains a cycle back to it.
func (g *Graph) TransitiveClosure(id types.KBID) []types.KBID {
	closure := set.NewOrdered[types.KBID]()

	stack := []types.KBID{id}
	seen := set.New(id)

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, old := range g.edges[current] {
			closure.Append(old)
			if seen.Contains(old) {
				if old == id {
					g.cycles++
					g.logger.Debug("Supersedence cycle detected", log.KB(string(id)))
				}
				continue
			}
			seen.Append(old)
			stack = append(stack, old)
		}
	}

	return closure.Values()
}

// IsCoveredBy reports whether target is logically present given the
// installed set: either installed directly or superseded by something
// installed.
func (g *Graph) IsCoveredBy(target types.KBID, installed []types.KBID) bool {
	cov := g.Coverage(installed)
	if _, ok := cov[target]; ok {
		return true
	}
	for _, id := range installed {
		if id == target {
			return true
		}
	}
	return false
}

// Coverage walks the closure of every installed update once and returns,
// for each update covered by supersedence, the sorted installed roots
// that cover it. One pass per installed root keeps the total work at
// O(installed-count x chain-length) regardless of how many expected
// updates are later queried against it.
func (g *Graph) Coverage(installed []types.KBID) map[types.KBID][]types.KBID {
	coveredBy := map[types.KBID]set.Ordered[types.KBID]{}

	for _, root := range installed {
		for _, old := range g.TransitiveClosure(root) {
			roots, ok := coveredBy[old]
			if !ok {
				roots = set.NewOrdered[types.KBID]()
				coveredBy[old] = roots
			}
			roots.Append(root)
		}
	}

	out := make(map[types.KBID][]types.KBID, len(coveredBy))
	for id, roots := range coveredBy {
		out[id] = roots.Values()
	}
	return out
}

// Cycles returns how many supersedence cycles traversals have hit. A
// non-zero count is a data-quality signal, not an error.
func (g *Graph) Cycles() int {
	return g.cycles
}

// Nodes returns every update that has at least one outgoing edge, sorted.
func (g *Graph) Nodes() []types.KBID {
	nodes := make([]types.KBID, 0, len(g.edges))
	for id := range g.edges {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i] < nodes[j]
	})
	return nodes
}
