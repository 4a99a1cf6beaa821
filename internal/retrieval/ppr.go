package retrieval

import (
	"sort"

	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/models"
)

// pprDamping and pprIterations are fixed per DESIGN.md's Open Question
// decision: 0.85 damping over 20 rounds of local power iteration.
const (
	pprDamping    = 0.85
	pprIterations = 20
)

var expansionEdgeTypes = map[models.EdgeType]bool{
	models.EdgeCalls:     true,
	models.EdgeImports:   true,
	models.EdgeContains:  true,
	models.EdgeDependsOn: true,
}

// expandDepth returns how many hops graph expansion reaches from the seed
// set for a given mode; "global" reaches further at the cost of a larger
// subgraph.
func expandDepth(mode Mode) int {
	if mode == ModeGlobal {
		return 3
	}
	return 2
}

// expandSubgraph walks idx outward from seeds up to depth hops over the
// expansion edge types, returning the node ids reached (seeds included)
// and an adjacency list restricted to that node set.
func expandSubgraph(idx *index.Index, seeds []string, depth int) (nodes []string, adjacency map[string][]string) {
	visited := map[string]bool{}
	adjacency = make(map[string][]string)
	frontier := append([]string(nil), seeds...)
	for _, s := range seeds {
		visited[s] = true
	}

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			for _, edge := range idx.GetEdgesFrom(id) {
				if !expansionEdgeTypes[edge.Type] {
					continue
				}
				adjacency[id] = append(adjacency[id], edge.To)
				if !visited[edge.To] {
					visited[edge.To] = true
					next = append(next, edge.To)
				}
			}
		}
		frontier = next
	}

	nodes = make([]string, 0, len(visited))
	for id := range visited {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	return nodes, adjacency
}

// personalizedPageRank runs damped power iteration over adjacency, with the
// restart distribution uniform over seeds.
func personalizedPageRank(nodes []string, adjacency map[string][]string, seeds []string) rankedList {
	if len(nodes) == 0 {
		return rankedList{scores: map[string]float64{}}
	}

	pos := make(map[string]int, len(nodes))
	for i, n := range nodes {
		pos[n] = i
	}

	restart := make([]float64, len(nodes))
	seedSet := map[string]bool{}
	for _, s := range seeds {
		seedSet[s] = true
	}
	if len(seedSet) == 0 {
		for i := range restart {
			restart[i] = 1.0 / float64(len(nodes))
		}
	} else {
		for s := range seedSet {
			if i, ok := pos[s]; ok {
				restart[i] = 1.0 / float64(len(seedSet))
			}
		}
	}

	outDegree := make([]int, len(nodes))
	for from, tos := range adjacency {
		i, ok := pos[from]
		if !ok {
			continue
		}
		outDegree[i] = len(tos)
	}

	rank := append([]float64(nil), restart...)
	for iter := 0; iter < pprIterations; iter++ {
		next := make([]float64, len(nodes))
		for from, tos := range adjacency {
			i, ok := pos[from]
			if !ok || outDegree[i] == 0 {
				continue
			}
			share := rank[i] / float64(outDegree[i])
			for _, to := range tos {
				if j, ok := pos[to]; ok {
					next[j] += pprDamping * share
				}
			}
		}
		for i := range next {
			next[i] += (1 - pprDamping) * restart[i]
		}
		rank = next
	}

	scored := make([]scoredID, 0, len(nodes))
	for i, n := range nodes {
		scored = append(scored, scoredID{id: n, score: rank[i]})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	out := rankedList{scores: make(map[string]float64, len(scored))}
	for _, s := range scored {
		out.ids = append(out.ids, s.id)
		out.scores[s.id] = s.score
	}
	return out
}
