package retrieval

import "sort"

// rrfK is the standard Reciprocal Rank Fusion constant.
const rrfK = 60

// fuse combines any number of ranked lists into one, scoring each id by
// Σ 1/(k + rank_i) over every list it appears in. Ties are broken by vector
// score, then lexical score, then a stable id sort.
func fuse(vector, lexical, graph rankedList) []scoredID {
	combined := make(map[string]float64)
	seen := make(map[string]bool)
	var order []string

	for _, list := range []rankedList{vector, lexical, graph} {
		for rank, id := range list.ids {
			combined[id] += 1.0 / float64(rrfK+rank+1)
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
		}
	}

	out := make([]scoredID, 0, len(order))
	for _, id := range order {
		out = append(out, scoredID{id: id, score: combined[id]})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		vi, iok := vector.rankOf(out[i].id)
		vj, jok := vector.rankOf(out[j].id)
		if iok != jok {
			return iok // a vector hit outranks a non-hit at equal RRF score
		}
		if iok && jok && vi != vj {
			return vi < vj
		}
		li := lexical.scores[out[i].id]
		lj := lexical.scores[out[j].id]
		if li != lj {
			return li > lj
		}
		return out[i].id < out[j].id
	})

	return out
}
