package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/codeintel/server/internal/models"
)

// scoredID pairs a node id with a signal's raw score, used to rank and then
// discard the score (kept separately in rankedList.scores for tie-breaks).
type scoredID struct {
	id    string
	score float64
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// tokenize lowercases and splits on non-word boundaries, additionally
// splitting camelCase/snake_case identifiers so "findSimilar" and "find
// similar" score the same way.
func tokenize(s string) []string {
	var out []string
	for _, word := range tokenPattern.FindAllString(s, -1) {
		for _, part := range splitIdentifier(word) {
			if part != "" {
				out = append(out, strings.ToLower(part))
			}
		}
	}
	return out
}

// splitIdentifier breaks "fooBarID" / "foo_bar" into ["foo","Bar","ID"].
func splitIdentifier(word string) []string {
	var parts []string
	var cur strings.Builder
	runes := []rune(word)
	for i, r := range runes {
		if r == '_' {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			continue
		}
		if i > 0 && isUpper(r) && !isUpper(runes[i-1]) {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	if len(parts) == 0 {
		return []string{word}
	}
	return parts
}

func isUpper(r rune) bool {
	return r >= 'A' && r <= 'Z'
}

// nodeText builds the document text a node is lexically scored against:
// name, scope path, and signature if present.
func nodeText(n models.GraphNode) string {
	var b strings.Builder
	if v, ok := n.Properties["name"].(string); ok {
		b.WriteString(v)
		b.WriteByte(' ')
	}
	if v, ok := n.Properties["scope_path"].(string); ok {
		b.WriteString(v)
		b.WriteByte(' ')
	}
	if v, ok := n.Properties["signature"].(string); ok {
		b.WriteString(v)
	}
	return b.String()
}

// lexicalSearch scores every candidate node against the query tokens
// using IDF-weighted term frequency, the deterministic fallback used when
// the graph store exposes no text_search primitive. Returns candidates
// with a nonzero score, ranked descending.
func lexicalSearch(queryTokens []string, nodes []models.GraphNode) rankedList {
	docs := make(map[string][]string, len(nodes))
	df := make(map[string]int)
	for _, n := range nodes {
		toks := tokenize(nodeText(n))
		docs[n.ID] = toks
		seen := make(map[string]bool, len(toks))
		for _, t := range toks {
			if !seen[t] {
				df[t]++
				seen[t] = true
			}
		}
	}

	numDocs := float64(len(nodes))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log(1 + numDocs/float64(count))
	}

	var scored []scoredID
	for _, n := range nodes {
		tf := make(map[string]int)
		for _, t := range docs[n.ID] {
			tf[t]++
		}
		var score float64
		for _, qt := range queryTokens {
			if count, ok := tf[qt]; ok {
				score += float64(count) * idf[qt]
			}
		}
		if score > 0 {
			scored = append(scored, scoredID{id: n.ID, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	out := rankedList{scores: make(map[string]float64, len(scored))}
	for _, s := range scored {
		out.ids = append(out.ids, s.id)
		out.scores[s.id] = s.score
	}
	return out
}
