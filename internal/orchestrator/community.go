package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/codeintel/server/internal/build"
	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/models"
)

// detectCommunities groups a project's FILE nodes into dependency
// communities: the connected components of the DEPENDS_ON graph. Each
// component of two or more files gets a COMMUNITY node and a BELONGS_TO
// edge from every member. Communities are keyed by their
// lexicographically-smallest member path, so rebuilding an unchanged
// project MERGEs onto the same community nodes instead of minting new
// ones.
func (o *Orchestrator) detectCommunities(ctx context.Context, projectID string, idx *index.Index) error {
	files := idx.GetNodesByLabel(models.LabelFile)
	if len(files) < 2 {
		return nil
	}

	parent := make(map[string]string, len(files))
	for _, f := range files {
		parent[f.ID] = f.ID
	}
	var find func(id string) string
	find = func(id string) string {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, f := range files {
		for _, e := range idx.GetEdgesFrom(f.ID) {
			if e.Type != models.EdgeDependsOn {
				continue
			}
			if _, ok := parent[e.To]; ok {
				union(f.ID, e.To)
			}
		}
	}

	members := make(map[string][]models.GraphNode)
	for _, f := range files {
		root := find(f.ID)
		members[root] = append(members[root], f)
	}

	var nodes []models.GraphNode
	var edges []models.GraphEdge
	for _, component := range members {
		if len(component) < 2 {
			continue
		}
		sort.Slice(component, func(i, j int) bool { return component[i].ID < component[j].ID })

		anchor, _ := component[0].Properties["path"].(string)
		if anchor == "" {
			anchor = component[0].ID
		}
		communityID := build.NodeID(projectID, models.LabelCommunity, anchor)

		nodes = append(nodes, models.GraphNode{
			ID:        communityID,
			ProjectID: projectID,
			Label:     models.LabelCommunity,
			Properties: map[string]interface{}{
				"anchor": anchor,
				"size":   len(component),
			},
		})
		for _, member := range component {
			edges = append(edges, models.GraphEdge{
				ProjectID: projectID,
				Type:      models.EdgeBelongsTo,
				From:      member.ID,
				To:        communityID,
			})
		}
	}
	if len(nodes) == 0 {
		return nil
	}

	if _, err := o.graph.CreateNodes(ctx, nodes); err != nil {
		return fmt.Errorf("writing %d communities: %w", len(nodes), err)
	}
	if err := o.graph.CreateEdges(ctx, edges); err != nil {
		return fmt.Errorf("linking community members: %w", err)
	}

	for _, n := range nodes {
		idx.AddNode(n)
	}
	for _, e := range edges {
		idx.AddEdge(e)
	}
	return nil
}
