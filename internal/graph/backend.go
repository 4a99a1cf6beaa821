// Package graph implements the GraphStore: the single source of truth for
// a project's code graph, behind a small parameterized-Cypher interface.
package graph

import (
	"context"

	"github.com/codeintel/server/internal/models"
)

// Backend defines graph database operations. Every method is scoped by the
// project_id carried on the node/edge itself; callers never pass a project
// id separately, so there is exactly one place project isolation can leak:
// the id construction in internal/build.
type Backend interface {
	CreateNode(ctx context.Context, node models.GraphNode) (string, error)
	CreateNodes(ctx context.Context, nodes []models.GraphNode) ([]string, error)
	CreateEdge(ctx context.Context, edge models.GraphEdge) error
	CreateEdges(ctx context.Context, edges []models.GraphEdge) error

	// GetNode returns a single node scoped to projectID, used by the
	// coordination and episode engines to read a target's current version
	// without a full label scan.
	GetNode(ctx context.Context, projectID, id string) (models.GraphNode, bool, error)

	// DeleteProject removes every node and edge scoped to projectID. Used
	// when a session unbinds a project permanently (not on ordinary
	// workspace switch).
	DeleteProject(ctx context.Context, projectID string) error

	// NodesByLabel returns every node of a label within a project, used by
	// manifest reconstruction and architecture validation.
	NodesByLabel(ctx context.Context, projectID string, label models.NodeLabel) ([]models.GraphNode, error)

	// Neighbors returns nodes reachable from id via edges of the given
	// types (any direction), used by impact analysis and PPR seeding.
	Neighbors(ctx context.Context, projectID, id string, edgeTypes []models.EdgeType, depth int) ([]models.GraphNode, error)

	ExecuteBatch(ctx context.Context, commands []string) error
	Query(ctx context.Context, query string) (interface{}, error)
	QueryWithParams(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error)

	Close(ctx context.Context) error
}
