package graph

import (
	"fmt"

	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/codeintel/server/internal/models"
)

// Neo4jBackend implements Backend against a single Neo4j database. Every
// node carries its project_id as a property so Cypher WHERE clauses (and
// the uniqueness constraint on (:Label {id}) created at startup) enforce
// project isolation at the store layer, not just in application code.
type Neo4jBackend struct {
	driver   neo4j.DriverWithContext
	database string
}

// QueryWithParams pairs a Cypher statement with its parameter map, for
// batched multi-statement transactions.
type QueryWithParams struct {
	Query  string
	Params map[string]any
}

// NewNeo4jBackend opens a driver and verifies connectivity before returning.
func NewNeo4jBackend(ctx context.Context, uri, username, password, database string) (*Neo4jBackend, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}
	return &Neo4jBackend{driver: driver, database: database}, nil
}

func nodeProperties(node models.GraphNode) map[string]any {
	props := make(map[string]any, len(node.Properties)+2)
	for k, v := range node.Properties {
		props[k] = v
	}
	props["id"] = node.ID
	props["project_id"] = node.ProjectID
	return props
}

// CreateNode upserts a single node using an idempotent MERGE on (label, id).
func (n *Neo4jBackend) CreateNode(ctx context.Context, node models.GraphNode) (string, error) {
	builder := NewCypherBuilder()
	cypher, err := builder.BuildMergeNode(string(node.Label), "id", node.ID, nodeProperties(node))
	if err != nil {
		return "", fmt.Errorf("build node query: %w", err)
	}

	result, err := neo4j.ExecuteQuery(ctx, n.driver, cypher,
		builder.Params(),
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database))
	if err != nil {
		return "", fmt.Errorf("create node %s: %w", node.ID, err)
	}

	if len(result.Records) > 0 {
		if id, ok := result.Records[0].Get("id"); ok {
			return fmt.Sprintf("%v", id), nil
		}
	}
	return node.ID, nil
}

// CreateNodes upserts nodes one MERGE per node inside a single write
// transaction. UNWIND-per-label batching does not generalize cleanly
// across thirteen heterogeneous node labels with per-label property sets,
// so each node gets its own parameterized statement instead; they still
// commit atomically as one transaction.
func (n *Neo4jBackend) CreateNodes(ctx context.Context, nodes []models.GraphNode) ([]string, error) {
	if len(nodes) == 0 {
		return []string{}, nil
	}

	queries := make([]QueryWithParams, len(nodes))
	ids := make([]string, len(nodes))
	for i, node := range nodes {
		builder := NewCypherBuilder()
		cypher, err := builder.BuildMergeNode(string(node.Label), "id", node.ID, nodeProperties(node))
		if err != nil {
			return nil, fmt.Errorf("build node query %d: %w", i, err)
		}
		queries[i] = QueryWithParams{Query: cypher, Params: builder.Params()}
		ids[i] = node.ID
	}

	if err := n.ExecuteBatchWithParams(ctx, queries); err != nil {
		return nil, fmt.Errorf("create %d nodes: %w", len(nodes), err)
	}
	return ids, nil
}

// CreateEdge upserts a single edge using an idempotent MERGE. Both
// endpoints are looked up by id alone (not by label), since the design's
// composite id format already encodes project and kind.
func (n *Neo4jBackend) CreateEdge(ctx context.Context, edge models.GraphEdge) error {
	builder := NewCypherBuilder()
	props := make(map[string]any, len(edge.Properties)+1)
	for k, v := range edge.Properties {
		props[k] = v
	}
	props["project_id"] = edge.ProjectID

	cypher, err := builder.buildMergeEdgeByID(edge.From, edge.To, string(edge.Type), props)
	if err != nil {
		return fmt.Errorf("build edge query: %w", err)
	}

	result, err := neo4j.ExecuteQuery(ctx, n.driver, cypher,
		builder.Params(),
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database))
	if err != nil {
		return fmt.Errorf("create edge %s %s->%s: %w", edge.Type, edge.From, edge.To, err)
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("edge creation returned no results (endpoints may not exist): %s %s->%s", edge.Type, edge.From, edge.To)
	}
	return nil
}

// CreateEdges upserts edges inside a single write transaction.
func (n *Neo4jBackend) CreateEdges(ctx context.Context, edges []models.GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}

	queries := make([]QueryWithParams, len(edges))
	for i, edge := range edges {
		builder := NewCypherBuilder()
		props := make(map[string]any, len(edge.Properties)+1)
		for k, v := range edge.Properties {
			props[k] = v
		}
		props["project_id"] = edge.ProjectID

		cypher, err := builder.buildMergeEdgeByID(edge.From, edge.To, string(edge.Type), props)
		if err != nil {
			return fmt.Errorf("build edge query %d: %w", i, err)
		}
		queries[i] = QueryWithParams{Query: cypher, Params: builder.Params()}
	}

	return n.ExecuteBatchWithParams(ctx, queries)
}

// GetNode fetches a single node by id, scoped to projectID so a lookup can
// never cross projects even if an id were guessed.
func (n *Neo4jBackend) GetNode(ctx context.Context, projectID, id string) (models.GraphNode, bool, error) {
	result, err := neo4j.ExecuteQuery(ctx, n.driver,
		"MATCH (n {id: $id, project_id: $pid}) RETURN n",
		map[string]any{"id": id, "pid": projectID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return models.GraphNode{}, false, fmt.Errorf("get node %s: %w", id, err)
	}
	nodes := recordsToNodes(result.Records, "")
	if len(nodes) == 0 {
		return models.GraphNode{}, false, nil
	}
	return nodes[0], true, nil
}

// DeleteProject removes every node (and incident edges, via DETACH DELETE)
// scoped to projectID.
func (n *Neo4jBackend) DeleteProject(ctx context.Context, projectID string) error {
	_, err := neo4j.ExecuteQuery(ctx, n.driver,
		"MATCH (n {project_id: $pid}) DETACH DELETE n",
		map[string]any{"pid": projectID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database))
	if err != nil {
		return fmt.Errorf("delete project %s: %w", projectID, err)
	}
	return nil
}

// NodesByLabel returns every node of a label scoped to projectID.
func (n *Neo4jBackend) NodesByLabel(ctx context.Context, projectID string, label models.NodeLabel) ([]models.GraphNode, error) {
	if !isValidIdentifier(string(label)) {
		return nil, fmt.Errorf("invalid label: %s", label)
	}
	cypher := fmt.Sprintf("MATCH (n:%s {project_id: $pid}) RETURN n", label)
	result, err := neo4j.ExecuteQuery(ctx, n.driver, cypher,
		map[string]any{"pid": projectID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("nodes by label %s: %w", label, err)
	}
	return recordsToNodes(result.Records, label), nil
}

// Neighbors returns nodes reachable from id via edges of the given types,
// within depth hops, scoped to projectID in either direction.
func (n *Neo4jBackend) Neighbors(ctx context.Context, projectID, id string, edgeTypes []models.EdgeType, depth int) ([]models.GraphNode, error) {
	if depth <= 0 {
		depth = 1
	}
	relFilter := ""
	if len(edgeTypes) > 0 {
		names := make([]string, len(edgeTypes))
		for i, t := range edgeTypes {
			if !isValidIdentifier(string(t)) {
				return nil, fmt.Errorf("invalid edge type: %s", t)
			}
			names[i] = string(t)
		}
		relFilter = ":" + joinPipe(names)
	}

	cypher := fmt.Sprintf(
		"MATCH (src {id: $id, project_id: $pid})-[%s*1..%d]-(n) WHERE n.project_id = $pid RETURN DISTINCT n",
		relFilter, depth,
	)
	result, err := neo4j.ExecuteQuery(ctx, n.driver, cypher,
		map[string]any{"id": id, "pid": projectID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("neighbors of %s: %w", id, err)
	}
	return recordsToNodes(result.Records, ""), nil
}

func joinPipe(names []string) string {
	out := names[0]
	for _, nm := range names[1:] {
		out += "|" + nm
	}
	return out
}

func recordsToNodes(records []*neo4j.Record, fallbackLabel models.NodeLabel) []models.GraphNode {
	nodes := make([]models.GraphNode, 0, len(records))
	for _, record := range records {
		v, ok := record.Get("n")
		if !ok {
			continue
		}
		raw, ok := v.(neo4j.Node)
		if !ok {
			continue
		}
		label := fallbackLabel
		if len(raw.Labels) > 0 {
			label = models.NodeLabel(raw.Labels[0])
		}
		props := make(map[string]interface{}, len(raw.Props))
		var id, projectID string
		for k, val := range raw.Props {
			switch k {
			case "id":
				id, _ = val.(string)
			case "project_id":
				projectID, _ = val.(string)
			default:
				props[k] = val
			}
		}
		nodes = append(nodes, models.GraphNode{ID: id, ProjectID: projectID, Label: label, Properties: props})
	}
	return nodes
}

// ExecuteBatch runs unparameterized commands in one write transaction.
func (n *Neo4jBackend) ExecuteBatch(ctx context.Context, commands []string) error {
	queries := make([]QueryWithParams, len(commands))
	for i, cmd := range commands {
		queries[i] = QueryWithParams{Query: cmd}
	}
	return n.ExecuteBatchWithParams(ctx, queries)
}

// ExecuteBatchWithParams runs parameterized queries in one write transaction.
func (n *Neo4jBackend) ExecuteBatchWithParams(ctx context.Context, queries []QueryWithParams) error {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		for i, q := range queries {
			if _, err := tx.Run(ctx, q.Query, q.Params); err != nil {
				return nil, fmt.Errorf("batch command %d failed: %w", i, err)
			}
		}
		return nil, nil
	}, GetConfigForOperation("batch_create").AsNeo4jConfig()...)
	return err
}

// Query runs an unparameterized read query.
func (n *Neo4jBackend) Query(ctx context.Context, query string) (interface{}, error) {
	result, err := neo4j.ExecuteQuery(ctx, n.driver, query, nil,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if len(result.Records) > 0 {
		if count, ok := result.Records[0].Get("count"); ok {
			return count, nil
		}
	}
	return 0, nil
}

// QueryWithParams runs a parameterized read query and returns every record
// as a map keyed by column name.
func (n *Neo4jBackend) QueryWithParams(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	result, err := neo4j.ExecuteQuery(ctx, n.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	results := make([]map[string]interface{}, 0, len(result.Records))
	for _, record := range result.Records {
		row := make(map[string]interface{})
		for _, key := range record.Keys {
			if value, ok := record.Get(key); ok {
				row[key] = value
			}
		}
		results = append(results, row)
	}
	return results, nil
}

// Close closes the Neo4j driver connection.
func (n *Neo4jBackend) Close(ctx context.Context) error {
	return n.driver.Close(ctx)
}

// HealthCheck verifies the driver can still reach the database.
func (n *Neo4jBackend) HealthCheck(ctx context.Context) error {
	return n.driver.VerifyConnectivity(ctx)
}
