package episode

import (
	"time"

	"github.com/codeintel/server/internal/models"
)

// episodeToNode serializes an Episode under the EPISODE label. Entities are
// stored as a string slice property; Neo4j and the in-memory index both
// round-trip []interface{} for it, which nodeToEpisode handles.
func episodeToNode(ep models.Episode) models.GraphNode {
	props := map[string]interface{}{
		"agent_id":   ep.AgentID,
		"session_id": ep.SessionID,
		"type":       string(ep.Type),
		"content":    ep.Content,
		"timestamp":  ep.Timestamp.Format(time.RFC3339Nano),
		"sensitive":  ep.Sensitive,
	}
	if ep.TaskID != "" {
		props["task_id"] = ep.TaskID
	}
	if ep.Outcome != "" {
		props["outcome"] = ep.Outcome
	}
	if len(ep.Entities) > 0 {
		entities := make([]interface{}, len(ep.Entities))
		for i, e := range ep.Entities {
			entities[i] = e
		}
		props["entities"] = entities
	}
	return models.GraphNode{
		ID:         ep.ID,
		ProjectID:  ep.ProjectID,
		Label:      models.LabelEpisode,
		Properties: props,
	}
}

// nodeToEpisode is the inverse of episodeToNode.
func nodeToEpisode(n models.GraphNode) models.Episode {
	ep := models.Episode{ID: n.ID, ProjectID: n.ProjectID}
	if v, ok := n.Properties["agent_id"].(string); ok {
		ep.AgentID = v
	}
	if v, ok := n.Properties["session_id"].(string); ok {
		ep.SessionID = v
	}
	if v, ok := n.Properties["task_id"].(string); ok {
		ep.TaskID = v
	}
	if v, ok := n.Properties["type"].(string); ok {
		ep.Type = models.EpisodeType(v)
	}
	if v, ok := n.Properties["content"].(string); ok {
		ep.Content = v
	}
	if v, ok := n.Properties["outcome"].(string); ok {
		ep.Outcome = v
	}
	if v, ok := n.Properties["sensitive"].(bool); ok {
		ep.Sensitive = v
	}
	if v, ok := n.Properties["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			ep.Timestamp = t
		}
	}
	switch raw := n.Properties["entities"].(type) {
	case []interface{}:
		for _, e := range raw {
			if s, ok := e.(string); ok {
				ep.Entities = append(ep.Entities, s)
			}
		}
	case []string:
		ep.Entities = append(ep.Entities, raw...)
	}
	return ep
}
