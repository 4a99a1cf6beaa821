package coordination

import (
	"time"

	"github.com/codeintel/server/internal/models"
)

// claimToNode serializes a Claim into the GraphNode shape stored under the
// CLAIM label. Times are RFC3339 strings, matching the convention the build
// package uses for valid_from on FILE nodes.
func claimToNode(c models.Claim) models.GraphNode {
	props := map[string]interface{}{
		"agent_id":           c.AgentID,
		"session_id":         c.SessionID,
		"claim_type":         string(c.ClaimType),
		"target_id":          c.TargetID,
		"intent":             c.Intent,
		"valid_from":         c.ValidFrom.Format(time.RFC3339),
		"target_version_sha": c.TargetVersionSHA,
	}
	if c.TaskID != "" {
		props["task_id"] = c.TaskID
	}
	if c.ValidTo != nil {
		props["valid_to"] = c.ValidTo.Format(time.RFC3339)
	}
	if c.InvalidationReason != "" {
		props["invalidation_reason"] = string(c.InvalidationReason)
	}
	if c.Outcome != "" {
		props["outcome"] = c.Outcome
	}
	return models.GraphNode{
		ID:         c.ID,
		ProjectID:  c.ProjectID,
		Label:      models.LabelClaim,
		Properties: props,
	}
}

// nodeToClaim is the inverse of claimToNode.
func nodeToClaim(n models.GraphNode) models.Claim {
	c := models.Claim{ID: n.ID, ProjectID: n.ProjectID}
	if v, ok := n.Properties["agent_id"].(string); ok {
		c.AgentID = v
	}
	if v, ok := n.Properties["session_id"].(string); ok {
		c.SessionID = v
	}
	if v, ok := n.Properties["task_id"].(string); ok {
		c.TaskID = v
	}
	if v, ok := n.Properties["claim_type"].(string); ok {
		c.ClaimType = models.ClaimType(v)
	}
	if v, ok := n.Properties["target_id"].(string); ok {
		c.TargetID = v
	}
	if v, ok := n.Properties["intent"].(string); ok {
		c.Intent = v
	}
	if v, ok := n.Properties["target_version_sha"].(string); ok {
		c.TargetVersionSHA = v
	}
	if v, ok := n.Properties["valid_from"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			c.ValidFrom = t
		}
	}
	if v, ok := n.Properties["valid_to"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			c.ValidTo = &t
		}
	}
	if v, ok := n.Properties["invalidation_reason"].(string); ok {
		c.InvalidationReason = models.InvalidationReason(v)
	}
	if v, ok := n.Properties["outcome"].(string); ok {
		c.Outcome = v
	}
	return c
}
