package tools

import (
	"context"

	"github.com/codeintel/server/internal/coordination"
	"github.com/codeintel/server/internal/episode"
	"github.com/codeintel/server/internal/metrics"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/xerrors"
)

// AgentClaim acquires a claim on a target node for the calling agent.
// A conflict is a successful result, never an error.
type AgentClaim struct {
	Coordination *coordination.Engine
	Metrics      *metrics.Metrics
}

func (t *AgentClaim) Name() string            { return "agent_claim" }
func (t *AgentClaim) RequiresWorkspace() bool { return true }

func (t *AgentClaim) Execute(ctx context.Context, call Call) (interface{}, error) {
	agentID := stringParam(call.Params, "agent_id")
	targetID := stringParam(call.Params, "target_id")
	if agentID == "" || targetID == "" {
		return nil, xerrors.InvalidArgumentsf("agent_id and target_id are required")
	}
	claimType := models.ClaimType(stringParam(call.Params, "claim_type"))
	switch claimType {
	case "":
		claimType = models.ClaimTypeFile
	case models.ClaimTypeTask, models.ClaimTypeFile, models.ClaimTypeFunction, models.ClaimTypeFeature:
	default:
		return nil, xerrors.InvalidArgumentsf("unknown claim_type %q", claimType)
	}

	sessionID := stringParam(call.Params, "session_id")
	if sessionID == "" {
		sessionID = call.SessionID
	}

	result, err := t.Coordination.Claim(ctx, call.Project.ProjectID, coordination.ClaimInput{
		AgentID:   agentID,
		SessionID: sessionID,
		TaskID:    stringParam(call.Params, "task_id"),
		ClaimType: claimType,
		TargetID:  targetID,
		Intent:    stringParam(call.Params, "intent"),
	})
	if err != nil {
		return nil, err
	}

	if t.Metrics != nil {
		switch result.Status {
		case coordination.ClaimStatusConflict:
			t.Metrics.ClaimConflicts.WithLabelValues(call.Project.ProjectID).Inc()
		case coordination.ClaimStatusOK:
			t.Metrics.ClaimsOpened.WithLabelValues(call.Project.ProjectID).Inc()
		}
	}

	out := map[string]interface{}{"status": string(result.Status)}
	if result.Status == coordination.ClaimStatusConflict {
		out["status"] = "CONFLICT"
		out["conflict"] = result.Conflict
		return out, nil
	}
	out["claim_id"] = result.ClaimID
	out["target_version_sha"] = result.TargetVersionSHA
	return out, nil
}

// AgentRelease closes a claim, idempotently.
type AgentRelease struct {
	Coordination *coordination.Engine
	Metrics      *metrics.Metrics
}

func (t *AgentRelease) Name() string            { return "agent_release" }
func (t *AgentRelease) RequiresWorkspace() bool { return true }

func (t *AgentRelease) Execute(ctx context.Context, call Call) (interface{}, error) {
	claimID := stringParam(call.Params, "claim_id")
	if claimID == "" {
		return nil, xerrors.InvalidArgumentsf("claim_id is required")
	}

	result, err := t.Coordination.Release(ctx, call.Project.ProjectID, claimID, stringParam(call.Params, "outcome"))
	if err != nil {
		return nil, err
	}
	if t.Metrics != nil && result.Found && !result.AlreadyClosed {
		t.Metrics.ClaimsClosed.WithLabelValues(call.Project.ProjectID, string(models.InvalidationReleased)).Inc()
	}
	return result, nil
}

// AgentStatus reports an agent's active claims, recent episodes, and
// derived current task.
type AgentStatus struct {
	Coordination *coordination.Engine
	Episodes     *episode.Engine
}

func (t *AgentStatus) Name() string            { return "agent_status" }
func (t *AgentStatus) RequiresWorkspace() bool { return true }

func (t *AgentStatus) Execute(ctx context.Context, call Call) (interface{}, error) {
	agentID := stringParam(call.Params, "agent_id")
	if agentID == "" {
		return nil, xerrors.InvalidArgumentsf("agent_id is required")
	}

	status, err := t.Coordination.Status(ctx, call.Project.ProjectID, agentID)
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{
		"agent_id":      status.AgentID,
		"active_claims": status.ActiveClaims,
		"current_task":  status.CurrentTask,
	}
	if t.Episodes != nil {
		if recent, err := t.Episodes.RecentForAgent(ctx, call.Project.ProjectID, agentID, 10); err == nil {
			out["recent_episodes"] = recent
		}
	}
	return out, nil
}

// CoordinationOverview summarizes every open claim in the project.
type CoordinationOverview struct {
	Coordination *coordination.Engine
}

func (t *CoordinationOverview) Name() string            { return "coordination_overview" }
func (t *CoordinationOverview) RequiresWorkspace() bool { return true }

func (t *CoordinationOverview) Execute(ctx context.Context, call Call) (interface{}, error) {
	return t.Coordination.Overview(ctx, call.Project.ProjectID)
}

// TaskComplete closes every open claim belonging to a finished task.
type TaskComplete struct {
	Coordination *coordination.Engine
}

func (t *TaskComplete) Name() string            { return "task_complete" }
func (t *TaskComplete) RequiresWorkspace() bool { return true }

func (t *TaskComplete) Execute(ctx context.Context, call Call) (interface{}, error) {
	taskID := stringParam(call.Params, "task_id")
	if taskID == "" {
		return nil, xerrors.InvalidArgumentsf("task_id is required")
	}
	if err := t.Coordination.OnTaskCompleted(ctx, call.Project.ProjectID, taskID, stringParam(call.Params, "agent_id")); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok"}, nil
}
