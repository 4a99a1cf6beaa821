package tools

import (
	"context"
	"time"

	"github.com/codeintel/server/internal/episode"
	"github.com/codeintel/server/internal/metrics"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/xerrors"
)

// EpisodeAdd appends one episodic memory entry.
type EpisodeAdd struct {
	Episodes *episode.Engine
	Metrics  *metrics.Metrics
}

func (t *EpisodeAdd) Name() string            { return "episode_add" }
func (t *EpisodeAdd) RequiresWorkspace() bool { return true }

func (t *EpisodeAdd) Execute(ctx context.Context, call Call) (interface{}, error) {
	sessionID := stringParam(call.Params, "session_id")
	if sessionID == "" {
		sessionID = call.SessionID
	}

	id, err := t.Episodes.Add(ctx, call.Project.ProjectID, episode.AddInput{
		AgentID:   stringParam(call.Params, "agent_id"),
		SessionID: sessionID,
		TaskID:    stringParam(call.Params, "task_id"),
		Type:      models.EpisodeType(stringParam(call.Params, "type")),
		Content:   stringParam(call.Params, "content"),
		Entities:  stringSliceParam(call.Params, "entities"),
		Outcome:   stringParam(call.Params, "outcome"),
		Sensitive: boolParam(call.Params, "sensitive"),
	})
	if err != nil {
		return nil, err
	}
	if t.Metrics != nil {
		t.Metrics.EpisodesAdded.WithLabelValues(call.Project.ProjectID).Inc()
	}
	return map[string]interface{}{"episode_id": id}, nil
}

// EpisodeRecall runs ranked recall over stored episodes.
type EpisodeRecall struct {
	Episodes *episode.Engine
}

func (t *EpisodeRecall) Name() string            { return "episode_recall" }
func (t *EpisodeRecall) RequiresWorkspace() bool { return true }

func (t *EpisodeRecall) Execute(ctx context.Context, call Call) (interface{}, error) {
	limit, err := intParam(call.Params, "limit", 10)
	if err != nil {
		return nil, xerrors.InvalidArgumentsf("%v", err)
	}

	var since time.Time
	if raw := stringParam(call.Params, "since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, xerrors.InvalidArgumentsf("since must be RFC3339: %v", err)
		}
	}

	var types []models.EpisodeType
	for _, s := range stringSliceParam(call.Params, "types") {
		types = append(types, models.EpisodeType(s))
	}

	episodes, err := t.Episodes.Recall(ctx, episode.RecallQuery{
		ProjectID: call.Project.ProjectID,
		AgentID:   stringParam(call.Params, "agent_id"),
		TaskID:    stringParam(call.Params, "task_id"),
		Types:     types,
		Since:     since,
		Text:      stringParam(call.Params, "query"),
		Entities:  stringSliceParam(call.Params, "entities"),
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	if call.Profile() == "compact" {
		out := make([]map[string]interface{}, 0, len(episodes))
		for _, ep := range episodes {
			out = append(out, map[string]interface{}{
				"id":      ep.ID,
				"type":    string(ep.Type),
				"content": ep.Content,
			})
		}
		return map[string]interface{}{"episodes": out}, nil
	}
	return map[string]interface{}{"episodes": episodes}, nil
}

// EpisodeReflect synthesizes recent episodes into a reflection plus
// learnings.
type EpisodeReflect struct {
	Episodes *episode.Engine
}

func (t *EpisodeReflect) Name() string            { return "episode_reflect" }
func (t *EpisodeReflect) RequiresWorkspace() bool { return true }

func (t *EpisodeReflect) Execute(ctx context.Context, call Call) (interface{}, error) {
	agentID := stringParam(call.Params, "agent_id")
	if agentID == "" {
		return nil, xerrors.InvalidArgumentsf("agent_id is required")
	}
	limit, err := intParam(call.Params, "limit", 20)
	if err != nil {
		return nil, xerrors.InvalidArgumentsf("%v", err)
	}

	sessionID := stringParam(call.Params, "session_id")
	if sessionID == "" {
		sessionID = call.SessionID
	}

	return t.Episodes.Reflect(ctx, episode.ReflectScope{
		ProjectID: call.Project.ProjectID,
		AgentID:   agentID,
		SessionID: sessionID,
		Limit:     limit,
	})
}
