package tools

import (
	"context"
	"path/filepath"

	"github.com/codeintel/server/internal/graph"
	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/orchestrator"
	"github.com/codeintel/server/internal/session"
	"github.com/codeintel/server/internal/vector"
	"github.com/codeintel/server/internal/xerrors"
)

// SetWorkspace binds the caller's session to a project context.
type SetWorkspace struct {
	Sessions *session.Registry
}

func (t *SetWorkspace) Name() string            { return "set_workspace" }
func (t *SetWorkspace) RequiresWorkspace() bool { return false }

func (t *SetWorkspace) Execute(ctx context.Context, call Call) (interface{}, error) {
	root := stringParam(call.Params, "workspace_root")
	if root == "" {
		return nil, xerrors.InvalidArgumentsf("workspace_root is required")
	}
	if !filepath.IsAbs(root) {
		return nil, xerrors.InvalidArgumentsf("workspace_root must be an absolute path")
	}

	pc, err := t.Sessions.SetWorkspace(ctx, call.SessionID, models.ProjectContext{
		ProjectID: stringParam(call.Params, "project_id"),
		RootPath:  root,
		SourceDir: stringParam(call.Params, "source_dir"),
	})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"status": "ok",
		"project_context": map[string]interface{}{
			"project_id":     pc.ProjectID,
			"workspace_root": pc.RootPath,
			"source_dir":     pc.SourceDir,
		},
	}, nil
}

// Rebuild enqueues a non-blocking build for the session's project.
type Rebuild struct {
	Orchestrator *orchestrator.Orchestrator
}

func (t *Rebuild) Name() string            { return "rebuild" }
func (t *Rebuild) RequiresWorkspace() bool { return true }

func (t *Rebuild) Execute(ctx context.Context, call Call) (interface{}, error) {
	mode := orchestrator.Mode(stringParam(call.Params, "mode"))
	switch mode {
	case "":
		mode = orchestrator.ModeIncremental
	case orchestrator.ModeFull, orchestrator.ModeIncremental:
	default:
		return nil, xerrors.InvalidArgumentsf("mode must be full or incremental, got %q", mode)
	}

	status, txID := t.Orchestrator.TriggerBuild(call.Project, mode)
	return map[string]interface{}{
		"status": string(status),
		"tx_id":  txID,
	}, nil
}

// GetStatistics reports the session project's index snapshot counts.
type GetStatistics struct {
	Indices *index.Registry
}

func (t *GetStatistics) Name() string            { return "get_statistics" }
func (t *GetStatistics) RequiresWorkspace() bool { return true }

func (t *GetStatistics) Execute(ctx context.Context, call Call) (interface{}, error) {
	idx, err := t.Indices.Get(ctx, call.Project.ProjectID)
	if err != nil {
		return nil, xerrors.DatabaseErrorf("loading index: %w", err)
	}
	stats := idx.Statistics()
	byLabel := make(map[string]int, len(stats.NodesByLabel))
	for label, n := range stats.NodesByLabel {
		byLabel[string(label)] = n
	}
	return map[string]interface{}{
		"project_id":     call.Project.ProjectID,
		"nodes":          stats.NodeCount,
		"edges":          stats.EdgeCount,
		"nodes_by_label": byLabel,
	}, nil
}

// Health reports store connectivity, index stats, the last transaction,
// and manifest drift for the session's project.
type Health struct {
	Graph        graph.Backend
	Vectors      vector.Store
	Indices      *index.Registry
	Orchestrator *orchestrator.Orchestrator
	Transactions *vector.TransactionStore
}

func (t *Health) Name() string            { return "health" }
func (t *Health) RequiresWorkspace() bool { return false }

func (t *Health) Execute(ctx context.Context, call Call) (interface{}, error) {
	out := map[string]interface{}{
		"graph_connected":  false,
		"vector_connected": false,
	}

	if hc, ok := t.Graph.(interface{ HealthCheck(context.Context) error }); ok {
		out["graph_connected"] = hc.HealthCheck(ctx) == nil
	}
	if t.Vectors != nil {
		out["vector_connected"] = t.Vectors.HealthCheck(ctx) == nil
	}

	if !call.Bound {
		return out, nil
	}

	idx, err := t.Indices.Get(ctx, call.Project.ProjectID)
	if err != nil {
		return nil, xerrors.DatabaseErrorf("loading index: %w", err)
	}
	stats := idx.Statistics()
	byLabel := make(map[string]int, len(stats.NodesByLabel))
	for label, n := range stats.NodesByLabel {
		byLabel[string(label)] = n
	}
	out["index_stats"] = map[string]interface{}{
		"nodes":           stats.NodeCount,
		"edges":           stats.EdgeCount,
		"nodes_by_label":  byLabel,
		"total_files":     stats.NodesByLabel[models.LabelFile],
		"total_functions": stats.NodesByLabel[models.LabelFunction],
		"total_classes":   stats.NodesByLabel[models.LabelClass],
	}

	if t.Vectors != nil {
		if count, err := t.Vectors.CountProject(ctx, call.Project.ProjectID); err == nil {
			out["vector_points"] = count
		}
	}

	if t.Transactions != nil {
		if recent, err := t.Transactions.Recent(ctx, call.Project.ProjectID, 1); err == nil && len(recent) > 0 {
			out["last_tx"] = recent[0]
		}
	}

	if t.Orchestrator != nil {
		drift, err := t.Orchestrator.DetectDrift(ctx, call.Project)
		if err == nil {
			out["drift_detected"] = drift > 0
			out["drift_files"] = drift
		}
	}

	return out, nil
}
