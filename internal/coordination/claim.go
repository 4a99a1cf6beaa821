package coordination

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeintel/server/internal/build"
	"github.com/codeintel/server/internal/graph"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/xerrors"
)

// Engine is the CoordinationEngine. It holds no mutable state of its own;
// every operation reads and writes through g.
type Engine struct {
	graph     graph.Backend
	snapshots *SnapshotCache // optional; nil disables overview caching
	logger    *slog.Logger
}

// New wires a coordination Engine over g.
func New(g graph.Backend, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{graph: g, logger: logger.With("component", "coordination")}
}

// SetSnapshotCache attaches the Redis-backed overview cache.
func (e *Engine) SetSnapshotCache(c *SnapshotCache) {
	e.snapshots = c
}

// Claim acquires a claim on input.TargetID within projectID, or reports the
// conflicting claim already held.
func (e *Engine) Claim(ctx context.Context, projectID string, input ClaimInput) (ClaimResult, error) {
	openClaims, err := e.openClaimsOn(ctx, projectID, input.TargetID)
	if err != nil {
		return ClaimResult{}, err
	}
	for _, c := range openClaims {
		if c.AgentID != input.AgentID {
			return ClaimResult{
				Status: ClaimStatusConflict,
				Conflict: &ConflictInfo{
					AgentID: c.AgentID,
					Intent:  c.Intent,
					Since:   c.ValidFrom,
				},
			}, nil
		}
	}

	version := unknownVersion
	targetExists := false
	if target, ok, err := e.graph.GetNode(ctx, projectID, input.TargetID); err != nil {
		return ClaimResult{}, xerrors.DatabaseErrorf("reading claim target: %w", err)
	} else if ok {
		targetExists = true
		version = targetVersion(target)
	}

	claim := models.Claim{
		ID:               build.NodeID(projectID, models.LabelClaim, uuid.New().String()),
		ProjectID:        projectID,
		AgentID:          input.AgentID,
		SessionID:        input.SessionID,
		TaskID:           input.TaskID,
		ClaimType:        input.ClaimType,
		TargetID:         input.TargetID,
		Intent:           input.Intent,
		ValidFrom:        time.Now().UTC(),
		TargetVersionSHA: version,
	}

	if _, err := e.graph.CreateNode(ctx, claimToNode(claim)); err != nil {
		return ClaimResult{}, xerrors.DatabaseErrorf("creating claim: %w", err)
	}
	if targetExists {
		if err := e.graph.CreateEdge(ctx, models.GraphEdge{
			ProjectID: projectID,
			Type:      models.EdgeTargets,
			From:      claim.ID,
			To:        input.TargetID,
		}); err != nil {
			return ClaimResult{}, xerrors.DatabaseErrorf("linking claim to target: %w", err)
		}
	}

	e.snapshots.invalidate(ctx, projectID)
	return ClaimResult{Status: ClaimStatusOK, ClaimID: claim.ID, TargetVersionSHA: version}, nil
}

// Release closes claimID, idempotently.
func (e *Engine) Release(ctx context.Context, projectID, claimID, outcome string) (ReleaseResult, error) {
	node, ok, err := e.graph.GetNode(ctx, projectID, claimID)
	if err != nil {
		return ReleaseResult{}, xerrors.DatabaseErrorf("reading claim: %w", err)
	}
	if !ok {
		return ReleaseResult{Found: false}, nil
	}

	claim := nodeToClaim(node)
	if !claim.Open() {
		return ReleaseResult{Found: true, AlreadyClosed: true}, nil
	}

	now := time.Now().UTC()
	claim.ValidTo = &now
	claim.InvalidationReason = models.InvalidationReleased
	claim.Outcome = outcome

	if _, err := e.graph.CreateNode(ctx, claimToNode(claim)); err != nil {
		return ReleaseResult{}, xerrors.DatabaseErrorf("closing claim: %w", err)
	}
	e.snapshots.invalidate(ctx, projectID)
	return ReleaseResult{Found: true}, nil
}

// InvalidateStaleAll closes every OPEN claim whose target has moved on
// since the claim was taken, rechecking every claim's target fresh.
// Exposed as a standalone operation for manual housekeeping; the per-build
// hook is InvalidateStale, which works off the build's own touched-node
// list instead of re-reading every target.
func (e *Engine) InvalidateStaleAll(ctx context.Context, projectID string) (int, error) {
	claims, err := e.openClaims(ctx, projectID)
	if err != nil {
		return 0, err
	}

	touched := make([]models.GraphNode, 0, len(claims))
	for _, claim := range claims {
		target, ok, err := e.graph.GetNode(ctx, projectID, claim.TargetID)
		if err != nil {
			return 0, xerrors.DatabaseErrorf("reading claim target during staleness sweep: %w", err)
		}
		if ok {
			touched = append(touched, target)
		}
	}

	before := claims
	if err := e.closeStaleAgainst(ctx, projectID, touched); err != nil {
		return 0, err
	}
	after, err := e.openClaims(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return len(before) - len(after), nil
}

// InvalidateStale closes every OPEN claim whose target is in touched with a
// newer valid_from than the claim recorded. Implements orchestrator.StalenessInvalidator.
func (e *Engine) InvalidateStale(ctx context.Context, projectID string, touched []models.GraphNode) error {
	return e.closeStaleAgainst(ctx, projectID, touched)
}

func (e *Engine) closeStaleAgainst(ctx context.Context, projectID string, touched []models.GraphNode) error {
	touchedByID := make(map[string]models.GraphNode, len(touched))
	for _, n := range touched {
		touchedByID[n.ID] = n
	}

	claims, err := e.openClaims(ctx, projectID)
	if err != nil {
		return err
	}

	for _, claim := range claims {
		target, ok := touchedByID[claim.TargetID]
		if !ok {
			continue
		}
		targetValidFrom, ok := nodeValidFrom(target)
		if !ok || !targetValidFrom.After(claim.ValidFrom) {
			continue
		}

		now := time.Now().UTC()
		claim.ValidTo = &now
		claim.InvalidationReason = models.InvalidationCodeChanged
		if _, err := e.graph.CreateNode(ctx, claimToNode(claim)); err != nil {
			return xerrors.DatabaseErrorf("closing stale claim: %w", err)
		}
	}
	e.snapshots.invalidate(ctx, projectID)
	return nil
}

// ExpireOld closes every OPEN claim older than maxAge.
func (e *Engine) ExpireOld(ctx context.Context, projectID string, maxAge time.Duration) (int, error) {
	claims, err := e.openClaims(ctx, projectID)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	count := 0
	for _, claim := range claims {
		if !claim.ValidFrom.Before(cutoff) {
			continue
		}
		now := time.Now().UTC()
		claim.ValidTo = &now
		claim.InvalidationReason = models.InvalidationExpired
		if _, err := e.graph.CreateNode(ctx, claimToNode(claim)); err != nil {
			return count, xerrors.DatabaseErrorf("expiring claim: %w", err)
		}
		count++
	}
	if count > 0 {
		e.snapshots.invalidate(ctx, projectID)
	}
	return count, nil
}

// OnTaskCompleted closes every OPEN claim for taskID.
func (e *Engine) OnTaskCompleted(ctx context.Context, projectID, taskID, agentID string) error {
	claims, err := e.openClaims(ctx, projectID)
	if err != nil {
		return err
	}
	for _, claim := range claims {
		if claim.TaskID != taskID {
			continue
		}
		now := time.Now().UTC()
		claim.ValidTo = &now
		claim.InvalidationReason = models.InvalidationTaskCompleted
		if _, err := e.graph.CreateNode(ctx, claimToNode(claim)); err != nil {
			return xerrors.DatabaseErrorf("closing task-completed claim: %w", err)
		}
	}
	e.snapshots.invalidate(ctx, projectID)
	return nil
}

// Status reports agentID's active claims and derived current task. Recent-episode lookup is layered in by the mcp handler,
// which has both engines; Engine only owns the claim half.
func (e *Engine) Status(ctx context.Context, projectID, agentID string) (AgentStatus, error) {
	claims, err := e.openClaims(ctx, projectID)
	if err != nil {
		return AgentStatus{}, err
	}

	status := AgentStatus{AgentID: agentID}
	for _, c := range claims {
		if c.AgentID != agentID {
			continue
		}
		status.ActiveClaims = append(status.ActiveClaims, c)
		if status.CurrentTask == "" && c.TaskID != "" {
			status.CurrentTask = c.TaskID
		}
	}
	return status, nil
}

func (e *Engine) openClaims(ctx context.Context, projectID string) ([]models.Claim, error) {
	nodes, err := e.graph.NodesByLabel(ctx, projectID, models.LabelClaim)
	if err != nil {
		return nil, xerrors.DatabaseErrorf("listing claims: %w", err)
	}
	out := make([]models.Claim, 0, len(nodes))
	for _, n := range nodes {
		c := nodeToClaim(n)
		if c.Open() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (e *Engine) openClaimsOn(ctx context.Context, projectID, targetID string) ([]models.Claim, error) {
	claims, err := e.openClaims(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Claim, 0, len(claims))
	for _, c := range claims {
		if c.TargetID == targetID {
			out = append(out, c)
		}
	}
	return out, nil
}

// targetVersion resolves the frozen version marker stored on a claim,
// preferring content_hash then hash then valid_from.
func targetVersion(target models.GraphNode) string {
	if v, ok := target.Properties["content_hash"].(string); ok && v != "" {
		return v
	}
	if v, ok := target.Properties["hash"].(string); ok && v != "" {
		return v
	}
	if v, ok := target.Properties["valid_from"].(string); ok && v != "" {
		return v
	}
	return unknownVersion
}

func nodeValidFrom(n models.GraphNode) (time.Time, bool) {
	v, ok := n.Properties["valid_from"].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
