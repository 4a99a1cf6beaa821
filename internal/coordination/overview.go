package coordination

import (
	"context"
	"sort"

	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/xerrors"
)

// Overview summarizes every claim in projectID: active, stale, conflicting
// pairs, and a per-agent breakdown.
func (e *Engine) Overview(ctx context.Context, projectID string) (CoordinationOverview, error) {
	if cached, ok := e.snapshots.getOverview(ctx, projectID); ok {
		return cached, nil
	}

	claims, err := e.openClaims(ctx, projectID)
	if err != nil {
		return CoordinationOverview{}, err
	}

	overview := CoordinationOverview{Active: claims, Total: len(claims)}

	byAgent := make(map[string]int)
	byTarget := make(map[string][]models.Claim)
	for _, c := range claims {
		byAgent[c.AgentID]++
		byTarget[c.TargetID] = append(byTarget[c.TargetID], c)

		target, ok, gErr := e.graph.GetNode(ctx, projectID, c.TargetID)
		if gErr != nil {
			return CoordinationOverview{}, xerrors.DatabaseErrorf("reading target during overview: %w", gErr)
		}
		if ok {
			if tvf, ok := nodeValidFrom(target); ok && tvf.After(c.ValidFrom) {
				overview.Stale = append(overview.Stale, c)
			}
		}
	}

	for target, holders := range byTarget {
		if len(holders) < 2 {
			continue
		}
		for i := 0; i < len(holders); i++ {
			for j := i + 1; j < len(holders); j++ {
				if holders[i].AgentID == holders[j].AgentID {
					continue
				}
				overview.Conflicting = append(overview.Conflicting, ConflictPair{
					TargetID: target,
					AgentA:   holders[i].AgentID,
					AgentB:   holders[j].AgentID,
				})
			}
		}
	}

	for agent, count := range byAgent {
		overview.PerAgent = append(overview.PerAgent, AgentSummary{AgentID: agent, ActiveCount: count})
	}
	sort.Slice(overview.PerAgent, func(i, j int) bool { return overview.PerAgent[i].AgentID < overview.PerAgent[j].AgentID })

	e.snapshots.putOverview(ctx, projectID, overview)
	return overview, nil
}
