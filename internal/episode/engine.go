// Package episode implements the EpisodeEngine: append-only
// episodic memory with NEXT_EPISODE chaining, ranked recall, and reflection
// synthesis. Like the coordination engine, all state lives in the graph
// store; the engine holds nothing mutable and is safe for concurrent use.
package episode

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeintel/server/internal/build"
	"github.com/codeintel/server/internal/graph"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/xerrors"
)

// maxEntities caps how many INVOLVES edges a single episode may create.
const maxEntities = 100

// recallCandidateCap bounds how many episodes are fetched before rescoring.
const recallCandidateCap = 200

// Recall rescoring weights and temporal decay rate (per day).
const (
	lexicalWeight  = 0.5
	temporalWeight = 0.3
	entityWeight   = 0.2
	decayPerDay    = 0.05
)

// AddInput is the caller-supplied content of a new episode.
type AddInput struct {
	AgentID   string
	SessionID string
	TaskID    string
	Type      models.EpisodeType
	Content   string
	Entities  []string
	Outcome   string
	Sensitive bool
}

// RecallQuery filters and ranks stored episodes.
type RecallQuery struct {
	ProjectID string
	AgentID   string
	TaskID    string
	Types     []models.EpisodeType
	Since     time.Time
	Text      string
	Entities  []string
	Limit     int
}

// ReflectScope selects which agent/session's recent episodes to synthesize.
type ReflectScope struct {
	ProjectID string
	AgentID   string
	SessionID string
	Limit     int
}

// EntityPattern is one row of a reflection's dominant-entity frequency table.
type EntityPattern struct {
	Entity string `json:"entity"`
	Count  int    `json:"count"`
}

// ReflectResult reports the reflection episode written plus the learnings
// derived from it.
type ReflectResult struct {
	EpisodeID   string          `json:"episode_id"`
	Patterns    []EntityPattern `json:"patterns"`
	LearningIDs []string        `json:"learning_ids"`
}

// Engine is the EpisodeEngine.
type Engine struct {
	graph  graph.Backend
	logger *slog.Logger
}

// New wires an episode Engine over g.
func New(g graph.Backend, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{graph: g, logger: logger.With("component", "episode")}
}

// Add appends one episode for projectID, linking it to the previous episode
// of the same (agent_id, session_id) via NEXT_EPISODE and to each existing
// referenced entity via INVOLVES.
func (e *Engine) Add(ctx context.Context, projectID string, input AddInput) (string, error) {
	if input.AgentID == "" || input.Content == "" {
		return "", xerrors.InvalidArgumentsf("episode requires agent_id and content")
	}
	if input.Type == "" {
		input.Type = models.EpisodeObservation
	}

	entities := input.Entities
	if len(entities) > maxEntities {
		entities = entities[:maxEntities]
	}

	ep := models.Episode{
		ID:        build.NodeID(projectID, models.LabelEpisode, uuid.New().String()),
		ProjectID: projectID,
		AgentID:   input.AgentID,
		SessionID: input.SessionID,
		TaskID:    input.TaskID,
		Type:      input.Type,
		Content:   input.Content,
		Entities:  entities,
		Outcome:   input.Outcome,
		Timestamp: time.Now().UTC(),
		Sensitive: input.Sensitive,
	}

	prev, err := e.latestFor(ctx, projectID, input.AgentID, input.SessionID)
	if err != nil {
		return "", err
	}

	if _, err := e.graph.CreateNode(ctx, episodeToNode(ep)); err != nil {
		return "", xerrors.DatabaseErrorf("creating episode: %w", err)
	}

	var edges []models.GraphEdge
	if prev != nil {
		edges = append(edges, models.GraphEdge{
			ProjectID: projectID,
			Type:      models.EdgeNextEpisode,
			From:      prev.ID,
			To:        ep.ID,
		})
	}
	for _, entityID := range entities {
		if _, ok, err := e.graph.GetNode(ctx, projectID, entityID); err != nil {
			return "", xerrors.DatabaseErrorf("checking entity %s: %w", entityID, err)
		} else if ok {
			edges = append(edges, models.GraphEdge{
				ProjectID: projectID,
				Type:      models.EdgeInvolves,
				From:      ep.ID,
				To:        entityID,
			})
		}
	}
	if len(edges) > 0 {
		if err := e.graph.CreateEdges(ctx, edges); err != nil {
			return "", xerrors.DatabaseErrorf("linking episode: %w", err)
		}
	}

	return ep.ID, nil
}

// Recall fetches up to recallCandidateCap episodes matching q's filters,
// excluding sensitive ones, rescores them with the blended
// lexical/temporal/entity formula and returns the top q.Limit.
func (e *Engine) Recall(ctx context.Context, q RecallQuery) ([]models.Episode, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	candidates, err := e.candidates(ctx, q)
	if err != nil {
		return nil, err
	}

	queryTokens := tokenize(q.Text)
	queryEntities := toSet(q.Entities)
	now := time.Now().UTC()

	type scored struct {
		ep    models.Episode
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, ep := range candidates {
		ageDays := now.Sub(ep.Timestamp).Hours() / 24
		temporal := math.Exp(-decayPerDay * ageDays)
		lexical := jaccard(queryTokens, tokenize(ep.Content))
		entity := jaccard(queryEntities, toSet(ep.Entities))
		ranked = append(ranked, scored{
			ep:    ep,
			score: lexicalWeight*lexical + temporalWeight*temporal + entityWeight*entity,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].ep.Timestamp.After(ranked[j].ep.Timestamp)
	})

	if limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]models.Episode, 0, limit)
	for _, s := range ranked[:limit] {
		out = append(out, s.ep)
	}
	return out, nil
}

// Reflect recalls scope's recent episodes, extracts the top-5 entity
// frequencies, writes a REFLECTION episode describing them, and emits up to
// 3 LEARNING nodes each linked APPLIES_TO its dominant entity.
func (e *Engine) Reflect(ctx context.Context, scope ReflectScope) (ReflectResult, error) {
	limit := scope.Limit
	if limit <= 0 {
		limit = 20
	}
	recent, err := e.Recall(ctx, RecallQuery{
		ProjectID: scope.ProjectID,
		AgentID:   scope.AgentID,
		Limit:     limit,
	})
	if err != nil {
		return ReflectResult{}, err
	}
	if len(recent) == 0 {
		return ReflectResult{}, xerrors.NotFoundf("no episodes to reflect on for agent %s", scope.AgentID)
	}

	counts := make(map[string]int)
	for _, ep := range recent {
		for _, entity := range ep.Entities {
			counts[entity]++
		}
	}
	patterns := make([]EntityPattern, 0, len(counts))
	for entity, count := range counts {
		patterns = append(patterns, EntityPattern{Entity: entity, Count: count})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Entity < patterns[j].Entity
	})
	if len(patterns) > 5 {
		patterns = patterns[:5]
	}

	content := reflectionContent(scope.AgentID, len(recent), patterns)
	reflectionID, err := e.Add(ctx, scope.ProjectID, AddInput{
		AgentID:   scope.AgentID,
		SessionID: scope.SessionID,
		Type:      models.EpisodeReflection,
		Content:   content,
		Entities:  topEntities(patterns),
	})
	if err != nil {
		return ReflectResult{}, err
	}

	result := ReflectResult{EpisodeID: reflectionID, Patterns: patterns}
	for i, p := range patterns {
		if i >= 3 {
			break
		}
		learningID := build.NodeID(scope.ProjectID, models.LabelLearning, uuid.New().String())
		node := models.GraphNode{
			ID:        learningID,
			ProjectID: scope.ProjectID,
			Label:     models.LabelLearning,
			Properties: map[string]interface{}{
				"agent_id":   scope.AgentID,
				"content":    fmt.Sprintf("agent %s repeatedly works with %s (%d recent episodes)", scope.AgentID, p.Entity, p.Count),
				"entity":     p.Entity,
				"created_at": time.Now().UTC().Format(time.RFC3339),
			},
		}
		if _, err := e.graph.CreateNode(ctx, node); err != nil {
			return ReflectResult{}, xerrors.DatabaseErrorf("creating learning: %w", err)
		}
		if _, ok, err := e.graph.GetNode(ctx, scope.ProjectID, p.Entity); err == nil && ok {
			if err := e.graph.CreateEdge(ctx, models.GraphEdge{
				ProjectID: scope.ProjectID,
				Type:      models.EdgeAppliesTo,
				From:      learningID,
				To:        p.Entity,
			}); err != nil {
				return ReflectResult{}, xerrors.DatabaseErrorf("linking learning: %w", err)
			}
		}
		result.LearningIDs = append(result.LearningIDs, learningID)
	}

	return result, nil
}

// RecentForAgent returns agentID's newest episodes (any session), used by
// the coordination status tool to show the last few memory entries.
func (e *Engine) RecentForAgent(ctx context.Context, projectID, agentID string, limit int) ([]models.Episode, error) {
	eps, err := e.candidates(ctx, RecallQuery{ProjectID: projectID, AgentID: agentID})
	if err != nil {
		return nil, err
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].Timestamp.After(eps[j].Timestamp) })
	if limit > 0 && limit < len(eps) {
		eps = eps[:limit]
	}
	return eps, nil
}

func (e *Engine) candidates(ctx context.Context, q RecallQuery) ([]models.Episode, error) {
	nodes, err := e.graph.NodesByLabel(ctx, q.ProjectID, models.LabelEpisode)
	if err != nil {
		return nil, xerrors.DatabaseErrorf("listing episodes: %w", err)
	}

	typeFilter := make(map[models.EpisodeType]bool, len(q.Types))
	for _, t := range q.Types {
		typeFilter[t] = true
	}

	out := make([]models.Episode, 0, len(nodes))
	for _, n := range nodes {
		ep := nodeToEpisode(n)
		if ep.Sensitive {
			continue
		}
		if q.AgentID != "" && ep.AgentID != q.AgentID {
			continue
		}
		if q.TaskID != "" && ep.TaskID != q.TaskID {
			continue
		}
		if len(typeFilter) > 0 && !typeFilter[ep.Type] {
			continue
		}
		if !q.Since.IsZero() && ep.Timestamp.Before(q.Since) {
			continue
		}
		out = append(out, ep)
		if len(out) >= recallCandidateCap {
			break
		}
	}
	return out, nil
}

// latestFor finds the newest episode for (agent, session), the predecessor
// a new episode chains to.
func (e *Engine) latestFor(ctx context.Context, projectID, agentID, sessionID string) (*models.Episode, error) {
	nodes, err := e.graph.NodesByLabel(ctx, projectID, models.LabelEpisode)
	if err != nil {
		return nil, xerrors.DatabaseErrorf("listing episodes: %w", err)
	}
	var latest *models.Episode
	for _, n := range nodes {
		ep := nodeToEpisode(n)
		if ep.AgentID != agentID || ep.SessionID != sessionID {
			continue
		}
		if latest == nil || ep.Timestamp.After(latest.Timestamp) {
			cp := ep
			latest = &cp
		}
	}
	return latest, nil
}

func reflectionContent(agentID string, episodeCount int, patterns []EntityPattern) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Across %d recent episodes, agent %s focused on: ", episodeCount, agentID)
	for i, p := range patterns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%d)", p.Entity, p.Count)
	}
	return b.String()
}

func topEntities(patterns []EntityPattern) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p.Entity)
	}
	return out
}

func tokenize(text string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) > 1 {
			out[tok] = true
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
