// Package models holds the entity structs shared by every engine: graph
// nodes/edges, parsed-file records, embeddings, claims, episodes and
// transaction records. Keeping them in one package (rather than defining a
// GraphNode per consumer) is what lets internal/graph, internal/build and
// internal/retrieval agree on wire shape without an import cycle.
package models

import (
	"path/filepath"
	"time"
)

// NodeLabel enumerates the graph node labels the server knows about.
type NodeLabel string

const (
	LabelFile      NodeLabel = "FILE"
	LabelFunction  NodeLabel = "FUNCTION"
	LabelClass     NodeLabel = "CLASS"
	LabelImport    NodeLabel = "IMPORT"
	LabelEpisode   NodeLabel = "EPISODE"
	LabelClaim     NodeLabel = "CLAIM"
	LabelLearning  NodeLabel = "LEARNING"
	LabelCommunity NodeLabel = "COMMUNITY"
	LabelFeature   NodeLabel = "FEATURE"
	LabelTask      NodeLabel = "TASK"
	LabelSection   NodeLabel = "SECTION"
	LabelDocument  NodeLabel = "DOCUMENT"
	LabelRule      NodeLabel = "RULE"
)

// EdgeType enumerates the graph edge types the server knows about.
type EdgeType string

const (
	EdgeContains     EdgeType = "CONTAINS"
	EdgeImports      EdgeType = "IMPORTS"
	EdgeCalls        EdgeType = "CALLS"
	EdgeExtends      EdgeType = "EXTENDS"
	EdgeImplements   EdgeType = "IMPLEMENTS"
	EdgeTests        EdgeType = "TESTS"
	EdgeTargets      EdgeType = "TARGETS"
	EdgeInvolves     EdgeType = "INVOLVES"
	EdgeNextEpisode  EdgeType = "NEXT_EPISODE"
	EdgeAppliesTo    EdgeType = "APPLIES_TO"
	EdgeBelongsTo    EdgeType = "BELONGS_TO"
	EdgeDependsOn    EdgeType = "DEPENDS_ON"
	EdgeDocDescribes EdgeType = "DOC_DESCRIBES"
	EdgeSectionOf    EdgeType = "SECTION_OF"
	EdgeViolatesRule EdgeType = "VIOLATES_RULE"
)

// GraphNode is a node in the project graph. ID follows the
// "<project_id>:<kind>:<local>" composite format; Properties carries the
// label-specific attributes (path, start_line, content_hash, ...).
type GraphNode struct {
	ID         string                 `json:"id"`
	ProjectID  string                 `json:"project_id"`
	Label      NodeLabel              `json:"label"`
	Properties map[string]interface{} `json:"properties"`
}

// GraphEdge is a directed, typed edge between two GraphNode ids. Both
// endpoints must belong to the same project.
type GraphEdge struct {
	ProjectID  string                 `json:"project_id"`
	Type       EdgeType               `json:"type"`
	From       string                 `json:"from"`
	To         string                 `json:"to"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// ParsedFile is the output of internal/parser for a single source file: the
// entities and relations a GraphBuilder turns into node/edge mutations.
type ParsedFile struct {
	ProjectID   string
	Path        string
	Language    string
	ContentHash string
	Symbols     []Symbol
	Imports     []ImportRef
	Err         error
}

// Symbol is a function or class/type declaration extracted from a file.
type Symbol struct {
	Kind      NodeLabel // LabelFunction or LabelClass
	Name      string
	ScopePath string
	StartLine int
	EndLine   int
	Signature string
}

// ImportRef is an import statement extracted from a file, plus (once
// resolved) the path of the same-project file it points at, if any.
type ImportRef struct {
	Raw          string
	ResolvedPath string
	StartLine    int
	EndLine      int
}

// Embedding is a single vector-store row: the payload mirrors the graph
// node it corresponds to, bridged by a stable 32-bit id hash (see
// internal/embedding/idbridge.go) with the original string id preserved so
// hash collisions never produce a wrong answer, only a wasted lookup.
type Embedding struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	OriginalID  string    `json:"original_id"`
	Kind        NodeLabel `json:"kind"`
	Text        string    `json:"text"`
	Vector      []float32 `json:"-"`
	ContentHash string    `json:"content_hash"`
}

// ClaimType categorizes what kind of target a Claim locks.
type ClaimType string

const (
	ClaimTypeTask     ClaimType = "task"
	ClaimTypeFile     ClaimType = "file"
	ClaimTypeFunction ClaimType = "function"
	ClaimTypeFeature  ClaimType = "feature"
)

// InvalidationReason explains why a Claim's ValidTo was set.
type InvalidationReason string

const (
	InvalidationReleased      InvalidationReason = "released"
	InvalidationCodeChanged   InvalidationReason = "code_changed"
	InvalidationTaskCompleted InvalidationReason = "task_completed"
	InvalidationExpired       InvalidationReason = "expired"
)

// Claim records an agent's declared intent to work on a single target node
// within a project. A claim is open iff ValidTo is nil; closing it is
// terminal. TargetVersionSHA freezes the target's
// content_hash (or valid_from) at claim time so staleness can be detected
// by comparing it against the target's current version.
type Claim struct {
	ID                  string              `json:"id"`
	ProjectID           string              `json:"project_id"`
	AgentID             string              `json:"agent_id"`
	SessionID           string              `json:"session_id"`
	TaskID              string              `json:"task_id,omitempty"`
	ClaimType           ClaimType           `json:"claim_type"`
	TargetID            string              `json:"target_id"`
	Intent              string              `json:"intent"`
	ValidFrom           time.Time           `json:"valid_from"`
	ValidTo             *time.Time          `json:"valid_to,omitempty"`
	TargetVersionSHA    string              `json:"target_version_sha"`
	InvalidationReason  InvalidationReason  `json:"invalidation_reason,omitempty"`
	Outcome             string              `json:"outcome,omitempty"`
}

// Open reports whether the claim has not yet been closed.
func (c Claim) Open() bool {
	return c.ValidTo == nil
}

// EpisodeType enumerates the kinds of episodic memory entries.
type EpisodeType string

const (
	EpisodeObservation EpisodeType = "OBSERVATION"
	EpisodeDecision    EpisodeType = "DECISION"
	EpisodeEdit        EpisodeType = "EDIT"
	EpisodeTestResult  EpisodeType = "TEST_RESULT"
	EpisodeError       EpisodeType = "ERROR"
	EpisodeReflection  EpisodeType = "REFLECTION"
	EpisodeLearning    EpisodeType = "LEARNING"
)

// Episode is one append-only entry in a project's episodic memory, linked
// to its predecessor by NEXT_EPISODE. Sensitive episodes are excluded from
// recall but are never deleted.
type Episode struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	AgentID   string      `json:"agent_id"`
	SessionID string      `json:"session_id"`
	TaskID    string      `json:"task_id,omitempty"`
	Type      EpisodeType `json:"type"`
	Content   string      `json:"content"`
	Entities  []string    `json:"entities,omitempty"`
	Outcome   string      `json:"outcome,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Sensitive bool        `json:"sensitive"`
}

// TransactionRecord tracks one build/index operation for a project, used
// by health/drift reporting and manifest reconstruction.
type TransactionRecord struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Kind        string    `json:"kind"` // "full" | "incremental"
	FilesTotal  int       `json:"files_total"`
	FilesFailed int       `json:"files_failed"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Err         string    `json:"error,omitempty"`
}

// ProjectContext is the per-project state a session binds to: the resolved
// workspace root plus the identifiers used to scope every graph/vector
// operation. Two contexts are equal iff ProjectID, RootPath, and SourceDir
// all match.
type ProjectContext struct {
	ProjectID string
	RootPath  string // absolute workspace root
	SourceDir string // relative to RootPath; "" means RootPath itself
	BoundAt   time.Time
}

// SourceRoot is the absolute directory the orchestrator walks for files.
func (p ProjectContext) SourceRoot() string {
	if p.SourceDir == "" {
		return p.RootPath
	}
	return filepath.Join(p.RootPath, p.SourceDir)
}

// Equal reports whether two contexts are the same workspace binding.
func (p ProjectContext) Equal(other ProjectContext) bool {
	return p.ProjectID == other.ProjectID && p.RootPath == other.RootPath && p.SourceDir == other.SourceDir
}
