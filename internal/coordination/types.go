// Package coordination implements the CoordinationEngine: agent
// claim lifecycle, conflict detection, staleness invalidation, and overview
// reporting. All state lives in the graph store; the engine itself holds no
// mutable state and is safe for concurrent use by many callers.
package coordination

import (
	"time"

	"github.com/codeintel/server/internal/models"
)

// ClaimInput is the caller-supplied intent behind a claim request.
type ClaimInput struct {
	AgentID   string
	SessionID string
	TaskID    string
	ClaimType models.ClaimType
	TargetID  string
	Intent    string
}

// ClaimStatus is the outcome of a claim() call. A conflict is a successful
// result, never an error.
type ClaimStatus string

const (
	ClaimStatusOK       ClaimStatus = "ok"
	ClaimStatusConflict ClaimStatus = "conflict"
)

// ConflictInfo describes the existing claim a new one collided with.
type ConflictInfo struct {
	AgentID string    `json:"agent_id"`
	Intent  string    `json:"intent"`
	Since   time.Time `json:"since"`
}

// ClaimResult is the return value of Engine.Claim.
type ClaimResult struct {
	Status           ClaimStatus   `json:"status"`
	ClaimID          string        `json:"claim_id,omitempty"`
	TargetVersionSHA string        `json:"target_version_sha,omitempty"`
	Conflict         *ConflictInfo `json:"conflict,omitempty"`
}

// ReleaseResult is the return value of Engine.Release. Idempotent: a second
// release on an already-closed claim reports AlreadyClosed without mutating
// anything.
type ReleaseResult struct {
	Found         bool `json:"found"`
	AlreadyClosed bool `json:"already_closed"`
}

// AgentStatus summarizes one agent's active work for the status() operation.
type AgentStatus struct {
	AgentID      string                `json:"agent_id"`
	ActiveClaims []models.Claim        `json:"active_claims"`
	CurrentTask  string                `json:"current_task,omitempty"`
}

// ConflictPair names two agents holding claims that overlap in target.
type ConflictPair struct {
	TargetID string `json:"target_id"`
	AgentA   string `json:"agent_a"`
	AgentB   string `json:"agent_b"`
}

// AgentSummary is one row of CoordinationOverview.PerAgent.
type AgentSummary struct {
	AgentID     string `json:"agent_id"`
	ActiveCount int    `json:"active_count"`
}

// CoordinationOverview is the return value of Engine.Overview.
type CoordinationOverview struct {
	Active      []models.Claim `json:"active"`
	Stale       []models.Claim `json:"stale"`
	Conflicting []ConflictPair `json:"conflicting"`
	PerAgent    []AgentSummary `json:"per_agent"`
	Total       int            `json:"total"`
}

// unknownVersion marks a claim on a target that does not exist yet, allowed
// by so agents can stake out work on not-yet-built code.
const unknownVersion = "unknown"
