package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// TransactionConfig defines timeout and metadata for transactions
//
// Transaction metadata is logged by Neo4j and visible in query.log
// This helps with debugging slow queries and categorizing operations.
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

// DefaultTransactionConfigs returns recommended configs per operation type.
func DefaultTransactionConfigs() map[string]TransactionConfig {
	return map[string]TransactionConfig{
		// GraphOrchestrator full build: parse + mutate every file.
		"build_full": {
			Timeout: 10 * time.Minute,
			Metadata: map[string]any{
				"operation": "build_full",
				"type":      "write",
			},
		},

		// GraphOrchestrator incremental build: changed files only.
		"build_incremental": {
			Timeout: 2 * time.Minute,
			Metadata: map[string]any{
				"operation": "build_incremental",
				"type":      "write",
			},
		},

		// HybridRetriever graph-expansion fan-out (PPR seeding, neighbors).
		"retrieval_graph": {
			Timeout: 10 * time.Second,
			Metadata: map[string]any{
				"operation": "retrieval_graph",
				"type":      "read",
			},
		},

		// CoordinationEngine claim/release/status mutations.
		"claim_write": {
			Timeout: 15 * time.Second,
			Metadata: map[string]any{
				"operation": "claim_write",
				"type":      "write",
			},
		},

		// EpisodeEngine append/recall.
		"episode_write": {
			Timeout: 15 * time.Second,
			Metadata: map[string]any{
				"operation": "episode_write",
				"type":      "write",
			},
		},

		// Batch node/edge creation during a build.
		"batch_create": {
			Timeout: 3 * time.Minute,
			Metadata: map[string]any{
				"operation": "batch_create",
				"type":      "write",
			},
		},

		// Constraint/index creation at startup.
		"index_creation": {
			Timeout: 5 * time.Minute,
			Metadata: map[string]any{
				"operation": "index_creation",
				"type":      "schema",
			},
		},

		// health tool.
		"health_check": {
			Timeout: 5 * time.Second,
			Metadata: map[string]any{
				"operation": "health_check",
				"type":      "read",
			},
		},
	}
}

// AsNeo4jConfig converts to Neo4j transaction config functions
// Use with ExecuteQuery or ExecuteRead/ExecuteWrite
func (tc TransactionConfig) AsNeo4jConfig() []func(*neo4j.TransactionConfig) {
	configs := []func(*neo4j.TransactionConfig){}

	// Add timeout if specified
	if tc.Timeout > 0 {
		configs = append(configs, neo4j.WithTxTimeout(tc.Timeout))
	}

	// Add metadata if specified
	if len(tc.Metadata) > 0 {
		configs = append(configs, neo4j.WithTxMetadata(tc.Metadata))
	}

	return configs
}

// AsExecuteQueryOptions converts to ExecuteQuery option functions
// Note: ExecuteQuery API doesn't support per-query timeout/metadata directly
// Use context.WithTimeout() for timeout control instead
// This method is kept for API compatibility but returns empty slice
func (tc TransactionConfig) AsExecuteQueryOptions() []func(*neo4j.ExecuteQueryConfiguration) {
	// ExecuteQuery doesn't support WithTxTimeout or WithTxMetadata options
	// Timeouts should be implemented via context.WithTimeout()
	return []func(*neo4j.ExecuteQueryConfiguration){}
}

// GetConfigForOperation retrieves the appropriate transaction config
// Returns default config if operation not found
func GetConfigForOperation(operation string) TransactionConfig {
	configs := DefaultTransactionConfigs()
	if config, ok := configs[operation]; ok {
		return config
	}

	// Default fallback config
	return TransactionConfig{
		Timeout: 60 * time.Second,
		Metadata: map[string]any{
			"operation": operation,
			"type":      "unknown",
		},
	}
}

// WithCustomMetadata creates a config with custom metadata
// Useful for adding context-specific information
func (tc TransactionConfig) WithCustomMetadata(key string, value any) TransactionConfig {
	// Create a copy of the config
	newConfig := TransactionConfig{
		Timeout:  tc.Timeout,
		Metadata: make(map[string]any),
	}

	// Copy existing metadata
	for k, v := range tc.Metadata {
		newConfig.Metadata[k] = v
	}

	// Add custom metadata
	newConfig.Metadata[key] = value

	return newConfig
}

// WithTimeout creates a config with a custom timeout
// Overrides the default timeout for the operation
func (tc TransactionConfig) WithTimeout(timeout time.Duration) TransactionConfig {
	return TransactionConfig{
		Timeout:  timeout,
		Metadata: tc.Metadata,
	}
}
