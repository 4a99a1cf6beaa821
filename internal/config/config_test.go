package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, "neo4j", cfg.Neo4j.Database)
	assert.Equal(t, 5, cfg.Server.MaxResidentIndices)
	assert.Equal(t, 20, cfg.Server.BuildWorkers)
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant)
	assert.Equal(t, 0.85, cfg.Retrieval.PPRDamping)
	assert.Equal(t, 20, cfg.Retrieval.PPRIterations)
	assert.Equal(t, 24*time.Hour, cfg.Coordination.ClaimMaxAge)
	assert.True(t, cfg.Session.Watch)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://graph.internal:7687")
	t.Setenv("NEO4J_PASSWORD", "s3cret")
	t.Setenv("BUILD_WORKERS", "8")
	t.Setenv("CLAIM_MAX_AGE_HOURS", "48")
	t.Setenv("SESSION_WATCH", "false")

	cfg := Default()
	applyEnvOverrides(cfg)

	assert.Equal(t, "bolt://graph.internal:7687", cfg.Neo4j.URI)
	assert.Equal(t, "s3cret", cfg.Neo4j.Password)
	assert.Equal(t, 8, cfg.Server.BuildWorkers)
	assert.Equal(t, 48*time.Hour, cfg.Coordination.ClaimMaxAge)
	assert.False(t, cfg.Session.Watch)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: oss
neo4j:
  uri: bolt://db:7687
  user: neo4j
server:
  build_workers: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "oss", cfg.Mode)
	assert.Equal(t, "bolt://db:7687", cfg.Neo4j.URI)
	assert.Equal(t, 4, cfg.Server.BuildWorkers)
	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Server.MaxResidentIndices)
}

func TestValidateServeRequiresNeo4j(t *testing.T) {
	cfg := Default()
	cfg.Neo4j.URI = ""
	cfg.Neo4j.User = ""
	cfg.Neo4j.Password = ""

	result := cfg.ValidateWithMode(ValidationContextServe, ModeDevelopment)
	assert.True(t, result.HasErrors())
}

func TestValidateRejectsInsecureDefaultsInPackagedMode(t *testing.T) {
	cfg := Default()
	cfg.Neo4j.Password = "neo4j"

	result := cfg.ValidateWithMode(ValidationContextServe, ModePackaged)
	assert.True(t, result.HasErrors())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := Default()
	cfg.Mode = "enterprise"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "enterprise", loaded.Mode)
}
