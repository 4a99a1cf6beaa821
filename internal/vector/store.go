// Package vector implements the pgvector-backed similarity search side of
// the hybrid retrieval engine. It stores one row per embedded unit (a
// function body, a doc section, an episode summary) keyed by the graph
// node id it was derived from, scoped by project_id exactly like the
// graph store.
package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/xerrors"
)

// Match is one similarity search hit. Score is cosine similarity in [0,1],
// higher is closer (1 - cosine_distance).
type Match struct {
	OriginalID  string
	Kind        string
	ContentText string
	Score       float64
}

// Store is the VectorStore the retrieval engine depends on. Implementations
// must enforce project_id scoping on every operation.
type Store interface {
	Upsert(ctx context.Context, embeddings []models.Embedding) error
	Query(ctx context.Context, projectID string, queryVector []float32, kind string, topK int) ([]Match, error)
	CountProject(ctx context.Context, projectID string) (int, error)
	DeleteProject(ctx context.Context, projectID string) error
	HealthCheck(ctx context.Context) error
	Close()
}

// PGStore is a Store backed by Postgres + pgvector.
type PGStore struct {
	pool *pgxpool.Pool
}

// Config holds the connection parameters for the vector store. Mirrors the
// graph store's config shape so both adapters are configured the same way.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// NewPGStore opens a connection pool, runs the schema migration, and
// verifies connectivity with a fail-fast ping before returning.
func NewPGStore(ctx context.Context, cfg Config) (*PGStore, error) {
	if cfg.Host == "" || cfg.Database == "" || cfg.User == "" {
		return nil, xerrors.ConfigErrorf("vector store requires host, database, and user")
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, sslMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, xerrors.DatabaseErrorf("creating vector store pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, xerrors.DatabaseErrorf("pinging vector store: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, xerrors.DatabaseErrorf("applying vector store schema: %w", err)
	}

	return &PGStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

// HealthCheck verifies the connection pool can still reach Postgres.
func (s *PGStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return xerrors.DatabaseErrorf("vector store health check: %w", err)
	}
	return nil
}

// Upsert writes or replaces embeddings keyed by id. Embeddings carrying a
// stale content_hash for an id that already exists are still overwritten -
// callers are expected to skip re-embedding unchanged content upstream,
// not rely on this method to detect it.
func (s *PGStore) Upsert(ctx context.Context, embeddings []models.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return xerrors.DatabaseErrorf("beginning vector upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const stmt = `
		INSERT INTO code_embeddings (id, project_id, original_id, kind, content_text, content_hash, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8)
		ON CONFLICT (id) DO UPDATE SET
			content_text = EXCLUDED.content_text,
			content_hash = EXCLUDED.content_hash,
			embedding    = EXCLUDED.embedding,
			updated_at   = EXCLUDED.updated_at`

	now := time.Now()
	for _, e := range embeddings {
		if len(e.Vector) != Dimension {
			return xerrors.ValidationErrorf("embedding %s has dimension %d, want %d", e.ID, len(e.Vector), Dimension)
		}
		_, err := tx.Exec(ctx, stmt, e.ID, e.ProjectID, e.OriginalID, e.Kind, e.Text, e.ContentHash, encodeVector(e.Vector), now)
		if err != nil {
			return xerrors.DatabaseErrorf("upserting embedding %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return xerrors.DatabaseErrorf("committing vector upsert: %w", err)
	}
	return nil
}

// Query returns the topK embeddings closest to queryVector within a single
// project, optionally restricted to one kind (empty string means any kind).
func (s *PGStore) Query(ctx context.Context, projectID string, queryVector []float32, kind string, topK int) ([]Match, error) {
	if len(queryVector) != Dimension {
		return nil, xerrors.ValidationErrorf("query vector has dimension %d, want %d", len(queryVector), Dimension)
	}
	if topK <= 0 {
		topK = 10
	}

	args := []any{projectID, encodeVector(queryVector)}
	query := `
		SELECT original_id, kind, content_text, 1 - (embedding <=> $2::vector) AS score
		FROM code_embeddings
		WHERE project_id = $1`
	if kind != "" {
		query += " AND kind = $3"
		args = append(args, kind)
	}
	query += " ORDER BY embedding <=> $2::vector LIMIT " + strconv.Itoa(topK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, xerrors.DatabaseErrorf("querying vector store: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.OriginalID, &m.Kind, &m.ContentText, &m.Score); err != nil {
			return nil, xerrors.DatabaseErrorf("scanning vector match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.DatabaseErrorf("reading vector matches: %w", err)
	}
	return matches, nil
}

// CountProject reports how many embeddings a project currently holds,
// used by the health surface to cross-check graph and vector store
// agreement.
func (s *PGStore) CountProject(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM code_embeddings WHERE project_id = $1", projectID).Scan(&count)
	if err != nil {
		return 0, xerrors.DatabaseErrorf("counting project embeddings: %w", err)
	}
	return count, nil
}

// DeleteProject removes every embedding belonging to a project, mirroring
// the graph store's DeleteProject so a teardown clears both stores.
func (s *PGStore) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM code_embeddings WHERE project_id = $1", projectID); err != nil {
		return xerrors.DatabaseErrorf("deleting project embeddings: %w", err)
	}
	return nil
}

// encodeVector renders a float32 slice in pgvector's text input format,
// e.g. "[0.1,0.2,0.3]". pgx has no native vector type, so the value crosses
// the wire as text and is cast with ::vector on the server.
func encodeVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
