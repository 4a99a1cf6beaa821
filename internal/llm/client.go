// Package llm wraps the embedding-generation provider the retrieval and
// embedding engines depend on. The server is BYOK (bring your own key):
// the caller supplies an OpenAI-compatible API key through config or the
// environment, never hardcoded.
package llm

import (
	"context"
	"log/slog"
	"os"

	"github.com/sashabaranov/go-openai"

	"github.com/codeintel/server/internal/xerrors"
)

// Model is the embedding model requested from the provider. text-embedding-3-small
// produces 1536-dimension vectors, matching vector.Dimension.
const Model = openai.SmallEmbedding3

// Client generates text embeddings through an OpenAI-compatible API. A
// custom BaseURL lets it target any provider that speaks the same wire
// protocol.
type Client struct {
	openai  *openai.Client
	model   string
	logger  *slog.Logger
	enabled bool
}

// Config holds the parameters needed to construct a Client.
type Config struct {
	APIKey  string
	BaseURL string // optional; empty uses the default OpenAI endpoint
	Model   string // optional; empty uses Model
}

// NewClient builds a Client from cfg, falling back to OPENAI_API_KEY when
// cfg.APIKey is empty. A Client with no key configured is still returned,
// with enabled=false, so callers can check IsEnabled and degrade
// gracefully.
func NewClient(cfg Config) (*Client, error) {
	logger := slog.Default().With("component", "llm")

	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		logger.Warn("no embedding API key configured; embedding generation disabled")
		return &Client{logger: logger, enabled: false}, nil
	}

	model := cfg.Model
	if model == "" {
		model = string(Model)
	}

	oaiCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		openai:  openai.NewClientWithConfig(oaiCfg),
		model:   model,
		logger:  logger,
		enabled: true,
	}, nil
}

// IsEnabled reports whether a usable API key was configured.
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// Embed requests embeddings for texts in a single batch call. Results are
// returned in the order the provider reports them, which go-openai
// preserves as input order; callers that need resilience against a
// reordering provider should use EmbeddingResult.Index.
func (c *Client) Embed(ctx context.Context, texts []string) ([]EmbeddingResult, error) {
	if !c.enabled {
		return nil, xerrors.ExternalErrorf("embedding client not enabled: %w", os.ErrInvalid)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.openai.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, xerrors.ExternalErrorf("creating embeddings: %w", err)
	}

	results := make([]EmbeddingResult, len(resp.Data))
	for i, d := range resp.Data {
		results[i] = EmbeddingResult{
			Index:      d.Index,
			Vector:     d.Embedding,
			TokensUsed: resp.Usage.TotalTokens / max(len(resp.Data), 1),
		}
	}
	return results, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
