package vector

// Dimension is the fixed embedding width this store accepts, matching
// OpenAI's text-embedding-3-small. Every row in code_embeddings is padded
// or truncated to exactly this many components at write time.
const Dimension = 1536

// Schema is applied once at startup. pgvector's ivfflat index needs rows
// present before ANALYZE makes it useful, so lists stays modest; projects
// are expected to number in the tens-to-hundreds, not millions.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS code_embeddings (
    id           text PRIMARY KEY,
    project_id   text NOT NULL,
    original_id  text NOT NULL,
    kind         text NOT NULL,
    content_text text NOT NULL,
    content_hash text NOT NULL,
    embedding    vector(1536) NOT NULL,
    updated_at   timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS code_embeddings_project_idx
    ON code_embeddings (project_id);

CREATE INDEX IF NOT EXISTS code_embeddings_ann_idx
    ON code_embeddings USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
