package db

import "fmt"

// SchemaSQL returns the schema initialization SQL for an embedding dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(schemaTemplate, dimension)
}

const schemaTemplate = `
    -- ==========================================================================
    -- PASSAGE TABLE (chunked incident reports and guidelines)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS passage SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS content ON passage TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON passage TYPE string;
    DEFINE FIELD IF NOT EXISTS url ON passage TYPE string;
    DEFINE FIELD IF NOT EXISTS category ON passage TYPE string ASSERT $value IN ["incident", "guideline"];
    DEFINE FIELD IF NOT EXISTS position ON passage TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS embedding ON passage TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created ON passage TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS passage_category ON passage FIELDS category;
    DEFINE INDEX IF NOT EXISTS passage_url ON passage FIELDS url;
    DEFINE INDEX IF NOT EXISTS passage_embedding ON passage FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS passage_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS passage_content_ft ON passage FIELDS content FULLTEXT ANALYZER passage_analyzer BM25;

    -- ==========================================================================
    -- REFRESH_JOB TABLE (corpus refresh history)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS refresh_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS status ON refresh_job TYPE string;
    DEFINE FIELD IF NOT EXISTS progress ON refresh_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS total ON refresh_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS result ON refresh_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS error ON refresh_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS started_at ON refresh_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON refresh_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS refresh_job_status ON refresh_job FIELDS status;
`
