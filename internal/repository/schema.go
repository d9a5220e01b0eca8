package repository

// Schema definitions for the Kestrel blob store.
// Compatible with both SQLite and PostgreSQL.

// schemaBlobs holds one row per persisted collection (cases, statistics,
// intervention log). Values are JSON documents.
const schemaBlobs = `
CREATE TABLE IF NOT EXISTS kv_blobs (
    blob_key TEXT PRIMARY KEY,
    blob_value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaBlobs,
	}
}
