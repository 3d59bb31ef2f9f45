package refserver

// schemaSQL creates the reference server's storage. Unlike the teacher,
// which has one table per entity (notes, comments, chats, tasks,
// chat_messages), this server is a generic collaborator standing in for
// "the server's authoritative storage engine" (spec §1 Out of scope):
// one records table keyed by (tenant_id, collection, id) serves every
// collection the sync engine replicates, since the core never assumes
// anything about a collection's shape beyond its opaque payload.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	tenant_id   TEXT NOT NULL,
	collection  TEXT NOT NULL,
	id          TEXT NOT NULL,
	payload     JSONB NOT NULL,
	version     BIGINT NOT NULL DEFAULT 1,
	deleted     BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at_ms BIGINT NOT NULL,
	vector_clock JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (tenant_id, collection, id)
);

CREATE INDEX IF NOT EXISTS idx_records_tenant_collection_updated
	ON records (tenant_id, collection, updated_at_ms, id);

CREATE TABLE IF NOT EXISTS owner_epoch (
	tenant_id TEXT PRIMARY KEY,
	epoch     BIGINT NOT NULL DEFAULT 1
);
`
