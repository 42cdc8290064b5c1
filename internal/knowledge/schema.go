package knowledge

const schemaSQL = `
CREATE TABLE documents (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	fingerprint     TEXT NOT NULL,
	size            INTEGER NOT NULL,
	chunk_count     INTEGER NOT NULL DEFAULT 0,
	embedding_model TEXT,
	ingested_at     TEXT NOT NULL
);

CREATE TABLE chunks (
	id          INTEGER PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	text        TEXT NOT NULL,
	tokens      INTEGER NOT NULL,
	embedding   BLOB,
	UNIQUE (fingerprint, ordinal)
);

CREATE VIRTUAL TABLE chunks_fts USING fts5(text);
`
