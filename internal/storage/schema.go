package storage

// Schema statements are kept per driver because the autoincrement and
// timestamp spellings differ. Column sets are identical.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		detected_type TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		total_pages INTEGER NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		processing_seconds REAL NOT NULL DEFAULT 0,
		metadata TEXT,
		ingested_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS content_blocks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		block_id TEXT NOT NULL,
		block_type TEXT NOT NULL DEFAULT '',
		page INTEGER NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		embedding TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS key_values (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		page INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS images (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		image_id TEXT NOT NULL,
		image_type TEXT NOT NULL DEFAULT '',
		page INTEGER NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		embedding TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS query_logs (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		document_ids TEXT,
		matched_ids TEXT,
		similarities TEXT,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_content_blocks_document ON content_blocks(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_key_values_document ON key_values(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_images_document ON images(document_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		detected_type TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		total_pages INTEGER NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		processing_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		metadata TEXT,
		ingested_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS content_blocks (
		seq BIGSERIAL PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		block_id TEXT NOT NULL,
		block_type TEXT NOT NULL DEFAULT '',
		page INTEGER NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		embedding TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS key_values (
		seq BIGSERIAL PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		page INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS images (
		seq BIGSERIAL PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		image_id TEXT NOT NULL,
		image_type TEXT NOT NULL DEFAULT '',
		page INTEGER NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		embedding TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS query_logs (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		document_ids TEXT,
		matched_ids TEXT,
		similarities TEXT,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_content_blocks_document ON content_blocks(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_key_values_document ON key_values(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_images_document ON images(document_id)`,
}
