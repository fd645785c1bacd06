package migrate

import "database/sql"

// Revisions returns the authoritative migration chain for the conversation
// store, linked root to head by predecessor references. Published steps are
// frozen; schema changes append new steps.
func Revisions() *Chain {
	return NewChain(
		stepInitialSchema,
		stepOrganization,
		stepFilesAndSearch,
		stepCollections,
		stepCollectionTag,
	)
}

// stepInitialSchema creates the core conversation tables: conversations,
// messages, tags with their join table, and per-conversation summaries.
var stepInitialSchema = Step{
	Revision: "001",
	Name:     "initial_conversation_schema",
	Upgrade: func(tx *sql.Tx) error {
		return execAll(tx,
			`CREATE TABLE conversations (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'active'
					CHECK (status IN ('active', 'archived', 'deleted')),
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				message_count INTEGER NOT NULL DEFAULT 0,
				model_used TEXT,
				tags TEXT NOT NULL DEFAULT '[]',
				metadata TEXT
			)`,
			`CREATE TABLE messages (
				id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				role TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant')),
				content TEXT NOT NULL,
				timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				token_count INTEGER,
				metadata TEXT
			)`,
			`CREATE TABLE tags (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				usage_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE conversation_tags (
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				PRIMARY KEY (conversation_id, tag_id)
			)`,
			`CREATE TABLE conversation_summaries (
				id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL UNIQUE REFERENCES conversations(id) ON DELETE CASCADE,
				summary TEXT NOT NULL,
				key_topics TEXT NOT NULL DEFAULT '[]',
				generated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				model_used TEXT,
				confidence_score REAL NOT NULL DEFAULT 0.0
			)`,
			`CREATE INDEX idx_conversations_status_updated ON conversations(status, updated_at)`,
			`CREATE INDEX idx_messages_conversation_timestamp ON messages(conversation_id, timestamp)`,
			`CREATE INDEX idx_tags_name ON tags(name)`,
		)
	},
	Downgrade: func(tx *sql.Tx) error {
		return execAll(tx,
			`DROP INDEX idx_tags_name`,
			`DROP INDEX idx_messages_conversation_timestamp`,
			`DROP INDEX idx_conversations_status_updated`,
			`DROP TABLE conversation_summaries`,
			`DROP TABLE conversation_tags`,
			`DROP TABLE tags`,
			`DROP TABLE messages`,
			`DROP TABLE conversations`,
		)
	},
}

// stepOrganization widens the conversation status enum with 'pinned' and
// adds the organizational columns (category, priority, is_favorite).
// SQLite cannot alter a CHECK constraint in place, so both directions are
// shadow-table rebuilds.
//
// Downgrade policy: conversations pinned under this revision do not exist
// in the narrower 001 enum. They are dropped from the copy — together with
// their messages, tag links, and summaries — rather than reinterpreted.
// This data loss on downgrade is deliberate.
var stepOrganization = Step{
	Revision:     "002",
	DownRevision: "001",
	Name:         "conversation_organization",
	Upgrade: func(tx *sql.Tx) error {
		return Rebuild{
			Table: "conversations",
			CreateSQL: `CREATE TABLE conversations_shadow (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'active'
					CHECK (status IN ('active', 'archived', 'pinned', 'deleted')),
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				message_count INTEGER NOT NULL DEFAULT 0,
				model_used TEXT,
				tags TEXT NOT NULL DEFAULT '[]',
				metadata TEXT,
				category TEXT,
				priority INTEGER NOT NULL DEFAULT 0 CHECK (priority BETWEEN -1 AND 1),
				is_favorite BOOLEAN NOT NULL DEFAULT 0
			)`,
			Columns: conversationBaseColumns,
			Indexes: []string{
				`CREATE INDEX idx_conversations_status_updated ON conversations(status, updated_at)`,
				`CREATE INDEX idx_conversations_category_status ON conversations(category, status)`,
			},
		}.Run(tx)
	},
	Downgrade: func(tx *sql.Tx) error {
		// Remove dependents of pinned conversations first; the rebuild
		// excludes the pinned rows themselves and foreign key enforcement
		// is off, so cascades will not fire.
		err := execAll(tx,
			`DELETE FROM messages WHERE conversation_id IN
				(SELECT id FROM conversations WHERE status = 'pinned')`,
			`DELETE FROM conversation_tags WHERE conversation_id IN
				(SELECT id FROM conversations WHERE status = 'pinned')`,
			`DELETE FROM conversation_summaries WHERE conversation_id IN
				(SELECT id FROM conversations WHERE status = 'pinned')`,
		)
		if err != nil {
			return err
		}

		return Rebuild{
			Table: "conversations",
			CreateSQL: `CREATE TABLE conversations_shadow (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'active'
					CHECK (status IN ('active', 'archived', 'deleted')),
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				message_count INTEGER NOT NULL DEFAULT 0,
				model_used TEXT,
				tags TEXT NOT NULL DEFAULT '[]',
				metadata TEXT
			)`,
			Columns: conversationBaseColumns,
			Where:   `status IN ('active', 'archived', 'deleted')`,
			Indexes: []string{
				`CREATE INDEX idx_conversations_status_updated ON conversations(status, updated_at)`,
			},
		}.Run(tx)
	},
}

// conversationBaseColumns are the columns shared by every shape the
// conversations table has had; rebuild copies move exactly these.
var conversationBaseColumns = []string{
	"id", "title", "status", "created_at", "updated_at",
	"message_count", "model_used", "tags", "metadata",
}

// stepFilesAndSearch adds per-conversation file attachments and the
// full-text index over message content (external-content FTS5 table kept
// in sync by triggers).
var stepFilesAndSearch = Step{
	Revision:     "003",
	DownRevision: "002",
	Name:         "conversation_files_and_fts",
	Upgrade: func(tx *sql.Tx) error {
		return execAll(tx,
			`CREATE TABLE conversation_files (
				id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				file_id TEXT NOT NULL,
				filename TEXT NOT NULL,
				file_path TEXT NOT NULL,
				file_size INTEGER NOT NULL DEFAULT 0,
				file_type TEXT,
				upload_timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				processing_status TEXT NOT NULL DEFAULT 'queued'
					CHECK (processing_status IN ('queued', 'processing', 'completed', 'failed')),
				chunk_count INTEGER NOT NULL DEFAULT 0,
				is_enabled BOOLEAN NOT NULL DEFAULT 1,
				metadata TEXT
			)`,
			`CREATE INDEX idx_conversation_files_conversation ON conversation_files(conversation_id)`,
			`CREATE INDEX idx_conversation_files_status ON conversation_files(processing_status)`,
			`CREATE VIRTUAL TABLE messages_fts USING fts5(
				content,
				content='messages',
				content_rowid='rowid'
			)`,
			`CREATE TRIGGER messages_fts_insert AFTER INSERT ON messages BEGIN
				INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
			`CREATE TRIGGER messages_fts_delete AFTER DELETE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
			END`,
			`CREATE TRIGGER messages_fts_update AFTER UPDATE OF content ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
				INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
			`INSERT INTO messages_fts(rowid, content) SELECT rowid, content FROM messages`,
		)
	},
	Downgrade: func(tx *sql.Tx) error {
		return execAll(tx,
			`DROP TRIGGER messages_fts_update`,
			`DROP TRIGGER messages_fts_delete`,
			`DROP TRIGGER messages_fts_insert`,
			`DROP TABLE messages_fts`,
			`DROP INDEX idx_conversation_files_status`,
			`DROP INDEX idx_conversation_files_conversation`,
			`DROP TABLE conversation_files`,
		)
	},
}

// stepCollections adds named, reusable file collections. The conversation↔
// collection join cascades from both parents but owns neither: deleting a
// conversation leaves its collections intact and vice versa.
var stepCollections = Step{
	Revision:     "004",
	DownRevision: "003",
	Name:         "collections",
	Upgrade: func(tx *sql.Tx) error {
		return execAll(tx,
			`CREATE TABLE collections (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				description TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				chunk_size INTEGER NOT NULL DEFAULT 1000,
				chunk_overlap INTEGER NOT NULL DEFAULT 200,
				is_template BOOLEAN NOT NULL DEFAULT 0,
				max_size_mb INTEGER NOT NULL DEFAULT 100
			)`,
			`CREATE TABLE collection_files (
				id TEXT PRIMARY KEY,
				collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
				file_path TEXT NOT NULL,
				file_name TEXT NOT NULL,
				file_size INTEGER NOT NULL DEFAULT 0,
				file_type TEXT,
				added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				checksum TEXT NOT NULL CHECK (length(checksum) = 64)
			)`,
			`CREATE TABLE collection_tags (
				collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
				tag TEXT NOT NULL,
				PRIMARY KEY (collection_id, tag)
			)`,
			`CREATE TABLE conversation_collections (
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
				attached_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (conversation_id, collection_id)
			)`,
			`CREATE INDEX idx_collection_files_collection ON collection_files(collection_id)`,
			`CREATE INDEX idx_collection_files_checksum ON collection_files(checksum)`,
			`CREATE INDEX idx_conversation_collections_collection ON conversation_collections(collection_id)`,
		)
	},
	Downgrade: func(tx *sql.Tx) error {
		return execAll(tx,
			`DROP INDEX idx_conversation_collections_collection`,
			`DROP INDEX idx_collection_files_checksum`,
			`DROP INDEX idx_collection_files_collection`,
			`DROP TABLE conversation_collections`,
			`DROP TABLE collection_tags`,
			`DROP TABLE collection_files`,
			`DROP TABLE collections`,
		)
	},
}

// stepCollectionTag attaches an optional collection label to conversation
// file rows. Plain column add/drop; no rebuild needed.
var stepCollectionTag = Step{
	Revision:     "79afc519981f",
	DownRevision: "004",
	Name:         "add_collection_tag",
	Upgrade: func(tx *sql.Tx) error {
		return execAll(tx,
			`ALTER TABLE conversation_files ADD COLUMN collection_tag TEXT`,
		)
	},
	Downgrade: func(tx *sql.Tx) error {
		return execAll(tx,
			`ALTER TABLE conversation_files DROP COLUMN collection_tag`,
		)
	},
}
