// This file holds the relational schema of the entity store.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// Schema DDL. Statements are idempotent so Open can apply them to an
// existing database.
const (
	createEntities = `CREATE TABLE IF NOT EXISTS entities (
    entity_id TEXT PRIMARY KEY,
    fragment_count INTEGER NOT NULL DEFAULT 0,
    confidence REAL NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createFragments = `CREATE TABLE IF NOT EXISTS fragments (
    frag_id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL,
    frag_type TEXT NOT NULL,
    value TEXT NOT NULL,
    source TEXT NOT NULL,
    confidence REAL NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY (entity_id) REFERENCES entities(entity_id) ON DELETE CASCADE
);`

	createErasures = `CREATE TABLE IF NOT EXISTS erasures (
    erasure_id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL,
    fragments_deleted INTEGER NOT NULL,
    requested_by TEXT NOT NULL,
    reason TEXT NOT NULL,
    timestamp TEXT NOT NULL
);`
)

// Index DDL.
const (
	idxFragmentsEntity = `CREATE INDEX IF NOT EXISTS idx_fragments_entity ON fragments(entity_id);`
	idxEntitiesUpdated = `CREATE INDEX IF NOT EXISTS idx_entities_updated ON entities(updated_at);`
	idxErasuresTime    = `CREATE INDEX IF NOT EXISTS idx_erasures_timestamp ON erasures(timestamp);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createEntities,
	createFragments,
	createErasures,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxFragmentsEntity,
	idxEntitiesUpdated,
	idxErasuresTime,
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range append(append([]string(nil), schemaDDL...), indexDDL...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "applying schema")
		}
	}
	return nil
}
