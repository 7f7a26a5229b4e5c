//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS pages_fts USING fts5(
			notion_id UNINDEXED,
			title,
			path,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, notionID, title, path string) error {
	ftsDelete(tx, notionID)
	if _, err := tx.Exec(`INSERT INTO pages_fts (notion_id, title, path) VALUES (?, ?, ?)`, notionID, title, path); err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, notionID string) {
	_, _ = tx.Exec(`DELETE FROM pages_fts WHERE notion_id = ?`, notionID)
}

// SearchPages returns imported pages whose title or path contains every word
// of query as a prefix, best match first.
func (db *DB) SearchPages(query string, limit int) ([]PageRow, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return []PageRow{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return db.queryPages(`
		SELECT p.notion_id, p.path, p.title, p.url, p.parent_kind, p.parent_id,
		       p.last_edited, p.checksum, p.asset_count, p.imported_at
		FROM pages_fts f
		JOIN pages p ON p.notion_id = f.notion_id
		WHERE pages_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?`, ftsMatch(terms), limit)
}
