//go:build !sqlite_fts5

package index

import "database/sql"

// Without FTS5 the pages table is searched with LIKE and nothing extra is
// maintained.
func initFTS(_ *sql.DB) error { return nil }

func ftsUpsert(_ *sql.Tx, _, _, _ string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

// SearchPages returns imported pages whose title or path contains every word
// of query, ordered by title.
func (db *DB) SearchPages(query string, limit int) ([]PageRow, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return []PageRow{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	where, args := likeWhere(terms)
	return db.queryPages(`SELECT `+pageColumns+` FROM pages WHERE `+where+` ORDER BY title LIMIT ?`, append(args, limit)...)
}
