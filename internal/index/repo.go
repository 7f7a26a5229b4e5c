package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/notionvault/internal/apperr"
)

// PageRow is one imported page.
type PageRow struct {
	NotionID   string    `json:"notion_id"`
	Path       string    `json:"path"`
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	ParentKind string    `json:"parent_kind,omitempty"`
	ParentID   string    `json:"parent_id,omitempty"`
	LastEdited string    `json:"last_edited,omitempty"`
	Checksum   string    `json:"checksum"`
	AssetCount int       `json:"asset_count"`
	ImportedAt time.Time `json:"imported_at"`
}

// AssetRow is one downloaded attachment.
type AssetRow struct {
	NodeID    string `json:"node_id"`
	PageID    string `json:"page_id"`
	Path      string `json:"path"`
	SourceURL string `json:"source_url"`
}

// RunRow summarises one import run.
type RunRow struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Imported   int       `json:"imported"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

const pageColumns = `notion_id, path, title, url, parent_kind, parent_id, last_edited, checksum, asset_count, imported_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(s rowScanner) (PageRow, error) {
	var p PageRow
	err := s.Scan(&p.NotionID, &p.Path, &p.Title, &p.URL, &p.ParentKind, &p.ParentID,
		&p.LastEdited, &p.Checksum, &p.AssetCount, &p.ImportedAt)
	return p, err
}

// UpsertPage inserts or fully replaces a page row. A different page that
// still claims the same path is evicted.
func (db *DB) UpsertPage(p PageRow) error {
	if p.ImportedAt.IsZero() {
		p.ImportedAt = time.Now().UTC()
	}
	return db.writePage(p, `
		INSERT INTO pages (`+pageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(notion_id) DO UPDATE SET
			path        = excluded.path,
			title       = excluded.title,
			url         = excluded.url,
			parent_kind = excluded.parent_kind,
			parent_id   = excluded.parent_id,
			last_edited = excluded.last_edited,
			checksum    = excluded.checksum,
			asset_count = excluded.asset_count,
			imported_at = excluded.imported_at
	`)
}

// AdoptPage records a page discovered in the vault. An existing row keeps
// its asset count, parent and import time.
func (db *DB) AdoptPage(p PageRow) error {
	if p.ImportedAt.IsZero() {
		p.ImportedAt = time.Now().UTC()
	}
	return db.writePage(p, `
		INSERT INTO pages (`+pageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(notion_id) DO UPDATE SET
			path        = excluded.path,
			title       = excluded.title,
			url         = CASE WHEN excluded.url <> '' THEN excluded.url ELSE pages.url END,
			last_edited = excluded.last_edited,
			checksum    = excluded.checksum
	`)
}

func (db *DB) writePage(p PageRow, upsert string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	evicted, err := evictPath(tx, p.Path, p.NotionID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(upsert, p.NotionID, p.Path, p.Title, p.URL, p.ParentKind, p.ParentID,
		p.LastEdited, p.Checksum, p.AssetCount, p.ImportedAt)
	if err != nil {
		return fmt.Errorf("index: upsert page: %w", err)
	}
	for _, id := range evicted {
		ftsDelete(tx, id)
	}
	if err := ftsUpsert(tx, p.NotionID, p.Title, p.Path); err != nil {
		return err
	}
	return tx.Commit()
}

// evictPath removes rows of other pages that point at path.
func evictPath(tx *sql.Tx, path, keep string) ([]string, error) {
	rows, err := tx.Query(`SELECT notion_id FROM pages WHERE path = ? AND notion_id <> ?`, path, keep)
	if err != nil {
		return nil, fmt.Errorf("index: lookup path owner: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := tx.Exec(`DELETE FROM pages WHERE path = ? AND notion_id <> ?`, path, keep); err != nil {
		return nil, fmt.Errorf("index: evict path owner: %w", err)
	}
	return ids, nil
}

// GetPage returns the row for a Notion page id.
func (db *DB) GetPage(notionID string) (*PageRow, error) {
	p, err := scanPage(db.conn.QueryRow(`SELECT `+pageColumns+` FROM pages WHERE notion_id = ?`, notionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: page %s: %w", notionID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get page: %w", err)
	}
	return &p, nil
}

// PageByPath returns the row stored at a vault path.
func (db *DB) PageByPath(path string) (*PageRow, error) {
	p, err := scanPage(db.conn.QueryRow(`SELECT `+pageColumns+` FROM pages WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: path %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: page by path: %w", err)
	}
	return &p, nil
}

// DeletePage removes a page and its assets.
func (db *DB) DeletePage(notionID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, notionID)
	if _, err := tx.Exec(`DELETE FROM pages WHERE notion_id = ?`, notionID); err != nil {
		return fmt.Errorf("index: delete page: %w", err)
	}
	return tx.Commit()
}

// DeleteByPath removes the page stored at path, if any.
func (db *DB) DeleteByPath(path string) error {
	var id string
	err := db.conn.QueryRow(`SELECT notion_id FROM pages WHERE path = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index: delete by path: %w", err)
	}
	return db.DeletePage(id)
}

// ListPages returns a page of rows ordered by most recent import, plus the
// total row count.
func (db *DB) ListPages(limit, offset int) ([]PageRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM pages`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count pages: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+pageColumns+` FROM pages
		ORDER BY imported_at DESC, path ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list pages: %w", err)
	}
	defer rows.Close()

	out := make([]PageRow, 0, limit)
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// AllPaths maps every ledger path to its Notion id.
func (db *DB) AllPaths() (map[string]string, error) {
	return db.pairs(`SELECT path, notion_id FROM pages`)
}

// AllChecksums maps every ledger path to the checksum last recorded for it.
func (db *DB) AllChecksums() (map[string]string, error) {
	return db.pairs(`SELECT path, checksum FROM pages`)
}

func (db *DB) pairs(query string) (map[string]string, error) {
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("index: %s: %w", query, err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ReplaceAssets sets the asset list of a page.
func (db *DB) ReplaceAssets(pageID string, assets []AssetRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM assets WHERE page_id = ?`, pageID); err != nil {
		return fmt.Errorf("index: clear assets: %w", err)
	}
	if len(assets) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO assets (node_id, page_id, path, source_url) VALUES (?, ?, ?, ?)
			ON CONFLICT(node_id) DO UPDATE SET page_id = excluded.page_id, path = excluded.path, source_url = excluded.source_url`)
		if err != nil {
			return fmt.Errorf("index: prepare asset insert: %w", err)
		}
		defer stmt.Close()
		for _, a := range assets {
			if _, err := stmt.Exec(a.NodeID, pageID, a.Path, a.SourceURL); err != nil {
				return fmt.Errorf("index: insert asset: %w", err)
			}
		}
	}
	return tx.Commit()
}

// Assets lists the attachments recorded for a page.
func (db *DB) Assets(pageID string) ([]AssetRow, error) {
	rows, err := db.conn.Query(`SELECT node_id, page_id, path, source_url FROM assets WHERE page_id = ? ORDER BY path`, pageID)
	if err != nil {
		return nil, fmt.Errorf("index: assets: %w", err)
	}
	defer rows.Close()

	var out []AssetRow
	for rows.Next() {
		var a AssetRow
		if err := rows.Scan(&a.NodeID, &a.PageID, &a.Path, &a.SourceURL); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecordRun stores the summary of a finished run.
func (db *DB) RecordRun(r RunRow) error {
	_, err := db.conn.Exec(`
		INSERT INTO runs (id, started_at, finished_at, imported, skipped, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			imported    = excluded.imported,
			skipped     = excluded.skipped,
			failed      = excluded.failed,
			error       = excluded.error
	`, r.ID, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Imported, r.Skipped, r.Failed, r.Error)
	if err != nil {
		return fmt.Errorf("index: record run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs first.
func (db *DB) Runs(limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`SELECT id, started_at, finished_at, imported, skipped, failed, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Imported, &r.Skipped, &r.Failed, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
