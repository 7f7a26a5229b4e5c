package index

import (
	"log/slog"
	"path"
	"strings"

	"github.com/starford/notionvault/internal/parser"
	"github.com/starford/notionvault/internal/storage"
)

// Sync reconciles the ledger with the vault:
//   - notes carrying a notion_id that the ledger does not know (or knows at
//     another path) are adopted
//   - ledger rows whose file is gone, or was edited and no longer carries a
//     notion_id, are dropped
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if cs, ok := checksums[m.Path]; ok && cs == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		kind, err := syncFile(db, m.Path, data)
		if err != nil {
			logger.Warn("sync: ledger update failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else if kind != "" {
			logger.Debug("sync: "+kind, slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteByPath(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}

	return nil
}

// syncFile brings the ledger row for one vault note in line with its
// content. It returns "created", "updated", "deleted" or "" when nothing
// changed.
func syncFile(db *DB, p string, data []byte) (string, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return "", err
	}

	cs := storage.Checksum(data)
	existing, lookupErr := db.PageByPath(p)
	if lookupErr == nil && existing.Checksum == cs {
		// Imports without frontmatter carry no notion_id; the row owns them
		// until the content changes.
		return "", nil
	}
	if res.NotionID == "" {
		if lookupErr != nil {
			return "", nil
		}
		return "deleted", db.DeleteByPath(p)
	}

	title := res.Title
	if title == "" {
		title = strings.TrimSuffix(path.Base(p), ".md")
	}
	row := PageRow{
		NotionID:   res.NotionID,
		Path:       p,
		Title:      title,
		URL:        res.NotionURL,
		LastEdited: res.LastEdited,
		Checksum:   cs,
	}
	if err := db.AdoptPage(row); err != nil {
		return "", err
	}
	if lookupErr != nil {
		return "created", nil
	}
	return "updated", nil
}
