package index

import (
	"fmt"
	"strings"
	"unicode"
)

const defaultSearchLimit = 20

// searchTerms splits a free-text query into lower-cased words. Punctuation
// separates words, so titles like "Road/map: Q1" search as road, map, q1.
func searchTerms(q string) []string {
	return strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// ftsMatch builds an FTS5 MATCH expression requiring every term as a
// prefix. Each term is quoted so user input never reaches the query syntax.
func ftsMatch(terms []string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	return strings.Join(parts, " ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeWhere builds a WHERE clause requiring every term in the title or path.
func likeWhere(terms []string) (string, []any) {
	clauses := make([]string, len(terms))
	args := make([]any, 0, 2*len(terms))
	for i, t := range terms {
		clauses[i] = `(lower(title) LIKE ? ESCAPE '\' OR lower(path) LIKE ? ESCAPE '\')`
		pat := "%" + likeEscaper.Replace(t) + "%"
		args = append(args, pat, pat)
	}
	return strings.Join(clauses, " AND "), args
}

// queryPages runs a query selecting pageColumns and scans every row.
func (db *DB) queryPages(query string, args ...any) ([]PageRow, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []PageRow{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
