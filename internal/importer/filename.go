package importer

import (
	"path"
	"regexp"
	"strings"

	"github.com/starford/notionvault/internal/render"
)

const maxFilenameRunes = 200

var (
	unsafeFilenameRe = regexp.MustCompile(`[\\/:*?"<>|]`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
)

// SanitizeFilename turns a Notion title into a file name stem: characters
// that are invalid on common file systems become "-", whitespace runs
// collapse to a single space, and the result is trimmed and capped at 200
// runes. An empty result becomes "Untitled".
func SanitizeFilename(name string) string {
	name = unsafeFilenameRe.ReplaceAllString(name, "-")
	name = whitespaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > maxFilenameRunes {
		name = string(r[:maxFilenameRunes])
	}
	if name == "" {
		return "Untitled"
	}
	return name
}

// notePath is the vault path of a page note inside folder.
func notePath(folder, title string) string {
	return path.Join(folder, SanitizeFilename(title)+".md")
}

// disambiguatedPath is used when another page already owns notePath.
func disambiguatedPath(folder, title, id string) string {
	short := render.StripSeparators(id)
	if len(short) > 8 {
		short = short[:8]
	}
	return path.Join(folder, SanitizeFilename(title)+" ("+short+").md")
}

// linkTarget is the wikilink target Obsidian resolves to the note at p.
func linkTarget(p string) string {
	return strings.TrimSuffix(path.Base(p), ".md")
}
