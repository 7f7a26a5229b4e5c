// Package parser reads imported notes: YAML frontmatter, the Notion
// identity it carries, and unresolved notion:// wikilinks in the body.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var notionLinkRe = regexp.MustCompile(`\[\[notion://([^\]|]+)(?:\|([^\]]*))?\]\]`)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Title       string
	NotionID    string
	NotionURL   string
	LastEdited  string
	NotionLinks []NotionLink
}

// NotionLink is a wikilink to a Notion object that has not been resolved to
// a vault note yet.
type NotionLink struct {
	ID    string
	Alias string
}

type notionFields struct {
	Title      string `yaml:"title"`
	NotionID   string `yaml:"notion_id"`
	NotionURL  string `yaml:"notion_url"`
	LastEdited string `yaml:"notion_last_edited"`
}

// Parse extracts frontmatter, the Notion identity and notion:// links from
// raw Markdown bytes. Invalid frontmatter leaves the whole file as body.
func Parse(data []byte) (*Result, error) {
	block, body, ok := splitFrontmatter(data)

	res := &Result{Body: body}
	if ok {
		var fm map[string]any
		var fields notionFields
		if yaml.Unmarshal(block, &fm) == nil {
			res.Frontmatter = fm
			// Typed decode tolerates mismatched fields; keep what parsed.
			_ = yaml.Unmarshal(block, &fields)
		} else {
			res.Body = string(data)
		}
		res.NotionID = strings.TrimSpace(fields.NotionID)
		res.NotionURL = fields.NotionURL
		res.LastEdited = fields.LastEdited
		res.Title = fields.Title
	}
	if res.Title == "" {
		res.Title = firstHeading(res.Body)
	}
	res.NotionLinks = NotionLinks(res.Body)
	return res, nil
}

// splitFrontmatter separates YAML frontmatter between leading --- lines from
// the body. ok is false when there is no complete frontmatter block.
func splitFrontmatter(data []byte) (block []byte, body string, ok bool) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), false
	}

	after := rest[idx+1+len(delim):]
	return rest[:idx], strings.TrimLeft(string(after), "\n\r"), true
}

// NotionLinks returns the distinct notion:// link targets in body, in order
// of first appearance. The alias is taken from the first occurrence.
func NotionLinks(body string) []NotionLink {
	matches := notionLinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []NotionLink
	for _, m := range matches {
		id := strings.TrimSpace(m[1])
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, NotionLink{ID: id, Alias: m[2]})
	}
	return out
}

// ReplaceNotionLinks rewrites every [[notion://id|alias]] whose id resolve
// knows into a regular [[target|alias]] wikilink. The alias is dropped when
// it is empty or equal to the target. Unknown ids are left untouched. It
// returns the new body and the number of links rewritten.
func ReplaceNotionLinks(body string, resolve func(id string) (string, bool)) (string, int) {
	n := 0
	out := notionLinkRe.ReplaceAllStringFunc(body, func(match string) string {
		m := notionLinkRe.FindStringSubmatch(match)
		target, ok := resolve(strings.TrimSpace(m[1]))
		if !ok || target == "" {
			return match
		}
		n++
		alias := m[2]
		if alias == "" || alias == target {
			return "[[" + target + "]]"
		}
		return "[[" + target + "|" + alias + "]]"
	})
	return out, n
}

// firstHeading returns the text of the first H1 in body, or "".
func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
