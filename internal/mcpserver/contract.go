package mcpserver

// ImportFormatContract describes the Markdown notionvault writes for an
// imported page, so LLM consumers can read and link imported notes.
const ImportFormatContract = `# notionvault Import Format

Every Notion page imported into the vault becomes one Markdown note.

## Location

- Pages go to ` + "`" + `{folder}/{title}.md` + "`" + `. The default folder is ` + "`" + `Notion Import` + "`" + `.
- Pages of a database go to ` + "`" + `{folder}/{database title}/{title}.md` + "`" + `.
- Characters invalid in file names (` + "`" + `\ / : * ? " < > |` + "`" + `) become ` + "`" + `-` + "`" + `.
  Titles are capped at 200 characters. An empty title becomes ` + "`" + `Untitled` + "`" + `.
- When two pages share a title, the later one gets a short id suffix:
  ` + "`" + `Notes (1a2b3c4d).md` + "`" + `.
- Images are downloaded to ` + "`" + `{folder}/attachments/image_{block id}.{ext}` + "`" + `.

## Frontmatter

` + "```" + `markdown
---
title: Weekly standup
notion_id: 3f2c9c1e-0d4b-4c8e-9f1a-2b3c4d5e6f70
notion_url: https://www.notion.so/Weekly-standup-3f2c9c1e0d4b4c8e9f1a2b3c4d5e6f70
notion_last_sync: 2025-01-20T09:30:00Z
notion_last_edited: 2025-01-19T17:02:00.000Z
icon: 📅
---
` + "```" + `

` + "`" + `notion_id` + "`" + ` identifies the source page. Do not edit it: re-imports and the
ledger match notes by it. Notes without it are never touched by imports.

## Body

| Notion block | Markdown |
|---|---|
| heading 1/2/3 | ` + "`" + `#` + "`" + ` / ` + "`" + `##` + "`" + ` / ` + "`" + `###` + "`" + ` |
| bulleted / numbered list | ` + "`" + `- item` + "`" + ` / ` + "`" + `1. item` + "`" + `, two spaces per nesting level |
| to-do | ` + "`" + `- [ ] task` + "`" + ` / ` + "`" + `- [x] done` + "`" + ` |
| toggle | ` + "`" + `> [!info]- summary` + "`" + ` |
| callout | ` + "`" + `> [!note] {icon}` + "`" + ` callout |
| quote | ` + "`" + `> text` + "`" + ` |
| code | fenced block with the language |
| equation | ` + "`" + `$$ … $$` + "`" + `, inline ` + "`" + `$…$` + "`" + ` |
| image | ` + "`" + `![[image_{id}.png]]` + "`" + ` then ` + "`" + `*caption*` + "`" + ` |
| bookmark / embed / file | ` + "`" + `[label](url)` + "`" + ` |
| child page | ` + "`" + `[[Title]]` + "`" + ` |
| table, columns, templates | HTML comment placeholder |

## Links

- Mentions of pages already imported become wikilinks: ` + "`" + `[[Title|mention text]]` + "`" + `.
- Mentions of pages not imported yet stay as ` + "`" + `[[notion://{page id}|text]]` + "`" + `.
  They are rewritten automatically once that page is imported.
- User mentions render as ` + "`" + `@Name` + "`" + `. Date mentions render as ` + "`" + `start` + "`" + ` or ` + "`" + `start → end` + "`" + `.
`
