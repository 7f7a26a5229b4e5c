// Package render converts a materialized block tree into vault Markdown and
// collects the image assets it references.
//
// Render is a pure function of its input: it keeps no state between calls
// and never fails. Payloads missing optional fields degrade to empty
// sub-fragments.
package render

import (
	"strings"

	"github.com/starford/notionvault/internal/models"
)

const indentUnit = "  "

// Result is the output of Render.
type Result struct {
	Text   string
	Assets []models.AssetReference
}

// fragment is the pair produced for every node: its text and the assets
// discovered in it, in encounter order.
type fragment struct {
	text   string
	assets []models.AssetReference
}

// Render walks the forest depth-first and joins top-level fragments with
// line breaks.
func Render(forest []*models.Node) Result {
	f := renderSeq(forest, 0)
	return Result{Text: f.text, Assets: f.assets}
}

func renderSeq(nodes []*models.Node, depth int) fragment {
	lines := make([]string, 0, len(nodes))
	var assets []models.AssetReference
	for _, n := range nodes {
		if n == nil {
			continue
		}
		f := renderNode(n, depth)
		lines = append(lines, f.text)
		assets = append(assets, f.assets...)
	}
	return fragment{text: strings.Join(lines, "\n"), assets: assets}
}

func renderNode(n *models.Node, depth int) fragment {
	f := renderOwn(n, depth)

	// Synced blocks already rendered their children in renderOwn.
	if n.Kind == models.KindSyncedBlock || len(n.Children) == 0 {
		return f
	}
	children := renderSeq(n.Children, depth+1)
	f.text += "\n" + children.text
	f.assets = append(f.assets, children.assets...)
	return f
}

// renderOwn produces the node's own fragment from the per-kind table.
func renderOwn(n *models.Node, depth int) fragment {
	indent := strings.Repeat(indentUnit, depth)

	switch n.Kind {
	case models.KindParagraph:
		return text(FormatRuns(runsOf(n)))

	case models.KindHeading1:
		return text("# " + FormatRuns(runsOf(n)))

	case models.KindHeading2:
		return text("## " + FormatRuns(runsOf(n)))

	case models.KindHeading3:
		return text("### " + FormatRuns(runsOf(n)))

	case models.KindBulletedListItem:
		return text(indent + "- " + FormatRuns(runsOf(n)))

	case models.KindNumberedListItem:
		// Always "1."; Markdown renumbers ordered lists itself.
		return text(indent + "1. " + FormatRuns(runsOf(n)))

	case models.KindToDo:
		p, _ := n.Payload.(models.ToDo)
		mark := " "
		if p.Checked {
			mark = "x"
		}
		return text(indent + "- [" + mark + "] " + FormatRuns(p.Runs))

	case models.KindToggle:
		return text("> [!info]- " + FormatRuns(runsOf(n)))

	case models.KindQuote:
		return text(prefixLines(FormatRuns(runsOf(n)), "> "))

	case models.KindCode:
		p, _ := n.Payload.(models.Code)
		return text("```" + p.Language + "\n" + PlainText(p.Runs) + "\n```")

	case models.KindDivider:
		return text("---")

	case models.KindCallout:
		p, _ := n.Payload.(models.Callout)
		return text("> [!note] " + p.Icon + "\n> " + FormatRuns(p.Runs))

	case models.KindImage:
		return renderImage(n)

	case models.KindBookmark:
		p, _ := n.Payload.(models.Link)
		caption := FormatRuns(p.Caption)
		if caption == "" {
			caption = p.URL
		}
		return text("[" + caption + "](" + p.URL + ")")

	case models.KindLinkPreview:
		p, _ := n.Payload.(models.Link)
		return text("[Link](" + p.URL + ")")

	case models.KindEmbed:
		p, _ := n.Payload.(models.Link)
		label := FormatRuns(p.Caption)
		if label == "" {
			label = "Embed"
		}
		return text("[" + label + "](" + p.URL + ")")

	case models.KindEquation:
		p, _ := n.Payload.(models.Equation)
		return text("$$\n" + p.Expression + "\n$$")

	case models.KindTable:
		return text(placeholder("Table import not yet supported"))

	case models.KindColumnList:
		return text(placeholder("Column layout not supported"))

	case models.KindChildDatabase:
		p, _ := n.Payload.(models.ChildRef)
		return text(placeholder("Database: " + p.Title))

	case models.KindTemplate:
		return text(placeholder("Template block not supported"))

	case models.KindTableOfContents:
		return text(placeholder("Table of Contents"))

	case models.KindBreadcrumb:
		return text(placeholder("Breadcrumb"))

	case models.KindChildPage:
		p, _ := n.Payload.(models.ChildRef)
		return text("[[" + p.Title + "]]")

	case models.KindVideo:
		return renderFileLink(n, "Video")

	case models.KindFile:
		return renderFileLink(n, "file")

	case models.KindPDF:
		return renderFileLink(n, "PDF")

	case models.KindAudio:
		return renderFileLink(n, "Audio")

	case models.KindSyncedBlock:
		p, _ := n.Payload.(models.Synced)
		if !p.IsOrigin() || len(n.Children) == 0 {
			return fragment{}
		}
		return renderSeq(n.Children, depth)

	case models.KindLinkToPage:
		p, _ := n.Payload.(models.PageLink)
		if p.TargetKind == "comment_id" {
			return text(placeholder("Link to comment: " + p.TargetID))
		}
		return text("[[" + NotionURI(p.TargetID) + "]]")

	default:
		return text(placeholder("Unsupported block type: " + string(n.Kind)))
	}
}

func renderImage(n *models.Node) fragment {
	p, _ := n.Payload.(models.Media)
	filename := AssetFilename(n.ID, p.Location.URL)

	var f fragment
	if p.Location.URL != "" {
		f.assets = []models.AssetReference{{
			SourceURL: p.Location.URL,
			Filename:  filename,
			NodeID:    n.ID,
		}}
	}

	f.text = "![[" + filename + "]]"
	if caption := FormatRuns(p.Caption); caption != "" {
		f.text += "\n*" + caption + "*"
	}
	return f
}

func renderFileLink(n *models.Node, label string) fragment {
	p, _ := n.Payload.(models.Media)
	if p.Name != "" {
		label = p.Name
	}
	return text("[" + label + "](" + p.Location.URL + ")")
}

func runsOf(n *models.Node) []models.InlineRun {
	p, _ := n.Payload.(models.TextBlock)
	return p.Runs
}

func text(s string) fragment { return fragment{text: s} }

func placeholder(what string) string { return "<!-- " + what + " -->" }

func prefixLines(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// NotionURI is the link target used for cross-references whose vault
// location is not known at render time.
func NotionURI(id string) string { return "notion://" + id }
