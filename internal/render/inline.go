package render

import (
	"strings"

	"github.com/starford/notionvault/internal/models"
)

// FormatRuns renders rich text runs as inline Markdown. Style wraps apply
// inner to outer in the order code, bold, italic, strikethrough, underline;
// a hyperlink wraps the styled text. Mentions and inline equations override.
func FormatRuns(runs []models.InlineRun) string {
	if len(runs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(formatRun(r))
	}
	return b.String()
}

func formatRun(r models.InlineRun) string {
	if r.Kind == models.RunEquation {
		return "$" + r.Expression + "$"
	}

	s := applyStyle(r.Text, r.Style)
	if r.Link != "" && r.Kind == models.RunText {
		s = "[" + s + "](" + r.Link + ")"
	}

	switch r.Kind {
	case models.RunPageMention, models.RunDatabaseMention:
		return "[[" + NotionURI(r.Target) + "|" + s + "]]"
	case models.RunDateMention:
		if r.Date == nil {
			return s
		}
		if r.Date.End != "" {
			return r.Date.Start + " → " + r.Date.End
		}
		return r.Date.Start
	case models.RunUserMention:
		return "@" + s
	}
	return s
}

func applyStyle(s string, st models.Style) string {
	if st.Code {
		s = "`" + s + "`"
	}
	if st.Bold {
		s = "**" + s + "**"
	}
	if st.Italic {
		s = "*" + s + "*"
	}
	if st.Strikethrough {
		s = "~~" + s + "~~"
	}
	if st.Underline {
		s = "<u>" + s + "</u>"
	}
	return s
}

// PlainText concatenates the display text of runs without any markup.
func PlainText(runs []models.InlineRun) string {
	var b strings.Builder
	for _, r := range runs {
		if r.Kind == models.RunEquation && r.Text == "" {
			b.WriteString(r.Expression)
			continue
		}
		b.WriteString(r.Text)
	}
	return b.String()
}
