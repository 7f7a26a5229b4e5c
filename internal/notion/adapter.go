package notion

import (
	"encoding/json"
	"strings"

	"github.com/starford/notionvault/internal/models"
)

type listResponse[T any] struct {
	Results    []T     `json:"results"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

// rawBlock is a block record. The type-specific object sits under a key named
// after the type; it is captured in Body.
type rawBlock struct {
	ID          string
	Type        string
	HasChildren bool
	Body        rawBlockBody
}

func (b *rawBlock) UnmarshalJSON(data []byte) error {
	var head struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		HasChildren bool   `json:"has_children"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	b.ID, b.Type, b.HasChildren = head.ID, head.Type, head.HasChildren

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if body, ok := fields[head.Type]; ok && len(body) > 0 && body[0] == '{' {
		// A malformed body leaves the payload empty; rendering degrades.
		_ = json.Unmarshal(body, &b.Body)
	}
	return nil
}

type rawBlockBody struct {
	RichText   []rawRichText `json:"rich_text"`
	Checked    bool          `json:"checked"`
	Language   string        `json:"language"`
	Icon       *rawIcon      `json:"icon"`
	Caption    []rawRichText `json:"caption"`
	Type       string        `json:"type"`
	External   *rawFile      `json:"external"`
	File       *rawFile      `json:"file"`
	Name       string        `json:"name"`
	URL        string        `json:"url"`
	Expression string        `json:"expression"`
	Title      string        `json:"title"`
	SyncedFrom *struct {
		BlockID string `json:"block_id"`
	} `json:"synced_from"`
	PageID          string `json:"page_id"`
	DatabaseID      string `json:"database_id"`
	CommentID       string `json:"comment_id"`
	TableWidth      int    `json:"table_width"`
	HasColumnHeader bool   `json:"has_column_header"`
	HasRowHeader    bool   `json:"has_row_header"`
}

type rawFile struct {
	URL        string `json:"url"`
	ExpiryTime string `json:"expiry_time"`
}

type rawIcon struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

type rawRichText struct {
	Type      string `json:"type"`
	PlainText string `json:"plain_text"`
	Href      string `json:"href"`
	Text      *struct {
		Content string `json:"content"`
		Link    *struct {
			URL string `json:"url"`
		} `json:"link"`
	} `json:"text"`
	Mention *struct {
		Type     string       `json:"type"`
		Page     *rawObjectID `json:"page"`
		Database *rawObjectID `json:"database"`
		User     *struct {
			Name string `json:"name"`
		} `json:"user"`
		Date *struct {
			Start string  `json:"start"`
			End   *string `json:"end"`
		} `json:"date"`
	} `json:"mention"`
	Equation *struct {
		Expression string `json:"expression"`
	} `json:"equation"`
	Annotations struct {
		Bold          bool `json:"bold"`
		Italic        bool `json:"italic"`
		Strikethrough bool `json:"strikethrough"`
		Underline     bool `json:"underline"`
		Code          bool `json:"code"`
	} `json:"annotations"`
}

type rawObjectID struct {
	ID string `json:"id"`
}

type rawParent struct {
	Type       string `json:"type"`
	PageID     string `json:"page_id"`
	DatabaseID string `json:"database_id"`
}

type rawPage struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	LastEditedTime string    `json:"last_edited_time"`
	Icon           *rawIcon  `json:"icon"`
	Parent         rawParent `json:"parent"`
	Properties     map[string]struct {
		Type  string        `json:"type"`
		Title []rawRichText `json:"title"`
	} `json:"properties"`
}

type rawDatabase struct {
	ID    string        `json:"id"`
	URL   string        `json:"url"`
	Title []rawRichText `json:"title"`
}

func (b rawBlock) toNode() *models.Node {
	n := &models.Node{ID: b.ID, Kind: models.Kind(b.Type), HasChildren: b.HasChildren}
	body := b.Body

	switch n.Kind {
	case models.KindParagraph, models.KindHeading1, models.KindHeading2, models.KindHeading3,
		models.KindBulletedListItem, models.KindNumberedListItem, models.KindToggle, models.KindQuote:
		n.Payload = models.TextBlock{Runs: toRuns(body.RichText)}
	case models.KindToDo:
		n.Payload = models.ToDo{Runs: toRuns(body.RichText), Checked: body.Checked}
	case models.KindCode:
		n.Payload = models.Code{Runs: toRuns(body.RichText), Language: body.Language}
	case models.KindCallout:
		c := models.Callout{Runs: toRuns(body.RichText)}
		if body.Icon != nil && body.Icon.Type == "emoji" {
			c.Icon = body.Icon.Emoji
		}
		n.Payload = c
	case models.KindImage, models.KindVideo, models.KindFile, models.KindPDF, models.KindAudio:
		n.Payload = models.Media{Location: body.location(), Caption: toRuns(body.Caption), Name: body.Name}
	case models.KindBookmark, models.KindLinkPreview, models.KindEmbed:
		n.Payload = models.Link{URL: body.URL, Caption: toRuns(body.Caption)}
	case models.KindEquation:
		n.Payload = models.Equation{Expression: body.Expression}
	case models.KindChildPage, models.KindChildDatabase:
		n.Payload = models.ChildRef{Title: body.Title}
	case models.KindSyncedBlock:
		s := models.Synced{}
		if body.SyncedFrom != nil {
			s.SyncedFrom = body.SyncedFrom.BlockID
		}
		n.Payload = s
	case models.KindLinkToPage:
		pl := models.PageLink{TargetKind: body.Type}
		switch body.Type {
		case "page_id":
			pl.TargetID = body.PageID
		case "database_id":
			pl.TargetID = body.DatabaseID
		case "comment_id":
			pl.TargetID = body.CommentID
		}
		n.Payload = pl
	case models.KindTable:
		n.Payload = models.Table{Width: body.TableWidth, HasColumnHeader: body.HasColumnHeader, HasRowHeader: body.HasRowHeader}
	}
	return n
}

func (b rawBlockBody) location() models.Location {
	switch {
	case b.Type == "external" && b.External != nil:
		return models.Location{Hosting: models.HostingExternal, URL: b.External.URL}
	case b.Type == "file" && b.File != nil:
		return models.Location{Hosting: models.HostingFile, URL: b.File.URL, ExpiryTime: b.File.ExpiryTime}
	case b.External != nil:
		return models.Location{Hosting: models.HostingExternal, URL: b.External.URL}
	case b.File != nil:
		return models.Location{Hosting: models.HostingFile, URL: b.File.URL, ExpiryTime: b.File.ExpiryTime}
	}
	return models.Location{}
}

func toRuns(raw []rawRichText) []models.InlineRun {
	if len(raw) == 0 {
		return nil
	}
	runs := make([]models.InlineRun, 0, len(raw))
	for _, r := range raw {
		runs = append(runs, r.toRun())
	}
	return runs
}

func (r rawRichText) toRun() models.InlineRun {
	a := r.Annotations
	run := models.InlineRun{
		Kind: models.RunText,
		Text: r.PlainText,
		Style: models.Style{
			Bold:          a.Bold,
			Italic:        a.Italic,
			Strikethrough: a.Strikethrough,
			Underline:     a.Underline,
			Code:          a.Code,
		},
	}

	switch r.Type {
	case "text":
		if r.Text != nil {
			if run.Text == "" {
				run.Text = r.Text.Content
			}
			if r.Text.Link != nil {
				run.Link = r.Text.Link.URL
			}
		}
	case "equation":
		run.Kind = models.RunEquation
		if r.Equation != nil {
			run.Expression = r.Equation.Expression
		}
	case "mention":
		m := r.Mention
		if m == nil {
			break
		}
		switch {
		case m.Type == "page" && m.Page != nil:
			run.Kind, run.Target = models.RunPageMention, m.Page.ID
		case m.Type == "database" && m.Database != nil:
			run.Kind, run.Target = models.RunDatabaseMention, m.Database.ID
		case m.Type == "user":
			run.Kind = models.RunUserMention
			// plain_text already carries the "@" the renderer adds.
			run.Text = strings.TrimPrefix(run.Text, "@")
			if run.Text == "" && m.User != nil {
				run.Text = m.User.Name
			}
		case m.Type == "date" && m.Date != nil:
			run.Kind = models.RunDateMention
			d := &models.DateRange{Start: m.Date.Start}
			if m.Date.End != nil {
				d.End = *m.Date.End
			}
			run.Date = d
		default:
			// Other mentions keep their display text and link.
			run.Link = r.Href
		}
	}
	return run
}

func plainText(raw []rawRichText) string {
	var sb strings.Builder
	for _, r := range raw {
		sb.WriteString(r.PlainText)
	}
	return sb.String()
}

func (p rawPage) toMeta() models.PageMeta {
	m := models.PageMeta{
		ID:             p.ID,
		URL:            p.URL,
		LastEditedTime: p.LastEditedTime,
	}
	for _, prop := range p.Properties {
		if prop.Type == "title" {
			m.Title = plainText(prop.Title)
			break
		}
	}
	if p.Icon != nil && p.Icon.Type == "emoji" {
		m.Icon = p.Icon.Emoji
	}
	switch p.Parent.Type {
	case "page_id":
		m.ParentKind, m.ParentID = models.ParentPage, p.Parent.PageID
	case "database_id":
		m.ParentKind, m.ParentID = models.ParentDatabase, p.Parent.DatabaseID
	default:
		m.ParentKind = models.ParentWorkspace
	}
	return m
}

func (d rawDatabase) toMeta() models.DatabaseMeta {
	return models.DatabaseMeta{ID: d.ID, Title: plainText(d.Title), URL: d.URL}
}
