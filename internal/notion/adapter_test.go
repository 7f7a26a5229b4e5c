package notion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notionvault/internal/models"
)

func decodeBlock(t *testing.T, src string) *models.Node {
	t.Helper()
	var b rawBlock
	require.NoError(t, json.Unmarshal([]byte(src), &b))
	return b.toNode()
}

func TestBlockPayloads(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want *models.Node
	}{
		{
			name: "to_do",
			src:  `{"id":"t","type":"to_do","has_children":true,"to_do":{"rich_text":[{"type":"text","plain_text":"buy milk"}],"checked":true}}`,
			want: &models.Node{ID: "t", Kind: models.KindToDo, HasChildren: true,
				Payload: models.ToDo{Runs: []models.InlineRun{{Kind: models.RunText, Text: "buy milk"}}, Checked: true}},
		},
		{
			name: "code",
			src:  `{"id":"c","type":"code","code":{"rich_text":[{"type":"text","plain_text":"x := 1"}],"language":"go"}}`,
			want: &models.Node{ID: "c", Kind: models.KindCode,
				Payload: models.Code{Runs: []models.InlineRun{{Kind: models.RunText, Text: "x := 1"}}, Language: "go"}},
		},
		{
			name: "callout with emoji",
			src:  `{"id":"k","type":"callout","callout":{"rich_text":[],"icon":{"type":"emoji","emoji":"💡"}}}`,
			want: &models.Node{ID: "k", Kind: models.KindCallout, Payload: models.Callout{Icon: "💡"}},
		},
		{
			name: "hosted image",
			src: `{"id":"i","type":"image","image":{"type":"file","file":{"url":"https://s3/x.png","expiry_time":"2024-01-01T00:00:00.000Z"},
				"caption":[{"type":"text","plain_text":"cap"}]}}`,
			want: &models.Node{ID: "i", Kind: models.KindImage, Payload: models.Media{
				Location: models.Location{Hosting: models.HostingFile, URL: "https://s3/x.png", ExpiryTime: "2024-01-01T00:00:00.000Z"},
				Caption:  []models.InlineRun{{Kind: models.RunText, Text: "cap"}},
			}},
		},
		{
			name: "external pdf with name",
			src:  `{"id":"f","type":"pdf","pdf":{"type":"external","external":{"url":"https://ex.com/a.pdf"},"name":"Spec"}}`,
			want: &models.Node{ID: "f", Kind: models.KindPDF, Payload: models.Media{
				Location: models.Location{Hosting: models.HostingExternal, URL: "https://ex.com/a.pdf"},
				Name:     "Spec",
			}},
		},
		{
			name: "bookmark",
			src:  `{"id":"b","type":"bookmark","bookmark":{"url":"https://go.dev","caption":[]}}`,
			want: &models.Node{ID: "b", Kind: models.KindBookmark, Payload: models.Link{URL: "https://go.dev"}},
		},
		{
			name: "child page",
			src:  `{"id":"cp","type":"child_page","has_children":true,"child_page":{"title":"Sub"}}`,
			want: &models.Node{ID: "cp", Kind: models.KindChildPage, HasChildren: true, Payload: models.ChildRef{Title: "Sub"}},
		},
		{
			name: "synced mirror",
			src:  `{"id":"s","type":"synced_block","synced_block":{"synced_from":{"type":"block_id","block_id":"origin"}}}`,
			want: &models.Node{ID: "s", Kind: models.KindSyncedBlock, Payload: models.Synced{SyncedFrom: "origin"}},
		},
		{
			name: "synced origin",
			src:  `{"id":"s","type":"synced_block","has_children":true,"synced_block":{"synced_from":null}}`,
			want: &models.Node{ID: "s", Kind: models.KindSyncedBlock, HasChildren: true, Payload: models.Synced{}},
		},
		{
			name: "link to database",
			src:  `{"id":"l","type":"link_to_page","link_to_page":{"type":"database_id","database_id":"db-7"}}`,
			want: &models.Node{ID: "l", Kind: models.KindLinkToPage, Payload: models.PageLink{TargetKind: "database_id", TargetID: "db-7"}},
		},
		{
			name: "table",
			src:  `{"id":"tb","type":"table","has_children":true,"table":{"table_width":3,"has_column_header":true}}`,
			want: &models.Node{ID: "tb", Kind: models.KindTable, HasChildren: true, Payload: models.Table{Width: 3, HasColumnHeader: true}},
		},
		{
			name: "unsupported kind keeps its tag",
			src:  `{"id":"u","type":"ai_block","ai_block":{}}`,
			want: &models.Node{ID: "u", Kind: models.Kind("ai_block")},
		},
		{
			name: "missing body degrades",
			src:  `{"id":"p","type":"paragraph"}`,
			want: &models.Node{ID: "p", Kind: models.KindParagraph, Payload: models.TextBlock{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeBlock(t, tt.src))
		})
	}
}

func TestRichTextRuns(t *testing.T) {
	n := decodeBlock(t, `{"id":"p","type":"paragraph","paragraph":{"rich_text":[
		{"type":"text","plain_text":"go","text":{"content":"go","link":{"url":"https://go.dev"}},
		 "annotations":{"bold":true,"italic":false,"strikethrough":false,"underline":true,"code":false}},
		{"type":"mention","plain_text":"Roadmap","mention":{"type":"page","page":{"id":"page-1"}}},
		{"type":"mention","plain_text":"Tasks","mention":{"type":"database","database":{"id":"db-1"}}},
		{"type":"mention","plain_text":"@Ada","mention":{"type":"user","user":{"id":"u1","name":"Ada"}}},
		{"type":"mention","plain_text":"2024-01-01 → 2024-01-05","mention":{"type":"date","date":{"start":"2024-01-01","end":"2024-01-05"}}},
		{"type":"mention","plain_text":"today","mention":{"type":"date","date":{"start":"2024-02-02","end":null}}},
		{"type":"equation","plain_text":"E=mc^2","equation":{"expression":"E=mc^2"}},
		{"type":"mention","plain_text":"example.com","href":"https://example.com","mention":{"type":"link_preview","link_preview":{"url":"https://example.com"}}}
	]}}`)

	runs := n.Payload.(models.TextBlock).Runs
	require.Len(t, runs, 8)

	assert.Equal(t, models.InlineRun{Kind: models.RunText, Text: "go", Link: "https://go.dev",
		Style: models.Style{Bold: true, Underline: true}}, runs[0])
	assert.Equal(t, models.InlineRun{Kind: models.RunPageMention, Text: "Roadmap", Target: "page-1"}, runs[1])
	assert.Equal(t, models.InlineRun{Kind: models.RunDatabaseMention, Text: "Tasks", Target: "db-1"}, runs[2])
	assert.Equal(t, models.InlineRun{Kind: models.RunUserMention, Text: "Ada"}, runs[3])
	assert.Equal(t, &models.DateRange{Start: "2024-01-01", End: "2024-01-05"}, runs[4].Date)
	assert.Equal(t, &models.DateRange{Start: "2024-02-02"}, runs[5].Date)
	assert.Equal(t, models.InlineRun{Kind: models.RunEquation, Text: "E=mc^2", Expression: "E=mc^2"}, runs[6])
	assert.Equal(t, models.InlineRun{Kind: models.RunText, Text: "example.com", Link: "https://example.com"}, runs[7])
}
