// Package models defines the domain types shared by the Notion transport,
// the materializer, the renderer and the vault.
package models

// Kind tags a block variant. Values match the Notion block "type" strings;
// any value not listed below is carried verbatim as an unrecognized kind.
type Kind string

const (
	KindParagraph        Kind = "paragraph"
	KindHeading1         Kind = "heading_1"
	KindHeading2         Kind = "heading_2"
	KindHeading3         Kind = "heading_3"
	KindBulletedListItem Kind = "bulleted_list_item"
	KindNumberedListItem Kind = "numbered_list_item"
	KindToDo             Kind = "to_do"
	KindToggle           Kind = "toggle"
	KindQuote            Kind = "quote"
	KindCode             Kind = "code"
	KindDivider          Kind = "divider"
	KindCallout          Kind = "callout"
	KindImage            Kind = "image"
	KindBookmark         Kind = "bookmark"
	KindLinkPreview      Kind = "link_preview"
	KindEquation         Kind = "equation"
	KindTable            Kind = "table"
	KindColumnList       Kind = "column_list"
	KindChildPage        Kind = "child_page"
	KindChildDatabase    Kind = "child_database"
	KindEmbed            Kind = "embed"
	KindVideo            Kind = "video"
	KindFile             Kind = "file"
	KindPDF              Kind = "pdf"
	KindAudio            Kind = "audio"
	KindSyncedBlock      Kind = "synced_block"
	KindTemplate         Kind = "template"
	KindLinkToPage       Kind = "link_to_page"
	KindTableOfContents  Kind = "table_of_contents"
	KindBreadcrumb       Kind = "breadcrumb"
)

// Node is one block of content. Children is populated by the materializer;
// HasChildren is the source's hint and is not consulted at render time.
type Node struct {
	ID          string
	Kind        Kind
	HasChildren bool
	Children    []*Node
	Payload     Payload
}

// Payload is the kind-specific data of a Node. The set of implementations is
// closed to this package.
type Payload interface {
	payload()
}

// TextBlock carries the runs of paragraph, heading, list item, toggle and
// quote blocks.
type TextBlock struct {
	Runs []InlineRun
}

// ToDo is a checkbox item.
type ToDo struct {
	Runs    []InlineRun
	Checked bool
}

// Code is a fenced code block.
type Code struct {
	Runs     []InlineRun
	Language string
}

// Callout is a highlighted note with an optional emoji icon.
type Callout struct {
	Runs []InlineRun
	Icon string
}

// Hosting tells where a file lives.
type Hosting string

const (
	HostingExternal Hosting = "external"
	HostingFile     Hosting = "file"
)

// Location points at a binary resource. Source-hosted URLs expire.
type Location struct {
	Hosting    Hosting
	URL        string
	ExpiryTime string
}

// Media covers image, video, file, pdf and audio blocks.
type Media struct {
	Location Location
	Caption  []InlineRun
	Name     string
}

// Link covers bookmark, link preview and embed blocks.
type Link struct {
	URL     string
	Caption []InlineRun
}

// Equation is a display-math block.
type Equation struct {
	Expression string
}

// ChildRef references a child page or child database by title.
type ChildRef struct {
	Title string
}

// Synced is a synced block. An empty SyncedFrom marks the origin; otherwise
// the block mirrors the block with that id.
type Synced struct {
	SyncedFrom string
}

// IsOrigin reports whether the block owns its content.
func (s Synced) IsOrigin() bool { return s.SyncedFrom == "" }

// PageLink is a link_to_page block.
type PageLink struct {
	TargetKind string // page_id, database_id or comment_id
	TargetID   string
}

// Table holds table geometry. Tables are not rendered yet.
type Table struct {
	Width           int
	HasColumnHeader bool
	HasRowHeader    bool
}

func (TextBlock) payload() {}
func (ToDo) payload()      {}
func (Code) payload()      {}
func (Callout) payload()   {}
func (Media) payload()     {}
func (Link) payload()      {}
func (Equation) payload()  {}
func (ChildRef) payload()  {}
func (Synced) payload()    {}
func (PageLink) payload()  {}
func (Table) payload()     {}

// ChildrenPage is one page of a paginated children listing.
type ChildrenPage struct {
	Nodes      []*Node
	NextCursor string
	HasMore    bool
}

// AssetReference points at an external binary discovered while rendering.
type AssetReference struct {
	SourceURL string `json:"source_url"`
	Filename  string `json:"filename"`
	NodeID    string `json:"node_id"`
}
