package models

import "time"

// ParentKind tells what a page hangs off.
type ParentKind string

const (
	ParentWorkspace ParentKind = "workspace"
	ParentPage      ParentKind = "page"
	ParentDatabase  ParentKind = "database"
)

// PageMeta describes a Notion page independently of its content.
type PageMeta struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	LastEditedTime string     `json:"last_edited_time"`
	Icon           string     `json:"icon,omitempty"`
	ParentKind     ParentKind `json:"parent_kind"`
	ParentID       string     `json:"parent_id,omitempty"`
}

// DatabaseMeta describes a Notion database.
type DatabaseMeta struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// NoteMetadata is a lightweight description of a vault note file.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
