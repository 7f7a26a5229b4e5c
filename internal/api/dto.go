package api

import (
	"errors"
	"path"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notionvault/internal/importer"
	"github.com/starford/notionvault/internal/index"
)

const maxRequestBytes = 1 << 20

// Notion ids are UUIDs, with or without dashes.
var notionIDRule = validation.Match(regexp.MustCompile(`^[0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{12}$`)).
	Error("must be a Notion id")

// ImportRequest is the body of POST /imports.
type ImportRequest struct {
	PageIDs     []string `json:"page_ids" example:"3f2c9c1e-0d4b-4c8e-9f1a-2b3c4d5e6f70"`
	DatabaseIDs []string `json:"database_ids"`
	Folder      string   `json:"folder,omitempty" example:"Notion Import"`
	Force       bool     `json:"force,omitempty"`
}

// Validate checks that something is selected and that every id and the
// folder are well formed.
func (r ImportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PageIDs,
			validation.Required.When(len(r.DatabaseIDs) == 0).Error("page_ids or database_ids is required"),
			validation.Each(validation.Required, notionIDRule)),
		validation.Field(&r.DatabaseIDs, validation.Each(validation.Required, notionIDRule)),
		validation.Field(&r.Folder, validation.Length(0, 255), validation.By(vaultFolder)),
	)
}

func (r ImportRequest) selection(runID string) importer.Selection {
	return importer.Selection{
		RunID:       runID,
		PageIDs:     r.PageIDs,
		DatabaseIDs: r.DatabaseIDs,
		Folder:      r.Folder,
		Force:       r.Force,
	}
}

// vaultFolder accepts a relative folder that stays inside the vault.
func vaultFolder(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\\", "/")
	if path.IsAbs(s) {
		return errors.New("must be relative to the vault")
	}
	for _, seg := range strings.Split(s, "/") {
		if seg == ".." {
			return errors.New("must not leave the vault")
		}
	}
	return nil
}

// PreviewRequest is the body of POST /preview.
type PreviewRequest struct {
	PageID string `json:"page_id" example:"3f2c9c1e-0d4b-4c8e-9f1a-2b3c4d5e6f70"`
}

// Validate checks the page id.
func (r PreviewRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PageID, validation.Required, notionIDRule),
	)
}

// ImportAccepted is returned when an import has been queued.
type ImportAccepted struct {
	RunID  string `json:"run_id,omitempty"`
	Status string `json:"status" example:"accepted" validate:"required"`
}

// ImportListResponse wraps paginated ledger listings.
type ImportListResponse struct {
	Imports []index.PageRow `json:"imports" validate:"required"`
	Total   int             `json:"total" example:"42" validate:"required"`
}

// ImportSearchResponse wraps ledger search hits.
type ImportSearchResponse struct {
	Results []index.PageRow `json:"results" validate:"required"`
}

// RunListResponse wraps recent runs.
type RunListResponse struct {
	Runs []index.RunRow `json:"runs" validate:"required"`
}
