package render

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/notionvault/internal/models"
)

// pageFrontmatter is the YAML header written above an imported page.
// Field order is the emitted key order.
type pageFrontmatter struct {
	Title          string `yaml:"title"`
	NotionID       string `yaml:"notion_id"`
	NotionURL      string `yaml:"notion_url,omitempty"`
	NotionLastSync string `yaml:"notion_last_sync"`
	NotionEdited   string `yaml:"notion_last_edited,omitempty"`
	Icon           string `yaml:"icon,omitempty"`
}

// Frontmatter returns the "---" delimited YAML header for a page followed by
// a blank line. It is kept apart from Render because it carries the sync
// timestamp.
func Frontmatter(page models.PageMeta, syncedAt time.Time) (string, error) {
	out, err := yaml.Marshal(pageFrontmatter{
		Title:          page.Title,
		NotionID:       page.ID,
		NotionURL:      page.URL,
		NotionLastSync: syncedAt.UTC().Format(time.RFC3339),
		NotionEdited:   page.LastEditedTime,
		Icon:           page.Icon,
	})
	if err != nil {
		return "", fmt.Errorf("render: frontmatter: %w", err)
	}
	return "---\n" + string(out) + "---\n\n", nil
}
