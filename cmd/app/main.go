package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notionvault/internal"
	"github.com/starford/notionvault/internal/importer"
	pkgconfig "github.com/starford/notionvault/pkg/config"
)

var version = "dev"

// options loads the config file, falling back to defaults when it does not
// exist. One-shot commands log to stderr so stdout stays readable.
func options(cmd *cli.Command, oneShot bool) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if token := cmd.String("notion-token"); token != "" {
		cfg.Notion.Token = token
	}
	if vault := cmd.String("vault"); vault != "" {
		cfg.Vault.Path = vault
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}
	if oneShot {
		opts = append(opts, internal.WithLogOutput(os.Stderr))
	}
	if !found && cmd.IsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}
	return opts, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, false)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func importCmd(ctx context.Context, cmd *cli.Command) error {
	sel := importer.Selection{
		PageIDs:     cmd.StringSlice("page"),
		DatabaseIDs: cmd.StringSlice("database"),
		Folder:      cmd.String("folder"),
		Force:       cmd.Bool("force"),
	}
	sel.PageIDs = append(sel.PageIDs, cmd.Args().Slice()...)
	if len(sel.PageIDs)+len(sel.DatabaseIDs) == 0 {
		return errors.New("nothing to import: pass --page or --database")
	}

	opts, err := options(cmd, true)
	if err != nil {
		return err
	}
	rep, err := internal.RunImport(ctx, sel, opts...)
	if rep != nil {
		printReport(rep)
	}
	if err != nil {
		return err
	}
	return failedErr(rep)
}

func refresh(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, true)
	if err != nil {
		return err
	}
	rep, err := internal.RunRefresh(ctx, opts...)
	if rep != nil {
		printReport(rep)
	}
	if err != nil {
		return err
	}
	return failedErr(rep)
}

func preview(ctx context.Context, cmd *cli.Command) error {
	pageID := cmd.Args().First()
	if pageID == "" {
		return errors.New("usage: notionvault preview <page-id>")
	}
	opts, err := options(cmd, true)
	if err != nil {
		return err
	}
	pv, err := internal.RunPreview(ctx, pageID, opts...)
	if err != nil {
		return err
	}
	color.New(color.FgCyan, color.Bold).Fprintf(os.Stderr, "→ %s (%d attachments)\n", pv.Path, len(pv.Assets))
	fmt.Println(pv.Markdown)
	return nil
}

func search(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, true)
	if err != nil {
		return err
	}
	res, err := internal.RunSearch(ctx, cmd.Args().First(), opts...)
	if err != nil {
		return err
	}
	id := color.New(color.Faint).SprintFunc()
	for _, p := range res.Pages {
		fmt.Printf("%s  %s  %s\n", color.BlueString("page    "), id(p.ID), p.Title)
	}
	for _, d := range res.Databases {
		fmt.Printf("%s  %s  %s\n", color.MagentaString("database"), id(d.ID), d.Title)
	}
	if len(res.Pages)+len(res.Databases) == 0 {
		color.Yellow("nothing shared with this integration matches")
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, true)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func check(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, true)
	if err != nil {
		return err
	}
	name, err := internal.RunCheck(ctx, opts...)
	if err != nil {
		color.Red("✗ connection failed: %v", err)
		return err
	}
	color.Green("✓ connected to Notion as %s", name)
	return nil
}

func printReport(rep *importer.Report) {
	for _, it := range rep.Items {
		switch it.Status {
		case importer.StatusImported:
			fmt.Printf("%s %s\n", color.GreenString("✓"), it.Path)
		case importer.StatusSkipped:
			fmt.Printf("%s %s %s\n", color.HiBlackString("="), it.Path, color.HiBlackString("(unchanged)"))
		default:
			label := it.Title
			if label == "" {
				label = it.ID
			}
			fmt.Printf("%s %s %s: %s\n", color.RedString("✗"), it.Kind, label, it.Error)
		}
	}

	summary := color.New(color.Bold)
	summary.Printf("%d imported, %d skipped, ", rep.Imported, rep.Skipped)
	if rep.Failed > 0 {
		color.New(color.Bold, color.FgRed).Printf("%d failed", rep.Failed)
	} else {
		summary.Print("0 failed")
	}
	if rep.Relinked > 0 {
		summary.Printf(", %d notes relinked", rep.Relinked)
	}
	fmt.Println()
}

func failedErr(rep *importer.Report) error {
	if rep.Failed > 0 {
		return fmt.Errorf("%d item(s) failed", rep.Failed)
	}
	return nil
}

func main() {
	importFlags := []cli.Flag{
		&cli.StringSliceFlag{Name: "page", Aliases: []string{"p"}, Usage: "Notion page id (repeatable)"},
		&cli.StringSliceFlag{Name: "database", Aliases: []string{"d"}, Usage: "Notion database id (repeatable)"},
		&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Usage: "Vault folder to import into (defaults to import.folder)"},
		&cli.BoolFlag{Name: "force", Usage: "Re-import pages that did not change"},
	}

	cmd := &cli.Command{
		Name:    "notionvault",
		Usage:   "Import Notion pages and databases into a Markdown vault",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "notion-token",
				Usage:   "Notion integration token (overrides notion.token)",
				Sources: cli.EnvVars("NOTION_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "vault",
				Usage:   "Vault directory (overrides vault.path)",
				Sources: cli.EnvVars("NOTIONVAULT_VAULT"),
			},
		},
		Commands: []*cli.Command{
			{Name: "serve", Usage: "Run the HTTP API, event stream and vault watcher", Action: serve},
			{Name: "import", Usage: "Import pages and databases", ArgsUsage: "[page-id...]", Flags: importFlags, Action: importCmd},
			{Name: "refresh", Usage: "Re-import every imported page that changed in Notion", Action: refresh},
			{Name: "preview", Usage: "Render a page to stdout without writing it", ArgsUsage: "<page-id>", Action: preview},
			{Name: "search", Usage: "List pages and databases shared with the integration", ArgsUsage: "[query]", Action: search},
			{Name: "mcp", Usage: "Serve MCP tools on stdio", Action: mcp},
			{Name: "check", Usage: "Verify the Notion integration token", Action: check},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
