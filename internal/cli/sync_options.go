package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/attrpipe/internal/config"
	"github.com/mrlokans/attrpipe/internal/entities"
	"github.com/mrlokans/attrpipe/internal/entrypoint"
)

// SyncOptionsCommand pulls authoritative option sets from the external
// catalog for pull-mode enum attributes of an entity type.
type SyncOptionsCommand struct {
	EntityTypeID uint
	DatabasePath string
	CatalogURL   string
	CatalogToken string
}

func NewSyncOptionsCommand() *SyncOptionsCommand {
	return &SyncOptionsCommand{}
}

func (cmd *SyncOptionsCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sync-options", flag.ExitOnError)

	var entityTypeID uint64
	fs.Uint64Var(&entityTypeID, "type", 0, "Entity type ID to sync (required)")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: DATABASE_PATH)")
	fs.StringVar(&cmd.CatalogURL, "catalog-url", "", "External catalog base URL (default: CATALOG_BASE_URL)")
	fs.StringVar(&cmd.CatalogToken, "catalog-token", "", "External catalog API token (default: CATALOG_TOKEN)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sync-options -type <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Replace local option sets of pull-mode enum attributes with the\n")
		fmt.Fprintf(os.Stderr, "authoritative sets from the external catalog.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if entityTypeID == 0 {
		return fmt.Errorf("required flag -type not provided")
	}
	cmd.EntityTypeID = uint(entityTypeID)

	return nil
}

func (cmd *SyncOptionsCommand) Run() error {
	cfg := config.NewConfig()
	if cmd.DatabasePath != "" {
		cfg.Database.Path = cmd.DatabasePath
	}
	if cmd.CatalogURL != "" {
		cfg.Catalog.BaseURL = cmd.CatalogURL
	}
	if cmd.CatalogToken != "" {
		cfg.Catalog.Token = cmd.CatalogToken
	}

	if cfg.Catalog.BaseURL == "" {
		return fmt.Errorf("no catalog URL configured (set CATALOG_BASE_URL or use -catalog-url)")
	}

	app, err := entrypoint.NewApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Close()

	run, err := app.Syncer.SyncOptions(context.Background(), cmd.EntityTypeID, entities.TriggeredByManual, 0)
	if err != nil {
		return fmt.Errorf("option sync failed: %w", err)
	}

	fmt.Printf("Sync run %s finished: %s\n", run.RunID, run.Status)
	fmt.Printf("Updated: %d  Failed: %d  Skipped: %d\n", run.Updated, run.Failed, run.Skipped)
	if run.ErrorSummary != "" {
		fmt.Printf("Errors:\n%s\n", run.ErrorSummary)
	}
	return nil
}
