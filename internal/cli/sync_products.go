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

// SyncProductsCommand pushes approved attribute values to the external
// catalog for an entity type.
type SyncProductsCommand struct {
	EntityTypeID uint
	EntityIDs    []uint
	DatabasePath string
	CatalogURL   string
	CatalogToken string
}

func NewSyncProductsCommand() *SyncProductsCommand {
	return &SyncProductsCommand{}
}

func (cmd *SyncProductsCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sync-products", flag.ExitOnError)

	var entityTypeID uint64
	var entityList string
	fs.Uint64Var(&entityTypeID, "type", 0, "Entity type ID to sync (required)")
	fs.StringVar(&entityList, "entities", "", "Comma-separated entity IDs (default: all entities of the type)")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: DATABASE_PATH)")
	fs.StringVar(&cmd.CatalogURL, "catalog-url", "", "External catalog base URL (default: CATALOG_BASE_URL)")
	fs.StringVar(&cmd.CatalogToken, "catalog-token", "", "External catalog API token (default: CATALOG_TOKEN)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sync-products -type <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Push approved attribute values of an entity type to the external catalog.\n")
		fmt.Fprintf(os.Stderr, "Only values that differ from the last acknowledged live value are sent.\n\n")
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

	if entityList != "" {
		ids, err := parseIDList(entityList)
		if err != nil {
			return fmt.Errorf("invalid -entities value: %w", err)
		}
		cmd.EntityIDs = ids
	}

	return nil
}

func (cmd *SyncProductsCommand) Run() error {
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

	run, err := app.Syncer.SyncProducts(context.Background(), cmd.EntityTypeID, cmd.EntityIDs, entities.TriggeredByManual, 0)
	if err != nil {
		return fmt.Errorf("product sync failed: %w", err)
	}

	fmt.Printf("Sync run %s finished: %s\n", run.RunID, run.Status)
	fmt.Printf("Created: %d  Updated: %d  Failed: %d  Skipped: %d\n", run.Created, run.Updated, run.Failed, run.Skipped)
	if run.ErrorSummary != "" {
		fmt.Printf("Errors:\n%s\n", run.ErrorSummary)
	}
	return nil
}
