package cli

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mrlokans/attrpipe/internal/config"
	"github.com/mrlokans/attrpipe/internal/database"
	"github.com/mrlokans/attrpipe/internal/database/runs"
	"github.com/mrlokans/attrpipe/internal/entities"
)

// RunStatusCommand looks up a run in the ledger by its public run ID and
// prints its status and counters.
type RunStatusCommand struct {
	RunID        string
	DatabasePath string
}

func NewRunStatusCommand() *RunStatusCommand {
	return &RunStatusCommand{}
}

func (cmd *RunStatusCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("run-status", flag.ExitOnError)

	fs.StringVar(&cmd.RunID, "run", "", "Run ID to look up (required)")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: DATABASE_PATH)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s run-status -run <run-id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Print the ledger record of a pipeline or sync run.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.RunID == "" {
		return fmt.Errorf("required flag -run not provided")
	}

	return nil
}

func (cmd *RunStatusCommand) Run() error {
	cfg := config.NewConfig()
	if cmd.DatabasePath != "" {
		cfg.Database.Path = cmd.DatabasePath
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	ledger := runs.NewRepository(db.DB)

	if run, err := ledger.GetPipelineRun(cmd.RunID); err == nil {
		printPipelineRun(run)
		return nil
	}

	if run, err := ledger.GetSyncRun(cmd.RunID); err == nil {
		printSyncRun(run)
		return nil
	}

	return fmt.Errorf("no run found with ID %s", cmd.RunID)
}

func printPipelineRun(run *entities.PipelineRun) {
	fmt.Printf("Pipeline run %s\n", run.RunID)
	fmt.Printf("  Pipeline:     %d (version %d)\n", run.PipelineID, run.PipelineVersion)
	fmt.Printf("  Status:       %s\n", run.Status)
	fmt.Printf("  Triggered by: %s\n", run.TriggeredBy)
	fmt.Printf("  Processed:    %d\n", run.Processed)
	fmt.Printf("  Failed:       %d\n", run.Failed)
	fmt.Printf("  Skipped:      %d\n", run.Skipped)
	if run.TokenUsage > 0 {
		fmt.Printf("  Token usage:  %d\n", run.TokenUsage)
	}
	printTimes(run.StartedAt, run.CompletedAt)
	if run.ErrorSummary != "" {
		fmt.Printf("  Errors:\n%s\n", run.ErrorSummary)
	}
}

func printSyncRun(run *entities.SyncRun) {
	fmt.Printf("Sync run %s (%s)\n", run.RunID, run.Kind)
	fmt.Printf("  Entity type:  %d\n", run.EntityTypeID)
	fmt.Printf("  Status:       %s\n", run.Status)
	fmt.Printf("  Triggered by: %s\n", run.TriggeredBy)
	fmt.Printf("  Created:      %d\n", run.Created)
	fmt.Printf("  Updated:      %d\n", run.Updated)
	fmt.Printf("  Failed:       %d\n", run.Failed)
	fmt.Printf("  Skipped:      %d\n", run.Skipped)
	printTimes(run.StartedAt, run.CompletedAt)
	if run.ErrorSummary != "" {
		fmt.Printf("  Errors:\n%s\n", run.ErrorSummary)
	}
}

func printTimes(started time.Time, completed *time.Time) {
	fmt.Printf("  Started:      %s\n", started.Format(time.RFC3339))
	if completed != nil {
		fmt.Printf("  Completed:    %s (took %s)\n", completed.Format(time.RFC3339), completed.Sub(started).Round(time.Millisecond))
	}
}
