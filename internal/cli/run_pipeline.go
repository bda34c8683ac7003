package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mrlokans/attrpipe/internal/config"
	"github.com/mrlokans/attrpipe/internal/engine"
	"github.com/mrlokans/attrpipe/internal/entities"
	"github.com/mrlokans/attrpipe/internal/entrypoint"
)

// RunPipelineCommand executes a pipeline from the command line, either for
// the full entity population or for an explicit entity list.
type RunPipelineCommand struct {
	PipelineID   uint
	EntityIDs    []uint
	DatabasePath string
	BatchSize    int
	MaxEntities  int
	Verbose      bool
}

func NewRunPipelineCommand() *RunPipelineCommand {
	return &RunPipelineCommand{}
}

func (cmd *RunPipelineCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("run-pipeline", flag.ExitOnError)

	var pipelineID uint64
	var entityList string
	fs.Uint64Var(&pipelineID, "pipeline", 0, "Pipeline ID to execute (required)")
	fs.StringVar(&entityList, "entities", "", "Comma-separated entity IDs (default: all entities of the pipeline's type)")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: DATABASE_PATH)")
	fs.IntVar(&cmd.BatchSize, "batch-size", 0, "Entities per batch (default: 200)")
	fs.IntVar(&cmd.MaxEntities, "max-entities", 0, "Cap on the number of entities processed (0 = no cap)")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Enable verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s run-pipeline -pipeline <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Execute a pipeline and write computed values into the current slot.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Recompute every entity of the pipeline's type:\n")
		fmt.Fprintf(os.Stderr, "  %s run-pipeline -pipeline 3\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Recompute a handful of entities:\n")
		fmt.Fprintf(os.Stderr, "  %s run-pipeline -pipeline 3 -entities 10,11,12\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if pipelineID == 0 {
		return fmt.Errorf("required flag -pipeline not provided")
	}
	cmd.PipelineID = uint(pipelineID)

	if entityList != "" {
		ids, err := parseIDList(entityList)
		if err != nil {
			return fmt.Errorf("invalid -entities value: %w", err)
		}
		cmd.EntityIDs = ids
	}

	return nil
}

func (cmd *RunPipelineCommand) Run() error {
	cfg := config.NewConfig()
	if cmd.DatabasePath != "" {
		cfg.Database.Path = cmd.DatabasePath
	}

	app, err := entrypoint.NewApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Close()

	run, err := app.Engine.Execute(context.Background(), engine.ExecuteRequest{
		PipelineID:  cmd.PipelineID,
		EntityIDs:   cmd.EntityIDs,
		TriggeredBy: entities.TriggeredByManual,
		BatchSize:   cmd.BatchSize,
		MaxEntities: cmd.MaxEntities,
	})
	if err != nil {
		return fmt.Errorf("pipeline execution failed: %w", err)
	}

	fmt.Printf("Run %s finished: %s\n", run.RunID, run.Status)
	fmt.Printf("Processed: %d  Failed: %d  Skipped: %d\n", run.Processed, run.Failed, run.Skipped)
	if run.TokenUsage > 0 {
		fmt.Printf("Token usage: %d\n", run.TokenUsage)
	}
	if run.ErrorSummary != "" {
		fmt.Printf("Errors:\n%s\n", run.ErrorSummary)
	}
	return nil
}

func parseIDList(raw string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("%q is not a valid ID", part)
		}
		ids = append(ids, uint(id))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty ID list")
	}
	return ids, nil
}
