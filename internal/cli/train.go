package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"datahound/internal/logging"
	"datahound/internal/report"
	"datahound/internal/store"
	"datahound/internal/train"
	"datahound/internal/workflow"
)

var (
	trainDataset    string
	trainProjectID  string
	trainPriority   string
	trainComputeURL string
	trainTimeout    time.Duration
)

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train <task>",
	Short: "Train a model on a discovered or named dataset",
	Long: `Train resolves a dataset and submits it to the training service:
- An explicit --dataset wins, as a ref (owner/name) or a full URL
- Otherwise --project supplies the selected source plus its backups
- Otherwise the task keywords fall back to the curated catalog

Datasets are tried in order; structural failures (no class folders,
corrupt archive) move straight to the next one, transient failures
retry first. The architecture comes from the LLM judge when one is
configured, or from keyword rules when not.

Example:
  datahound train "classify bird species" --dataset gpiosenka/100-bird-species
  datahound train "sort product photos" --project 7c9e6679 --priority speed
  datahound train "detect surface defects"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	// Dataset resolution flags
	trainCmd.Flags().StringVar(&trainDataset, "dataset", "", "dataset ref (owner/name) or dataset URL")
	trainCmd.Flags().StringVar(&trainProjectID, "project", "", "train on a discovery project's selected source")

	// Training flags
	trainCmd.Flags().StringVar(&trainPriority, "priority", "balanced", "optimize for speed, accuracy, or balanced")
	trainCmd.Flags().StringVar(&trainComputeURL, "compute-url", "", "training service URL (overrides config)")
	trainCmd.Flags().DurationVar(&trainTimeout, "timeout", time.Hour, "overall training timeout")
}

func runTrain(cmd *cobra.Command, args []string) error {
	task := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if trainComputeURL != "" {
		cfg.Training.ComputeURL = trainComputeURL
	}
	if cfg.Training.ComputeURL == "" {
		return fmt.Errorf("no training service configured: set --compute-url or training.compute_url in the config file")
	}

	judge, err := buildJudge(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		fmt.Fprintf(os.Stderr, "Warning: falling back to rule-based architecture selection\n")
		judge = nil
	}

	logger := logging.New(logLevel())
	st, err := store.NewDiskStore(cfg.Store.Dir)
	if err != nil {
		return fmt.Errorf("open project store: %w", err)
	}
	compute, err := train.NewComputeClient(cfg.Training, cfg.HTTP)
	if err != nil {
		return err
	}
	flow := workflow.New(nil, st, judge, compute, cfg, logger)

	if verbose {
		fmt.Fprintf(os.Stderr, "Task:     %s\n", task)
		fmt.Fprintf(os.Stderr, "Priority: %s\n", trainPriority)
		fmt.Fprintf(os.Stderr, "Compute:  %s\n", cfg.Training.ComputeURL)
		fmt.Fprintln(os.Stderr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), trainTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "⚙️  Resolving dataset and training...\n")
	outcome, err := flow.RunTraining(ctx, workflow.TrainingRequest{
		Task:       task,
		Priority:   trainPriority,
		DatasetRef: trainDataset,
		ProjectID:  trainProjectID,
	})
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	res := outcome.Result
	fmt.Fprintf(os.Stderr, "✓ Trained %s on %s\n", res.Plan.Architecture, res.DatasetRef)
	if res.Artifact != nil {
		fmt.Fprintf(os.Stderr, "✓ Accuracy %.1f%% across %d classes\n", res.Artifact.Accuracy*100, res.Artifact.NumClasses)
	}
	fmt.Fprintf(os.Stderr, "✓ Model file: %s\n", res.ModelFile)
	if outcome.ReportPath != "" {
		fmt.Fprintf(os.Stderr, "✓ Result saved: %s\n", outcome.ReportPath)
	}
	fmt.Fprintln(os.Stderr)

	fmt.Println(report.TrainingSummary(res))
	return nil
}
