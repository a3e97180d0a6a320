package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"datahound/internal/cache"
	"datahound/internal/llm"
	"datahound/internal/logging"
	"datahound/internal/model"
	"datahound/internal/pipeline"
	"datahound/internal/report"
	"datahound/internal/scrape"
	"datahound/internal/store"
)

var (
	discoverProject   string
	discoverTimeout   time.Duration
	discoverThreshold int
	discoverTarget    int
	discoverNoCache   bool
	discoverJSON      string
	discoverMD        string
	discoverDocx      string
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover <prompt>",
	Short: "Find and validate datasets for an ML task",
	Long: `Discover runs the full source-discovery pipeline for one prompt:
- Parse the prompt into a target, required features, and search queries
- Fan the queries out across the configured providers in parallel
- Score every candidate's relevance with the LLM judge
- Crawl the best candidates and verify their actual content
- Select a primary source and keep runners-up as backups

Example:
  datahound discover "identify bird species from photos"
  datahound discover "predict housing prices" --threshold 80 --json report.json
  datahound discover "classify surface defects" --project defects-v2 --md -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	// Run flags
	discoverCmd.Flags().StringVar(&discoverProject, "project", "", "project ID (default: a fresh UUID)")
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 10*time.Minute, "overall discovery timeout")
	discoverCmd.Flags().IntVar(&discoverThreshold, "threshold", 0, "relevance score a candidate must beat (default from config)")
	discoverCmd.Flags().IntVar(&discoverTarget, "target", 0, "stop scoring after this many validated candidates (default from config)")
	discoverCmd.Flags().BoolVar(&discoverNoCache, "no-cache", false, "disable the judgment cache (force fresh scoring)")

	// Output flags
	discoverCmd.Flags().StringVar(&discoverJSON, "json", "", "write the project as JSON to this path")
	discoverCmd.Flags().StringVar(&discoverMD, "md", "", "write a Markdown report to this path (- for stdout)")
	discoverCmd.Flags().StringVar(&discoverDocx, "docx", "", "write a Word report to this path")
}

// buildPipeline assembles the store, caches, scraper, and providers
// behind one discovery pipeline. Shared by discover and serve.
func buildPipeline(cfg *model.Config, judge llm.Judge, logger *slog.Logger) (*pipeline.Pipeline, store.ProjectStore, error) {
	st, err := store.NewDiskStore(cfg.Store.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open project store: %w", err)
	}
	var judgments *cache.JudgmentCache
	if cfg.Cache.Enabled {
		layered := cache.NewLayeredCache(cfg.Cache.TTL, cfg.Cache.Dir, cfg.Cache.TTL)
		judgments = cache.NewJudgmentCache(layered, cfg.Cache.TTL)
	}
	scraper := scrape.NewScraper(cfg.HTTP)
	return pipeline.New(st, judge, judgments, scraper, cfg, logger), st, nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if discoverThreshold > 0 {
		cfg.Discovery.RelevanceThreshold = discoverThreshold
	}
	if discoverTarget > 0 {
		cfg.Discovery.QualityTarget = discoverTarget
	}
	if discoverNoCache {
		cfg.Cache.Enabled = false
	}

	judge, err := buildJudge(cfg)
	if err != nil {
		return err
	}
	if judge == nil {
		return fmt.Errorf("discovery needs an LLM judge: set llm.provider in the config file")
	}

	p, _, err := buildPipeline(cfg, judge, logging.New(logLevel()))
	if err != nil {
		return err
	}

	projectID := discoverProject
	if projectID == "" {
		projectID = uuid.NewString()
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Prompt:    %s\n", prompt)
		fmt.Fprintf(os.Stderr, "Project:   %s\n", projectID)
		fmt.Fprintf(os.Stderr, "Judge:     %s\n", judge.Name())
		fmt.Fprintf(os.Stderr, "Threshold: %d\n", cfg.Discovery.RelevanceThreshold)
		fmt.Fprintln(os.Stderr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), discoverTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "⚙️  Discovering sources...\n")
	project, err := p.Run(ctx, projectID, prompt)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	stats := project.Stats(cfg.Discovery.RelevanceThreshold)
	fmt.Fprintf(os.Stderr, "✓ Scored %d candidates (%d high quality)\n", stats.Total, stats.HighQuality)
	if project.Selected != nil {
		fmt.Fprintf(os.Stderr, "✓ Selected %s (relevance %d)\n", project.Selected.Identifier, project.Selected.RelevanceScore)
	}
	if stats.Backup > 0 {
		fmt.Fprintf(os.Stderr, "✓ Kept %d backup source(s)\n", stats.Backup)
	}
	fmt.Fprintf(os.Stderr, "\nProject ID: %s\n", project.ID)

	return renderProject(project, cfg, discoverJSON, discoverMD, discoverDocx)
}

// renderProject writes the requested report formats. "-" for the
// Markdown path prints to stdout.
func renderProject(project *model.Project, cfg *model.Config, jsonPath, mdPath, docxPath string) error {
	if jsonPath != "" {
		f, err := os.Create(jsonPath)
		if err != nil {
			return fmt.Errorf("create JSON report: %w", err)
		}
		defer f.Close()
		if err := report.WriteJSON(f, project); err != nil {
			return fmt.Errorf("write JSON report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ JSON report: %s\n", jsonPath)
	}
	if mdPath != "" {
		md := report.Markdown(project, cfg.Discovery.RelevanceThreshold)
		if mdPath == "-" {
			fmt.Println(md)
		} else {
			if err := os.WriteFile(mdPath, []byte(md), 0644); err != nil {
				return fmt.Errorf("write Markdown report: %w", err)
			}
			fmt.Fprintf(os.Stderr, "✓ Markdown report: %s\n", mdPath)
		}
	}
	if docxPath != "" {
		if err := report.WriteDocx(docxPath, project, cfg.Discovery.RelevanceThreshold); err != nil {
			return fmt.Errorf("write Word report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Word report: %s\n", docxPath)
	}
	return nil
}
