package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"datahound/internal/logging"
	"datahound/internal/model"
	"datahound/internal/report"
	"datahound/internal/worker"
)

var (
	batchConcurrency int
	batchOutputDir   string
	batchTimeout     time.Duration
	batchNoCache     bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Run discovery for multiple prompts in parallel",
	Long: `Batch reads prompts from a file (one per line, # starts a comment)
and runs the discovery pipeline for each one concurrently. Every
prompt becomes its own project; finished projects are written to the
output directory as JSON and Markdown.

Example:
  datahound batch prompts.txt
  datahound batch prompts.txt --concurrency 4 --output-dir ./runs`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Concurrency flags
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", runtime.NumCPU(), "number of concurrent discovery runs")
	batchCmd.Flags().StringVar(&batchOutputDir, "output-dir", "./datahound-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for the whole batch")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "disable the judgment cache (force fresh scoring)")
}

// batchResult pairs one prompt with its finished project or error.
type batchResult struct {
	prompt  string
	project *model.Project
	err     error
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	prompts, err := readPrompts(file)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts found in %s", file)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if batchNoCache {
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

	if err := os.MkdirAll(batchOutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Datahound Batch Discovery\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Prompts:      %d\n", len(prompts))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", batchConcurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", batchOutputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "⚙️  Running discovery with %d workers...\n", batchConcurrency)
	fmt.Fprintf(os.Stderr, "\n")

	pool := worker.NewPool[batchResult](ctx, batchConcurrency)
	pool.Start()
	for _, prompt := range prompts {
		prompt := prompt
		pool.Submit(func(ctx context.Context) batchResult {
			project, err := p.Run(ctx, uuid.NewString(), prompt)
			return batchResult{prompt: prompt, project: project, err: err}
		})
	}
	results := pool.Wait()

	succeeded := 0
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.prompt, r.err)
			continue
		}

		name := fmt.Sprintf("%s-%.8s", slugify(r.prompt), r.project.ID)
		md := report.Markdown(r.project, cfg.Discovery.RelevanceThreshold)
		if err := os.WriteFile(filepath.Join(batchOutputDir, name+".md"), []byte(md), 0644); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", r.prompt, err)
			continue
		}
		if err := writeProjectJSON(filepath.Join(batchOutputDir, name+".json"), r.project); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", r.prompt, err)
			continue
		}

		succeeded++
		if r.project.Selected != nil {
			fmt.Fprintf(os.Stderr, "✓ %s (selected %s, relevance %d)\n",
				r.prompt, r.project.Selected.Identifier, r.project.Selected.RelevanceScore)
		} else {
			fmt.Fprintf(os.Stderr, "✓ %s (project %s)\n", r.prompt, r.project.ID)
		}
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d prompts\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", succeeded)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failed)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", batchOutputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// readPrompts loads one prompt per line, skipping blanks and comments.
func readPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prompts file: %w", err)
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	return prompts, nil
}

func writeProjectJSON(path string, project *model.Project) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return report.WriteJSON(f, project)
}

// slugify turns a prompt into a filesystem-safe report name.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	if slug == "" {
		slug = "prompt"
	}
	return slug
}
