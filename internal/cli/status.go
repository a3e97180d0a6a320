package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"datahound/internal/report"
	"datahound/internal/store"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [project-id]",
	Short: "Show discovery projects and their progress",
	Long: `Status without arguments lists every project. With a project ID it
prints the full report: intent, selected source, and the candidate
table with scores and lifecycle states.

Example:
  datahound status
  datahound status 7c9e6679-7425-40de-944b-e07fc1f90ae7`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.NewDiskStore(cfg.Store.Dir)
	if err != nil {
		return fmt.Errorf("open project store: %w", err)
	}
	ctx := context.Background()

	if len(args) == 1 {
		project, err := st.GetProject(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(report.Markdown(project, cfg.Discovery.RelevanceThreshold))
		return nil
	}

	summaries, err := st.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No projects yet. Start one with: datahound discover \"<task>\"")
		return nil
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.ID,
			clip(s.Prompt, 48),
			string(s.Status),
			strconv.Itoa(s.Candidates),
			s.UpdatedAt.Format("2006-01-02 15:04"),
		})
	}
	fmt.Println(report.Table([]string{"Project", "Prompt", "Status", "Candidates", "Updated"}, rows))
	return nil
}

// clip shortens s to at most n runes for table display.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
