package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"datahound/internal/store"
)

var (
	reportJSON string
	reportMD   string
	reportDocx string
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report <project-id>",
	Short: "Render a finished project as Markdown, JSON, or Word",
	Long: `Report renders a stored project without re-running discovery.

With no output flags the Markdown report goes to stdout. Paths given
with --json, --md, or --docx write files; --md - forces stdout.

Example:
  datahound report 7c9e6679
  datahound report 7c9e6679 --json project.json --docx findings.docx`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	// Output flags
	reportCmd.Flags().StringVar(&reportJSON, "json", "", "write the project as JSON to this path")
	reportCmd.Flags().StringVar(&reportMD, "md", "", "write a Markdown report to this path (- for stdout)")
	reportCmd.Flags().StringVar(&reportDocx, "docx", "", "write a Word report to this path")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.NewDiskStore(cfg.Store.Dir)
	if err != nil {
		return fmt.Errorf("open project store: %w", err)
	}
	project, err := st.GetProject(context.Background(), args[0])
	if err != nil {
		return err
	}

	mdPath := reportMD
	if reportJSON == "" && reportMD == "" && reportDocx == "" {
		mdPath = "-"
	}
	return renderProject(project, cfg, reportJSON, mdPath, reportDocx)
}
