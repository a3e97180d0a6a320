package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"datahound/internal/report"
	"datahound/internal/train"
)

var modelsJSON bool

// modelsCmd represents the models command
var modelsCmd = &cobra.Command{
	Use:   "models [name]",
	Short: "List trained models and their manifests",
	Long: `Models lists every trained model's manifest: dataset, architecture,
accuracy, and class count. With a model file name it prints that one
manifest in full.

Example:
  datahound models
  datahound models bird_species_efficientnet_b0.pth
  datahound models --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "print manifests as JSON")
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		manifest, err := train.LoadManifest(cfg.Training.ModelsDir, args[0])
		if err != nil {
			return err
		}
		return report.WriteJSON(os.Stdout, manifest)
	}

	manifests, err := train.LoadManifests(cfg.Training.ModelsDir)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		fmt.Println("No trained models yet. Train one with: datahound train \"<task>\"")
		return nil
	}
	if modelsJSON {
		return report.WriteJSON(os.Stdout, manifests)
	}

	rows := make([][]string, 0, len(manifests))
	for _, m := range manifests {
		rows = append(rows, []string{
			m.ModelFile,
			m.DatasetRef,
			m.Architecture,
			fmt.Sprintf("%.1f%%", m.Accuracy*100),
			strconv.Itoa(m.NumClasses),
			m.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	fmt.Println(report.Table([]string{"Model", "Dataset", "Architecture", "Accuracy", "Classes", "Created"}, rows))
	return nil
}
