// Package report renders projects and training runs as markdown,
// Word documents, and JSON files for the CLI and the results
// directory.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"datahound/internal/model"
	"datahound/internal/train"
)

// Table renders one markdown table padded by display width, so columns
// stay aligned even when titles carry wide runes.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := runewidth.StringWidth(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		if widths[i] < 3 {
			widths[i] = 3
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		sb.WriteString("|")
		for i := range widths {
			content := ""
			if i < len(cells) {
				content = cells[i]
			}
			sb.WriteString(" ")
			sb.WriteString(content)
			if pad := widths[i] - runewidth.StringWidth(content); pad > 0 {
				sb.WriteString(strings.Repeat(" ", pad))
			}
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}

	writeRow(header)
	sb.WriteString("|")
	for i := range widths {
		sb.WriteString(" ")
		sb.WriteString(strings.Repeat("-", widths[i]))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

// Markdown renders the full project report. threshold marks the
// high-quality line in the stats block.
func Markdown(p *model.Project, threshold int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Discovery Report: %s\n\n", p.ID)
	fmt.Fprintf(&sb, "**Prompt:** %s\n\n", p.Prompt)
	fmt.Fprintf(&sb, "**Status:** %s\n\n", p.Status)
	if len(p.DiscoveryChain) > 0 {
		fmt.Fprintf(&sb, "**Discovery chain:** %s\n\n", strings.Join(p.DiscoveryChain, ", "))
	}
	if p.LastError != "" {
		fmt.Fprintf(&sb, "**Last error:** %s\n\n", p.LastError)
	}

	if p.Intent != nil {
		sb.WriteString("## Intent\n\n")
		fmt.Fprintf(&sb, "- Target: %s\n", p.Intent.Target)
		if len(p.Intent.Features) > 0 {
			fmt.Fprintf(&sb, "- Features: %s\n", strings.Join(p.Intent.Features, ", "))
		}
		if len(p.Intent.SearchQueries) > 0 {
			fmt.Fprintf(&sb, "- Queries: %s\n", strings.Join(p.Intent.SearchQueries, "; "))
		}
		sb.WriteString("\n")
	}

	if sel := p.Selected; sel != nil {
		sb.WriteString("## Selected Source\n\n")
		fmt.Fprintf(&sb, "- Identifier: %s\n", sel.Identifier)
		fmt.Fprintf(&sb, "- URL: %s\n", sel.URL)
		if sel.Title != "" {
			fmt.Fprintf(&sb, "- Title: %s\n", sel.Title)
		}
		fmt.Fprintf(&sb, "- Relevance: %d\n", sel.RelevanceScore)
		if sel.QualityRating > 0 {
			fmt.Fprintf(&sb, "- Quality: %d\n", sel.QualityRating)
		}
		fmt.Fprintf(&sb, "- Credibility: %s\n", sel.Credibility)
		if len(sel.FeaturesFound) > 0 {
			fmt.Fprintf(&sb, "- Features found: %s\n", strings.Join(sel.FeaturesFound, ", "))
		}
		sb.WriteString("\n")
	}

	stats := p.Stats(threshold)
	sb.WriteString("## Candidates\n\n")
	fmt.Fprintf(&sb, "%d total: %d validated, %d rejected, %d pending, %d backup, %d failed\n\n",
		stats.Total, stats.Validated, stats.Rejected, stats.Pending, stats.Backup, stats.Failed)

	if len(p.Candidates) > 0 {
		rows := make([][]string, 0, len(p.Candidates))
		for _, c := range p.Candidates {
			rows = append(rows, []string{
				c.Identifier,
				c.Provider,
				scoreCell(c.RelevanceScore),
				string(c.Status),
				c.SourceType,
			})
		}
		sb.WriteString(Table([]string{"Identifier", "Provider", "Score", "Status", "Type"}, rows))
	}
	return sb.String()
}

// TrainingSummary renders a finished training run for the console.
func TrainingSummary(res *train.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Training Report: %s\n\n", res.TaskName)
	fmt.Fprintf(&sb, "- Dataset: %s\n", res.DatasetRef)
	fmt.Fprintf(&sb, "- Model file: %s\n", res.ModelFile)
	fmt.Fprintf(&sb, "- Architecture: %s (%s)\n", res.Plan.Architecture, res.Plan.Reason)
	fmt.Fprintf(&sb, "- Hyperparameters: lr=%g epochs=%d batch=%d\n",
		res.Plan.LearningRate, res.Plan.Epochs, res.Plan.BatchSize)
	if res.Artifact != nil && res.Artifact.Accuracy > 0 {
		fmt.Fprintf(&sb, "- Accuracy: %.1f%%\n", res.Artifact.Accuracy*100)
	}
	fmt.Fprintf(&sb, "- Duration: %s\n", res.Duration.Round(time.Second))

	if len(res.Attempts) > 0 {
		sb.WriteString("\n## Attempts\n\n")
		rows := make([][]string, 0, len(res.Attempts))
		for _, a := range res.Attempts {
			outcome := "ok"
			if a.Error != "" {
				outcome = a.Error
			}
			kind := ""
			if a.Structural {
				kind = "structural"
			}
			rows = append(rows, []string{a.DatasetRef, strconv.Itoa(a.Attempt), outcome, kind})
		}
		sb.WriteString(Table([]string{"Dataset", "Attempt", "Outcome", "Kind"}, rows))
	}
	return sb.String()
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Save writes v as a timestamped JSON file under dir, creating the
// directory as needed, and returns the file path.
func Save(dir, prefix string, v any) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create results directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	name := fmt.Sprintf("%s_%s.json", prefix, time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func scoreCell(score *int) string {
	if score == nil {
		return "-"
	}
	return strconv.Itoa(*score)
}
