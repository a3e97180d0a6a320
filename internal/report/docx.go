package report

import (
	"fmt"

	"github.com/gingfrederik/docx"

	"datahound/internal/model"
)

// WriteDocx writes the project report as a Word document.
func WriteDocx(path string, p *model.Project, threshold int) error {
	f := docx.NewFile()

	titleP := f.AddParagraph()
	titleRun := titleP.AddText("Dataset Discovery Report")
	titleRun.Size(20)
	f.AddParagraph() // Spacer

	f.AddParagraph().AddText(fmt.Sprintf("Project: %s", p.ID))
	f.AddParagraph().AddText(fmt.Sprintf("Prompt: %s", p.Prompt))

	statusP := f.AddParagraph()
	statusRun := statusP.AddText(fmt.Sprintf("Status: %s", p.Status))
	if p.Status == model.ProjectFailed {
		statusRun.Color("FF0000")
	}
	if p.LastError != "" {
		errP := f.AddParagraph()
		errRun := errP.AddText(fmt.Sprintf("Last error: %s", p.LastError))
		errRun.Size(10)
		errRun.Color("808080")
	}
	f.AddParagraph() // Spacer

	if sel := p.Selected; sel != nil {
		selP := f.AddParagraph()
		selRun := selP.AddText("Selected Source")
		selRun.Size(16)

		f.AddParagraph().AddText(titleOrIdentifier(sel.Title, sel.Identifier))

		urlP := f.AddParagraph()
		urlRun := urlP.AddText(sel.URL)
		urlRun.Size(10)
		urlRun.Color("0000FF")

		scoreP := f.AddParagraph()
		scoreRun := scoreP.AddText(fmt.Sprintf("Relevance: %d | Quality: %d | Credibility: %s",
			sel.RelevanceScore, sel.QualityRating, sel.Credibility))
		scoreRun.Color("008000")
		f.AddParagraph() // Spacer
	}

	stats := p.Stats(threshold)
	f.AddParagraph().AddText(fmt.Sprintf("Candidates: %d total, %d validated, %d rejected, %d pending",
		stats.Total, stats.Validated, stats.Rejected, stats.Pending))
	f.AddParagraph().AddText("--------------------------------------------------")

	for _, c := range p.Candidates {
		f.AddParagraph().AddText(titleOrIdentifier(c.Title, c.Identifier))

		urlP := f.AddParagraph()
		urlRun := urlP.AddText(c.URL)
		urlRun.Size(10)

		detail := fmt.Sprintf("Provider: %s | Status: %s", c.Provider, c.Status)
		if c.RelevanceScore != nil {
			detail = fmt.Sprintf("%s | Score: %d", detail, *c.RelevanceScore)
		}
		detailP := f.AddParagraph()
		detailRun := detailP.AddText(detail)
		detailRun.Size(10)
		detailRun.Color("808080")
		f.AddParagraph() // Spacer
	}

	return f.Save(path)
}

func titleOrIdentifier(title, identifier string) string {
	if title != "" {
		return title
	}
	return identifier
}
