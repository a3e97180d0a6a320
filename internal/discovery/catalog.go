package discovery

import (
	"context"
	"strings"

	"datahound/internal/model"
)

// CatalogDataset is one curated entry: a Kaggle owner/name ref and a
// display title.
type CatalogDataset struct {
	Ref   string
	Title string
}

type catalogEntry struct {
	keyword  string
	datasets []CatalogDataset
}

// builtinCatalog maps task keywords to known-good public datasets that
// need no special permissions. Order matters: earlier matches rank
// earlier in the results.
var builtinCatalog = []catalogEntry{
	{"bird", []CatalogDataset{
		{"gpiosenka/100-bird-species", "100 Bird Species"},
		{"umairshahpirzada/birds-20-species-image-classification", "Birds 20 Species"},
		{"wenewone/cub2002011", "CUB-200-2011 Birds"},
	}},
	{"cat", []CatalogDataset{
		{"tongpython/cat-and-dog", "Cats and Dogs"},
		{"shaunthesheep/microsoft-catsvsdogs-dataset", "Microsoft Cats vs Dogs"},
	}},
	{"dog", []CatalogDataset{
		{"tongpython/cat-and-dog", "Cats and Dogs"},
		{"jessicali9530/stanford-dogs-dataset", "Stanford Dogs"},
	}},
	{"flower", []CatalogDataset{
		{"alxmamaev/flowers-recognition", "Flowers Recognition"},
		{"imsparsh/flowers-dataset", "Flowers Dataset"},
	}},
	{"defect", []CatalogDataset{
		{"kaustubhdikshit/neu-surface-defect-database", "NEU Surface Defect"},
		{"fantacher/neu-metal-surface-defects-data", "NEU Metal Surface Defects"},
	}},
	{"metal", []CatalogDataset{
		{"kaustubhdikshit/neu-surface-defect-database", "NEU Surface Defect"},
		{"fantacher/neu-metal-surface-defects-data", "NEU Metal Surface Defects"},
	}},
	{"fruit", []CatalogDataset{
		{"moltean/fruits", "Fruits 360"},
	}},
	{"food", []CatalogDataset{
		{"kmader/food41", "Food-41"},
	}},
}

// defaultCatalog is the last resort when no keyword matches.
var defaultCatalog = []CatalogDataset{
	{"kaustubhdikshit/neu-surface-defect-database", "NEU Surface Defect"},
}

// Catalog serves the curated dataset index as a discovery provider. It
// keeps discovery useful when no live search backend is configured and
// gives the trainer a place to resolve datasets from a bare task
// description.
type Catalog struct{}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

func (c *Catalog) Name() string {
	return "catalog"
}

// Match returns the curated datasets whose keyword appears in text,
// falling back to the default entry when nothing matches. Duplicate
// refs across keywords are kept; downstream dedup owns that.
func (c *Catalog) Match(text string) []CatalogDataset {
	lower := strings.ToLower(text)

	var out []CatalogDataset
	for _, entry := range builtinCatalog {
		if strings.Contains(lower, entry.keyword) {
			out = append(out, entry.datasets...)
		}
	}
	if len(out) == 0 {
		out = append(out, defaultCatalog...)
	}
	return out
}

// Search matches the intent's target and leading features against the
// keyword index.
func (c *Catalog) Search(ctx context.Context, intent model.Intent, limit int) ([]RawCandidate, error) {
	terms := []string{intent.Target}
	features := intent.Features
	if len(features) > 3 {
		features = features[:3]
	}
	terms = append(terms, features...)

	matched := c.Match(strings.Join(terms, " "))
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]RawCandidate, 0, len(matched))
	for _, ds := range matched {
		out = append(out, RawCandidate{
			URL:        "https://www.kaggle.com/datasets/" + ds.Ref,
			Title:      ds.Title,
			SourceType: model.SourceDataset,
		})
	}
	return out, nil
}
