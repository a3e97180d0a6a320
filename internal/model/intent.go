package model

// Intent is the structured reading of a natural-language task prompt,
// produced by the judge before discovery starts.
type Intent struct {
	Target        string   `json:"target"`                   // What the model should predict or recognize
	Features      []string `json:"features,omitempty"`       // Data points the source must carry
	SearchQueries []string `json:"search_queries,omitempty"` // Queries to fan out across providers
}

// Judgment is the judge's relevance verdict for one candidate, cached
// verbatim by identifier for reuse within the cache TTL.
type Judgment struct {
	Score      int    `json:"relevance_score"` // 0-100
	SourceType string `json:"source_type"`     // API, Dataset, Article, Irrelevant
}

// Source type tags assigned by the judge.
const (
	SourceAPI        = "API"
	SourceDataset    = "Dataset"
	SourceArticle    = "Article"
	SourceIrrelevant = "Irrelevant"
)
