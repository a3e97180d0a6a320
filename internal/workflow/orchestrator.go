// Package workflow ties discovery and training together behind the
// facade the CLI and the REST server share.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"datahound/internal/discovery"
	"datahound/internal/llm"
	"datahound/internal/model"
	"datahound/internal/pipeline"
	"datahound/internal/report"
	"datahound/internal/store"
	"datahound/internal/train"
)

// ErrNoDataset reports that no trainable dataset could be resolved
// from the request.
var ErrNoDataset = errors.New("no trainable dataset resolved")

// Orchestrator owns the two long-running operations: discovery runs
// and training runs.
type Orchestrator struct {
	pipeline   *pipeline.Pipeline
	store      store.ProjectStore
	selector   *train.Selector
	trainer    *train.Trainer
	catalog    *discovery.Catalog
	resultsDir string
	modelsDir  string
	logger     *slog.Logger
}

// New wires the orchestrator. compute may be nil when no training
// service is configured; training requests then fail up front. p may
// be nil for training-only callers that never run discovery.
func New(p *pipeline.Pipeline, st store.ProjectStore, judge llm.Judge, compute train.Compute, cfg *model.Config, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		pipeline:   p,
		store:      st,
		selector:   train.NewSelector(judge, logger),
		catalog:    discovery.NewCatalog(),
		resultsDir: cfg.Training.ResultsDir,
		modelsDir:  cfg.Training.ModelsDir,
		logger:     logger,
	}
	if compute != nil {
		o.trainer = train.NewTrainer(compute, cfg.Training.MaxRetries, cfg.Training.RetryDelay, logger)
	}
	return o
}

// RunDiscovery executes one discovery pass for the project.
func (o *Orchestrator) RunDiscovery(ctx context.Context, projectID, prompt string) (*model.Project, error) {
	if o.pipeline == nil {
		return nil, errors.New("no discovery pipeline configured")
	}
	return o.pipeline.Run(ctx, projectID, prompt)
}

// Project loads one project.
func (o *Orchestrator) Project(ctx context.Context, projectID string) (*model.Project, error) {
	return o.store.GetProject(ctx, projectID)
}

// Projects lists all projects.
func (o *Orchestrator) Projects(ctx context.Context) ([]store.ProjectSummary, error) {
	return o.store.ListProjects(ctx)
}

// TrainingRequest describes one training run.
type TrainingRequest struct {
	// Task names what the model should recognize; it becomes the model
	// filename and, without an explicit dataset, drives catalog lookup
	Task string `json:"task"`

	// Priority is "speed", "accuracy", or "balanced" (the default)
	Priority string `json:"priority,omitempty"`

	// DatasetRef pins an explicit dataset: owner/name or a catalog URL
	DatasetRef string `json:"dataset_ref,omitempty"`

	// ProjectID pulls the dataset from a finished discovery run
	ProjectID string `json:"project_id,omitempty"`
}

// TrainingOutcome is a completed training run plus the cascade that
// produced it.
type TrainingOutcome struct {
	Result     *train.Result   `json:"result"`
	Datasets   []train.Dataset `json:"datasets"` // As offered to the trainer
	ReportPath string          `json:"report_path,omitempty"`
}

// RunTraining resolves datasets, picks an architecture, and drives the
// training cascade. Dataset resolution order: the explicit ref, then
// the project's selected source and backups, then the curated catalog
// matched against the task description.
func (o *Orchestrator) RunTraining(ctx context.Context, req TrainingRequest) (*TrainingOutcome, error) {
	if strings.TrimSpace(req.Task) == "" {
		return nil, errors.New("task description required")
	}
	if o.trainer == nil {
		return nil, errors.New("no training service configured")
	}

	datasets, err := o.resolveDatasets(ctx, req)
	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = "balanced"
	}
	plan := o.selector.Select(ctx, req.Task, priority, &datasets[0])

	result, err := o.trainer.Train(ctx, req.Task, datasets, plan)
	if err != nil {
		return nil, err
	}

	outcome := &TrainingOutcome{Result: result, Datasets: datasets}
	if o.resultsDir != "" {
		path, err := report.Save(o.resultsDir, "training", result)
		if err != nil {
			o.logger.Warn("training report not saved", "error", err)
		} else {
			outcome.ReportPath = path
		}
	}
	if o.modelsDir != "" {
		if _, err := train.SaveManifest(o.modelsDir, train.ManifestFor(result)); err != nil {
			o.logger.Warn("model manifest not saved", "error", err)
		}
	}
	return outcome, nil
}

// resolveDatasets builds the cascade input for one request.
func (o *Orchestrator) resolveDatasets(ctx context.Context, req TrainingRequest) ([]train.Dataset, error) {
	if req.DatasetRef != "" {
		ref, ok := normalizeRef(req.DatasetRef)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a dataset reference", ErrNoDataset, req.DatasetRef)
		}
		return []train.Dataset{{Ref: ref}}, nil
	}

	if req.ProjectID != "" {
		project, err := o.store.GetProject(ctx, req.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("load project: %w", err)
		}
		if datasets := datasetsFromProject(project); len(datasets) > 0 {
			return datasets, nil
		}
		o.logger.Warn("project has no trainable datasets, falling back to catalog",
			"project", req.ProjectID)
	}

	matched := o.catalog.Match(req.Task)
	datasets := make([]train.Dataset, 0, len(matched))
	for _, ds := range matched {
		datasets = append(datasets, train.Dataset{Ref: ds.Ref, Title: ds.Title})
	}
	if len(datasets) == 0 {
		return nil, ErrNoDataset
	}
	o.logger.Info("datasets resolved from catalog", "task", req.Task, "count", len(datasets))
	return datasets, nil
}

// datasetsFromProject lifts the selected source and its backups into
// cascade candidates, keeping only entries with a usable dataset ref.
func datasetsFromProject(p *model.Project) []train.Dataset {
	var out []train.Dataset
	if sel := p.Selected; sel != nil {
		if ref, ok := refOf(sel.Identifier, sel.URL); ok {
			out = append(out, train.Dataset{Ref: ref, Title: sel.Title, Score: sel.RelevanceScore})
		}
	}
	for _, c := range p.Backups() {
		if ref, ok := refOf(c.Identifier, c.URL); ok {
			ds := train.Dataset{Ref: ref, Title: c.Title}
			if c.RelevanceScore != nil {
				ds.Score = *c.RelevanceScore
			}
			out = append(out, ds)
		}
	}
	return out
}

// refOf prefers the identifier, which for catalog hits already is the
// owner/name ref, and otherwise extracts from the full URL.
func refOf(identifier, rawURL string) (string, bool) {
	if isBareRef(identifier) {
		return identifier, true
	}
	return discovery.ExtractDatasetRef(rawURL)
}

// normalizeRef accepts owner/name directly or extracts it from a
// catalog URL.
func normalizeRef(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimRight(raw, "/")
	if strings.Contains(raw, "://") || strings.Contains(raw, "kaggle.com") {
		return discovery.ExtractDatasetRef(raw)
	}
	if isBareRef(raw) {
		return raw, true
	}
	return "", false
}

func isBareRef(s string) bool {
	owner, name, found := strings.Cut(s, "/")
	return found && owner != "" && name != "" && !strings.Contains(name, "/")
}
