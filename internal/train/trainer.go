package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"datahound/internal/cascade"
)

// ErrNoTrainableDataset reports that every dataset in the cascade was
// exhausted without a successful training run.
var ErrNoTrainableDataset = errors.New("no dataset could be trained")

// Dataset is one ranked training candidate.
type Dataset struct {
	Ref     string `json:"ref"` // Kaggle owner/name
	Title   string `json:"title,omitempty"`
	Score   int    `json:"score,omitempty"` // Relevance carried over from discovery
	Classes int    `json:"num_classes,omitempty"`
}

// AttemptRecord documents one training submission.
type AttemptRecord struct {
	DatasetRef string    `json:"dataset_ref"`
	Attempt    int       `json:"attempt"`
	Error      string    `json:"error,omitempty"`
	Structural bool      `json:"structural,omitempty"`
	At         time.Time `json:"at"`
}

// Result is a completed training run.
type Result struct {
	TaskName    string          `json:"task_name"`
	DatasetRef  string          `json:"dataset_ref"`
	ModelFile   string          `json:"model_file"`
	Plan        TrainingPlan    `json:"plan"`
	Artifact    *Artifact       `json:"artifact,omitempty"`
	Attempts    []AttemptRecord `json:"attempts,omitempty"`
	Duration    time.Duration   `json:"duration"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Trainer drives the dataset cascade: each dataset gets up to
// maxRetries submissions, structural failures skip straight to the
// next dataset, and the first trained model wins.
type Trainer struct {
	compute    Compute
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// NewTrainer wires the trainer. maxRetries counts total submissions
// per dataset.
func NewTrainer(compute Compute, maxRetries int, retryDelay time.Duration, logger *slog.Logger) *Trainer {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	return &Trainer{
		compute:    compute,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// Train runs the cascade over the given datasets. Duplicate refs are
// dropped (first occurrence wins) so an abandoned dataset is never
// resubmitted within a run; ranking is by score descending with ties
// in given order.
func (t *Trainer) Train(ctx context.Context, taskName string, datasets []Dataset, plan TrainingPlan) (*Result, error) {
	unique := dedupDatasets(datasets)
	if len(unique) == 0 {
		return nil, fmt.Errorf("no datasets to train on")
	}
	ranked := cascade.Rank(unique, func(d Dataset) int { return d.Score })

	modelFile := fmt.Sprintf("%s_%s.pth", sanitizeName(taskName), plan.Architecture)
	t.logger.Info("training cascade starting",
		"task", taskName, "architecture", plan.Architecture, "datasets", len(ranked))

	start := t.now()
	var attempts []AttemptRecord

	hooks := cascade.Hooks[Dataset]{
		OnAttempt: func(ds Dataset) error {
			t.logger.Info("trying dataset", "ref", ds.Ref, "score", ds.Score)
			return nil
		},
		OnFailure: func(ds Dataset, err error) error {
			t.logger.Warn("dataset exhausted", "ref", ds.Ref, "error", err)
			return nil
		},
	}

	artifact, winner, err := cascade.Run(ctx, ranked, func(ctx context.Context, ds Dataset) (*Artifact, error) {
		spec := JobSpec{
			TaskName:       taskName,
			DatasetRef:     ds.Ref,
			Architecture:   plan.Architecture,
			Epochs:         plan.Epochs,
			LearningRate:   plan.LearningRate,
			BatchSize:      plan.BatchSize,
			FreezeBackbone: plan.FreezeBackbone,
			InputSize:      plan.InputSize,
		}
		return t.trainDataset(ctx, ds, spec, &attempts)
	}, hooks)
	if err != nil {
		if errors.Is(err, cascade.ErrExhausted) {
			return nil, fmt.Errorf("%w: tried %d datasets: %w", ErrNoTrainableDataset, len(ranked), err)
		}
		return nil, err
	}

	result := &Result{
		TaskName:    taskName,
		DatasetRef:  winner.Ref,
		ModelFile:   modelFile,
		Plan:        plan,
		Artifact:    artifact,
		Attempts:    attempts,
		Duration:    t.now().Sub(start),
		CompletedAt: t.now(),
	}
	t.logger.Info("training complete",
		"dataset", winner.Ref, "accuracy", artifact.Accuracy, "model", modelFile)
	return result, nil
}

// trainDataset submits one dataset up to the retry limit. A structural
// failure abandons the dataset immediately.
func (t *Trainer) trainDataset(ctx context.Context, ds Dataset, spec JobSpec, attempts *[]AttemptRecord) (*Artifact, error) {
	var lastErr error
	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t.logger.Info("submitting training job",
			"dataset", ds.Ref, "attempt", attempt, "max_retries", t.maxRetries)

		ref, err := t.compute.SubmitTraining(ctx, spec)
		if err == nil {
			artifact, ferr := t.compute.FetchArtifact(ctx, ref)
			if ferr == nil {
				*attempts = append(*attempts, AttemptRecord{
					DatasetRef: ds.Ref, Attempt: attempt, At: t.now(),
				})
				return artifact, nil
			}
			err = fmt.Errorf("fetch artifact %s: %w", ref, ferr)
		}

		lastErr = err
		structural := IsStructural(err)
		*attempts = append(*attempts, AttemptRecord{
			DatasetRef: ds.Ref,
			Attempt:    attempt,
			Error:      err.Error(),
			Structural: structural,
			At:         t.now(),
		})
		t.logger.Warn("training attempt failed",
			"dataset", ds.Ref, "attempt", attempt, "structural", structural, "error", err)

		// Retrying a structurally broken dataset cannot help.
		if structural {
			return nil, err
		}
		if attempt < t.maxRetries {
			if serr := t.sleep(ctx, t.retryDelay); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, lastErr
}

// dedupDatasets keeps the first occurrence of each ref.
func dedupDatasets(datasets []Dataset) []Dataset {
	seen := make(map[string]bool, len(datasets))
	out := make([]Dataset, 0, len(datasets))
	for _, ds := range datasets {
		if ds.Ref == "" || seen[ds.Ref] {
			continue
		}
		seen[ds.Ref] = true
		out = append(out, ds)
	}
	return out
}

// sanitizeName makes a task name safe for a filename.
func sanitizeName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return "model"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "model"
	}
	return b.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
