// Package train picks model architectures and drives training jobs
// against the compute service, falling back through ranked datasets.
package train

import (
	"context"
	"log/slog"
	"strings"

	"datahound/internal/llm"
)

// Architecture describes one trainable backbone and its defaults.
type Architecture struct {
	Key           string  `json:"key"`
	Name          string  `json:"name"`
	Params        string  `json:"params"`
	Speed         string  `json:"speed"`
	Accuracy      string  `json:"accuracy"`
	BestFor       string  `json:"best_for"`
	InputSize     int     `json:"input_size"`
	DefaultLR     float64 `json:"default_lr"`
	DefaultEpochs int     `json:"default_epochs"`
}

// catalog is ordered; the first entry doubles as the safe default when
// the judge names an unknown architecture.
var catalog = []Architecture{
	{
		Key: "mobilenet_v2", Name: "MobileNetV2", Params: "3.4M",
		Speed: "very fast", Accuracy: "good",
		BestFor:   "mobile/edge deployment, real-time inference, small datasets",
		InputSize: 224, DefaultLR: 0.001, DefaultEpochs: 10,
	},
	{
		Key: "resnet50", Name: "ResNet50", Params: "25.6M",
		Speed: "medium", Accuracy: "very good",
		BestFor:   "balanced accuracy/speed, medium datasets, general purpose",
		InputSize: 224, DefaultLR: 0.0001, DefaultEpochs: 15,
	},
	{
		Key: "efficientnet_b0", Name: "EfficientNet-B0", Params: "5.3M",
		Speed: "fast", Accuracy: "very good",
		BestFor:   "best accuracy/efficiency ratio, production deployment",
		InputSize: 224, DefaultLR: 0.001, DefaultEpochs: 15,
	},
	{
		Key: "efficientnet_b4", Name: "EfficientNet-B4", Params: "19M",
		Speed: "slow", Accuracy: "excellent",
		BestFor:   "maximum accuracy, fine-grained classification, large datasets",
		InputSize: 380, DefaultLR: 0.0001, DefaultEpochs: 20,
	},
	{
		Key: "convnext_tiny", Name: "ConvNeXt-Tiny", Params: "28.6M",
		Speed: "medium", Accuracy: "excellent",
		BestFor:   "state-of-the-art accuracy, complex visual tasks",
		InputSize: 224, DefaultLR: 0.0001, DefaultEpochs: 15,
	},
}

// Catalog returns a copy of the architecture table.
func Catalog() []Architecture {
	return append([]Architecture(nil), catalog...)
}

// lookupArch resolves a key, defaulting to the first catalog entry for
// anything unknown.
func lookupArch(key string) Architecture {
	for _, a := range catalog {
		if a.Key == key {
			return a
		}
	}
	return catalog[0]
}

// TrainingPlan is a resolved architecture plus hyperparameters.
type TrainingPlan struct {
	Architecture   string  `json:"architecture"`
	LearningRate   float64 `json:"learning_rate"`
	Epochs         int     `json:"epochs"`
	BatchSize      int     `json:"batch_size"`
	FreezeBackbone bool    `json:"freeze_backbone"`
	InputSize      int     `json:"input_size"`
	Reason         string  `json:"reason"`
}

// Selector picks an architecture for a task, asking the judge first
// and falling back to keyword rules when it is absent or fails.
type Selector struct {
	judge  llm.Judge
	logger *slog.Logger
}

// NewSelector wires the selector. judge may be nil (rules only).
func NewSelector(judge llm.Judge, logger *slog.Logger) *Selector {
	return &Selector{judge: judge, logger: logger}
}

// Select resolves the plan for a task. priority is "speed",
// "accuracy", or "balanced"; ds, when known, gives the judge context.
func (s *Selector) Select(ctx context.Context, task, priority string, ds *Dataset) TrainingPlan {
	if s.judge != nil {
		req := llm.ArchRequest{Task: task, Priority: priority, Catalog: catalogOptions()}
		if ds != nil {
			req.Dataset = ds.Title
			req.Classes = ds.Classes
		}
		advice, err := s.judge.AdviseArchitecture(ctx, req)
		if err != nil {
			s.logger.Warn("architecture advice failed, falling back to rules", "error", err)
		} else {
			plan := planFromAdvice(advice)
			s.logger.Info("architecture selected",
				"architecture", plan.Architecture, "reason", plan.Reason)
			return plan
		}
	}
	plan := ruleSelect(task, priority)
	s.logger.Info("architecture selected by rules", "architecture", plan.Architecture)
	return plan
}

func catalogOptions() []llm.ArchOption {
	out := make([]llm.ArchOption, 0, len(catalog))
	for _, a := range catalog {
		out = append(out, llm.ArchOption{
			Key:      a.Key,
			Name:     a.Name,
			Params:   a.Params,
			Speed:    a.Speed,
			Accuracy: a.Accuracy,
		})
	}
	return out
}

// planFromAdvice validates the judge's pick against the catalog and
// fills gaps with the architecture's defaults.
func planFromAdvice(advice *llm.ArchAdvice) TrainingPlan {
	arch := lookupArch(advice.Architecture)

	plan := TrainingPlan{
		Architecture:   arch.Key,
		LearningRate:   advice.LearningRate,
		Epochs:         advice.Epochs,
		BatchSize:      advice.BatchSize,
		FreezeBackbone: true,
		InputSize:      arch.InputSize,
		Reason:         advice.Reason,
	}
	if plan.LearningRate <= 0 {
		plan.LearningRate = arch.DefaultLR
	}
	if plan.Epochs <= 0 {
		plan.Epochs = arch.DefaultEpochs
	}
	if plan.BatchSize <= 0 {
		plan.BatchSize = 32
	}
	if advice.FreezeBackbone != nil {
		plan.FreezeBackbone = *advice.FreezeBackbone
	}
	if plan.Reason == "" {
		plan.Reason = "LLM recommendation"
	}
	return plan
}

// ruleSelect is the no-judge path: priority first, then task keywords.
func ruleSelect(task, priority string) TrainingPlan {
	lower := strings.ToLower(task)

	var key string
	switch {
	case priority == "speed":
		key = "mobilenet_v2"
	case priority == "accuracy":
		if containsAny(lower, "fine-grained", "species", "detailed", "medical") {
			key = "efficientnet_b4"
		} else {
			key = "convnext_tiny"
		}
	case containsAny(lower, "defect", "industrial", "inspection"):
		key = "efficientnet_b0"
	case containsAny(lower, "mobile", "edge", "real-time", "fast"):
		key = "mobilenet_v2"
	default:
		key = "efficientnet_b0"
	}

	arch := lookupArch(key)
	return TrainingPlan{
		Architecture:   arch.Key,
		LearningRate:   arch.DefaultLR,
		Epochs:         arch.DefaultEpochs,
		BatchSize:      32,
		FreezeBackbone: true,
		InputSize:      arch.InputSize,
		Reason:         "Rule-based: " + arch.BestFor,
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
