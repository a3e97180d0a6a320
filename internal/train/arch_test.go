package train

import (
	"context"
	"errors"
	"strings"
	"testing"

	"datahound/internal/llm"
	"datahound/internal/logging"
	"datahound/internal/model"
)

// adviceJudge satisfies llm.Judge for selector tests.
type adviceJudge struct {
	adviceFn func(req llm.ArchRequest) (*llm.ArchAdvice, error)
	got      llm.ArchRequest
}

func (j *adviceJudge) Name() string                     { return "test" }
func (j *adviceJudge) IsAvailable(context.Context) bool { return true }

func (j *adviceJudge) ParseIntent(context.Context, string) (*model.Intent, error) {
	return nil, errors.New("not implemented")
}

func (j *adviceJudge) ScoreRelevance(context.Context, llm.RelevanceRequest) (*model.Judgment, error) {
	return nil, errors.New("not implemented")
}

func (j *adviceJudge) DetectSchema(context.Context, llm.SchemaRequest) (*llm.SchemaReport, error) {
	return nil, errors.New("not implemented")
}

func (j *adviceJudge) AdviseArchitecture(_ context.Context, req llm.ArchRequest) (*llm.ArchAdvice, error) {
	j.got = req
	if j.adviceFn == nil {
		return nil, errors.New("no advice function")
	}
	return j.adviceFn(req)
}

func (j *adviceJudge) Chat(context.Context, llm.ChatRequest) (*llm.ChatReply, error) {
	return nil, errors.New("not implemented")
}

func TestCatalog(t *testing.T) {
	archs := Catalog()
	if len(archs) != 5 {
		t.Fatalf("Expected 5 architectures, got %d", len(archs))
	}
	if archs[0].Key != "mobilenet_v2" {
		t.Errorf("Expected mobilenet_v2 first, got %s", archs[0].Key)
	}
	for _, a := range archs {
		if a.InputSize == 0 || a.DefaultLR == 0 || a.DefaultEpochs == 0 {
			t.Errorf("Architecture %s has missing defaults: %+v", a.Key, a)
		}
	}
}

func TestLookupArch(t *testing.T) {
	if got := lookupArch("efficientnet_b4"); got.InputSize != 380 {
		t.Errorf("Expected input size 380, got %d", got.InputSize)
	}
	if got := lookupArch("vgg99"); got.Key != "mobilenet_v2" {
		t.Errorf("Expected unknown key to resolve to mobilenet_v2, got %s", got.Key)
	}
}

func TestRuleSelect(t *testing.T) {
	tests := []struct {
		name     string
		task     string
		priority string
		expected string
	}{
		{"speed priority", "classify anything", "speed", "mobilenet_v2"},
		{"accuracy with fine-grained task", "identify bird species", "accuracy", "efficientnet_b4"},
		{"accuracy with medical task", "detect tumors in medical scans", "accuracy", "efficientnet_b4"},
		{"accuracy general", "classify vehicles", "accuracy", "convnext_tiny"},
		{"industrial keywords", "detect surface defects on steel", "balanced", "efficientnet_b0"},
		{"edge keywords", "real-time recognition on mobile", "balanced", "mobilenet_v2"},
		{"default", "classify furniture styles", "balanced", "efficientnet_b0"},
		{"empty priority", "classify furniture styles", "", "efficientnet_b0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := ruleSelect(tt.task, tt.priority)
			if plan.Architecture != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, plan.Architecture)
			}
			if !strings.HasPrefix(plan.Reason, "Rule-based: ") {
				t.Errorf("Expected rule-based reason, got %q", plan.Reason)
			}
		})
	}
}

func TestRuleSelect_Hyperparameters(t *testing.T) {
	plan := ruleSelect("identify bird species", "accuracy")

	if plan.Architecture != "efficientnet_b4" {
		t.Fatalf("Expected efficientnet_b4, got %s", plan.Architecture)
	}
	if plan.LearningRate != 0.0001 {
		t.Errorf("Expected learning rate 0.0001, got %v", plan.LearningRate)
	}
	if plan.Epochs != 20 {
		t.Errorf("Expected 20 epochs, got %d", plan.Epochs)
	}
	if plan.BatchSize != 32 {
		t.Errorf("Expected batch size 32, got %d", plan.BatchSize)
	}
	if !plan.FreezeBackbone {
		t.Error("Expected frozen backbone by default")
	}
	if plan.InputSize != 380 {
		t.Errorf("Expected input size 380, got %d", plan.InputSize)
	}
}

func TestSelector_UsesJudgeAdvice(t *testing.T) {
	freeze := false
	judge := &adviceJudge{adviceFn: func(llm.ArchRequest) (*llm.ArchAdvice, error) {
		return &llm.ArchAdvice{
			Architecture:   "resnet50",
			Reason:         "Medium dataset, balanced budget",
			LearningRate:   0.0005,
			Epochs:         12,
			BatchSize:      16,
			FreezeBackbone: &freeze,
		}, nil
	}}
	selector := NewSelector(judge, logging.Nop())

	ds := &Dataset{Ref: "owner/name", Title: "CUB-200", Classes: 200}
	plan := selector.Select(context.Background(), "identify bird species", "balanced", ds)

	if plan.Architecture != "resnet50" {
		t.Errorf("Expected resnet50, got %s", plan.Architecture)
	}
	if plan.LearningRate != 0.0005 || plan.Epochs != 12 || plan.BatchSize != 16 {
		t.Errorf("Expected advice hyperparameters kept, got %+v", plan)
	}
	if plan.FreezeBackbone {
		t.Error("Expected unfrozen backbone per advice")
	}
	if plan.InputSize != 224 {
		t.Errorf("Expected catalog input size 224, got %d", plan.InputSize)
	}
	if plan.Reason != "Medium dataset, balanced budget" {
		t.Errorf("Unexpected reason: %q", plan.Reason)
	}

	if judge.got.Dataset != "CUB-200" || judge.got.Classes != 200 {
		t.Errorf("Expected dataset context forwarded, got %+v", judge.got)
	}
	if len(judge.got.Catalog) != 5 {
		t.Errorf("Expected full catalog offered, got %d entries", len(judge.got.Catalog))
	}
}

func TestSelector_UnknownArchitectureFallsBack(t *testing.T) {
	judge := &adviceJudge{adviceFn: func(llm.ArchRequest) (*llm.ArchAdvice, error) {
		return &llm.ArchAdvice{Architecture: "vgg99"}, nil
	}}
	selector := NewSelector(judge, logging.Nop())

	plan := selector.Select(context.Background(), "classify things", "balanced", nil)

	if plan.Architecture != "mobilenet_v2" {
		t.Errorf("Expected fallback to mobilenet_v2, got %s", plan.Architecture)
	}
	if plan.LearningRate != 0.001 || plan.Epochs != 10 {
		t.Errorf("Expected catalog defaults filled, got lr=%v epochs=%d", plan.LearningRate, plan.Epochs)
	}
	if plan.BatchSize != 32 {
		t.Errorf("Expected default batch size 32, got %d", plan.BatchSize)
	}
	if !plan.FreezeBackbone {
		t.Error("Expected frozen backbone when advice omits it")
	}
	if plan.Reason != "LLM recommendation" {
		t.Errorf("Expected default reason, got %q", plan.Reason)
	}
}

func TestSelector_JudgeErrorUsesRules(t *testing.T) {
	judge := &adviceJudge{adviceFn: func(llm.ArchRequest) (*llm.ArchAdvice, error) {
		return nil, errors.New("upstream 500")
	}}
	selector := NewSelector(judge, logging.Nop())

	plan := selector.Select(context.Background(), "detect defects in castings", "balanced", nil)
	if plan.Architecture != "efficientnet_b0" {
		t.Errorf("Expected rule selection, got %s", plan.Architecture)
	}
}

func TestSelector_NilJudge(t *testing.T) {
	selector := NewSelector(nil, logging.Nop())
	plan := selector.Select(context.Background(), "anything", "speed", nil)
	if plan.Architecture != "mobilenet_v2" {
		t.Errorf("Expected rule selection without a judge, got %s", plan.Architecture)
	}
}
