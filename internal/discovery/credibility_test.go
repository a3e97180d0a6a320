package discovery

import (
	"testing"

	"datahound/internal/model"
)

func TestCredibilityFor(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected model.CredibilityTier
	}{
		{"gov domain", "https://www.epa.gov/air-data", model.TierHigh},
		{"edu domain", "https://data.university.edu/datasets", model.TierHigh},
		{"github", "https://github.com/owner/repo", model.TierHigh},
		{"kaggle", "https://www.kaggle.com/datasets/owner/name", model.TierHigh},
		{"ordinary host", "https://example.com/data", model.TierMedium},
		{"gov in path only", "https://example.com/gov-data", model.TierMedium},
		{"no host", "not a url", model.TierMedium},
		{"empty", "", model.TierMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CredibilityFor(tt.url, model.CredibilityConfig{})
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestCredibilityFor_ConfigExtensions(t *testing.T) {
	extra := model.CredibilityConfig{
		HighTrustHosts:    []string{"zenodo.org"},
		HighTrustSuffixes: []string{".ac.uk"},
	}

	if got := CredibilityFor("https://zenodo.org/record/123", extra); got != model.TierHigh {
		t.Errorf("Expected configured host to rate high, got %s", got)
	}
	if got := CredibilityFor("https://data.ox.ac.uk/set", extra); got != model.TierHigh {
		t.Errorf("Expected configured suffix to rate high, got %s", got)
	}
	if got := CredibilityFor("https://example.com/data", extra); got != model.TierMedium {
		t.Errorf("Expected unlisted host to stay medium, got %s", got)
	}
}
