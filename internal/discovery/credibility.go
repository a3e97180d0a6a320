package discovery

import (
	"net/url"
	"strings"

	"datahound/internal/model"
)

// Built-in host trust rules. Config may extend both lists but never
// shrink them.
var (
	highTrustSuffixes = []string{".gov", ".edu"}
	highTrustHosts    = []string{"github.com", "kaggle.com"}
)

// CredibilityFor classifies how much trust a source URL's host earns.
// Government and academic domains and known dataset hosts rate high;
// everything else, including URLs that do not parse, rates medium.
func CredibilityFor(rawURL string, extra model.CredibilityConfig) model.CredibilityTier {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.TierMedium
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return model.TierMedium
	}

	for _, suffix := range highTrustSuffixes {
		if strings.HasSuffix(host, suffix) {
			return model.TierHigh
		}
	}
	for _, suffix := range extra.HighTrustSuffixes {
		if suffix != "" && strings.HasSuffix(host, strings.ToLower(suffix)) {
			return model.TierHigh
		}
	}
	for _, known := range highTrustHosts {
		if strings.Contains(host, known) {
			return model.TierHigh
		}
	}
	for _, known := range extra.HighTrustHosts {
		if known != "" && strings.Contains(host, strings.ToLower(known)) {
			return model.TierHigh
		}
	}
	return model.TierMedium
}
