package discovery

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeIdentifier reduces a URL to its dedup identity: scheme, host,
// and path, lowercased, with the query, fragment, trailing slashes, and
// a leading www. stripped. Strings that do not parse as URLs are
// lowercased and trimmed as-is so they still dedup against themselves.
func NormalizeIdentifier(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}
	norm := fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Path)
	norm = strings.TrimRight(strings.ToLower(norm), "/")
	return strings.Replace(norm, "://www.", "://", 1)
}

// ExtractDatasetRef pulls an owner/name dataset reference out of a
// Kaggle URL. Competition, code, and discussion URLs yield nothing, as
// do dataset URLs with no owner segment.
func ExtractDatasetRef(rawURL string) (string, bool) {
	if rawURL == "" || !strings.Contains(rawURL, "kaggle.com") {
		return "", false
	}

	if _, after, found := strings.Cut(rawURL, "kaggle.com/datasets/"); found {
		ref := trimRef(after)
		if strings.Contains(ref, "/") {
			return ref, true
		}
		return "", false
	}

	if strings.Contains(rawURL, "/c/") || strings.Contains(rawURL, "/datasets/") {
		return "", false
	}

	if _, after, found := strings.Cut(rawURL, "kaggle.com/"); found {
		path := trimRef(after)
		if strings.Count(path, "/") != 1 {
			return "", false
		}
		for _, prefix := range []string{"c/", "code/", "discussion/"} {
			if strings.HasPrefix(path, prefix) {
				return "", false
			}
		}
		return path, true
	}
	return "", false
}

// trimRef strips trailing slashes, then anything from the first query
// separator on.
func trimRef(s string) string {
	s = strings.TrimRight(s, "/")
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return s
}

// Identity is the canonical dedup key for a discovered URL: the dataset
// ref when the URL points into a dataset catalog, otherwise the
// normalized URL itself.
func Identity(rawURL string) string {
	if ref, ok := ExtractDatasetRef(rawURL); ok {
		return ref
	}
	return NormalizeIdentifier(rawURL)
}
