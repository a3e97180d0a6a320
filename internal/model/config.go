package model

import "time"

// Config is the complete runtime configuration. Defaults come from
// DefaultConfig; the CLI overlays config-file, environment, and flag
// values on top.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Cache       CacheConfig       `yaml:"cache"`
	Store       StoreConfig       `yaml:"store"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Training    TrainingConfig    `yaml:"training"`
	LLM         LLMConfig         `yaml:"llm"`
	Credibility CredibilityConfig `yaml:"credibility"`
	Server      ServerConfig      `yaml:"server"`
	Output      OutputConfig      `yaml:"output"`
}

// HTTPConfig governs all outbound HTTP clients.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	MaxRedirects int           `yaml:"max_redirects"`
	InsecureTLS  bool          `yaml:"insecure_tls"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty"`
}

// CacheConfig governs the judgment cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir,omitempty"` // Empty means $HOME/.datahound/cache
	TTL     time.Duration `yaml:"ttl"`           // Judgment reuse window
}

// StoreConfig governs project persistence.
type StoreConfig struct {
	Dir string `yaml:"dir,omitempty"` // Empty means $HOME/.datahound
}

// DiscoveryConfig tunes the discovery pipeline.
type DiscoveryConfig struct {
	RelevanceThreshold int           `yaml:"relevance_threshold"` // Scores above this validate
	QualityTarget      int           `yaml:"quality_target"`      // Early-stop count of validated candidates
	MaxPerQuery        int           `yaml:"max_per_query"`       // Result cap per provider query
	ProviderTimeout    time.Duration `yaml:"provider_timeout"`    // Independent budget per provider
	ScoreDelay         time.Duration `yaml:"score_delay"`         // Pacing between judge calls
	LeaseTTL           time.Duration `yaml:"lease_ttl"`           // Advisory run lock duration
	SearchEndpoint     string        `yaml:"search_endpoint,omitempty"`
	SearchAPIKey       string        `yaml:"search_api_key,omitempty"`
	FeedTemplate       string        `yaml:"feed_template,omitempty"` // %s is the escaped query
}

// TrainingConfig tunes the training orchestrator and compute client.
type TrainingConfig struct {
	MaxRetries int           `yaml:"max_retries"` // Submissions per dataset
	RetryDelay time.Duration `yaml:"retry_delay"` // Pause between retries of one dataset
	JobTimeout time.Duration `yaml:"job_timeout"` // Wall-clock budget for one training job
	ComputeURL string        `yaml:"compute_url,omitempty"`
	ComputeKey string        `yaml:"compute_key,omitempty"`
	ModelsDir  string        `yaml:"models_dir,omitempty"` // Empty means $HOME/.datahound/models
	ResultsDir string        `yaml:"results_dir,omitempty"`
}

// LLMConfig selects and tunes the judge.
type LLMConfig struct {
	Provider     string        `yaml:"provider"`                // openai or openrouter
	Model        string        `yaml:"model"`                   // Default model for all calls
	ScoringModel string        `yaml:"scoring_model,omitempty"` // Cheaper model for relevance scoring
	APIKey       string        `yaml:"-"`                       // Env only, never written to disk
	BaseURL      string        `yaml:"base_url,omitempty"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxTokens    int           `yaml:"max_tokens"`
}

// CredibilityConfig extends the built-in host trust rules.
type CredibilityConfig struct {
	HighTrustHosts    []string `yaml:"high_trust_hosts,omitempty"`
	HighTrustSuffixes []string `yaml:"high_trust_suffixes,omitempty"`
}

// ServerConfig governs the REST surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// OutputConfig governs CLI rendering.
type OutputConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "datahound/0.1",
			MaxBodyBytes: 2_000_000,
			MaxRedirects: 3,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Discovery: DiscoveryConfig{
			RelevanceThreshold: 70,
			QualityTarget:      5,
			MaxPerQuery:        10,
			ProviderTimeout:    45 * time.Second,
			ScoreDelay:         500 * time.Millisecond,
			LeaseTTL:           2 * time.Minute,
		},
		Training: TrainingConfig{
			MaxRetries: 2,
			RetryDelay: 5 * time.Second,
			JobTimeout: 30 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:  "openrouter",
			Model:     "google/gemini-2.0-flash-001",
			Timeout:   60 * time.Second,
			MaxTokens: 1024,
		},
		Server: ServerConfig{
			Addr: ":8400",
		},
	}
}
