// Package cli wires the datahound commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"datahound/internal/llm"
	"datahound/internal/model"
)

var (
	cfgFile  string
	verbose  bool
	storeDir string
	cacheDir string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "datahound",
	Short: "Datahound - dataset discovery and training orchestration",
	Long: `Datahound turns a plain-language ML task into a trained model.

Given a prompt like "identify bird species from photos", it parses the
intent, fans the search out across dataset providers, scores each hit
with an LLM judge, crawls the best candidates to verify their actual
content, and hands the winning dataset to a training service.

Every run is persisted as a project, so discovery can be inspected,
resumed, and reported on after the fact.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number and build information for Datahound.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("datahound v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.datahound/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", "", "project store directory (default: $HOME/.datahound/projects)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "judgment cache directory (default: $HOME/.datahound/cache)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".datahound"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match DATAHOUND_*
	viper.SetEnvPrefix("DATAHOUND")
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig layers the config file found by viper over the built-in
// defaults. Flags overlay the result inside each command.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	cfg.Output.Verbose = verbose

	if path := viper.ConfigFileUsed(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if storeDir != "" {
		cfg.Store.Dir = storeDir
	}
	if cacheDir != "" {
		cfg.Cache.Dir = cacheDir
	}
	if err := resolveDirs(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveDirs fills the empty data directories under $HOME/.datahound.
func resolveDirs(cfg *model.Config) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("find home directory: %w", err)
	}
	base := filepath.Join(home, ".datahound")
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = filepath.Join(base, "projects")
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = filepath.Join(base, "cache")
	}
	if cfg.Training.ModelsDir == "" {
		cfg.Training.ModelsDir = filepath.Join(base, "models")
	}
	if cfg.Training.ResultsDir == "" {
		cfg.Training.ResultsDir = filepath.Join(base, "results")
	}
	return nil
}

// buildJudge resolves the API key from the environment and constructs
// the configured judge. Returns nil without error when no provider is
// configured; callers decide whether that is fatal.
func buildJudge(cfg *model.Config) (llm.Judge, error) {
	if cfg.LLM.Provider == "" {
		return nil, nil
	}
	if cfg.LLM.APIKey == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "openrouter":
			cfg.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
		}
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("DATAHOUND_API_KEY")
		}
	}
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no API key for LLM provider %q (set OPENAI_API_KEY, OPENROUTER_API_KEY, or DATAHOUND_API_KEY)", cfg.LLM.Provider)
	}
	return llm.NewJudge(llm.ConfigFromModel(cfg.LLM))
}

// logLevel maps the verbose flag onto the slog level, keeping
// structured logging out of the human output on quiet runs.
func logLevel() string {
	if verbose {
		return "debug"
	}
	return "warn"
}
