package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"paperlens/internal/core"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        App                    `mapstructure:"app"`
	Feeds      Feeds                  `mapstructure:"feeds"`
	Interests  []core.InterestKeyword `mapstructure:"interests"`
	Directions Directions             `mapstructure:"directions"`
	LLM        LLM                    `mapstructure:"llm"`
	Digest     Digest                 `mapstructure:"digest"`
	Backfill   Backfill               `mapstructure:"backfill"`
	Logging    Logging                `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	DataDir    string `mapstructure:"data_dir"`
	ConfigFile string `mapstructure:"config_file"`
}

// Feeds holds source adapter configuration
type Feeds struct {
	Primary    PrimaryFeed   `mapstructure:"primary"`
	Community  CommunityFeed `mapstructure:"community"`
	CustomRSS  []string      `mapstructure:"custom_rss"`
	UserAgent  string        `mapstructure:"user_agent"`
	Timeout    string        `mapstructure:"timeout"`
	MaxResults int           `mapstructure:"max_results"`
}

// PrimaryFeed configures the arXiv-style preprint API source
type PrimaryFeed struct {
	BaseURL    string   `mapstructure:"base_url"`
	Categories []string `mapstructure:"categories"`
	Keywords   []string `mapstructure:"keywords"` // Optional upstream query terms
	SortBy     string   `mapstructure:"sort_by"`
}

// CommunityFeed configures the community daily-picks source
type CommunityFeed struct {
	Enabled      bool   `mapstructure:"enabled"`
	BaseURL      string `mapstructure:"base_url"`
	FoldIn       bool   `mapstructure:"fold_in"`       // Include community-only items in the scoring pool
	FilterRepeat bool   `mapstructure:"filter_repeat"` // Hide items already shown on a previous day
}

// Directions holds the topical direction definitions
type Directions struct {
	Enabled bool                   `mapstructure:"enabled"`
	TopK    int                    `mapstructure:"top_k"`
	Defs    []core.DirectionConfig `mapstructure:"defs"`
}

// LLM holds LLM annotation configuration
type LLM struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
	ScoreTopN   int     `mapstructure:"score_top_n"`
	Digest      bool    `mapstructure:"digest"` // Generate the free-text digest narrative
}

// Digest holds digest rendering and trending configuration
type Digest struct {
	OutputFolder    string  `mapstructure:"output_folder"`
	TrendingEnabled bool    `mapstructure:"trending_enabled"`
	TrendingMin     float64 `mapstructure:"trending_min"`
	TrendingMax     int     `mapstructure:"trending_max"`
	FullTextEnabled bool    `mapstructure:"fulltext_enabled"`
	FullTextBaseURL string  `mapstructure:"fulltext_base_url"` // %s receives the normalized paper ID
	FullTextTopN    int     `mapstructure:"fulltext_top_n"`
	FullTextChars   int     `mapstructure:"fulltext_chars"`
	DedupKeepDays   int     `mapstructure:"dedup_keep_days"`
}

// Backfill holds backfill guardrails
type Backfill struct {
	MaxDays int `mapstructure:"max_days"`
}

// Logging holds logging configuration
type Logging struct {
	Level string `mapstructure:"level"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".paperlens")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PAPERLENS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.data_dir", ".paperlens")

	// Feed defaults
	viper.SetDefault("feeds.primary.base_url", "https://export.arxiv.org/api/query")
	viper.SetDefault("feeds.primary.categories", []string{"cs.LG", "cs.CL", "cs.AI"})
	viper.SetDefault("feeds.primary.sort_by", "submittedDate")
	viper.SetDefault("feeds.community.enabled", true)
	viper.SetDefault("feeds.community.base_url", "https://huggingface.co/papers")
	viper.SetDefault("feeds.community.fold_in", true)
	viper.SetDefault("feeds.community.filter_repeat", true)
	viper.SetDefault("feeds.user_agent", "paperlens/1.0")
	viper.SetDefault("feeds.timeout", "30s")
	viper.SetDefault("feeds.max_results", 100)

	// Direction defaults
	viper.SetDefault("directions.enabled", true)
	viper.SetDefault("directions.top_k", 3)

	// LLM defaults
	viper.SetDefault("llm.model", "gemini-2.5-flash")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.max_tokens", 8192)
	viper.SetDefault("llm.score_top_n", 20)
	viper.SetDefault("llm.digest", true)

	// Digest defaults
	viper.SetDefault("digest.output_folder", "digests")
	viper.SetDefault("digest.trending_enabled", true)
	viper.SetDefault("digest.trending_min", 5)
	viper.SetDefault("digest.trending_max", 5)
	viper.SetDefault("digest.fulltext_enabled", false)
	viper.SetDefault("digest.fulltext_base_url", "https://arxiv.org/abs/%s")
	viper.SetDefault("digest.fulltext_top_n", 3)
	viper.SetDefault("digest.fulltext_chars", 4000)
	viper.SetDefault("digest.dedup_keep_days", 90)

	// Backfill defaults
	viper.SetDefault("backfill.max_days", 31)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("llm.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures configuration is coherent. The LLM key is not
// required here: runs without one skip annotation rather than failing.
func validateConfig(config *Config) error {
	var errors []string

	if config.Feeds.Timeout != "" {
		if _, err := time.ParseDuration(config.Feeds.Timeout); err != nil {
			return fmt.Errorf("invalid duration for feeds.timeout: %s", config.Feeds.Timeout)
		}
	}

	for _, kw := range config.Interests {
		if kw.Keyword == "" {
			errors = append(errors, "interest keyword must not be empty")
			continue
		}
		if kw.Weight < 1 || kw.Weight > 5 {
			errors = append(errors, fmt.Sprintf("interest %q: weight must be 1-5, got %d", kw.Keyword, kw.Weight))
		}
	}

	seen := map[string]bool{}
	for _, d := range config.Directions.Defs {
		if d.Name == "" {
			errors = append(errors, "direction name must not be empty")
			continue
		}
		if seen[d.Name] {
			errors = append(errors, fmt.Sprintf("duplicate direction %q", d.Name))
		}
		seen[d.Name] = true
	}

	if config.Backfill.MaxDays < 1 {
		errors = append(errors, fmt.Sprintf("backfill.max_days must be >= 1, got %d", config.Backfill.MaxDays))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Convenience getters for commonly used configuration values
func GetApp() App                          { return Get().App }
func GetFeeds() Feeds                      { return Get().Feeds }
func GetInterests() []core.InterestKeyword { return Get().Interests }
func GetDirections() Directions            { return Get().Directions }
func GetLLM() LLM                          { return Get().LLM }
func GetDigest() Digest                    { return Get().Digest }
func GetBackfill() Backfill                { return Get().Backfill }
func GetLogging() Logging                  { return Get().Logging }

// FeedTimeout returns the parsed feed timeout, falling back to 30s.
func FeedTimeout() time.Duration {
	d, err := time.ParseDuration(Get().Feeds.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
