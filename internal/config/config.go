// Package config handles configuration loading and management for taskweave.
// It supports XDG config paths, project-level overrides, and environment variables.
//
// Every section carries json tags so the same structs serve as the
// JSON-serialisable configuration surface consumed by the core packages.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is wrapped by every error returned from Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for taskweave.
type Config struct {
	Dispatch  DispatchConfig  `mapstructure:"dispatch" json:"dispatch"`
	Injection InjectionConfig `mapstructure:"injection" json:"injection"`
	Slicing   SlicingConfig   `mapstructure:"slicing" json:"slicing"`
	Analysis  AnalysisConfig  `mapstructure:"analysis" json:"analysis"`
	Progress  ProgressConfig  `mapstructure:"progress" json:"progress"`
	Agents    AgentsConfig    `mapstructure:"agents" json:"agents"`
	Store     StoreConfig     `mapstructure:"store" json:"store"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging"`
}

// DispatchConfig controls concurrent execution of batch groups.
type DispatchConfig struct {
	// MaxConcurrentRequests caps in-flight agent calls.
	MaxConcurrentRequests int                 `mapstructure:"max_concurrent_requests" json:"maxConcurrentRequests"`
	Concurrency           ConcurrencyConfig   `mapstructure:"concurrency" json:"concurrency"`
	Retry                 RetryConfig         `mapstructure:"retry" json:"retry"`
	Timeout               TimeoutConfig       `mapstructure:"timeout" json:"timeout"`
	Fallback              FallbackConfig      `mapstructure:"fallback" json:"fallback"`
	ErrorHandling         ErrorHandlingConfig `mapstructure:"error_handling" json:"errorHandling"`
}

// ConcurrencyConfig holds the per-batch subtask limit.
type ConcurrencyConfig struct {
	MaxConcurrentSubtasks int `mapstructure:"max_concurrent_subtasks" json:"maxConcurrentSubtasks"`
}

// RetryConfig holds exponential backoff settings.
// The delay before retry n (0-based) is InitialDelayMs * BackoffMultiplier^n,
// capped at MaxDelayMs when that is positive.
type RetryConfig struct {
	MaxRetries        int     `mapstructure:"max_retries" json:"maxRetries"`
	InitialDelayMs    int     `mapstructure:"initial_delay_ms" json:"initialDelayMs"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier" json:"backoffMultiplier"`
	MaxDelayMs        int     `mapstructure:"max_delay_ms" json:"maxDelayMs"`
}

// TimeoutConfig holds per-attempt and per-batch deadlines. Zero disables.
type TimeoutConfig struct {
	SubtaskTimeoutMs int `mapstructure:"subtask_timeout_ms" json:"subtaskTimeoutMs"`
	BatchTimeoutMs   int `mapstructure:"batch_timeout_ms" json:"batchTimeoutMs"`
}

// SubtaskTimeout returns the per-attempt deadline.
func (t TimeoutConfig) SubtaskTimeout() time.Duration {
	return time.Duration(t.SubtaskTimeoutMs) * time.Millisecond
}

// BatchTimeout returns the per-batch deadline.
func (t TimeoutConfig) BatchTimeout() time.Duration {
	return time.Duration(t.BatchTimeoutMs) * time.Millisecond
}

// FallbackConfig lists the agents tried, in order, after retries are exhausted.
type FallbackConfig struct {
	Enabled bool     `mapstructure:"enabled" json:"enabled"`
	Agents  []string `mapstructure:"agents" json:"agents"`
}

// Batch failure policies.
const (
	BatchPolicyAny      = "any"
	BatchPolicyAll      = "all"
	BatchPolicyMajority = "majority"
)

// ErrorHandlingConfig decides what a failed subtask does to the workflow.
type ErrorHandlingConfig struct {
	HaltOnCriticalFailure bool `mapstructure:"halt_on_critical_failure" json:"haltOnCriticalFailure"`
	FallbackToSequential  bool `mapstructure:"fallback_to_sequential" json:"fallbackToSequential"`
	// CancelInFlightOnHalt cancels running calls on halt instead of letting them drain.
	CancelInFlightOnHalt bool `mapstructure:"cancel_in_flight_on_halt" json:"cancelInFlightOnHalt"`
	// BatchFailurePolicy is one of any, all, majority.
	BatchFailurePolicy string `mapstructure:"batch_failure_policy" json:"batchFailurePolicy"`
}

// InjectionConfig controls how isolated subtask prompts are assembled.
type InjectionConfig struct {
	IncludeTone           bool    `mapstructure:"include_tone" json:"includeTone"`
	IncludeFormat         bool    `mapstructure:"include_format" json:"includeFormat"`
	IncludeOriginalPrompt bool    `mapstructure:"include_original_prompt" json:"includeOriginalPrompt"`
	IncludeStyleGuide     bool    `mapstructure:"include_style_guide" json:"includeStyleGuide"`
	CustomPrefix          string  `mapstructure:"custom_prefix" json:"customPrefix"`
	CustomSuffix          string  `mapstructure:"custom_suffix" json:"customSuffix"`
	MaxContextLength      int     `mapstructure:"max_context_length" json:"maxContextLength"`
	RelevanceThreshold    float64 `mapstructure:"relevance_threshold" json:"relevanceThreshold"`
}

// Slicing granularities and strategies.
const (
	GranularityCoarse = "coarse"
	GranularityMedium = "medium"
	GranularityFine   = "fine"

	StrategySemantic   = "semantic"
	StrategyStructural = "structural"
	StrategyBalanced   = "balanced"
)

// SlicingConfig controls prompt decomposition.
type SlicingConfig struct {
	Granularity         string `mapstructure:"granularity" json:"granularity"`
	MaxSubtasks         int    `mapstructure:"max_subtasks" json:"maxSubtasks"`
	MaxTokensPerSubtask int    `mapstructure:"max_tokens_per_subtask" json:"maxTokensPerSubtask"`
	SlicingStrategy     string `mapstructure:"slicing_strategy" json:"slicingStrategy"`
	PreserveContext     bool   `mapstructure:"preserve_context" json:"preserveContext"`
}

// AnalysisConfig holds the thresholds that route a prompt to large-prompt slicing.
type AnalysisConfig struct {
	MaxTokens     int     `mapstructure:"max_tokens" json:"maxTokens"`
	MaxSentences  int     `mapstructure:"max_sentences" json:"maxSentences"`
	MaxParagraphs int     `mapstructure:"max_paragraphs" json:"maxParagraphs"`
	MaxComplexity float64 `mapstructure:"max_complexity" json:"maxComplexity"`
	// CacheSize is the number of analyses kept in memory.
	CacheSize int `mapstructure:"cache_size" json:"cacheSize"`
}

// ProgressConfig controls checkpoint validation and delivery.
type ProgressConfig struct {
	EnableProgressValidation bool `mapstructure:"enable_progress_validation" json:"enableProgressValidation"`
	RealTimeUpdates          bool `mapstructure:"real_time_updates" json:"realTimeUpdates"`
	FlushIntervalMs          int  `mapstructure:"flush_interval_ms" json:"flushIntervalMs"`
}

// FlushInterval returns the buffered delivery tick.
func (p ProgressConfig) FlushInterval() time.Duration {
	return time.Duration(p.FlushIntervalMs) * time.Millisecond
}

// AgentsConfig selects and configures agent backends.
type AgentsConfig struct {
	Default   string          `mapstructure:"default" json:"default"`
	Anthropic AnthropicConfig `mapstructure:"anthropic" json:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai" json:"openai"`
	Gemini    GeminiConfig    `mapstructure:"gemini" json:"gemini"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key" json:"-"`
	Model      string `mapstructure:"model" json:"model"`
	MaxTokens  int    `mapstructure:"max_tokens" json:"maxTokens"`
	UseBedrock bool   `mapstructure:"use_bedrock" json:"useBedrock"`
	AWSRegion  string `mapstructure:"aws_region" json:"awsRegion,omitempty"`
	AWSProfile string `mapstructure:"aws_profile" json:"awsProfile,omitempty"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey    string `mapstructure:"api_key" json:"-"`
	Model     string `mapstructure:"model" json:"model"`
	BaseURL   string `mapstructure:"base_url" json:"baseUrl,omitempty"`
	MaxTokens int    `mapstructure:"max_tokens" json:"maxTokens"`
}

// GeminiConfig holds Google GenAI settings.
type GeminiConfig struct {
	APIKey    string `mapstructure:"api_key" json:"-"`
	Model     string `mapstructure:"model" json:"model"`
	MaxTokens int    `mapstructure:"max_tokens" json:"maxTokens"`
}

// StoreConfig locates the result database.
type StoreConfig struct {
	// Path is the SQLite file. Relative paths resolve against the project root.
	Path string `mapstructure:"path" json:"path"`
}

// LoggingConfig controls zap logger construction.
type LoggingConfig struct {
	Level string `mapstructure:"level" json:"level"`
	File  string `mapstructure:"file" json:"file,omitempty"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (WEAVE_*, ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY)
// 2. Project config (.weave.yaml in current directory or parent)
// 3. User config (~/.config/weave/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("agents.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("agents.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("agents.gemini.api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Agents.Anthropic.APIKey = expandEnv(cfg.Agents.Anthropic.APIKey)
	cfg.Agents.OpenAI.APIKey = expandEnv(cfg.Agents.OpenAI.APIKey)
	cfg.Agents.Gemini.APIKey = expandEnv(cfg.Agents.Gemini.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveTo writes the configuration to path. API keys are written as given,
// so ${VAR} references survive a save.
func SaveTo(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	d := cfg.Dispatch
	v.Set("dispatch.max_concurrent_requests", d.MaxConcurrentRequests)
	v.Set("dispatch.concurrency.max_concurrent_subtasks", d.Concurrency.MaxConcurrentSubtasks)
	v.Set("dispatch.retry.max_retries", d.Retry.MaxRetries)
	v.Set("dispatch.retry.initial_delay_ms", d.Retry.InitialDelayMs)
	v.Set("dispatch.retry.backoff_multiplier", d.Retry.BackoffMultiplier)
	v.Set("dispatch.retry.max_delay_ms", d.Retry.MaxDelayMs)
	v.Set("dispatch.timeout.subtask_timeout_ms", d.Timeout.SubtaskTimeoutMs)
	v.Set("dispatch.timeout.batch_timeout_ms", d.Timeout.BatchTimeoutMs)
	v.Set("dispatch.fallback.enabled", d.Fallback.Enabled)
	v.Set("dispatch.fallback.agents", d.Fallback.Agents)
	v.Set("dispatch.error_handling.halt_on_critical_failure", d.ErrorHandling.HaltOnCriticalFailure)
	v.Set("dispatch.error_handling.fallback_to_sequential", d.ErrorHandling.FallbackToSequential)
	v.Set("dispatch.error_handling.cancel_in_flight_on_halt", d.ErrorHandling.CancelInFlightOnHalt)
	v.Set("dispatch.error_handling.batch_failure_policy", d.ErrorHandling.BatchFailurePolicy)

	in := cfg.Injection
	v.Set("injection.include_tone", in.IncludeTone)
	v.Set("injection.include_format", in.IncludeFormat)
	v.Set("injection.include_original_prompt", in.IncludeOriginalPrompt)
	v.Set("injection.include_style_guide", in.IncludeStyleGuide)
	v.Set("injection.custom_prefix", in.CustomPrefix)
	v.Set("injection.custom_suffix", in.CustomSuffix)
	v.Set("injection.max_context_length", in.MaxContextLength)
	v.Set("injection.relevance_threshold", in.RelevanceThreshold)

	s := cfg.Slicing
	v.Set("slicing.granularity", s.Granularity)
	v.Set("slicing.max_subtasks", s.MaxSubtasks)
	v.Set("slicing.max_tokens_per_subtask", s.MaxTokensPerSubtask)
	v.Set("slicing.slicing_strategy", s.SlicingStrategy)
	v.Set("slicing.preserve_context", s.PreserveContext)

	a := cfg.Analysis
	v.Set("analysis.max_tokens", a.MaxTokens)
	v.Set("analysis.max_sentences", a.MaxSentences)
	v.Set("analysis.max_paragraphs", a.MaxParagraphs)
	v.Set("analysis.max_complexity", a.MaxComplexity)
	v.Set("analysis.cache_size", a.CacheSize)

	p := cfg.Progress
	v.Set("progress.enable_progress_validation", p.EnableProgressValidation)
	v.Set("progress.real_time_updates", p.RealTimeUpdates)
	v.Set("progress.flush_interval_ms", p.FlushIntervalMs)

	ag := cfg.Agents
	v.Set("agents.default", ag.Default)
	v.Set("agents.anthropic.api_key", ag.Anthropic.APIKey)
	v.Set("agents.anthropic.model", ag.Anthropic.Model)
	v.Set("agents.anthropic.max_tokens", ag.Anthropic.MaxTokens)
	v.Set("agents.anthropic.use_bedrock", ag.Anthropic.UseBedrock)
	v.Set("agents.anthropic.aws_region", ag.Anthropic.AWSRegion)
	v.Set("agents.anthropic.aws_profile", ag.Anthropic.AWSProfile)
	v.Set("agents.openai.api_key", ag.OpenAI.APIKey)
	v.Set("agents.openai.model", ag.OpenAI.Model)
	v.Set("agents.openai.base_url", ag.OpenAI.BaseURL)
	v.Set("agents.openai.max_tokens", ag.OpenAI.MaxTokens)
	v.Set("agents.gemini.api_key", ag.Gemini.APIKey)
	v.Set("agents.gemini.model", ag.Gemini.Model)
	v.Set("agents.gemini.max_tokens", ag.Gemini.MaxTokens)

	v.Set("store.path", cfg.Store.Path)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.file", cfg.Logging.File)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	def := Default()

	v.SetDefault("dispatch.max_concurrent_requests", def.Dispatch.MaxConcurrentRequests)
	v.SetDefault("dispatch.concurrency.max_concurrent_subtasks", def.Dispatch.Concurrency.MaxConcurrentSubtasks)
	v.SetDefault("dispatch.retry.max_retries", def.Dispatch.Retry.MaxRetries)
	v.SetDefault("dispatch.retry.initial_delay_ms", def.Dispatch.Retry.InitialDelayMs)
	v.SetDefault("dispatch.retry.backoff_multiplier", def.Dispatch.Retry.BackoffMultiplier)
	v.SetDefault("dispatch.retry.max_delay_ms", def.Dispatch.Retry.MaxDelayMs)
	v.SetDefault("dispatch.timeout.subtask_timeout_ms", def.Dispatch.Timeout.SubtaskTimeoutMs)
	v.SetDefault("dispatch.timeout.batch_timeout_ms", def.Dispatch.Timeout.BatchTimeoutMs)
	v.SetDefault("dispatch.fallback.enabled", def.Dispatch.Fallback.Enabled)
	v.SetDefault("dispatch.fallback.agents", def.Dispatch.Fallback.Agents)
	v.SetDefault("dispatch.error_handling.halt_on_critical_failure", def.Dispatch.ErrorHandling.HaltOnCriticalFailure)
	v.SetDefault("dispatch.error_handling.fallback_to_sequential", def.Dispatch.ErrorHandling.FallbackToSequential)
	v.SetDefault("dispatch.error_handling.cancel_in_flight_on_halt", def.Dispatch.ErrorHandling.CancelInFlightOnHalt)
	v.SetDefault("dispatch.error_handling.batch_failure_policy", def.Dispatch.ErrorHandling.BatchFailurePolicy)

	v.SetDefault("injection.include_tone", def.Injection.IncludeTone)
	v.SetDefault("injection.include_format", def.Injection.IncludeFormat)
	v.SetDefault("injection.include_original_prompt", def.Injection.IncludeOriginalPrompt)
	v.SetDefault("injection.include_style_guide", def.Injection.IncludeStyleGuide)
	v.SetDefault("injection.custom_prefix", "")
	v.SetDefault("injection.custom_suffix", "")
	v.SetDefault("injection.max_context_length", def.Injection.MaxContextLength)
	v.SetDefault("injection.relevance_threshold", def.Injection.RelevanceThreshold)

	v.SetDefault("slicing.granularity", def.Slicing.Granularity)
	v.SetDefault("slicing.max_subtasks", def.Slicing.MaxSubtasks)
	v.SetDefault("slicing.max_tokens_per_subtask", def.Slicing.MaxTokensPerSubtask)
	v.SetDefault("slicing.slicing_strategy", def.Slicing.SlicingStrategy)
	v.SetDefault("slicing.preserve_context", def.Slicing.PreserveContext)

	v.SetDefault("analysis.max_tokens", def.Analysis.MaxTokens)
	v.SetDefault("analysis.max_sentences", def.Analysis.MaxSentences)
	v.SetDefault("analysis.max_paragraphs", def.Analysis.MaxParagraphs)
	v.SetDefault("analysis.max_complexity", def.Analysis.MaxComplexity)
	v.SetDefault("analysis.cache_size", def.Analysis.CacheSize)

	v.SetDefault("progress.enable_progress_validation", def.Progress.EnableProgressValidation)
	v.SetDefault("progress.real_time_updates", def.Progress.RealTimeUpdates)
	v.SetDefault("progress.flush_interval_ms", def.Progress.FlushIntervalMs)

	v.SetDefault("agents.default", def.Agents.Default)
	v.SetDefault("agents.anthropic.api_key", "")
	v.SetDefault("agents.anthropic.model", def.Agents.Anthropic.Model)
	v.SetDefault("agents.anthropic.max_tokens", def.Agents.Anthropic.MaxTokens)
	v.SetDefault("agents.anthropic.use_bedrock", false)
	v.SetDefault("agents.anthropic.aws_region", "")
	v.SetDefault("agents.anthropic.aws_profile", "")
	v.SetDefault("agents.openai.api_key", "")
	v.SetDefault("agents.openai.model", def.Agents.OpenAI.Model)
	v.SetDefault("agents.openai.base_url", "")
	v.SetDefault("agents.openai.max_tokens", def.Agents.OpenAI.MaxTokens)
	v.SetDefault("agents.gemini.api_key", "")
	v.SetDefault("agents.gemini.model", def.Agents.Gemini.Model)
	v.SetDefault("agents.gemini.max_tokens", def.Agents.Gemini.MaxTokens)

	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.file", "")
}

// getUserConfigDir returns the XDG config directory for taskweave.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "weave")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "weave")
	}
	return filepath.Join(home, ".config", "weave")
}

// findProjectConfig searches for .weave.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".weave.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Dispatch: DispatchConfig{
			MaxConcurrentRequests: 4,
			Concurrency:           ConcurrencyConfig{MaxConcurrentSubtasks: 4},
			Retry: RetryConfig{
				MaxRetries:        3,
				InitialDelayMs:    1000,
				BackoffMultiplier: 2,
				MaxDelayMs:        30000,
			},
			Timeout: TimeoutConfig{
				SubtaskTimeoutMs: 300000,
				BatchTimeoutMs:   1800000,
			},
			Fallback: FallbackConfig{Enabled: false, Agents: []string{}},
			ErrorHandling: ErrorHandlingConfig{
				HaltOnCriticalFailure: false,
				FallbackToSequential:  true,
				CancelInFlightOnHalt:  false,
				BatchFailurePolicy:    BatchPolicyAny,
			},
		},
		Injection: InjectionConfig{
			IncludeTone:           true,
			IncludeFormat:         true,
			IncludeOriginalPrompt: true,
			IncludeStyleGuide:     true,
			MaxContextLength:      2000,
			RelevanceThreshold:    1,
		},
		Slicing: SlicingConfig{
			Granularity:         GranularityMedium,
			MaxSubtasks:         20,
			MaxTokensPerSubtask: 1000,
			SlicingStrategy:     StrategySemantic,
			PreserveContext:     true,
		},
		Analysis: AnalysisConfig{
			MaxTokens:     4000,
			MaxSentences:  50,
			MaxParagraphs: 10,
			MaxComplexity: 0.8,
			CacheSize:     128,
		},
		Progress: ProgressConfig{
			EnableProgressValidation: true,
			RealTimeUpdates:          true,
			FlushIntervalMs:          250,
		},
		Agents: AgentsConfig{
			Default:   "anthropic",
			Anthropic: AnthropicConfig{Model: "claude-sonnet-4-20250514", MaxTokens: 4096},
			OpenAI:    OpenAIConfig{Model: "gpt-4.1-mini", MaxTokens: 4096},
			Gemini:    GeminiConfig{Model: "gemini-2.5-flash", MaxTokens: 4096},
		},
		Store:   StoreConfig{Path: filepath.Join(".weave", "results.db")},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string

	if c.Dispatch.MaxConcurrentRequests < 1 {
		problems = append(problems, "dispatch.max_concurrent_requests must be at least 1")
	}
	if c.Dispatch.Concurrency.MaxConcurrentSubtasks < 1 {
		problems = append(problems, "dispatch.concurrency.max_concurrent_subtasks must be at least 1")
	}
	if c.Dispatch.Retry.MaxRetries < 0 {
		problems = append(problems, "dispatch.retry.max_retries must not be negative")
	}
	if c.Dispatch.Retry.InitialDelayMs < 0 {
		problems = append(problems, "dispatch.retry.initial_delay_ms must not be negative")
	}
	if c.Dispatch.Retry.BackoffMultiplier < 1 {
		problems = append(problems, "dispatch.retry.backoff_multiplier must be at least 1")
	}
	if c.Dispatch.Timeout.SubtaskTimeoutMs < 0 || c.Dispatch.Timeout.BatchTimeoutMs < 0 {
		problems = append(problems, "dispatch.timeout values must not be negative")
	}
	switch c.Dispatch.ErrorHandling.BatchFailurePolicy {
	case BatchPolicyAny, BatchPolicyAll, BatchPolicyMajority:
	default:
		problems = append(problems, fmt.Sprintf("dispatch.error_handling.batch_failure_policy %q is not one of any, all, majority", c.Dispatch.ErrorHandling.BatchFailurePolicy))
	}
	if c.Injection.MaxContextLength < 1 {
		problems = append(problems, "injection.max_context_length must be at least 1")
	}
	switch c.Slicing.Granularity {
	case GranularityCoarse, GranularityMedium, GranularityFine:
	default:
		problems = append(problems, fmt.Sprintf("slicing.granularity %q is not one of coarse, medium, fine", c.Slicing.Granularity))
	}
	switch c.Slicing.SlicingStrategy {
	case StrategySemantic, StrategyStructural, StrategyBalanced:
	default:
		problems = append(problems, fmt.Sprintf("slicing.slicing_strategy %q is not one of semantic, structural, balanced", c.Slicing.SlicingStrategy))
	}
	if c.Slicing.MaxSubtasks < 1 {
		problems = append(problems, "slicing.max_subtasks must be at least 1")
	}
	if c.Slicing.MaxTokensPerSubtask < 1 {
		problems = append(problems, "slicing.max_tokens_per_subtask must be at least 1")
	}
	if c.Analysis.MaxTokens < 1 || c.Analysis.MaxSentences < 1 || c.Analysis.MaxParagraphs < 1 {
		problems = append(problems, "analysis thresholds must be at least 1")
	}
	if c.Analysis.MaxComplexity <= 0 || c.Analysis.MaxComplexity > 1 {
		problems = append(problems, "analysis.max_complexity must be in (0, 1]")
	}
	if c.Progress.RealTimeUpdates && c.Progress.FlushIntervalMs < 1 {
		problems = append(problems, "progress.flush_interval_ms must be positive when real_time_updates is on")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
