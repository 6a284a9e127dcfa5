package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration, loaded in four layers
// (defaults → ~/.ngoclaw/config.yaml → project-local config.yaml → env vars),
// the same layering Claude Code / Gemini CLI use.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	PythonEnv string          `mapstructure:"python_env"`
}

// DatabaseConfig selects the optional GORM-backed state/self-model
// persistence backend; the file-based backend needs no configuration here.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite | postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig configures the zap logger factory.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AgentConfig holds every knob the kernel, decision pipeline, and memory
// stack need to run one agent.
type AgentConfig struct {
	DefaultModel string              `mapstructure:"default_model"`
	Workspace    string              `mapstructure:"workspace"`
	MaxSteps     int                 `mapstructure:"max_steps"`
	AskMode      bool                `mapstructure:"ask_mode"`
	// DecisionMode selects the decision pipeline: "single_pass" or
	// "seven_factor". Seven-factor additionally requires memory.enabled,
	// since it reasons over the karma store.
	DecisionMode string              `mapstructure:"decision_mode"`
	Providers    []LLMProviderConfig `mapstructure:"providers"`

	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails"`
	Security   SecurityConfig   `mapstructure:"security"`
	Persist    PersistConfig    `mapstructure:"persist"`
}

// LLMProviderConfig configures one Go-native LLM provider.
type LLMProviderConfig struct {
	Name     string   `mapstructure:"name"`
	Type     string   `mapstructure:"type"`
	BaseURL  string   `mapstructure:"base_url"`
	APIKey   string   `mapstructure:"api_key"`
	Models   []string `mapstructure:"models"`
	Priority int      `mapstructure:"priority"`
}

// RuntimeConfig mirrors the KernelConfig fields a deployment may want to
// override.
type RuntimeConfig struct {
	ToolTimeout    time.Duration `mapstructure:"tool_timeout"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	MaxTokenBudget int64         `mapstructure:"max_token_budget"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseWait  time.Duration `mapstructure:"retry_base_wait"`
}

// GuardrailsConfig configures the context guard and Tanha loop detector.
type GuardrailsConfig struct {
	ContextMaxTokens    int     `mapstructure:"context_max_tokens"`
	ContextWarnRatio    float64 `mapstructure:"context_warn_ratio"`
	ContextHardRatio    float64 `mapstructure:"context_hard_ratio"`
	LoopWindowSize      int     `mapstructure:"loop_window_size"`
	LoopThreshold       int     `mapstructure:"loop_threshold"`
	LoopNameThreshold   int     `mapstructure:"loop_name_threshold"`
	SufferingGateThresh float64 `mapstructure:"suffering_gate_threshold"`
}

// SecurityConfig feeds the Sila ethics hook's denylist and veto budget.
type SecurityConfig struct {
	DenyList  []string `mapstructure:"deny_list"`
	MaxVetoes int      `mapstructure:"max_vetoes"`
}

// PersistConfig selects and tunes the AgentState/SelfModel persistence
// backend.
type PersistConfig struct {
	Backend     string        `mapstructure:"backend"` // file | gorm
	Dir         string        `mapstructure:"dir"`     // file backend root
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// MemoryConfig configures the embedding provider and vector store backing
// the skill/failure/karma retrieval and hierarchical memory layers.
type MemoryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	OllamaURL  string `mapstructure:"ollama_url"`
	EmbedModel string `mapstructure:"embed_model"`
	StorePath  string `mapstructure:"store_path"`
	StoreType  string `mapstructure:"store_type"` // lancedb | memory
}

// Load reads configuration from (in ascending priority) built-in defaults,
// ~/.ngoclaw/config.yaml, a project-local config.yaml, and NGOCLAW_*
// environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(HomeDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}

	v.SetEnvPrefix("NGOCLAW")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "ngoclaw.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("agent.max_steps", 50)
	v.SetDefault("agent.decision_mode", "single_pass")
	v.SetDefault("agent.runtime.tool_timeout", "60s")
	v.SetDefault("agent.runtime.run_timeout", "30m")
	v.SetDefault("agent.runtime.max_token_budget", 200000)
	v.SetDefault("agent.runtime.max_retries", 3)
	v.SetDefault("agent.runtime.retry_base_wait", "2s")

	v.SetDefault("agent.guardrails.context_max_tokens", 128000)
	v.SetDefault("agent.guardrails.context_warn_ratio", 0.75)
	v.SetDefault("agent.guardrails.context_hard_ratio", 0.92)
	v.SetDefault("agent.guardrails.loop_window_size", 10)
	v.SetDefault("agent.guardrails.loop_threshold", 3)
	v.SetDefault("agent.guardrails.loop_name_threshold", 8)
	v.SetDefault("agent.guardrails.suffering_gate_threshold", 0.6)

	v.SetDefault("agent.security.deny_list", []string{"rm -rf /", "os.RemoveAll", ":(){ :|:& };:"})
	v.SetDefault("agent.security.max_vetoes", 5)

	v.SetDefault("agent.persist.backend", "file")
	v.SetDefault("agent.persist.dir", filepath.Join(os.Getenv("HOME"), ".ngoclaw", "state"))
	v.SetDefault("agent.persist.min_interval", "5s")

	v.SetDefault("memory.enabled", false)
	v.SetDefault("memory.store_type", "memory")
	v.SetDefault("memory.store_path", filepath.Join(os.Getenv("HOME"), ".ngoclaw", "memory", "lancedb"))
}
