package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Chat        ChatConfig        `mapstructure:"chat"`
	Infoleg     SourceConfig      `mapstructure:"infoleg"`
	SAIJ        SourceConfig      `mapstructure:"saij"`
	Sources     SourcesConfig     `mapstructure:"sources"`
	Cache       CacheConfig       `mapstructure:"cache"`
	LLM         LLMConfig         `mapstructure:"llm"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore"`
	RAG         RAGConfig         `mapstructure:"rag"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// BackendConfig holds the chat backend connection settings
type BackendConfig struct {
	URL        string        `mapstructure:"url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"-"`
	TimeoutStr string        `mapstructure:"timeout"` // For parsing string duration
	MaxRetries int           `mapstructure:"max_retries"`
}

// ChatConfig holds defaults attached to every send
type ChatConfig struct {
	Type string `mapstructure:"type"`
	Tone string `mapstructure:"tone"`
}

// SourceConfig holds settings for a public legislation source
type SourceConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"-"`
	TimeoutStr string        `mapstructure:"timeout"`
}

// SourcesConfig holds settings shared by the legislation sources
type SourcesConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// CacheConfig holds document lookup cache settings
type CacheConfig struct {
	TTL    time.Duration `mapstructure:"-"`
	TTLStr string        `mapstructure:"ttl"`
}

// LLMConfig holds the language model used by the local RAG helper
type LLMConfig struct {
	Provider string `mapstructure:"provider"` // ollama, openai
	Model    string `mapstructure:"model"`
	URL      string `mapstructure:"url"`
	APIKey   string `mapstructure:"api_key"`
}

// VectorStoreConfig holds vector store configuration
type VectorStoreConfig struct {
	Enabled           bool                      `mapstructure:"enabled"`
	Collection        string                    `mapstructure:"collection"`
	PersistenceDir    string                    `mapstructure:"persistence_dir"`
	EnablePersistence bool                      `mapstructure:"enable_persistence"`
	Embedder          VectorStoreEmbedderConfig `mapstructure:"embedder"`
	Indexer           VectorStoreIndexerConfig  `mapstructure:"indexer"`
}

// VectorStoreEmbedderConfig holds embedder configuration
type VectorStoreEmbedderConfig struct {
	Provider string `mapstructure:"provider"` // ollama, openai, mock
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
}

// VectorStoreIndexerConfig holds document indexer configuration
type VectorStoreIndexerConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// RAGConfig holds retrieval settings
type RAGConfig struct {
	TopK             int     `mapstructure:"top_k"`
	ScoreThreshold   float32 `mapstructure:"score_threshold"`
	MaxContextLength int     `mapstructure:"max_context_length"`
}

var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// IsLoaded reports whether Load has succeeded
func IsLoaded() bool {
	return cfg != nil
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./.normachat")
		viper.AddConfigPath(filepath.Join(xdgConfigHome, ".normachat"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.AutomaticEnv()
	bindEnvironmentVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and environment still apply
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := processDurations(loaded); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	cfg = loaded
	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("backend.url", "http://localhost:8000")
	viper.SetDefault("backend.token", "")
	viper.SetDefault("backend.timeout", "120s")
	viper.SetDefault("backend.max_retries", 2)

	viper.SetDefault("chat.type", "normativa_nacional")
	viper.SetDefault("chat.tone", "")

	viper.SetDefault("logging.log_file", "./.normachat/system.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("infoleg.url", "https://servicios.infoleg.gob.ar")
	viper.SetDefault("infoleg.timeout", "30s")
	viper.SetDefault("saij.url", "https://www.saij.gob.ar")
	viper.SetDefault("saij.timeout", "30s")
	viper.SetDefault("sources.rate_per_second", 2.0)
	viper.SetDefault("sources.burst", 1)

	viper.SetDefault("cache.ttl", "0s")

	viper.SetDefault("llm.provider", "ollama")
	viper.SetDefault("llm.model", "llama3.1:8b")
	viper.SetDefault("llm.url", "http://localhost:11434")
	viper.SetDefault("llm.api_key", "")

	viper.SetDefault("vectorstore.enabled", true)
	viper.SetDefault("vectorstore.collection", "normas")
	viper.SetDefault("vectorstore.persistence_dir", "./.normachat/vectorstore")
	viper.SetDefault("vectorstore.enable_persistence", true)
	viper.SetDefault("vectorstore.embedder.provider", "ollama")
	viper.SetDefault("vectorstore.embedder.model", "nomic-embed-text")
	viper.SetDefault("vectorstore.embedder.base_url", "http://localhost:11434")
	viper.SetDefault("vectorstore.embedder.api_key", "")
	viper.SetDefault("vectorstore.indexer.chunk_size", 1000)
	viper.SetDefault("vectorstore.indexer.chunk_overlap", 200)

	viper.SetDefault("rag.top_k", 4)
	viper.SetDefault("rag.score_threshold", 0.0)
	viper.SetDefault("rag.max_context_length", 6000)
}

// bindEnvironmentVariables binds specific environment variables to Viper keys
func bindEnvironmentVariables() {
	viper.BindEnv("backend.url", "NORMACHAT_BACKEND_URL")
	viper.BindEnv("backend.token", "NORMACHAT_BACKEND_TOKEN")
	viper.BindEnv("backend.timeout", "NORMACHAT_BACKEND_TIMEOUT")
	viper.BindEnv("chat.type", "NORMACHAT_CHAT_TYPE")
	viper.BindEnv("chat.tone", "NORMACHAT_CHAT_TONE")
	viper.BindEnv("logging.log_file", "NORMACHAT_LOG_FILE")
	viper.BindEnv("logging.level", "NORMACHAT_LOG_LEVEL")
	viper.BindEnv("llm.provider", "NORMACHAT_LLM_PROVIDER")
	viper.BindEnv("llm.model", "NORMACHAT_LLM_MODEL")
	viper.BindEnv("llm.url", "OLLAMA_HOST")
	viper.BindEnv("llm.api_key", "OPENAI_API_KEY")
	viper.BindEnv("vectorstore.embedder.api_key", "OPENAI_API_KEY")
	viper.BindEnv("vectorstore.embedder.base_url", "OLLAMA_HOST")
	viper.BindEnv("vectorstore.persistence_dir", "NORMACHAT_VECTORSTORE_DIR")
}

// processDurations converts string durations to time.Duration
func processDurations(c *Config) error {
	var err error
	if c.Backend.Timeout, err = parseDuration("backend.timeout", c.Backend.TimeoutStr, 120*time.Second); err != nil {
		return err
	}
	if c.Infoleg.Timeout, err = parseDuration("infoleg.timeout", c.Infoleg.TimeoutStr, 30*time.Second); err != nil {
		return err
	}
	if c.SAIJ.Timeout, err = parseDuration("saij.timeout", c.SAIJ.TimeoutStr, 30*time.Second); err != nil {
		return err
	}
	if c.Cache.TTL, err = parseDuration("cache.ttl", c.Cache.TTLStr, 0); err != nil {
		return err
	}
	return nil
}

func parseDuration(key, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// Reset clears the loaded configuration (used by tests)
func Reset() {
	cfg = nil
	viper.Reset()
}
