package vibelet

import (
	"encoding/json"
	"os"
	"path/filepath"

	defaults "github.com/vibecode/vibelet/default"
)

// Config represents the vibelet configuration.
type Config struct {
	Version    int              `json:"version"`
	Generation GenerationConfig `json:"generation"`
	Chat       ChatConfig       `json:"chat"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	Templates  TemplatesConfig  `json:"templates"`
	Server     ServerConfig     `json:"server"`
}

// GenerationConfig holds settings for the code-completion model.
type GenerationConfig struct {
	BaseURL         string  `json:"base_url"`
	APIKey          string  `json:"api_key"`
	APIType         string  `json:"api_type"` // "chat_completions" or "gemini"
	Model           string  `json:"model"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
	Temperature     float64 `json:"temperature"`
	CacheTTLSeconds int     `json:"cache_ttl_seconds,omitempty"`
}

// ChatConfig holds settings for the chat assistant. Empty connection fields
// fall back to the generation settings.
type ChatConfig struct {
	BaseURL      string  `json:"base_url,omitempty"`
	APIKey       string  `json:"api_key,omitempty"`
	APIType      string  `json:"api_type,omitempty"`
	Model        string  `json:"model"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature"`
	HistoryLimit int     `json:"history_limit,omitempty"`
}

// EmbeddingConfig holds settings for the related-code embedding API.
type EmbeddingConfig struct {
	BaseURL     string `json:"base_url"`
	APIKey      string `json:"api_key"`
	Model       string `json:"model"`
	TTLMinutes  int    `json:"ttl_minutes,omitempty"`
	MaxSnippets int    `json:"max_snippets,omitempty"`
	// SearchTimeoutMs bounds the query embedding made during a completion.
	SearchTimeoutMs int `json:"search_timeout_ms,omitempty"`
}

// TemplatesConfig locates playground template blobs and the playground store.
type TemplatesConfig struct {
	Dir            string `json:"dir"`
	Catalog        string `json:"catalog,omitempty"`
	CacheSize      int    `json:"cache_size,omitempty"`
	DatabaseURL    string `json:"database_url,omitempty"`
	MinioEndpoint  string `json:"minio_endpoint,omitempty"`
	MinioBucket    string `json:"minio_bucket,omitempty"`
	MinioAccessKey string `json:"minio_access_key,omitempty"`
	MinioSecretKey string `json:"minio_secret_key,omitempty"`
	MinioUseSSL    bool   `json:"minio_use_ssl,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr       string `json:"addr"`
	SandboxDir string `json:"sandbox_dir,omitempty"`
}

// ConfigDir returns the config directory path.
// Resolution order: $VIBELET_CONFIG_DIR > $XDG_CONFIG_HOME/vibelet > ~/.config/vibelet
func ConfigDir() string {
	if dir := os.Getenv("VIBELET_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "vibelet")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "vibelet-config")
	}
	return filepath.Join(home, ".config", "vibelet")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// PromptPath returns the custom completion prompt path.
func PromptPath() string {
	return filepath.Join(ConfigDir(), "prompt.md")
}

// DefaultConfig returns the default configuration from the embedded default_config.json.
func DefaultConfig() *Config {
	var cfg Config
	if err := json.Unmarshal(defaults.DefaultConfigJSON, &cfg); err != nil {
		panic("vibelet: invalid embedded default_config.json: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes a JSON config over the defaults. Absent fields keep
// their default; empty strings and zero sizes are defaulted too, while an
// explicit zero temperature is kept.
func ParseConfig(data []byte) (*Config, error) {
	cfg := *DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	d := DefaultConfig()
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = d.Generation.BaseURL
	}
	if cfg.Generation.APIType == "" {
		cfg.Generation.APIType = d.Generation.APIType
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = d.Generation.Model
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = d.Generation.MaxTokens
	}
	if cfg.Generation.CacheTTLSeconds == 0 {
		cfg.Generation.CacheTTLSeconds = d.Generation.CacheTTLSeconds
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = d.Chat.Model
	}
	if cfg.Chat.MaxTokens == 0 {
		cfg.Chat.MaxTokens = d.Chat.MaxTokens
	}
	if cfg.Chat.HistoryLimit == 0 {
		cfg.Chat.HistoryLimit = d.Chat.HistoryLimit
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = d.Embedding.Model
	}
	if cfg.Embedding.TTLMinutes == 0 {
		cfg.Embedding.TTLMinutes = d.Embedding.TTLMinutes
	}
	if cfg.Embedding.MaxSnippets == 0 {
		cfg.Embedding.MaxSnippets = d.Embedding.MaxSnippets
	}
	if cfg.Embedding.SearchTimeoutMs <= 0 {
		cfg.Embedding.SearchTimeoutMs = d.Embedding.SearchTimeoutMs
	}
	if cfg.Templates.Dir == "" {
		cfg.Templates.Dir = d.Templates.Dir
	}
	if cfg.Templates.CacheSize == 0 {
		cfg.Templates.CacheSize = d.Templates.CacheSize
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}

	return &cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	if ResolveGenerationAPIKey(cfg) == "" {
		warnings = append(warnings, "generation API key is not configured; completions will return a placeholder and chat will fail")
	}
	switch cfg.Generation.APIType {
	case "chat_completions", "gemini":
	default:
		warnings = append(warnings, "unknown generation api_type "+cfg.Generation.APIType+"; falling back to chat_completions")
	}
	if cfg.Templates.MinioEndpoint != "" && cfg.Templates.MinioBucket == "" {
		warnings = append(warnings, "minio_endpoint is set but minio_bucket is empty; templates will be read from dir")
	}
	return warnings
}

// ResolveGenerationBaseURL returns the generation API base URL.
// Priority: $VIBELET_GENERATION_API_BASE_URL env > config value.
func ResolveGenerationBaseURL(cfg *Config) string {
	if url := os.Getenv("VIBELET_GENERATION_API_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Generation.BaseURL
	}
	return ""
}

// ResolveGenerationAPIKey returns the generation API key.
// Priority: $VIBELET_GENERATION_API_KEY env > $GROQ_API_KEY env > config value.
func ResolveGenerationAPIKey(cfg *Config) string {
	if key := os.Getenv("VIBELET_GENERATION_API_KEY"); key != "" {
		return key
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Generation.APIKey
	}
	return ""
}

// ResolveGenerationModel returns the generation model name.
// Priority: $VIBELET_GENERATION_MODEL env > config value.
func ResolveGenerationModel(cfg *Config) string {
	if model := os.Getenv("VIBELET_GENERATION_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Generation.Model
	}
	return ""
}

// ResolveChatBaseURL returns the chat API base URL, defaulting to the generation one.
func ResolveChatBaseURL(cfg *Config) string {
	if cfg != nil && cfg.Chat.BaseURL != "" {
		return cfg.Chat.BaseURL
	}
	return ResolveGenerationBaseURL(cfg)
}

// ResolveChatAPIKey returns the chat API key, defaulting to the generation one.
func ResolveChatAPIKey(cfg *Config) string {
	if cfg != nil && cfg.Chat.APIKey != "" {
		return cfg.Chat.APIKey
	}
	return ResolveGenerationAPIKey(cfg)
}

// ResolveChatAPIType returns the chat API type, defaulting to the generation one.
func ResolveChatAPIType(cfg *Config) string {
	if cfg != nil && cfg.Chat.APIType != "" {
		return cfg.Chat.APIType
	}
	if cfg != nil {
		return cfg.Generation.APIType
	}
	return ""
}

// ResolveEmbeddingBaseURL returns the embedding API base URL.
// Priority: $VIBELET_EMBEDDING_API_BASE_URL env > config value.
func ResolveEmbeddingBaseURL(cfg *Config) string {
	if url := os.Getenv("VIBELET_EMBEDDING_API_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Embedding.BaseURL
	}
	return ""
}

// ResolveEmbeddingAPIKey returns the embedding API key.
// Priority: $VIBELET_EMBEDDING_API_KEY env > config value.
func ResolveEmbeddingAPIKey(cfg *Config) string {
	if key := os.Getenv("VIBELET_EMBEDDING_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Embedding.APIKey
	}
	return ""
}

// ResolveEmbeddingModel returns the embedding model name.
// Priority: $VIBELET_EMBEDDING_MODEL env > config value.
func ResolveEmbeddingModel(cfg *Config) string {
	if model := os.Getenv("VIBELET_EMBEDDING_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Embedding.Model
	}
	return ""
}

// EmbeddingEnabled returns true when both base_url and api_key are configured for embedding.
func EmbeddingEnabled(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return ResolveEmbeddingBaseURL(cfg) != "" && ResolveEmbeddingAPIKey(cfg) != ""
}

// ResolveTemplateDir returns the directory holding template blobs.
// Priority: $VIBELET_TEMPLATE_DIR env > config value.
func ResolveTemplateDir(cfg *Config) string {
	if dir := os.Getenv("VIBELET_TEMPLATE_DIR"); dir != "" {
		return dir
	}
	if cfg != nil {
		return cfg.Templates.Dir
	}
	return ""
}

// ResolveDatabaseURL returns the playground store DSN.
// Priority: $VIBELET_DATABASE_URL env > $DATABASE_URL env > config value.
func ResolveDatabaseURL(cfg *Config) string {
	if dsn := os.Getenv("VIBELET_DATABASE_URL"); dsn != "" {
		return dsn
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	if cfg != nil {
		return cfg.Templates.DatabaseURL
	}
	return ""
}

// ResolveMinio returns the object storage settings for template blobs, with
// $VIBELET_MINIO_ENDPOINT, $VIBELET_MINIO_BUCKET, $VIBELET_MINIO_ACCESS_KEY and
// $VIBELET_MINIO_SECRET_KEY overriding the config.
func ResolveMinio(cfg *Config) (endpoint, bucket, accessKey, secretKey string, useSSL bool) {
	if cfg != nil {
		endpoint = cfg.Templates.MinioEndpoint
		bucket = cfg.Templates.MinioBucket
		accessKey = cfg.Templates.MinioAccessKey
		secretKey = cfg.Templates.MinioSecretKey
		useSSL = cfg.Templates.MinioUseSSL
	}
	if v := os.Getenv("VIBELET_MINIO_ENDPOINT"); v != "" {
		endpoint = v
	}
	if v := os.Getenv("VIBELET_MINIO_BUCKET"); v != "" {
		bucket = v
	}
	if v := os.Getenv("VIBELET_MINIO_ACCESS_KEY"); v != "" {
		accessKey = v
	}
	if v := os.Getenv("VIBELET_MINIO_SECRET_KEY"); v != "" {
		secretKey = v
	}
	return endpoint, bucket, accessKey, secretKey, useSSL
}

// ResolveAddr returns the HTTP listen address.
// Priority: $VIBELET_ADDR env > $PORT env (as ":<port>") > config value.
func ResolveAddr(cfg *Config) string {
	if addr := os.Getenv("VIBELET_ADDR"); addr != "" {
		return addr
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	if cfg != nil {
		return cfg.Server.Addr
	}
	return ":3000"
}

// ResolveSandboxDir returns the parent directory for sandbox containers.
// Priority: $VIBELET_SANDBOX_DIR env > config value > os.TempDir().
func ResolveSandboxDir(cfg *Config) string {
	if dir := os.Getenv("VIBELET_SANDBOX_DIR"); dir != "" {
		return dir
	}
	if cfg != nil && cfg.Server.SandboxDir != "" {
		return cfg.Server.SandboxDir
	}
	return os.TempDir()
}
