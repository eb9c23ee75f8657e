package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	TranscriptNone   = "none"
	TranscriptMemory = "memory"
	TranscriptSQLite = "sqlite"
	TranscriptMongo  = "mongo"
)

// Config holds the application configuration
type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"`
	Server     ServerConfig     `mapstructure:"server"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Knowledge  KnowledgeConfig  `mapstructure:"knowledge"`
	Log        LogConfig        `mapstructure:"log"`
}

// LLMConfig holds the model provider configuration
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	SystemInstruction string        `mapstructure:"system_instruction"`
	Timeout           time.Duration `mapstructure:"timeout"`
	VerifyCredential  bool          `mapstructure:"verify_credential"`
	ValidateModel     bool          `mapstructure:"validate_model"`
	MaxToolRounds     int           `mapstructure:"max_tool_rounds"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// TranscriptConfig selects where committed exchanges are recorded.
type TranscriptConfig struct {
	Backend         string `mapstructure:"backend"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDB         string `mapstructure:"mongo_db"`
	MongoCollection string `mapstructure:"mongo_collection"`
}

// KnowledgeConfig points at a directory of documents exposed through the search_docs tool.
type KnowledgeConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig holds logging options
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.system_instruction", "")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.verify_credential", false)
	v.SetDefault("llm.validate_model", false)
	v.SetDefault("llm.max_tool_rounds", 5)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8000")

	v.SetDefault("transcript.backend", TranscriptNone)
	v.SetDefault("transcript.sqlite_path", "transcripts.db")
	v.SetDefault("transcript.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("transcript.mongo_db", "chat")
	v.SetDefault("transcript.mongo_collection", "transcripts")

	v.SetDefault("knowledge.dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// providerKeyEnv lists the provider-specific credential variables consulted
// when llm.api_key is unset. A key is only ever taken from its own provider.
var providerKeyEnv = map[string][]string{
	ProviderGemini: {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	ProviderOpenAI: {"OPENAI_API_KEY"},
}

func providerKey(provider string) string {
	return "credentials." + provider
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string][]string{
		"llm.api_key":                 {"LLM_API_KEY"},
		"llm.model":                   {"LLM_MODEL", "MODEL"},
		"server.port":                 {"SERVER_PORT", "HTTP_PORT"},
		"transcript.mongo_uri":        {"TRANSCRIPT_MONGO_URI", "MONGODB_URI"},
		"transcript.mongo_db":         {"TRANSCRIPT_MONGO_DB", "MONGODB_DB"},
		"transcript.mongo_collection": {"TRANSCRIPT_MONGO_COLLECTION", "MONGODB_COLLECTION"},
	}
	for provider, envs := range providerKeyEnv {
		bindings[providerKey(provider)] = envs
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("config: bind %s: %w", key, err)
		}
	}
	return nil
}

// Load reads configuration from defaults, an optional YAML file and the environment.
// With an empty path, config.yaml in the working directory is used when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v.GetString(providerKey(cfg.LLM.Provider))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks enumerated fields and bounds.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("config: unknown llm.provider %q", c.LLM.Provider)
	}

	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("config: llm.timeout must be positive, got %s", c.LLM.Timeout)
	}

	if c.LLM.MaxToolRounds <= 0 {
		return fmt.Errorf("config: llm.max_tool_rounds must be positive, got %d", c.LLM.MaxToolRounds)
	}

	switch c.Transcript.Backend {
	case TranscriptNone, TranscriptMemory, TranscriptSQLite, TranscriptMongo:
	default:
		return fmt.Errorf("config: unknown transcript.backend %q", c.Transcript.Backend)
	}

	return nil
}
