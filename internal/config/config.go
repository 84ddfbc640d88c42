package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	SerpAPI   SerpAPIConfig   `yaml:"serpapi" mapstructure:"serpapi"`
	Linkup    LinkupConfig    `yaml:"linkup" mapstructure:"linkup"`
	Mail      MailConfig      `yaml:"mail" mapstructure:"mail"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds the LLM oracle settings. An empty key disables every
// LLM-backed path and switches on the deterministic fallbacks.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds the optional embedding collaborator settings.
type OpenAIConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	EmbeddingModel string `yaml:"embedding_model" mapstructure:"embedding_model"`
}

// SerpAPIConfig holds the places-search collaborator settings.
type SerpAPIConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// LinkupConfig holds the search-with-answer collaborator settings.
type LinkupConfig struct {
	Key      string        `yaml:"key" mapstructure:"key"`
	BaseURL  string        `yaml:"base_url" mapstructure:"base_url"`
	Only     bool          `yaml:"only" mapstructure:"only"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Cooldown time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

// MailConfig holds SMTP/IMAP settings for the inquiry mail loop.
type MailConfig struct {
	SMTPHost     string `yaml:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port" mapstructure:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user" mapstructure:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password" mapstructure:"smtp_password"`
	IMAPHost     string `yaml:"imap_host" mapstructure:"imap_host"`
	IMAPPort     int    `yaml:"imap_port" mapstructure:"imap_port"`
	FromName     string `yaml:"from_name" mapstructure:"from_name"`
	FromEmail    string `yaml:"from_email" mapstructure:"from_email"`
}

// Configured reports whether outbound mail can be sent at all.
func (m MailConfig) Configured() bool {
	return m.SMTPHost != "" && m.SMTPUser != "" && m.FromEmail != ""
}

// SearchConfig holds the search pipeline tunables.
type SearchConfig struct {
	TextScoreThreshold   float64       `yaml:"text_score_threshold" mapstructure:"text_score_threshold"`
	VectorScoreThreshold float64       `yaml:"vector_score_threshold" mapstructure:"vector_score_threshold"`
	Deadline             time.Duration `yaml:"deadline" mapstructure:"deadline"`
	DiscoveryTimeout     time.Duration `yaml:"discovery_timeout" mapstructure:"discovery_timeout"`
	DefaultRadiusMeters  float64       `yaml:"default_radius_meters" mapstructure:"default_radius_meters"`
}

// ScrapeConfig holds the extraction cascade tunables.
type ScrapeConfig struct {
	TopLinks          int `yaml:"top_links" mapstructure:"top_links"`
	TopSublinks       int `yaml:"top_sublinks" mapstructure:"top_sublinks"`
	MinOverlapForLLM  int `yaml:"min_overlap_for_llm" mapstructure:"min_overlap_for_llm"`
	MinOverlapForWeb  int `yaml:"min_overlap_for_web" mapstructure:"min_overlap_for_web"`
	MaxLLMTextChars   int `yaml:"max_llm_text_chars" mapstructure:"max_llm_text_chars"`
	RequestsPerSecond int `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ServerConfig configures the HTTP facade.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RATERIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("linkup.base_url", "https://api.linkup.so/v1")
	v.SetDefault("linkup.timeout", 15*time.Second)
	v.SetDefault("linkup.cooldown", 2*time.Minute)
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.imap_port", 993)
	v.SetDefault("mail.from_name", "Rate Right")
	v.SetDefault("search.text_score_threshold", 0.10)
	v.SetDefault("search.vector_score_threshold", 0.75)
	v.SetDefault("search.deadline", 12*time.Second)
	v.SetDefault("search.discovery_timeout", 8*time.Second)
	v.SetDefault("search.default_radius_meters", 5000)
	v.SetDefault("scrape.top_links", 3)
	v.SetDefault("scrape.top_sublinks", 2)
	v.SetDefault("scrape.min_overlap_for_llm", 2)
	v.SetDefault("scrape.min_overlap_for_web", 2)
	v.SetDefault("scrape.max_llm_text_chars", 8000)
	v.SetDefault("scrape.requests_per_second", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
