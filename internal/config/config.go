package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for dealtalk.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"  yaml:"server"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Scraper ScraperConfig `mapstructure:"scraper" yaml:"scraper"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	AI      AIConfig      `mapstructure:"ai"      yaml:"ai"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// FetcherConfig controls the page fetcher.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"` // http or browser
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
}

// ScraperConfig controls the pagination walk.
type ScraperConfig struct {
	MaxPages  int           `mapstructure:"max_pages"  yaml:"max_pages"`
	PageDelay time.Duration `mapstructure:"page_delay" yaml:"page_delay"`
	SortOrder string        `mapstructure:"sort_order" yaml:"sort_order"`
}

// StorageConfig controls where thread records are kept.
type StorageConfig struct {
	DataDir string      `mapstructure:"data_dir" yaml:"data_dir"`
	Mongo   MongoConfig `mapstructure:"mongo"    yaml:"mongo"`
}

// MongoConfig controls the optional archive mirror. The file store remains
// the owner of thread state; the archive is write-behind.
type MongoConfig struct {
	Enabled    bool   `mapstructure:"enabled"    yaml:"enabled"`
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// AIConfig controls the chat adapter. APIKey is never read from config files;
// it comes from the GOOGLE_API_KEY environment variable at load time.
type AIConfig struct {
	Model          string        `mapstructure:"model"           yaml:"model"`
	CharBudget     int           `mapstructure:"char_budget"     yaml:"char_budget"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	APIKey         string        `mapstructure:"-" yaml:"-"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			RequestTimeout:  30 * time.Second,
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Scraper: ScraperConfig{
			MaxPages:  10,
			PageDelay: 500 * time.Millisecond,
			SortOrder: "oldest",
		},
		Storage: StorageConfig{
			DataDir: "./scraped_data",
			Mongo: MongoConfig{
				Enabled:    false,
				Database:   "dealtalk",
				Collection: "threads",
			},
		},
		AI: AIConfig{
			Model:          "gemini-2.0-flash",
			CharBudget:     30000,
			RequestTimeout: 120 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
