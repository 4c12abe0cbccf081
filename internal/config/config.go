package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	DefaultMaxIterations = 5
	DefaultMaxTokens     = 3000
	DefaultServerAddress = ":8090"
	DefaultConfigPath    = "config.json"
)

// DefaultSystemPrompt is sent ahead of every conversation.
const DefaultSystemPrompt = `You are a helpful assistant for a store that sells guitars.

When a user asks for a guitar recommendation:
1. FIRST: Use the getGuitars tool (no parameters needed)
2. SECOND: Use the recommendGuitar tool with the ID of the guitar you want to recommend
3. NEVER write a recommendation directly - ALWAYS use the recommendGuitar tool

Only recommend guitars from the inventory returned by getGuitars. The recommendGuitar
tool renders the guitar with a buy button, so do not describe the guitar yourself.`

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Chat        ChatConfig                `json:"chat"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Tools       ToolsConfig               `json:"tools"`
	Speech      SpeechConfig              `json:"speech"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout"` // minutes
}

// ChatConfig controls the streaming request adapter.
type ChatConfig struct {
	SystemPrompt  string `json:"system_prompt"`
	MaxIterations int    `json:"max_iterations"`
	MaxTokens     int    `json:"max_tokens"`
}

// ProviderConfig overrides the default model or endpoint of one provider.
// Credentials always come from the environment.
type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	TurnTTL  int    `json:"turn_ttl"` // seconds
}

type ToolsConfig struct {
	WebSearch bool `json:"web_search"`
}

type SpeechConfig struct {
	BaseURL            string `json:"base_url"`
	TranscriptionModel string `json:"transcription_model"`
	SpeechModel        string `json:"speech_model"`
	Voice              string `json:"voice"`
}

// Default returns a configuration usable without any config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error: built-in defaults are used.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Chat.MaxIterations < 0 {
		return nil, fmt.Errorf("chat.max_iterations must not be negative")
	}
	cfg.applyDefaults()

	for name, db := range cfg.Databases {
		if name == "sqlite3" && db.DSN != "" && !filepath.IsAbs(db.DSN) && !isSpecialSQLiteDSN(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if c.BasicConfig.MinWorkers <= 0 {
		c.BasicConfig.MinWorkers = 2
	}
	if c.BasicConfig.MaxWorkers < c.BasicConfig.MinWorkers {
		c.BasicConfig.MaxWorkers = 32
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 64
	}
	if c.BasicConfig.WorkerIdleTimeout <= 0 {
		c.BasicConfig.WorkerIdleTimeout = 5
	}
	if c.Chat.SystemPrompt == "" {
		c.Chat.SystemPrompt = DefaultSystemPrompt
	}
	if c.Chat.MaxIterations == 0 {
		c.Chat.MaxIterations = DefaultMaxIterations
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = DefaultMaxTokens
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if _, ok := c.Databases["sqlite3"]; !ok {
		c.Databases["sqlite3"] = DatabaseConfig{DSN: "file:streamchat.db?_foreign_keys=on"}
	}
	if c.Redis.TurnTTL <= 0 {
		c.Redis.TurnTTL = 300
	}
	if c.Speech.TranscriptionModel == "" {
		c.Speech.TranscriptionModel = "whisper-1"
	}
	if c.Speech.SpeechModel == "" {
		c.Speech.SpeechModel = "tts-1"
	}
	if c.Speech.Voice == "" {
		c.Speech.Voice = "alloy"
	}
}

func isSpecialSQLiteDSN(dsn string) bool {
	return dsn == ":memory:" || len(dsn) >= 5 && dsn[:5] == "file:"
}
