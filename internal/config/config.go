// Package config loads shiftbot configuration from a YAML file with
// environment overrides. A missing file yields defaults; a malformed file
// is an error. Fatal cross-field checks live in Validate.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shiftbot/internal/fault"
)

// Config holds all shiftbot configuration.
type Config struct {
	// Name is the agent's display identity, used in the system prompt
	// and the HTTP User-Agent.
	Name string `yaml:"name"`

	API     APIConfig     `yaml:"api"`
	Wallet  WalletConfig  `yaml:"wallet"`
	LLM     LLMConfig     `yaml:"llm"`
	MCP     MCPConfig     `yaml:"mcp"`
	Build   BuildConfig   `yaml:"build"`
	KB      KBConfig      `yaml:"kb"`
	Store   StoreConfig   `yaml:"store"`
	Run     RunConfig     `yaml:"run"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the scoring service client.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
	// Retries bounds transport-level retries for idempotent GETs.
	// Submissions are never auto-retried.
	Retries int `yaml:"retries"`
}

// WalletConfig configures signing key material. Secret (base58) takes
// precedence over the keypair file.
type WalletConfig struct {
	Secret      string `yaml:"secret"`
	KeypairPath string `yaml:"keypair_path"`
}

// LLMConfig configures the reasoning engine client.
type LLMConfig struct {
	APIKey         string   `yaml:"api_key"`
	Model          string   `yaml:"model"`
	FallbackModels []string `yaml:"fallback_models"`
	BaseURL        string   `yaml:"base_url"`
	Temperature    float64  `yaml:"temperature"`
	MaxTokens      int      `yaml:"max_tokens"`
	Timeout        string   `yaml:"timeout"`
	// AuthMode is "api_key" or "oauth". With "oauth" the bearer token
	// comes from the cached token file, refreshed as needed.
	AuthMode  string `yaml:"auth_mode"`
	TokenFile string `yaml:"token_file"`
}

// MCPServerConfig describes one remote tool provider. A server with a
// Command is spawned as a subprocess speaking stdio; otherwise URL is a
// streamable HTTP endpoint.
type MCPServerConfig struct {
	Name    string   `yaml:"name"`
	URL     string   `yaml:"url"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Timeout string   `yaml:"timeout"`
}

// GetTimeout returns the per-call timeout for this server.
func (c MCPServerConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// MCPConfig configures remote tool discovery.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
	// Servers defaults to the scoring service's /mcp endpoint when empty.
	Servers []MCPServerConfig `yaml:"servers"`
}

// BuildConfig configures the Anchor build pipeline.
type BuildConfig struct {
	WorkspaceRoot string `yaml:"workspace_root"`
	AnchorBin     string `yaml:"anchor_bin"`
	Timeout       string `yaml:"timeout"`
	// OutputCap bounds the in-memory copy of subprocess output, bytes.
	OutputCap int `yaml:"output_cap"`
	// TailLines is how many trailing output lines feed build errors.
	TailLines int `yaml:"tail_lines"`
}

// KBConfig configures the knowledge base.
type KBConfig struct {
	Enabled bool `yaml:"enabled"`
	// Provider selects the embedding backend: "genai" or "ollama".
	Provider    string `yaml:"provider"`
	EmbedModel  string `yaml:"embed_model"`
	EmbedAPIKey string `yaml:"embed_api_key"`
	// Endpoint is the Ollama server address when provider is "ollama".
	Endpoint string `yaml:"endpoint"`
}

// StoreConfig configures run and knowledge persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// RunConfig bounds a single agent run.
type RunConfig struct {
	MaxTurns              int    `yaml:"max_turns"`
	TransportRetries      int    `yaml:"transport_retries"`
	MaxValidationFailures int    `yaml:"max_validation_failures"`
	Timeout               string `yaml:"timeout"`
	// SystemPrompt overrides the built-in prompt when non-empty.
	SystemPrompt string `yaml:"system_prompt"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "shiftbot",

		API: APIConfig{
			BaseURL: "https://ai-api.blueshift.gg",
			Timeout: "30s",
			Retries: 3,
		},

		Wallet: WalletConfig{
			KeypairPath: "~/.config/solana/id.json",
		},

		LLM: LLMConfig{
			Model:       "gpt-4o",
			BaseURL:     "https://api.openai.com/v1",
			Temperature: 0.2,
			MaxTokens:   8192,
			Timeout:     "120s",
			AuthMode:    "api_key",
			TokenFile:   "~/.shiftbot/llm_token.json",
		},

		MCP: MCPConfig{
			Enabled: true,
		},

		Build: BuildConfig{
			WorkspaceRoot: "artifacts/anchor",
			AnchorBin:     "anchor",
			Timeout:       "10m",
			OutputCap:     16 * 1024,
			TailLines:     40,
		},

		KB: KBConfig{
			Enabled:    true,
			Provider:   "genai",
			EmbedModel: "gemini-embedding-001",
			Endpoint:   "http://localhost:11434",
		},

		Store: StoreConfig{
			DatabasePath: "data/shiftbot.db",
		},

		Run: RunConfig{
			MaxTurns:              25,
			TransportRetries:      3,
			MaxValidationFailures: 2,
			Timeout:               "30m",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file returns
// defaults. Environment overrides apply after the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SHIFTBOT_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("SHIFTBOT_WALLET_SECRET"); v != "" {
		c.Wallet.Secret = v
	}
	if v := os.Getenv("SHIFTBOT_WALLET_KEYPAIR"); v != "" {
		c.Wallet.KeypairPath = v
	}
	if v := os.Getenv("SHIFTBOT_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("SHIFTBOT_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("SHIFTBOT_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.KB.EmbedAPIKey == "" {
		c.KB.EmbedAPIKey = v
	}
	if v := os.Getenv("SHIFTBOT_KB_PROVIDER"); v != "" {
		c.KB.Provider = v
	}
	if v := os.Getenv("SHIFTBOT_DB"); v != "" {
		c.Store.DatabasePath = v
	}
}

// normalize canonicalizes derived fields. Submission paths are built by
// joining onto the base URL, so a trailing slash here would double up.
func (c *Config) normalize() {
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	c.LLM.BaseURL = strings.TrimRight(c.LLM.BaseURL, "/")

	if c.MCP.Enabled && len(c.MCP.Servers) == 0 && c.API.BaseURL != "" {
		c.MCP.Servers = []MCPServerConfig{{
			Name:    "blueshift",
			URL:     c.API.BaseURL + "/mcp",
			Timeout: "30s",
		}}
	}
}

// Validate performs fatal startup checks. Wallet material is checked by
// wallet.Load, which has the full precedence rules.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fault.Configf("api.base_url must be set")
	}
	if _, err := url.Parse(c.API.BaseURL); err != nil {
		return fault.Configf("api.base_url is not a valid URL: %v", err)
	}
	if c.Run.MaxTurns <= 0 {
		return fault.Configf("run.max_turns must be positive, got %d", c.Run.MaxTurns)
	}
	if c.LLM.AuthMode != "api_key" && c.LLM.AuthMode != "oauth" {
		return fault.Configf("llm.auth_mode must be api_key or oauth, got %q", c.LLM.AuthMode)
	}
	if c.LLM.AuthMode == "api_key" && c.LLM.APIKey == "" {
		return fault.Configf("llm.api_key is required (set SHIFTBOT_LLM_API_KEY or OPENAI_API_KEY)")
	}
	return nil
}

// GetAPITimeout returns the scoring service timeout as a duration.
func (c *Config) GetAPITimeout() time.Duration {
	return parseDuration(c.API.Timeout, 30*time.Second)
}

// GetLLMTimeout returns the reasoning engine timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetBuildTimeout returns the toolchain timeout as a duration.
func (c *Config) GetBuildTimeout() time.Duration {
	return parseDuration(c.Build.Timeout, 10*time.Minute)
}

// GetRunTimeout returns the wall-clock ceiling for one agent run.
func (c *Config) GetRunTimeout() time.Duration {
	return parseDuration(c.Run.Timeout, 30*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}
