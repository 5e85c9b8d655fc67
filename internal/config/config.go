package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the AI completion service.
const (
	DefaultAIEndpoint = "https://models.inference.ai.azure.com"
	DefaultAIModel    = "gpt-4o"
)

// Config holds application configuration.
type Config struct {
	// AIEndpoint is the base URL of the OpenAI-compatible completion service.
	// Requests go to {AIEndpoint}/chat/completions.
	AIEndpoint string `json:"ai_endpoint,omitempty"`

	// AIModel is the model identifier sent with every completion request.
	AIModel string `json:"ai_model,omitempty"`

	// AIToken is the bearer credential for the completion service.
	// Usually supplied through MOODLOG_AI_TOKEN (or GITHUB_TOKEN) rather than the file.
	// Empty means the AI features run in fallback mode.
	AIToken string `json:"ai_token,omitempty"`

	// AITimeoutSeconds bounds a single completion HTTP request.
	AITimeoutSeconds int `json:"ai_timeout_seconds,omitempty"`

	// SessionTTLHours is how long a sign-in token stays valid without activity.
	SessionTTLHours int `json:"session_ttl_hours,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// AllowedPaths are extra directories `moodlog export` may write into,
	// besides <base>/exports. Only absolute paths are honoured.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// WebBind and WebPort are the default listen address for `moodlog serve`.
	WebBind string `json:"web_bind,omitempty"`
	WebPort int    `json:"web_port,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AIEndpoint:       DefaultAIEndpoint,
		AIModel:          DefaultAIModel,
		AITimeoutSeconds: 60,
		SessionTTLHours:  24 * 30,
		WebBind:          "127.0.0.1",
		WebPort:          8787,
	}
}

// AITimeout returns AITimeoutSeconds as a duration.
func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutSeconds) * time.Second
}

// SessionTTL returns SessionTTLHours as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// Load loads configuration from baseDir/config.json merged over defaults,
// then applies environment overrides (after reading .env files in baseDir
// and the working directory).
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.moodlog.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	LoadDotEnv(filepath.Join(baseDir, ".env"), ".env")
	ApplyEnv(cfg, os.Getenv)
	return cfg, nil
}

// LoadDotEnv loads the given .env files, skipping ones that don't exist.
// Variables already set in the environment are not overridden.
func LoadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

// ApplyEnv overlays environment variables onto cfg.
// getenv is injectable for tests.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv("MOODLOG_AI_ENDPOINT")); v != "" {
		cfg.AIEndpoint = v
	}
	if v := strings.TrimSpace(getenv("MOODLOG_AI_MODEL")); v != "" {
		cfg.AIModel = v
	}
	if v := strings.TrimSpace(getenv("MOODLOG_AI_TOKEN")); v != "" {
		cfg.AIToken = v
	} else if cfg.AIToken == "" {
		cfg.AIToken = strings.TrimSpace(getenv("GITHUB_TOKEN"))
	}
	if n, ok := envInt(getenv, "MOODLOG_AI_TIMEOUT_SECONDS"); ok {
		cfg.AITimeoutSeconds = n
	}
	if n, ok := envInt(getenv, "MOODLOG_SESSION_TTL_HOURS"); ok {
		cfg.SessionTTLHours = n
	}
	if v := strings.TrimSpace(getenv("MOODLOG_WEB_BIND")); v != "" {
		cfg.WebBind = v
	}
	if n, ok := envInt(getenv, "MOODLOG_WEB_PORT"); ok {
		cfg.WebPort = n
	}
}

// envInt reads a positive integer variable; invalid values are ignored.
func envInt(getenv func(string) string, key string) (int, bool) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.AIEndpoint = pickString(overlay.AIEndpoint, base.AIEndpoint)
	result.AIModel = pickString(overlay.AIModel, base.AIModel)
	result.AIToken = pickString(overlay.AIToken, base.AIToken)
	result.WebBind = pickString(overlay.WebBind, base.WebBind)

	result.AITimeoutSeconds = pickInt(overlay.AITimeoutSeconds, base.AITimeoutSeconds)
	result.SessionTTLHours = pickInt(overlay.SessionTTLHours, base.SessionTTLHours)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)
	result.WebPort = pickInt(overlay.WebPort, base.WebPort)

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
