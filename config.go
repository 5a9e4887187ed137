package iterata

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/hyperengineering/iterata/internal/store"
)

// Storage backend identifiers for Config.Storage.
const (
	StorageMarkdown = "markdown"
	StorageSQLite   = "sqlite"
)

// ConfigFileName is the well-known config file looked up in the base path.
const ConfigFileName = "iterata.yaml"

// Config configures a correction Loop.
type Config struct {
	// BasePath is the root directory of the correction store.
	// Defaults to ./corrections.
	BasePath string `koanf:"base_path"`

	// SkillPath is the directory skill packages are generated into.
	// Skill generation is disabled when empty.
	SkillPath string `koanf:"skill_path"`

	// Storage selects the storage backend: "markdown" (default) or "sqlite".
	Storage string `koanf:"storage"`

	// AutoExplain invokes the configured explainer backend immediately after
	// each logged correction that has no human explanation.
	AutoExplain bool `koanf:"auto_explain"`

	// Backend configures the explainer used for auto-explanation.
	Backend BackendConfig `koanf:"backend"`

	// MinOccurrences is the minimum group size for pattern detection.
	// Defaults to 3.
	MinOccurrences int `koanf:"min_occurrences"`

	// MinCorrectionsForSkill gates readiness and skill generation.
	// Defaults to 10.
	MinCorrectionsForSkill int `koanf:"min_corrections_for_skill"`

	// Debug enables verbose logging of storage and explainer activity.
	Debug bool `koanf:"debug"`

	// DebugLogPath is the path to write debug logs.
	// Defaults to stderr if empty.
	DebugLogPath string `koanf:"debug_log_path"`
}

// BackendConfig configures the external explainer collaborator.
type BackendConfig struct {
	// Provider selects the explainer implementation: "mock", "anthropic",
	// or empty for none.
	Provider string `koanf:"provider"`

	// Model is the provider-specific model identifier.
	Model string `koanf:"model"`

	// APIKey authenticates with the provider.
	APIKey string `koanf:"api_key"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:               store.DefaultBasePath(),
		Storage:                StorageMarkdown,
		MinOccurrences:         DefaultMinOccurrences,
		MinCorrectionsForSkill: DefaultMinCorrectionsForSkill,
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	ITERATA_BASE_PATH        → BasePath
//	ITERATA_SKILL_PATH       → SkillPath
//	ITERATA_STORAGE          → Storage
//	ITERATA_AUTO_EXPLAIN     → AutoExplain (any non-empty value enables)
//	ITERATA_BACKEND          → Backend.Provider
//	ITERATA_MODEL            → Backend.Model
//	ITERATA_API_KEY          → Backend.APIKey (falls back to ANTHROPIC_API_KEY)
//	ITERATA_MIN_CORRECTIONS  → MinCorrectionsForSkill
//	ITERATA_DEBUG            → Debug (any non-empty value enables)
//	ITERATA_DEBUG_LOG        → DebugLogPath
func ConfigFromEnv() Config {
	apiKey := os.Getenv("ITERATA_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	minCorrections := 0
	if v := os.Getenv("ITERATA_MIN_CORRECTIONS"); v != "" {
		minCorrections, _ = strconv.Atoi(v)
	}
	return Config{
		BasePath:    os.Getenv("ITERATA_BASE_PATH"),
		SkillPath:   os.Getenv("ITERATA_SKILL_PATH"),
		Storage:     os.Getenv("ITERATA_STORAGE"),
		AutoExplain: os.Getenv("ITERATA_AUTO_EXPLAIN") != "",
		Backend: BackendConfig{
			Provider: os.Getenv("ITERATA_BACKEND"),
			Model:    os.Getenv("ITERATA_MODEL"),
			APIKey:   apiKey,
		},
		MinCorrectionsForSkill: minCorrections,
		Debug:                  os.Getenv("ITERATA_DEBUG") != "",
		DebugLogPath:           os.Getenv("ITERATA_DEBUG_LOG"),
	}
}

// LoadConfigFile reads a YAML config file and applies ITERATA_* environment
// overrides on top. ${VAR} references inside the file are expanded from the
// environment before parsing. A missing file is not an error; the returned
// Config then carries only environment values.
func LoadConfigFile(path string) (Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = filepath.Join(DefaultConfig().BasePath, ConfigFileName)
	}

	if f, err := os.Open(path); err == nil {
		content, readErr := io.ReadAll(f)
		_ = f.Close()
		if readErr != nil {
			return Config{}, fmt.Errorf("read config file: %w", readErr)
		}
		expanded := []byte(os.Expand(string(content), os.Getenv))
		if err := k.Load(rawbytes.Provider(expanded), kyaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("open config file: %w", err)
	}

	// ITERATA_BACKEND_PROVIDER -> backend.provider; everything else maps to
	// a top-level key with underscores preserved.
	if err := k.Load(env.Provider("ITERATA_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "ITERATA_"))
		if rest, ok := strings.CutPrefix(key, "backend_"); ok {
			return "backend." + rest
		}
		return key
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.BasePath == "" {
		return &ValidationError{Field: "BasePath", Message: "required: root directory of the correction store"}
	}
	switch c.Storage {
	case "", StorageMarkdown, StorageSQLite:
	default:
		return &ValidationError{Field: "Storage", Message: fmt.Sprintf("unknown backend %q: must be %q or %q", c.Storage, StorageMarkdown, StorageSQLite)}
	}
	if c.MinOccurrences < 0 {
		return &ValidationError{Field: "MinOccurrences", Message: "must be non-negative"}
	}
	if c.MinCorrectionsForSkill < 0 {
		return &ValidationError{Field: "MinCorrectionsForSkill", Message: "must be non-negative"}
	}
	if c.AutoExplain && c.Backend.Provider == "" {
		return &ValidationError{Field: "Backend.Provider", Message: "required when AutoExplain is set"}
	}
	if c.Backend.Provider == "anthropic" && c.Backend.APIKey == "" {
		return &ValidationError{Field: "Backend.APIKey", Message: "required for the anthropic backend"}
	}
	return nil
}

// WithDefaults fills in default values for unset fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()
	if c.BasePath == "" {
		c.BasePath = defaults.BasePath
	}
	if c.Storage == "" {
		c.Storage = defaults.Storage
	}
	if c.MinOccurrences == 0 {
		c.MinOccurrences = defaults.MinOccurrences
	}
	if c.MinCorrectionsForSkill == 0 {
		c.MinCorrectionsForSkill = defaults.MinCorrectionsForSkill
	}
	return c
}
