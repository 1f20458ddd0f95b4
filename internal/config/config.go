package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Project struct {
		CodeRoot  string `yaml:"code_root"`
		DesignDoc string `yaml:"design_doc"`
		OutputDir string `yaml:"output_dir"`
		CachePath string `yaml:"cache_path"`
	} `yaml:"project"`
	AI struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"ai"`
	Engine EngineConfig `yaml:"engine"`
}

// EngineConfig holds the enumerated pipeline knobs. Anything not listed
// here is intentionally not configurable.
type EngineConfig struct {
	TraversalDepth      int           `yaml:"traversal_depth"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	GenerationRetries   int           `yaml:"generation_retries"`
	SynthesizeTests     bool          `yaml:"synthesize_tests"`
	SynthesizeDeploy    bool          `yaml:"synthesize_deploy"`
	LockTimeout         time.Duration `yaml:"lock_timeout"`
}

// DefaultEngine returns the documented defaults: one-hop impact
// traversal, 0.6 trace confidence floor, two generation retries.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		TraversalDepth:      1,
		ConfidenceThreshold: 0.6,
		GenerationRetries:   2,
		SynthesizeTests:     true,
		SynthesizeDeploy:    true,
		LockTimeout:         5 * time.Second,
	}
}

func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{Engine: DefaultEngine()}
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}

	// 3. Override with Environment Variables if present
	if apiKey := os.Getenv("REQSYNC_API_KEY"); apiKey != "" {
		cfg.AI.APIKey = apiKey
	}
	if provider := os.Getenv("REQSYNC_AI_PROVIDER"); provider != "" {
		cfg.AI.Provider = provider
	}

	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.Project.CodeRoot == "" {
		c.Project.CodeRoot = "."
	}
	if c.Project.DesignDoc == "" {
		c.Project.DesignDoc = "docs/design.md"
	}
	if c.Project.OutputDir == "" {
		c.Project.OutputDir = "out"
	}
	if c.Project.CachePath == "" {
		c.Project.CachePath = ".reqsync/index.db"
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "gemini"
	}
	if c.AI.Model == "" {
		c.AI.Model = "gemini-2.5-flash"
	}
	if c.Engine.TraversalDepth <= 0 {
		c.Engine.TraversalDepth = 1
	}
	if c.Engine.ConfidenceThreshold <= 0 || c.Engine.ConfidenceThreshold > 1 {
		c.Engine.ConfidenceThreshold = 0.6
	}
	if c.Engine.GenerationRetries < 0 {
		c.Engine.GenerationRetries = 2
	}
	if c.Engine.LockTimeout <= 0 {
		c.Engine.LockTimeout = 5 * time.Second
	}
}
