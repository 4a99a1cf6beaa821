package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Deployment mode
	Mode string `yaml:"mode"` // "enterprise", "team", "oss", "local"

	// Graph store (Neo4j) configuration
	Neo4j Neo4jConfig `yaml:"neo4j"`

	// Storage configuration (vector store / Postgres)
	Storage StorageConfig `yaml:"storage"`

	// Cache configuration (Redis + local)
	Cache CacheConfig `yaml:"cache"`

	// API configuration (embedding provider)
	API APIConfig `yaml:"api"`

	// Server controls orchestrator/index/retrieval runtime knobs.
	Server ServerConfig `yaml:"server"`

	// Session controls workspace binding and file watching.
	Session SessionConfig `yaml:"session"`

	// Retrieval controls the hybrid retriever's fusion parameters.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Coordination controls claim lifecycle maintenance.
	Coordination CoordinationConfig `yaml:"coordination"`

	// Episode controls episodic memory recall and reflection.
	Episode EpisodeConfig `yaml:"episode"`

	// Architecture points at the layer-rule file validated by arch_validate.
	Architecture ArchitectureConfig `yaml:"architecture"`

	// Logging controls level/format/file output.
	Logging LoggingConfig `yaml:"logging"`
}

// Neo4jConfig holds the GraphStore connection parameters.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// StorageConfig holds the Postgres connection the vector store and
// transaction records share.
type StorageConfig struct {
	PostgresDSN      string `yaml:"postgres_dsn"`
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     int    `yaml:"postgres_port"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`
}

// CacheConfig holds the Redis address used by the embedding rate limiter
// and coordination snapshot cache, plus the local scratch directory.
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	Directory string        `yaml:"directory"`
	TTL       time.Duration `yaml:"ttl"`
}

// APIConfig holds embedding-provider credentials. BYOK: the key always
// comes from environment, keychain, or config file, never from code.
type APIConfig struct {
	OpenAIKey    string `yaml:"openai_key"`
	UseKeychain  bool   `yaml:"use_keychain"` // Prefer keychain over config file
	EmbeddingURL string `yaml:"embedding_url"`
	EmbeddingKey string `yaml:"embedding_key"`
}

// ServerConfig controls the orchestrator's worker pool, the in-memory
// index registry's LRU bound, and the build/embedding backpressure knobs
// from the concurrency model.
type ServerConfig struct {
	BuildWorkers       int `yaml:"build_workers"`
	MaxResidentIndices int `yaml:"max_resident_indices"`
	EmbeddingBatchSize int `yaml:"embedding_batch_size"`
	MetricsPort        int `yaml:"metrics_port"` // 0 disables the exposition endpoint
}

// SessionConfig controls the session registry's watcher behavior.
type SessionConfig struct {
	Watch bool `yaml:"watch"`
}

// RetrievalConfig controls the hybrid retriever's fusion parameters.
type RetrievalConfig struct {
	RRFConstant   int     `yaml:"rrf_constant"`
	PPRDamping    float64 `yaml:"ppr_damping"`
	PPRIterations int     `yaml:"ppr_iterations"`
}

// CoordinationConfig controls claim TTL expiry.
type CoordinationConfig struct {
	ClaimMaxAge   time.Duration `yaml:"claim_max_age"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// EpisodeConfig controls recall/reflection defaults.
type EpisodeConfig struct {
	RecallLimit     int           `yaml:"recall_limit"`
	ReflectLimit    int           `yaml:"reflect_limit"`
	ReflectInterval time.Duration `yaml:"reflect_interval"` // 0 disables scheduled reflection
}

// ArchitectureConfig locates the per-workspace layer rules.
type ArchitectureConfig struct {
	RulesFile string `yaml:"rules_file"`
}

// LoggingConfig mirrors internal/logging's options.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" | "json"
	File   string `yaml:"file"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Mode: "team",
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			User:     "neo4j",
			Database: "neo4j",
		},
		Storage: StorageConfig{
			PostgresHost:    "localhost",
			PostgresPort:    5432,
			PostgresDB:      "codeintel",
			PostgresUser:    "codeintel",
			PostgresSSLMode: "disable",
		},
		Cache: CacheConfig{
			RedisAddr: "localhost:6379",
			Directory: filepath.Join(homeDir, ".codeintel", "cache"),
			TTL:       24 * time.Hour,
		},
		Server: ServerConfig{
			BuildWorkers:       20,
			MaxResidentIndices: 5,
			EmbeddingBatchSize: 64,
		},
		Session: SessionConfig{
			Watch: true,
		},
		Retrieval: RetrievalConfig{
			RRFConstant:   60,
			PPRDamping:    0.85,
			PPRIterations: 20,
		},
		Coordination: CoordinationConfig{
			ClaimMaxAge:   24 * time.Hour,
			SweepInterval: 15 * time.Minute,
		},
		Episode: EpisodeConfig{
			RecallLimit:  10,
			ReflectLimit: 20,
		},
		Architecture: ArchitectureConfig{
			RulesFile: ".codeintel/layers.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults
	cfg := Default()
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("neo4j", cfg.Neo4j)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("cache", cfg.Cache)
	v.SetDefault("server", cfg.Server)
	v.SetDefault("session", cfg.Session)
	v.SetDefault("retrieval", cfg.Retrieval)
	v.SetDefault("coordination", cfg.Coordination)
	v.SetDefault("episode", cfg.Episode)
	v.SetDefault("architecture", cfg.Architecture)
	v.SetDefault("logging", cfg.Logging)

	// Load from environment variables
	v.SetEnvPrefix("CODEINTEL")
	v.AutomaticEnv()

	// Try to find config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search for config in standard locations
		v.SetConfigName("config")
		v.AddConfigPath(".codeintel")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".codeintel"))
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	// Unmarshal into struct; the structs carry yaml tags, so point
	// mapstructure at them instead of its own tag namespace.
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply environment variable overrides, then let the OS keychain fill
	// whatever secrets are still blank.
	applyEnvOverrides(cfg)
	fillFromKeychain(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",       // Main environment file
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	// Also try loading from home directory
	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".codeintel", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	// Neo4j configuration
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Neo4j.User = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Neo4j.Password = password
	}
	if database := os.Getenv("NEO4J_DATABASE"); database != "" {
		cfg.Neo4j.Database = database
	}

	// Server configuration
	if workers := os.Getenv("BUILD_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Server.BuildWorkers = n
		}
	}
	if maxIdx := os.Getenv("MAX_RESIDENT_INDICES"); maxIdx != "" {
		if n, err := strconv.Atoi(maxIdx); err == nil {
			cfg.Server.MaxResidentIndices = n
		}
	}
	if port := os.Getenv("METRICS_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Server.MetricsPort = n
		}
	}

	// API configuration. Env var beats config file beats keychain; the
	// keychain pass runs after this function (see Load).
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.API.OpenAIKey = key
	}
	if url := os.Getenv("CUSTOM_EMBEDDING_URL"); url != "" {
		cfg.API.EmbeddingURL = url
	}
	if key := os.Getenv("CUSTOM_EMBEDDING_KEY"); key != "" {
		cfg.API.EmbeddingKey = key
	}

	// Storage configuration
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		cfg.Storage.PostgresHost = host
	}
	if password := os.Getenv("POSTGRES_PASSWORD"); password != "" {
		cfg.Storage.PostgresPassword = password
	}

	// Cache configuration
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if dir := os.Getenv("CACHE_DIRECTORY"); dir != "" {
		cfg.Cache.Directory = expandPath(dir)
	}

	// Session configuration
	if watch := os.Getenv("SESSION_WATCH"); watch != "" {
		cfg.Session.Watch = watch == "true"
	}

	// Coordination configuration
	if maxAge := os.Getenv("CLAIM_MAX_AGE_HOURS"); maxAge != "" {
		if hours, err := strconv.Atoi(maxAge); err == nil {
			cfg.Coordination.ClaimMaxAge = time.Duration(hours) * time.Hour
		}
	}

	// Logging configuration
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		cfg.Logging.File = expandPath(file)
	}

	// Mode configuration
	if mode := os.Getenv("CODEINTEL_MODE"); mode != "" {
		cfg.Mode = mode
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	// Convert struct to map for Viper
	v.Set("mode", c.Mode)
	v.Set("neo4j", c.Neo4j)
	v.Set("storage", c.Storage)
	v.Set("cache", c.Cache)
	v.Set("api", c.API)
	v.Set("server", c.Server)
	v.Set("session", c.Session)
	v.Set("retrieval", c.Retrieval)
	v.Set("coordination", c.Coordination)
	v.Set("episode", c.Episode)
	v.Set("architecture", c.Architecture)
	v.Set("logging", c.Logging)

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write config file
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
