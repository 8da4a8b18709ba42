// Package config loads repoindex configuration.
//
// Values are applied in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User config ($XDG_CONFIG_HOME/repoindex/config.yaml)
//  3. Project config (.repoindex.yaml in the working directory)
//  4. A .env file in the working directory (never overrides the real environment)
//  5. Environment variables (REPOINDEX_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/lpernett/godotenv"
	"gopkg.in/yaml.v3"
)

// ProjectFileName is the per-directory configuration file.
const ProjectFileName = ".repoindex.yaml"

// Git backends understood by the source resolver.
const (
	GitBackendExec  = "exec"
	GitBackendGoGit = "go-git"
)

// Chunking strategies.
const (
	ChunkStrategySyntax = "syntax"
	ChunkStrategyLines  = "lines"
)

// Config is the root configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Source    SourceConfig    `yaml:"source" json:"source"`
	Scan      ScanConfig      `yaml:"scan" json:"scan"`
	Chunk     ChunkConfig     `yaml:"chunk" json:"chunk"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdownTimeout"`
}

// IndexConfig configures the on-disk index and the build pipeline.
type IndexConfig struct {
	// Dir is the bleve index directory. The metadata database lives beside it.
	Dir string `yaml:"dir" json:"dir"`
	// ChannelCapacity bounds the progress queue of each build.
	ChannelCapacity int `yaml:"channel_capacity" json:"channelCapacity"`
	// BatchSize is the number of chunks per index batch.
	BatchSize int `yaml:"batch_size" json:"batchSize"`
	// Workers is the number of files chunked and embedded concurrently.
	Workers int `yaml:"workers" json:"workers"`
}

// SourceConfig configures source acquisition.
type SourceConfig struct {
	// TempDir is the parent of clone and extract directories. Empty means os.TempDir().
	TempDir      string `yaml:"temp_dir" json:"tempDir"`
	GitBackend   string `yaml:"git_backend" json:"gitBackend"`
	CloneTimeout string `yaml:"clone_timeout" json:"cloneTimeout"`
	MaxArchiveMB int    `yaml:"max_archive_mb" json:"maxArchiveMb"`
}

// ScanConfig configures which files of a source tree get indexed.
type ScanConfig struct {
	MaxFileSizeKB   int      `yaml:"max_file_size_kb" json:"maxFileSizeKb"`
	Include         []string `yaml:"include" json:"include"`
	Exclude         []string `yaml:"exclude" json:"exclude"`
	IgnoreGitignore bool     `yaml:"ignore_gitignore" json:"ignoreGitignore"`
}

// ChunkConfig configures how files are split into chunks.
type ChunkConfig struct {
	Strategy     string `yaml:"strategy" json:"strategy"`
	MaxLines     int    `yaml:"max_lines" json:"maxLines"`
	OverlapLines int    `yaml:"overlap_lines" json:"overlapLines"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "static" (hash based, offline) or "ollama".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	OllamaHost string `yaml:"ollama_host" json:"ollamaHost"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	CacheSize  int    `yaml:"cache_size" json:"cacheSize"`
	Timeout    string `yaml:"timeout" json:"timeout"`
}

// LoggingConfig configures the slog logger.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"maxSizeMb"`
	MaxFiles  int    `yaml:"max_files" json:"maxFiles"`
}

// DefaultExcludePatterns are always excluded from scans.
var DefaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/target/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
	"**/Cargo.lock",
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: "10s",
		},
		Index: IndexConfig{
			Dir:             filepath.Join(DataDir(), "index"),
			ChannelCapacity: 100,
			BatchSize:       200,
			Workers:         runtime.NumCPU(),
		},
		Source: SourceConfig{
			GitBackend:   GitBackendExec,
			CloneTimeout: "10m",
			MaxArchiveMB: 512,
		},
		Scan: ScanConfig{
			MaxFileSizeKB: 1024,
			Include:       []string{},
			Exclude:       append([]string(nil), DefaultExcludePatterns...),
		},
		Chunk: ChunkConfig{
			Strategy:     ChunkStrategySyntax,
			MaxLines:     60,
			OverlapLines: 10,
		},
		Embedding: EmbeddingConfig{
			Provider:   "static",
			Model:      "nomic-embed-text",
			Dimensions: 256,
			CacheSize:  4096,
			Timeout:    "30s",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// DataDir returns ~/.repoindex, falling back to the temp dir.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".repoindex")
	}
	return filepath.Join(home, ".repoindex")
}

// GetUserConfigPath returns the path to the user configuration file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/repoindex/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "repoindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "repoindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "repoindex", "config.yaml")
}

// Load loads configuration for a process started in dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if projectPath := filepath.Join(dir, ProjectFileName); fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
	}

	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML parses path and merges its non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	mergeString(&c.Server.Host, other.Server.Host)
	mergeInt(&c.Server.Port, other.Server.Port)
	mergeString(&c.Server.ShutdownTimeout, other.Server.ShutdownTimeout)

	mergeString(&c.Index.Dir, other.Index.Dir)
	mergeInt(&c.Index.ChannelCapacity, other.Index.ChannelCapacity)
	mergeInt(&c.Index.BatchSize, other.Index.BatchSize)
	mergeInt(&c.Index.Workers, other.Index.Workers)

	mergeString(&c.Source.TempDir, other.Source.TempDir)
	mergeString(&c.Source.GitBackend, other.Source.GitBackend)
	mergeString(&c.Source.CloneTimeout, other.Source.CloneTimeout)
	mergeInt(&c.Source.MaxArchiveMB, other.Source.MaxArchiveMB)

	mergeInt(&c.Scan.MaxFileSizeKB, other.Scan.MaxFileSizeKB)
	if len(other.Scan.Include) > 0 {
		c.Scan.Include = other.Scan.Include
	}
	if len(other.Scan.Exclude) > 0 {
		// Extend the defaults rather than replace them.
		c.Scan.Exclude = append(c.Scan.Exclude, other.Scan.Exclude...)
	}
	if other.Scan.IgnoreGitignore {
		c.Scan.IgnoreGitignore = true
	}

	mergeString(&c.Chunk.Strategy, other.Chunk.Strategy)
	mergeInt(&c.Chunk.MaxLines, other.Chunk.MaxLines)
	mergeInt(&c.Chunk.OverlapLines, other.Chunk.OverlapLines)

	mergeString(&c.Embedding.Provider, other.Embedding.Provider)
	mergeString(&c.Embedding.Model, other.Embedding.Model)
	mergeString(&c.Embedding.OllamaHost, other.Embedding.OllamaHost)
	mergeInt(&c.Embedding.Dimensions, other.Embedding.Dimensions)
	mergeInt(&c.Embedding.CacheSize, other.Embedding.CacheSize)
	mergeString(&c.Embedding.Timeout, other.Embedding.Timeout)

	mergeString(&c.Logging.Level, other.Logging.Level)
	mergeString(&c.Logging.File, other.Logging.File)
	mergeInt(&c.Logging.MaxSizeMB, other.Logging.MaxSizeMB)
	mergeInt(&c.Logging.MaxFiles, other.Logging.MaxFiles)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies REPOINDEX_* environment variables.
func (c *Config) applyEnvOverrides() {
	envString("REPOINDEX_HOST", &c.Server.Host)
	envInt("REPOINDEX_PORT", &c.Server.Port)
	envString("REPOINDEX_INDEX_DIR", &c.Index.Dir)
	envInt("REPOINDEX_WORKERS", &c.Index.Workers)
	envString("REPOINDEX_TEMP_DIR", &c.Source.TempDir)
	envString("REPOINDEX_GIT_BACKEND", &c.Source.GitBackend)
	envString("REPOINDEX_CLONE_TIMEOUT", &c.Source.CloneTimeout)
	envInt("REPOINDEX_MAX_FILE_SIZE_KB", &c.Scan.MaxFileSizeKB)
	envString("REPOINDEX_CHUNK_STRATEGY", &c.Chunk.Strategy)
	envString("REPOINDEX_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	envString("REPOINDEX_EMBEDDING_MODEL", &c.Embedding.Model)
	envString("REPOINDEX_OLLAMA_HOST", &c.Embedding.OllamaHost)
	envString("REPOINDEX_LOG_LEVEL", &c.Logging.Level)
	envString("REPOINDEX_LOG_FILE", &c.Logging.File)

	if v := os.Getenv("REPOINDEX_IGNORE_GITIGNORE"); v != "" {
		c.Scan.IgnoreGitignore = strings.EqualFold(v, "true") || v == "1"
	}
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}

	if c.Index.Dir == "" {
		return fmt.Errorf("index.dir must not be empty")
	}
	if c.Index.ChannelCapacity <= 0 {
		return fmt.Errorf("index.channel_capacity must be positive, got %d", c.Index.ChannelCapacity)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be positive, got %d", c.Index.BatchSize)
	}
	if c.Index.Workers <= 0 {
		return fmt.Errorf("index.workers must be positive, got %d", c.Index.Workers)
	}

	switch c.Source.GitBackend {
	case GitBackendExec, GitBackendGoGit:
	default:
		return fmt.Errorf("source.git_backend must be '%s' or '%s', got %s", GitBackendExec, GitBackendGoGit, c.Source.GitBackend)
	}
	if _, err := time.ParseDuration(c.Source.CloneTimeout); err != nil {
		return fmt.Errorf("source.clone_timeout: %w", err)
	}
	if c.Source.MaxArchiveMB <= 0 {
		return fmt.Errorf("source.max_archive_mb must be positive, got %d", c.Source.MaxArchiveMB)
	}

	if c.Scan.MaxFileSizeKB <= 0 {
		return fmt.Errorf("scan.max_file_size_kb must be positive, got %d", c.Scan.MaxFileSizeKB)
	}

	switch c.Chunk.Strategy {
	case ChunkStrategySyntax, ChunkStrategyLines:
	default:
		return fmt.Errorf("chunk.strategy must be '%s' or '%s', got %s", ChunkStrategySyntax, ChunkStrategyLines, c.Chunk.Strategy)
	}
	if c.Chunk.MaxLines <= 0 {
		return fmt.Errorf("chunk.max_lines must be positive, got %d", c.Chunk.MaxLines)
	}
	if c.Chunk.OverlapLines < 0 || c.Chunk.OverlapLines >= c.Chunk.MaxLines {
		return fmt.Errorf("chunk.overlap_lines must be in [0, max_lines), got %d", c.Chunk.OverlapLines)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "static", "ollama":
	default:
		return fmt.Errorf("embedding.provider must be 'static' or 'ollama', got %s", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if _, err := time.ParseDuration(c.Embedding.Timeout); err != nil {
		return fmt.Errorf("embedding.timeout: %w", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ShutdownTimeoutDuration parses ShutdownTimeout. Validate guarantees it parses.
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.ShutdownTimeout)
	return d
}

// CloneTimeoutDuration parses CloneTimeout.
func (s SourceConfig) CloneTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.CloneTimeout)
	return d
}

// MaxArchiveBytes returns the archive download limit in bytes.
func (s SourceConfig) MaxArchiveBytes() int64 {
	return int64(s.MaxArchiveMB) * 1024 * 1024
}

// TimeoutDuration parses Timeout.
func (e EmbeddingConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(e.Timeout)
	return d
}

// MetadataPath returns the sqlite database that sits next to the index.
func (i IndexConfig) MetadataPath() string {
	return filepath.Join(filepath.Dir(filepath.Clean(i.Dir)), "metadata.db")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
