package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com"
	defaultTextModel      = "gemini-3-flash-preview"
	defaultImageModel     = "gemini-3.1-flash-image-preview"
	defaultMaxIterations  = 6
	defaultModelTimeout   = 60
	defaultImageTimeout   = 60
	defaultIllustrateWait = 70
)

// 环境变量名称，优先级高于配置文件。
const (
	EnvConfigPath    = "TAXADVISOR_CONFIG"
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
	EnvNanoBananaKey = "NANO_BANANA_API_KEY"
	EnvStorageDSN    = "TAXADVISOR_STORAGE_DSN"
	EnvServerAddress = "TAXADVISOR_ADDRESS"
)

// Config 描述了 TaxAdvisor 在启动阶段需要加载的核心配置。
type Config struct {
	Server       ServerConfig       `json:"server" yaml:"server" toml:"server"`
	Log          LogConfig          `json:"log" yaml:"log" toml:"log"`
	Gemini       GeminiConfig       `json:"gemini" yaml:"gemini" toml:"gemini"`
	NanoBanana   NanoBananaConfig   `json:"nano_banana" yaml:"nano_banana" toml:"nano_banana"`
	Illustration IllustrationConfig `json:"illustration" yaml:"illustration" toml:"illustration"`
	Storage      StorageConfig      `json:"storage" yaml:"storage" toml:"storage"`
	Jobs         JobsConfig         `json:"jobs" yaml:"jobs" toml:"jobs"`
	MCP          MCPConfig          `json:"mcp" yaml:"mcp" toml:"mcp"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address" yaml:"address" toml:"address"`
}

// LogConfig 对应 pkg/logger 的配置。
type LogConfig struct {
	Level       string   `json:"level" yaml:"level" toml:"level"`
	Format      string   `json:"format" yaml:"format" toml:"format"`
	OutputPaths []string `json:"output_paths" yaml:"output_paths" toml:"output_paths"`
	AuditPath   string   `json:"audit_path" yaml:"audit_path" toml:"audit_path"`
}

// GeminiConfig 用于配置文本模型（主策略与审计智能体共用）。
type GeminiConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey         string `json:"api_key" yaml:"api_key" toml:"api_key"`
	Model          string `json:"model" yaml:"model" toml:"model"`
	MaxIterations  int    `json:"max_iterations" yaml:"max_iterations" toml:"max_iterations"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// Timeout 返回单次模型调用的超时时间。
func (c GeminiConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NanoBananaConfig 用于配置图像生成模型。
type NanoBananaConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey         string `json:"api_key" yaml:"api_key" toml:"api_key"`
	Model          string `json:"model" yaml:"model" toml:"model"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// Timeout 返回图像接口的 HTTP 超时时间。
func (c NanoBananaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IllustrationConfig 控制插图阶段整体等待时间。
type IllustrationConfig struct {
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// Timeout 返回插图阶段的等待上限。
func (c IllustrationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig 描述持仓与已实现收益数据的来源。
type StorageConfig struct {
	Driver                 string `json:"driver" yaml:"driver" toml:"driver"`
	DSN                    string `json:"dsn" yaml:"dsn" toml:"dsn"`
	SeedFile               string `json:"seed_file" yaml:"seed_file" toml:"seed_file"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds" toml:"conn_max_lifetime_seconds"`
}

// JobsConfig 描述异步咨询任务的队列与状态存储。
type JobsConfig struct {
	Queue      string         `json:"queue" yaml:"queue" toml:"queue"`
	Store      string         `json:"store" yaml:"store" toml:"store"`
	Workers    int            `json:"workers" yaml:"workers" toml:"workers"`
	MaxRetries int            `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	Redis      RedisConfig    `json:"redis" yaml:"redis" toml:"redis"`
	RabbitMQ   RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq" toml:"rabbitmq"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address          string `json:"address" yaml:"address" toml:"address"`
	Password         string `json:"password" yaml:"password" toml:"password"`
	DB               int    `json:"db" yaml:"db" toml:"db"`
	Queue            string `json:"queue" yaml:"queue" toml:"queue"`
	KeyPrefix        string `json:"key_prefix" yaml:"key_prefix" toml:"key_prefix"`
	BlockWaitSeconds int    `json:"block_wait_seconds" yaml:"block_wait_seconds" toml:"block_wait_seconds"`
	TTLSeconds       int    `json:"ttl_seconds" yaml:"ttl_seconds" toml:"ttl_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url" yaml:"url" toml:"url"`
	Queue    string `json:"queue" yaml:"queue" toml:"queue"`
	Prefetch int    `json:"prefetch" yaml:"prefetch" toml:"prefetch"`
	Durable  bool   `json:"durable" yaml:"durable" toml:"durable"`
}

// MCPConfig 控制是否通过 MCP 协议暴露数据工具。
type MCPConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
}

// Load 负责解析指定路径的配置文件，根据扩展名选择 YAML、TOML 或 JSON。
// path 为空时仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	var cfg Config
	baseDir := "."

	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := decode(path, content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
		baseDir = filepath.Dir(path)
	}

	cfg.applyEnv()
	cfg.applyDefaults(baseDir)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, content []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(content, cfg)
	case ".toml":
		_, err := toml.Decode(string(content), cfg)
		return err
	case ".json":
		return json.Unmarshal(content, cfg)
	default:
		return fmt.Errorf("不支持的配置文件格式: %s", filepath.Ext(path))
	}
}

// applyEnv 使用环境变量覆盖敏感或部署相关的字段。
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvGeminiAPIKey)); v != "" {
		c.Gemini.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvNanoBananaKey)); v != "" {
		c.NanoBanana.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDSN)); v != "" {
		c.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerAddress)); v != "" {
		c.Server.Address = v
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = defaultGeminiBaseURL
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = defaultTextModel
	}
	if c.Gemini.MaxIterations <= 0 {
		c.Gemini.MaxIterations = defaultMaxIterations
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		c.Gemini.TimeoutSeconds = defaultModelTimeout
	}

	if c.NanoBanana.BaseURL == "" {
		c.NanoBanana.BaseURL = defaultGeminiBaseURL
	}
	if c.NanoBanana.Model == "" {
		c.NanoBanana.Model = defaultImageModel
	}
	if c.NanoBanana.TimeoutSeconds <= 0 {
		c.NanoBanana.TimeoutSeconds = defaultImageTimeout
	}
	if c.Illustration.TimeoutSeconds <= 0 {
		c.Illustration.TimeoutSeconds = defaultIllustrateWait
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.SeedFile != "" && !filepath.IsAbs(c.Storage.SeedFile) {
		c.Storage.SeedFile = filepath.Join(baseDir, c.Storage.SeedFile)
	}

	if c.Jobs.Queue == "" {
		c.Jobs.Queue = "memory"
	}
	if c.Jobs.Store == "" {
		c.Jobs.Store = "memory"
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 2
	}
	if c.Jobs.MaxRetries <= 0 {
		c.Jobs.MaxRetries = 3
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "mysql", "sqlite":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("存储驱动 %s 需要配置 dsn", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver)
	}

	switch c.Jobs.Queue {
	case "memory":
	case "redis":
		if c.Jobs.Redis.Address == "" {
			return errors.New("redis 队列需要配置 jobs.redis.address")
		}
	case "rabbitmq":
		if c.Jobs.RabbitMQ.URL == "" {
			return errors.New("rabbitmq 队列需要配置 jobs.rabbitmq.url")
		}
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.Jobs.Queue)
	}

	switch c.Jobs.Store {
	case "memory":
	case "redis":
		if c.Jobs.Redis.Address == "" {
			return errors.New("redis 任务存储需要配置 jobs.redis.address")
		}
	default:
		return fmt.Errorf("未知的任务存储: %s", c.Jobs.Store)
	}
	return nil
}
