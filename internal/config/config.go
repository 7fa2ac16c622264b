// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Seed          SeedConfig          `mapstructure:"seed"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// QueryRatePerMinute 限制每个用户每分钟的问答请求数，0 表示不限制。
	QueryRatePerMinute int `mapstructure:"query_rate_per_minute"`
	QueryBurst         int `mapstructure:"query_burst"`
}

// DatabaseConfig 存储所有数据库连接的配置。
// Driver 取值 "mysql" 或 "sqlite"。
type DatabaseConfig struct {
	Driver string       `mapstructure:"driver"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SQLiteConfig 存储 SQLite 数据库的配置，主要用于本地开发。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不启用文档事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置，图片 OCR 通过 Tika 完成。
type TikaConfig struct {
	ServerURL      string `mapstructure:"server_url"`
	OCRLanguage    string `mapstructure:"ocr_language"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。Addresses 为空时关键词检索回退到内存 TF-IDF。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时不归档原始文件。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// IngestConfig 控制上传与切块。
type IngestConfig struct {
	ChunkSize     int   `mapstructure:"chunk_size"`
	ChunkOverlap  int   `mapstructure:"chunk_overlap"`
	MaxFiles      int   `mapstructure:"max_files"`
	MaxFileSizeMB int64 `mapstructure:"max_file_size_mb"`
	Parallelism   int   `mapstructure:"parallelism"`
	// HTMLEnabled 为 true 时额外接受 .html/.htm 文件
	HTMLEnabled bool `mapstructure:"html_enabled"`
}

// RetrievalConfig 控制检索行为。
type RetrievalConfig struct {
	DefaultTopK int `mapstructure:"default_top_k"`
	MaxTopK     int `mapstructure:"max_top_k"`
	// MinScore 为相似度下限，得分必须严格大于该值才会被返回。
	MinScore float64 `mapstructure:"min_score"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Temperature    float64          `mapstructure:"temperature"`
	MaxTokens      int              `mapstructure:"max_tokens"`
	TimeoutSeconds int              `mapstructure:"timeout_seconds"`
	Providers      []ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig 描述一个 OpenAI 兼容的模型服务商。
// 凭证只记录环境变量名，在调用时读取。
type ProviderConfig struct {
	Name       string `mapstructure:"name"`
	BaseURL    string `mapstructure:"base_url"`
	BaseURLEnv string `mapstructure:"base_url_env"`
	APIKeyEnv  string `mapstructure:"api_key_env"`
}

// SeedConfig 配置启动时的初始文件导入。
type SeedConfig struct {
	Dir        string `mapstructure:"dir"`
	OwnerEmail string `mapstructure:"owner_email"`
}

// DefaultProviders 返回内置的服务商注册表。
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name:       "deepseek",
			BaseURL:    "https://api.deepseek.com",
			BaseURLEnv: "DEEPSEEK_BASE_URL",
			APIKeyEnv:  "DEEPSEEK_API_KEY",
		},
		{
			Name:       "qwen",
			BaseURL:    "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
			BaseURLEnv: "QWEN_BASE_URL",
			APIKeyEnv:  "QWEN_API_KEY",
		},
	}
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}

// Load 读取配置文件，叠加 DOCQA_ 前缀的环境变量并补全默认值。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("docqa")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("jwt.refresh_token_expire_days", 7)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "document-events")
	v.SetDefault("kafka.group_id", "docqa-go-consumer")
	v.SetDefault("elasticsearch.index_name", "docqa_chunks")
	v.SetDefault("tika.ocr_language", "eng")
	v.SetDefault("ingest.chunk_size", 900)
	v.SetDefault("ingest.chunk_overlap", 120)
	v.SetDefault("seed.dir", "initfile")
	v.SetDefault("seed.owner_email", "admin@local")
}

// ApplyDefaults 为未配置或非法的数值项补全默认值。
func ApplyDefaults(cfg *Config) {
	if cfg.Ingest.ChunkSize <= 0 {
		cfg.Ingest.ChunkSize = 900
	}
	if cfg.Ingest.ChunkOverlap < 0 {
		cfg.Ingest.ChunkOverlap = 0
	}
	if cfg.Ingest.MaxFiles <= 0 {
		cfg.Ingest.MaxFiles = 20
	}
	if cfg.Ingest.MaxFileSizeMB <= 0 {
		cfg.Ingest.MaxFileSizeMB = 50
	}
	if cfg.Ingest.Parallelism <= 0 {
		cfg.Ingest.Parallelism = 4
	}
	if cfg.Retrieval.DefaultTopK <= 0 {
		cfg.Retrieval.DefaultTopK = 5
	}
	if cfg.Retrieval.MaxTopK <= 0 {
		cfg.Retrieval.MaxTopK = 20
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if len(cfg.LLM.Providers) == 0 {
		cfg.LLM.Providers = DefaultProviders()
	}
	if cfg.Server.QueryRatePerMinute < 0 {
		cfg.Server.QueryRatePerMinute = 0
	}
	if cfg.Server.QueryRatePerMinute > 0 && cfg.Server.QueryBurst <= 0 {
		cfg.Server.QueryBurst = 1
	}
	if cfg.Tika.TimeoutSeconds <= 0 {
		cfg.Tika.TimeoutSeconds = 60
	}
}
