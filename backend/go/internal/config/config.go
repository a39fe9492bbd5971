package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PostgresConfig 定义了 PostgreSQL (pgvector) 的连接与连接池配置。
type PostgresConfig struct {
	Host            string `yaml:"host"`            // 数据库主机地址
	Port            int    `yaml:"port"`            // 数据库端口
	Database        string `yaml:"database"`        // 数据库名称
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	SSLMode         string `yaml:"sslMode"`         // SSL 模式 (例如: "disable", "require")
	MinConns        int    `yaml:"minConns"`        // 连接池最小连接数
	MaxConns        int    `yaml:"maxConns"`        // 连接池最大连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)，0 表示使用驱动默认值
}

// ConnString 生成 PostgreSQL 连接字符串。
func (c PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(c.SSLMode)
	}
	return u.String()
}

// IndexConfig 定义了 Milvus 集合中向量索引的配置。
type IndexConfig struct {
	IndexType  string         `yaml:"indexType"`  // 索引类型 (例如: "IVF_FLAT", "HNSW", "AUTOINDEX")
	MetricType string         `yaml:"metricType"` // 相似度度量类型 (例如: "L2", "COSINE")
	Params     map[string]int `yaml:"params"`     // 索引参数 (例如: {"nlist": 128})
}

// MilvusConfig 定义了 Milvus 数据库的连接配置。
type MilvusConfig struct {
	Address string      `yaml:"address"` // Milvus 服务地址
	Index   IndexConfig `yaml:"index"`   // 向量索引配置
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// EtcdConfig 定义了 Etcd 服务发现的连接配置。
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"` // Etcd 节点地址列表
	Username  string   `yaml:"username"`  // 用户名
	Password  string   `yaml:"password"`  // 密码
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表
	Topics  []string `yaml:"topics"`  // 需要确保存在的 Kafka 主题列表
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	Postgres PostgresConfig `yaml:"postgres"` // PostgreSQL 配置
	Milvus   MilvusConfig   `yaml:"milvus"`   // Milvus 配置
	Redis    RedisConfig    `yaml:"redis"`    // Redis 配置
	Etcd     EtcdConfig     `yaml:"etcd"`     // Etcd 服务发现配置
	Kafka    KafkaConfig    `yaml:"kafka"`    // Kafka 消息队列配置
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level      string `yaml:"level"`      // 日志级别 (例如: "info", "debug", "warn", "error")
	Dir        string `yaml:"dir"`        // 日志目录，为空时只输出到标准输出
	File       string `yaml:"file"`       // 日志文件名
	MaxSizeMB  int    `yaml:"maxSizeMB"`  // 单个日志文件最大尺寸 (MB)
	MaxBackups int    `yaml:"maxBackups"` // 保留的旧日志文件数量
}

// EmptyFactsConfig 定义了“未提取到事实”诊断日志的配置。
type EmptyFactsConfig struct {
	Enabled    bool   `yaml:"enabled"`    // 是否启用
	Dir        string `yaml:"dir"`        // 日志目录
	File       string `yaml:"file"`       // 日志文件名
	MaxSizeMB  int    `yaml:"maxSizeMB"`  // 单个文件最大尺寸 (MB)
	MaxBackups int    `yaml:"maxBackups"` // 保留的旧文件数量
	QueueSize  int    `yaml:"queueSize"`  // 异步写入队列长度，队列满时丢弃
}

// OllamaConfig 包含了 Ollama 服务的配置。
type OllamaConfig struct {
	Host        string `yaml:"host"`        // Ollama 服务地址
	Model       string `yaml:"model"`       // 模型名称
	PullMissing bool   `yaml:"pullMissing"` // 启动时若本地没有该模型则自动拉取
}

// OpenAIConfig 包含了 OpenAI 兼容接口的配置。
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`  // API 密钥
	Model   string `yaml:"model"`   // 模型名称
	BaseURL string `yaml:"baseURL"` // 自定义服务地址 (可选)
}

// GeminiConfig 包含了 Gemini 模型的配置。
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"` // Gemini API 密钥
	Model  string `yaml:"model"`  // Gemini 模型名称
}

// LLMConfig 包含了不同LLM提供商的配置。
type LLMConfig struct {
	Provider string       `yaml:"provider"` // LLM提供商 ("ollama", "openai", "gemini")
	Ollama   OllamaConfig `yaml:"ollama"`
	OpenAI   OpenAIConfig `yaml:"openai"`
	Gemini   GeminiConfig `yaml:"gemini"`
}

// EmbeddingConfig 包含了不同Embedding提供商的配置。
type EmbeddingConfig struct {
	Provider string       `yaml:"provider"` // Embedding提供商 ("ollama", "openai", "gemini")
	Ollama   OllamaConfig `yaml:"ollama"`
	OpenAI   OpenAIConfig `yaml:"openai"`
	Gemini   GeminiConfig `yaml:"gemini"`
}

// VectorStoreConfig 定义了记忆向量存储的配置。
type VectorStoreConfig struct {
	Provider     string `yaml:"provider"`     // 存储后端 ("pgvector", "milvus")
	Collection   string `yaml:"collection"`   // 表名 / 集合名
	Dimension    int    `yaml:"dimension"`    // 向量维度，需与 Embedding 模型一致
	EnsureSchema bool   `yaml:"ensureSchema"` // 启动时自动建表 / 建集合
}

// MemoryKafkaConfig 定义了记忆服务的 Kafka 消费配置。
type MemoryKafkaConfig struct {
	Enabled     bool   `yaml:"enabled"`     // 是否启用 Kafka 消费
	Topic       string `yaml:"topic"`       // 消费的主题
	GroupID     string `yaml:"groupID"`     // 消费者组
	ResultTopic string `yaml:"resultTopic"` // 处理结果发布的主题，为空则不发布
	DedupeTTL   string `yaml:"dedupeTTL"`   // Redis 去重键的过期时间 (例如: "24h")，为空则不去重
}

// DedupeTTLDuration 解析 DedupeTTL，为空时返回 0 (不去重)。
func (c MemoryKafkaConfig) DedupeTTLDuration() (time.Duration, error) {
	if c.DedupeTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.DedupeTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid dedupeTTL %q: %w", c.DedupeTTL, err)
	}
	return d, nil
}

// RegistryConfig 定义了服务注册配置。
type RegistryConfig struct {
	Enabled bool   `yaml:"enabled"` // 是否注册到 etcd
	Name    string `yaml:"name"`    // 注册的服务名
	TTL     int64  `yaml:"ttl"`     // 租约 TTL (秒)
}

// MemoryServiceConfig 定义了记忆服务本身的配置。
type MemoryServiceConfig struct {
	ServerAddress string            `yaml:"serverAddress"` // HTTP 监听地址
	Workers       int               `yaml:"workers"`       // 单次请求内并发处理事实的数量，<=1 为顺序处理
	CallTimeout   string            `yaml:"callTimeout"`   // 单次 LLM / Embedding 调用的超时时间 (例如: "120s")
	Kafka         MemoryKafkaConfig `yaml:"kafka"`
	Registry      RegistryConfig    `yaml:"registry"`
}

// CallTimeoutDuration 解析 CallTimeout，为空时返回 0 (不设超时)。
func (c MemoryServiceConfig) CallTimeoutDuration() (time.Duration, error) {
	if c.CallTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CallTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid callTimeout %q: %w", c.CallTimeout, err)
	}
	return d, nil
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了限流器的配置。
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Algorithm   string            `yaml:"algorithm"` // 支持: "fixedWindow", "tokenBucket"
	FixedWindow FixedWindowConfig `yaml:"fixedWindow"`
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
}

// FixedWindowConfig 定义了固定窗口计数器算法的配置。
type FixedWindowConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"` // 例如: "1m", "30s"
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了熔断器的配置，作用于 LLM 与 Embedding 调用。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App           AppInfo             `yaml:"app"`
	LLM           LLMConfig           `yaml:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	VectorStore   VectorStoreConfig   `yaml:"vectorStore"`
	Logger        LoggerConfig        `yaml:"logger"`
	EmptyFacts    EmptyFactsConfig    `yaml:"emptyFacts"`
	Databases     DatabaseConfigs     `yaml:"databases"`
	Middleware    MiddlewareConfig    `yaml:"middleware"`
	MemoryService MemoryServiceConfig `yaml:"memoryService"`
}

// Defaults 返回填充了默认值的配置，默认值与线上 docker-compose 环境保持一致。
func Defaults() *AppConfig {
	return &AppConfig{
		App: AppInfo{Name: "ai-mem", Version: "1.0.0", Environment: "development"},
		LLM: LLMConfig{
			Provider: "ollama",
			Ollama:   OllamaConfig{Host: "http://localhost:11434", Model: "llama3.2:latest"},
		},
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Ollama:   OllamaConfig{Host: "http://localhost:11434", Model: "llama3.2:latest"},
		},
		VectorStore: VectorStoreConfig{Provider: "pgvector", Collection: "temp_memory", Dimension: 3072},
		Logger:      LoggerConfig{Level: "info", File: "ai_mem.log", MaxSizeMB: 10, MaxBackups: 5},
		EmptyFacts: EmptyFactsConfig{
			Enabled: true, Dir: "logs", File: "empty_facts.log", MaxSizeMB: 5, MaxBackups: 3, QueueSize: 256,
		},
		Databases: DatabaseConfigs{
			Postgres: PostgresConfig{
				Host: "localhost", Port: 5440, Database: "ai_mem",
				Username: "ai_mem_user", Password: "ai_mem_pass", SSLMode: "disable",
				MinConns: 1, MaxConns: 5,
			},
		},
		MemoryService: MemoryServiceConfig{
			ServerAddress: ":8000",
			Workers:       1,
			CallTimeout:   "120s",
			Kafka:         MemoryKafkaConfig{Topic: "memory.create", GroupID: "memory-service"},
			Registry:      RegistryConfig{Name: "memory_service", TTL: 10},
		},
	}
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
// 文件中未出现的字段保留 Defaults() 的值；随后用环境变量覆盖 (支持 .env 文件)，最后进行校验。
//
// 参数:
//
//	path: YAML 配置文件的路径。为空时只使用默认值与环境变量。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体。
//	error: 如果文件读取、解析或校验失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	cfg := Defaults()
	if path != "" {
		yamlFile, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(yamlFile, cfg); err != nil {
			return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
		}
	}

	// .env 文件是可选的，不存在时忽略。
	_ = godotenv.Load()
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv 用环境变量覆盖配置。lookup 通常为 os.LookupEnv，测试中可替换。
func ApplyEnv(cfg *AppConfig, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("环境变量 %s 不是合法的整数: %w", key, err)
		}
		*dst = n
		return nil
	}

	pg := &cfg.Databases.Postgres
	str("DB_HOST", &pg.Host)
	str("DB_NAME", &pg.Database)
	str("DB_USER", &pg.Username)
	str("DB_PASSWORD", &pg.Password)
	for key, dst := range map[string]*int{
		"DB_PORT":     &pg.Port,
		"DB_MIN_CONN": &pg.MinConns,
		"DB_MAX_CONN": &pg.MaxConns,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	str("LLM_MODEL", &cfg.LLM.Ollama.Model)
	str("OLLAMA_HOST", &cfg.LLM.Ollama.Host)
	str("OLLAMA_HOST", &cfg.Embedding.Ollama.Host)
	str("VECTOR_COLLECTION", &cfg.VectorStore.Collection)

	str("LOG_LEVEL", &cfg.Logger.Level)
	str("LOG_DIR", &cfg.Logger.Dir)
	str("LOG_FILE", &cfg.Logger.File)
	str("LOG_DIR", &cfg.EmptyFacts.Dir)
	str("EMPTY_FACTS_LOG_FILE", &cfg.EmptyFacts.File)
	return nil
}

var (
	supportedModelProviders = map[string]bool{"ollama": true, "openai": true, "gemini": true}
	supportedStores         = map[string]bool{"pgvector": true, "milvus": true}
)

// Validate 校验配置中相互关联的字段。
func (c *AppConfig) Validate() error {
	var errs []error
	pg := c.Databases.Postgres
	if pg.MaxConns < 1 {
		errs = append(errs, fmt.Errorf("databases.postgres.maxConns 必须 >= 1 (当前 %d)", pg.MaxConns))
	}
	if pg.MinConns < 0 || pg.MinConns > pg.MaxConns {
		errs = append(errs, fmt.Errorf("databases.postgres.minConns 必须在 [0, maxConns] 范围内 (当前 %d)", pg.MinConns))
	}
	if !supportedModelProviders[c.LLM.Provider] {
		errs = append(errs, fmt.Errorf("不支持的 LLM 提供商: %q", c.LLM.Provider))
	}
	if !supportedModelProviders[c.Embedding.Provider] {
		errs = append(errs, fmt.Errorf("不支持的 Embedding 提供商: %q", c.Embedding.Provider))
	}
	if !supportedStores[c.VectorStore.Provider] {
		errs = append(errs, fmt.Errorf("不支持的向量存储: %q", c.VectorStore.Provider))
	}
	if c.VectorStore.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("vectorStore.dimension 必须 > 0"))
	}
	if _, err := c.MemoryService.CallTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.MemoryService.Kafka.DedupeTTLDuration(); err != nil {
		errs = append(errs, err)
	}
	if c.MemoryService.Kafka.Enabled && len(c.Databases.Kafka.Brokers) == 0 {
		errs = append(errs, fmt.Errorf("memoryService.kafka 已启用但未配置 databases.kafka.brokers"))
	}
	return errors.Join(errs...)
}
