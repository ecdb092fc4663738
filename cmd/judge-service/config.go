package main

import (
	"fmt"
	"os"
	"time"

	"koodecode/internal/common/cache"
	"koodecode/internal/common/db"
	"koodecode/internal/common/mq"
	"koodecode/internal/common/storage"
	"koodecode/internal/judge/judge0"
	"koodecode/internal/judge/repository"
	"koodecode/internal/judge/service"
	"koodecode/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultJudgeTimeout    = 5 * time.Minute
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka connection and consumer settings.
type KafkaConfig struct {
	mq.KafkaConfig `yaml:",inline"`

	TaskTopic     string        `yaml:"taskTopic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	DeadLetter    string        `yaml:"deadLetterTopic"`
	MessageTTL    time.Duration `yaml:"messageTTL"`

	PoolRetry service.PoolRetry `yaml:"poolRetry"`
}

// PollerConfig holds remote polling settings.
type PollerConfig struct {
	BaseDelay   time.Duration `yaml:"baseDelay"`
	Step        time.Duration `yaml:"step"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	PoolSize int `yaml:"poolSize"`
	// Prefetch is how many tasks may wait for a slot beyond PoolSize.
	Prefetch  int           `yaml:"prefetch"`
	Timeout   time.Duration `yaml:"timeout"`
	Languages []int         `yaml:"languages"`
}

// SourceConfig holds source download settings.
type SourceConfig struct {
	Bucket  string        `yaml:"bucket"`
	Timeout time.Duration `yaml:"timeout"`
	MaxKB   int64         `yaml:"maxKB"`
}

// StatusConfig holds status persistence settings.
type StatusConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	EmptyTTL time.Duration `yaml:"emptyTTL"`
	Timeout  time.Duration `yaml:"timeout"`
	LockTTL  time.Duration `yaml:"lockTTL"`
}

// TestCaseConfig holds test case cache settings.
type TestCaseConfig struct {
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// DistributionConfig holds distribution engine settings.
type DistributionConfig struct {
	CacheTTL     time.Duration `yaml:"cacheTTL"`
	RefreshAfter time.Duration `yaml:"refreshAfter"`
	LoadTimeout  time.Duration `yaml:"loadTimeout"`
	SampleLimit  int           `yaml:"sampleLimit"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server       ServerConfig           `yaml:"server"`
	Logger       logger.Config          `yaml:"logger"`
	Kafka        KafkaConfig            `yaml:"kafka"`
	Database     db.MySQLConfig         `yaml:"database"`
	Redis        cache.RedisConfig      `yaml:"redis"`
	MinIO        storage.MinIOConfig    `yaml:"minio"`
	Judge0       judge0.Config          `yaml:"judge0"`
	Poller       PollerConfig           `yaml:"poller"`
	Worker       WorkerConfig           `yaml:"worker"`
	Source       SourceConfig           `yaml:"source"`
	Status       StatusConfig           `yaml:"status"`
	TestCases    TestCaseConfig         `yaml:"testCases"`
	Distribution DistributionConfig     `yaml:"distribution"`
	Topics       repository.EventTopics `yaml:"topics"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *AppConfig) validate() error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if cfg.Kafka.TaskTopic == "" {
		return fmt.Errorf("kafka task topic is required")
	}
	if cfg.Judge0.BaseURL == "" {
		return fmt.Errorf("judge0 base url is required")
	}
	return nil
}

func (cfg *AppConfig) applyDefaults() {
	cfg.Redis.ApplyDefaults()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Source.Bucket == "" {
		cfg.Source.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 1
	}
	if cfg.Worker.Prefetch < 0 {
		cfg.Worker.Prefetch = 0
	}
	if cfg.Worker.Timeout == 0 {
		cfg.Worker.Timeout = defaultJudgeTimeout
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "judge-service"
	}
	if cfg.Kafka.Concurrency <= 0 {
		cfg.Kafka.Concurrency = cfg.Worker.PoolSize + cfg.Worker.Prefetch
	}
	if cfg.Kafka.PoolRetry.Topic == "" {
		cfg.Kafka.PoolRetry.Topic = "judge.retry"
	}
	if cfg.Kafka.PoolRetry.DeadLetter == "" {
		cfg.Kafka.PoolRetry.DeadLetter = cfg.Kafka.DeadLetter
	}
	if cfg.Kafka.PoolRetry.MaxRetries <= 0 {
		cfg.Kafka.PoolRetry.MaxRetries = 5
	}
	if cfg.Kafka.PoolRetry.BaseDelay == 0 {
		cfg.Kafka.PoolRetry.BaseDelay = time.Second
	}
	if cfg.Kafka.PoolRetry.MaxDelay == 0 {
		cfg.Kafka.PoolRetry.MaxDelay = 30 * time.Second
	}
	if cfg.Topics.Final == "" {
		cfg.Topics.Final = "judge.status.final"
	}
	if cfg.Topics.Room == "" {
		cfg.Topics.Room = "judge.room.events"
	}
	if cfg.Topics.Stats == "" {
		cfg.Topics.Stats = "judge.stats.events"
	}
	if cfg.Distribution.CacheTTL == 0 {
		cfg.Distribution.CacheTTL = time.Hour
	}
	if cfg.Distribution.RefreshAfter == 0 {
		cfg.Distribution.RefreshAfter = 5 * time.Minute
	}
}
