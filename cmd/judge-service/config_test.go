package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "judge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
kafka:
  brokers: ["127.0.0.1:9092"]
  taskTopic: judge.tasks
  deadLetterTopic: judge.dead
database:
  dsn: "user:pass@tcp(127.0.0.1:3306)/judge"
redis:
  addr: "127.0.0.1:6379"
minio:
  bucket: submissions
judge0:
  baseURL: "http://127.0.0.1:2358"
worker:
  poolSize: 4
  prefetch: 2
`

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr || cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Source.Bucket != "submissions" {
		t.Fatalf("source bucket should fall back to minio bucket, got %q", cfg.Source.Bucket)
	}
	if cfg.Kafka.Concurrency != 6 {
		t.Fatalf("expected concurrency poolSize+prefetch, got %d", cfg.Kafka.Concurrency)
	}
	if cfg.Kafka.PoolRetry.Topic != "judge.retry" || cfg.Kafka.PoolRetry.DeadLetter != "judge.dead" || cfg.Kafka.PoolRetry.BaseDelay != time.Second {
		t.Fatalf("unexpected pool retry defaults: %+v", cfg.Kafka.PoolRetry)
	}
	if cfg.Topics.Final == "" || cfg.Topics.Room == "" || cfg.Topics.Stats == "" {
		t.Fatalf("event topics must default: %+v", cfg.Topics)
	}
	if cfg.Redis.PoolSize == 0 {
		t.Fatalf("redis defaults were not applied")
	}
	if cfg.Worker.Timeout != defaultJudgeTimeout {
		t.Fatalf("unexpected judge timeout %s", cfg.Worker.Timeout)
	}
}

func TestLoadAppConfigParsesDurationsAndInline(t *testing.T) {
	body := minimalConfig + `
  timeout: 90s
  languages: [71, 54]
poller:
  baseDelay: 250ms
  maxAttempts: 20
`
	body = strings.Replace(body, "kafka:\n", "kafka:\n  clientID: judge-a\n  batchTimeout: 5ms\n", 1)
	cfg, err := loadAppConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Kafka.ClientID != "judge-a" || cfg.Kafka.BatchTimeout != 5*time.Millisecond {
		t.Fatalf("inline kafka settings not parsed: %+v", cfg.Kafka.KafkaConfig)
	}
	if cfg.Worker.Timeout != 90*time.Second || len(cfg.Worker.Languages) != 2 {
		t.Fatalf("unexpected worker config: %+v", cfg.Worker)
	}
	if cfg.Poller.BaseDelay != 250*time.Millisecond || cfg.Poller.MaxAttempts != 20 {
		t.Fatalf("unexpected poller config: %+v", cfg.Poller)
	}
}

func TestLoadAppConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		drop   string
		expect string
	}{
		{"dsn", `  dsn: "user:pass@tcp(127.0.0.1:3306)/judge"`, "database dsn"},
		{"redis", `  addr: "127.0.0.1:6379"`, "redis addr"},
		{"brokers", `  brokers: ["127.0.0.1:9092"]`, "kafka brokers"},
		{"task topic", `  taskTopic: judge.tasks`, "task topic"},
		{"judge0", `  baseURL: "http://127.0.0.1:2358"`, "judge0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.Replace(minimalConfig, tt.drop+"\n", "", 1)
			_, err := loadAppConfig(writeConfig(t, body))
			if err == nil || !strings.Contains(err.Error(), tt.expect) {
				t.Fatalf("expected %q error, got %v", tt.expect, err)
			}
		})
	}
	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
