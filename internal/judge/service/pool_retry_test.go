package service

import (
	"context"
	"testing"
	"time"

	"koodecode/internal/common/mq"
	appErr "koodecode/pkg/errors"
)

func TestPoolRetryBackoff(t *testing.T) {
	p := PoolRetry{BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{20, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.retry); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.retry, got, tt.want)
		}
	}
	if got := (PoolRetry{}).Backoff(3); got != 0 {
		t.Errorf("zero base delay should disable backoff, got %s", got)
	}
}

func TestParsePoolRetryCount(t *testing.T) {
	if got := ParsePoolRetryCount(nil); got != 0 {
		t.Fatalf("expected 0 for nil headers, got %d", got)
	}
	if got := ParsePoolRetryCount(map[string]string{poolRetryHeader: "-2"}); got != 0 {
		t.Fatalf("expected 0 for negative count, got %d", got)
	}
	if got := ParsePoolRetryCount(map[string]string{poolRetryHeader: "3"}); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestPoolRetryRequeue(t *testing.T) {
	prod := &capturingProducer{}
	p := PoolRetry{Topic: "judge.retry", DeadLetter: "judge.dead", MaxRetries: 2}
	msg := mq.NewMessage([]byte(`{}`))
	msg.ID = "sub-1"
	msg.RetryCount = 2
	msg.Headers = map[string]string{"trace": "t-1"}

	if err := p.Requeue(context.Background(), prod, msg); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	out := prod.messages["judge.retry"][0]
	if out.Headers[poolRetryHeader] != "1" || out.Headers["trace"] != "t-1" || out.RetryCount != 0 || out.ID != "sub-1" {
		t.Fatalf("unexpected requeued message: %+v", out)
	}

	out.Headers[poolRetryHeader] = "2"
	if err := p.Requeue(context.Background(), prod, out); err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	if len(prod.messages["judge.dead"]) != 1 {
		t.Fatalf("expected message in dead letter topic")
	}
}

func TestPoolRetryRequeueErrors(t *testing.T) {
	msg := mq.NewMessage(nil)
	if err := (PoolRetry{}).Requeue(context.Background(), &capturingProducer{}, msg); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
	p := PoolRetry{Topic: "judge.retry", MaxRetries: 1}
	msg.Headers = map[string]string{poolRetryHeader: "1"}
	if err := p.Requeue(context.Background(), &capturingProducer{}, msg); !appErr.Is(err, appErr.JudgeQueueFull) {
		t.Fatalf("expected JudgeQueueFull without dead letter, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p = PoolRetry{Topic: "judge.retry", BaseDelay: time.Hour}
	if err := p.Requeue(ctx, &capturingProducer{}, mq.NewMessage(nil)); err != context.Canceled {
		t.Fatalf("expected context.Canceled during backoff, got %v", err)
	}
}
