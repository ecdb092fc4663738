package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"koodecode/internal/common/mq"
	"koodecode/internal/judge/model"
	appErr "koodecode/pkg/errors"

	"github.com/google/uuid"
)

// StatusEventPublisher publishes final statuses to the submission service.
type StatusEventPublisher interface {
	PublishFinalStatus(ctx context.Context, status model.JudgeStatusResponse) error
}

// ResultEventPublisher fans judged results out to rooms and statistics.
type ResultEventPublisher interface {
	PublishRoomEvent(ctx context.Context, event model.RoomEvent) error
	PublishStatsEvent(ctx context.Context, event model.StatsEvent) error
}

// EventTopics names the topics events are published to.
type EventTopics struct {
	Final string `yaml:"final"`
	Room  string `yaml:"room"`
	Stats string `yaml:"stats"`
}

// MQEventPublisher publishes judge events to a message queue.
type MQEventPublisher struct {
	queue  mq.Producer
	topics EventTopics
}

// NewMQEventPublisher creates a new MQ event publisher.
func NewMQEventPublisher(queue mq.Producer, topics EventTopics) *MQEventPublisher {
	return &MQEventPublisher{queue: queue, topics: topics}
}

// PublishFinalStatus publishes a final status event keyed by submission.
func (p *MQEventPublisher) PublishFinalStatus(ctx context.Context, status model.JudgeStatusResponse) error {
	if status.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	event := model.StatusEvent{
		EventID:   uuid.NewString(),
		Type:      model.StatusEventFinal,
		Status:    status,
		CreatedAt: time.Now().Unix(),
	}
	return p.publish(ctx, p.topics.Final, status.SubmissionID, event)
}

// PublishRoomEvent publishes a room event keyed by room so a room's events stay ordered.
func (p *MQEventPublisher) PublishRoomEvent(ctx context.Context, event model.RoomEvent) error {
	if event.RoomID == "" {
		return appErr.ValidationError("room_id", "required")
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	return p.publish(ctx, p.topics.Room, event.RoomID, event)
}

// PublishStatsEvent publishes a statistics event keyed by problem.
func (p *MQEventPublisher) PublishStatsEvent(ctx context.Context, event model.StatsEvent) error {
	if event.ProblemID <= 0 {
		return appErr.ValidationError("problem_id", "required")
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	return p.publish(ctx, p.topics.Stats, fmt.Sprintf("%d", event.ProblemID), event)
}

func (p *MQEventPublisher) publish(ctx context.Context, topic, key string, event interface{}) error {
	if p == nil || p.queue == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("event publisher is not configured")
	}
	if topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("event topic is required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = key
	if err := p.queue.Publish(ctx, topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish event to %s failed", topic)
	}
	return nil
}
