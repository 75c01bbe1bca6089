package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/equity_backend/config"
	"github.com/mmdatafocus/equity_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	EventShareSold           = "ShareSold"
	EventDailyReportRecorded = "DailyReportRecorded"
)

// LedgerEvent is published after a ledger change has been committed.
type LedgerEvent struct {
	Type          string    `json:"type"`
	CorrelationId string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	Data          any       `json:"data"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event LedgerEvent) error
}

// PubSubPublisher sends ledger events to a Pub/Sub topic.
type PubSubPublisher struct {
	Topic string
}

func (p PubSubPublisher) Publish(ctx context.Context, event LedgerEvent) error {
	_, err := config.PublishJSON(ctx, p.Topic, event, map[string]string{
		"event_type": event.Type,
	})
	return err
}

func newLedgerEvent(ctx context.Context, eventType string, data any) LedgerEvent {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	return LedgerEvent{
		Type:          eventType,
		CorrelationId: correlationId,
		OccurredAt:    time.Now().UTC(),
		Data:          data,
	}
}

// publishBestEffort never fails the caller; the change it describes is already committed.
func publishBestEffort(ctx context.Context, publisher EventPublisher, logger *logrus.Logger, event LedgerEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(context.WithoutCancel(ctx), event); err != nil && logger != nil {
		config.LogError(logger, "Workflow", "publishBestEffort", "publish ledger event", event.Type, err)
	}
}
