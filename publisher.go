package taskengine

import (
	"context"
	"log/slog"

	"github.com/mashiike/taskengine/a2a"
)

// eventPublisher fans a committed task event out to the event stream and the
// task's push notification endpoints. Failures are logged and never returned:
// the store update the event describes has already committed.
type eventPublisher struct {
	events  EventStream
	store   Store
	sender  PushNotificationSender
	metrics *Metrics
	logger  *slog.Logger
}

func (p eventPublisher) publish(ctx context.Context, tenant string, event a2a.TaskEvent) {
	if err := p.events.Publish(ctx, Event{Tenant: tenant, TaskEvent: event}); err != nil {
		p.logger.Error("Failed to publish task event", "error", err, "taskID", event.GetTaskID(), "tenant", tenant)
	} else {
		p.metrics.eventPublished(eventKind(event))
	}
	if p.sender != nil {
		p.sendPushNotifications(ctx, tenant, event)
	}
}

func eventKind(event a2a.TaskEvent) string {
	switch event.(type) {
	case *a2a.TaskStatusUpdateEvent:
		return string(a2a.KindStatusUpdate)
	case *a2a.TaskArtifactUpdateEvent:
		return string(a2a.KindArtifactUpdate)
	default:
		return "unknown"
	}
}

func (p eventPublisher) sendPushNotifications(ctx context.Context, tenant string, event a2a.TaskEvent) {
	opts := ListPushNotificationConfigsOptions{TaskID: event.GetTaskID(), PageSize: MaxPageSize}
	for {
		page, err := p.store.ListPushNotificationConfigs(ctx, opts, tenant)
		if err != nil {
			p.logger.Error("Failed to list push notification configs", "error", err, "taskID", event.GetTaskID(), "tenant", tenant)
			return
		}
		for _, config := range page.Configs {
			err := p.sender.Send(ctx, config.PushNotificationConfig, a2a.NewStreamResponse(event))
			p.metrics.pushNotificationSent(err)
			if err != nil {
				p.logger.Warn("Failed to send push notification", "error", err, "taskID", event.GetTaskID(), "configID", config.PushNotificationConfig.ID)
			}
		}
		if page.NextPageToken == "" {
			return
		}
		opts.PageToken = page.NextPageToken
	}
}
