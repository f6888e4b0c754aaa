package cache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/barberflow/barberflow/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// Tenant change events published by business-service and manager-service.
const (
	TopicBusinessTenantUpdated = "business.tenant.updated.v1"
	TopicManagerTenantUpdated  = "manager.tenant.updated.v1"
)

func InvalidationTopics() []string {
	return []string{TopicBusinessTenantUpdated, TopicManagerTenantUpdated}
}

type tenantChanged struct {
	TenantID string `json:"tenant_id"`
	Slug     string `json:"slug"`
}

type deleter interface {
	Delete(ctx context.Context, slug string) error
}

// InvalidationHandler drops the cached profile of a changed tenant.
func InvalidationHandler(c deleter, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt tenantChanged
		if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.Slug == "" {
			logger.Error("invalid tenant event", "err", err, "topic", msg.Topic)
			return nil
		}
		if err := c.Delete(ctx, evt.Slug); err != nil {
			return err
		}
		logger.Debug("profile cache invalidated", "slug", evt.Slug, "tenant_id", evt.TenantID)
		return nil
	}
}
