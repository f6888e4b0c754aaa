package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/barberflow/barberflow/libs/kafkax"
	"github.com/barberflow/barberflow/services/booking-service/internal/events"
	"github.com/segmentio/kafka-go"
)

// Message is what admin consoles receive.
type Message struct {
	Type          string `json:"type"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status,omitempty"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

// EventHandler turns appointment events into realtime messages.
func EventHandler(pub Publisher, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt events.Appointment
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid appointment event", "err", err, "topic", msg.Topic)
			return nil
		}
		if evt.TenantID == "" {
			logger.Error("appointment event without tenant", "topic", msg.Topic)
			return nil
		}
		out, err := json.Marshal(Message{
			Type:          events.Kind(msg.Topic),
			AppointmentID: evt.AppointmentID,
			Status:        evt.Status,
			PaymentStatus: evt.PaymentStatus,
			Date:          evt.Date,
			Time:          evt.Time,
		})
		if err != nil {
			return err
		}
		return pub.Publish(ctx, evt.TenantID, out)
	}
}
