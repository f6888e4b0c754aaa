package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/barberflow/barberflow/libs/kafkax"
)

func TestNewEventEncodesPayload(t *testing.T) {
	evt, err := NewEvent("appointment", "a-1", "booking.appointment.created.v1", map[string]string{"tenant_id": "t-1"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(evt.Payload, &decoded); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if decoded["tenant_id"] != "t-1" || evt.AggregateID != "a-1" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestToMessageCarriesMeta(t *testing.T) {
	msg := toMessage(context.Background(), Record{
		ID:            7,
		EventID:       "e-7",
		AggregateType: "tenant",
		AggregateID:   "t-9",
		EventType:     "manager.tenant.provisioned.v1",
		Payload:       []byte(`{}`),
	})
	if msg.Topic != "manager.tenant.provisioned.v1" || string(msg.Key) != "t-9" {
		t.Fatalf("unexpected message %+v", msg)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "e-7" || meta.EventType != "manager.tenant.provisioned.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}
