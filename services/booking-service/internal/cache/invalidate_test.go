package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
)

type recordingDeleter struct {
	slugs []string
	err   error
}

func (r *recordingDeleter) Delete(_ context.Context, slug string) error {
	r.slugs = append(r.slugs, slug)
	return r.err
}

func TestInvalidationHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := &recordingDeleter{}
	h := InvalidationHandler(d, logger)

	msg := kafka.Message{Topic: TopicBusinessTenantUpdated, Value: []byte(`{"tenant_id":"t1","slug":"barbearia-do-ze"}`)}
	if err := h(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(d.slugs) != 1 || d.slugs[0] != "barbearia-do-ze" {
		t.Fatalf("unexpected deletes: %v", d.slugs)
	}

	if err := h(context.Background(), kafka.Message{Value: []byte(`{"tenant_id":"t1"}`)}); err != nil {
		t.Fatalf("events without slug are dropped, got %v", err)
	}
	if len(d.slugs) != 1 {
		t.Fatalf("slugless event must not delete")
	}

	d.err = errors.New("redis down")
	if err := h(context.Background(), msg); err == nil {
		t.Fatalf("expected delete error to surface")
	}
}

func TestKey(t *testing.T) {
	if Key("barbearia-do-ze") != "booking:profile:barbearia-do-ze" {
		t.Fatalf("unexpected key %q", Key("barbearia-do-ze"))
	}
}
