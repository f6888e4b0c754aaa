package blob

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestDisabledStore(t *testing.T) {
	var s Store = Disabled{}
	if err := s.Put(context.Background(), "k", "image/png", nil); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := s.PresignGet(context.Background(), "k", time.Minute); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestS3PresignUsesPrefixedKey(t *testing.T) {
	s, err := NewS3(context.Background(), S3Config{
		Bucket:    "logos",
		Region:    "us-east-1",
		KeyPrefix: "barberflow/",
		Endpoint:  "http://localhost:9000",
		AccessID:  "minio",
		AccessKey: "minio123",
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	url, err := s.PresignGet(context.Background(), "tenants/t1/logo.png", 15*time.Minute)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	if !strings.Contains(url, "/logos/barberflow/tenants/t1/logo.png") {
		t.Fatalf("unexpected url %s", url)
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}
