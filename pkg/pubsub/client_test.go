package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/restock-pipeline/pkg/config"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestTopicResourceName(t *testing.T) {
	tests := []struct {
		project string
		topic   string
		want    string
	}{
		{project: "restock", topic: " batches ", want: "projects/restock/topics/batches"},
		{project: "restock", topic: "projects/other/topics/x", want: "projects/other/topics/x"},
		{project: "", topic: "batches", want: ""},
		{project: "restock", topic: "", want: ""},
	}
	for _, tt := range tests {
		if got := topicResourceName(tt.project, tt.topic); got != tt.want {
			t.Fatalf("topicResourceName(%q, %q) = %q, want %q", tt.project, tt.topic, got, tt.want)
		}
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{BatchTopic: "b"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected errProjectIDRequired, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil); !errors.Is(err, errNoTopic) {
		t.Fatalf("expected errNoTopic, got %v", err)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if p := c.BatchPublisher(); p != nil {
		t.Fatalf("expected nil publisher, got %v", p)
	}
	if p := c.Publisher("batches"); p != nil {
		t.Fatalf("expected nil publisher, got %v", p)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error on nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), want: true},
		{name: "permission denied", err: status.Error(codes.PermissionDenied, "nope"), want: false},
		{name: "nil", err: nil, want: false},
		{name: "opaque maps to unknown", err: errors.New("opaque"), want: true},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Fatalf("%s: IsRetryable = %v, want %v", tt.name, got, tt.want)
		}
	}
}
