package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/angelmondragon/restock-pipeline/pkg/config"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClientOptionsPrioritizesJSON(t *testing.T) {
	gcp := config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	}

	opts := clientOptions(gcp)
	if len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
}

func TestClientOptionsEmpty(t *testing.T) {
	opts := clientOptions(config.GCPConfig{})
	if len(opts) != 0 {
		t.Fatalf("expected 0 options when no credentials provided, got %d", len(opts))
	}
}

func TestNewClientValidatesInput(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "restock"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: " "}, nil); !errors.Is(err, errDatasetRequired) {
		t.Fatalf("expected dataset error, got %v", err)
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	if _, err := c.Query(context.Background(), "SELECT 1", nil); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if c.TableRef("raw_orders") != "" {
		t.Fatalf("nil client should not build refs")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	notFound := fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})
	if !IsNotFound(notFound) || IsRetryable(notFound) {
		t.Fatalf("404 should be not-found and fatal")
	}

	cases := []struct {
		err  error
		want bool
	}{
		{&googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{&googleapi.Error{Code: http.StatusServiceUnavailable}, true},
		{&googleapi.Error{Code: http.StatusBadRequest}, false},
		{status.Error(codes.Unavailable, "down"), true},
		{status.Error(codes.InvalidArgument, "bad sql"), false},
		{context.DeadlineExceeded, true},
		{errors.New("plain"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
