package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/angelmondragon/restock-pipeline/pkg/config"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	metadataCheckTimeout = 10 * time.Second
)

type Client struct {
	client    *bigquery.Client
	dataset   *bigquery.Dataset
	projectID string
	cfg       config.BigQueryConfig
}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

type Pinger interface {
	Ping(context.Context) error
}

// RowIterator is the read side of a query job; *bigquery.RowIterator satisfies it.
type RowIterator interface {
	Next(dst any) error
}

// NewClient creates a BigQuery client and verifies (or creates) the configured dataset.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	if cfg.Location != "" {
		bqClient.Location = cfg.Location
	}

	client := &Client{
		client:    bqClient,
		dataset:   bqClient.Dataset(datasetID),
		projectID: projectID,
		cfg:       cfg,
	}

	if err := client.ensureDataset(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "dataset", datasetID), "bigquery client initialized")
	}

	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

func (c *Client) ensureDataset(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	_, err := c.dataset.Metadata(ctx)
	switch {
	case err == nil:
		return nil
	case IsNotFound(err) && c.cfg.EnsureTables:
		meta := &bigquery.DatasetMetadata{Location: c.cfg.Location}
		if err := c.dataset.Create(ctx, meta); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("creating dataset %q: %w", c.dataset.DatasetID, err)
		}
		return nil
	case IsNotFound(err):
		return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
	default:
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}
}

// Ping verifies the dataset is accessible.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()
	_, err := c.dataset.Metadata(ctx)
	return err
}

// EnsureExternalTable creates the table backed by ec when it does not exist.
// An existing table is left untouched.
func (c *Client) EnsureExternalTable(ctx context.Context, table string, ec *bigquery.ExternalDataConfig) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}

	ref := c.dataset.Table(table)
	if _, err := ref.Metadata(ctx); err == nil {
		return nil
	} else if !IsNotFound(err) {
		return fmt.Errorf("checking table %q: %w", table, err)
	}

	if err := ref.Create(ctx, &bigquery.TableMetadata{ExternalDataConfig: ec}); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("creating external table %q: %w", table, err)
	}
	return nil
}

// TableRef returns the fully qualified, backtick-quoted table identifier.
func (c *Client) TableRef(table string) string {
	if c == nil || c.dataset == nil {
		return ""
	}
	return fmt.Sprintf("`%s.%s.%s`", c.projectID, c.dataset.DatasetID, strings.TrimSpace(table))
}

// Query executes SQL against BigQuery and returns the row iterator.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (RowIterator, error) {
	if c == nil || c.client == nil {
		return nil, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.client.Query(sql)
	q.Parameters = params
	if c.cfg.Location != "" {
		q.Location = c.cfg.Location
	}
	return q.Read(ctx)
}

// Close releases the BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsNotFound reports a 404 from the BigQuery API.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusConflict
	}
	return false
}

// IsRetryable reports transient BigQuery failures: rate limits, 5xx, timeouts
// and the equivalent gRPC status codes.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
			return true
		}
	}
	return false
}
