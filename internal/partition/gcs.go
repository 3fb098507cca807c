package partition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/angelmondragon/restock-pipeline/pkg/storage/gcs"
	"golang.org/x/sync/errgroup"
)

// objectClient is the slice of pkg/storage/gcs the store needs.
type objectClient interface {
	Upload(ctx context.Context, name, contentType string, body io.Reader) error
	Download(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

// GCSStore keeps partitions as objects in a GCS bucket.
type GCSStore struct {
	client         objectClient
	deleteParallel int
}

func NewGCSStore(client objectClient) *GCSStore {
	return &GCSStore{client: client, deleteParallel: 8}
}

func (s *GCSStore) Put(ctx context.Context, key string, body io.Reader) error {
	return s.client.Upload(ctx, key, contentTypeFor(key), body)
}

func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.client.Download(ctx, key)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return rc, err
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.client.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *GCSStore) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.client.List(ctx, prefix)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.deleteParallel)
	for _, key := range keys {
		g.Go(func() error {
			if err := s.client.Delete(gctx, key); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *GCSStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func contentTypeFor(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
