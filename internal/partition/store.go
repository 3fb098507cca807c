package partition

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("partition: key not found")

const cleanupTimeout = 30 * time.Second

// Store is the minimal object store the pipeline needs. Keys are
// slash-separated and relative to the store root.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns every key under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// DeletePrefix removes every key under prefix. Missing prefixes are not an error.
	DeletePrefix(ctx context.Context, prefix string) error
}

type prefixed struct {
	root  string
	inner Store
}

// WithPrefix scopes store under root ("raw" turns "orders/..." into "raw/orders/...").
func WithPrefix(store Store, root string) Store {
	root = strings.Trim(root, "/")
	if root == "" {
		return store
	}
	return &prefixed{root: root + "/", inner: store}
}

func (p *prefixed) Put(ctx context.Context, key string, body io.Reader) error {
	return p.inner.Put(ctx, p.root+key, body)
}

func (p *prefixed) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return p.inner.Get(ctx, p.root+key)
}

func (p *prefixed) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.inner.List(ctx, p.root+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, p.root))
	}
	return out, nil
}

func (p *prefixed) DeletePrefix(ctx context.Context, prefix string) error {
	return p.inner.DeletePrefix(ctx, p.root+prefix)
}

// Replace clears prefix, runs fn to repopulate it, and removes whatever fn
// left behind if it fails or the context is cancelled. The cleanup runs on a
// detached context so a cancelled run still leaves no partial partition.
func Replace(ctx context.Context, store Store, prefix string, fn func(ctx context.Context) error) error {
	if err := store.DeletePrefix(ctx, prefix); err != nil {
		return err
	}

	err := fn(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		return nil
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	return multierr.Append(err, store.DeletePrefix(cleanupCtx, prefix))
}

// Mirror makes dst/dstPrefix an exact copy of src/srcPrefix and returns the
// destination keys written.
func Mirror(ctx context.Context, src, dst Store, srcPrefix, dstPrefix string) ([]string, error) {
	keys, err := src.List(ctx, srcPrefix)
	if err != nil {
		return nil, err
	}

	var written []string
	err = Replace(ctx, dst, dstPrefix, func(ctx context.Context) error {
		for _, key := range keys {
			target := dstPrefix + strings.TrimPrefix(key, srcPrefix)
			if err := copyKey(ctx, src, dst, key, target); err != nil {
				return err
			}
			written = append(written, target)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

func copyKey(ctx context.Context, src, dst Store, from, to string) (err error) {
	rc, err := src.Get(ctx, from)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, rc.Close()) }()
	return dst.Put(ctx, to, rc)
}
