package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrObjectNotExist is returned when the requested object is missing.
var ErrObjectNotExist = errors.New("gcs: object does not exist")

// APIError carries a non-2xx response from the JSON API.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gcs %s failed: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("gcs %s failed: status %d: %s", e.Op, e.Status, e.Body)
}

// Temporary reports whether retrying the call may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func newAPIError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func (c *Client) objectURL(name string) string {
	return fmt.Sprintf("%s/b/%s/o/%s", c.baseURL, url.PathEscape(c.defaultBucket), url.PathEscape(name))
}

// Upload writes body to the named object with a single media upload.
func (c *Client) Upload(ctx context.Context, name, contentType string, body io.Reader) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	q := url.Values{}
	q.Set("uploadType", "media")
	q.Set("name", name)
	u := fmt.Sprintf("%s/b/%s/o?%s", c.uploadURL, url.PathEscape(c.defaultBucket), q.Encode())

	resp, err := c.do(ctx, http.MethodPost, u, body, contentType)
	if err != nil {
		return err
	}
	defer closeBody(ctx, c.logg, resp.Body, "gcs: closing upload body failed")
	if resp.StatusCode != http.StatusOK {
		return newAPIError("upload", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Download opens the named object. The caller closes the reader.
func (c *Client) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, c.objectURL(name)+"?alt=media", nil, "")
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		closeBody(ctx, c.logg, resp.Body, "gcs: closing download body failed")
		return nil, ErrObjectNotExist
	default:
		defer closeBody(ctx, c.logg, resp.Body, "gcs: closing download body failed")
		return nil, newAPIError("download", resp)
	}
}

// List returns every object name under prefix, following pagination.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("prefix", prefix)
		q.Set("fields", "items(name),nextPageToken")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		u := fmt.Sprintf("%s/b/%s/o?%s", c.baseURL, url.PathEscape(c.defaultBucket), q.Encode())

		page, err := c.listPage(ctx, u)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			names = append(names, item.Name)
		}
		if page.NextPageToken == "" {
			return names, nil
		}
		pageToken = page.NextPageToken
	}
}

type listResponse struct {
	Items []struct {
		Name string `json:"name"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

func (c *Client) listPage(ctx context.Context, u string) (*listResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}
	defer closeBody(ctx, c.logg, resp.Body, "gcs: closing list body failed")
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError("list", resp)
	}
	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode gcs list: %w", err)
	}
	return &page, nil
}

// Delete removes the named object. Missing objects return ErrObjectNotExist.
func (c *Client) Delete(ctx context.Context, name string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.objectURL(name), nil, "")
	if err != nil {
		return err
	}
	defer closeBody(ctx, c.logg, resp.Body, "gcs: closing delete body failed")
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrObjectNotExist
	default:
		return newAPIError("delete", resp)
	}
}
