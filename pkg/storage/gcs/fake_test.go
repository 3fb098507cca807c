package gcs

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
)

// fakeServer emulates the subset of the JSON API the client uses.
type fakeServer struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	authSeen []string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{objects: map[string][]byte{}, pageSize: 2}
	srv := httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))

	path := r.URL.EscapedPath()
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/upload/storage/v1/b/bucket/o"):
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Query().Get("name")] = body
		_ = json.NewEncoder(w).Encode(map[string]string{"name": r.URL.Query().Get("name")})
	case r.Method == http.MethodGet && path == "/storage/v1/b/bucket/o":
		f.list(w, r)
	case strings.HasPrefix(path, "/storage/v1/b/bucket/o/"):
		name, _ := url.PathUnescape(strings.TrimPrefix(path, "/storage/v1/b/bucket/o/"))
		data, ok := f.objects[name]
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		if r.Method == http.MethodDelete {
			delete(f.objects, name)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write(data)
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusBadRequest)
	}
}

func (f *fakeServer) list(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	var names []string
	for name := range f.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	start := 0
	if tok := r.URL.Query().Get("pageToken"); tok != "" {
		for i, n := range names {
			if n == tok {
				start = i
			}
		}
	}
	end := start + f.pageSize
	resp := listResponse{}
	if end < len(names) {
		resp.NextPageToken = names[end]
	} else {
		end = len(names)
	}
	for _, n := range names[start:end] {
		resp.Items = append(resp.Items, struct {
			Name string `json:"name"`
		}{Name: n})
	}
	_ = json.NewEncoder(w).Encode(resp)
}
