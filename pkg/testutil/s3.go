package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Matatika/tap-shopify/pkg/config"
)

// FakeS3 is an in-memory, path-style S3 endpoint supporting single-part
// PutObject and GetObject.
type FakeS3 struct {
	*httptest.Server

	mu         sync.Mutex
	objects    map[string][]byte
	failStatus int
}

// NewFakeS3 starts a FakeS3 that is closed when the test ends.
func NewFakeS3(t *testing.T) *FakeS3 {
	t.Helper()
	f := &FakeS3{objects: make(map[string][]byte)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// Location returns an S3Location pointing at bucket/key on f.
func (f *FakeS3) Location(bucket, key string) config.S3Location {
	return config.S3Location{
		Bucket:          bucket,
		Key:             key,
		Region:          "us-east-1",
		Endpoint:        f.URL,
		UsePathStyle:    true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	}
}

// Object returns the stored body of bucket/key.
func (f *FakeS3) Object(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[bucket+"/"+key]
	return b, ok
}

// FailPuts makes every following PutObject fail with an AccessDenied
// error and the given status.
func (f *FakeS3) FailPuts(status int) {
	f.mu.Lock()
	f.failStatus = status
	f.mu.Unlock()
}

func (f *FakeS3) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")

	switch r.Method {
	case http.MethodPut:
		f.mu.Lock()
		status := f.failStatus
		f.mu.Unlock()
		if status != 0 {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.objects[path] = body
		f.mu.Unlock()
		w.Header().Set("ETag", `"fake"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		f.mu.Lock()
		body, ok := f.objects[path]
		f.mu.Unlock()
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
