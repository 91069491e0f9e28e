package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFromURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://media.example.com/videos/abc123.mp4", "abc123.mp4"},
		{"https://media.example.com/videos/abc123.mp4?X-Amz-Signature=zzz", "abc123.mp4"},
		{"https://thumbs.s3.us-east-1.amazonaws.com/cv37rs3.png", "cv37rs3.png"},
		{"https://media.example.com/videos/with%20space.mp4", "with space.mp4"},
		{"https://media.example.com/", ""},
		{"", ""},
		{"::not a url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, KeyFromURL(tt.in))
		})
	}
}

func TestObjectURL(t *testing.T) {
	withBase := &S3Store{region: "auto", publicURL: "https://media.example.com"}
	assert.Equal(t, "https://media.example.com/videos/a.mp4", withBase.ObjectURL("videos", "a.mp4"))

	aws := &S3Store{region: "eu-west-1"}
	assert.Equal(t, "https://videos.s3.eu-west-1.amazonaws.com/a.mp4", aws.ObjectURL("videos", "a.mp4"))
}

// fakeS3 records the requests an S3Store sends to a path-style endpoint.
type fakeS3 struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	switch r.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.bodies[r.URL.Path] = b
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store_PutAndDelete(t *testing.T) {
	fake := &fakeS3{bodies: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Store(context.Background(), S3Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		PublicURL:       "https://media.example.com/",
	})
	require.NoError(t, err)

	payload := []byte("fake video bytes")
	u, err := store.Put(context.Background(), "videos", "clip.mp4", "video/mp4", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/videos/clip.mp4", u)

	require.NoError(t, store.Delete(context.Background(), "videos", "clip.mp4"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"PUT /videos/clip.mp4", "DELETE /videos/clip.mp4"}, fake.requests)
	assert.Equal(t, payload, fake.bodies["/videos/clip.mp4"])
}

func TestS3Store_PutRequiresBucketAndKey(t *testing.T) {
	store := &S3Store{}
	_, err := store.Put(context.Background(), "", "k", "video/mp4", bytes.NewReader(nil), 0)
	assert.Error(t, err)
}
