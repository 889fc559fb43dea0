package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	body  []byte
	etag  string
	gets  int
	found bool
}

func (f *fakeS3) StatObject(_ context.Context, bucket, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if !f.found {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	}
	return minio.ObjectInfo{Key: key, Size: int64(len(f.body)), ETag: f.etag}, nil
}

func (f *fakeS3) FGetObject(_ context.Context, _, _, filePath string, _ minio.GetObjectOptions) error {
	f.gets++
	return os.WriteFile(filePath, f.body, 0o644)
}

func TestResolve_LocalPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "num.zip")
	require.NoError(t, os.WriteFile(p, []byte("zip"), 0o644))

	f := &Fetcher{CacheDir: t.TempDir()}
	got, err := f.Resolve(t.Context(), p)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	got, err = f.Resolve(t.Context(), "file://"+p)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = f.Resolve(t.Context(), p+".missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_S3DownloadsOnce(t *testing.T) {
	s3 := &fakeS3{body: []byte("archive-bytes"), found: true}
	f := &Fetcher{CacheDir: t.TempDir(), S3: s3}

	p, err := f.Resolve(t.Context(), "s3://bag/2026/num.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.CacheDir, "bag", "2026", "num.zip"), p)
	body, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, s3.body, body)

	_, err = f.Resolve(t.Context(), "s3://bag/2026/num.zip")
	require.NoError(t, err)
	assert.Equal(t, 1, s3.gets)
}

func TestResolve_S3RefetchesOnNewETag(t *testing.T) {
	s3 := &fakeS3{body: []byte("release-2026-09"), etag: "a1", found: true}
	f := &Fetcher{CacheDir: t.TempDir(), S3: s3}

	_, err := f.Resolve(t.Context(), "s3://bag/num.zip")
	require.NoError(t, err)

	// 同样大小、不同内容的新版本
	s3.body, s3.etag = []byte("release-2026-10"), "b2"
	p, err := f.Resolve(t.Context(), "s3://bag/num.zip")
	require.NoError(t, err)
	body, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "release-2026-10", string(body))
	assert.Equal(t, 2, s3.gets)

	_, err = f.Resolve(t.Context(), "s3://bag/num.zip")
	require.NoError(t, err)
	assert.Equal(t, 2, s3.gets)
}

func TestResolve_S3Missing(t *testing.T) {
	f := &Fetcher{CacheDir: t.TempDir(), S3: &fakeS3{}}
	_, err := f.Resolve(t.Context(), "s3://bag/none.zip")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lvbag/vbo.zip" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := &Fetcher{CacheDir: t.TempDir(), HTTP: srv.Client()}
	p, err := f.Resolve(t.Context(), srv.URL+"/lvbag/vbo.zip")
	require.NoError(t, err)
	body, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
	assert.NoFileExists(t, p+".tmp")

	_, err = f.Resolve(t.Context(), srv.URL+"/other.zip")
	assert.ErrorIs(t, err, ErrNotFound)
}

// release：带 ETag 的上游，支持 If-None-Match
type release struct {
	mu    sync.Mutex
	body  string
	etag  string
	full  int
	empty int
}

func (rl *release) set(body, etag string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.body, rl.etag = body, etag
}

func (rl *release) counts() (full, empty int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.full, rl.empty
}

func (rl *release) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.etag != "" {
		if r.Header.Get("If-None-Match") == rl.etag {
			rl.empty++
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", rl.etag)
	}
	rl.full++
	_, _ = w.Write([]byte(rl.body))
}

func TestResolve_HTTPRevalidates(t *testing.T) {
	rl := &release{body: "release-2026-09", etag: `"v1"`}
	srv := httptest.NewServer(rl)
	defer srv.Close()
	f := &Fetcher{CacheDir: t.TempDir(), HTTP: srv.Client()}
	src := srv.URL + "/lvbag/num.zip"

	_, err := f.Resolve(t.Context(), src)
	require.NoError(t, err)
	_, err = f.Resolve(t.Context(), src)
	require.NoError(t, err)
	full, empty := rl.counts()
	assert.Equal(t, 1, full)
	assert.Equal(t, 1, empty)

	rl.set("release-2026-10-new", `"v2"`)
	p, err := f.Resolve(t.Context(), src)
	require.NoError(t, err)
	body, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "release-2026-10-new", string(body))
	full, _ = rl.counts()
	assert.Equal(t, 2, full)
}

func TestResolve_HTTPWithoutValidatorsAlwaysDownloads(t *testing.T) {
	rl := &release{body: "release-2026-09"}
	srv := httptest.NewServer(rl)
	defer srv.Close()
	f := &Fetcher{CacheDir: t.TempDir(), HTTP: srv.Client()}
	src := srv.URL + "/num.zip"

	_, err := f.Resolve(t.Context(), src)
	require.NoError(t, err)
	rl.set("release-2026-10-new", "")
	p, err := f.Resolve(t.Context(), src)
	require.NoError(t, err)
	body, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "release-2026-10-new", string(body))
	full, empty := rl.counts()
	assert.Equal(t, 2, full)
	assert.Zero(t, empty)
}

func TestResolve_UnsupportedScheme(t *testing.T) {
	_, err := (&Fetcher{}).Resolve(t.Context(), "ftp://host/file.zip")
	assert.Error(t, err)
}
