// 包 fetch：把源压缩包位置解析为本地文件路径
// 背景：BAG 压缩包可能在本地、对象存储（s3://bucket/key）或 HTTP(S) 上；远端文件下载到缓存目录后复用
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"pcindex/internal/logger"
	"pcindex/internal/utils"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound：源对象不存在
var ErrNotFound = errors.New("fetch: source not found")

// ObjectGetter：对象存储下载接口，*minio.Client 满足该接口
type ObjectGetter interface {
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FGetObject(ctx context.Context, bucket, key, filePath string, opts minio.GetObjectOptions) error
}

// Fetcher：按来源类型解析
type Fetcher struct {
	CacheDir string
	S3       ObjectGetter
	HTTP     *http.Client
}

// NewS3FromEnv：S3_ENDPOINT 未设置时返回 nil
func NewS3FromEnv() (*minio.Client, error) {
	endpoint := utils.EnvString("S3_ENDPOINT", "")
	if endpoint == "" {
		return nil, nil
	}
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(utils.EnvString("S3_ACCESS_KEY", ""), utils.EnvString("S3_SECRET_KEY", ""), ""),
		Secure: utils.EnvBool("S3_USE_SSL", true),
		Region: utils.EnvString("S3_REGION", ""),
	})
}

// Resolve：以环境变量配置的客户端解析单个来源
func Resolve(ctx context.Context, src, cacheDir string) (string, error) {
	f := &Fetcher{CacheDir: cacheDir, HTTP: http.DefaultClient}
	if strings.HasPrefix(src, "s3://") {
		c, err := NewS3FromEnv()
		if err != nil {
			return "", fmt.Errorf("s3 client: %w", err)
		}
		if c == nil {
			return "", fmt.Errorf("fetch %s: S3_ENDPOINT not set", src)
		}
		f.S3 = c
	}
	return f.Resolve(ctx, src)
}

// 文档注释：解析来源
// 返回：本地路径；本地文件不存在或远端对象不存在返回 ErrNotFound
func (f *Fetcher) Resolve(ctx context.Context, src string) (string, error) {
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// 无 scheme（或 Windows 盘符）按本地路径处理
		if _, err := os.Stat(src); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("%w: %s", ErrNotFound, src)
			}
			return "", err
		}
		return src, nil
	}
	switch u.Scheme {
	case "file":
		return f.Resolve(ctx, u.Path)
	case "s3":
		return f.fromS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "http", "https":
		return f.fromHTTP(ctx, u)
	}
	return "", fmt.Errorf("fetch: unsupported scheme %q", u.Scheme)
}

func (f *Fetcher) fromS3(ctx context.Context, bucket, key string) (string, error) {
	if f.S3 == nil {
		return "", errors.New("fetch: no object storage client")
	}
	src := "s3://" + bucket + "/" + key
	info, err := f.S3.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.Code == "NoSuchBucket" {
			return "", fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return "", err
	}
	want := validator{ETag: info.ETag, Size: info.Size}
	if !info.LastModified.IsZero() {
		want.LastModified = info.LastModified.UTC().Format(http.TimeFormat)
	}
	dst := filepath.Join(f.CacheDir, bucket, filepath.FromSlash(key))
	if have, ok := readValidator(dst); ok && have == want && cached(dst, info.Size) {
		logger.L().Info("fetch_cache_hit", "src", src, "path", dst, "etag", info.ETag)
		return dst, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := dropValidator(dst); err != nil {
		return "", err
	}
	logger.L().Info("fetch_begin", "src", src, "bytes", info.Size, "etag", info.ETag)
	if err := f.S3.FGetObject(ctx, bucket, key, dst, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("download %s: %w", src, err)
	}
	if err := writeValidator(dst, want); err != nil {
		return "", err
	}
	logger.L().Info("fetch_done", "path", dst)
	return dst, nil
}

// 文档注释：HTTP(S) 下载
// 背景：已有缓存时带 If-None-Match / If-Modified-Since 发条件请求，304 复用缓存，200 覆盖缓存；
// 服务端不给校验头时每次都重新下载
func (f *Fetcher) fromHTTP(ctx context.Context, u *url.URL) (string, error) {
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "download.zip"
	}
	dst := filepath.Join(f.CacheDir, u.Host, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	conditional := false
	if have, ok := readValidator(dst); ok && cached(dst, have.Size) {
		conditional = true
		if have.ETag != "" {
			req.Header.Set("If-None-Match", have.ETag)
		}
		if have.LastModified != "" {
			req.Header.Set("If-Modified-Since", have.LastModified)
		}
	}
	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	logger.L().Info("fetch_begin", "src", u.String())
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotModified && conditional:
		logger.L().Info("fetch_cache_hit", "src", u.String(), "path", dst)
		return dst, nil
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrNotFound, u)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("fetch %s: bad status %d", u, resp.StatusCode)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(out, resp.Body)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := dropValidator(dst); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", err
	}
	v := validator{ETag: resp.Header.Get("ETag"), LastModified: resp.Header.Get("Last-Modified"), Size: n}
	if v.ETag != "" || v.LastModified != "" {
		if err := writeValidator(dst, v); err != nil {
			return "", err
		}
	}
	logger.L().Info("fetch_done", "path", dst, "bytes", n, "etag", v.ETag)
	return dst, nil
}

// cached：文件存在且大小一致
func cached(p string, size int64) bool {
	fi, err := os.Stat(p)
	if err != nil || fi.IsDir() {
		return false
	}
	return fi.Size() == size
}
