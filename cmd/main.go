// 程序入口：读取配置、打开索引并启动查询服务；路由注册在 internal/api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pcindex/internal/api"
	"pcindex/internal/builder"
	"pcindex/internal/ingest"
	"pcindex/internal/logger"
	"pcindex/internal/middleware"
	"pcindex/internal/pcindex"
	"pcindex/internal/utils"

	"github.com/joho/godotenv"
)

// indexVersion：当前一代的目录名参与缓存键；平铺布局退回包围盒文件的修改时间
func indexVersion(p pcindex.Paths, gen string) string {
	if gen != "" {
		return gen
	}
	fi, err := os.Stat(p.BoundingBoxes)
	if err != nil {
		return "0"
	}
	return strconv.FormatInt(fi.ModTime().UnixNano(), 36)
}

func openIndex(dir string, workers int) (*pcindex.Index, string, error) {
	p, gen := pcindex.Current(dir)
	ix, err := pcindex.Open(p)
	if err != nil {
		return nil, "", err
	}
	ix.SetWorkers(workers)
	return ix, indexVersion(p, gen), nil
}

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	l.Debug("log_init_ok")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiBase := strings.TrimSuffix(utils.EnvString("API_BASE", "/api"), "/")
	dir := utils.EnvString("INDEX_DIR", filepath.Join("data", "index"))
	queryWorkers := utils.EnvInt("QUERY_WORKERS", 0)
	l.Debug("config", "api_base", apiBase, "index_dir", dir, "query_workers", queryWorkers)

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else if err := rc.Ping(ctx).Err(); err != nil {
		l.Error("redis_ping_error", "err", err)
	} else {
		l.Info("redis_ping_ok")
	}

	srv := api.NewServer(rc, api.Options{
		MaxRadius: float32(utils.EnvFloat("API_MAX_RADIUS_M", 50000)),
		MaxPoints: utils.EnvInt("API_MAX_POINTS", 10000),
		CacheTTL:  utils.EnvDuration("CACHE_TTL", time.Hour),
		LRUSize:   utils.EnvInt("LRU_SIZE", 4096),
	})
	defer srv.Close()

	if ix, ver, err := openIndex(dir, queryWorkers); err != nil {
		// 背景：索引缺失时服务仍然启动，/healthz 返回 503，等待定时重建
		l.Error("index_open_error", "dir", dir, "err", err)
	} else {
		_ = srv.Swap(ix, ver)
		l.Info("index_open_ok", "dir", dir, "version", ver, "points", ix.Points())
	}

	// 文档注释：定时全量重建
	// 背景：BAG 每月发布新版本，配置来源后在进程内重建并原子替换索引；失败保持旧索引继续服务
	num, vbo := utils.EnvString("BAG_NUM_PATH", ""), utils.EnvString("BAG_VBO_PATH", "")
	if utils.EnvBool("REBUILD_ENABLE", false) && num != "" && vbo != "" {
		cache := utils.EnvString("FETCH_CACHE_DIR", filepath.Join("data", "cache"))
		workers := utils.EnvInt("INGEST_WORKERS", 0)
		ingest.StartWeekly(ctx, func(ctx context.Context) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			if _, err := builder.Run(ctx, builder.FromArchives(cache, num, vbo, workers), dir); err != nil {
				return err
			}
			ix, ver, err := openIndex(dir, queryWorkers)
			if err != nil {
				return err
			}
			return srv.Swap(ix, ver)
		})
	}

	mux := http.NewServeMux()
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, srv.BuildRoutes()))

	addr := utils.EnvString("ADDR", ":8080")
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()

	var err error
	if utils.EnvBool("TLS_ENABLE", false) {
		certPath := utils.EnvString("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt"))
		keyPath := utils.EnvString("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key"))
		if err := utils.EnsureSelfSignedCert(certPath, keyPath, "pcindex.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		err = s.ListenAndServeTLS(certPath, keyPath)
	} else {
		l.Info("listening", "addr", addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("server_stopped")
}
