// 索引构建工具：并发导入 Nummeraanduiding 与 Verblijfsobject 压缩包，连接后写出三个索引文件
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"pcindex/internal/builder"
	"pcindex/internal/logger"
	"pcindex/internal/utils"

	"github.com/joho/godotenv"
)

// 环境变量：BAG_NUM_PATH / BAG_VBO_PATH（本地路径、s3:// 或 http(s)://）、INDEX_DIR（默认 data/index）、
// FETCH_CACHE_DIR（默认 data/cache）、INGEST_WORKERS（默认 GOMAXPROCS）
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	num := utils.EnvString("BAG_NUM_PATH", "")
	vbo := utils.EnvString("BAG_VBO_PATH", "")
	if num == "" || vbo == "" {
		l.Error("bag_path_missing", "num", num, "vbo", vbo)
		os.Exit(1)
	}
	dir := utils.EnvString("INDEX_DIR", filepath.Join("data", "index"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.Error("index_dir_error", "dir", dir, "err", err)
		os.Exit(1)
	}
	cache := utils.EnvString("FETCH_CACHE_DIR", filepath.Join("data", "cache"))
	workers := utils.EnvInt("INGEST_WORKERS", 0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := builder.Run(ctx, builder.FromArchives(cache, num, vbo, workers), dir)
	if err != nil {
		l.Error("index_build_error", "err", err)
		os.Exit(1)
	}
	l.Info("index_build_ok", "dir", dir, "generation", st.Generation, "codes", st.Codes, "points", st.Matched, "dropped", st.Dropped)
}
