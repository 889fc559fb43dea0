// 包 ingest：读取 BAG 压缩包，流式解析其中的 XML 条目，产出导入记录
// 背景：一个压缩包包含成百上千个 XML 条目，按条目并行解析；每个 worker 各自重新打开压缩包，互不争用同一个读取器
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"pcindex/internal/logger"
	"pcindex/internal/parallel"

	"github.com/klauspost/compress/zip"
)

// 文档注释：并行解析压缩包内的全部 XML 条目并合并结果
// 约束：目录与非 .xml 条目跳过；任一条目失败则整体失败
// 参数：workers 非正数时使用 GOMAXPROCS
func readArchive[R any](ctx context.Context, path string, workers int, parse func(ctx context.Context, name string, r io.Reader) (R, error), merge func(a, b R) R) (R, error) {
	var zero R
	rc, err := zip.OpenReader(path)
	if err != nil {
		return zero, fmt.Errorf("open archive %s: %w", path, err)
	}
	var entries []int
	for i, f := range rc.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			logger.L().Debug("ingest_entry_skip", "archive", path, "entry", f.Name)
			continue
		}
		entries = append(entries, i)
	}
	rc.Close()

	l := logger.L()
	l.Info("ingest_archive_begin", "archive", path, "entries", len(entries), "workers", parallel.Workers(workers))
	start := time.Now()
	out, err := parallel.MapReduce(ctx, len(entries), workers,
		func() (*zip.ReadCloser, error) { return zip.OpenReader(path) },
		func(ctx context.Context, h *zip.ReadCloser, i int) (R, error) {
			f := h.File[entries[i]]
			r, err := f.Open()
			if err != nil {
				return zero, fmt.Errorf("open entry %s: %w", f.Name, err)
			}
			defer r.Close()
			res, err := parse(ctx, f.Name, bufio.NewReaderSize(r, 1<<16))
			if err != nil {
				return zero, fmt.Errorf("entry %s: %w", f.Name, err)
			}
			return res, nil
		},
		merge,
	)
	if err != nil {
		return zero, err
	}
	l.Info("ingest_archive_done", "archive", path, "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}
