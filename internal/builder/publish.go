package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"pcindex/internal/logger"
	"pcindex/internal/pcindex"
)

const (
	generationPrefix = "gen-"
	// 保留的代数（含 current）；上一代留作回滚
	keepGenerations = 2
)

// 时间戳固定 19 位，目录名的字典序即构建先后
var generationName = func() string {
	return fmt.Sprintf("%s%019d", generationPrefix, time.Now().UnixNano())
}

// 文档注释：在 dir 下写出新的一代并切换 current
// 返回：新一代的目录名
// 异常：写出或切换失败时删除新一代目录，current 保持不变
func (a *Arrays) Publish(dir string) (string, error) {
	gen := generationName()
	gdir := filepath.Join(dir, gen)
	if err := os.MkdirAll(gdir, 0o755); err != nil {
		return "", err
	}
	if err := a.Write(pcindex.PathsIn(gdir)); err != nil {
		os.RemoveAll(gdir)
		return "", err
	}
	if err := pcindex.SwitchCurrent(dir, gen); err != nil {
		os.RemoveAll(gdir)
		return "", fmt.Errorf("switch current: %w", err)
	}
	prune(dir, gen)
	return gen, nil
}

// prune：删除 keepGenerations 之外的旧代
// NOTE: 正在服务的进程可能仍映射着被删除的文件，unix 下映射在 Close 前保持有效
func prune(dir, current string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var gens []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), generationPrefix) && e.Name() != current {
			gens = append(gens, e.Name())
		}
	}
	slices.Sort(gens)
	for len(gens) > keepGenerations-1 {
		old := gens[0]
		gens = gens[1:]
		if err := os.RemoveAll(filepath.Join(dir, old)); err != nil {
			logger.L().Warn("index_prune_error", "generation", old, "err", err)
			continue
		}
		logger.L().Debug("index_pruned", "generation", old)
	}
}
