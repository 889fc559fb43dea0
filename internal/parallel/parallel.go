// 包 parallel：按下标区间的数据并行 map/reduce
// 背景：导入阶段（每个压缩包条目一个任务，合并为列拼接）与查询阶段（槽位区间分块，合并为位图并集）共用同一调度模型。
// 约束：merge 必须满足结合律；各 worker 之间不共享可变状态，结果只在全部完成后折叠。
package parallel

import (
	"context"
	"io"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Range：半开区间 [Lo, Hi)
type Range struct {
	Lo int
	Hi int
}

func (r Range) Len() int { return r.Hi - r.Lo }

// 文档注释：将 [0, n) 切分为至多 steps 段，每段长度为 ceil(n/steps)，最后一段可能更短
func Ranges(n, steps int) []Range {
	if n <= 0 {
		return nil
	}
	if steps <= 0 {
		steps = 1
	}
	step := (n + steps - 1) / steps
	out := make([]Range, 0, steps)
	for lo := 0; lo < n; lo += step {
		out = append(out, Range{Lo: lo, Hi: min(lo+step, n)})
	}
	return out
}

// Workers：非正数时回退到 GOMAXPROCS
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// 文档注释：并行执行 items 个任务并折叠结果
// 参数：init 为每个 worker 创建私有句柄（如各自重新打开的压缩包），若句柄实现 io.Closer 会在 worker 结束时关闭；
// work 处理单个任务；merge 合并两个部分结果。
// 背景：任务下标通过原子计数器动态领取，处理快的 worker 自动多领，避免静态切分的负载倾斜。
// 异常：任一任务或 init 失败即取消其余任务并返回第一个错误。
func MapReduce[H, R any](
	ctx context.Context,
	items int,
	workers int,
	init func() (H, error),
	work func(ctx context.Context, h H, i int) (R, error),
	merge func(a, b R) R,
) (R, error) {
	var zero R
	if items <= 0 {
		return zero, nil
	}
	workers = min(Workers(workers), items)

	partials := make([]R, workers)
	has := make([]bool, workers)
	var next atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			h, err := init()
			if err != nil {
				return err
			}
			if c, ok := any(h).(io.Closer); ok {
				defer c.Close()
			}
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(next.Add(1) - 1)
				if i >= items {
					return nil
				}
				r, err := work(gctx, h, i)
				if err != nil {
					return err
				}
				if has[w] {
					partials[w] = merge(partials[w], r)
				} else {
					partials[w] = r
					has[w] = true
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return zero, err
	}

	out := zero
	first := true
	for w := range partials {
		if !has[w] {
			continue
		}
		if first {
			out = partials[w]
			first = false
			continue
		}
		out = merge(out, partials[w])
	}
	return out, nil
}

// NoHandle：不需要私有句柄时的 init
func NoHandle() (struct{}, error) { return struct{}{}, nil }
