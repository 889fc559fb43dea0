package pcindex

import (
	"context"
	"time"

	"pcindex/internal/geom"
	"pcindex/internal/logger"
	"pcindex/internal/metrics"
	"pcindex/internal/parallel"
	"pcindex/internal/postcode"

	"github.com/RoaringBitmap/roaring/v2"
)

const (
	// 查询点数超过该值时按槽位区间并行扫描
	parallelThreshold = 64
	// 每个 worker 分到的区间个数，用于动态均衡
	chunksPerWorker = 8
)

// 文档注释：查询至少有一个点落在任一查询点 radiusMeters 米范围内的邮编
// 背景：两阶段执行，先用每个查询点的粗过滤框与槽位包围盒求交（跳过哨兵槽位），再对候选槽位的点做精确测地距离判断
// 返回：升序、去重的邮编列表；没有命中时返回空切片
// 约束：粗过滤框是精确圆的超集，结果既不漏也不多
func (ix *Index) Query(points []geom.Point, radiusMeters float32) []postcode.Code {
	// QueryContext 只在 ctx 取消时返回错误，Background 永不取消
	out, _ := ix.QueryContext(context.Background(), points, radiusMeters)
	return out
}

// QueryContext：同 Query，并行路径在区间之间检查 ctx
func (ix *Index) QueryContext(ctx context.Context, points []geom.Point, radiusMeters float32) ([]postcode.Code, error) {
	start := time.Now()
	parallelMode := len(points) > parallelThreshold
	bm, err := ix.scan(ctx, points, radiusMeters, parallelMode)
	if err != nil {
		return nil, err
	}
	out := toCodes(bm)

	mode := "sequential"
	if parallelMode {
		mode = "parallel"
	}
	dur := time.Since(start)
	metrics.QueryPoints.Observe(float64(len(points)))
	metrics.QueryDurationMs.WithLabelValues(mode).Observe(float64(dur.Milliseconds()))
	logger.L().Debug("query_done", "mode", mode, "points", len(points), "radius_m", radiusMeters,
		"results", len(out), "duration_ms", dur.Milliseconds())
	return out, nil
}

func (ix *Index) scan(ctx context.Context, points []geom.Point, radius float32, par bool) (*roaring.Bitmap, error) {
	if len(points) == 0 {
		return roaring.New(), nil
	}
	boxes := make([]geom.BoundingBox, len(points))
	for i, p := range points {
		boxes[i] = geom.AroundPoint(p, radius)
	}
	if !par {
		bm := roaring.New()
		ix.scanRange(bm, parallel.Range{Lo: 0, Hi: len(ix.boxes)}, points, boxes, radius)
		return bm, nil
	}

	workers := parallel.Workers(ix.workers)
	ranges := parallel.Ranges(len(ix.boxes), workers*chunksPerWorker)
	bm, err := parallel.MapReduce(ctx, len(ranges), workers, parallel.NoHandle,
		func(_ context.Context, _ struct{}, i int) (*roaring.Bitmap, error) {
			part := roaring.New()
			ix.scanRange(part, ranges[i], points, boxes, radius)
			return part, nil
		},
		func(a, b *roaring.Bitmap) *roaring.Bitmap {
			a.Or(b)
			return a
		})
	if err != nil {
		return nil, err
	}
	if bm == nil {
		bm = roaring.New()
	}
	return bm, nil
}

// scanRange：在槽位区间内执行两阶段判定，命中写入 bm
// NOTE: 一个槽位被任一查询点确认后立即停止该槽位的后续判定
func (ix *Index) scanRange(bm *roaring.Bitmap, r parallel.Range, points []geom.Point, qboxes []geom.BoundingBox, radius float32) {
	limit := float64(radius)
	for i := r.Lo; i < r.Hi; i++ {
		box := ix.boxes[i]
		if box.IsInfinite() {
			continue
		}
	queries:
		for q, qb := range qboxes {
			if !box.IntersectsWith(qb) {
				continue
			}
			for _, p := range ix.slot(i) {
				if geom.Distance(p, points[q]) <= limit {
					bm.Add(uint32(i))
					break queries
				}
			}
		}
	}
}

func toCodes(bm *roaring.Bitmap) []postcode.Code {
	out := make([]postcode.Code, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, postcode.Code(it.Next()))
	}
	return out
}
