// 包 builder：连接两类导入记录，累积每个邮编的包围盒与点列表，序列化为三个索引文件
package builder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"pcindex/internal/geom"
	"pcindex/internal/logger"
	"pcindex/internal/mapped"
	"pcindex/internal/metrics"
	"pcindex/internal/pcindex"
	"pcindex/internal/postcode"
	"pcindex/internal/records"

	"golang.org/x/sync/errgroup"
)

// Stats：一次构建的计数
type Stats struct {
	Postcodes  int // 邮编记录数
	Duplicates int // 重复的地址标识符（后出现者覆盖）
	Locations  int // 位置记录数
	Matched    int // 连接成功的位置
	Dropped    int // 地址标识符没有邮编而被丢弃的位置
	Codes      int // 至少有一个点的邮编个数

	Generation string // 写出的一代目录名，仅 Build 成功后有值
}

// Arrays：内存中的索引三件套，布局与文件一致
type Arrays struct {
	BoundingBoxes []geom.BoundingBox
	Slices        []pcindex.Slice
	Points        []geom.Point
}

// 文档注释：连接并累积
// 背景：先按标识符建哈希表，再两遍扫描位置记录：第一遍计数，前缀和得到每个槽位的偏移，第二遍按连接顺序放置点，
// 最终 Points 按邮编下标有序，同一邮编内的点保持连接顺序。
// 异常：匹配点数超过 math.MaxUint32 返回 ErrTooManyPoints
func Accumulate(pcs *records.Postcodes, locs *records.Locations) (*Arrays, Stats, error) {
	var st Stats
	st.Postcodes = pcs.Len()
	st.Locations = locs.Len()

	byID := make(map[uint64]postcode.Code, pcs.Len())
	if pcs != nil {
		for i, id := range pcs.IDs {
			if _, ok := byID[id]; ok {
				st.Duplicates++
			}
			byID[id] = pcs.Codes[i]
		}
	}

	// 每个位置对应的槽位，-1 表示连接失败
	slot := make([]int32, locs.Len())
	counts := make([]uint64, postcode.Slots)
	total := uint64(0)
	for i := 0; i < locs.Len(); i++ {
		c, ok := byID[locs.IDs[i]]
		if !ok {
			slot[i] = -1
			st.Dropped++
			continue
		}
		slot[i] = int32(c.Index())
		counts[c.Index()]++
		total++
	}
	st.Matched = int(total)
	if total > math.MaxUint32 {
		return nil, st, fmt.Errorf("%w: %d", ErrTooManyPoints, total)
	}

	a := &Arrays{
		BoundingBoxes: make([]geom.BoundingBox, postcode.Slots),
		Slices:        make([]pcindex.Slice, postcode.Slots),
		Points:        make([]geom.Point, total),
	}
	offset := uint32(0)
	for i, n := range counts {
		a.Slices[i] = pcindex.Slice{Offset: offset, Count: uint32(n)}
		a.BoundingBoxes[i] = geom.Infinite
		offset += uint32(n)
		if n > 0 {
			st.Codes++
		}
	}

	// 第二遍复用 counts 作为各槽位已放置的个数
	clear(counts)
	for i, s := range slot {
		if s < 0 {
			continue
		}
		p := locs.Points[i]
		sl := a.Slices[s]
		a.Points[uint64(sl.Offset)+counts[s]] = p
		counts[s]++
		a.BoundingBoxes[s].ExtendWith(p)
	}
	return a, st, nil
}

// 文档注释：按 Paths 写出三个文件
// 约束：三个文件全部写入临时文件并 fsync 之后才开始替换；任一写入失败时已写的临时文件被删除，目标文件保持原样
func (a *Arrays) Write(p pcindex.Paths) (err error) {
	var staged []*mapped.Staged
	defer func() {
		if err != nil {
			for _, st := range staged {
				_ = st.Discard()
			}
		}
	}()
	st, err := mapped.Stage(p.Points, a.Points)
	if err != nil {
		return fmt.Errorf("write points: %w", err)
	}
	staged = append(staged, st)
	if st, err = mapped.Stage(p.Slices, a.Slices); err != nil {
		return fmt.Errorf("write slices: %w", err)
	}
	staged = append(staged, st)
	if st, err = mapped.Stage(p.BoundingBoxes, a.BoundingBoxes); err != nil {
		return fmt.Errorf("write bounding boxes: %w", err)
	}
	staged = append(staged, st)
	for i, st := range staged {
		if err := st.Commit(); err != nil {
			staged = staged[i:]
			return fmt.Errorf("commit: %w", err)
		}
	}
	return nil
}

// Index：把内存数组包装为可查询的索引
func (a *Arrays) Index() (*pcindex.Index, error) {
	return pcindex.FromArrays(a.BoundingBoxes, a.Slices, a.Points)
}

// 文档注释：连接、累积并写出索引
// 返回：构建计数；失败时返回 *BuildError，current 仍指向之前的一代
func Build(ctx context.Context, pcs *records.Postcodes, locs *records.Locations, dir string) (Stats, error) {
	l := logger.L()
	start := time.Now()
	a, st, err := Accumulate(pcs, locs)
	observe(PhaseAccumulate, start)
	if err != nil {
		return st, &BuildError{Phase: PhaseAccumulate, Err: err}
	}
	metrics.BuildRecordsTotal.WithLabelValues("postcodes").Add(float64(st.Postcodes))
	metrics.BuildRecordsTotal.WithLabelValues("locations").Add(float64(st.Locations))
	metrics.BuildRecordsTotal.WithLabelValues("matched").Add(float64(st.Matched))
	metrics.BuildJoinMissesTotal.Add(float64(st.Dropped))
	l.Info("index_join_done",
		"postcodes", st.Postcodes,
		"duplicates", st.Duplicates,
		"locations", st.Locations,
		"matched", st.Matched,
		"dropped", st.Dropped,
		"codes", st.Codes,
	)

	if err := ctx.Err(); err != nil {
		return st, &BuildError{Phase: PhaseWrite, Err: err}
	}
	start = time.Now()
	gen, err := a.Publish(dir)
	if err != nil {
		return st, &BuildError{Phase: PhaseWrite, Err: err}
	}
	st.Generation = gen
	observe(PhaseWrite, start)
	l.Info("index_write_done", "dir", dir, "generation", gen, "points", len(a.Points), "duration_ms", time.Since(start).Milliseconds())
	return st, nil
}

// Sources：两份源数据的导入函数
type Sources struct {
	Postcodes func(ctx context.Context) (*records.Postcodes, error)
	Locations func(ctx context.Context) (*records.Locations, error)
}

// 文档注释：并发导入两份源数据，全部成功后构建索引
// 背景：两个导入互不依赖，简单的 fork/join；任一失败会取消另一个，整个构建中止且不写文件
func Run(ctx context.Context, src Sources, dir string) (Stats, error) {
	l := logger.L()
	l.Info("index_build_begin", "dir", dir)
	begin := time.Now()

	var (
		pcs  *records.Postcodes
		locs *records.Locations
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		r, err := src.Postcodes(gctx)
		if err != nil {
			return &BuildError{Phase: PhasePostcodes, Err: err}
		}
		pcs = r
		observe(PhasePostcodes, start)
		l.Info("ingest_done", "source", "postcodes", "records", r.Len(), "duration_ms", time.Since(start).Milliseconds())
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		r, err := src.Locations(gctx)
		if err != nil {
			return &BuildError{Phase: PhaseLocations, Err: err}
		}
		locs = r
		observe(PhaseLocations, start)
		l.Info("ingest_done", "source", "locations", "records", r.Len(), "duration_ms", time.Since(start).Milliseconds())
		return nil
	})
	if err := g.Wait(); err != nil {
		var be *BuildError
		if !errors.As(err, &be) {
			err = &BuildError{Phase: PhasePostcodes, Err: err}
		}
		l.Error("index_build_abort", "err", err)
		return Stats{}, err
	}

	st, err := Build(ctx, pcs, locs, dir)
	if err != nil {
		l.Error("index_build_abort", "err", err)
		return st, err
	}
	l.Info("index_build_done", "codes", st.Codes, "points", st.Matched, "duration_ms", time.Since(begin).Milliseconds())
	return st, nil
}

func observe(phase string, start time.Time) {
	metrics.BuildDurationMs.WithLabelValues(phase).Observe(float64(time.Since(start).Milliseconds()))
}
