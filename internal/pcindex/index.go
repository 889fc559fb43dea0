// 包 pcindex：邮编包围盒索引、点索引与半径查询
// 背景：两个顶层数组按邮编稠密下标寻址（2^24 个槽位），第三个数组按邮编顺序存放全部点（CSR 布局）；
// 三者都是内存映射的只读视图，打开是 O(1) 的，不做预读。
package pcindex

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"pcindex/internal/geom"
	"pcindex/internal/mapped"
	"pcindex/internal/postcode"
)

// ErrCorruptIndex：顶层数组长度不等于槽位数
var ErrCorruptIndex = errors.New("pcindex: corrupt index")

// Index：只读索引，打开后可并发查询
type Index struct {
	boxes  []geom.BoundingBox
	spans  []Slice
	points []geom.Point

	closers []io.Closer
	workers int

	lenOnce sync.Once
	ncodes  int
}

// 文档注释：映射三个索引文件
// 返回：Index；任一文件缺失、映射失败或长度不符时返回错误，并释放已建立的映射
func Open(p Paths) (*Index, error) {
	ix := &Index{}
	boxes, err := mapped.Open[geom.BoundingBox](p.BoundingBoxes)
	if err != nil {
		return nil, fmt.Errorf("open bounding boxes: %w", err)
	}
	ix.closers = append(ix.closers, boxes)

	spans, err := mapped.Open[Slice](p.Slices)
	if err != nil {
		ix.Close()
		return nil, fmt.Errorf("open slices: %w", err)
	}
	ix.closers = append(ix.closers, spans)

	points, err := mapped.Open[geom.Point](p.Points)
	if err != nil {
		ix.Close()
		return nil, fmt.Errorf("open points: %w", err)
	}
	ix.closers = append(ix.closers, points)

	if err := ix.set(boxes.Slice(), spans.Slice(), points.Slice()); err != nil {
		ix.Close()
		return nil, err
	}
	// 粗过滤顺序扫描包围盒；点数组只在命中槽位处随机访问
	_ = boxes.Advise(mapped.AccessSequential)
	_ = points.Advise(mapped.AccessRandom)
	return ix, nil
}

// FromArrays：基于内存数组构造索引，数组所有权转移给 Index
func FromArrays(boxes []geom.BoundingBox, spans []Slice, points []geom.Point) (*Index, error) {
	ix := &Index{}
	if err := ix.set(boxes, spans, points); err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *Index) set(boxes []geom.BoundingBox, spans []Slice, points []geom.Point) error {
	if len(boxes) != postcode.Slots {
		return fmt.Errorf("%w: bounding boxes has %d records, want %d", ErrCorruptIndex, len(boxes), postcode.Slots)
	}
	if len(spans) != postcode.Slots {
		return fmt.Errorf("%w: slices has %d records, want %d", ErrCorruptIndex, len(spans), postcode.Slots)
	}
	ix.boxes, ix.spans, ix.points = boxes, spans, points
	return nil
}

// SetWorkers：设置并行查询的 worker 数，非正数表示 GOMAXPROCS
func (ix *Index) SetWorkers(n int) { ix.workers = n }

// BoundingBox：邮编的包围盒，无数据时为 geom.Infinite
func (ix *Index) BoundingBox(c postcode.Code) geom.BoundingBox {
	if c.Index() >= len(ix.boxes) {
		return geom.Infinite
	}
	return ix.boxes[c.Index()]
}

// ForPostcode：邮编的全部点（零拷贝视图，调用方不得修改）
func (ix *Index) ForPostcode(c postcode.Code) []geom.Point {
	return ix.slot(c.Index())
}

// slot：越界的区间按空处理
func (ix *Index) slot(i int) []geom.Point {
	if i < 0 || i >= len(ix.spans) {
		return nil
	}
	s := ix.spans[i]
	if s.Count == 0 || s.End() > uint64(len(ix.points)) {
		return nil
	}
	return ix.points[s.Offset:s.End()]
}

// All：按邮编升序遍历所有非空槽位
func (ix *Index) All() iter.Seq2[postcode.Code, []geom.Point] {
	return func(yield func(postcode.Code, []geom.Point) bool) {
		for i := range ix.spans {
			pts := ix.slot(i)
			if len(pts) == 0 {
				continue
			}
			if !yield(postcode.FromIndex(i), pts) {
				return
			}
		}
	}
}

// Len：有数据的邮编个数；首次调用时扫描一次槽位数组
func (ix *Index) Len() int {
	ix.lenOnce.Do(func() {
		for i := range ix.spans {
			if len(ix.slot(i)) > 0 {
				ix.ncodes++
			}
		}
	})
	return ix.ncodes
}

// Points：点总数
func (ix *Index) Points() int { return len(ix.points) }

// Close：释放映射；内存索引无需关闭
func (ix *Index) Close() error {
	var errs []error
	for _, c := range ix.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	ix.closers = nil
	ix.boxes, ix.spans, ix.points = nil, nil, nil
	return errors.Join(errs...)
}
