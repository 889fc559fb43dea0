// 包 geom：平面点、轴对齐包围盒与距离计算
// 背景：点与包围盒会被原样写入内存映射文件，结构体只包含定长浮点字段，不含指针
package geom

import (
	"math"

	"github.com/umahmood/haversine"
)

// Point：经纬度坐标（WGS84，单位度），X 为经度，Y 为纬度
// 约束：内存布局固定为 2×float32（8 字节），与 points 文件记录一致
type Point struct {
	X float32
	Y float32
}

// BoundingBox：轴对齐包围盒，与 Point 同一坐标空间
// 约束：内存布局固定为 4×float32（16 字节），与 bounding_boxes 文件记录一致
type BoundingBox struct {
	XMin float32
	YMin float32
	XMax float32
	YMax float32
}

var (
	inf    = float32(math.Inf(1))
	negInf = float32(math.Inf(-1))
)

// Infinite：“空”包围盒哨兵，最小角为 +inf、最大角为 -inf
// 约束：Infinite.ExtendWith(p) 之后恰好等于 FromPoint(p)，累积可以直接从哨兵开始
var Infinite = BoundingBox{XMin: inf, YMin: inf, XMax: negInf, YMax: negInf}

// 子午线方向每 90 度对应的千米数
const kmPerQuadrant = 10001.965729

// 经度修正的余量与极区阈值
const (
	lonSlack    = 1.01
	polarCutoff = 89.9
)

func NewPoint(lon, lat float32) Point { return Point{X: lon, Y: lat} }

func FromPoint(p Point) BoundingBox {
	return BoundingBox{XMin: p.X, YMin: p.Y, XMax: p.X, YMax: p.Y}
}

// 文档注释：以点为中心、半径（米）为半边长构造粗过滤框
// 背景：纬度方向使用固定的“度/米”系数；经度方向按框内最大纬度的 cos 放大并加 1% 余量，保证粗过滤对精确距离是超集
// 约束：仅用于粗过滤，不是测地精确的；接近极点时经度覆盖全部范围；不处理跨越 180 度经线
func AroundPoint(p Point, radiusMeters float32) BoundingBox {
	perMeter := 90.0 / (kmPerQuadrant * 1000.0)
	latFrac := float64(radiusMeters) * perMeter

	maxLat := math.Abs(float64(p.Y)) + latFrac
	lonFrac := 180.0
	if maxLat < polarCutoff {
		lonFrac = math.Min(latFrac/math.Cos(maxLat*math.Pi/180)*lonSlack, 180)
	}
	// float32 舍入向外取整，避免边界点因精度丢失被漏掉
	return BoundingBox{
		XMin: math.Nextafter32(float32(float64(p.X)-lonFrac), negInf),
		YMin: math.Nextafter32(float32(float64(p.Y)-latFrac), negInf),
		XMax: math.Nextafter32(float32(float64(p.X)+lonFrac), inf),
		YMax: math.Nextafter32(float32(float64(p.Y)+latFrac), inf),
	}
}

// ExtendWith：原地扩展以包含 p，只会变大不会变小
func (b *BoundingBox) ExtendWith(p Point) {
	b.XMin = min(b.XMin, p.X)
	b.YMin = min(b.YMin, p.Y)
	b.XMax = max(b.XMax, p.X)
	b.YMax = max(b.YMax, p.Y)
}

// IntersectsWith：分离轴判定，边界相接也算相交
func (b BoundingBox) IntersectsWith(o BoundingBox) bool {
	return b.XMin <= o.XMax &&
		b.XMax >= o.XMin &&
		b.YMin <= o.YMax &&
		b.YMax >= o.YMin
}

// IsInfinite：任一字段与哨兵相同即视为空
// 背景：±inf 在 min/max 下精确保持，按位比较即可
func (b BoundingBox) IsInfinite() bool {
	return b.XMin == Infinite.XMin ||
		b.YMin == Infinite.YMin ||
		b.XMax == Infinite.XMax ||
		b.YMax == Infinite.YMax
}

func (b BoundingBox) Contains(p Point) bool {
	return p.X >= b.XMin && p.X <= b.XMax && p.Y >= b.YMin && p.Y <= b.YMax
}

// Corners：左下、左上、右上、右下
func (b BoundingBox) Corners() [4]Point {
	return [4]Point{
		{X: b.XMin, Y: b.YMin},
		{X: b.XMin, Y: b.YMax},
		{X: b.XMax, Y: b.YMax},
		{X: b.XMax, Y: b.YMin},
	}
}

// 文档注释：两点间大圆距离（米）
// 背景：仅用于精确复核阶段；粗过滤阶段只做包围盒比较
func Distance(a, b Point) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: float64(a.Y), Lon: float64(a.X)},
		haversine.Coord{Lat: float64(b.Y), Lon: float64(b.X)},
	)
	return km * 1000
}
