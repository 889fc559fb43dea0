package geom

import (
	"math"
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randPoint(r *rand.Rand) Point {
	return Point{X: 3 + r.Float32()*4, Y: 50.5 + r.Float32()*3}
}

func randBox(r *rand.Rand) BoundingBox {
	b := FromPoint(randPoint(r))
	b.ExtendWith(randPoint(r))
	return b
}

func TestRecordLayout(t *testing.T) {
	assert.Equal(t, uintptr(8), unsafe.Sizeof(Point{}))
	assert.Equal(t, uintptr(16), unsafe.Sizeof(BoundingBox{}))
}

func TestInfinite_ExtendIdentity(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		p := randPoint(r)
		b := Infinite
		b.ExtendWith(p)
		require.Equal(t, FromPoint(p), b)
		require.False(t, b.IsInfinite())
	}
	assert.True(t, Infinite.IsInfinite())
}

func TestIntersectsWith_Symmetric(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 5000; i++ {
		a, b := randBox(r), randBox(r)
		require.Equal(t, a.IntersectsWith(b), b.IntersectsWith(a))
	}
}

func TestIntersectsWith_TouchingEdges(t *testing.T) {
	a := BoundingBox{XMin: 0, YMin: 0, XMax: 1, YMax: 1}
	b := BoundingBox{XMin: 1, YMin: 1, XMax: 2, YMax: 2}
	c := BoundingBox{XMin: 1.5, YMin: 0, XMax: 2, YMax: 1}
	assert.True(t, a.IntersectsWith(b))
	assert.False(t, a.IntersectsWith(c))
}

func TestExtendWith_Monotonic(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	b := Infinite
	var seen []Point
	for i := 0; i < 200; i++ {
		p := randPoint(r)
		b.ExtendWith(p)
		seen = append(seen, p)
		for _, q := range seen {
			require.True(t, b.Contains(q))
		}
	}
}

func TestAroundPoint_CoversRadius(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	for i := 0; i < 2000; i++ {
		q := randPoint(r)
		radius := float32(1 + r.Intn(5000))
		box := AroundPoint(q, radius)
		// 沿任意方向取距离不超过半径的点
		bearing := r.Float64() * 2 * math.Pi
		d := r.Float64() * float64(radius)
		dLat := d * math.Cos(bearing) / 111320
		dLon := d * math.Sin(bearing) / (111320 * math.Cos(float64(q.Y)*math.Pi/180))
		p := Point{X: q.X + float32(dLon), Y: q.Y + float32(dLat)}
		if Distance(p, q) <= float64(radius) {
			require.True(t, box.Contains(p), "query %v radius %v point %v box %v", q, radius, p, box)
		}
	}
}

func TestAroundPoint_Polar(t *testing.T) {
	b := AroundPoint(Point{X: 10, Y: 89.95}, 1000)
	assert.LessOrEqual(t, b.XMin, float32(-170))
	assert.GreaterOrEqual(t, b.XMax, float32(190))
}

func TestDistance(t *testing.T) {
	a := Point{X: 5.0, Y: 52.0}
	b := Point{X: 5.001, Y: 52.0}
	d := Distance(a, b)
	// 北纬 52 度附近 0.001 度经度约 68.5 米
	assert.InDelta(t, 68.5, d, 1.0)
	assert.Equal(t, 0.0, Distance(a, a))
	assert.InDelta(t, d, Distance(b, a), 1e-9)
}

func TestFromRD_Origin(t *testing.T) {
	p := FromRD(155000, 463000)
	assert.InDelta(t, 5.38720621, p.X, 1e-6)
	assert.InDelta(t, 52.15517440, p.Y, 1e-6)
}

func TestFromRD_KnownPoint(t *testing.T) {
	// 阿姆斯特丹西教堂附近
	p := FromRD(120700.723, 487525.501)
	assert.InDelta(t, 4.88352, p.X, 1e-4)
	assert.InDelta(t, 52.37453, p.Y, 1e-4)
}

func TestWKT(t *testing.T) {
	assert.Equal(t, "POINT(5 52.5)", Point{X: 5, Y: 52.5}.WKT())
	b := BoundingBox{XMin: 0, YMin: 0, XMax: 1, YMax: 1}
	assert.Equal(t, "POLYGON((0 0,0 1,1 1,1 0,0 0))", b.WKT())
}
