package geom

// 文档注释：荷兰国家网格（Rijksdriehoek，EPSG:28992）转 WGS84
// 背景：BAG 源数据坐标为 RD，索引统一存储经纬度；采用公开的多项式近似，精度约 1 米，足够邮编级别使用。
// 约束：仅在荷兰及周边有效；输入为米，输出为度。
const (
	rdX0   = 155000.0
	rdY0   = 463000.0
	rdLat0 = 52.15517440
	rdLon0 = 5.38720621
)

type rdTerm struct {
	p, q int
	k    float64
}

var rdLatTerms = []rdTerm{
	{0, 1, 3235.65389},
	{2, 0, -32.58297},
	{0, 2, -0.24750},
	{2, 1, -0.84978},
	{0, 3, -0.06550},
	{2, 2, -0.01709},
	{1, 0, -0.00738},
	{4, 0, 0.00530},
	{2, 3, -0.00039},
	{4, 1, 0.00033},
	{1, 1, -0.00012},
}

var rdLonTerms = []rdTerm{
	{1, 0, 5260.52916},
	{1, 1, 105.94684},
	{1, 2, 2.45656},
	{3, 0, -0.81885},
	{1, 3, 0.05594},
	{3, 1, -0.05607},
	{0, 1, 0.01199},
	{3, 2, -0.00256},
	{1, 4, 0.00128},
	{0, 2, 0.00022},
	{2, 0, -0.00022},
	{5, 0, 0.00026},
}

func FromRD(x, y float64) Point {
	dx := (x - rdX0) * 1e-5
	dy := (y - rdY0) * 1e-5
	lat := rdLat0 + rdSum(rdLatTerms, dx, dy)/3600
	lon := rdLon0 + rdSum(rdLonTerms, dx, dy)/3600
	return Point{X: float32(lon), Y: float32(lat)}
}

func rdSum(terms []rdTerm, dx, dy float64) float64 {
	var s float64
	for _, t := range terms {
		s += t.k * ipow(dx, t.p) * ipow(dy, t.q)
	}
	return s
}

func ipow(v float64, n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= v
	}
	return r
}
