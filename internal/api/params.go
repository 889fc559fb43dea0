package api

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"pcindex/internal/geom"

	"github.com/cespare/xxhash/v2"
)

var (
	errMissingPoint  = errors.New("either lat and lon or points is required")
	errBadRadius     = errors.New("radius must be a positive number of meters")
	errTooManyPoints = errors.New("too many query points")
)

// proximityQuery：/postcodes 的规范化参数
type proximityQuery struct {
	Points []geom.Point
	Radius float32
}

func parseFloat32(name, s string) (float32, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return float32(v), nil
}

func parsePoint(lonS, latS string) (geom.Point, error) {
	lon, err := parseFloat32("lon", lonS)
	if err != nil {
		return geom.Point{}, err
	}
	lat, err := parseFloat32("lat", latS)
	if err != nil {
		return geom.Point{}, err
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return geom.Point{}, fmt.Errorf("coordinate out of range: %g,%g", lon, lat)
	}
	return geom.NewPoint(lon, lat), nil
}

// 文档注释：解析 lat/lon/radius 或 points=lon,lat;lon,lat/radius
// 约束：points 与 lat/lon 同时出现时合并；半径需为正且不超过 maxRadius；点数不超过 maxPoints
func parseProximity(q url.Values, maxRadius float32, maxPoints int) (proximityQuery, error) {
	var out proximityQuery
	if lat, lon := q.Get("lat"), q.Get("lon"); lat != "" || lon != "" {
		p, err := parsePoint(lon, lat)
		if err != nil {
			return out, err
		}
		out.Points = append(out.Points, p)
	}
	if s := strings.TrimSpace(q.Get("points")); s != "" {
		for _, pair := range strings.Split(s, ";") {
			if strings.TrimSpace(pair) == "" {
				continue
			}
			lonS, latS, ok := strings.Cut(pair, ",")
			if !ok {
				return out, fmt.Errorf("invalid point %q, want lon,lat", pair)
			}
			p, err := parsePoint(lonS, latS)
			if err != nil {
				return out, err
			}
			out.Points = append(out.Points, p)
		}
	}
	if len(out.Points) == 0 {
		return out, errMissingPoint
	}
	if maxPoints > 0 && len(out.Points) > maxPoints {
		return out, fmt.Errorf("%w: %d > %d", errTooManyPoints, len(out.Points), maxPoints)
	}
	r, err := parseFloat32("radius", q.Get("radius"))
	if err != nil || r <= 0 || (maxRadius > 0 && r > maxRadius) {
		return out, errBadRadius
	}
	out.Radius = r
	return out, nil
}

// cacheKey：点集排序后与半径、索引版本一起哈希；点的顺序不影响结果
func (q proximityQuery) cacheKey(version string) string {
	pts := slices.Clone(q.Points)
	slices.SortFunc(pts, func(a, b geom.Point) int {
		if c := cmpFloat(a.X, b.X); c != 0 {
			return c
		}
		return cmpFloat(a.Y, b.Y)
	})
	pts = slices.Compact(pts)
	var sb strings.Builder
	sb.WriteString(version)
	sb.WriteString("|r=")
	sb.WriteString(strconv.FormatFloat(float64(q.Radius), 'g', -1, 32))
	for _, p := range pts {
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatFloat(float64(p.X), 'g', -1, 32))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(float64(p.Y), 'g', -1, 32))
	}
	return "pc:" + strconv.FormatUint(xxhash.Sum64String(sb.String()), 16)
}

func cmpFloat(a, b float32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
