package ingest

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pcindex/internal/geom"
	"pcindex/internal/logger"
	"pcindex/internal/postcode"
	"pcindex/internal/records"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrNoGeometry：Verblijfsobject 既没有点也没有多边形
var ErrNoGeometry = errors.New("ingest: verblijfsobject without geometry")

// 元素名按本地名匹配，不区分命名空间前缀
type nummeraanduiding struct {
	Identificatie string `xml:"identificatie"`
	Postcode      string `xml:"postcode"`
}

type posList struct {
	Dimension int    `xml:"srsDimension,attr"`
	Values    string `xml:",chardata"`
}

type verblijfsobject struct {
	Identificatie string `xml:"identificatie"`
	Hoofdadres    string `xml:"gerelateerdeAdressen>hoofdadres>identificatie"`
	Geometrie     struct {
		Pos     string  `xml:"Point>pos"`
		PosList posList `xml:"Polygon>exterior>LinearRing>posList"`
	} `xml:"verblijfsobjectGeometrie"`
}

// ReadPostcodes：解析 Nummeraanduiding 压缩包（地址标识符 → 邮编）
func ReadPostcodes(ctx context.Context, path string, workers int) (*records.Postcodes, error) {
	out, err := readArchive(ctx, path, workers, parsePostcodes, (*records.Postcodes).Merge)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = &records.Postcodes{}
	}
	return out, nil
}

// ReadLocations：解析 Verblijfsobject 压缩包（主地址标识符 → 位置点）
func ReadLocations(ctx context.Context, path string, workers int) (*records.Locations, error) {
	out, err := readArchive(ctx, path, workers, parseLocations, (*records.Locations).Merge)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = &records.Locations{}
	}
	return out, nil
}

// elements：逐个定位本地名为 local 的元素并交给 fn 解码
func elements(ctx context.Context, r io.Reader, local string, fn func(d *xml.Decoder, start xml.StartElement) error) error {
	d := xml.NewDecoder(r)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xml: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != local {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d, se); err != nil {
			return err
		}
	}
}

func parsePostcodes(ctx context.Context, name string, r io.Reader) (*records.Postcodes, error) {
	var recs []records.PostcodeRecord
	malformed := 0
	err := elements(ctx, r, "Nummeraanduiding", func(d *xml.Decoder, se xml.StartElement) error {
		var n nummeraanduiding
		if err := d.DecodeElement(&n, &se); err != nil {
			return fmt.Errorf("xml: %w", err)
		}
		id, err := parseID(n.Identificatie)
		if err != nil {
			return err
		}
		rec := records.PostcodeRecord{ID: id}
		if s := strings.TrimSpace(n.Postcode); s != "" {
			c, err := postcode.Parse(s)
			if err != nil {
				malformed++
				logger.L().Warn("postcode_malformed", "entry", name, "id", id, "err", err)
				return nil
			}
			rec.Code, rec.HasCode = c, true
		}
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := records.PostcodesFrom(recs)
	logger.L().Debug("ingest_entry_done", "entry", name, "records", len(recs), "kept", out.Len(), "malformed", malformed)
	return out, nil
}

func parseLocations(ctx context.Context, name string, r io.Reader) (*records.Locations, error) {
	out := &records.Locations{}
	err := elements(ctx, r, "Verblijfsobject", func(d *xml.Decoder, se xml.StartElement) error {
		var v verblijfsobject
		if err := d.DecodeElement(&v, &se); err != nil {
			return fmt.Errorf("xml: %w", err)
		}
		id, err := parseID(v.Hoofdadres)
		if err != nil {
			return fmt.Errorf("verblijfsobject %s: hoofdadres: %w", v.Identificatie, err)
		}
		p, err := v.point()
		if err != nil {
			return fmt.Errorf("verblijfsobject %s: %w", v.Identificatie, err)
		}
		out.Push(id, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.L().Debug("ingest_entry_done", "entry", name, "records", out.Len())
	return out, nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("identificatie %q: %w", s, err)
	}
	return id, nil
}

// point：点几何优先，其次为多边形外环的质心；坐标为 RD，转换为 WGS84
func (v *verblijfsobject) point() (geom.Point, error) {
	if s := strings.TrimSpace(v.Geometrie.Pos); s != "" {
		coords, err := parseCoords(s)
		if err != nil {
			return geom.Point{}, err
		}
		if len(coords) < 2 {
			return geom.Point{}, fmt.Errorf("pos %q: want at least 2 values", s)
		}
		return geom.FromRD(coords[0], coords[1]), nil
	}
	if s := strings.TrimSpace(v.Geometrie.PosList.Values); s != "" {
		c, err := centroid(s, v.Geometrie.PosList.Dimension)
		if err != nil {
			return geom.Point{}, err
		}
		return geom.FromRD(c[0], c[1]), nil
	}
	return geom.Point{}, ErrNoGeometry
}

// centroid：posList 按 dim 个值一组切分为坐标，取平面面积质心
// NOTE: 未声明 srsDimension 时按三维（x y z）处理
func centroid(s string, dim int) (orb.Point, error) {
	if dim <= 0 {
		dim = 3
	}
	if dim < 2 {
		return orb.Point{}, fmt.Errorf("posList: srsDimension %d", dim)
	}
	vals, err := parseCoords(s)
	if err != nil {
		return orb.Point{}, err
	}
	if len(vals) < dim || len(vals)%dim != 0 {
		return orb.Point{}, fmt.Errorf("posList: %d values not a multiple of dimension %d", len(vals), dim)
	}
	ring := make(orb.Ring, 0, len(vals)/dim)
	for i := 0; i < len(vals); i += dim {
		ring = append(ring, orb.Point{vals[i], vals[i+1]})
	}
	c, _ := planar.CentroidArea(orb.Polygon{ring})
	return c, nil
}

func parseCoords(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("coordinate %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}
