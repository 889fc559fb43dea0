// 包 records：导入阶段产出的两类记录，以并列列存形式承载
// 背景：两份源数据按条目并行解析，部分结果按列拼接合并；下游只按标识符连接并做可交换的累积，合并顺序无关。
package records

import (
	"pcindex/internal/geom"
	"pcindex/internal/logger"
	"pcindex/internal/postcode"
)

// PostcodeRecord：地址标识符 → 邮编；HasCode 为 false 表示源记录没有邮编
type PostcodeRecord struct {
	ID      uint64
	Code    postcode.Code
	HasCode bool
}

// LocationRecord：主地址标识符 → 位置点
// 约束：上游保证每条记录都带有合法点（点几何或多边形质心）
type LocationRecord struct {
	ID    uint64
	Point geom.Point
}

// Postcodes：IDs[i] 对应 Codes[i]
type Postcodes struct {
	IDs   []uint64
	Codes []postcode.Code
}

// Locations：IDs[i] 对应 Points[i]
type Locations struct {
	IDs    []uint64
	Points []geom.Point
}

func (p *Postcodes) Push(id uint64, c postcode.Code) {
	p.IDs = append(p.IDs, id)
	p.Codes = append(p.Codes, c)
}

func (p *Postcodes) Len() int {
	if p == nil {
		return 0
	}
	return len(p.IDs)
}

// Merge：列拼接，满足结合律；nil 视为空
func (p *Postcodes) Merge(o *Postcodes) *Postcodes {
	if p == nil {
		return o
	}
	if o == nil {
		return p
	}
	p.IDs = append(p.IDs, o.IDs...)
	p.Codes = append(p.Codes, o.Codes...)
	return p
}

func (l *Locations) Push(id uint64, pt geom.Point) {
	l.IDs = append(l.IDs, id)
	l.Points = append(l.Points, pt)
}

func (l *Locations) Len() int {
	if l == nil {
		return 0
	}
	return len(l.IDs)
}

func (l *Locations) Merge(o *Locations) *Locations {
	if l == nil {
		return o
	}
	if o == nil {
		return l
	}
	l.IDs = append(l.IDs, o.IDs...)
	l.Points = append(l.Points, o.Points...)
	return l
}

// 文档注释：由逐条记录构造列存
// 约束：没有邮编的记录丢弃并告警，不视为错误
func PostcodesFrom(recs []PostcodeRecord) *Postcodes {
	out := &Postcodes{IDs: make([]uint64, 0, len(recs)), Codes: make([]postcode.Code, 0, len(recs))}
	dropped := 0
	for _, r := range recs {
		if !r.HasCode {
			dropped++
			logger.L().Debug("postcode_record_skip", "id", r.ID, "reason", "no_postcode")
			continue
		}
		out.Push(r.ID, r.Code)
	}
	if dropped > 0 {
		logger.L().Warn("postcode_records_dropped", "count", dropped, "reason", "no_postcode")
	}
	return out
}

func LocationsFrom(recs []LocationRecord) *Locations {
	out := &Locations{IDs: make([]uint64, 0, len(recs)), Points: make([]geom.Point, 0, len(recs))}
	for _, r := range recs {
		out.Push(r.ID, r.Point)
	}
	return out
}
