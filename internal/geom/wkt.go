package geom

import (
	"strconv"
	"strings"
)

// 文档注释：PostGIS 文本表示（WKT）
// 背景：批量导入数据库时以文本列写入 geometry，避免在客户端引入二进制 WKB 编码。
func (p Point) WKT() string {
	var sb strings.Builder
	sb.WriteString("POINT(")
	writeCoord(&sb, p)
	sb.WriteByte(')')
	return sb.String()
}

// WKT：闭合多边形，环从左下角开始并回到起点
func (b BoundingBox) WKT() string {
	var sb strings.Builder
	sb.WriteString("POLYGON((")
	cs := b.Corners()
	for i, c := range cs {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeCoord(&sb, c)
	}
	sb.WriteByte(',')
	writeCoord(&sb, cs[0])
	sb.WriteString("))")
	return sb.String()
}

func writeCoord(sb *strings.Builder, p Point) {
	sb.WriteString(strconv.FormatFloat(float64(p.X), 'f', -1, 32))
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatFloat(float64(p.Y), 'f', -1, 32))
}
