// 包 store：把索引批量导出到 PostgreSQL/PostGIS，并提供基于数据库的半径查询用于比对
package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"pcindex/internal/geom"
	"pcindex/internal/logger"
	"pcindex/internal/metrics"
	"pcindex/internal/postcode"

	"github.com/lib/pq"
)

// Source：可按邮编升序遍历的点集，*pcindex.Index 满足该接口
type Source interface {
	All() iter.Seq2[postcode.Code, []geom.Point]
}

// Store：数据库访问入口
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) DB() *sql.DB { return s.db }

// LoadStats：导出计数
type LoadStats struct {
	Postcodes int
	Points    int
}

// ewkt：带 SRID 的 WKT，COPY 时由 PostGIS 解析
func ewkt(w string) string { return "SRID=4326;" + w }

func extent(pts []geom.Point) geom.BoundingBox {
	b := geom.Infinite
	for _, p := range pts {
		b.ExtendWith(p)
	}
	return b
}

// 文档注释：以 COPY 方式导出全部点与每个邮编的范围
// 背景：逐行 INSERT 对千万级点过慢；每 batch 个邮编提交一次事务，降低单事务体积与 WAL 压力
// 约束：调用方负责先 Truncate（全量重建语义）；ctx 取消时回滚当前批次并返回
func (s *Store) Load(ctx context.Context, src Source, batch int) (LoadStats, error) {
	if batch <= 0 {
		batch = 5000
	}
	l := logger.L()
	start := time.Now()
	var st LoadStats
	var b copyBatch

	for code, pts := range src.All() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		b.add(code, pts)
		if b.codes() >= batch {
			if err := b.flush(ctx, s.db, &st); err != nil {
				return st, err
			}
			l.Info("store_load_progress", "postcodes", st.Postcodes, "points", st.Points)
		}
	}
	if b.codes() > 0 {
		if err := b.flush(ctx, s.db, &st); err != nil {
			return st, err
		}
	}
	l.Info("store_load_done", "postcodes", st.Postcodes, "points", st.Points, "duration_ms", time.Since(start).Milliseconds())
	return st, nil
}

// copyBatch：一批待导出的行
// NOTE: 同一连接上同一时刻只能有一个 COPY，两张表在事务内依次 COPY
type copyBatch struct {
	points  [][2]string
	extents []extentRow
}

type extentRow struct {
	postcode string
	points   int
	bbox     string
}

func (b *copyBatch) codes() int { return len(b.extents) }

func (b *copyBatch) add(code postcode.Code, pts []geom.Point) {
	name := code.String()
	for _, p := range pts {
		b.points = append(b.points, [2]string{name, ewkt(p.WKT())})
	}
	b.extents = append(b.extents, extentRow{postcode: name, points: len(pts), bbox: ewkt(extent(pts).WKT())})
}

func (b *copyBatch) flush(ctx context.Context, db *sql.DB, st *LoadStats) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = copyRows(ctx, tx, pq.CopyIn("_pc_points", "postcode", "geom"), len(b.points), func(i int) []any {
		return []any{b.points[i][0], b.points[i][1]}
	})
	if err != nil {
		return fmt.Errorf("copy _pc_points: %w", err)
	}
	err = copyRows(ctx, tx, pq.CopyIn("_pc_extents", "postcode", "points", "bbox"), len(b.extents), func(i int) []any {
		e := b.extents[i]
		return []any{e.postcode, e.points, e.bbox}
	})
	if err != nil {
		return fmt.Errorf("copy _pc_extents: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	metrics.StoreRowsTotal.WithLabelValues("_pc_points").Add(float64(len(b.points)))
	metrics.StoreRowsTotal.WithLabelValues("_pc_extents").Add(float64(len(b.extents)))
	st.Postcodes += len(b.extents)
	st.Points += len(b.points)
	b.points, b.extents = b.points[:0], b.extents[:0]
	return nil
}

func copyRows(ctx context.Context, tx *sql.Tx, query string, n int, row func(i int) []any) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return err
		}
	}
	// 无参数 Exec 刷出 COPY 缓冲
	if _, err := stmt.ExecContext(ctx); err != nil {
		return err
	}
	return stmt.Close()
}

// nearbySQL：任一查询点 $1 米范围内的邮编
// 约束：use_spheroid=false，按球面计算，与索引侧 haversine 的模型一致
func nearbySQL(n int) string {
	var sb strings.Builder
	sb.WriteString(`SELECT DISTINCT p.postcode FROM _pc_points p WHERE `)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		fmt.Fprintf(&sb, "ST_DWithin(p.geom::geography, ST_SetSRID(ST_MakePoint($%d, $%d), 4326)::geography, $1, false)", 2+2*i, 3+2*i)
	}
	sb.WriteString(` ORDER BY p.postcode`)
	return sb.String()
}

// Nearby：数据库侧的半径查询，结果与索引查询按同一排序返回
// NOTE: 仅用于抽样比对；两侧地球半径与浮点精度略有差异，恰在半径边界上的点可能判定不同
func (s *Store) Nearby(ctx context.Context, pts []geom.Point, radiusMeters float32) ([]postcode.Code, error) {
	if len(pts) == 0 {
		return []postcode.Code{}, nil
	}
	args := make([]any, 0, 1+2*len(pts))
	args = append(args, float64(radiusMeters))
	for _, p := range pts {
		args = append(args, float64(p.X), float64(p.Y))
	}
	rows, err := s.db.QueryContext(ctx, nearbySQL(len(pts)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []postcode.Code{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		c, err := postcode.Parse(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count：两张表的行数
func (s *Store) Count(ctx context.Context) (points, extents int64, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM _pc_points`).Scan(&points); err != nil {
		return
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM _pc_extents`).Scan(&extents)
	return
}
