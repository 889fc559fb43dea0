package migrate

import (
	"context"
	"database/sql"

	"pcindex/internal/logger"
)

// 背景：首次运行自动创建 PostGIS 扩展、表与索引，供导出后的空间查询与比对
// 约束：全部使用 IF NOT EXISTS，可重复执行
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE TABLE IF NOT EXISTS _pc_points (
		postcode CHAR(6) NOT NULL,
		geom GEOMETRY(Point, 4326) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pc_points_postcode ON _pc_points(postcode)`,
	`CREATE INDEX IF NOT EXISTS idx_pc_points_geom ON _pc_points USING GIST(geom)`,
	`CREATE TABLE IF NOT EXISTS _pc_extents (
		postcode CHAR(6) PRIMARY KEY,
		points INT NOT NULL,
		bbox GEOMETRY(Polygon, 4326) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pc_extents_bbox ON _pc_extents USING GIST(bbox)`,
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, s := range schema {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}

// Truncate：全量重载前清空两张表
func Truncate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `TRUNCATE _pc_points, _pc_extents`)
	return err
}
