// 导出工具：把索引批量写入 PostGIS（_pc_points / _pc_extents），可选抽样比对数据库侧半径查询
package main

import (
	"context"
	"flag"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	"pcindex/internal/geom"
	"pcindex/internal/logger"
	"pcindex/internal/migrate"
	"pcindex/internal/pcindex"
	"pcindex/internal/postcode"
	"pcindex/internal/store"
	"pcindex/internal/utils"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	dir := flag.String("dir", utils.EnvString("INDEX_DIR", filepath.Join("data", "index")), "index directory")
	batch := flag.Int("batch", utils.EnvInt("LOAD_BATCH", 5000), "postcodes per transaction")
	truncate := flag.Bool("truncate", utils.EnvBool("LOAD_TRUNCATE", true), "truncate tables before loading")
	verify := flag.Int("verify", 0, "number of random indexed points to cross-check against PostGIS")
	flag.Parse()

	ctx := context.Background()
	p, _ := pcindex.Current(*dir)
	ix, err := pcindex.Open(p)
	if err != nil {
		l.Error("index_open_error", "dir", *dir, "err", err)
		os.Exit(1)
	}
	defer ix.Close()

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		l.Error("db_ping_error", "err", err)
		os.Exit(1)
	}
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	if *truncate {
		if err := migrate.Truncate(ctx, db); err != nil {
			l.Error("truncate_error", "err", err)
			os.Exit(1)
		}
	}

	st := store.AttachDB(db)
	res, err := st.Load(ctx, ix, *batch)
	if err != nil {
		l.Error("store_load_error", "err", err, "postcodes", res.Postcodes)
		os.Exit(1)
	}
	if *verify > 0 {
		mismatches := crossCheck(ctx, l, st, ix, *verify)
		if mismatches > 0 {
			os.Exit(1)
		}
	}
	l.Info("store_load_ok", "postcodes", res.Postcodes, "points", res.Points)
}

// edgeTolerance：距离与半径相差不超过该值（米）的点视为边界点，两侧判定不同不计为不一致
const edgeTolerance = 0.5

// crossCheck：以随机抽取的已索引点为中心做 100 米查询，比较索引与数据库结果
func crossCheck(ctx context.Context, l *slog.Logger, st *store.Store, ix *pcindex.Index, n int) int {
	if ix.Points() == 0 {
		return 0
	}
	const radius = 100
	var samples []geom.Point
	for _, pts := range ix.All() {
		samples = append(samples, pts[0])
	}
	mismatches := 0
	for i := 0; i < n; i++ {
		q := []geom.Point{samples[rand.IntN(len(samples))]}
		want := ix.Query(q, radius)
		got, err := st.Nearby(ctx, q, radius)
		if err != nil {
			l.Warn("verify_query_error", "err", err)
			mismatches++
			continue
		}
		if diff := mismatched(ix, q, radius, want, got); len(diff) > 0 {
			mismatches++
			l.Warn("verify_mismatch", "lon", q[0].X, "lat", q[0].Y, "index", len(want), "db", len(got), "codes", diff)
		}
	}
	l.Info("verify_done", "samples", n, "mismatches", mismatches)
	return mismatches
}

// mismatched：只出现在一侧、且最近点不在半径边界容差内的邮编
func mismatched(ix *pcindex.Index, q []geom.Point, radius float64, a, b []postcode.Code) []postcode.Code {
	var out []postcode.Code
	check := func(xs, ys []postcode.Code) {
		for _, c := range xs {
			if _, found := slices.BinarySearch(ys, c); found {
				continue
			}
			if math.Abs(nearest(ix.ForPostcode(c), q)-radius) > edgeTolerance {
				out = append(out, c)
			}
		}
	}
	check(a, b)
	check(b, a)
	slices.Sort(out)
	return out
}

func nearest(pts, q []geom.Point) float64 {
	best := math.Inf(1)
	for _, p := range pts {
		for _, c := range q {
			best = math.Min(best, geom.Distance(p, c))
		}
	}
	return best
}
