// 查询工具：打开索引，按命令行给出的点与半径输出命中的邮编
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pcindex/internal/geom"
	"pcindex/internal/logger"
	"pcindex/internal/pcindex"
	"pcindex/internal/utils"

	"github.com/joho/godotenv"
)

func parsePoints(s string) ([]geom.Point, error) {
	var out []geom.Point
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		lonS, latS, ok := strings.Cut(pair, ",")
		if !ok {
			return nil, fmt.Errorf("invalid point %q, want lon,lat", pair)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonS), 32)
		if err != nil {
			return nil, err
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latS), 32)
		if err != nil {
			return nil, err
		}
		out = append(out, geom.NewPoint(float32(lon), float32(lat)))
	}
	return out, nil
}

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	dir := flag.String("dir", utils.EnvString("INDEX_DIR", filepath.Join("data", "index")), "index directory")
	lat := flag.Float64("lat", 0, "latitude of a single query point")
	lon := flag.Float64("lon", 0, "longitude of a single query point")
	radius := flag.Float64("radius", 100, "search radius in meters")
	points := flag.String("points", utils.EnvString("POINTS", ""), "query points as lon,lat;lon,lat")
	workers := flag.Int("workers", utils.EnvInt("QUERY_WORKERS", 0), "parallel query workers (0 = GOMAXPROCS)")
	asJSON := flag.Bool("json", false, "print a JSON array")
	flag.Parse()

	pts, err := parsePoints(*points)
	if err != nil {
		l.Error("points_parse_error", "err", err)
		os.Exit(2)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["lat"] || set["lon"] {
		pts = append(pts, geom.NewPoint(float32(*lon), float32(*lat)))
	}
	if len(pts) == 0 {
		l.Error("points_missing", "hint", "use -lat/-lon or -points")
		os.Exit(2)
	}

	p, _ := pcindex.Current(*dir)
	ix, err := pcindex.Open(p)
	if err != nil {
		l.Error("index_open_error", "dir", *dir, "err", err)
		os.Exit(1)
	}
	defer ix.Close()
	ix.SetWorkers(*workers)

	codes := ix.Query(pts, float32(*radius))
	if *asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(codes)
		return
	}
	for _, c := range codes {
		fmt.Println(c)
	}
}
