// 包 api：邮编半径查询的 HTTP 接口，路由集中注册，主入口只负责挂载
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"pcindex/internal/geom"
	"pcindex/internal/logger"
	"pcindex/internal/metrics"
	"pcindex/internal/pcindex"
	"pcindex/internal/postcode"

	"github.com/redis/go-redis/v9"
)

// Options：服务参数
type Options struct {
	MaxRadius float32       // 半径上限（米），非正不限制
	MaxPoints int           // 单次查询点数上限，非正不限制
	CacheTTL  time.Duration // 缓存有效期（LRU 与 Redis 共用）
	LRUSize   int           // 进程内缓存条目数，非正关闭
}

// Server：持有当前索引与两级缓存
// 约束：查询期间持有读锁；Swap 持写锁替换并关闭旧索引，保证旧映射不会在查询中被解除
type Server struct {
	mu      sync.RWMutex
	ix      *pcindex.Index
	version string

	rc   *redis.Client
	lru  *LRU
	opts Options
}

func NewServer(rc *redis.Client, opts Options) *Server {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Server{rc: rc, lru: NewLRU(opts.LRUSize, opts.CacheTTL), opts: opts}
}

// Swap：替换索引，version 参与缓存键；返回前旧索引已关闭
func (s *Server) Swap(ix *pcindex.Index, version string) error {
	s.mu.Lock()
	old := s.ix
	s.ix, s.version = ix, version
	var err error
	if old != nil && old != ix {
		err = old.Close()
	}
	s.mu.Unlock()
	s.lru.Purge()
	logger.L().Info("index_swapped", "version", version)
	return err
}

// Close：关闭当前索引
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ix == nil {
		return nil
	}
	err := s.ix.Close()
	s.ix = nil
	return err
}

type postcodesResult struct {
	Postcodes []postcode.Code `json:"postcodes"`
}

type postcodeResult struct {
	Postcode postcode.Code `json:"postcode"`
	BBox     [4]float32    `json:"bbox"`
	Points   [][2]float32  `json:"points"`
}

type errorResult struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":"encode"}`)
	}
	writeRaw(w, status, b)
}

func writeRaw(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

var errNoIndex = errors.New("index not loaded")

// BuildRoutes：注册全部路由
func (s *Server) BuildRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /postcodes", s.timed("postcodes", s.handlePostcodes))
	mux.HandleFunc("GET /postcode", s.timed("postcode", s.handlePostcode))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func (s *Server) timed(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.RequestsTotal.WithLabelValues(endpoint).Inc()
		h(w, r)
		metrics.RequestDurationMs.WithLabelValues(endpoint).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func (s *Server) handlePostcodes(w http.ResponseWriter, r *http.Request) {
	q, err := parseProximity(r.URL.Query(), s.opts.MaxRadius, s.opts.MaxPoints)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResult{Error: err.Error()})
		return
	}
	ctx := r.Context()

	s.mu.RLock()
	version, loaded := s.version, s.ix != nil
	s.mu.RUnlock()
	if !loaded {
		writeJSON(w, http.StatusServiceUnavailable, errorResult{Error: errNoIndex.Error()})
		return
	}
	// 约束：缓存读写在锁外进行
	if b, ok := s.cached(ctx, q.cacheKey(version)); ok {
		writeRaw(w, http.StatusOK, b)
		return
	}
	codes, version, err := s.query(ctx, q)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResult{Error: err.Error()})
		return
	}
	if len(codes) == 0 {
		metrics.EmptyResultsTotal.Inc()
	}
	b, err := json.Marshal(postcodesResult{Postcodes: codes})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResult{Error: err.Error()})
		return
	}
	s.store(ctx, q.cacheKey(version), b)
	logger.L().Debug("postcodes_query", "points", len(q.Points), "radius_m", q.Radius, "results", len(codes))
	writeRaw(w, http.StatusOK, b)
}

// query：读锁内查询，返回结果所属的索引版本
// 约束：查询与缓存查找之间可能发生 Swap，写缓存时以这里返回的版本为准
func (s *Server) query(ctx context.Context, q proximityQuery) ([]postcode.Code, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ix == nil {
		return nil, "", errNoIndex
	}
	codes, err := s.ix.QueryContext(ctx, q.Points, q.Radius)
	return codes, s.version, err
}

// cached：先查进程内缓存，再查 Redis；Redis 命中回填进程内缓存
func (s *Server) cached(ctx context.Context, key string) ([]byte, bool) {
	if b, ok := s.lru.Get(key); ok {
		metrics.CacheHitsTotal.WithLabelValues("lru").Inc()
		return b, true
	}
	metrics.CacheMissesTotal.WithLabelValues("lru").Inc()
	if s.rc == nil {
		return nil, false
	}
	b, err := s.rc.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Warn("redis_get_error", "key", key, "err", err)
		}
		metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
	s.lru.Set(key, b)
	return b, true
}

func (s *Server) store(ctx context.Context, key string, b []byte) {
	s.lru.Set(key, b)
	if s.rc == nil {
		return
	}
	if err := s.rc.Set(ctx, key, b, s.opts.CacheTTL).Err(); err != nil {
		logger.L().Warn("redis_set_error", "key", key, "err", err)
	}
}

func (s *Server) handlePostcode(w http.ResponseWriter, r *http.Request) {
	c, err := postcode.Parse(r.URL.Query().Get("code"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResult{Error: err.Error()})
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ix == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResult{Error: errNoIndex.Error()})
		return
	}
	pts := s.ix.ForPostcode(c)
	if len(pts) == 0 {
		writeJSON(w, http.StatusNotFound, errorResult{Error: "postcode " + c.String() + " not indexed"})
		return
	}
	writeJSON(w, http.StatusOK, describe(c, s.ix.BoundingBox(c), pts))
}

func describe(c postcode.Code, b geom.BoundingBox, pts []geom.Point) postcodeResult {
	out := postcodeResult{
		Postcode: c,
		BBox:     [4]float32{b.XMin, b.YMin, b.XMax, b.YMax},
		Points:   make([][2]float32, len(pts)),
	}
	for i, p := range pts {
		out.Points[i] = [2]float32{p.X, p.Y}
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ix == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"postcodes": s.ix.Len(),
		"points":    s.ix.Points(),
	})
}
