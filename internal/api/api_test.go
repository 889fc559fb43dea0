package api

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"pcindex/internal/builder"
	"pcindex/internal/geom"
	"pcindex/internal/pcindex"
	"pcindex/internal/postcode"
	"pcindex/internal/records"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fixtureOnce   sync.Once
	fixtureArrays *builder.Arrays
)

func testIndex(t *testing.T) *pcindex.Index {
	t.Helper()
	fixtureOnce.Do(func() {
		pcs := &records.Postcodes{}
		pcs.Push(1, postcode.MustParse("1234AB"))
		pcs.Push(2, postcode.MustParse("1234AB"))
		pcs.Push(3, postcode.MustParse("5678CD"))
		locs := &records.Locations{}
		locs.Push(1, geom.Point{X: 5.0, Y: 52.0})
		locs.Push(2, geom.Point{X: 5.001, Y: 52.0})
		locs.Push(3, geom.Point{X: 6.0, Y: 53.0})
		a, _, err := builder.Accumulate(pcs, locs)
		if err == nil {
			fixtureArrays = a
		}
	})
	require.NotNil(t, fixtureArrays)
	ix, err := fixtureArrays.Index()
	require.NoError(t, err)
	return ix
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	s := NewServer(nil, Options{MaxRadius: 50000, MaxPoints: 3, CacheTTL: time.Minute, LRUSize: 16})
	require.NoError(t, s.Swap(testIndex(t), "v1"))
	ts := httptest.NewServer(s.BuildRoutes())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, u string, out any) int {
	t.Helper()
	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestPostcodes_LatLon(t *testing.T) {
	_, ts := newTestServer(t)
	var res struct{ Postcodes []string }
	code := getJSON(t, ts.URL+"/postcodes?lat=52.0&lon=5.0005&radius=200", &res)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"1234AB"}, res.Postcodes)

	code = getJSON(t, ts.URL+"/postcodes?lat=0&lon=0&radius=1", &res)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, res.Postcodes)
}

func TestPostcodes_PointsList(t *testing.T) {
	_, ts := newTestServer(t)
	var res struct{ Postcodes []string }
	q := url.Values{"points": {"6,53;5,52"}, "radius": {"10"}}
	code := getJSON(t, ts.URL+"/postcodes?"+q.Encode(), &res)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"1234AB", "5678CD"}, res.Postcodes)
}

func TestPostcodes_BadRequests(t *testing.T) {
	_, ts := newTestServer(t)
	for _, q := range []string{
		"",
		"lat=52&lon=5",
		"lat=52&lon=5&radius=-1",
		"lat=52&lon=5&radius=abc",
		"lat=52&lon=5&radius=60000",
		"lat=95&lon=5&radius=10",
		"points=5;52&radius=10",
		"points=1,1;2,2;3,3;4,4&radius=10",
	} {
		var res errorResult
		code := getJSON(t, ts.URL+"/postcodes?"+q, &res)
		assert.Equal(t, http.StatusBadRequest, code, q)
		assert.NotEmpty(t, res.Error, q)
	}
}

func TestPostcodes_CachedAndPurgedOnSwap(t *testing.T) {
	s, ts := newTestServer(t)
	u := ts.URL + "/postcodes?lat=53&lon=6&radius=1"
	var first, second struct{ Postcodes []string }
	getJSON(t, u, &first)
	assert.Equal(t, 1, s.lru.Len())
	getJSON(t, u, &second)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, s.lru.Len())

	require.NoError(t, s.Swap(testIndex(t), "v2"))
	assert.Equal(t, 0, s.lru.Len())
}

func TestPostcode_Describe(t *testing.T) {
	_, ts := newTestServer(t)
	var res struct {
		Postcode string
		BBox     [4]float32
		Points   [][2]float32
	}
	code := getJSON(t, ts.URL+"/postcode?code=1234AB", &res)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1234AB", res.Postcode)
	assert.Equal(t, [4]float32{5.0, 52.0, 5.001, 52.0}, res.BBox)
	assert.Equal(t, [][2]float32{{5.0, 52.0}, {5.001, 52.0}}, res.Points)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/postcode?code=9999ZZ", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/postcode?code=12AB", nil))
}

func TestHealthz(t *testing.T) {
	s := NewServer(nil, Options{})
	ts := httptest.NewServer(s.BuildRoutes())
	defer ts.Close()

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/postcodes?lat=52&lon=5&radius=10", nil))

	require.NoError(t, s.Swap(testIndex(t), "v1"))
	var res map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &res))
	assert.Equal(t, "ok", res["status"])
	assert.EqualValues(t, 2, res["postcodes"])
	assert.EqualValues(t, 3, res["points"])
	require.NoError(t, s.Close())
}

func TestCacheKey_OrderIndependent(t *testing.T) {
	a := proximityQuery{Points: []geom.Point{{X: 5, Y: 52}, {X: 6, Y: 53}}, Radius: 100}
	b := proximityQuery{Points: []geom.Point{{X: 6, Y: 53}, {X: 5, Y: 52}, {X: 5, Y: 52}}, Radius: 100}
	c := proximityQuery{Points: a.Points, Radius: 101}
	assert.Equal(t, a.cacheKey("v1"), b.cacheKey("v1"))
	assert.NotEqual(t, a.cacheKey("v1"), c.cacheKey("v1"))
	assert.NotEqual(t, a.cacheKey("v1"), a.cacheKey("v2"))
	assert.Regexp(t, `^pc:[0-9a-f]+$`, a.cacheKey("v1"))
}

func TestLRU_EvictsAndExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewLRU(2, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	_, _ = c.Get("a")
	c.Set("c", []byte("3"))

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("c")
	assert.False(t, ok, "expired")

	off := NewLRU(0, time.Minute)
	off.Set("a", []byte("1"))
	assert.Equal(t, 0, off.Len())
}

// stalledRedis：接受连接但从不应答的 Redis 端点
func stalledRedis(t *testing.T) (*redis.Client, <-chan struct{}) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	accepted := make(chan struct{}, 1)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
			select {
			case accepted <- struct{}{}:
			default:
			}
		}
	}()
	rc := redis.NewClient(&redis.Options{
		Addr:        ln.Addr().String(),
		Protocol:    2,
		ReadTimeout: time.Second,
		MaxRetries:  -1,
	})
	t.Cleanup(func() {
		_ = rc.Close()
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return rc, accepted
}

func TestPostcodes_SlowRedisDoesNotBlockSwap(t *testing.T) {
	rc, accepted := stalledRedis(t)
	s := NewServer(rc, Options{CacheTTL: time.Minute, LRUSize: 16})
	require.NoError(t, s.Swap(testIndex(t), "v1"))
	ts := httptest.NewServer(s.BuildRoutes())
	t.Cleanup(ts.Close)

	status := make(chan int, 1)
	go func() {
		resp, err := http.Get(ts.URL + "/postcodes?lat=53&lon=6&radius=1")
		if err != nil {
			status <- 0
			return
		}
		resp.Body.Close()
		status <- resp.StatusCode
	}()
	select {
	case <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("redis was never contacted")
	}

	next := testIndex(t)
	swapped := make(chan error, 1)
	go func() { swapped <- s.Swap(next, "v2") }()
	select {
	case err := <-swapped:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("swap blocked behind a pending redis call")
	}
	assert.Equal(t, http.StatusOK, <-status)
}
