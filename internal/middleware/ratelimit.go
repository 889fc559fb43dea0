// 包 middleware：入口限流与访问控制
package middleware

import (
	"net/http"

	"pcindex/internal/logger"
	"pcindex/internal/metrics"
	"pcindex/internal/utils"

	"golang.org/x/time/rate"
)

// 文档注释：令牌桶限流中间件
// 背景：大批量点查询会触发全槽位并行扫描，峰值时限速保护 CPU；按环境变量开关与速率配置
// 约束：不排队，超限直接返回 429
func RateLimit(next http.Handler, qps float64, burst int) http.Handler {
	if burst <= 0 {
		burst = max(1, int(qps))
	}
	lim := rate.NewLimiter(rate.Limit(qps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !lim.Allow() {
			metrics.RateLimitedTotal.Inc()
			w.Header().Set("retry-after", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Wrap：按环境变量组装中间件链（访问控制在外，限流在内）
// 环境变量：RATE_LIMIT_ENABLED=true、RATE_LIMIT_QPS（默认 200）、RATE_LIMIT_BURST（默认等于 QPS）
func Wrap(next http.Handler) http.Handler {
	h := next
	if utils.EnvBool("RATE_LIMIT_ENABLED", false) {
		qps := utils.EnvFloat("RATE_LIMIT_QPS", 200)
		if qps <= 0 {
			qps = 200
		}
		burst := utils.EnvInt("RATE_LIMIT_BURST", 0)
		logger.L().Info("rate_limit_enabled", "qps", qps, "burst", burst)
		h = RateLimit(h, qps, burst)
	}
	return NewACLFromEnv().Wrap(h)
}
