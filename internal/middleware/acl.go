package middleware

import (
	"net"
	"net/http"
	"strings"

	"pcindex/internal/logger"
	"pcindex/internal/utils"
)

// 文档注释：来源 IP 白名单（单 IP 与 CIDR）
// 背景：索引服务通常部署在内网，只对指定网段开放；未启用时直接透传
// 环境变量：
// ACCESS_ALLOW_ENABLE=true           是否启用
// ACCESS_ALLOW_CIDRS=10.0.0.0/8,...  允许的 IP 或 CIDR（逗号分隔，支持 v4/v6，单 IP 按 /32 或 /128 处理）
// ACCESS_ALLOW_LOCAL=true            允许回环地址
// ACCESS_REAL_IP_HEADER=X-Forwarded-For  上游真实 IP 头（取首个有效 IP）
type ACL struct {
	enabled      bool
	nets         []*net.IPNet
	realIPHeader string
}

func NewACLFromEnv() *ACL {
	a := &ACL{
		enabled:      utils.EnvBool("ACCESS_ALLOW_ENABLE", false),
		realIPHeader: utils.EnvString("ACCESS_REAL_IP_HEADER", ""),
	}
	a.Allow(strings.Split(utils.EnvString("ACCESS_ALLOW_CIDRS", ""), ",")...)
	if utils.EnvBool("ACCESS_ALLOW_LOCAL", false) {
		a.Allow("127.0.0.0/8", "::1")
	}
	return a
}

// Allow：追加允许项，无法解析的条目忽略
func (a *ACL) Allow(entries ...string) {
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			if ip := net.ParseIP(e); ip != nil {
				bits := 128
				if ip.To4() != nil {
					ip, bits = ip.To4(), 32
				}
				a.nets = append(a.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			}
			continue
		}
		if _, n, err := net.ParseCIDR(e); err == nil {
			a.nets = append(a.nets, n)
		}
	}
}

func (a *ACL) allowed(ip net.IP) bool {
	for _, n := range a.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP：优先指定头的首个 IP，其次 RemoteAddr
func (a *ACL) clientIP(r *http.Request) net.IP {
	if a.realIPHeader != "" {
		if raw := r.Header.Get(a.realIPHeader); raw != "" {
			first, _, _ := strings.Cut(raw, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip
			}
		}
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(host)
}

func (a *ACL) Wrap(next http.Handler) http.Handler {
	if !a.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := a.clientIP(r)
		if ip == nil || !a.allowed(ip) {
			logger.L().Debug("access_denied", "remote", r.RemoteAddr)
			w.Header().Set("content-type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
