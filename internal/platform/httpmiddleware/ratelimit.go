package httpmiddleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"sqidlink.local/gee"
	"sqidlink.local/internal/platform/ratelimit"
)

// Allower 由 *ratelimit.Limiter 实现
type Allower interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Decision, error)
}

// ClientIP 返回真实客户端 IP。
// 只有直连方是可信代理（本机、私网、docker bridge）时才读转发头，否则客户端能伪造 X-Forwarded-For 绕过限流。
func ClientIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	remote, err := netip.ParseAddr(host)
	if err != nil || !isTrustedProxy(remote) {
		return host
	}

	// Cloudflare -> Caddy -> app
	if ip, ok := validIP(req.Header.Get("CF-Connecting-IP")); ok {
		return ip
	}
	// 第一个是原始客户端，后面是沿途代理
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, ok := validIP(first); ok {
			return ip
		}
	}
	if ip, ok := validIP(req.Header.Get("X-Real-IP")); ok {
		return ip
	}
	return host
}

func validIP(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if _, err := netip.ParseAddr(s); err != nil {
		return "", false
	}
	return s, true
}

// isTrustedProxy: loopback、RFC1918、IPv6 ULA
func isTrustedProxy(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsLoopback() || ip.IsPrivate()
}

// RateLimit 按客户端 IP 做滑动窗口限流，key 为 rl:<prefix>:<ip>。
// limiter 为 nil 时不限流；redis 出错时放行。
func RateLimit(limiter Allower, prefix string, limit int, window time.Duration) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		if limiter == nil {
			ctx.Next()
			return
		}
		key := "rl:" + prefix + ":" + ClientIP(ctx.Req)

		rlCtx, cancel := context.WithTimeout(ctx.Req.Context(), 50*time.Millisecond)
		d, err := limiter.Allow(rlCtx, key, limit, window)
		cancel()
		if err != nil {
			slog.Error("rate limit check failed", "key", key, "err", err)
			ctx.Next()
			return
		}
		if !d.Allowed {
			if d.RetryAfter > 0 {
				// Retry-After 单位是秒，向上取整
				secs := int64((d.RetryAfter + time.Second - 1) / time.Second)
				ctx.SetHeader("Retry-After", strconv.FormatInt(secs, 10))
			}
			ctx.AbortWithError(http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		ctx.Next()
	}
}
