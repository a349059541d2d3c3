package httpapi

import (
	"net/http"

	"sqidlink.local/gee"
	"sqidlink.local/internal/platform/auth"
)

// mustGetUserID 未登录时已写入 401
func mustGetUserID(ctx *gee.Context) (int64, bool) {
	identity, ok := auth.GetIdentity(ctx.Req.Context())
	if !ok {
		ctx.AbortWithError(http.StatusUnauthorized, "not login")
		return 0, false
	}
	return identity.UserID, true
}

// optionalUserID 匿名请求返回 nil
func optionalUserID(ctx *gee.Context) *int64 {
	identity, ok := auth.GetIdentity(ctx.Req.Context())
	if !ok {
		return nil
	}
	id := identity.UserID
	return &id
}

// shortURL 拼出完整短链，反向代理后面用 X-Forwarded-Proto
func shortURL(req *http.Request, code string) string {
	path := "/" + code
	if req.Host == "" {
		return path
	}
	scheme := req.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if req.TLS != nil {
			scheme = "https"
		}
	}
	return scheme + "://" + req.Host + path
}
