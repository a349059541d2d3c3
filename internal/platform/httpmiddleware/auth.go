package httpmiddleware

import (
	"net/http"
	"strings"

	"sqidlink.local/gee"
	"sqidlink.local/internal/platform/auth"
)

// bearerToken 取出 "Bearer <token>"，格式不对返回空串
func bearerToken(r *http.Request) string {
	fields := strings.Fields(r.Header.Get("Authorization"))
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

func withIdentity(ctx *gee.Context, id auth.Identity) {
	ctx.Req = ctx.Req.WithContext(auth.WithIdentity(ctx.Req.Context(), id))
}

// AuthRequired 没有合法 token 直接 401
func AuthRequired(ts auth.TokenService) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		if ctx.Req.Header.Get("Authorization") == "" {
			ctx.AbortWithError(http.StatusUnauthorized, "missing authorization header")
			return
		}
		token := bearerToken(ctx.Req)
		if token == "" {
			ctx.AbortWithError(http.StatusUnauthorized, "invalid authorization format")
			return
		}
		id, err := ts.Verify(token)
		if err != nil {
			ctx.AbortWithError(http.StatusUnauthorized, "invalid token")
			return
		}
		withIdentity(ctx, id)
		ctx.Next()
	}
}

// AuthOptional token 合法就挂上身份，否则当匿名请求放行
func AuthOptional(ts auth.TokenService) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		if token := bearerToken(ctx.Req); token != "" {
			if id, err := ts.Verify(token); err == nil {
				withIdentity(ctx, id)
			}
		}
		ctx.Next()
	}
}

// RequireRole 必须挂在 AuthRequired 之后
func RequireRole(role string) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := auth.GetIdentity(ctx.Req.Context())
		if !ok {
			ctx.AbortWithError(http.StatusUnauthorized, "unauthorized")
			return
		}
		if id.Role != role {
			ctx.AbortWithError(http.StatusForbidden, "forbidden")
			return
		}
		ctx.Next()
	}
}
