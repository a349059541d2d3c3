package httpapi

import (
	"net/http"
	"time"

	"sqidlink.local/gee"
	"sqidlink.local/internal/app/shortlink"
	"sqidlink.local/internal/app/shortlink/stats"
	"sqidlink.local/internal/platform/auth"
	"sqidlink.local/internal/platform/httpmiddleware"
)

// Deps 是挂路由需要的全部依赖；Limiter 为 nil 时不限流
type Deps struct {
	Shortlinks shortlink.Shortlinks
	Users      shortlink.Users
	Coder      *shortlink.Coder
	Tokens     auth.TokenService
	Limiter    httpmiddleware.Allower
	Collector  stats.Collector
}

func (d Deps) limit(prefix string, n int) gee.HandlerFunc {
	if d.Limiter == nil {
		return func(ctx *gee.Context) { ctx.Next() }
	}
	return httpmiddleware.RateLimit(d.Limiter, prefix, n, time.Minute)
}

// RegisterAPIRoutes 挂在 /api/v1 分组下。本包只做 HTTP 与领域之间的翻译。
func RegisterAPIRoutes(api *gee.RouterGroup, d Deps) {
	api.Use(httpmiddleware.AuthOptional(d.Tokens))

	codes := api.Group("/codes")
	codes.POST("/encode", d.limit("encode", 600), NewEncodeHandler(d.Coder))
	codes.GET("/decode/:id", d.limit("decode", 600), NewDecodeHandler(d.Coder))

	api.POST("/shortlinks", d.limit("create", 10), NewCreateHandler(d.Shortlinks))
	api.GET("/shortlinks/:code", NewFindShortlinkHandler(d.Shortlinks))
	api.POST("/register", d.limit("register", 3), NewRegisterUserHandler(d.Users))
	api.POST("/login", d.limit("login", 5), NewLoginHandler(d.Users, d.Tokens))

	users := api.Group("/users")
	users.Use(httpmiddleware.AuthRequired(d.Tokens))
	users.GET("/me", NewUserMeHandler())
	users.GET("/mine", NewMineHandler(d.Shortlinks))
	users.DELETE("/mine/:code", NewRemoveFromMineHandler(d.Shortlinks))
	users.GET("/shortlinks/:code/stats", NewGetStatsHandler(d.Shortlinks))

	admin := api.Group("/admin")
	admin.Use(httpmiddleware.AuthRequired(d.Tokens), httpmiddleware.RequireRole(auth.RoleAdmin))
	admin.GET("/ping", func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "pong")
	})
	admin.POST("/shortlinks/:code/disable", NewDisableHandler(d.Shortlinks))
}

// RegisterPublicRoutes 跳转入口挂在根路径，不放进 /api/v1
func RegisterPublicRoutes(engine *gee.Engine, d Deps) {
	engine.GET("/:code", d.limit("redirect", 100), NewRedirectHandler(d.Shortlinks, d.Collector))
}
