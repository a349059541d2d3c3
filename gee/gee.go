package gee

import (
	"log/slog"
	"net/http"
	"strings"
)

// HandlerFunc 是 handler 与中间件的统一签名。
type HandlerFunc func(*Context)

// Engine 是整个框架的入口，实现 http.Handler。
type Engine struct {
	*RouterGroup
	router   *router
	groups   []*RouterGroup
	noRoute  []HandlerFunc
	noMethod []HandlerFunc
}

// RouterGroup 共享前缀和中间件的一组路由。
type RouterGroup struct {
	prefix      string
	middlewares []HandlerFunc
	engine      *Engine
}

func New() *Engine {
	e := &Engine{router: newRouter()}
	e.RouterGroup = &RouterGroup{engine: e}
	e.groups = []*RouterGroup{e.RouterGroup}
	e.noRoute = []HandlerFunc{func(ctx *Context) {
		ctx.AbortWithError(http.StatusNotFound, "404 NOT FOUND "+ctx.Path)
	}}
	e.noMethod = []HandlerFunc{func(ctx *Context) {
		ctx.AbortWithError(http.StatusMethodNotAllowed, "405 Method Not Allowed "+ctx.Path)
	}}
	return e
}

// NoRoute 替换 404 处理链
func (e *Engine) NoRoute(handlers ...HandlerFunc) {
	e.noRoute = handlers
}

// NoMethod 替换 405 处理链
func (e *Engine) NoMethod(handlers ...HandlerFunc) {
	e.noMethod = handlers
}

// Group 基于当前分组创建子分组，前缀叠加。
func (g *RouterGroup) Group(prefix string) *RouterGroup {
	child := &RouterGroup{
		prefix: g.prefix + prefix,
		engine: g.engine,
	}
	g.engine.groups = append(g.engine.groups, child)
	return child
}

// Use 添加中间件，对该分组及其子分组生效
func (g *RouterGroup) Use(middlewares ...HandlerFunc) {
	g.middlewares = append(g.middlewares, middlewares...)
}

func (g *RouterGroup) handle(method, comp string, handlers ...HandlerFunc) {
	pattern := g.prefix + comp
	slog.Debug("route registered", "method", method, "pattern", pattern)
	g.engine.router.addRoute(method, pattern, handlers...)
}

func (g *RouterGroup) GET(pattern string, handlers ...HandlerFunc) {
	g.handle(http.MethodGet, pattern, handlers...)
}

func (g *RouterGroup) POST(pattern string, handlers ...HandlerFunc) {
	g.handle(http.MethodPost, pattern, handlers...)
}

func (g *RouterGroup) DELETE(pattern string, handlers ...HandlerFunc) {
	g.handle(http.MethodDelete, pattern, handlers...)
}

// ServeHTTP 收集前缀匹配的分组中间件，再交给 router 追加路由 handler。
func (e *Engine) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var chain []HandlerFunc
	for _, g := range e.groups {
		if strings.HasPrefix(req.URL.Path, g.prefix) {
			chain = append(chain, g.middlewares...)
		}
	}
	ctx := newContext(w, req)
	ctx.handlers = chain
	ctx.engine = e
	e.router.handle(ctx)
}

func (e *Engine) Run(addr string) error {
	return http.ListenAndServe(addr, e)
}
