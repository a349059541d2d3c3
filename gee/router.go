package gee

import (
	"sort"
	"strings"
)

// router 按 method 各维护一棵前缀树。
// handlers 的 key 形如 "GET-/api/v1/codes/decode/:id"。
type router struct {
	roots    map[string]*node
	handlers map[string][]HandlerFunc
}

func newRouter() *router {
	return &router{
		roots:    make(map[string]*node),
		handlers: make(map[string][]HandlerFunc),
	}
}

// splitPattern 切分路径，遇到 * 通配段后停止
func splitPattern(pattern string) []string {
	parts := make([]string, 0, 4)
	for _, item := range strings.Split(pattern, "/") {
		if item == "" {
			continue
		}
		parts = append(parts, item)
		if item[0] == '*' {
			break
		}
	}
	return parts
}

func (r *router) addRoute(method, pattern string, handlers ...HandlerFunc) {
	if len(handlers) == 0 {
		panic("gee: route " + method + " " + pattern + " has no handler")
	}
	root, ok := r.roots[method]
	if !ok {
		root = &node{}
		r.roots[method] = root
	}
	root.insert(pattern, splitPattern(pattern), 0)
	r.handlers[method+"-"+pattern] = append([]HandlerFunc(nil), handlers...)
}

func (r *router) getRoute(method, path string) (*node, map[string]string) {
	root, ok := r.roots[method]
	if !ok {
		return nil, nil
	}
	searchParts := splitPattern(path)
	n := root.search(searchParts, 0)
	if n == nil {
		return nil, nil
	}

	params := make(map[string]string)
	for i, part := range splitPattern(n.pattern) {
		switch part[0] {
		case ':':
			params[part[1:]] = searchParts[i]
		case '*':
			if len(part) > 1 {
				params[part[1:]] = strings.Join(searchParts[i:], "/")
			}
			return n, params
		}
	}
	return n, params
}

func (r *router) handle(c *Context) {
	n, params := r.getRoute(c.Method, c.Path)
	switch {
	case n != nil:
		c.Params = params
		c.RoutePattern = n.pattern
		c.handlers = append(c.handlers, r.handlers[c.Method+"-"+n.pattern]...)
	default:
		if allow := r.allowedMethods(c.Path); len(allow) > 0 {
			c.SetHeader("Allow", strings.Join(allow, ","))
			c.handlers = append(c.handlers, c.engine.noMethod...)
		} else {
			c.handlers = append(c.handlers, c.engine.noRoute...)
		}
	}
	c.Next()
}

// allowedMethods 返回能匹配 path 的所有 method，用于 405 的 Allow 头
func (r *router) allowedMethods(path string) []string {
	var allow []string
	for method := range r.roots {
		if n, _ := r.getRoute(method, path); n != nil {
			allow = append(allow, method)
		}
	}
	sort.Strings(allow)
	return allow
}
