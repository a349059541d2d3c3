package gee

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
)

// stack 收集 panic 位置的调用栈
func stack(message string) string {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\nTraceback:")
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "\n\t%s:%d", frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// Recovery 把 handler 里的 panic 转成 500 并记录日志
func Recovery() HandlerFunc {
	return func(ctx *Context) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"request_id", ctx.Req.Header.Get("X-Request-ID"),
					"method", ctx.Method,
					"path", ctx.Path,
					"panic", err,
					"stack", stack(fmt.Sprintf("%v", err)),
				)
				if ctx.Writer.Written() {
					ctx.Abort()
					return
				}
				ctx.AbortWithError(http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		ctx.Next()
	}
}
