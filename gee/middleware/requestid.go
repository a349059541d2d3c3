package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"sqidlink.local/gee"
)

const RequestIDHeader = "X-Request-ID"

// ReqID 透传或生成请求 ID，同时写回响应头
func ReqID() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id := ctx.Req.Header.Get(RequestIDHeader)
		if id == "" {
			id = NewRequestID()
			ctx.Req.Header.Set(RequestIDHeader, id)
		}
		ctx.SetHeader(RequestIDHeader, id)
		ctx.Next()
	}
}

// NewRequestID 返回 32 个十六进制字符；随机源不可用时退回纳秒时间戳
func NewRequestID() string {
	var src [16]byte
	if _, err := rand.Read(src[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(src[:])
}
