package gee

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxBodyBytes 请求体上限，编码接口的 numbers 数组不会超过这个量级
const maxBodyBytes = 1 << 20

var (
	ErrEmptyBody     = errors.New("empty body")
	ErrTrailingValue = errors.New("body must contain only one JSON value")
)

// ShouldBindJSON 只解析 JSON，拒绝未知字段和多余内容
func (c *Context) ShouldBindJSON(dst any) error {
	decoder := json.NewDecoder(io.LimitReader(c.Req.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return ErrTrailingValue
	}
	return nil
}

// BindJSON 解析失败时直接写 400
func (c *Context) BindJSON(dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithError(http.StatusBadRequest, "Invalid json")
		return err
	}
	return nil
}
