package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"sqidlink.local/gee"
	"sqidlink.local/internal/app/shortlink"
	"sqidlink.local/sqids"
)

const maxEncodeNumbers = 100

type EncodeRequest struct {
	Numbers []uint64 `json:"numbers"`
}

type EncodeResponse struct {
	ID string `json:"id"`
}

type DecodeResponse struct {
	Numbers   []uint64 `json:"numbers"`
	Canonical bool     `json:"canonical"`
}

// NewEncodeHandler 空数组编成空串；所有候选都被屏蔽时返回 422
func NewEncodeHandler(c *shortlink.Coder) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req EncodeRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		if req.Numbers == nil {
			ctx.AbortWithError(http.StatusBadRequest, "numbers is required")
			return
		}
		if len(req.Numbers) > maxEncodeNumbers {
			ctx.AbortWithError(http.StatusBadRequest, fmt.Sprintf("at most %d numbers", maxEncodeNumbers))
			return
		}
		id, err := c.EncodeNumbers(req.Numbers)
		if err != nil {
			if errors.Is(err, sqids.ErrAttemptsExhausted) {
				ctx.AbortWithError(http.StatusUnprocessableEntity, err.Error())
				return
			}
			ctx.AbortWithError(http.StatusInternalServerError, "encode failed")
			return
		}
		ctx.JSON(http.StatusOK, EncodeResponse{ID: id})
	}
}

// NewDecodeHandler 非法 ID 返回空数组而不是错误
func NewDecodeHandler(c *shortlink.Coder) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id := ctx.Param("id")
		numbers := c.DecodeNumbers(id)
		if numbers == nil {
			numbers = []uint64{}
		}
		ctx.JSON(http.StatusOK, DecodeResponse{
			Numbers:   numbers,
			Canonical: len(numbers) > 0 && c.Canonical(id),
		})
	}
}
