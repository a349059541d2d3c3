package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sqidlink.local/gee"
	"sqidlink.local/internal/app/shortlink"
	"sqidlink.local/internal/app/shortlink/stats"
	"sqidlink.local/internal/platform/httpmiddleware"
	"sqidlink.local/internal/platform/metrics"
)

type CreateShortlinkRequest struct {
	URL  string `json:"url"`
	Code string `json:"code,omitempty"`
}

type CreateShortlinkResponse struct {
	Code     string `json:"code"`
	ShortURL string `json:"short_url"`
	URL      string `json:"url"`
}

func NewCreateHandler(sl shortlink.Shortlinks) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req CreateShortlinkRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		url := strings.TrimSpace(req.URL)
		if err := shortlink.ValidateURL(url); err != nil {
			ctx.AbortWithError(http.StatusBadRequest, err.Error())
			return
		}
		custom := strings.TrimSpace(req.Code)
		if custom != "" {
			if err := shortlink.ValidateCode(custom); err != nil {
				ctx.AbortWithError(http.StatusBadRequest, err.Error())
				return
			}
		}

		userID := optionalUserID(ctx)
		var (
			code string
			err  error
		)
		if custom != "" {
			code, err = sl.CreateWithCustomCode(ctx.Req.Context(), url, custom, userID)
		} else {
			code, err = sl.Create(ctx.Req.Context(), url, userID)
		}
		if err != nil {
			if errors.Is(err, shortlink.ErrShortlinkCodeAlreadyExists) || errors.Is(err, shortlink.ErrShortlinkURLAlreadyHasDifferentCode) {
				ctx.AbortWithError(http.StatusConflict, err.Error())
				return
			}
			slog.Error("create shortlink failed", "url", url, "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "shortlink create failed")
			return
		}

		ctx.JSON(http.StatusOK, CreateShortlinkResponse{
			Code:     code,
			ShortURL: shortURL(ctx.Req, code),
			URL:      url,
		})
	}
}

func NewRedirectHandler(sl shortlink.Shortlinks, collector stats.Collector) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		code := ctx.Param("code")
		url, err := sl.Resolve(ctx.Req.Context(), code)
		if err != nil {
			if errors.Is(err, shortlink.ErrShortlinkNotFound) {
				ctx.AbortWithError(http.StatusNotFound, "url not found")
				return
			}
			slog.Error("resolve shortlink failed", "code", code, "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "internal error")
			return
		}
		metrics.ShortlinkRedirects.Inc()

		if collector != nil {
			collector.Collect(stats.ClickEvent{
				Code:      code,
				ClickedAt: time.Now(),
				IP:        httpmiddleware.ClientIP(ctx.Req),
				UserAgent: ctx.Req.UserAgent(),
				Referer:   ctx.Req.Referer(),
			})
		}
		ctx.Redirect(http.StatusFound, url)
	}
}

func NewFindShortlinkHandler(sl shortlink.Shortlinks) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		code := ctx.Param("code")
		data, err := sl.FindByCode(ctx.Req.Context(), code)
		if err != nil {
			if errors.Is(err, shortlink.ErrShortlinkNotFound) {
				ctx.AbortWithError(http.StatusNotFound, err.Error())
				return
			}
			slog.Error("find shortlink failed", "code", code, "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "internal error")
			return
		}
		ctx.JSON(http.StatusOK, data)
	}
}

func NewDisableHandler(sl shortlink.Shortlinks) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		code := ctx.Param("code")
		err := sl.DisableByCode(ctx.Req.Context(), code)
		switch {
		case err == nil:
			ctx.Status(http.StatusOK)
		case errors.Is(err, shortlink.ErrShortlinkNotFound):
			ctx.AbortWithError(http.StatusNotFound, err.Error())
		case errors.Is(err, shortlink.ErrAlreadyDisabled):
			ctx.AbortWithError(http.StatusConflict, err.Error())
		default:
			slog.Error("disable shortlink failed", "code", code, "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "internal error")
		}
	}
}

func NewMineHandler(sl shortlink.Shortlinks) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		userID, ok := mustGetUserID(ctx)
		if !ok {
			return
		}
		list, err := sl.ListByUserID(ctx.Req.Context(), userID, 50)
		if err != nil {
			slog.Error("list user shortlinks failed", "user_id", userID, "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "internal error")
			return
		}
		if list == nil {
			list = []shortlink.UserShortlink{}
		}
		ctx.JSON(http.StatusOK, list)
	}
}

func NewRemoveFromMineHandler(sl shortlink.Shortlinks) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		code := ctx.Param("code")
		userID, ok := mustGetUserID(ctx)
		if !ok {
			return
		}
		if err := sl.RemoveFromUserList(ctx.Req.Context(), userID, code); err != nil {
			if errors.Is(err, shortlink.ErrShortlinkNotFound) {
				ctx.AbortWithError(http.StatusNotFound, err.Error())
				return
			}
			slog.Error("remove user shortlink failed", "user_id", userID, "code", code, "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "internal error")
			return
		}
		ctx.Status(http.StatusOK)
	}
}

// NewGetStatsHandler 只允许短链所属用户查看；limit 1-100，cursor 为上一页最后一条的 id
func NewGetStatsHandler(sl shortlink.Shortlinks) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		code := ctx.Param("code")
		userID, ok := mustGetUserID(ctx)
		if !ok {
			return
		}
		owns, err := sl.UserOwnsShortlink(ctx.Req.Context(), userID, code)
		if err != nil {
			slog.Error("check shortlink owner failed", "user_id", userID, "code", code, "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "internal error")
			return
		}
		if !owns {
			ctx.AbortWithError(http.StatusForbidden, "no permission")
			return
		}

		limit := 20
		if l := ctx.Query("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n <= 0 || n > 100 {
				ctx.AbortWithError(http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}
		var cursor int64
		if c := ctx.Query("cursor"); c != "" {
			n, err := strconv.ParseInt(c, 10, 64)
			if err != nil || n <= 0 {
				ctx.AbortWithError(http.StatusBadRequest, "invalid cursor")
				return
			}
			cursor = n
		}

		page, err := sl.ListStatsByCode(ctx.Req.Context(), code, limit, cursor)
		if err != nil {
			slog.Error("list stats failed", "code", code, "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "internal error")
			return
		}
		ctx.JSON(http.StatusOK, page)
	}
}
