package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"sqidlink.local/gee"
	"sqidlink.local/internal/app/shortlink"
	"sqidlink.local/internal/platform/auth"
)

type RegisterUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterUserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func NewRegisterUserHandler(users shortlink.Users) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req RegisterUserRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		id, err := users.RegisterUser(ctx.Req.Context(), req.Username, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, shortlink.ErrUserAlreadyExists):
				ctx.AbortWithError(http.StatusConflict, err.Error())
			case errors.Is(err, shortlink.ErrInvalidUsername), errors.Is(err, shortlink.ErrInvalidPassword):
				ctx.AbortWithError(http.StatusBadRequest, err.Error())
			default:
				slog.Error("register user failed", "username", req.Username, "err", err)
				ctx.AbortWithError(http.StatusInternalServerError, "internal error")
			}
			return
		}
		ctx.JSON(http.StatusCreated, RegisterUserResponse{ID: id, Username: req.Username})
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func NewLoginHandler(users shortlink.Users, ts auth.TokenService) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req LoginRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		// bcrypt 本身要几十毫秒，给查库留 1 秒
		dbctx, cancel := context.WithTimeout(ctx.Req.Context(), time.Second)
		defer cancel()
		user, err := users.Authenticate(dbctx, req.Username, req.Password)
		if err != nil {
			if errors.Is(err, shortlink.ErrBadCredentials) {
				ctx.AbortWithError(http.StatusUnauthorized, err.Error())
				return
			}
			slog.Error("authenticate failed", "username", req.Username, "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "internal error")
			return
		}

		token, err := ts.Sign(auth.Identity{UserID: user.ID, Role: user.Role})
		if err != nil {
			slog.Error("sign token failed", "user_id", user.ID, "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "sign failed")
			return
		}
		ctx.JSON(http.StatusOK, LoginResponse{Token: token})
	}
}

func NewUserMeHandler() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := auth.GetIdentity(ctx.Req.Context())
		if !ok {
			ctx.AbortWithError(http.StatusUnauthorized, "not login")
			return
		}
		ctx.JSON(http.StatusOK, gee.H{
			"user_id": id.UserID,
			"role":    id.Role,
		})
	}
}
