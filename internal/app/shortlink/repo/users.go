package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
	"sqidlink.local/internal/app/shortlink"
	"sqidlink.local/internal/platform/auth"
)

const (
	sqlFindUser   = `SELECT id, username, password_hash, role FROM users WHERE username = $1 LIMIT 1`
	sqlInsertUser = `INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3)
ON CONFLICT (username) DO NOTHING RETURNING id`
)

// bcrypt 只看前 72 字节，更长的密码直接拒绝
const (
	minPasswordLen = 8
	maxPasswordLen = 72
)

type UsersRepo struct {
	db   Store
	cost int
}

var _ shortlink.Users = (*UsersRepo)(nil)

func NewUsersRepo(db Store) *UsersRepo {
	return &UsersRepo{db: db, cost: bcrypt.DefaultCost}
}

// HashPassword 校验长度后生成 bcrypt 哈希
func HashPassword(password string, cost int) (string, error) {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return "", shortlink.ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (u *UsersRepo) FindByUsername(ctx context.Context, username string) (shortlink.User, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var user shortlink.User
	if err := u.db.QueryRow(dbctx, sqlFindUser, strings.TrimSpace(username)).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortlink.User{}, shortlink.ErrUserNotFound
		}
		return shortlink.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// RegisterUser 用户名 3~32 位，密码 8~72 字节，新用户一律是普通角色
func (u *UsersRepo) RegisterUser(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return 0, shortlink.ErrInvalidUsername
	}
	hash, err := HashPassword(password, u.cost)
	if err != nil {
		return 0, err
	}

	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	if err := u.db.QueryRow(dbctx, sqlInsertUser, username, hash, auth.RoleUser).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shortlink.ErrUserAlreadyExists
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// Authenticate 用户不存在和密码错误不做区分
func (u *UsersRepo) Authenticate(ctx context.Context, username, password string) (shortlink.User, error) {
	user, err := u.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shortlink.ErrUserNotFound) {
			return shortlink.User{}, shortlink.ErrBadCredentials
		}
		return shortlink.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return shortlink.User{}, shortlink.ErrBadCredentials
	}
	return user, nil
}
