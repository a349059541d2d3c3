package shortlink

import (
	"context"
	"errors"
	"time"
)

// 领域错误，httpapi 按这些错误映射状态码
var (
	ErrShortlinkNotFound                   = errors.New("shortlink not found")
	ErrAlreadyDisabled                     = errors.New("shortlink already disabled")
	ErrShortlinkCodeAlreadyExists          = errors.New("shortlink code already exists")
	ErrShortlinkURLAlreadyHasDifferentCode = errors.New("shortlink url already has different code")

	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("username already exists")
	ErrInvalidUsername   = errors.New("username is not allowed")
	ErrInvalidPassword   = errors.New("password is not allowed")
	ErrBadCredentials    = errors.New("invalid credentials")
)

// Metadata 是 GET /shortlinks/:code 返回的内容
type Metadata struct {
	Code       string    `json:"code"`
	URL        string    `json:"url"`
	Disabled   bool      `json:"disabled"`
	ClickCount int64     `json:"click_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type UserShortlink struct {
	Code       string    `json:"code"`
	URL        string    `json:"url"`
	Disabled   bool      `json:"disabled"`
	CreatedAt  time.Time `json:"created_at"`
	ClickCount int64     `json:"click_count"`
}

type ClickStats struct {
	ID        int64     `json:"id"` // 下一页的 cursor
	ClickedAt time.Time `json:"clicked_at"`
	Referer   string    `json:"referer"`
	UserAgent string    `json:"user_agent"`
}

type StatsPage struct {
	TotalClicks  int64        `json:"total_clicks"`
	RecentClicks []ClickStats `json:"recent_clicks"`
	NextCursor   *int64       `json:"next_cursor,omitempty"`
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
}

// Shortlinks 是短链用例集合，由 repo.ShortlinksRepo 实现。createdBy 为 nil 表示匿名创建。
type Shortlinks interface {
	Create(ctx context.Context, url string, createdBy *int64) (string, error)
	CreateWithCustomCode(ctx context.Context, url, code string, createdBy *int64) (string, error)
	Resolve(ctx context.Context, code string) (string, error)
	FindByCode(ctx context.Context, code string) (*Metadata, error)
	DisableByCode(ctx context.Context, code string) error
	ListByUserID(ctx context.Context, userID int64, limit int) ([]UserShortlink, error)
	RemoveFromUserList(ctx context.Context, userID int64, code string) error
	UserOwnsShortlink(ctx context.Context, userID int64, code string) (bool, error)
	ListStatsByCode(ctx context.Context, code string, limit int, cursor int64) (*StatsPage, error)
}

// Users 由 repo.UsersRepo 实现。Authenticate 对不存在的用户和错误密码都返回 ErrBadCredentials。
type Users interface {
	RegisterUser(ctx context.Context, username, password string) (int64, error)
	Authenticate(ctx context.Context, username, password string) (User, error)
}
