package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"sqidlink.local/internal/app/shortlink"
	"sqidlink.local/internal/app/shortlink/cache"
	"sqidlink.local/internal/platform/metrics"
)

const (
	sqlUpsertURL = `INSERT INTO shortlinks (url, disabled) VALUES ($1, false)
ON CONFLICT (url) DO UPDATE SET url = EXCLUDED.url
RETURNING id, COALESCE(code, '')`
	sqlSetCodeIfMissing = `UPDATE shortlinks SET code = $1, updated_at = NOW()
WHERE id = $2 AND (code IS NULL OR code = '') RETURNING code`
	sqlInsertWithCode = `INSERT INTO shortlinks (url, code, disabled) VALUES ($1, $2, false)
ON CONFLICT (url) DO NOTHING RETURNING id, code`

	sqlCodeByID       = `SELECT COALESCE(code, '') FROM shortlinks WHERE id = $1`
	sqlByURL          = `SELECT id, COALESCE(code, '') FROM shortlinks WHERE url = $1`
	sqlLinkUser       = `INSERT INTO user_shortlinks (user_id, shortlink_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	sqlResolve        = `SELECT url FROM shortlinks WHERE code = $1 AND disabled = false`
	sqlFindByCode     = `SELECT code, url, disabled, click_count, created_at, updated_at FROM shortlinks WHERE code = $1`
	sqlDisable        = `UPDATE shortlinks SET disabled = true, updated_at = NOW() WHERE code = $1 AND disabled = false RETURNING 1`
	sqlDisabledByCode = `SELECT disabled FROM shortlinks WHERE code = $1`

	sqlListByUser = `SELECT s.code, s.url, s.disabled, s.click_count, us.created_at
FROM user_shortlinks us JOIN shortlinks s ON s.id = us.shortlink_id
WHERE us.user_id = $1 ORDER BY us.created_at DESC LIMIT $2`
	sqlRemoveFromUser = `DELETE FROM user_shortlinks us USING shortlinks s
WHERE us.user_id = $1 AND us.shortlink_id = s.id AND s.code = $2`
	sqlUserOwns = `SELECT EXISTS(SELECT 1 FROM user_shortlinks us JOIN shortlinks s ON s.id = us.shortlink_id
WHERE us.user_id = $1 AND s.code = $2)`

	sqlClickCount      = `SELECT click_count FROM shortlinks WHERE code = $1`
	sqlClicksFirstPage = `SELECT id, clicked_at, referer, user_agent FROM click_stats WHERE code = $1 ORDER BY id DESC LIMIT $2`
	sqlClicksAfter     = `SELECT id, clicked_at, referer, user_agent FROM click_stats WHERE code = $1 AND id < $2 ORDER BY id DESC LIMIT $3`
	sqlAllCodes        = `SELECT code FROM shortlinks WHERE code IS NOT NULL AND code <> ''`
)

// Coder 由 *shortlink.Coder 实现
type Coder interface {
	Mint(ctx context.Context, id uint64) (string, error)
	Decode(code string) (uint64, error)
}

// Cache 由 *cache.ShortlinkCache 实现
type Cache interface {
	Load(ctx context.Context, code string, load cache.Loader) (string, bool, error)
	Set(ctx context.Context, code, url string) error
	Delete(ctx context.Context, code string) error
}

type ShortlinksRepo struct {
	db    Store
	coder Coder
	cache Cache              // 可为 nil
	bloom *cache.BloomFilter // 可为 nil
}

var _ shortlink.Shortlinks = (*ShortlinksRepo)(nil)

func NewShortlinksRepo(db Store, coder Coder, c Cache, bloom *cache.BloomFilter) *ShortlinksRepo {
	return &ShortlinksRepo{db: db, coder: coder, cache: c, bloom: bloom}
}

// Create 按 url 插入或取回已有行，没有短码时用行 id 生成。同一个 url 永远对应同一个短码。
func (s *ShortlinksRepo) Create(ctx context.Context, url string, createdBy *int64) (string, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := s.db.Begin(dbctx)
	if err != nil {
		return "", fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback(dbctx) // 提交后再 rollback 是空操作

	var id int64
	var code string
	if err := tx.QueryRow(dbctx, sqlUpsertURL, url).Scan(&id, &code); err != nil {
		return "", fmt.Errorf("upsert shortlink: %w", err)
	}

	if code == "" {
		minted, err := s.coder.Mint(dbctx, uint64(id))
		if err != nil {
			return "", fmt.Errorf("mint code for %d: %w", id, err)
		}
		// 并发事务可能已经写了短码，此时以库里的为准
		err = tx.QueryRow(dbctx, sqlSetCodeIfMissing, minted, id).Scan(&code)
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.QueryRow(dbctx, sqlCodeByID, id).Scan(&code)
		}
		if err != nil {
			return "", fmt.Errorf("set code for %d: %w", id, err)
		}
	}

	if err := s.linkUser(dbctx, tx, createdBy, id); err != nil {
		return "", err
	}
	if err := tx.Commit(dbctx); err != nil {
		return "", fmt.Errorf("commit create: %w", err)
	}

	s.remember(ctx, code, url)
	return code, nil
}

// CreateWithCustomCode 使用用户指定的短码：
//   - 短码被占用，或者正好是一个可以生成出来的短码：ErrShortlinkCodeAlreadyExists
//   - url 已有别的短码：ErrShortlinkURLAlreadyHasDifferentCode
//   - url 已存在但还没有短码：补上自定义短码
//   - url 已存在且短码相同：幂等返回
func (s *ShortlinksRepo) CreateWithCustomCode(ctx context.Context, url, code string, createdBy *int64) (string, error) {
	// 生成的短码由行 id 决定，自定义短码不能占用它们
	if _, err := s.coder.Decode(code); err == nil {
		return "", shortlink.ErrShortlinkCodeAlreadyExists
	}

	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := s.db.Begin(dbctx)
	if err != nil {
		return "", fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback(dbctx)

	var id int64
	var got string
	err = tx.QueryRow(dbctx, sqlInsertWithCode, url, code).Scan(&id, &got)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		// url 已存在
		if err := tx.QueryRow(dbctx, sqlByURL, url).Scan(&id, &got); err != nil {
			return "", fmt.Errorf("load shortlink by url: %w", err)
		}
		if got != "" && got != code {
			return "", shortlink.ErrShortlinkURLAlreadyHasDifferentCode
		}
		if got == "" {
			if err := tx.QueryRow(dbctx, sqlSetCodeIfMissing, code, id).Scan(&got); err != nil {
				if _, ok := isUniqueViolation(err); ok {
					return "", shortlink.ErrShortlinkCodeAlreadyExists
				}
				return "", fmt.Errorf("set custom code: %w", err)
			}
		}
	default:
		if pgErr, ok := isUniqueViolation(err); ok && strings.Contains(strings.ToLower(pgErr.ConstraintName), "code") {
			return "", shortlink.ErrShortlinkCodeAlreadyExists
		}
		return "", fmt.Errorf("insert custom shortlink: %w", err)
	}

	if err := s.linkUser(dbctx, tx, createdBy, id); err != nil {
		return "", err
	}
	if err := tx.Commit(dbctx); err != nil {
		return "", fmt.Errorf("commit create: %w", err)
	}

	s.remember(ctx, got, url)
	return got, nil
}

func (s *ShortlinksRepo) linkUser(ctx context.Context, tx pgx.Tx, createdBy *int64, id int64) error {
	if createdBy == nil {
		return nil
	}
	if _, err := tx.Exec(ctx, sqlLinkUser, *createdBy, id); err != nil {
		return fmt.Errorf("link user %d: %w", *createdBy, err)
	}
	return nil
}

// remember 创建成功后写缓存和布隆过滤器，覆盖此前可能存在的负缓存
func (s *ShortlinksRepo) remember(ctx context.Context, code, url string) {
	if code == "" {
		return
	}
	if s.bloom != nil {
		s.bloom.Add(code)
	}
	if s.cache != nil {
		cacheCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_ = s.cache.Set(cacheCtx, code, url)
	}
}

// Resolve 布隆过滤器 -> 缓存 -> 数据库，不存在或已禁用返回 ErrShortlinkNotFound
func (s *ShortlinksRepo) Resolve(ctx context.Context, code string) (string, error) {
	if s.bloom != nil && !s.bloom.MightExist(code) {
		metrics.CacheOperations.WithLabelValues("bloom", "reject").Inc()
		return "", shortlink.ErrShortlinkNotFound
	}

	load := func(ctx context.Context) (string, bool, error) {
		dbctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		var url string
		if err := s.db.QueryRow(dbctx, sqlResolve, code).Scan(&url); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", false, nil
			}
			return "", false, fmt.Errorf("resolve %s: %w", code, err)
		}
		return url, true, nil
	}

	var (
		url   string
		found bool
		err   error
	)
	if s.cache != nil {
		url, found, err = s.cache.Load(ctx, code, load)
	} else {
		url, found, err = load(ctx)
	}
	if err != nil {
		slog.Error("resolve shortlink failed", "code", code, "err", err)
		return "", err
	}
	if !found {
		return "", shortlink.ErrShortlinkNotFound
	}
	return url, nil
}

func (s *ShortlinksRepo) FindByCode(ctx context.Context, code string) (*shortlink.Metadata, error) {
	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var m shortlink.Metadata
	if err := s.db.QueryRow(dbctx, sqlFindByCode, code).
		Scan(&m.Code, &m.URL, &m.Disabled, &m.ClickCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shortlink.ErrShortlinkNotFound
		}
		return nil, fmt.Errorf("find %s: %w", code, err)
	}
	return &m, nil
}

func (s *ShortlinksRepo) DisableByCode(ctx context.Context, code string) error {
	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var one int
	err := s.db.QueryRow(dbctx, sqlDisable, code).Scan(&one)
	if err == nil {
		if s.cache != nil {
			_ = s.cache.Delete(ctx, code)
		}
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("disable %s: %w", code, err)
	}

	// 没更新到：要么不存在，要么已经禁用
	var disabled bool
	if err := s.db.QueryRow(dbctx, sqlDisabledByCode, code).Scan(&disabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortlink.ErrShortlinkNotFound
		}
		return fmt.Errorf("disable %s: %w", code, err)
	}
	if disabled {
		return shortlink.ErrAlreadyDisabled
	}
	return fmt.Errorf("disable %s: row changed concurrently", code)
}

func (s *ShortlinksRepo) ListByUserID(ctx context.Context, userID int64, limit int) ([]shortlink.UserShortlink, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := s.db.Query(dbctx, sqlListByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user %d: %w", userID, err)
	}
	defer rows.Close()

	result := []shortlink.UserShortlink{}
	for rows.Next() {
		var item shortlink.UserShortlink
		if err := rows.Scan(&item.Code, &item.URL, &item.Disabled, &item.ClickCount, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user shortlink: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user %d: %w", userID, err)
	}
	return result, nil
}

// RemoveFromUserList 只解除用户与短链的关联，短链本身保留
func (s *ShortlinksRepo) RemoveFromUserList(ctx context.Context, userID int64, code string) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := s.db.Exec(dbctx, sqlRemoveFromUser, userID, code)
	if err != nil {
		return fmt.Errorf("remove %s from user %d: %w", code, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return shortlink.ErrShortlinkNotFound
	}
	return nil
}

func (s *ShortlinksRepo) UserOwnsShortlink(ctx context.Context, userID int64, code string) (bool, error) {
	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var owns bool
	if err := s.db.QueryRow(dbctx, sqlUserOwns, userID, code).Scan(&owns); err != nil {
		return false, fmt.Errorf("check owner of %s: %w", code, err)
	}
	return owns, nil
}

// ListStatsByCode 按 id 倒序分页，cursor 为上一页最后一条的 id，0 表示第一页
func (s *ShortlinksRepo) ListStatsByCode(ctx context.Context, code string, limit int, cursor int64) (*shortlink.StatsPage, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	page := &shortlink.StatsPage{RecentClicks: []shortlink.ClickStats{}}
	if err := s.db.QueryRow(dbctx, sqlClickCount, code).Scan(&page.TotalClicks); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shortlink.ErrShortlinkNotFound
		}
		return nil, fmt.Errorf("click count %s: %w", code, err)
	}

	var rows pgx.Rows
	var err error
	if cursor == 0 {
		rows, err = s.db.Query(dbctx, sqlClicksFirstPage, code, limit)
	} else {
		rows, err = s.db.Query(dbctx, sqlClicksAfter, code, cursor, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list clicks %s: %w", code, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c shortlink.ClickStats
		if err := rows.Scan(&c.ID, &c.ClickedAt, &c.Referer, &c.UserAgent); err != nil {
			return nil, fmt.Errorf("scan click: %w", err)
		}
		page.RecentClicks = append(page.RecentClicks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list clicks %s: %w", code, err)
	}
	if n := len(page.RecentClicks); n > 0 && n == limit {
		next := page.RecentClicks[n-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

// WarmBloom 启动时把所有已签发短码灌进布隆过滤器，完成后才开始按它拒绝请求
func (s *ShortlinksRepo) WarmBloom(ctx context.Context) (int, error) {
	if s.bloom == nil {
		return 0, nil
	}
	rows, err := s.db.Query(ctx, sqlAllCodes)
	if err != nil {
		return 0, fmt.Errorf("warm bloom: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return n, fmt.Errorf("warm bloom: %w", err)
		}
		s.bloom.Add(code)
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("warm bloom: %w", err)
	}
	s.bloom.MarkReady()
	return n, nil
}
