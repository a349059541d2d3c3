package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	sqlInsertClick = `INSERT INTO click_stats (code, clicked_at, ip, user_agent, referer) VALUES ($1, $2, $3, $4, $5)`
	sqlBumpClicks  = `UPDATE shortlinks SET click_count = click_count + $2 WHERE code = $1`

	defaultBatchSize = 100
	defaultInterval  = time.Second
)

// Beginner 由 *pgxpool.Pool 实现
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// runBatches 攒够 size 条或每隔 interval 调一次 flush；events 关闭或 ctx 结束时把剩余的也交出去
func runBatches(ctx context.Context, events <-chan ClickEvent, size int, interval time.Duration, flush func([]ClickEvent)) {
	batch := make([]ClickEvent, 0, size)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	emit := func() {
		if len(batch) == 0 {
			return
		}
		flush(batch)
		batch = batch[:0] // 保留容量
	}

	for {
		select {
		case <-ctx.Done():
			emit()
			return
		case e, ok := <-events:
			if !ok {
				emit()
				return
			}
			batch = append(batch, e)
			if len(batch) >= size {
				emit()
			}
		case <-ticker.C:
			emit()
		}
	}
}

// flushClicks 一个事务写明细，每个短码只更新一次计数。单条明细失败只记日志。
//
// Postgres 里一条语句出错会让整个事务进入 aborted 状态，所以每条语句都包在
// 保存点里，失败时只回滚到保存点。
func flushClicks(db Beginner, batch []ClickEvent) error {
	if len(batch) == 0 {
		return nil
	}
	// 退出时 ctx 已经取消，这里用独立的超时
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin click flush: %w", err)
	}
	defer tx.Rollback(context.Background())

	counts := make(map[string]int64, len(batch))
	order := make([]string, 0, len(batch))
	for _, e := range batch {
		if err := execSavepoint(ctx, tx, sqlInsertClick, e.Code, e.ClickedAt, e.IP, e.UserAgent, e.Referer); err != nil {
			slog.Error("click stats: insert failed", "code", e.Code, "err", err)
			continue
		}
		if counts[e.Code] == 0 {
			order = append(order, e.Code)
		}
		counts[e.Code]++
	}
	for _, code := range order {
		if err := execSavepoint(ctx, tx, sqlBumpClicks, code, counts[code]); err != nil {
			slog.Error("click stats: update count failed", "code", code, "err", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit click flush: %w", err)
	}
	slog.Debug("click stats: flushed", "count", len(batch), "codes", len(order))
	return nil
}

// execSavepoint 在嵌套事务（保存点）里执行一条语句，出错时回滚到保存点。
func execSavepoint(ctx context.Context, tx pgx.Tx, sql string, args ...any) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := sp.Exec(ctx, sql, args...); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}
