package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"sqidlink.local/internal/app/shortlink"
)

// memDB 按 SQL 常量分派，只模拟 repo 用到的语句
type memDB struct {
	mu        sync.Mutex
	links     []*slRow
	userLinks []userLink
	users     []shortlink.User
	clicks    []clickRow
	now       time.Time
	fail      error
	queries   []string
}

type slRow struct {
	id       int64
	code     string
	url      string
	disabled bool
	clicks   int64
	created  time.Time
}

type userLink struct {
	userID, linkID int64
	created        time.Time
}

type clickRow struct {
	id      int64
	code    string
	at      time.Time
	referer string
	ua      string
}

func newMemDB() *memDB {
	return &memDB{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memDB) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

func (m *memDB) byURL(url string) *slRow {
	for _, r := range m.links {
		if r.url == url {
			return r
		}
	}
	return nil
}

func (m *memDB) byCode(code string) *slRow {
	for _, r := range m.links {
		if r.code != "" && r.code == code {
			return r
		}
	}
	return nil
}

func (m *memDB) byID(id int64) *slRow {
	for _, r := range m.links {
		if r.id == id {
			return r
		}
	}
	return nil
}

func codeConflict() error {
	return &pgconn.PgError{Code: uniqueViolation, ConstraintName: "shortlinks_code_key"}
}

func (m *memDB) insert(url, code string) *slRow {
	r := &slRow{id: int64(len(m.links) + 1), url: url, code: code, created: m.tick()}
	m.links = append(m.links, r)
	return r
}

func (m *memDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, sql)
	if m.fail != nil {
		return pgconn.CommandTag{}, m.fail
	}
	switch sql {
	case sqlLinkUser:
		uid, lid := args[0].(int64), args[1].(int64)
		for _, l := range m.userLinks {
			if l.userID == uid && l.linkID == lid {
				return pgconn.NewCommandTag("INSERT 0 0"), nil
			}
		}
		m.userLinks = append(m.userLinks, userLink{userID: uid, linkID: lid, created: m.tick()})
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case sqlRemoveFromUser:
		uid, code := args[0].(int64), args[1].(string)
		kept := m.userLinks[:0]
		n := 0
		for _, l := range m.userLinks {
			if r := m.byID(l.linkID); l.userID == uid && r != nil && r.code == code {
				n++
				continue
			}
			kept = append(kept, l)
		}
		m.userLinks = kept
		return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", n)), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("memDB: unsupported exec %q", sql)
}

func (m *memDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, sql)
	if m.fail != nil {
		return fakeRow{err: m.fail}
	}
	switch sql {
	case sqlUpsertURL:
		r := m.byURL(args[0].(string))
		if r == nil {
			r = m.insert(args[0].(string), "")
		}
		return fakeRow{vals: []any{r.id, r.code}}
	case sqlSetCodeIfMissing:
		code, id := args[0].(string), args[1].(int64)
		r := m.byID(id)
		if r == nil || r.code != "" {
			return fakeRow{err: pgx.ErrNoRows}
		}
		if m.byCode(code) != nil {
			return fakeRow{err: codeConflict()}
		}
		r.code = code
		return fakeRow{vals: []any{code}}
	case sqlCodeByID:
		if r := m.byID(args[0].(int64)); r != nil {
			return fakeRow{vals: []any{r.code}}
		}
	case sqlInsertWithCode:
		url, code := args[0].(string), args[1].(string)
		if m.byURL(url) != nil {
			return fakeRow{err: pgx.ErrNoRows}
		}
		if m.byCode(code) != nil {
			return fakeRow{err: codeConflict()}
		}
		r := m.insert(url, code)
		return fakeRow{vals: []any{r.id, r.code}}
	case sqlByURL:
		if r := m.byURL(args[0].(string)); r != nil {
			return fakeRow{vals: []any{r.id, r.code}}
		}
	case sqlResolve:
		if r := m.byCode(args[0].(string)); r != nil && !r.disabled {
			return fakeRow{vals: []any{r.url}}
		}
	case sqlFindByCode:
		if r := m.byCode(args[0].(string)); r != nil {
			return fakeRow{vals: []any{r.code, r.url, r.disabled, r.clicks, r.created, r.created}}
		}
	case sqlDisable:
		if r := m.byCode(args[0].(string)); r != nil && !r.disabled {
			r.disabled = true
			return fakeRow{vals: []any{1}}
		}
	case sqlDisabledByCode:
		if r := m.byCode(args[0].(string)); r != nil {
			return fakeRow{vals: []any{r.disabled}}
		}
	case sqlUserOwns:
		uid, code := args[0].(int64), args[1].(string)
		owns := false
		for _, l := range m.userLinks {
			if r := m.byID(l.linkID); l.userID == uid && r != nil && r.code == code {
				owns = true
			}
		}
		return fakeRow{vals: []any{owns}}
	case sqlClickCount:
		if r := m.byCode(args[0].(string)); r != nil {
			return fakeRow{vals: []any{r.clicks}}
		}
	case sqlFindUser:
		for _, u := range m.users {
			if u.Username == args[0].(string) {
				return fakeRow{vals: []any{u.ID, u.Username, u.PasswordHash, u.Role}}
			}
		}
	case sqlInsertUser:
		name := args[0].(string)
		for _, u := range m.users {
			if u.Username == name {
				return fakeRow{err: pgx.ErrNoRows}
			}
		}
		u := shortlink.User{ID: int64(len(m.users) + 1), Username: name, PasswordHash: args[1].(string), Role: args[2].(string)}
		m.users = append(m.users, u)
		return fakeRow{vals: []any{u.ID}}
	default:
		return fakeRow{err: fmt.Errorf("memDB: unsupported query %q", sql)}
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func (m *memDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, sql)
	if m.fail != nil {
		return nil, m.fail
	}
	var out [][]any
	switch sql {
	case sqlListByUser:
		uid, limit := args[0].(int64), args[1].(int)
		for i := len(m.userLinks) - 1; i >= 0 && len(out) < limit; i-- {
			l := m.userLinks[i]
			if l.userID != uid {
				continue
			}
			r := m.byID(l.linkID)
			out = append(out, []any{r.code, r.url, r.disabled, r.clicks, l.created})
		}
	case sqlClicksFirstPage, sqlClicksAfter:
		code := args[0].(string)
		cursor, limit := int64(0), 0
		if sql == sqlClicksFirstPage {
			limit = args[1].(int)
		} else {
			cursor, limit = args[1].(int64), args[2].(int)
		}
		for i := len(m.clicks) - 1; i >= 0 && len(out) < limit; i-- {
			c := m.clicks[i]
			if c.code != code || (cursor != 0 && c.id >= cursor) {
				continue
			}
			out = append(out, []any{c.id, c.at, c.referer, c.ua})
		}
	case sqlAllCodes:
		for _, r := range m.links {
			if r.code != "" {
				out = append(out, []any{r.code})
			}
		}
	default:
		return nil, fmt.Errorf("memDB: unsupported query %q", sql)
	}
	return &fakeRows{rows: out}, nil
}

func (m *memDB) Begin(context.Context) (pgx.Tx, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	return &fakeTx{db: m}, nil
}

// fakeTx 直接作用在 memDB 上，Rollback 不撤销
type fakeTx struct {
	pgx.Tx
	db *memDB
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *fakeTx) Commit(context.Context) error   { return nil }
func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.vals)
}

type fakeRows struct {
	pgx.Rows
	rows [][]any
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error { return assign(dest, r.rows[r.i-1]) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}

func assign(dest []any, vals []any) error {
	if len(dest) != len(vals) {
		return errors.New("memDB: scan arity mismatch")
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		vv := reflect.ValueOf(vals[i])
		if !vv.Type().AssignableTo(dv.Type()) {
			if !vv.Type().ConvertibleTo(dv.Type()) {
				return fmt.Errorf("memDB: cannot scan %T into %s", vals[i], dv.Type())
			}
			vv = vv.Convert(dv.Type())
		}
		dv.Set(vv)
	}
	return nil
}
