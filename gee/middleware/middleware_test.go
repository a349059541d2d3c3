package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sqidlink.local/gee"
)

func TestReqID_PreservesIncoming(t *testing.T) {
	r := gee.New()
	r.Use(ReqID())
	r.GET("/id", func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "%s", ctx.Req.Header.Get(RequestIDHeader))
	})

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "abc" {
		t.Fatalf("response header: got %q, want %q", got, "abc")
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "abc" {
		t.Fatalf("body: got %q, want %q", got, "abc")
	}
}

func TestReqID_GeneratesWhenMissing(t *testing.T) {
	r := gee.New()
	r.Use(ReqID())
	r.GET("/id", func(ctx *gee.Context) { ctx.String(http.StatusOK, "ok") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/id", nil))

	if got := rec.Header().Get(RequestIDHeader); len(got) != 32 {
		t.Fatalf("generated id: got %q", got)
	}
}

func TestAccessLog_EmitsJSONFields(t *testing.T) {
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })

	r := gee.New()
	r.Use(gee.Recovery(), ReqID(), AccessLog())
	r.GET("/codes/decode/:id", func(ctx *gee.Context) { ctx.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/codes/decode/bM", nil)
	req.Header.Set(RequestIDHeader, "abc")
	r.ServeHTTP(httptest.NewRecorder(), req)

	dec := json.NewDecoder(&buf)
	for {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			break
		}
		if m["msg"] != "access" {
			continue
		}
		if m["request_id"] != "abc" || m["method"] != http.MethodGet || m["path"] != "/codes/decode/bM" {
			t.Fatalf("unexpected access record %v", m)
		}
		if m["route"] != "/codes/decode/:id" {
			t.Fatalf("route: got %v", m["route"])
		}
		return
	}
	t.Fatalf("did not find access log entry\nraw=%q", buf.String())
}

func TestRecovery_LogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(old) })

	r := gee.New()
	r.Use(gee.Recovery(), ReqID())
	r.GET("/panic", func(ctx *gee.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(buf.String(), `"request_id":"abc"`) {
		t.Fatalf("log does not contain request_id: raw=%q", buf.String())
	}
}
