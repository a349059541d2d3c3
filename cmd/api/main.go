package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sqidlink.local/gee"
	"sqidlink.local/gee/middleware"
	"sqidlink.local/internal/app/shortlink"
	slcache "sqidlink.local/internal/app/shortlink/cache"
	shortlinkhttpapi "sqidlink.local/internal/app/shortlink/httpapi"
	"sqidlink.local/internal/app/shortlink/repo"
	"sqidlink.local/internal/app/shortlink/stats"
	"sqidlink.local/internal/platform/auth"
	platformcache "sqidlink.local/internal/platform/cache"
	"sqidlink.local/internal/platform/config"
	"sqidlink.local/internal/platform/db"
	"sqidlink.local/internal/platform/httpmiddleware"
	"sqidlink.local/internal/platform/httpserver"
	"sqidlink.local/internal/platform/metrics"
	"sqidlink.local/internal/platform/migrate"
	"sqidlink.local/internal/platform/ratelimit"
	"sqidlink.local/internal/platform/trace"
	"sqidlink.local/migrations"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newCoder(cfg config.Config) (*shortlink.Coder, error) {
	blocklist := cfg.SqidsBlocklist
	if cfg.SqidsBlocklistFile != "" {
		words, err := shortlink.LoadBlocklist(cfg.SqidsBlocklistFile)
		if err != nil {
			return nil, err
		}
		blocklist = append(blocklist, words...)
	}
	return shortlink.NewCoder(shortlink.CoderOptions{
		Alphabet:  cfg.SqidsAlphabet,
		MinLength: cfg.SqidsMinLength,
		Blocklist: blocklist,
	})
}

func main() {
	cfg := config.Load()
	slog.SetDefault(newLogger(cfg))

	// DB
	dbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	dbPool, err := db.New(dbCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(dbCtx); err != nil {
		log.Fatal(err)
	}
	slog.Info("数据库连接成功")

	migCtx, migCancel := context.WithTimeout(context.Background(), 30*time.Second)
	res, err := migrate.Up(migCtx, dbPool, migrate.Options{Dir: cfg.MigrationsDir, FS: migrations.FS})
	migCancel()
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("迁移完成", "source", res.Source, "applied", res.AppliedFiles, "skipped", len(res.SkippedFiles))

	// Redis
	redisClient, err := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal(err)
	}
	defer redisClient.Close()

	var limiter httpmiddleware.Allower
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewLimiter(redisClient)
	} else {
		slog.Warn("RateLimit disabled by config", "RATELIMIT_ENABLED", false)
	}

	// 短链缓存：本地 -> Redis -> DB
	localCache, err := slcache.NewLocalCache(100_000, 100_000)
	if err != nil {
		log.Fatal(err)
	}
	slCache := slcache.NewShortlinkCache(redisClient, localCache)
	defer slCache.Close()
	bloomFilter := slcache.NewBloomFilter(cfg.BloomExpectedItems, cfg.BloomFPRate)

	coder, err := newCoder(cfg)
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("短码编码器就绪", "min_length", cfg.SqidsMinLength, "custom_alphabet", cfg.SqidsAlphabet != "")

	slRepo := repo.NewShortlinksRepo(dbPool, coder, slCache, bloomFilter)
	usersRepo := repo.NewUsersRepo(dbPool)

	warmCtx, warmCancel := context.WithTimeout(context.Background(), time.Minute)
	n, err := slRepo.WarmBloom(warmCtx)
	warmCancel()
	if err != nil {
		// 预热失败时布隆过滤器不拦截，只是少了一层保护
		slog.Error("bloom warm up failed", "err", err)
	} else {
		slog.Info("布隆过滤器预热完成", "codes", n, "approx_items", bloomFilter.Count())
	}

	// 点击统计：Kafka 或进程内 channel
	var (
		collector        stats.Collector
		kafkaConsumer    *stats.KafkaConsumer
		channelCollector *stats.ChannelCollector
		channelConsumer  *stats.Consumer
	)
	if cfg.KafkaEnabled {
		slog.Info("使用 Kafka 收集点击统计", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer = stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, dbPool)
	} else {
		slog.Info("使用 Channel 收集点击统计")
		channelCollector = stats.NewChannelCollector(10000)
		collector = channelCollector
		channelConsumer = stats.NewConsumer(dbPool, channelCollector)
	}

	ts, err := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		log.Fatal(err)
	}

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.ServiceName)
		if shutdown == nil {
			slog.Error("Trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown failed", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	r := gee.New()
	r.Use(gee.Recovery(), middleware.ReqID(), middleware.AccessLog(), httpmiddleware.Metrics(), httpmiddleware.TraceName())

	r.GET("/healthz", func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "ok")
	})
	deps := shortlinkhttpapi.Deps{
		Shortlinks: slRepo,
		Users:      usersRepo,
		Coder:      coder,
		Tokens:     ts,
		Limiter:    limiter,
		Collector:  collector,
	}
	shortlinkhttpapi.RegisterPublicRoutes(r, deps)
	shortlinkhttpapi.RegisterAPIRoutes(r.Group("/api/v1"), deps)

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, cfg.Addr, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := dbPool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})
	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	adminSrv := httpserver.New(cfg, cfg.AdminAddr, adminMux)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if kafkaConsumer != nil {
		go kafkaConsumer.Run(stopCtx)
		defer kafkaConsumer.Close()
	}
	if channelConsumer != nil {
		go channelConsumer.Run(stopCtx)
	}
	defer collector.Close()
	if channelCollector != nil {
		defer func() {
			if n := channelCollector.Dropped(); n > 0 {
				slog.Warn("click stats: events dropped", "count", n)
			}
		}()
	}

	errch := make(chan error, 2)
	go func() { errch <- httpserver.Run(stopCtx, publicSrv, cfg.ShutdownTimeout) }()
	go func() { errch <- httpserver.Run(stopCtx, adminSrv, cfg.ShutdownTimeout) }()
	slog.Info("服务启动", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr, "version", version)

	if err := <-errch; err != nil {
		stop()
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
		log.Fatal(err)
	}
	stop()
	<-errch
}
