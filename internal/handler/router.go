package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/outperformer/internal/metrics"
	"github.com/hitoshi/outperformer/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	History  HistoryReader
	ScanRuns ScanRunReader
	DB       Pinger
	Gatherer prometheus.Gatherer

	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	Logger            *slog.Logger

	// Now はテスト用の時刻注入。nilの場合はtime.Now。
	Now func() time.Time
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → SecurityHeaders → CORS → RateLimit(/api のみ)
//
// /health と /metrics はレート制限の対象外。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	health := NewHealthHandler(deps.DB, 0)
	outperformers := NewOutperformerHandler(deps.History, deps.ScanRuns, deps.Now)

	r.Get("/health", health.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}
		r.Get("/outperformers", outperformers.ListOutperformers)
		r.Get("/stats", outperformers.Stats)
		r.Get("/trends", outperformers.Trends)
	})

	return r
}

// NewOpsRouter はワーカープロセス用に /health と /metrics のみを公開するルーターを返す。
func NewOpsRouter(db Pinger, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", NewHealthHandler(db, 0).Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	return r
}
