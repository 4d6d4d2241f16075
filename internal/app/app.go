package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/outperformer/internal/config"
	"github.com/hitoshi/outperformer/internal/database"
	"github.com/hitoshi/outperformer/internal/engine"
	"github.com/hitoshi/outperformer/internal/handler"
	"github.com/hitoshi/outperformer/internal/logger"
	"github.com/hitoshi/outperformer/internal/metrics"
	"github.com/hitoshi/outperformer/internal/middleware"
	"github.com/hitoshi/outperformer/internal/model"
	"github.com/hitoshi/outperformer/internal/repository"
	"github.com/hitoshi/outperformer/internal/roster"
	"github.com/hitoshi/outperformer/internal/security"
	"github.com/hitoshi/outperformer/internal/worker/cleanup"
	"github.com/hitoshi/outperformer/internal/worker/scan"
	"github.com/hitoshi/outperformer/internal/youtube"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば読み込み、JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（LOG_LEVELも.envで指定できるようにログより先に行う）
	if err := config.LoadDotEnv(""); err != nil {
		return nil, err
	}

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	var scanOpts ScanOptions
	if cmd == CommandScan {
		var err error
		if scanOpts, err = ParseScanOptions(args[1:], w); err != nil {
			return err
		}
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("video_discovery", cfg.VideoDiscovery),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandScan:
		return runScan(ctx, cfg, scanOpts)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// コンテキストがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		History:           repository.NewPostgresOutperformerRepo(db),
		ScanRuns:          repository.NewPostgresScanRunRepo(db),
		DB:                db,
		Gatherer:          prometheus.DefaultGatherer,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:            slog.Default(),
	})

	return serveHTTP(ctx, ":"+cfg.ServerPort, router, "API server")
}

// runWorker はワーカーモードで起動する。
// 定期スキャンをメインgoroutineで、履歴クリーンアップをバックグラウンドで実行し、
// /health と /metrics を公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	scanner, err := newScanner(cfg, db, collector, slog.Default())
	if err != nil {
		return err
	}

	cleanupJob := cleanup.NewCleanupJob(repository.NewPostgresOutperformerRepo(db), collector, slog.Default())
	cleanupJob.RetentionDays = cfg.RetentionDays

	opsErr := make(chan error, 1)
	go func() {
		err := serveHTTP(ctx, ":"+cfg.ServerPort, handler.NewOpsRouter(db, prometheus.DefaultGatherer), "worker ops server")
		if err != nil {
			slog.Error("worker ops server failed", slog.String("error", err.Error()))
		}
		opsErr <- err
	}()

	slog.Info("worker starting",
		slog.Duration("scan_interval", cfg.ScanInterval),
		slog.Int("max_concurrent", cfg.ScanMaxConcurrent),
		slog.Int("batch_size", cfg.ScanBatchSize),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", cfg.RetentionDays),
	)

	go cleanupJob.Start(ctx, cfg.CleanupInterval)

	// スキャンはメインgoroutineで実行（ブロッキング）
	scanner.Start(ctx, cfg.ScanInterval)

	if err := <-opsErr; err != nil {
		return err
	}
	slog.Info("worker stopped gracefully")
	return nil
}

// runScan はスキャンを1サイクルだけ実行する。
func runScan(ctx context.Context, cfg *config.Config, opts ScanOptions) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	scanner, err := newScanner(cfg, db, metrics.NewCollector(prometheus.NewRegistry()), slog.Default())
	if err != nil {
		return err
	}

	report, err := scanner.Scan(ctx, opts.Batch)
	if report != nil {
		logScanReport(report)
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

// reportTopN はスキャンレポートに出すパターンとテーマの件数。
const reportTopN = 5

func topCounts(counts []engine.Count, n int) []engine.Count {
	if len(counts) > n {
		return counts[:n]
	}
	return counts
}

// logScanReport はスキャン結果の概要とハイライトを出力する。
func logScanReport(report *scan.Report) {
	slog.Info("scan report",
		slog.String("scan_run_id", report.Run.ID),
		slog.String("status", report.Run.Status),
		slog.Int("batch", report.Run.BatchNumber),
		slog.Int("total_batches", report.Run.TotalBatches),
		slog.Int("evaluated", report.Result.Evaluated),
		slog.Int("outperformers", len(report.Result.Outperformers)),
		slog.Int("mid_performers", len(report.Result.MidPerformers)),
		slog.Int("failures", len(report.Result.Failures)),
		slog.Int("stored", report.Stored),
	)

	summary := engine.Summarize(report.Result.Outperformers)
	slog.Info("scan summary",
		slog.Int("actionable", summary.Actionable),
		slog.Int("noise_filtered", summary.Total-summary.Actionable),
		slog.Int("noise_event_recap", summary.Noise[model.NoiseEventRecap]),
		slog.Int("noise_live_stream", summary.Noise[model.NoiseLiveStream]),
		slog.Int("noise_political_news", summary.Noise[model.NoisePoliticalNews]),
		slog.Int("trend_jacker", summary.Classifications[model.ClassificationTrendJacker]),
		slog.Int("authority_builder", summary.Classifications[model.ClassificationAuthorityBuilder]),
		slog.Any("top_patterns", topCounts(summary.Patterns, reportTopN)),
		slog.Any("top_themes", topCounts(summary.Themes, reportTopN)),
	)

	for _, op := range report.Result.Outperformers {
		if op.IsNoise {
			continue
		}
		slog.Info("outperformer",
			slog.String("video_id", op.Video.ID),
			slog.String("url", op.Video.URL()),
			slog.String("channel", op.Channel.Name),
			slog.String("classification", string(op.Classification)),
			slog.Float64("velocity_score", op.VelocityScore),
			slog.Float64("ratio", op.Ratio),
			slog.Any("patterns", op.TitlePatterns),
			slog.Any("themes", op.Themes),
		)
	}
}

// newScanner は設定からスキャナーと依存コンポーネントを組み立てる。
// ルールファイルとチャンネル一覧の検証エラーはここで返す。
func newScanner(cfg *config.Config, db *sql.DB, collector metrics.MetricsCollector, log *slog.Logger) (*scan.Scanner, error) {
	rules, err := engine.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	rules.HighlightChannelIDs = append(rules.HighlightChannelIDs, cfg.HighlightChannelIDs...)

	eng, err := engine.New(rules)
	if err != nil {
		return nil, fmt.Errorf("invalid engine rules: %w", err)
	}

	// 起動時にチャンネル一覧を検証しておき、不備があれば即座に失敗させる
	if _, err := roster.Load(cfg.ChannelsFile, eng, log); err != nil {
		return nil, err
	}

	client := youtube.NewClient(security.NewOutboundClient(cfg.ProviderTimeout), cfg.YouTubeAPIKey, cfg.ProviderRatePerSec, log)

	var lister youtube.VideoLister = client
	if cfg.VideoDiscovery == config.DiscoveryFeed {
		lister = youtube.NewFeedDiscoverer(security.NewOutboundClient(cfg.ProviderTimeout), log)
	}

	return scan.NewScanner(scan.Deps{
		Roster: func() ([]model.Channel, error) {
			return roster.Load(cfg.ChannelsFile, eng, log)
		},
		Provider:      client,
		Lister:        lister,
		Evaluator:     eng,
		Sanitizer:     security.NewTextSanitizer(),
		Outperformers: repository.NewPostgresOutperformerRepo(db),
		ScanRuns:      repository.NewPostgresScanRunRepo(db),
		BatchState:    repository.NewPostgresBatchStateRepo(db),
		Metrics:       collector,
		Logger:        log,
	}, scan.Config{
		BatchSize:        cfg.ScanBatchSize,
		MaxConcurrent:    cfg.ScanMaxConcurrent,
		VideosPerChannel: cfg.VideosPerChannel,
		AbortOnMalformed: cfg.ScanAbortOnMalformed,
	}), nil
}

// serveHTTP はコンテキストがキャンセルされるまでHTTPサーバーを実行し、グレースフルシャットダウンする。
func serveHTTP(ctx context.Context, addr string, h http.Handler, name string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
