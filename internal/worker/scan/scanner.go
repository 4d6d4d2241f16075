// Package scan はチャンネル一覧の定期スキャンを提供する。
// チャンネルのメトリクス取得、判定エンジンの実行、結果の保存を1サイクルとして扱う。
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/outperformer/internal/engine"
	"github.com/hitoshi/outperformer/internal/metrics"
	"github.com/hitoshi/outperformer/internal/model"
	"github.com/hitoshi/outperformer/internal/repository"
	"github.com/hitoshi/outperformer/internal/roster"
	"github.com/hitoshi/outperformer/internal/security"
	"github.com/hitoshi/outperformer/internal/youtube"
)

// 外部プロバイダ呼び出しの段階（メトリクスのラベル値）
const (
	stageChannels = "channels"
	stageDiscover = "discover"
	stageVideos   = "videos"
)

// ErrMalformedAbort は不正レコードによりサイクルを中断した場合のエラー。
var ErrMalformedAbort = errors.New("不正な入力レコードがあったためスキャンを中断しました")

// MetricsProvider はチャンネルと動画のメトリクスを取得するインターフェース。
type MetricsProvider interface {
	GetChannels(ctx context.Context, ids []string) (map[string]youtube.ChannelStats, error)
	GetVideos(ctx context.Context, ids []string) ([]model.Video, error)
}

// Evaluator は判定エンジンのインターフェース。
type Evaluator interface {
	Run(pairs []model.Pair) engine.Result
}

// RosterFunc は監視対象チャンネルの一覧を返す。
type RosterFunc func() ([]model.Channel, error)

// Config はスキャンの設定パラメータ。
type Config struct {
	BatchSize        int
	MaxConcurrent    int
	VideosPerChannel int
	AbortOnMalformed bool
}

// Report はスキャンサイクル1回分の結果。
type Report struct {
	Run    model.ScanRun
	Result engine.Result
	Stored int
}

// Scanner はチャンネル一覧をバッチ単位でスキャンする。
type Scanner struct {
	roster        RosterFunc
	provider      MetricsProvider
	lister        youtube.VideoLister
	evaluator     Evaluator
	sanitizer     security.TextSanitizer
	outperformers repository.OutperformerRepository
	scanRuns      repository.ScanRunRepository
	batchState    repository.BatchStateRepository
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	config        Config
	now           func() time.Time
}

// Deps はScannerの依存関係。
type Deps struct {
	Roster        RosterFunc
	Provider      MetricsProvider
	Lister        youtube.VideoLister
	Evaluator     Evaluator
	Sanitizer     security.TextSanitizer
	Outperformers repository.OutperformerRepository
	ScanRuns      repository.ScanRunRepository
	BatchState    repository.BatchStateRepository
	Metrics       metrics.MetricsCollector
	Logger        *slog.Logger
}

// NewScanner はScannerの新しいインスタンスを生成する。
// MaxConcurrentが0以下の場合は8、VideosPerChannelが0以下の場合は5を使用する。
func NewScanner(deps Deps, config Config) *Scanner {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 8
	}
	if config.VideosPerChannel <= 0 {
		config.VideosPerChannel = 5
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Scanner{
		roster:        deps.Roster,
		provider:      deps.Provider,
		lister:        deps.Lister,
		evaluator:     deps.Evaluator,
		sanitizer:     sanitizer,
		outperformers: deps.Outperformers,
		scanRuns:      deps.ScanRuns,
		batchState:    deps.BatchState,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		config:        config,
		now:           time.Now,
	}
}

// Start はティッカーで定期的にスキャンを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scanner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("スキャンスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("batch_size", s.config.BatchSize),
		slog.Int("max_concurrency", s.config.MaxConcurrent),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("スキャンサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スキャンスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("スキャンサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は保存済みのバッチ状態に従って1サイクル実行する。
func (s *Scanner) RunOnce(ctx context.Context) error {
	_, err := s.Scan(ctx, -1)
	return err
}

// Scan は1サイクル実行する。batchが0以上の場合は保存済みの状態の代わりにそのバッチを処理する。
// サイクルが完了した場合のみ次のバッチへ進める。
func (s *Scanner) Scan(ctx context.Context, batch int) (*Report, error) {
	start := s.now()

	report, err := s.scan(ctx, batch)

	result := metrics.ScanResultSuccess
	switch {
	case err == nil:
	case errors.Is(err, youtube.ErrQuotaExceeded), errors.Is(err, ErrMalformedAbort):
		result = metrics.ScanResultAborted
	default:
		result = metrics.ScanResultFailure
	}
	s.metrics.RecordScan(result, s.now().Sub(start))

	return report, err
}

func (s *Scanner) scan(ctx context.Context, batch int) (*Report, error) {
	channels, err := s.roster()
	if err != nil {
		return nil, fmt.Errorf("チャンネル一覧の読み込みに失敗しました: %w", err)
	}

	if batch < 0 {
		state, err := s.batchState.Get(ctx)
		if err != nil {
			return nil, err
		}
		batch = state.CurrentBatch
	}

	selected, current, total := roster.Batch(channels, batch, s.config.BatchSize)

	run := &model.ScanRun{
		BatchNumber:  current,
		TotalBatches: total,
		ChannelCount: len(selected),
		StartedAt:    s.now(),
	}
	if err := s.scanRuns.Create(ctx, run); err != nil {
		return nil, err
	}

	s.logger.Info("スキャンサイクルを開始します",
		slog.String("scan_run_id", run.ID),
		slog.Int("batch", current+1),
		slog.Int("total_batches", total),
		slog.Int("channel_count", len(selected)),
	)

	report := &Report{}
	pairs, fetchErr := s.collect(ctx, selected)
	if fetchErr != nil && !errors.Is(fetchErr, youtube.ErrQuotaExceeded) {
		run.Status = model.ScanStatusFailed
		s.finish(ctx, run)
		report.Run = *run
		return report, fetchErr
	}

	res := s.evaluator.Run(pairs)
	report.Result = res
	run.VideoCount = res.Evaluated
	run.FailureCount = len(res.Failures)

	for _, f := range res.Failures {
		code := "UNKNOWN"
		var engErr *model.EngineError
		if errors.As(f.Err, &engErr) {
			code = engErr.Code
		}
		s.metrics.RecordMalformed(code)
		s.logger.Warn("不正な入力レコードをスキップしました",
			slog.String("video_id", f.VideoID),
			slog.String("channel_id", f.ChannelID),
			slog.String("code", code),
			slog.String("error", f.Err.Error()),
		)
	}

	if s.config.AbortOnMalformed && len(res.Failures) > 0 {
		run.Status = model.ScanStatusAborted
		s.finish(ctx, run)
		report.Run = *run
		return report, fmt.Errorf("%w: %d件", ErrMalformedAbort, len(res.Failures))
	}

	s.metrics.RecordEvaluated(res.Evaluated)
	for reason, n := range res.Rejections {
		s.metrics.RecordRejections(string(reason), n)
	}

	scannedAt := s.now()
	entries := make([]model.HistoryEntry, 0, len(res.Outperformers))
	for _, op := range res.Outperformers {
		s.metrics.RecordOutperformer(string(op.Classification), string(op.NoiseType))
		if op.IsNoise {
			run.NoiseCount++
		}
		entries = append(entries, op.Entry(run.ID, scannedAt))
	}
	run.OutperformerCount = len(res.Outperformers)

	stored, err := s.outperformers.InsertBatch(ctx, entries)
	if err != nil {
		run.Status = model.ScanStatusFailed
		s.finish(ctx, run)
		report.Run = *run
		return report, err
	}
	report.Stored = stored
	s.metrics.RecordStored(stored)

	// クォータ超過時は取得できた分だけ保存し、同じバッチを次回やり直す
	if fetchErr != nil {
		run.Status = model.ScanStatusAborted
		s.finish(ctx, run)
		report.Run = *run
		return report, fetchErr
	}

	run.Status = model.ScanStatusCompleted
	s.finish(ctx, run)
	report.Run = *run

	now := s.now()
	next := &model.BatchState{
		CurrentBatch: roster.Next(current, total),
		TotalBatches: total,
		LastRunAt:    &now,
	}
	if err := s.batchState.Save(ctx, next); err != nil {
		return report, err
	}

	s.logger.Info("スキャンサイクルが完了しました",
		slog.String("scan_run_id", run.ID),
		slog.Int("evaluated", res.Evaluated),
		slog.Int("outperformers", run.OutperformerCount),
		slog.Int("mid_performers", len(res.MidPerformers)),
		slog.Int("noise", run.NoiseCount),
		slog.Int("stored", stored),
		slog.Int("failures", run.FailureCount),
		slog.Int("next_batch", next.CurrentBatch+1),
	)

	return report, nil
}

// finish はスキャン記録を更新する。更新に失敗してもサイクルの結果は変えない。
func (s *Scanner) finish(ctx context.Context, run *model.ScanRun) {
	now := s.now()
	run.FinishedAt = &now
	if err := s.scanRuns.Finish(ctx, run); err != nil {
		s.logger.Error("スキャン記録の更新に失敗しました",
			slog.String("scan_run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}
}

// collect はチャンネルの登録者数と直近の動画を取得し、判定用の組を作る。
// クォータを超過した場合はそれまでに取得できた組とErrQuotaExceededを返す。
func (s *Scanner) collect(ctx context.Context, channels []model.Channel) ([]model.Pair, error) {
	if len(channels) == 0 {
		return nil, nil
	}

	ids := make([]string, len(channels))
	for i, ch := range channels {
		ids[i] = ch.ID
	}

	stats, err := s.provider.GetChannels(ctx, ids)
	if err != nil {
		s.metrics.RecordProviderError(stageChannels)
		return nil, fmt.Errorf("チャンネル情報の取得に失敗しました: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		pairs    []model.Pair
		quotaHit atomic.Bool
		wg       sync.WaitGroup
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.config.MaxConcurrent)

	for _, ch := range channels {
		st, ok := stats[ch.ID]
		if !ok {
			s.logger.Warn("チャンネルが見つかりませんでした",
				slog.String("channel_id", ch.ID),
				slog.String("name", ch.Name),
			)
			continue
		}
		if st.Name != "" {
			ch.Name = st.Name
		}
		ch.SubscriberCount = st.SubscriberCount

		if quotaHit.Load() {
			break
		}

		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(ch model.Channel) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if quotaHit.Load() {
				return
			}

			videos, err := s.fetchVideos(ctx, ch)
			if err != nil {
				if errors.Is(err, youtube.ErrQuotaExceeded) {
					if !quotaHit.Swap(true) {
						s.logger.Warn("APIクォータを超過したため残りのチャンネルをスキップします",
							slog.String("channel_id", ch.ID),
						)
					}
					cancel()
					return
				}
				if ctx.Err() == nil {
					s.logger.Error("動画の取得に失敗しました",
						slog.String("channel_id", ch.ID),
						slog.String("error", err.Error()),
					)
				}
				return
			}

			mu.Lock()
			for _, v := range videos {
				pairs = append(pairs, model.Pair{Channel: ch, Video: v})
			}
			mu.Unlock()
		}(ch)
	}

	wg.Wait()

	if quotaHit.Load() {
		return pairs, youtube.ErrQuotaExceeded
	}
	if err := ctx.Err(); err != nil {
		return pairs, err
	}
	return pairs, nil
}

// fetchVideos はチャンネルの直近の動画を取得し、説明文とサムネイルURLを正規化する。
func (s *Scanner) fetchVideos(ctx context.Context, ch model.Channel) ([]model.Video, error) {
	ids, err := s.lister.RecentVideoIDs(ctx, ch.ID, s.config.VideosPerChannel)
	if err != nil {
		s.metrics.RecordProviderError(stageDiscover)
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	videos, err := s.provider.GetVideos(ctx, ids)
	if err != nil {
		s.metrics.RecordProviderError(stageVideos)
		return nil, err
	}

	for i := range videos {
		videos[i].Description = s.sanitizer.Sanitize(videos[i].Description)
		if videos[i].ThumbnailURL != "" {
			if err := security.ValidateMediaURL(videos[i].ThumbnailURL); err != nil {
				s.logger.Debug("サムネイルURLを破棄しました",
					slog.String("video_id", videos[i].ID),
					slog.String("error", err.Error()),
				)
				videos[i].ThumbnailURL = ""
			}
		}
	}
	return videos, nil
}
