// Package cleanup は期限切れセッションとOAuth stateの定期削除ジョブを提供する。
// 各ストアは参照時にも期限切れを削除するが、参照されないまま残ったエントリは
// このジョブが一定間隔で掃除する。
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/travelmate/internal/metrics"
)

// DefaultInterval はジョブの既定実行間隔。
const DefaultInterval = 10 * time.Minute

// Sweeper は期限切れエントリを削除し、削除件数を返す。
type Sweeper interface {
	CleanExpired() int
}

// SessionSweeper はセッションストアの削除と件数取得。session.Storeが実装する。
type SessionSweeper interface {
	Sweeper
	Count() int
}

// CleanupJob は期限切れエントリの削除ジョブ。
type CleanupJob struct {
	sessions SessionSweeper
	states   Sweeper
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。statesはnilでもよい。
func NewCleanupJob(sessions SessionSweeper, states Sweeper, rec metrics.Recorder, logger *slog.Logger) *CleanupJob {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &CleanupJob{
		sessions: sessions,
		states:   states,
		metrics:  rec,
		logger:   logger,
	}
}

// Result は1回の実行結果。
type Result struct {
	SessionsRemoved int
	StatesRemoved   int
	ActiveSessions  int
}

// Run は期限切れのセッションとstateを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()

	var res Result
	res.SessionsRemoved = j.sessions.CleanExpired()
	j.metrics.RecordCleanup("session", res.SessionsRemoved)

	if j.states != nil {
		res.StatesRemoved = j.states.CleanExpired()
		j.metrics.RecordCleanup("oauth_state", res.StatesRemoved)
	}

	res.ActiveSessions = j.sessions.Count()
	j.metrics.SetActiveSessions(res.ActiveSessions)

	j.logger.Info("期限切れエントリのクリーンアップが完了しました",
		slog.Int("sessions_removed", res.SessionsRemoved),
		slog.Int("states_removed", res.StatesRemoved),
		slog.Int("active_sessions", res.ActiveSessions),
		slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
	)
	return res, nil
}

// Start は指定間隔のティッカーでジョブを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("クリーンアップジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
