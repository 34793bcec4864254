package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"chathub/pkg/config"
	"chathub/pkg/logger"
	"chathub/pkg/state"
	"chathub/pkg/store"
)

// defaultPeriod keeps deleted messages around for 30 days before the
// hard purge reclaims their keys.
const defaultPeriod = 30 * 24 * time.Hour

// Job owns the retention scheduler for one store. Runs purge aged
// tombstones; live messages are never touched.
type Job struct {
	eff  config.EffectiveConfigResult
	st   *store.Store
	path string
}

// New builds a retention job. The job is inert until Start.
func New(eff config.EffectiveConfigResult, st *store.Store) *Job {
	return &Job{eff: eff, st: st, path: state.RetentionStatePath(eff.DBPath)}
}

// Start launches the scheduler if retention is enabled. Returns a cancel
// func; a no-op cancel when retention is disabled.
func (j *Job) Start(ctx context.Context) (context.CancelFunc, error) {
	ret := j.eff.Config.Retention
	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	if err := os.MkdirAll(j.path, 0o700); err != nil {
		logger.Error("retention_path_create_failed", "path", j.path, "error", err)
		return nil, err
	}

	// map empty cron to default daily @02:00
	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", ret.Period, "path", j.path)
	ctx2, cancel := context.WithCancel(ctx)
	go j.runScheduler(ctx2, cronExpr)
	return cancel, nil
}

// RunImmediate triggers a single retention run, for the admin endpoint.
func (j *Job) RunImmediate() (int, error) {
	return j.runOnce(context.Background())
}

// period resolves the configured tombstone age, falling back to the
// default on empty or unparsable values.
func (j *Job) period() time.Duration {
	p := j.eff.Config.Retention.Period
	if p == "" {
		return defaultPeriod
	}
	d, err := time.ParseDuration(p)
	if err != nil || d <= 0 {
		logger.Warn("retention_period_invalid", "period", p)
		return defaultPeriod
	}
	return d
}

// runOnce purges tombstones older than the configured period and writes
// a run marker with the outcome.
func (j *Job) runOnce(ctx context.Context) (int, error) {
	start := time.Now().UTC()
	cutoff := start.Add(-j.period())
	n, err := j.st.Purge(cutoff)
	if err != nil {
		logger.Error("retention_purge_failed", "error", err)
		return 0, err
	}
	logger.Info("retention_run_complete", "purged", n, "cutoff", cutoff.Format(time.RFC3339), "took", time.Since(start).String())
	j.writeMarker(start, n)
	return n, nil
}

// writeMarker records the last run for operators. Failures are logged
// and ignored; the purge itself already happened.
func (j *Job) writeMarker(ranAt time.Time, purged int) {
	if j.path == "" {
		return
	}
	marker := filepath.Join(j.path, "last_run")
	body := fmt.Sprintf("time: %s\npurged: %d\n", ranAt.Format(time.RFC3339), purged)
	if err := os.WriteFile(marker, []byte(body), 0o600); err != nil {
		logger.Warn("retention_marker_write_failed", "path", marker, "error", err)
	}
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func (j *Job) runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			if _, err := j.runOnce(ctx); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
			// small sleep to avoid tight loop
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			if _, err := j.runOnce(ctx); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}
