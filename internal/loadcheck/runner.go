package loadcheck

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/rankboard/pkg/logger"
)

const (
	workerChannelMultiplier = 2
	progressInterval        = time.Second
	percentageMultiplier    = 100
)

// Run executes a complete load check: health, submit, fetch, verify.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load check",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("leaderboards", cfg.Leaderboards),
		logger.Int("members", cfg.Members),
		logger.Int("ops", cfg.Ops),
		logger.Int("workers", cfg.Workers))

	if err := client.get(ctx, "/status", nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	p := newPlan(cfg)
	stats.OpsGenerated = len(p.Ops)

	if err := submit(ctx, cfg, client, p, stats, log); err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}
	if stats.OpsFailed > 0 {
		return stats, fmt.Errorf("%d of %d patches failed", stats.OpsFailed, stats.OpsSubmitted)
	}

	var problems []error
	for _, lb := range p.Leaderboards {
		want, ok := p.Expected[lb]
		if !ok {
			continue
		}
		rows, err := fetchLeaderboard(ctx, client, lb, cfg.PageSize)
		if err != nil {
			return stats, fmt.Errorf("fetch %s: %w", lb, err)
		}
		stats.RowsVerified += len(rows)
		if err := verify(lb, want, rows); err != nil {
			log.Warn(ctx, "leaderboard failed verification", logger.String("leaderboard", lb), logger.Error(err))
			problems = append(problems, err)
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logStats(ctx, log, stats)

	if len(problems) > 0 {
		return stats, errors.Join(append([]error{ErrVerification}, problems...)...)
	}
	log.Info(ctx, "load check passed")
	return stats, nil
}

// submit sends every op through a worker pool.
func submit(ctx context.Context, cfg *Config, client *httpClient, p *plan, stats *Stats, log logger.Logger) error {
	var submitted, successful, failed atomic.Int64
	var lastReport atomic.Int64

	ops := make(chan op, cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for o := range ops {
				path, body := o.request()
				if err := client.patch(ctx, path, body, nil); err != nil {
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "patch failed", logger.String("path", path), logger.Error(err))
					}
				} else {
					successful.Add(1)
				}
				n := submitted.Add(1)

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if cfg.Verbose && now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress",
						logger.Int64("submitted", n),
						logger.Int("total", len(p.Ops)),
						logger.Int64("failed", failed.Load()))
				}
			}
		}()
	}

	go func() {
		defer close(ops)
		for _, o := range p.Ops {
			select {
			case <-ctx.Done():
				return
			case ops <- o:
			}
		}
	}()

	wg.Wait()

	stats.OpsSubmitted = int(submitted.Load())
	stats.OpsSuccessful = int(successful.Load())
	stats.OpsFailed = int(failed.Load())
	return ctx.Err()
}

// fetchLeaderboard reads lb page by page until an empty page. Pages overlap
// when a tie group straddles a boundary, so rows are keyed by member.
func fetchLeaderboard(ctx context.Context, client *httpClient, lb string, pageSize int) ([]Entry, error) {
	seen := make(map[string]Entry)
	order := make([]string, 0)
	for start := 1; ; start += pageSize {
		var page []Entry
		path := fmt.Sprintf("/leaderboard/%s?start=%d&end=%d", url.PathEscape(lb), start, start+pageSize-1)
		if err := client.get(ctx, path, &page); err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, e := range page {
			if _, ok := seen[e.Member]; !ok {
				order = append(order, e.Member)
			}
			seen[e.Member] = e
		}
	}

	rows := make([]Entry, 0, len(order))
	for _, m := range order {
		rows = append(rows, seen[m])
	}
	return rows, nil
}

func logStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var successRate, opsPerSecond float64
	if stats.OpsSubmitted > 0 {
		successRate = float64(stats.OpsSuccessful) / float64(stats.OpsSubmitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		opsPerSecond = float64(stats.OpsSubmitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("opsGenerated", stats.OpsGenerated),
		logger.Int("opsSubmitted", stats.OpsSubmitted),
		logger.Int("opsSuccessful", stats.OpsSuccessful),
		logger.Int("opsFailed", stats.OpsFailed),
		logger.Int("rowsVerified", stats.RowsVerified),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("opsPerSecond", opsPerSecond))
}
