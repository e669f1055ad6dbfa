package scourrunner

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"scour/internal/auth"
	"scour/internal/domain"
	"scour/internal/logging"
)

// TrendCreator runs the unmatched-incident trend batch.
type TrendCreator interface {
	CreateTrendsFromUnmatched(ctx context.Context) ([]domain.Trend, error)
}

// ScheduleTrends runs the trend batch on spec (standard five-field cron or a
// descriptor such as "@every 1h") until ctx is canceled. Overlapping runs are
// skipped. An empty spec schedules nothing.
func ScheduleTrends(ctx context.Context, spec string, creator TrendCreator, logger *slog.Logger) (*cron.Cron, error) {
	logger = logging.NewComponentLogger(logger, "trend-batch")
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if spec == "" {
		return c, nil
	}
	_, err := c.AddFunc(spec, func() {
		runCtx := auth.WithIdentity(ctx, auth.System)
		created, err := creator.CreateTrendsFromUnmatched(runCtx)
		if err != nil {
			logger.Error("trend batch failed", "error", err)
			return
		}
		logger.Info("trend batch done", "created", len(created))
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
