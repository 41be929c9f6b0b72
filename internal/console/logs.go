package console

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/cronbat/internal/cache"
	"github.com/kiranshivaraju/cronbat/internal/logview"
	"github.com/kiranshivaraju/cronbat/internal/schedapi"
	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// cachedLogs reads execution logs through the cache. Logs are immutable
// once written, so a hit never needs revalidating. Absent logs are not
// cached because they may still be written.
type cachedLogs struct {
	api   schedapi.Client
	cache cache.Cache
	ttl   time.Duration
}

func (c *cachedLogs) ExecutionLog(ctx context.Context, jobID, timestamp string) (*models.ExecutionLog, error) {
	key := cache.ExecutionLogKey(jobID, timestamp)
	if c.cache != nil {
		raw, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			slog.Warn("log cache read failed", "job_id", jobID, "timestamp", timestamp, "error", err)
		case ok:
			var log models.ExecutionLog
			if err := json.Unmarshal(raw, &log); err == nil {
				return &log, nil
			}
			slog.Warn("dropping corrupt cached log", "key", key)
		}
	}

	log, err := c.api.ExecutionLog(ctx, jobID, timestamp)
	if err != nil || log == nil {
		return log, err
	}

	if c.cache != nil {
		raw, err := json.Marshal(log)
		if err == nil {
			err = c.cache.Set(ctx, key, raw, c.ttl)
		}
		if err != nil {
			slog.Warn("log cache write failed", "job_id", jobID, "timestamp", timestamp, "error", err)
		}
	}
	return log, nil
}

var _ logview.Fetcher = (*cachedLogs)(nil)
