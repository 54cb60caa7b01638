package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wellness-chat/internal/repositories"
)

// RunTypingJanitor removes typing entries older than ttl every interval and
// pushes the affected group documents. It returns when ctx is done.
func RunTypingJanitor(ctx context.Context, groups repositories.GroupRepository, notifier *Notifier, ttl, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepTyping(ctx, groups, notifier, ttl, logger)
		}
	}
}

func sweepTyping(ctx context.Context, groups repositories.GroupRepository, notifier *Notifier, ttl time.Duration, logger *zap.Logger) {
	ids, err := groups.ExpireTyping(ctx, ttl)
	if err != nil {
		logger.Warn("expire typing entries", zap.Error(err))
		return
	}
	for _, id := range ids {
		logger.Debug("stale typing entries removed", zap.String("group_id", id))
		notifier.GroupChanged(ctx, id)
	}
}
