package middleware

import (
	"context"
	"log/slog"
	"time"

	"staysane/internal/app/commands"
	"staysane/internal/app/queries"
)

// Observer receives the outcome of every dispatched message.
type Observer interface {
	Observe(kind, key string, took time.Duration, err error)
}

func Logging(logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := next.Dispatch(ctx, cmd)
			took := time.Since(start)
			if err != nil {
				logger.WarnContext(ctx, "command failed", "command", cmd.Key(), "duration", took, "error", err)
				return res, err
			}
			logger.DebugContext(ctx, "command handled", "command", cmd.Key(), "duration", took)
			return res, nil
		})
	}
}

func Instrument(o Observer) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		if o == nil {
			return next
		}
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := next.Dispatch(ctx, cmd)
			o.Observe("command", cmd.Key(), time.Since(start), err)
			return res, err
		})
	}
}

func InstrumentQueries(o Observer) QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		if o == nil {
			return next
		}
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			start := time.Now()
			res, err := next.Ask(ctx, q)
			o.Observe("query", q.Key(), time.Since(start), err)
			return res, err
		})
	}
}
